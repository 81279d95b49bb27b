package resolver

import (
	"fmt"
	"sort"
	"strings"
)

// Field names a logical column. The string form is the configuration key
// used to override the field's alias list.
type Field string

// Order fields
const (
	FieldOrderStatus    Field = "status"
	FieldRefundStatus   Field = "refund_status"
	FieldContactRemarks Field = "contact_remarks"
	FieldFilterPrice    Field = "filter_price"
	FieldCreatedAt      Field = "created_at"
	FieldRemarks        Field = "remarks"
	FieldExternalCode   Field = "external_code"
	FieldProductName    Field = "product_name"
	FieldSellingPrice   Field = "selling_price"
	FieldQuantity       Field = "quantity"
	FieldOrderID        Field = "order_id"
)

// Product fields
const (
	FieldCode     Field = "code"
	FieldName     Field = "name"
	FieldCost     Field = "cost"
	FieldSupplier Field = "supplier"
)

// DefaultSupplier is reported for catalog rows without a supplier column
const DefaultSupplier = "N/A"

// AliasTable maps each logical field to its ordered alias list
type AliasTable map[Field][]string

// DefaultOrderAliases returns the alias table for Taobao order exports.
// Chinese headers come first; English ones cover hand-made sheets.
func DefaultOrderAliases() AliasTable {
	return AliasTable{
		FieldOrderStatus:    {"订单状态", "status"},
		FieldRefundStatus:   {"退款状态", "refund_status"},
		FieldContactRemarks: {"联系方式备注", "contact_remarks"},
		FieldFilterPrice:    {"买家应付货款", "成交价格", "实付金额", "订单金额", "总金额", "金额", "price", "amount"},
		FieldCreatedAt:      {"创建时间", "订单创建时间", "date"},
		FieldRemarks:        {"备注", "订单备注", "remarks"},
		FieldExternalCode:   {"外部系统编号", "商品编码", "product_code"},
		FieldProductName:    {"商品名称", "宝贝标题", "product_name"},
		FieldSellingPrice:   {"商家实收金额", "买家应付货款", "成交价格", "实付金额", "price"},
		FieldQuantity:       {"买家购买数量", "数量", "购买数量", "quantity"},
		FieldOrderID:        {"订单号", "订单编号", "order_id"},
	}
}

// DefaultProductAliases returns the alias table for the cost catalog
func DefaultProductAliases() AliasTable {
	return AliasTable{
		FieldCode:     {"商品编码", "编码", "code"},
		FieldName:     {"商品名称", "名称", "product_name", "name"},
		FieldCost:     {"成本价", "成本", "cost"},
		FieldSupplier: {"供应商", "supplier"},
	}
}

// Get returns the aliases of field, or nil when the field is unknown
func (t AliasTable) Get(field Field) []string {
	return t[field]
}

// Clone returns a deep copy of the table
func (t AliasTable) Clone() AliasTable {
	out := make(AliasTable, len(t))
	for f, aliases := range t {
		out[f] = append([]string(nil), aliases...)
	}
	return out
}

// Fields returns the table's fields in sorted order
func (t AliasTable) Fields() []Field {
	fields := make([]Field, 0, len(t))
	for f := range t {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields
}

// Merge returns a copy of the table where each overridden field's alias
// list is replaced. Unknown fields and empty lists are rejected.
func (t AliasTable) Merge(overrides map[string][]string) (AliasTable, error) {
	out := t.Clone()
	for key, aliases := range overrides {
		field := Field(key)
		if _, known := t[field]; !known {
			return nil, fmt.Errorf("unknown field %q", key)
		}
		cleaned := cleanAliases(aliases)
		if len(cleaned) == 0 {
			return nil, fmt.Errorf("field %q needs at least one alias", key)
		}
		out[field] = cleaned
	}
	return out, nil
}

// Validate checks that every field has at least one non-blank alias
func (t AliasTable) Validate() error {
	for _, f := range t.Fields() {
		if len(cleanAliases(t[f])) == 0 {
			return fmt.Errorf("field %q has no aliases", f)
		}
	}
	return nil
}

func cleanAliases(aliases []string) []string {
	var out []string
	for _, a := range aliases {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
