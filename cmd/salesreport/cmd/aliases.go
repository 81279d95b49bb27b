package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/graymonk/taobao-reconciliation-new/cmd/salesreport/config"
	"github.com/graymonk/taobao-reconciliation-new/internal/resolver"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// aliasesCmd represents the aliases command
var aliasesCmd = &cobra.Command{
	Use:   "aliases",
	Short: "List the column aliases used to read orders and products",
	Long: `Aliases prints, for every logical field, the column headers that are
tried in order. Configuration overrides under aliases.orders and
aliases.products are applied.

Override a field in salesreport.yaml:

  aliases:
    orders:
      selling_price: [实收款, 商家实收金额]
    products:
      cost: [采购价]`,
	RunE: func(cmd *cobra.Command, args []string) error {
		orders, err := config.CreateAliases(viper.GetViper(), config.KeyOrderAliases, resolver.DefaultOrderAliases())
		if err != nil {
			return err
		}
		products, err := config.CreateAliases(viper.GetViper(), config.KeyProductAliases, resolver.DefaultProductAliases())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printAliasTable(out, "orders", orders)
		fmt.Fprintln(out)
		printAliasTable(out, "products", products)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(aliasesCmd)
}

func printAliasTable(w io.Writer, name string, table resolver.AliasTable) {
	fmt.Fprintf(w, "%s:\n", name)
	for _, field := range table.Fields() {
		fmt.Fprintf(w, "  %-16s %s\n", field, strings.Join(table.Get(field), ", "))
	}
}
