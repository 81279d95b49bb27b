package parsers

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// EncodingAuto detects UTF-8 (with or without BOM) and falls back to GB18030
const EncodingAuto = "auto"

// DefaultMaxFieldRunes is the longest cell value kept before truncation
const DefaultMaxFieldRunes = 10000

// Config holds configuration for loading tabular files
type Config struct {
	// Encoding is "auto" or a WHATWG encoding label such as "gbk" or "utf-8"
	Encoding string `json:"encoding" mapstructure:"encoding"`

	// Sheet selects the XLSX sheet by name; empty means the first sheet
	Sheet string `json:"sheet" mapstructure:"sheet"`

	// Delimiter separates CSV fields
	Delimiter rune `json:"delimiter" mapstructure:"delimiter"`

	// MaxFieldRunes truncates longer cell values
	MaxFieldRunes int `json:"max_field_runes" mapstructure:"max_field_runes"`

	// SampleBytes is how much of a CSV file is inspected by auto detection
	SampleBytes int `json:"sample_bytes" mapstructure:"sample_bytes"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Encoding:      EncodingAuto,
		Delimiter:     ',',
		MaxFieldRunes: DefaultMaxFieldRunes,
		SampleBytes:   64 * 1024,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := c.encoding(); err != nil {
		return err
	}

	if c.Delimiter == 0 || c.Delimiter == '\r' || c.Delimiter == '\n' || c.Delimiter == '"' {
		return fmt.Errorf("invalid CSV delimiter %q", c.Delimiter)
	}

	if c.MaxFieldRunes <= 0 {
		return fmt.Errorf("max field length must be positive, got %d", c.MaxFieldRunes)
	}

	if c.SampleBytes <= 0 {
		return fmt.Errorf("sample size must be positive, got %d", c.SampleBytes)
	}

	return nil
}

// encoding resolves the configured label. Auto detection returns nil.
func (c *Config) encoding() (encoding.Encoding, error) {
	label := strings.ToLower(strings.TrimSpace(c.Encoding))
	if label == "" || label == EncodingAuto {
		return nil, nil
	}

	// GB18030 is a superset of GBK and GB2312
	switch label {
	case "gb18030", "gb2312", "gbk", "cp936":
		return simplifiedchinese.GB18030, nil
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", c.Encoding, err)
	}
	return enc, nil
}
