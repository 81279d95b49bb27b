package reporter

import (
	"fmt"
	"strings"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
	FormatXLSX    OutputFormat = "xlsx"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV, FormatXLSX:
		return true
	default:
		return false
	}
}

// Extension returns the file extension used for the format
func (f OutputFormat) Extension() string {
	if f == FormatConsole {
		return "txt"
	}
	return string(f)
}

// ParseFormat converts a format name to an OutputFormat
func ParseFormat(s string) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", fmt.Errorf("unknown output format %q (valid: console, json, csv, xlsx)", s)
	}
	return f, nil
}

// Section is one part of the report
type Section string

const (
	SectionSummary  Section = "summary"
	SectionDetails  Section = "details"
	SectionProducts Section = "products"
	SectionRisks    Section = "risks"
	SectionFilter   Section = "filter"
)

// AllSections lists every section in report order
var AllSections = []Section{SectionSummary, SectionDetails, SectionProducts, SectionRisks, SectionFilter}

// Title returns the Chinese title, also used as the XLSX sheet name
func (s Section) Title() string {
	switch s {
	case SectionSummary:
		return "总览"
	case SectionDetails:
		return "明细"
	case SectionProducts:
		return "商品统计"
	case SectionRisks:
		return "风险分析"
	case SectionFilter:
		return "过滤统计"
	default:
		return string(s)
	}
}

// IsValid checks if the section is known
func (s Section) IsValid() bool {
	for _, known := range AllSections {
		if s == known {
			return true
		}
	}
	return false
}

// ParseSections converts section names. An empty list selects all sections.
func ParseSections(names []string) ([]Section, error) {
	if len(names) == 0 {
		return append([]Section(nil), AllSections...), nil
	}

	seen := make(map[Section]bool, len(names))
	sections := make([]Section, 0, len(names))
	for _, name := range names {
		s := Section(strings.ToLower(strings.TrimSpace(name)))
		if s == "" || seen[s] {
			continue
		}
		if !s.IsValid() {
			return nil, fmt.Errorf("unknown report section %q", name)
		}
		seen[s] = true
		sections = append(sections, s)
	}
	return sections, nil
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format   OutputFormat `json:"format" mapstructure:"format"`
	Sections []Section    `json:"sections" mapstructure:"sections"`

	// MaxConsoleRows limits the detail rows printed by the console format
	MaxConsoleRows int `json:"max_console_rows" mapstructure:"max_console_rows"`

	// CSVDelimiter separates CSV fields
	CSVDelimiter rune `json:"csv_delimiter" mapstructure:"csv_delimiter"`

	// IncludeWarnings appends pipeline warnings to console and JSON output
	IncludeWarnings bool `json:"include_warnings" mapstructure:"include_warnings"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:          FormatConsole,
		Sections:        append([]Section(nil), AllSections...),
		MaxConsoleRows:  20,
		CSVDelimiter:    ',',
		IncludeWarnings: true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if len(c.Sections) == 0 {
		return fmt.Errorf("at least one report section is required")
	}
	for _, s := range c.Sections {
		if !s.IsValid() {
			return fmt.Errorf("invalid report section: %s", s)
		}
	}

	if c.MaxConsoleRows < 0 {
		return fmt.Errorf("max console rows cannot be negative, got %d", c.MaxConsoleRows)
	}

	if c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n' || c.CSVDelimiter == '\r' {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}

	return nil
}

// includes reports whether section s is selected
func (c *ReportConfig) includes(s Section) bool {
	for _, selected := range c.Sections {
		if selected == s {
			return true
		}
	}
	return false
}
