package config

import "fmt"

// ProviderSettings holds vendor-specific settings. Every field is optional;
// adapters fall back to their own defaults for zero values.
type ProviderSettings struct {
	// BaseURL overrides the vendor API root
	BaseURL string `yaml:"base_url" json:"base_url"`
	// MultiSeparator joins multi-select values
	MultiSeparator string `yaml:"multi_separator" json:"multi_separator"`
	// BooleanTrue and BooleanFalse are the literals written for boolean fields
	BooleanTrue  string `yaml:"boolean_true" json:"boolean_true"`
	BooleanFalse string `yaml:"boolean_false" json:"boolean_false"`
	// DateFormat is the Go layout dates are written in
	DateFormat string `yaml:"date_format" json:"date_format"`
	// DateTimeFormat is the Go layout datetimes are written in
	DateTimeFormat string `yaml:"datetime_format" json:"datetime_format"`
	// TagFallbackField names a native field that receives joined tags when the
	// vendor has no tag API. Off unless set.
	TagFallbackField string `yaml:"tag_fallback_field" json:"tag_fallback_field"`
	// FieldHeaderID is the form section new custom fields are created under
	FieldHeaderID int `yaml:"field_header_id" json:"field_header_id"`
}

// Validate checks the settings for obvious mistakes
func (p ProviderSettings) Validate() error {
	if (p.BooleanTrue == "") != (p.BooleanFalse == "") {
		return fmt.Errorf("boolean_true and boolean_false must be set together")
	}
	if p.BooleanTrue != "" && p.BooleanTrue == p.BooleanFalse {
		return fmt.Errorf("boolean_true and boolean_false must differ")
	}
	if p.FieldHeaderID < 0 {
		return fmt.Errorf("field_header_id cannot be negative")
	}
	return nil
}
