// Package normalize converts raw form values into the encoding a provider
// expects for the target field's canonical type.
//
// The target type decides the encoding. The source widget only matters when
// the target is plain text, where it selects between a joined list, a boolean
// literal, and the raw string.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/formsync/pkg/config"
	"github.com/ajitpratap0/formsync/pkg/connector/core"
)

// Default encodings used when neither the adapter nor configuration sets one
const (
	DefaultSeparator      = ","
	DefaultTrue           = "true"
	DefaultFalse          = "false"
	DefaultDateFormat     = "2006-01-02"
	DefaultDateTimeFormat = time.RFC3339

	// textJoin joins a multi-value submission stored in a text field
	textJoin = ", "
)

// dateLayouts are tried in order. Slashed dates read month first and dashed
// or dotted dates read day first.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02",
	"01/02/2006",
	"01/02/2006 15:04",
	"1/2/2006",
	"02-01-2006",
	"02.01.2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"20060102",
}

// Encoding is how one provider wants normalized values written
type Encoding struct {
	Separator      string
	True           string
	False          string
	DateFormat     string
	DateTimeFormat string
}

// EncodingFor merges adapter capabilities with configured overrides.
// Configuration wins, then the adapter, then package defaults.
func EncodingFor(caps core.Capabilities, settings config.ProviderSettings) Encoding {
	return Encoding{
		Separator:      firstNonEmpty(settings.MultiSeparator, caps.MultiSeparator, DefaultSeparator),
		True:           firstNonEmpty(settings.BooleanTrue, caps.BooleanTrue, DefaultTrue),
		False:          firstNonEmpty(settings.BooleanFalse, caps.BooleanFalse, DefaultFalse),
		DateFormat:     firstNonEmpty(settings.DateFormat, caps.DateFormat, DefaultDateFormat),
		DateTimeFormat: firstNonEmpty(settings.DateTimeFormat, caps.DateTimeFormat, DefaultDateTimeFormat),
	}
}

// Diagnostic is a non-fatal note about a value that was altered or passed through
type Diagnostic struct {
	Field   string
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s", d.Field, d.Message)
}

// Normalizer applies one provider's Encoding
type Normalizer struct {
	enc Encoding
}

// New creates a normalizer; zero fields of enc take package defaults
func New(enc Encoding) *Normalizer {
	enc.Separator = firstNonEmpty(enc.Separator, DefaultSeparator)
	enc.True = firstNonEmpty(enc.True, DefaultTrue)
	enc.False = firstNonEmpty(enc.False, DefaultFalse)
	enc.DateFormat = firstNonEmpty(enc.DateFormat, DefaultDateFormat)
	enc.DateTimeFormat = firstNonEmpty(enc.DateTimeFormat, DefaultDateTimeFormat)
	return &Normalizer{enc: enc}
}

// Encoding returns the effective encoding
func (n *Normalizer) Encoding() Encoding {
	return n.enc
}

// Normalize encodes raw for a field of type target. It never fails; values it
// cannot convert pass through unchanged with a diagnostic.
func (n *Normalizer) Normalize(field string, raw core.Value, widget core.WidgetType, target core.CanonicalType) (string, []Diagnostic) {
	switch target {
	case core.TypeBoolean:
		return n.Bool(raw), nil
	case core.TypeSingleSelect:
		return n.single(field, raw)
	case core.TypeMultiSelect:
		return n.Multi(raw), nil
	case core.TypeDate:
		return n.date(field, raw, n.enc.DateFormat)
	case core.TypeDateTime:
		return n.date(field, raw, n.enc.DateTimeFormat)
	case core.TypeNumber:
		return n.number(field, raw)
	default:
		return n.text(raw, widget), nil
	}
}

// Bool collapses any non-empty value to the true literal
func (n *Normalizer) Bool(raw core.Value) string {
	if raw.Empty() {
		return n.enc.False
	}
	return n.enc.True
}

// Multi deduplicates non-empty values, keeping first-seen order, and joins them
func (n *Normalizer) Multi(raw core.Value) string {
	return strings.Join(distinct(raw), n.enc.Separator)
}

func (n *Normalizer) single(field string, raw core.Value) (string, []Diagnostic) {
	values := nonEmpty(raw)
	switch len(values) {
	case 0:
		return "", nil
	case 1:
		return values[0], nil
	default:
		return values[0], []Diagnostic{{
			Field:   field,
			Message: fmt.Sprintf("single-select field received %d values; kept %q", len(values), values[0]),
		}}
	}
}

func (n *Normalizer) date(field string, raw core.Value, layout string) (string, []Diagnostic) {
	value, diags := n.single(field, raw)
	if value == "" {
		return "", diags
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, value); err == nil {
			return t.Format(layout), diags
		}
	}
	return value, append(diags, Diagnostic{
		Field:   field,
		Message: fmt.Sprintf("unrecognized date %q passed through unchanged", value),
	})
}

func (n *Normalizer) number(field string, raw core.Value) (string, []Diagnostic) {
	value, diags := n.single(field, raw)
	if value == "" {
		return "", diags
	}
	if _, err := strconv.ParseFloat(value, 64); err != nil {
		diags = append(diags, Diagnostic{
			Field:   field,
			Message: fmt.Sprintf("non-numeric value %q passed through unchanged", value),
		})
	}
	return value, diags
}

func (n *Normalizer) text(raw core.Value, widget core.WidgetType) string {
	switch widget {
	case core.WidgetBooleanToggle:
		return n.Bool(raw)
	case core.WidgetCheckboxGroup:
		return strings.Join(distinct(raw), textJoin)
	default:
		return strings.Join(nonEmpty(raw), textJoin)
	}
}

func nonEmpty(raw core.Value) []string {
	var out []string
	for _, s := range raw.Strings() {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func distinct(raw core.Value) []string {
	values := nonEmpty(raw)
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
