package core

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/ajitpratap0/formsync/pkg/json"
)

// CanonicalType is the provider-agnostic field type vocabulary
type CanonicalType string

const (
	TypeText         CanonicalType = "text"
	TypeNumber       CanonicalType = "number"
	TypeDate         CanonicalType = "date"
	TypeDateTime     CanonicalType = "datetime"
	TypeBoolean      CanonicalType = "boolean"
	TypeSingleSelect CanonicalType = "single-select"
	TypeMultiSelect  CanonicalType = "multi-select"
)

// CanonicalTypes lists every canonical type
var CanonicalTypes = []CanonicalType{
	TypeText, TypeNumber, TypeDate, TypeDateTime, TypeBoolean, TypeSingleSelect, TypeMultiSelect,
}

// Valid reports whether t is one of the canonical types
func (t CanonicalType) Valid() bool {
	switch t {
	case TypeText, TypeNumber, TypeDate, TypeDateTime, TypeBoolean, TypeSingleSelect, TypeMultiSelect:
		return true
	}
	return false
}

// WidgetType says how a raw submitted value must be read, independent of the target field type
type WidgetType string

const (
	WidgetCheckboxGroup WidgetType = "checkbox-group"
	WidgetSingleSelect  WidgetType = "single-select"
	WidgetFreeText      WidgetType = "free-text"
	WidgetBooleanToggle WidgetType = "boolean-toggle"
)

// Valid reports whether w is a known widget type
func (w WidgetType) Valid() bool {
	switch w {
	case WidgetCheckboxGroup, WidgetSingleSelect, WidgetFreeText, WidgetBooleanToggle:
		return true
	}
	return false
}

// Credentials is the opaque key/value credential map of one provider
type Credentials map[string]string

// Get returns the trimmed value for key
func (c Credentials) Get(key string) string {
	return strings.TrimSpace(c[key])
}

// Clone returns a copy
func (c Credentials) Clone() Credentials {
	out := make(Credentials, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Target is a list, group, or campaign a subscriber can be attached to
type Target struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CustomFieldDescriptor describes one custom field of a provider schema
type CustomFieldDescriptor struct {
	ID         string        `json:"id"`
	Type       CanonicalType `json:"canonical_type"`
	Label      string        `json:"label"`
	NativeType string        `json:"provider_native_type"`
	Options    []string      `json:"options,omitempty"`
}

// FieldRequest asks a provider to create a custom field
type FieldRequest struct {
	Label   string
	Type    CanonicalType
	Options []string
}

// MappingEntry routes one form field to a provider field
type MappingEntry struct {
	Target           string     `json:"target"`
	SourceWidgetType WidgetType `json:"source_widget_type"`
}

// FieldMapping maps form field names to provider fields
type FieldMapping map[string]MappingEntry

// ParseFieldMapping decodes the serialized mapping a form carries. Entries
// with an empty target are dropped; unknown widget types are rejected.
func ParseFieldMapping(data []byte) (FieldMapping, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return FieldMapping{}, nil
	}

	var raw FieldMapping
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid field mapping: %w", err)
	}

	out := make(FieldMapping, len(raw))
	for name, entry := range raw {
		entry.Target = strings.TrimSpace(entry.Target)
		if entry.Target == "" {
			continue
		}
		if entry.SourceWidgetType == "" {
			entry.SourceWidgetType = WidgetFreeText
		}
		if !entry.SourceWidgetType.Valid() {
			return nil, fmt.Errorf("form field %q: unknown source_widget_type %q", name, entry.SourceWidgetType)
		}
		out[name] = entry
	}
	return out, nil
}

// Value is a raw submitted form value: a string, a list of strings, or a boolean
type Value struct {
	strings []string
	boolean *bool
}

// StringValue wraps a single string
func StringValue(s string) Value {
	return Value{strings: []string{s}}
}

// ListValue wraps a multi-value submission
func ListValue(v ...string) Value {
	return Value{strings: append([]string(nil), v...)}
}

// BoolValue wraps a boolean
func BoolValue(b bool) Value {
	return Value{boolean: &b}
}

// Strings returns the submitted values in order. A boolean yields "true" or nothing.
func (v Value) Strings() []string {
	if v.boolean != nil {
		if *v.boolean {
			return []string{"true"}
		}
		return nil
	}
	return v.strings
}

// Empty reports whether the value carries nothing: no strings, only blank
// strings, or a false boolean.
func (v Value) Empty() bool {
	for _, s := range v.Strings() {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}

// UnmarshalJSON accepts a string, number, boolean, array, or null
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.UnmarshalNumber(data, &raw); err != nil {
		return err
	}

	switch t := raw.(type) {
	case nil:
		*v = Value{}
	case string:
		*v = StringValue(t)
	case bool:
		*v = BoolValue(t)
	case json.Number:
		*v = StringValue(t.String())
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, err := scalarString(e)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		*v = ListValue(out...)
	default:
		return fmt.Errorf("unsupported form value %T", raw)
	}
	return nil
}

// MarshalJSON writes a boolean, a single string, or an array
func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case v.boolean != nil:
		return json.Marshal(*v.boolean)
	case len(v.strings) == 1:
		return json.Marshal(v.strings[0])
	default:
		return json.Marshal(v.Strings())
	}
}

func scalarString(e interface{}) (string, error) {
	switch s := e.(type) {
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	case bool:
		return strconv.FormatBool(s), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("unsupported form value element %T", e)
	}
}

// SubscriberRecord is the normalized subscriber sent to a provider
type SubscriberRecord struct {
	Email        string            `json:"email"`
	DisplayName  string            `json:"display_name,omitempty"`
	Phone        string            `json:"phone,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	ListID       string            `json:"target_list_id"`

	// ExistingID is the provider record id found by an existence probe, empty for new subscribers
	ExistingID string `json:"existing_id,omitempty"`
}

// AddTag appends tag unless it is blank or already present
func (r *SubscriberRecord) AddTag(tag string) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return
	}
	for _, t := range r.Tags {
		if t == tag {
			return
		}
	}
	r.Tags = append(r.Tags, tag)
}

// FirstName returns DisplayName up to the first space
func (r *SubscriberRecord) FirstName() string {
	first, _ := splitName(r.DisplayName)
	return first
}

// LastName returns everything after the first space of DisplayName
func (r *SubscriberRecord) LastName() string {
	_, last := splitName(r.DisplayName)
	return last
}

func splitName(name string) (string, string) {
	name = strings.TrimSpace(name)
	if i := strings.IndexByte(name, ' '); i >= 0 {
		return name[:i], strings.TrimSpace(name[i+1:])
	}
	return name, ""
}

// UpsertOutcome is what a provider reports for an upsert
type UpsertOutcome struct {
	ID      string
	Created bool
}
