package fieldtype

import (
	"testing"

	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleTable = []Entry{
	{Native: "string", Canonical: core.TypeText, Preferred: true},
	{Native: "textarea", Canonical: core.TypeText},
	{Native: "number", Canonical: core.TypeNumber, Preferred: true},
	{Native: "date", Canonical: core.TypeDate, Preferred: true},
	{Native: "bool", Canonical: core.TypeBoolean, Preferred: true},
	{Native: "select", Canonical: core.TypeSingleSelect, Preferred: true},
	{Native: "checkboxes", Canonical: core.TypeMultiSelect, Preferred: true},
}

func TestMapper_Defaults(t *testing.T) {
	m := MustNew("sample", sampleTable)

	assert.Equal(t, core.TypeText, m.ToCanonical("hologram"))
	assert.Equal(t, core.TypeText, m.ToCanonical(""))
	assert.Equal(t, core.TypeBoolean, m.ToCanonical(" BOOL "))
	// datetime has no native type of its own here
	assert.Equal(t, "string", m.ToProviderNative(core.TypeDateTime))
	assert.Equal(t, "string", m.ToProviderNative(core.CanonicalType("currency")))
}

func TestMapper_RoundTripConverges(t *testing.T) {
	m := MustNew("sample", sampleTable)

	for _, ct := range core.CanonicalTypes {
		t.Run(string(ct), func(t *testing.T) {
			once := m.ToProviderNative(ct)
			twice := m.ToProviderNative(m.ToCanonical(once))
			thrice := m.ToProviderNative(m.ToCanonical(twice))
			assert.Equal(t, twice, thrice)
		})
	}
}

func TestNew_RejectsMalformedTables(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
	}{
		{"no text", []Entry{{Native: "number", Canonical: core.TypeNumber, Preferred: true}}},
		{"unknown canonical", []Entry{{Native: "string", Canonical: "currency", Preferred: true}}},
		{"two preferred", []Entry{
			{Native: "string", Canonical: core.TypeText, Preferred: true},
			{Native: "text", Canonical: core.TypeText, Preferred: true},
		}},
		{"conflicting native", []Entry{
			{Native: "string", Canonical: core.TypeText, Preferred: true},
			{Native: "STRING", Canonical: core.TypeNumber},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("bad", tt.entries)
			require.Error(t, err)
		})
	}
}
