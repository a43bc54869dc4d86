package core

import (
	"testing"

	"github.com/ajitpratap0/formsync/pkg/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldMapping(t *testing.T) {
	m, err := ParseFieldMapping([]byte(`{
		"checkbox_newsletter": {"target": "subscribed_bool", "source_widget_type": "checkbox-group"},
		"company": {"target": " company_name "},
		"unused": {"target": ""}
	}`))
	require.NoError(t, err)

	assert.Len(t, m, 2)
	assert.Equal(t, MappingEntry{Target: "subscribed_bool", SourceWidgetType: WidgetCheckboxGroup}, m["checkbox_newsletter"])
	assert.Equal(t, MappingEntry{Target: "company_name", SourceWidgetType: WidgetFreeText}, m["company"])
}

func TestParseFieldMapping_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"malformed", `{"a":`},
		{"unknown widget", `{"a":{"target":"x","source_widget_type":"slider"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFieldMapping([]byte(tt.input))
			assert.Error(t, err)
		})
	}

	m, err := ParseFieldMapping(nil)
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestValue_UnmarshalJSON(t *testing.T) {
	var form map[string]Value
	require.NoError(t, json.Unmarshal([]byte(`{"a":"x","b":["on","off"],"c":true,"d":false,"e":42,"f":null,"g":[1,""]}`), &form))

	assert.Equal(t, []string{"x"}, form["a"].Strings())
	assert.Equal(t, []string{"on", "off"}, form["b"].Strings())
	assert.Equal(t, []string{"true"}, form["c"].Strings())
	assert.True(t, form["d"].Empty())
	assert.Equal(t, []string{"42"}, form["e"].Strings())
	assert.True(t, form["f"].Empty())
	assert.Equal(t, []string{"1", ""}, form["g"].Strings())
}

func TestValue_MarshalJSON(t *testing.T) {
	out, err := json.Marshal(map[string]Value{"a": ListValue("x", "y"), "b": BoolValue(true), "c": StringValue("z")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":["x","y"],"b":true,"c":"z"}`, string(out))
}

func TestSubscriberRecord_AddTag(t *testing.T) {
	r := &SubscriberRecord{}
	r.AddTag("vip")
	r.AddTag(" vip ")
	r.AddTag("")
	r.AddTag("lead")
	assert.Equal(t, []string{"vip", "lead"}, r.Tags)
}

func TestSubscriberRecord_Names(t *testing.T) {
	r := &SubscriberRecord{DisplayName: "Ada  King Lovelace"}
	assert.Equal(t, "Ada", r.FirstName())
	assert.Equal(t, "King Lovelace", r.LastName())

	r.DisplayName = "Cher"
	assert.Equal(t, "Cher", r.FirstName())
	assert.Equal(t, "", r.LastName())
}

func TestCanonicalType_Valid(t *testing.T) {
	for _, ct := range CanonicalTypes {
		assert.True(t, ct.Valid(), ct)
	}
	assert.False(t, CanonicalType("currency").Valid())
}
