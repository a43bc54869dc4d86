package pipeline

import (
	"testing"

	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/ajitpratap0/formsync/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubmission(t *testing.T) {
	want := core.FieldMapping{
		"checkbox_newsletter": {Target: "subscribed_bool", SourceWidgetType: core.WidgetCheckboxGroup},
	}

	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "mapping object",
			doc: `{"provider":"drip","email":"a@b.com","target_list_id":"42",
				"fields":{"checkbox_newsletter":["on"],"age":31,"vip":true},
				"mapping":{"checkbox_newsletter":{"target":"subscribed_bool","source_widget_type":"checkbox-group"},
				           "unused":{"target":""}}}`,
		},
		{
			name: "serialized mapping",
			doc: `{"provider":"drip","email":"a@b.com","target_list_id":"42",
				"fields":{"checkbox_newsletter":["on"],"age":31,"vip":true},
				"mapping":"{\"checkbox_newsletter\":{\"target\":\"subscribed_bool\",\"source_widget_type\":\"checkbox-group\"}}"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := ParseSubmission([]byte(tt.doc))
			require.NoError(t, err)

			assert.Equal(t, "drip", sub.Provider)
			assert.Equal(t, "42", sub.ListID)
			assert.Equal(t, want, sub.Mapping)
			assert.Equal(t, []string{"on"}, sub.Fields["checkbox_newsletter"].Strings())
			assert.Equal(t, []string{"31"}, sub.Fields["age"].Strings())
			assert.Equal(t, []string{"true"}, sub.Fields["vip"].Strings())
		})
	}
}

func TestParseSubmission_Invalid(t *testing.T) {
	for _, doc := range []string{
		`{"email":`,
		`{"mapping":{"a":{"target":"b","source_widget_type":"slider"}}}`,
		`{"mapping":"not json"}`,
	} {
		_, err := ParseSubmission([]byte(doc))
		require.Error(t, err, doc)
		assert.True(t, errors.IsKind(err, errors.KindValidation), doc)
	}
}

func TestSubmissionID(t *testing.T) {
	sub := Submission{}
	sub.ensureID()
	assert.Len(t, sub.ID, 36)

	kept := Submission{ID: "fixed"}
	kept.ensureID()
	assert.Equal(t, "fixed", kept.ID)
}
