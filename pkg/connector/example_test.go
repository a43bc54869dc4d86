// Package connector provides examples of using the formsync connector layer.
package connector_test

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ajitpratap0/formsync/pkg/config"
	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/ajitpratap0/formsync/pkg/connector/normalize"
	"github.com/ajitpratap0/formsync/pkg/connector/providertest"
	"github.com/ajitpratap0/formsync/pkg/connector/validate"
	"github.com/ajitpratap0/formsync/pkg/pipeline"
	"github.com/ajitpratap0/formsync/pkg/schema"
)

type single struct {
	client core.ProviderClient
}

func (s single) Client(context.Context, string) (core.ProviderClient, error) {
	return s.client, nil
}

// Example runs one submission through the pipeline against an in-memory provider.
func Example() {
	stub := providertest.New("demo", core.Capabilities{AtomicUpsert: true, CombinedWrite: true, ListInUpsert: true}).
		WithTargets(core.Target{ID: "42", Name: "Newsletter"}).
		WithFields(core.CustomFieldDescriptor{ID: "subscribed_bool", Type: core.TypeBoolean})

	mapping, err := core.ParseFieldMapping([]byte(`{"checkbox_newsletter":{"target":"subscribed_bool","source_widget_type":"checkbox-group"}}`))
	if err != nil {
		fmt.Println(err)
		return
	}

	cfg := config.Default()
	schemas := schema.New(cfg.SchemaCache, schema.WithLogger(zap.NewNop()))
	p := pipeline.New(cfg, single{stub}, schemas, pipeline.WithLogger(zap.NewNop()))

	res, err := p.Run(context.Background(), pipeline.Submission{
		Provider: "demo",
		Email:    "a@b.com",
		ListID:   "42",
		Fields:   map[string]core.Value{"checkbox_newsletter": core.ListValue("on")},
		Mapping:  mapping,
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println(res.Succeeded, res.Record.CustomFields["subscribed_bool"], stub.WriteCalls())
	// Output: true true 1
}

// Example_normalize shows how the target type decides the encoding.
func Example_normalize() {
	n := normalize.New(normalize.Encoding{Separator: ";", True: "1", False: "0"})

	multi, _ := n.Normalize("interests", core.ListValue("A", "B", "A"), core.WidgetCheckboxGroup, core.TypeMultiSelect)
	flag, _ := n.Normalize("newsletter", core.ListValue("on"), core.WidgetCheckboxGroup, core.TypeBoolean)
	text, _ := n.Normalize("interests", core.ListValue("A", "B"), core.WidgetCheckboxGroup, core.TypeText)

	fmt.Println(multi)
	fmt.Println(flag)
	fmt.Println(text)
	// Output:
	// A;B
	// 1
	// A, B
}

// Example_validate checks a mapping before anything is sent.
func Example_validate() {
	fields := []core.CustomFieldDescriptor{{ID: "company", Type: core.TypeText}}
	mapping := core.FieldMapping{
		"org": {Target: "company", SourceWidgetType: core.WidgetFreeText},
		"zip": {Target: "postcode", SourceWidgetType: core.WidgetFreeText},
	}

	for _, err := range validate.Connection(mapping, fields, "99", []string{"42"}) {
		fmt.Println(err)
	}
	// Output:
	// validation_error: target list "99" does not exist
	// schema_error: form field "zip" maps to unknown provider field "postcode"
}
