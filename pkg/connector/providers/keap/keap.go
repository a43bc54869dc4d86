// Package keap implements the legacy Keap (Infusionsoft) adapter over
// XML-RPC. Every call passes the API key as its first parameter, custom
// fields are DataFormField rows, and contact groups double as both lists
// and tags.
package keap

import (
	"context"
	"strconv"
	"strings"

	"github.com/ajitpratap0/formsync/pkg/clients"
	"github.com/ajitpratap0/formsync/pkg/connector/base"
	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/ajitpratap0/formsync/pkg/connector/fieldtype"
	"github.com/ajitpratap0/formsync/pkg/connector/registry"
	"github.com/ajitpratap0/formsync/pkg/errors"
)

// ProviderID is the registry id
const ProviderID = "keap"

// contactFormID selects contact fields in DataFormField
const contactFormID = -1

// Mapper maps DataFormField.DataType codes
var Mapper = fieldtype.MustNew(ProviderID, []fieldtype.Entry{
	{Native: "15", Canonical: core.TypeText, Preferred: true}, // Text
	{Native: "16", Canonical: core.TypeText},                  // TextArea
	{Native: "1", Canonical: core.TypeText},                   // Phone
	{Native: "5", Canonical: core.TypeText},                   // State
	{Native: "10", Canonical: core.TypeText},                  // Name
	{Native: "18", Canonical: core.TypeText},                  // Website
	{Native: "19", Canonical: core.TypeText},                  // Email
	{Native: "12", Canonical: core.TypeNumber, Preferred: true},
	{Native: "11", Canonical: core.TypeNumber},
	{Native: "3", Canonical: core.TypeNumber},
	{Native: "4", Canonical: core.TypeNumber},
	{Native: "7", Canonical: core.TypeNumber},
	{Native: "14", Canonical: core.TypeDate, Preferred: true},
	{Native: "13", Canonical: core.TypeDateTime, Preferred: true},
	{Native: "6", Canonical: core.TypeBoolean, Preferred: true}, // YesNo
	{Native: "21", Canonical: core.TypeSingleSelect, Preferred: true},
	{Native: "20", Canonical: core.TypeSingleSelect},
	{Native: "17", Canonical: core.TypeMultiSelect, Preferred: true}, // ListBox
})

// dataTypeNames are the names addCustomField expects for preferred natives
var dataTypeNames = map[string]string{
	"15": "Text",
	"12": "WholeNumber",
	"14": "Date",
	"13": "DateTime",
	"6":  "YesNo",
	"21": "Dropdown",
	"17": "ListBox",
}

var capabilities = core.Capabilities{
	AtomicUpsert:   true,
	CombinedWrite:  true,
	FieldCreation:  true,
	MultiSeparator: ",",
	BooleanTrue:    "1",
	BooleanFalse:   "0",
	DateFormat:     "20060102T00:00:00",
	DateTimeFormat: clients.XMLRPCTimeLayout,
}

func init() {
	registry.MustRegister(registry.Descriptor{
		ID:           ProviderID,
		Name:         "Keap (Infusionsoft legacy)",
		RequiredKeys: []string{"app", "key"},
		Factory: func(deps registry.Deps) (core.ProviderClient, error) {
			return New(deps), nil
		},
	})
}

// Client is the Keap adapter
type Client struct {
	*base.Adapter
	rpc *clients.XMLRPCClient
	key string
}

// New creates the adapter
func New(deps registry.Deps) *Client {
	a := base.NewAdapter(base.Config{
		ID:           ProviderID,
		BaseURL:      "https://" + deps.Credentials.Get("app") + ".infusionsoft.com",
		HTTP:         deps.NewHTTPClient(ProviderID),
		Logger:       deps.Logger,
		Capabilities: capabilities,
		Mapper:       Mapper,
		Settings:     deps.Settings,
	})
	return &Client{
		Adapter: a,
		rpc:     clients.NewXMLRPCClient(a.HTTP(), a.URL("/api/xmlrpc", nil)),
		key:     deps.Credentials.Get("key"),
	}
}

func (c *Client) call(ctx context.Context, op, method string, params ...interface{}) (interface{}, error) {
	v, err := c.rpc.Call(ctx, op, method, append([]interface{}{c.key}, params...)...)
	return v, base.Boundary(ProviderID, op, err)
}

func (c *Client) query(ctx context.Context, op, table string, limit int, criteria map[string]interface{}, fields []string) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}
	err := c.Read(ctx, op, func(ctx context.Context) error {
		v, err := c.rpc.Call(ctx, op, "DataService.query", c.key, table, limit, 0, criteria, fields)
		if err != nil {
			return err
		}
		rows, err = asRows(op, v)
		return err
	})
	return rows, err
}

// TestConnection implements core.ProviderClient
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.query(ctx, "test_connection", "ContactGroup", 1, map[string]interface{}{"Id": "%"}, []string{"Id"})
	return err
}

// ListTargets implements core.ProviderClient
func (c *Client) ListTargets(ctx context.Context) ([]core.Target, error) {
	rows, err := c.query(ctx, "list_targets", "ContactGroup", 1000,
		map[string]interface{}{"Id": "%"}, []string{"Id", "GroupName"})
	if err != nil {
		return nil, err
	}
	targets := make([]core.Target, 0, len(rows))
	for _, r := range rows {
		id, _ := asInt(r["Id"])
		name, _ := r["GroupName"].(string)
		targets = append(targets, core.Target{ID: strconv.Itoa(id), Name: name})
	}
	return targets, nil
}

// FetchFieldSchema implements core.ProviderClient. Field values are written
// under the field name prefixed with an underscore.
func (c *Client) FetchFieldSchema(ctx context.Context) ([]core.CustomFieldDescriptor, error) {
	rows, err := c.query(ctx, "fetch_field_schema", "DataFormField", 1000,
		map[string]interface{}{"FormId": contactFormID},
		[]string{"Id", "Name", "Label", "DataType", "Values"})
	if err != nil {
		return nil, err
	}

	fields := make([]core.CustomFieldDescriptor, 0, len(rows))
	for _, r := range rows {
		name, _ := r["Name"].(string)
		if name == "" {
			continue
		}
		label, _ := r["Label"].(string)
		dataType, _ := asInt(r["DataType"])
		native := strconv.Itoa(dataType)

		d := core.CustomFieldDescriptor{
			ID:         "_" + name,
			Type:       Mapper.ToCanonical(native),
			Label:      label,
			NativeType: native,
		}
		if values, ok := r["Values"].(string); ok && values != "" {
			for _, v := range strings.Split(values, "\n") {
				if v = strings.TrimSpace(v); v != "" {
					d.Options = append(d.Options, v)
				}
			}
		}
		fields = append(fields, d)
	}
	return fields, nil
}

// CreateField implements core.ProviderClient. Keap places new fields under a
// form header, which must be configured.
func (c *Client) CreateField(ctx context.Context, req core.FieldRequest) (core.CustomFieldDescriptor, error) {
	const op = "create_field"

	header := c.Settings().FieldHeaderID
	if header == 0 {
		return core.CustomFieldDescriptor{}, errors.New(errors.KindValidation,
			"keap field creation needs providers.keap.field_header_id").WithProvider(ProviderID, op)
	}

	native := Mapper.ToProviderNative(req.Type)
	if _, err := c.call(ctx, op, "DataService.addCustomField", "Contact", req.Label, dataTypeNames[native], header); err != nil {
		return core.CustomFieldDescriptor{}, err
	}
	return core.CustomFieldDescriptor{
		ID:         "_" + fieldName(req.Label),
		Type:       req.Type,
		Label:      req.Label,
		NativeType: native,
		Options:    req.Options,
	}, nil
}

// fieldName is the name Keap derives from a field label
func fieldName(label string) string {
	var b strings.Builder
	for _, r := range label {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FindSubscriberByEmail implements core.ProviderClient
func (c *Client) FindSubscriberByEmail(ctx context.Context, email string) (string, error) {
	const op = "find_subscriber"

	var id string
	err := c.Read(ctx, op, func(ctx context.Context) error {
		v, err := c.rpc.Call(ctx, op, "ContactService.findByEmail", c.key, email, []string{"Id"})
		if err != nil {
			return err
		}
		rows, err := asRows(op, v)
		if err != nil || len(rows) == 0 {
			return err
		}
		if n, ok := asInt(rows[0]["Id"]); ok {
			id = strconv.Itoa(n)
		}
		return nil
	})
	return id, err
}

// UpsertSubscriber implements core.ProviderClient using addWithDupCheck,
// which merges into an existing contact with the same email.
func (c *Client) UpsertSubscriber(ctx context.Context, rec *core.SubscriberRecord) (core.UpsertOutcome, error) {
	const op = "upsert_subscriber"

	data := map[string]interface{}{"Email": rec.Email}
	if v := rec.FirstName(); v != "" {
		data["FirstName"] = v
	}
	if v := rec.LastName(); v != "" {
		data["LastName"] = v
	}
	if rec.Phone != "" {
		data["Phone1"] = rec.Phone
	}
	for k, v := range rec.CustomFields {
		data[k] = v
	}

	v, err := c.call(ctx, op, "ContactService.addWithDupCheck", data, "Email")
	if err != nil {
		return core.UpsertOutcome{}, err
	}
	id, ok := asInt(v)
	if !ok || id == 0 {
		return core.UpsertOutcome{}, errors.Newf(errors.KindProviderRejected, "addWithDupCheck returned %T", v).
			WithProvider(ProviderID, op)
	}
	return core.UpsertOutcome{ID: strconv.Itoa(id)}, nil
}

// AttachToList implements core.ProviderClient
func (c *Client) AttachToList(ctx context.Context, recordID, listID string) error {
	const op = "attach_to_list"

	group, err := strconv.Atoi(listID)
	if err != nil {
		return errors.Wrap(err, errors.KindValidation, "group id is not numeric").WithProvider(ProviderID, op)
	}
	return c.addToGroup(ctx, op, recordID, group)
}

func (c *Client) addToGroup(ctx context.Context, op, recordID string, group int) error {
	contact, err := strconv.Atoi(recordID)
	if err != nil {
		return errors.Wrap(err, errors.KindValidation, "contact id is not numeric").WithProvider(ProviderID, op)
	}
	v, err := c.call(ctx, op, "ContactService.addToGroup", contact, group)
	if err != nil {
		return err
	}
	if ok, _ := v.(bool); !ok {
		return errors.Newf(errors.KindProviderRejected, "contact %d was not added to group %d", contact, group).
			WithProvider(ProviderID, op)
	}
	return nil
}

// AddTags implements core.Tagger. Each tag is a contact group, created on
// first use.
func (c *Client) AddTags(ctx context.Context, recordID string, tags []string) error {
	const op = "add_tags"

	for _, tag := range tags {
		rows, err := c.query(ctx, op, "ContactGroup", 1, map[string]interface{}{"GroupName": tag}, []string{"Id"})
		if err != nil {
			return err
		}

		var group int
		if len(rows) > 0 {
			group, _ = asInt(rows[0]["Id"])
		} else {
			v, err := c.call(ctx, op, "DataService.add", "ContactGroup", map[string]interface{}{"GroupName": tag})
			if err != nil {
				return err
			}
			group, _ = asInt(v)
		}
		if group == 0 {
			return errors.Newf(errors.KindProviderRejected, "no group id for tag %q", tag).WithProvider(ProviderID, op)
		}

		if err := c.addToGroup(ctx, op, recordID, group); err != nil {
			return err
		}
	}
	return nil
}

func asRows(op string, v interface{}) ([]map[string]interface{}, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, errors.Newf(errors.KindProviderRejected, "expected an array, got %T", v).WithProvider(ProviderID, op)
	}
	rows := make([]map[string]interface{}, 0, len(list))
	for _, e := range list {
		m, ok := e.(map[string]interface{})
		if !ok {
			return nil, errors.Newf(errors.KindProviderRejected, "expected a struct, got %T", e).WithProvider(ProviderID, op)
		}
		rows = append(rows, m)
	}
	return rows, nil
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}

var _ core.Tagger = (*Client)(nil)
