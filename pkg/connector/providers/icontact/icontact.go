// Package icontact implements the iContact adapter over API 2.2. iContact
// has no upsert, reports per-item failures in 200 responses, and stores
// custom field values as top level contact attributes.
package icontact

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/ajitpratap0/formsync/pkg/connector/base"
	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/ajitpratap0/formsync/pkg/connector/fieldtype"
	"github.com/ajitpratap0/formsync/pkg/connector/registry"
	"github.com/ajitpratap0/formsync/pkg/errors"
)

const (
	// ProviderID is the registry id
	ProviderID = "icontact"
	// DefaultBaseURL is the iContact API root
	DefaultBaseURL = "https://app.icontact.com/icp"
	apiVersion     = "2.2"
)

// Mapper maps iContact field types
var Mapper = fieldtype.MustNew(ProviderID, []fieldtype.Entry{
	{Native: "text", Canonical: core.TypeText, Preferred: true},
	{Native: "number", Canonical: core.TypeNumber, Preferred: true},
	{Native: "decimalOne", Canonical: core.TypeNumber},
	{Native: "decimalTwo", Canonical: core.TypeNumber},
	{Native: "date", Canonical: core.TypeDate, Preferred: true},
	{Native: "checkbox", Canonical: core.TypeBoolean, Preferred: true},
})

var capabilities = core.Capabilities{
	FieldCreation:  true,
	MultiSeparator: ",",
	BooleanTrue:    "1",
	BooleanFalse:   "0",
	DateFormat:     "2006-01-02",
}

func init() {
	registry.MustRegister(registry.Descriptor{
		ID:           ProviderID,
		Name:         "iContact",
		RequiredKeys: []string{"app_id", "username", "password", "account_id", "client_folder_id"},
		Factory: func(deps registry.Deps) (core.ProviderClient, error) {
			return New(deps), nil
		},
	})
}

// Client is the iContact adapter
type Client struct {
	*base.Adapter
	auth   http.Header
	folder string
}

// New creates the adapter
func New(deps registry.Deps) *Client {
	creds := deps.Credentials
	return &Client{
		Adapter: base.NewAdapter(base.Config{
			ID:           ProviderID,
			BaseURL:      DefaultBaseURL,
			HTTP:         deps.NewHTTPClient(ProviderID),
			Logger:       deps.Logger,
			Capabilities: capabilities,
			Mapper:       Mapper,
			Settings:     deps.Settings,
		}),
		auth: http.Header{
			"Api-Version":  []string{apiVersion},
			"Api-Appid":    []string{creds.Get("app_id")},
			"Api-Username": []string{creds.Get("username")},
			"Api-Password": []string{creds.Get("password")},
		},
		folder: "/a/" + url.PathEscape(creds.Get("account_id")) + "/c/" + url.PathEscape(creds.Get("client_folder_id")),
	}
}

// result is embedded in every iContact response
type result struct {
	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
}

// check turns item-level failures into an error. want is the number of items
// that should have been returned.
func (r result) check(op string, got, want int) error {
	if got >= want && len(r.Errors) == 0 {
		return nil
	}
	msgs := append(append([]string(nil), r.Errors...), r.Warnings...)
	if len(msgs) == 0 {
		msgs = []string{"request accepted but no item was saved"}
	}
	return errors.FromBody(ProviderID, op, "", strings.Join(msgs, "; "))
}

type customField struct {
	CustomFieldID string `json:"customFieldId,omitempty"`
	PrivateName   string `json:"privateName"`
	DisplayToUser int    `json:"displayToUser"`
	FieldType     string `json:"fieldType"`
}

func (f customField) descriptor() core.CustomFieldDescriptor {
	id := f.CustomFieldID
	if id == "" {
		id = f.PrivateName
	}
	return core.CustomFieldDescriptor{
		ID:         id,
		Type:       Mapper.ToCanonical(f.FieldType),
		Label:      f.PrivateName,
		NativeType: f.FieldType,
	}
}

// TestConnection implements core.ProviderClient
func (c *Client) TestConnection(ctx context.Context) error {
	var out struct {
		result
		ClientFolder map[string]interface{} `json:"clientfolder"`
	}
	if err := c.ReadJSON(ctx, "test_connection", c.folder, nil, c.auth, &out); err != nil {
		return err
	}
	return out.check("test_connection", len(out.ClientFolder), 1)
}

// ListTargets implements core.ProviderClient
func (c *Client) ListTargets(ctx context.Context) ([]core.Target, error) {
	var out struct {
		result
		Lists []struct {
			ListID string `json:"listId"`
			Name   string `json:"name"`
		} `json:"lists"`
	}
	q := url.Values{"limit": []string{"500"}}
	if err := c.ReadJSON(ctx, "list_targets", c.folder+"/lists", q, c.auth, &out); err != nil {
		return nil, err
	}
	if err := out.check("list_targets", 0, 0); err != nil {
		return nil, err
	}
	targets := make([]core.Target, 0, len(out.Lists))
	for _, l := range out.Lists {
		targets = append(targets, core.Target{ID: l.ListID, Name: l.Name})
	}
	return targets, nil
}

// FetchFieldSchema implements core.ProviderClient
func (c *Client) FetchFieldSchema(ctx context.Context) ([]core.CustomFieldDescriptor, error) {
	var out struct {
		result
		CustomFields []customField `json:"customfields"`
	}
	q := url.Values{"limit": []string{"500"}}
	if err := c.ReadJSON(ctx, "fetch_field_schema", c.folder+"/customfields", q, c.auth, &out); err != nil {
		return nil, err
	}
	if err := out.check("fetch_field_schema", 0, 0); err != nil {
		return nil, err
	}
	fields := make([]core.CustomFieldDescriptor, 0, len(out.CustomFields))
	for _, f := range out.CustomFields {
		fields = append(fields, f.descriptor())
	}
	return fields, nil
}

// CreateField implements core.ProviderClient. Select types have no iContact
// equivalent and are created as text.
func (c *Client) CreateField(ctx context.Context, req core.FieldRequest) (core.CustomFieldDescriptor, error) {
	const op = "create_field"

	in := []customField{{
		PrivateName:   base.Slug(req.Label),
		DisplayToUser: 1,
		FieldType:     Mapper.ToProviderNative(req.Type),
	}}
	var out struct {
		result
		CustomFields []customField `json:"customfields"`
	}
	if err := c.WriteJSON(ctx, op, http.MethodPost, c.folder+"/customfields", c.auth, in, &out); err != nil {
		return core.CustomFieldDescriptor{}, err
	}
	if err := out.check(op, len(out.CustomFields), 1); err != nil {
		return core.CustomFieldDescriptor{}, err
	}
	d := out.CustomFields[0].descriptor()
	d.Label = req.Label
	return d, nil
}

// FindSubscriberByEmail implements core.ProviderClient
func (c *Client) FindSubscriberByEmail(ctx context.Context, email string) (string, error) {
	var out struct {
		result
		Contacts []struct {
			ContactID string `json:"contactId"`
			Email     string `json:"email"`
		} `json:"contacts"`
	}
	q := url.Values{"email": []string{email}}
	if err := c.ReadJSON(ctx, "find_subscriber", c.folder+"/contacts", q, c.auth, &out); err != nil {
		return "", err
	}
	for _, ct := range out.Contacts {
		if strings.EqualFold(ct.Email, email) {
			return ct.ContactID, nil
		}
	}
	return "", nil
}

type contactResult struct {
	result
	Contacts []struct {
		ContactID string `json:"contactId"`
	} `json:"contacts"`
	Contact *struct {
		ContactID string `json:"contactId"`
	} `json:"contact"`
}

// UpsertSubscriber implements core.ProviderClient. Only core attributes are
// written here; custom fields go through WriteCustomFields.
func (c *Client) UpsertSubscriber(ctx context.Context, rec *core.SubscriberRecord) (core.UpsertOutcome, error) {
	const op = "upsert_subscriber"

	attrs := map[string]string{"email": rec.Email}
	if v := rec.FirstName(); v != "" {
		attrs["firstName"] = v
	}
	if v := rec.LastName(); v != "" {
		attrs["lastName"] = v
	}
	if rec.Phone != "" {
		attrs["phone"] = rec.Phone
	}

	if rec.ExistingID != "" {
		if err := c.updateContact(ctx, op, rec.ExistingID, attrs); err != nil {
			return core.UpsertOutcome{}, err
		}
		return core.UpsertOutcome{ID: rec.ExistingID}, nil
	}

	var out contactResult
	if err := c.WriteJSON(ctx, op, http.MethodPost, c.folder+"/contacts", c.auth, []map[string]string{attrs}, &out); err != nil {
		return core.UpsertOutcome{}, err
	}
	if err := out.check(op, len(out.Contacts), 1); err != nil {
		return core.UpsertOutcome{}, err
	}
	return core.UpsertOutcome{ID: out.Contacts[0].ContactID, Created: true}, nil
}

// WriteCustomFields implements core.FieldWriter
func (c *Client) WriteCustomFields(ctx context.Context, recordID string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	return c.updateContact(ctx, "write_custom_fields", recordID, values)
}

func (c *Client) updateContact(ctx context.Context, op, id string, attrs map[string]string) error {
	var out contactResult
	path := c.folder + "/contacts/" + url.PathEscape(id)
	if err := c.WriteJSON(ctx, op, http.MethodPost, path, c.auth, attrs, &out); err != nil {
		return err
	}
	saved := 0
	if out.Contact != nil {
		saved = 1
	}
	return out.check(op, saved, 1)
}

// AttachToList implements core.ProviderClient
func (c *Client) AttachToList(ctx context.Context, recordID, listID string) error {
	const op = "attach_to_list"

	in := []map[string]string{{"contactId": recordID, "listId": listID, "status": "normal"}}
	var out struct {
		result
		Subscriptions []map[string]interface{} `json:"subscriptions"`
		Failed        []string                 `json:"failed"`
	}
	if err := c.WriteJSON(ctx, op, http.MethodPost, c.folder+"/subscriptions", c.auth, in, &out); err != nil {
		return err
	}
	if len(out.Failed) > 0 {
		return errors.Newf(errors.KindProviderRejected, "subscription of %s to list %s failed", recordID, listID).
			WithProvider(ProviderID, op).
			WithDiagnostic(strings.Join(append(out.Warnings, out.Failed...), "; "))
	}
	return out.check(op, len(out.Subscriptions), 1)
}

var _ core.FieldWriter = (*Client)(nil)
