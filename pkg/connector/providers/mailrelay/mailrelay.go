// Package mailrelay implements the MailRelay adapter over its v1 REST API.
// Each account has its own API host, so credentials carry the account url.
package mailrelay

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ajitpratap0/formsync/pkg/connector/base"
	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/ajitpratap0/formsync/pkg/connector/fieldtype"
	"github.com/ajitpratap0/formsync/pkg/connector/registry"
	"github.com/ajitpratap0/formsync/pkg/errors"
)

// ProviderID is the registry id
const ProviderID = "mailrelay"

// Mapper maps MailRelay custom field types
var Mapper = fieldtype.MustNew(ProviderID, []fieldtype.Entry{
	{Native: "text", Canonical: core.TypeText, Preferred: true},
	{Native: "textarea", Canonical: core.TypeText},
	{Native: "number", Canonical: core.TypeNumber, Preferred: true},
	{Native: "date", Canonical: core.TypeDate, Preferred: true},
	{Native: "checkbox", Canonical: core.TypeBoolean, Preferred: true},
	{Native: "select", Canonical: core.TypeSingleSelect, Preferred: true},
	{Native: "radio_buttons", Canonical: core.TypeSingleSelect},
	{Native: "select_multiple", Canonical: core.TypeMultiSelect, Preferred: true},
	{Native: "checkbox_multiple", Canonical: core.TypeMultiSelect},
})

var capabilities = core.Capabilities{
	AtomicUpsert:   true,
	CombinedWrite:  true,
	ListInUpsert:   true,
	FieldCreation:  true,
	MultiSeparator: ",",
	BooleanTrue:    "1",
	BooleanFalse:   "0",
	DateFormat:     "2006-01-02",
}

func init() {
	registry.MustRegister(registry.Descriptor{
		ID:           ProviderID,
		Name:         "MailRelay",
		RequiredKeys: []string{"url", "key"},
		Factory: func(deps registry.Deps) (core.ProviderClient, error) {
			return New(deps)
		},
	})
}

// Client is the MailRelay adapter
type Client struct {
	*base.Adapter
	auth http.Header
}

// New creates the adapter. The account url may be given with or without
// scheme and API path.
func New(deps registry.Deps) (*Client, error) {
	baseURL, err := apiRoot(deps.Credentials.Get("url"))
	if err != nil {
		return nil, errors.Wrap(err, errors.KindAuth, "invalid MailRelay account url").
			WithProvider(ProviderID, "validate_credentials")
	}
	return &Client{
		Adapter: base.NewAdapter(base.Config{
			ID:           ProviderID,
			BaseURL:      baseURL,
			HTTP:         deps.NewHTTPClient(ProviderID),
			Logger:       deps.Logger,
			Capabilities: capabilities,
			Mapper:       Mapper,
			Settings:     deps.Settings,
		}),
		auth: http.Header{"X-AUTH-TOKEN": []string{deps.Credentials.Get("key")}},
	}, nil
}

func apiRoot(account string) (string, error) {
	if !strings.Contains(account, "://") {
		account = "https://" + account
	}
	u, err := url.Parse(account)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", errors.Newf(errors.KindAuth, "no host in %q", account)
	}
	return u.Scheme + "://" + u.Host + "/api/v1", nil
}

type customField struct {
	ID        int      `json:"id,omitempty"`
	Label     string   `json:"label"`
	Tag       string   `json:"tag,omitempty"`
	FieldType string   `json:"field_type"`
	Options   []string `json:"field_options,omitempty"`
}

func (f customField) descriptor() core.CustomFieldDescriptor {
	return core.CustomFieldDescriptor{
		ID:         fieldKey(f.ID),
		Type:       Mapper.ToCanonical(f.FieldType),
		Label:      f.Label,
		NativeType: f.FieldType,
		Options:    f.Options,
	}
}

// fieldKey is the key custom field values are written under
func fieldKey(id int) string {
	return "f_" + strconv.Itoa(id)
}

type subscriber struct {
	ID        int    `json:"id"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// TestConnection implements core.ProviderClient
func (c *Client) TestConnection(ctx context.Context) error {
	var out []map[string]interface{}
	q := url.Values{"per_page": []string{"1"}}
	return c.ReadJSON(ctx, "test_connection", "/groups", q, c.auth, &out)
}

// ListTargets implements core.ProviderClient
func (c *Client) ListTargets(ctx context.Context) ([]core.Target, error) {
	var targets []core.Target
	for page := 1; ; page++ {
		var out []struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		}
		q := url.Values{"page": []string{strconv.Itoa(page)}, "per_page": []string{"100"}}
		if err := c.ReadJSON(ctx, "list_targets", "/groups", q, c.auth, &out); err != nil {
			return nil, err
		}
		for _, g := range out {
			targets = append(targets, core.Target{ID: strconv.Itoa(g.ID), Name: g.Name})
		}
		if len(out) < 100 {
			return targets, nil
		}
	}
}

// FetchFieldSchema implements core.ProviderClient
func (c *Client) FetchFieldSchema(ctx context.Context) ([]core.CustomFieldDescriptor, error) {
	var out []customField
	q := url.Values{"per_page": []string{"250"}}
	if err := c.ReadJSON(ctx, "fetch_field_schema", "/custom_fields", q, c.auth, &out); err != nil {
		return nil, err
	}
	fields := make([]core.CustomFieldDescriptor, 0, len(out))
	for _, f := range out {
		fields = append(fields, f.descriptor())
	}
	return fields, nil
}

// CreateField implements core.ProviderClient
func (c *Client) CreateField(ctx context.Context, req core.FieldRequest) (core.CustomFieldDescriptor, error) {
	in := customField{
		Label:     req.Label,
		Tag:       base.Slug(req.Label),
		FieldType: Mapper.ToProviderNative(req.Type),
		Options:   req.Options,
	}
	var out customField
	if err := c.WriteJSON(ctx, "create_field", http.MethodPost, "/custom_fields", c.auth, in, &out); err != nil {
		return core.CustomFieldDescriptor{}, err
	}
	return out.descriptor(), nil
}

// FindSubscriberByEmail implements core.ProviderClient
func (c *Client) FindSubscriberByEmail(ctx context.Context, email string) (string, error) {
	var out []subscriber
	q := url.Values{"q[email_eq]": []string{email}}
	if err := c.ReadJSON(ctx, "find_subscriber", "/subscribers", q, c.auth, &out); err != nil {
		return "", err
	}
	if len(out) == 0 {
		return "", nil
	}
	return strconv.Itoa(out[0].ID), nil
}

// UpsertSubscriber implements core.ProviderClient using the sync endpoint,
// which creates or updates by email and sets groups in the same call.
func (c *Client) UpsertSubscriber(ctx context.Context, rec *core.SubscriberRecord) (core.UpsertOutcome, error) {
	const op = "upsert_subscriber"

	in := map[string]interface{}{
		"status": "active",
		"email":  rec.Email,
	}
	if rec.DisplayName != "" {
		in["name"] = rec.DisplayName
	}
	if rec.Phone != "" {
		in["sms_phone"] = rec.Phone
	}
	if len(rec.CustomFields) > 0 {
		in["custom_fields"] = rec.CustomFields
	}
	if rec.ListID != "" {
		id, err := groupID(rec.ListID, op)
		if err != nil {
			return core.UpsertOutcome{}, err
		}
		in["group_ids"] = []int{id}
	}

	var out subscriber
	if err := c.WriteJSON(ctx, op, http.MethodPost, "/subscribers/sync", c.auth, in, &out); err != nil {
		return core.UpsertOutcome{}, err
	}
	if out.ID == 0 {
		return core.UpsertOutcome{}, errors.New(errors.KindProviderRejected, "sync returned no subscriber id").
			WithProvider(ProviderID, op)
	}
	return core.UpsertOutcome{
		ID:      strconv.Itoa(out.ID),
		Created: out.CreatedAt != "" && out.CreatedAt == out.UpdatedAt,
	}, nil
}

// AttachToList implements core.ProviderClient
func (c *Client) AttachToList(ctx context.Context, recordID, listID string) error {
	const op = "attach_to_list"

	id, err := groupID(listID, op)
	if err != nil {
		return err
	}
	in := map[string]interface{}{"group_ids": []int{id}}
	return c.WriteJSON(ctx, op, http.MethodPatch, "/subscribers/"+url.PathEscape(recordID), c.auth, in, nil)
}

func groupID(listID, op string) (int, error) {
	id, err := strconv.Atoi(listID)
	if err != nil {
		return 0, errors.Wrap(err, errors.KindValidation, "group id is not numeric").WithProvider(ProviderID, op)
	}
	return id, nil
}
