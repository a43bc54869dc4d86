// Package sendfox implements the SendFox adapter. SendFox contact fields are
// untyped text and cannot be created through the API.
package sendfox

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/ajitpratap0/formsync/pkg/connector/base"
	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/ajitpratap0/formsync/pkg/connector/fieldtype"
	"github.com/ajitpratap0/formsync/pkg/connector/registry"
	"github.com/ajitpratap0/formsync/pkg/errors"
)

const (
	// ProviderID is the registry id
	ProviderID = "sendfox"
	// DefaultBaseURL is the SendFox API root
	DefaultBaseURL = "https://api.sendfox.com"
)

// Mapper has a single native type
var Mapper = fieldtype.MustNew(ProviderID, []fieldtype.Entry{
	{Native: "text", Canonical: core.TypeText, Preferred: true},
})

var capabilities = core.Capabilities{
	AtomicUpsert:   true,
	CombinedWrite:  true,
	ListInUpsert:   true,
	MultiSeparator: ", ",
	BooleanTrue:    "yes",
	BooleanFalse:   "no",
}

func init() {
	registry.MustRegister(registry.Descriptor{
		ID:           ProviderID,
		Name:         "SendFox",
		RequiredKeys: []string{"key"},
		Factory: func(deps registry.Deps) (core.ProviderClient, error) {
			return New(deps), nil
		},
	})
}

// Client is the SendFox adapter
type Client struct {
	*base.Adapter
	auth http.Header
}

// New creates the adapter
func New(deps registry.Deps) *Client {
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
		auth: http.Header{"Authorization": []string{"Bearer " + deps.Credentials.Get("key")}},
	}
}

type page struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
}

type contact struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
}

type contactField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// TestConnection implements core.ProviderClient
func (c *Client) TestConnection(ctx context.Context) error {
	var out struct {
		ID int `json:"id"`
	}
	if err := c.ReadJSON(ctx, "test_connection", "/me", nil, c.auth, &out); err != nil {
		return err
	}
	if out.ID == 0 {
		return errors.New(errors.KindAuth, "token did not resolve to an account").
			WithProvider(ProviderID, "test_connection")
	}
	return nil
}

// ListTargets implements core.ProviderClient
func (c *Client) ListTargets(ctx context.Context) ([]core.Target, error) {
	var targets []core.Target
	for p := 1; ; p++ {
		var out struct {
			page
			Data []struct {
				ID   int    `json:"id"`
				Name string `json:"name"`
			} `json:"data"`
		}
		q := url.Values{"page": []string{strconv.Itoa(p)}}
		if err := c.ReadJSON(ctx, "list_targets", "/lists", q, c.auth, &out); err != nil {
			return nil, err
		}
		for _, l := range out.Data {
			targets = append(targets, core.Target{ID: strconv.Itoa(l.ID), Name: l.Name})
		}
		if out.CurrentPage >= out.LastPage {
			return targets, nil
		}
	}
}

// FetchFieldSchema implements core.ProviderClient
func (c *Client) FetchFieldSchema(ctx context.Context) ([]core.CustomFieldDescriptor, error) {
	var out struct {
		Data []struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := c.ReadJSON(ctx, "fetch_field_schema", "/contact-fields", nil, c.auth, &out); err != nil {
		return nil, err
	}
	fields := make([]core.CustomFieldDescriptor, 0, len(out.Data))
	for _, f := range out.Data {
		fields = append(fields, core.CustomFieldDescriptor{
			ID:         f.Name,
			Type:       core.TypeText,
			Label:      f.Name,
			NativeType: "text",
		})
	}
	return fields, nil
}

// CreateField implements core.ProviderClient
func (c *Client) CreateField(_ context.Context, req core.FieldRequest) (core.CustomFieldDescriptor, error) {
	return core.CustomFieldDescriptor{}, c.FieldCreationUnsupported(req)
}

// FindSubscriberByEmail implements core.ProviderClient
func (c *Client) FindSubscriberByEmail(ctx context.Context, email string) (string, error) {
	var out struct {
		Data []contact `json:"data"`
	}
	q := url.Values{"email": []string{email}}
	if err := c.ReadJSON(ctx, "find_subscriber", "/contacts", q, c.auth, &out); err != nil {
		return "", err
	}
	for _, ct := range out.Data {
		if ct.Email == email {
			return strconv.Itoa(ct.ID), nil
		}
	}
	return "", nil
}

// UpsertSubscriber implements core.ProviderClient. Creating a contact that
// already exists updates it and adds the given lists.
func (c *Client) UpsertSubscriber(ctx context.Context, rec *core.SubscriberRecord) (core.UpsertOutcome, error) {
	const op = "upsert_subscriber"

	in := map[string]interface{}{"email": rec.Email}
	if v := rec.FirstName(); v != "" {
		in["first_name"] = v
	}
	if v := rec.LastName(); v != "" {
		in["last_name"] = v
	}
	if rec.ListID != "" {
		id, err := strconv.Atoi(rec.ListID)
		if err != nil {
			return core.UpsertOutcome{}, errors.Wrap(err, errors.KindValidation, "list id is not numeric").
				WithProvider(ProviderID, op)
		}
		in["lists"] = []int{id}
	}
	if len(rec.CustomFields) > 0 {
		fields := make([]contactField, 0, len(rec.CustomFields))
		for _, name := range sortedKeys(rec.CustomFields) {
			fields = append(fields, contactField{Name: name, Value: rec.CustomFields[name]})
		}
		in["contact_fields"] = fields
	}

	var out struct {
		contact
		CreatedAt string `json:"created_at"`
		UpdatedAt string `json:"updated_at"`
	}
	if err := c.WriteJSON(ctx, op, http.MethodPost, "/contacts", c.auth, in, &out); err != nil {
		return core.UpsertOutcome{}, err
	}
	if out.ID == 0 {
		return core.UpsertOutcome{}, errors.New(errors.KindProviderRejected, "contact saved without an id").
			WithProvider(ProviderID, op)
	}
	return core.UpsertOutcome{
		ID:      strconv.Itoa(out.ID),
		Created: out.CreatedAt != "" && out.CreatedAt == out.UpdatedAt,
	}, nil
}

// AttachToList implements core.ProviderClient
func (c *Client) AttachToList(ctx context.Context, recordID, listID string) error {
	id, err := strconv.Atoi(recordID)
	if err != nil {
		return errors.Wrap(err, errors.KindValidation, "contact id is not numeric").
			WithProvider(ProviderID, "attach_to_list")
	}
	path := "/lists/" + url.PathEscape(listID) + "/contacts"
	return c.WriteJSON(ctx, "attach_to_list", http.MethodPost, path, c.auth, map[string]int{"contact_id": id}, nil)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
