// Package zoho implements the Zoho Campaigns adapter. Requests carry an
// OAuth2 access token obtained from a long-lived refresh token, parameters
// travel in the query string, and failures usually come back as HTTP 200
// with a status:error envelope.
package zoho

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ajitpratap0/formsync/pkg/clients"
	"github.com/ajitpratap0/formsync/pkg/connector/base"
	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/ajitpratap0/formsync/pkg/connector/fieldtype"
	"github.com/ajitpratap0/formsync/pkg/connector/registry"
	"github.com/ajitpratap0/formsync/pkg/errors"
	"github.com/ajitpratap0/formsync/pkg/json"
)

const (
	// ProviderID is the registry id
	ProviderID = "zoho"
	// DefaultBaseURL is the Campaigns API root
	DefaultBaseURL = "https://campaigns.zoho.com/api/v1.1"
	// DefaultAccountsURL issues tokens for the US data center
	DefaultAccountsURL = "https://accounts.zoho.com"
)

// Mapper maps Zoho UITYPE values
var Mapper = fieldtype.MustNew(ProviderID, []fieldtype.Entry{
	{Native: "Textfield", Canonical: core.TypeText, Preferred: true},
	{Native: "Textarea", Canonical: core.TypeText},
	{Native: "Email", Canonical: core.TypeText},
	{Native: "Phone", Canonical: core.TypeText},
	{Native: "Integer", Canonical: core.TypeNumber, Preferred: true},
	{Native: "Decimal", Canonical: core.TypeNumber},
	{Native: "Date", Canonical: core.TypeDate, Preferred: true},
	{Native: "DateTime", Canonical: core.TypeDateTime, Preferred: true},
	{Native: "Checkbox", Canonical: core.TypeBoolean, Preferred: true},
	{Native: "Picklist", Canonical: core.TypeSingleSelect, Preferred: true},
	{Native: "Radio", Canonical: core.TypeSingleSelect},
	{Native: "Multiselect", Canonical: core.TypeMultiSelect, Preferred: true},
})

var capabilities = core.Capabilities{
	AtomicUpsert:   true,
	CombinedWrite:  true,
	ListInUpsert:   true,
	MultiSeparator: ",",
	BooleanTrue:    "true",
	BooleanFalse:   "false",
	DateFormat:     "01/02/2006",
	DateTimeFormat: "01/02/2006 15:04:05",
}

// Core contact attributes, excluded from the custom field schema
var coreFields = map[string]bool{
	"Contact Email": true,
	"First Name":    true,
	"Last Name":     true,
	"Phone":         true,
}

func init() {
	registry.MustRegister(registry.Descriptor{
		ID:           ProviderID,
		Name:         "Zoho Campaigns",
		RequiredKeys: []string{"client_id", "client_secret", "refresh_token"},
		OptionalKeys: []string{"accounts_url"},
		Factory: func(deps registry.Deps) (core.ProviderClient, error) {
			return New(deps), nil
		},
	})
}

// Client is the Zoho Campaigns adapter
type Client struct {
	*base.Adapter
	tokens *clients.TokenSource
}

// New creates the adapter
func New(deps registry.Deps) *Client {
	creds := deps.Credentials
	accounts := creds.Get("accounts_url")
	if accounts == "" {
		accounts = DefaultAccountsURL
	}

	tokenClient := &http.Client{Timeout: deps.HTTP.RequestTimeout}
	if deps.Transport != nil {
		tokenClient.Transport = deps.Transport
	}

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
		tokens: clients.NewTokenSource(ProviderID, clients.OAuth2Config{
			ClientID:     creds.Get("client_id"),
			ClientSecret: creds.Get("client_secret"),
			TokenURL:     strings.TrimRight(accounts, "/") + "/oauth/v2/token",
			Scopes:       []string{"ZohoCampaigns.contact.ALL", "ZohoCampaigns.campaign.READ"},
		}, creds.Get("refresh_token"), tokenClient),
	}
}

// envelope is embedded in every response
type envelope struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e envelope) err(op string) error {
	if e.Status != "error" {
		return nil
	}
	return errors.FromBody(ProviderID, op, e.Code, e.Message)
}

// call sends one request and decodes the envelope into out, which must
// embed envelope.
func (c *Client) call(ctx context.Context, op, method, path string, q url.Values, out interface{ err(string) error }) error {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return err
	}
	if q == nil {
		q = url.Values{}
	}
	q.Set("resfmt", "JSON")

	resp, err := c.HTTP().Send(ctx, &clients.Request{
		Op:     op,
		Method: method,
		URL:    c.URL(path, q),
		Header: http.Header{"Authorization": []string{"Zoho-oauthtoken " + token}},
	})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return errors.FromStatus(ProviderID, op, resp.Status, resp.Body)
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return errors.FromDecode(ProviderID, op, resp.Body, err)
	}
	return out.err(op)
}

func (c *Client) read(ctx context.Context, op, path string, q url.Values, out interface{ err(string) error }) error {
	return c.Read(ctx, op, func(ctx context.Context) error {
		return c.call(ctx, op, http.MethodGet, path, cloneValues(q), out)
	})
}

func (c *Client) write(ctx context.Context, op, path string, q url.Values, out interface{ err(string) error }) error {
	return base.Boundary(ProviderID, op, c.call(ctx, op, http.MethodPost, path, q, out))
}

type listsResponse struct {
	envelope
	Lists []struct {
		Key  string `json:"listkey"`
		Name string `json:"listname"`
	} `json:"list_of_details"`
}

// TestConnection implements core.ProviderClient
func (c *Client) TestConnection(ctx context.Context) error {
	var out listsResponse
	return c.read(ctx, "test_connection", "/getmailinglists", url.Values{"range": []string{"1"}}, &out)
}

// ListTargets implements core.ProviderClient
func (c *Client) ListTargets(ctx context.Context) ([]core.Target, error) {
	const pageSize = 100

	var targets []core.Target
	for from := 1; ; from += pageSize {
		var out listsResponse
		q := url.Values{
			"sort":      []string{"asc"},
			"fromindex": []string{strconv.Itoa(from)},
			"range":     []string{strconv.Itoa(pageSize)},
		}
		if err := c.read(ctx, "list_targets", "/getmailinglists", q, &out); err != nil {
			return nil, err
		}
		for _, l := range out.Lists {
			targets = append(targets, core.Target{ID: l.Key, Name: l.Name})
		}
		if len(out.Lists) < pageSize {
			return targets, nil
		}
	}
}

type fieldsResponse struct {
	envelope
	Response struct {
		FieldNames struct {
			FieldName []struct {
				DisplayName string `json:"DISPLAY_NAME"`
				FieldName   string `json:"FIELD_NAME"`
				UIType      string `json:"UITYPE"`
			} `json:"fieldname"`
		} `json:"fieldnames"`
	} `json:"response"`
}

// FetchFieldSchema implements core.ProviderClient. Values are written by
// display name, so that is the field id.
func (c *Client) FetchFieldSchema(ctx context.Context) ([]core.CustomFieldDescriptor, error) {
	var out fieldsResponse
	if err := c.read(ctx, "fetch_field_schema", "/contact/allfields", url.Values{"type": []string{"json"}}, &out); err != nil {
		return nil, err
	}
	var fields []core.CustomFieldDescriptor
	for _, f := range out.Response.FieldNames.FieldName {
		if coreFields[f.DisplayName] {
			continue
		}
		fields = append(fields, core.CustomFieldDescriptor{
			ID:         f.DisplayName,
			Type:       Mapper.ToCanonical(f.UIType),
			Label:      f.DisplayName,
			NativeType: f.UIType,
		})
	}
	return fields, nil
}

// CreateField implements core.ProviderClient
func (c *Client) CreateField(_ context.Context, req core.FieldRequest) (core.CustomFieldDescriptor, error) {
	return core.CustomFieldDescriptor{}, c.FieldCreationUnsupported(req)
}

// FindSubscriberByEmail implements core.ProviderClient. Zoho keys list
// operations by email, so the email is the record id.
func (c *Client) FindSubscriberByEmail(ctx context.Context, email string) (string, error) {
	const op = "find_subscriber"

	var out struct {
		envelope
		Contact *struct {
			Email string `json:"contact_email"`
		} `json:"contact"`
	}
	err := c.read(ctx, op, "/contact/details", url.Values{"contactemail": []string{email}}, &out)
	if err != nil {
		if strings.Contains(strings.ToLower(out.Message), "not exist") {
			return "", nil
		}
		return "", err
	}
	if out.Contact == nil {
		return "", nil
	}
	return email, nil
}

// UpsertSubscriber implements core.ProviderClient. listsubscribe creates or
// updates the contact and subscribes it to the list.
func (c *Client) UpsertSubscriber(ctx context.Context, rec *core.SubscriberRecord) (core.UpsertOutcome, error) {
	const op = "upsert_subscriber"

	info := map[string]string{"Contact Email": rec.Email}
	if v := rec.FirstName(); v != "" {
		info["First Name"] = v
	}
	if v := rec.LastName(); v != "" {
		info["Last Name"] = v
	}
	if rec.Phone != "" {
		info["Phone"] = rec.Phone
	}
	for k, v := range rec.CustomFields {
		info[k] = v
	}

	if err := c.subscribe(ctx, op, rec.ListID, info); err != nil {
		return core.UpsertOutcome{}, err
	}
	return core.UpsertOutcome{ID: rec.Email}, nil
}

// AttachToList implements core.ProviderClient
func (c *Client) AttachToList(ctx context.Context, recordID, listID string) error {
	return c.subscribe(ctx, "attach_to_list", listID, map[string]string{"Contact Email": recordID})
}

func (c *Client) subscribe(ctx context.Context, op, listKey string, info map[string]string) error {
	if listKey == "" {
		return errors.New(errors.KindValidation, "Zoho Campaigns requires a list to subscribe to").
			WithProvider(ProviderID, op)
	}
	contactInfo, err := json.Marshal(info)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to encode contact").WithProvider(ProviderID, op)
	}
	q := url.Values{
		"listkey":     []string{listKey},
		"contactinfo": []string{string(contactInfo)},
	}
	var out envelope
	return c.write(ctx, op, "/json/listsubscribe", q, &out)
}

// AddTags implements core.Tagger. Tags must exist before they can be
// associated; creating an existing tag is reported and ignored.
func (c *Client) AddTags(ctx context.Context, recordID string, tags []string) error {
	const op = "add_tags"

	for _, tag := range tags {
		var created envelope
		err := c.write(ctx, op, "/tag/add", url.Values{"tagName": []string{tag}}, &created)
		if err != nil && !strings.Contains(strings.ToLower(created.Message), "already") {
			return err
		}

		var out envelope
		q := url.Values{"tagName": []string{tag}, "lead_email": []string{recordID}}
		if err := c.write(ctx, op, "/tag/associate", q, &out); err != nil {
			return err
		}
	}
	return nil
}

func cloneValues(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	return out
}

var _ core.Tagger = (*Client)(nil)
