// Package drip implements the Drip adapter over API v2. Drip creates or
// updates a subscriber with custom fields and tags in one call; campaigns
// are the subscription targets.
package drip

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ajitpratap0/formsync/pkg/clients"
	"github.com/ajitpratap0/formsync/pkg/connector/base"
	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/ajitpratap0/formsync/pkg/connector/fieldtype"
	"github.com/ajitpratap0/formsync/pkg/connector/registry"
	"github.com/ajitpratap0/formsync/pkg/errors"
)

const (
	// ProviderID is the registry id
	ProviderID = "drip"
	// DefaultBaseURL is the Drip API root
	DefaultBaseURL = "https://api.getdrip.com/v2"
)

// Mapper has a single native type; Drip custom fields are untyped
var Mapper = fieldtype.MustNew(ProviderID, []fieldtype.Entry{
	{Native: "string", Canonical: core.TypeText, Preferred: true},
})

var capabilities = core.Capabilities{
	AtomicUpsert:   true,
	CombinedWrite:  true,
	Tags:           true,
	MultiSeparator: ",",
	BooleanTrue:    "true",
	BooleanFalse:   "false",
}

func init() {
	registry.MustRegister(registry.Descriptor{
		ID:           ProviderID,
		Name:         "Drip",
		RequiredKeys: []string{"api_token", "account_id"},
		Factory: func(deps registry.Deps) (core.ProviderClient, error) {
			return New(deps), nil
		},
	})
}

// Client is the Drip adapter
type Client struct {
	*base.Adapter
	account string
}

// New creates the adapter
func New(deps registry.Deps) *Client {
	// Drip takes the API token as the basic auth user with no password
	httpClient := deps.NewHTTPClient(ProviderID, clients.WithBasicAuth(deps.Credentials.Get("api_token"), ""))
	return &Client{
		Adapter: base.NewAdapter(base.Config{
			ID:           ProviderID,
			BaseURL:      DefaultBaseURL,
			HTTP:         httpClient,
			Logger:       deps.Logger,
			Capabilities: capabilities,
			Mapper:       Mapper,
			Settings:     deps.Settings,
		}),
		account: "/" + url.PathEscape(deps.Credentials.Get("account_id")),
	}
}

type subscriber struct {
	ID           string            `json:"id,omitempty"`
	Email        string            `json:"email"`
	FirstName    string            `json:"first_name,omitempty"`
	LastName     string            `json:"last_name,omitempty"`
	Phone        string            `json:"phone,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	CreatedAt    string            `json:"created_at,omitempty"`
}

type subscribers struct {
	Subscribers []subscriber `json:"subscribers"`
}

// TestConnection implements core.ProviderClient
func (c *Client) TestConnection(ctx context.Context) error {
	var out struct {
		Accounts []struct {
			ID string `json:"id"`
		} `json:"accounts"`
	}
	return c.ReadJSON(ctx, "test_connection", "/accounts"+c.account, nil, nil, &out)
}

// ListTargets implements core.ProviderClient. Only active and draft
// campaigns accept subscribers.
func (c *Client) ListTargets(ctx context.Context) ([]core.Target, error) {
	var targets []core.Target
	for page := 1; ; page++ {
		var out struct {
			Campaigns []struct {
				ID     string `json:"id"`
				Name   string `json:"name"`
				Status string `json:"status"`
			} `json:"campaigns"`
			Meta struct {
				Page       int `json:"page"`
				TotalPages int `json:"total_pages"`
			} `json:"meta"`
		}
		q := url.Values{"page": []string{strconv.Itoa(page)}, "per_page": []string{"100"}}
		if err := c.ReadJSON(ctx, "list_targets", c.account+"/campaigns", q, nil, &out); err != nil {
			return nil, err
		}
		for _, cp := range out.Campaigns {
			if cp.Status == "active" || cp.Status == "draft" {
				targets = append(targets, core.Target{ID: cp.ID, Name: cp.Name})
			}
		}
		if out.Meta.Page >= out.Meta.TotalPages {
			return targets, nil
		}
	}
}

// FetchFieldSchema implements core.ProviderClient
func (c *Client) FetchFieldSchema(ctx context.Context) ([]core.CustomFieldDescriptor, error) {
	var out struct {
		Identifiers []string `json:"custom_field_identifiers"`
	}
	if err := c.ReadJSON(ctx, "fetch_field_schema", c.account+"/custom_field_identifiers", nil, nil, &out); err != nil {
		return nil, err
	}
	fields := make([]core.CustomFieldDescriptor, 0, len(out.Identifiers))
	for _, id := range out.Identifiers {
		fields = append(fields, core.CustomFieldDescriptor{
			ID:         id,
			Type:       core.TypeText,
			Label:      id,
			NativeType: "string",
		})
	}
	return fields, nil
}

// CreateField implements core.ProviderClient. Drip only learns a field
// identifier once a subscriber is written with it.
func (c *Client) CreateField(_ context.Context, req core.FieldRequest) (core.CustomFieldDescriptor, error) {
	return core.CustomFieldDescriptor{}, c.FieldCreationUnsupported(req)
}

// FindSubscriberByEmail implements core.ProviderClient
func (c *Client) FindSubscriberByEmail(ctx context.Context, email string) (string, error) {
	var out subscribers
	err := c.ReadJSON(ctx, "find_subscriber", c.account+"/subscribers/"+url.PathEscape(email), nil, nil, &out)
	if base.NotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(out.Subscribers) == 0 {
		return "", nil
	}
	return out.Subscribers[0].ID, nil
}

// UpsertSubscriber implements core.ProviderClient
func (c *Client) UpsertSubscriber(ctx context.Context, rec *core.SubscriberRecord) (core.UpsertOutcome, error) {
	const op = "upsert_subscriber"

	in := subscribers{Subscribers: []subscriber{{
		Email:        rec.Email,
		FirstName:    rec.FirstName(),
		LastName:     rec.LastName(),
		Phone:        rec.Phone,
		CustomFields: rec.CustomFields,
		Tags:         rec.Tags,
	}}}
	var out subscribers
	if err := c.WriteJSON(ctx, op, http.MethodPost, c.account+"/subscribers", nil, in, &out); err != nil {
		return core.UpsertOutcome{}, err
	}
	if len(out.Subscribers) == 0 || out.Subscribers[0].ID == "" {
		return core.UpsertOutcome{}, errors.New(errors.KindProviderRejected, "subscriber saved without an id").
			WithProvider(ProviderID, op)
	}
	return core.UpsertOutcome{ID: out.Subscribers[0].ID}, nil
}

// AttachToList implements core.ProviderClient. Campaign subscription is
// keyed by email, so the record is read back first.
func (c *Client) AttachToList(ctx context.Context, recordID, listID string) error {
	const op = "attach_to_list"

	var found subscribers
	if err := c.ReadJSON(ctx, op, c.account+"/subscribers/"+url.PathEscape(recordID), nil, nil, &found); err != nil {
		return err
	}
	if len(found.Subscribers) == 0 {
		return errors.Newf(errors.KindProviderRejected, "subscriber %s not found", recordID).
			WithProvider(ProviderID, op)
	}

	in := subscribers{Subscribers: []subscriber{{Email: found.Subscribers[0].Email}}}
	path := c.account + "/campaigns/" + url.PathEscape(listID) + "/subscribers"
	return c.WriteJSON(ctx, op, http.MethodPost, path, nil, in, nil)
}
