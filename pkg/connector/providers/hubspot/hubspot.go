// Package hubspot implements the HubSpot CRM adapter over the v3 REST API.
// Custom fields are contact properties; lists use the legacy v1 lists API.
package hubspot

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

const (
	// ProviderID is the registry id
	ProviderID = "hubspot"
	// DefaultBaseURL is the HubSpot API root
	DefaultBaseURL = "https://api.hubapi.com"

	propertyGroup = "contactinformation"
)

// Mapper maps HubSpot "type/fieldType" property pairs
var Mapper = fieldtype.MustNew(ProviderID, []fieldtype.Entry{
	{Native: "string/text", Canonical: core.TypeText, Preferred: true},
	{Native: "string/textarea", Canonical: core.TypeText},
	{Native: "phone_number/phonenumber", Canonical: core.TypeText},
	{Native: "number/number", Canonical: core.TypeNumber, Preferred: true},
	{Native: "date/date", Canonical: core.TypeDate, Preferred: true},
	{Native: "datetime/date", Canonical: core.TypeDateTime, Preferred: true},
	{Native: "bool/booleancheckbox", Canonical: core.TypeBoolean, Preferred: true},
	{Native: "enumeration/booleancheckbox", Canonical: core.TypeBoolean},
	{Native: "enumeration/select", Canonical: core.TypeSingleSelect, Preferred: true},
	{Native: "enumeration/radio", Canonical: core.TypeSingleSelect},
	{Native: "enumeration/checkbox", Canonical: core.TypeMultiSelect, Preferred: true},
})

var capabilities = core.Capabilities{
	CombinedWrite:  true,
	FieldCreation:  true,
	MultiSeparator: ";",
	BooleanTrue:    "true",
	BooleanFalse:   "false",
	DateFormat:     "2006-01-02",
}

func init() {
	registry.MustRegister(registry.Descriptor{
		ID:           ProviderID,
		Name:         "HubSpot",
		RequiredKeys: []string{"key"},
		Factory: func(deps registry.Deps) (core.ProviderClient, error) {
			return New(deps), nil
		},
	})
}

// Client is the HubSpot adapter
type Client struct {
	*base.Adapter
	auth http.Header
}

// New creates the adapter from registry deps
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

// envelope is the error object HubSpot sometimes returns with HTTP 200
type envelope struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Category string `json:"category"`
}

func (e envelope) err(op string) error {
	if e.Status != "error" {
		return nil
	}
	return errors.FromBody(ProviderID, op, e.Category, e.Message)
}

type property struct {
	Name           string   `json:"name"`
	Label          string   `json:"label"`
	Type           string   `json:"type"`
	FieldType      string   `json:"fieldType"`
	HubspotDefined bool     `json:"hubspotDefined,omitempty"`
	GroupName      string   `json:"groupName,omitempty"`
	Options        []option `json:"options,omitempty"`

	ModificationMetadata *struct {
		ReadOnlyValue bool `json:"readOnlyValue"`
	} `json:"modificationMetadata,omitempty"`
}

type option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

func (p property) readOnly() bool {
	return p.ModificationMetadata != nil && p.ModificationMetadata.ReadOnlyValue
}

func (p property) descriptor() core.CustomFieldDescriptor {
	native := p.Type + "/" + p.FieldType
	d := core.CustomFieldDescriptor{
		ID:         p.Name,
		Type:       Mapper.ToCanonical(native),
		Label:      p.Label,
		NativeType: native,
	}
	for _, o := range p.Options {
		d.Options = append(d.Options, o.Value)
	}
	return d
}

// TestConnection implements core.ProviderClient
func (c *Client) TestConnection(ctx context.Context) error {
	var out struct {
		envelope
	}
	q := url.Values{"limit": []string{"1"}}
	if err := c.ReadJSON(ctx, "test_connection", "/crm/v3/objects/contacts", q, c.auth, &out); err != nil {
		return err
	}
	return out.err("test_connection")
}

// ListTargets implements core.ProviderClient
func (c *Client) ListTargets(ctx context.Context) ([]core.Target, error) {
	const op = "list_targets"

	var targets []core.Target
	offset := 0
	for {
		var out struct {
			envelope
			Lists []struct {
				ListID int    `json:"listId"`
				Name   string `json:"name"`
			} `json:"lists"`
			HasMore bool `json:"has-more"`
			Offset  int  `json:"offset"`
		}
		q := url.Values{"count": []string{"250"}, "offset": []string{strconv.Itoa(offset)}}
		if err := c.ReadJSON(ctx, op, "/contacts/v1/lists", q, c.auth, &out); err != nil {
			return nil, err
		}
		if err := out.err(op); err != nil {
			return nil, err
		}
		for _, l := range out.Lists {
			targets = append(targets, core.Target{ID: strconv.Itoa(l.ListID), Name: l.Name})
		}
		if !out.HasMore || out.Offset <= offset {
			return targets, nil
		}
		offset = out.Offset
	}
}

// FetchFieldSchema implements core.ProviderClient. Read-only and
// HubSpot-defined properties are not writable from a form and are skipped,
// except the handful of standard contact properties forms commonly target.
func (c *Client) FetchFieldSchema(ctx context.Context) ([]core.CustomFieldDescriptor, error) {
	const op = "fetch_field_schema"

	var out struct {
		envelope
		Results []property `json:"results"`
	}
	q := url.Values{"archived": []string{"false"}}
	if err := c.ReadJSON(ctx, op, "/crm/v3/properties/contacts", q, c.auth, &out); err != nil {
		return nil, err
	}
	if err := out.err(op); err != nil {
		return nil, err
	}

	fields := make([]core.CustomFieldDescriptor, 0, len(out.Results))
	for _, p := range out.Results {
		if p.readOnly() {
			continue
		}
		if p.HubspotDefined && !standardProperties[p.Name] {
			continue
		}
		fields = append(fields, p.descriptor())
	}
	return fields, nil
}

var standardProperties = map[string]bool{
	"company":  true,
	"jobtitle": true,
	"website":  true,
	"city":     true,
	"country":  true,
	"zip":      true,
}

// CreateField implements core.ProviderClient
func (c *Client) CreateField(ctx context.Context, req core.FieldRequest) (core.CustomFieldDescriptor, error) {
	const op = "create_field"

	native := Mapper.ToProviderNative(req.Type)
	typ, fieldType, _ := strings.Cut(native, "/")
	in := property{
		Name:      base.Slug(req.Label),
		Label:     req.Label,
		Type:      typ,
		FieldType: fieldType,
		GroupName: propertyGroup,
	}
	for _, o := range req.Options {
		in.Options = append(in.Options, option{Label: o, Value: o})
	}

	var out struct {
		envelope
		property
	}
	if err := c.WriteJSON(ctx, op, http.MethodPost, "/crm/v3/properties/contacts", c.auth, in, &out); err != nil {
		return core.CustomFieldDescriptor{}, err
	}
	if err := out.err(op); err != nil {
		return core.CustomFieldDescriptor{}, err
	}
	return out.property.descriptor(), nil
}

// FindSubscriberByEmail implements core.ProviderClient
func (c *Client) FindSubscriberByEmail(ctx context.Context, email string) (string, error) {
	const op = "find_subscriber"

	var out struct {
		envelope
		ID string `json:"id"`
	}
	q := url.Values{"idProperty": []string{"email"}}
	err := c.ReadJSON(ctx, op, "/crm/v3/objects/contacts/"+url.PathEscape(email), q, c.auth, &out)
	if base.NotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if err := out.err(op); err != nil {
		return "", err
	}
	return out.ID, nil
}

// UpsertSubscriber implements core.ProviderClient. HubSpot has no upsert by
// email, so the existence probe result decides between create and update.
func (c *Client) UpsertSubscriber(ctx context.Context, rec *core.SubscriberRecord) (core.UpsertOutcome, error) {
	const op = "upsert_subscriber"

	props := map[string]string{"email": rec.Email}
	if v := rec.FirstName(); v != "" {
		props["firstname"] = v
	}
	if v := rec.LastName(); v != "" {
		props["lastname"] = v
	}
	if rec.Phone != "" {
		props["phone"] = rec.Phone
	}
	for k, v := range rec.CustomFields {
		props[k] = v
	}
	in := map[string]interface{}{"properties": props}

	var out struct {
		envelope
		ID string `json:"id"`
	}
	if rec.ExistingID != "" {
		path := "/crm/v3/objects/contacts/" + url.PathEscape(rec.ExistingID)
		if err := c.WriteJSON(ctx, op, http.MethodPatch, path, c.auth, in, &out); err != nil {
			return core.UpsertOutcome{}, err
		}
		if err := out.err(op); err != nil {
			return core.UpsertOutcome{}, err
		}
		return core.UpsertOutcome{ID: rec.ExistingID}, nil
	}

	if err := c.WriteJSON(ctx, op, http.MethodPost, "/crm/v3/objects/contacts", c.auth, in, &out); err != nil {
		return core.UpsertOutcome{}, err
	}
	if err := out.err(op); err != nil {
		return core.UpsertOutcome{}, err
	}
	if out.ID == "" {
		return core.UpsertOutcome{}, errors.New(errors.KindProviderRejected, "contact created without an id").
			WithProvider(ProviderID, op)
	}
	return core.UpsertOutcome{ID: out.ID, Created: true}, nil
}

// AttachToList implements core.ProviderClient
func (c *Client) AttachToList(ctx context.Context, recordID, listID string) error {
	const op = "attach_to_list"

	vid, err := strconv.ParseInt(recordID, 10, 64)
	if err != nil {
		return errors.Wrap(err, errors.KindValidation, "contact id is not numeric").WithProvider(ProviderID, op)
	}
	var out struct {
		envelope
		Discarded []int64 `json:"discarded"`
		Invalid   []int64 `json:"invalidVids"`
	}
	path := "/contacts/v1/lists/" + url.PathEscape(listID) + "/add"
	if err := c.WriteJSON(ctx, op, http.MethodPost, path, c.auth, map[string]interface{}{"vids": []int64{vid}}, &out); err != nil {
		return err
	}
	if err := out.err(op); err != nil {
		return err
	}
	if len(out.Invalid) > 0 {
		return errors.Newf(errors.KindProviderRejected, "contact %s rejected by list %s", recordID, listID).
			WithProvider(ProviderID, op)
	}
	return nil
}
