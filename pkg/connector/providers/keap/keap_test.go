package keap

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"sync"
	"testing"

	"github.com/ajitpratap0/formsync/pkg/config"
	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/ajitpratap0/formsync/pkg/connector/providertest"
	"github.com/ajitpratap0/formsync/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var methodName = regexp.MustCompile(`<methodName>([^<]+)</methodName>`)

type fakeKeap struct {
	mu        sync.Mutex
	calls     []string
	bodies    []string
	responses map[string]string
}

func (f *fakeKeap) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	m := methodName.FindSubmatch(body)

	f.mu.Lock()
	defer f.mu.Unlock()
	if r.URL.Path != "/api/xmlrpc" || m == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	name := string(m[1])
	f.calls = append(f.calls, name)
	f.bodies = append(f.bodies, string(body))

	w.Header().Set("Content-Type", "text/xml")
	resp, ok := f.responses[name]
	if !ok {
		_, _ = io.WriteString(w, fault(1, "No method matching arguments"))
		return
	}
	_, _ = io.WriteString(w, resp)
}

func (f *fakeKeap) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func result(value string) string {
	return `<?xml version="1.0"?><methodResponse><params><param><value>` + value + `</value></param></params></methodResponse>`
}

func fault(code int, msg string) string {
	return `<?xml version="1.0"?><methodResponse><fault><value><struct>` +
		`<member><name>faultCode</name><value><i4>` + strconv.Itoa(code) + `</i4></value></member>` +
		`<member><name>faultString</name><value>` + msg + `</value></member>` +
		`</struct></value></fault></methodResponse>`
}

func newTestClient(t *testing.T, responses map[string]string, settings config.ProviderSettings) (*Client, *fakeKeap) {
	fake := &fakeKeap{responses: responses}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	deps := providertest.Deps(t, srv.URL, core.Credentials{"app": "ab123", "key": "api-key"})
	settings.BaseURL = srv.URL
	deps.Settings = settings
	return New(deps), fake
}

func TestUpsertSubscriber_AddWithDupCheck(t *testing.T) {
	c, fake := newTestClient(t, map[string]string{
		"ContactService.addWithDupCheck": result(`<i4>812</i4>`),
	}, config.ProviderSettings{})

	out, err := c.UpsertSubscriber(context.Background(), &core.SubscriberRecord{
		Email:        "a@b.com",
		DisplayName:  "Ada Lovelace",
		CustomFields: map[string]string{"_Newsletter": "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, core.UpsertOutcome{ID: "812"}, out)

	body := fake.bodies[0]
	assert.Contains(t, body, "<param><value><string>api-key</string></value></param>")
	assert.Contains(t, body, "<member><name>_Newsletter</name><value><string>1</string></value></member>")
	assert.Contains(t, body, "<member><name>FirstName</name><value><string>Ada</string></value></member>")
	assert.Contains(t, body, "<param><value><string>Email</string></value></param>")
}

func TestFaults(t *testing.T) {
	tests := []struct {
		name  string
		fault string
		kind  errors.Kind
	}{
		{"invalid key", fault(2, "[InvalidKey]Invalid Key"), errors.KindAuth},
		{"record not found", fault(5, "[RecordNotFound]Record was not found"), errors.KindProviderRejected},
		{"database error", fault(4, "[DatabaseError]Error updating"), errors.KindProviderRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, map[string]string{"ContactService.addWithDupCheck": tt.fault}, config.ProviderSettings{})
			_, err := c.UpsertSubscriber(context.Background(), &core.SubscriberRecord{Email: "a@b.com"})
			require.Error(t, err)
			assert.Equal(t, tt.kind, errors.KindOf(err))

			var e *errors.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, ProviderID, e.Provider)
			assert.Equal(t, "upsert_subscriber", e.Op)
		})
	}
}

func TestFetchFieldSchema(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"DataService.query": result(`<array><data>
			<value><struct>
				<member><name>Id</name><value><i4>7</i4></value></member>
				<member><name>Name</name><value>Newsletter</value></member>
				<member><name>Label</name><value>Newsletter</value></member>
				<member><name>DataType</name><value><i4>6</i4></value></member>
			</struct></value>
			<value><struct>
				<member><name>Id</name><value><i4>8</i4></value></member>
				<member><name>Name</name><value>Interests</value></member>
				<member><name>Label</name><value>Interests</value></member>
				<member><name>DataType</name><value><i4>17</i4></value></member>
				<member><name>Values</name><value>Go
Rust</value></member>
			</struct></value>
		</data></array>`),
	}, config.ProviderSettings{})

	fields, err := c.FetchFieldSchema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.CustomFieldDescriptor{
		{ID: "_Newsletter", Type: core.TypeBoolean, Label: "Newsletter", NativeType: "6"},
		{ID: "_Interests", Type: core.TypeMultiSelect, Label: "Interests", NativeType: "17", Options: []string{"Go", "Rust"}},
	}, fields)
}

func TestCreateField(t *testing.T) {
	c, fake := newTestClient(t, map[string]string{
		"DataService.addCustomField": result(`<i4>99</i4>`),
	}, config.ProviderSettings{FieldHeaderID: 3})

	d, err := c.CreateField(context.Background(), core.FieldRequest{Label: "Job Role", Type: core.TypeSingleSelect})
	require.NoError(t, err)
	assert.Equal(t, "_JobRole", d.ID)
	assert.Equal(t, "21", d.NativeType)
	assert.Contains(t, fake.bodies[0], "<string>Dropdown</string>")
	assert.Contains(t, fake.bodies[0], "<int>3</int>")
}

func TestCreateField_NeedsHeader(t *testing.T) {
	c, fake := newTestClient(t, nil, config.ProviderSettings{})
	_, err := c.CreateField(context.Background(), core.FieldRequest{Label: "Role", Type: core.TypeText})
	assert.True(t, errors.IsKind(err, errors.KindValidation))
	assert.Empty(t, fake.Calls())
}

func TestAddTags_CreatesMissingGroup(t *testing.T) {
	c, fake := newTestClient(t, map[string]string{
		"DataService.query":         result(`<array><data></data></array>`),
		"DataService.add":           result(`<i4>55</i4>`),
		"ContactService.addToGroup": result(`<boolean>1</boolean>`),
	}, config.ProviderSettings{})

	require.NoError(t, c.AddTags(context.Background(), "812", []string{"webinar"}))
	assert.Equal(t, []string{"DataService.query", "DataService.add", "ContactService.addToGroup"}, fake.Calls())
}

func TestFindSubscriberByEmail(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"ContactService.findByEmail": result(`<array><data><value><struct>
			<member><name>Id</name><value><i4>812</i4></value></member>
		</struct></value></data></array>`),
	}, config.ProviderSettings{})

	id, err := c.FindSubscriberByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "812", id)
}

func TestListTargets(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"DataService.query": result(`<array><data><value><struct>
			<member><name>Id</name><value><i4>42</i4></value></member>
			<member><name>GroupName</name><value>Newsletter</value></member>
		</struct></value></data></array>`),
	}, config.ProviderSettings{})

	targets, err := c.ListTargets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.Target{{ID: "42", Name: "Newsletter"}}, targets)
}
