package icontact

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/ajitpratap0/formsync/pkg/connector/providertest"
	"github.com/ajitpratap0/formsync/pkg/errors"
	"github.com/ajitpratap0/formsync/pkg/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const folder = "/a/100/c/200"

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2.2", r.Header.Get("API-Version"))
		assert.Equal(t, "app", r.Header.Get("API-AppId"))
		assert.Equal(t, "user", r.Header.Get("API-Username"))
		assert.Equal(t, "pw", r.Header.Get("API-Password"))
		assert.True(t, strings.HasPrefix(r.URL.Path, folder), r.URL.Path)
		r.URL.Path = strings.TrimPrefix(r.URL.Path, folder)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(providertest.Deps(t, srv.URL, core.Credentials{
		"app_id":           "app",
		"username":         "user",
		"password":         "pw",
		"account_id":       "100",
		"client_folder_id": "200",
	}))
}

func TestUpsertSubscriber_Create(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contacts", r.URL.Path)
		var body []map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []map[string]string{{"email": "a@b.com", "firstName": "Ada"}}, body)
		_, _ = io.WriteString(w, `{"contacts":[{"contactId":"31"}]}`)
	})

	out, err := c.UpsertSubscriber(context.Background(), &core.SubscriberRecord{Email: "a@b.com", DisplayName: "Ada"})
	require.NoError(t, err)
	assert.Equal(t, core.UpsertOutcome{ID: "31", Created: true}, out)
}

func TestUpsertSubscriber_WarningsWithoutContact(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"contacts":[],"warnings":["Invalid email address"]}`)
	})

	_, err := c.UpsertSubscriber(context.Background(), &core.SubscriberRecord{Email: "a@b.com"})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindProviderRejected))

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Contains(t, e.Diagnostic, "Invalid email address")
}

func TestUpsertSubscriber_UpdateAndCustomFields(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = io.WriteString(w, `{"contact":{"contactId":"31"}}`)
	})

	out, err := c.UpsertSubscriber(context.Background(), &core.SubscriberRecord{Email: "a@b.com", ExistingID: "31"})
	require.NoError(t, err)
	assert.Equal(t, core.UpsertOutcome{ID: "31"}, out)

	require.NoError(t, c.WriteCustomFields(context.Background(), "31", map[string]string{"favorite_color": "blue"}))
	require.NoError(t, c.WriteCustomFields(context.Background(), "31", nil))

	assert.Equal(t, []string{"/contacts/31", "/contacts/31"}, paths)
}

func TestAttachToList_Failed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/subscriptions", r.URL.Path)
		_, _ = io.WriteString(w, `{"subscriptions":[],"failed":["31_42"],"warnings":["list not found"]}`)
	})
	err := c.AttachToList(context.Background(), "31", "42")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindProviderRejected))
}

func TestFetchFieldSchema(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/customfields", r.URL.Path)
		_, _ = io.WriteString(w, `{"customfields":[
			{"customFieldId":"newsletter","privateName":"newsletter","displayToUser":1,"fieldType":"checkbox"},
			{"customFieldId":"budget","privateName":"budget","displayToUser":1,"fieldType":"decimalTwo"}
		]}`)
	})
	fields, err := c.FetchFieldSchema(context.Background())
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, core.TypeBoolean, fields[0].Type)
	assert.Equal(t, core.TypeNumber, fields[1].Type)
}

func TestCreateField_SelectBecomesText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body []customField
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.Len(t, body, 1) {
			assert.Equal(t, "text", body[0].FieldType)
			assert.Equal(t, "favourite_colour", body[0].PrivateName)
		}
		_, _ = io.WriteString(w, `{"customfields":[{"customFieldId":"favourite_colour","privateName":"favourite_colour","fieldType":"text"}]}`)
	})
	d, err := c.CreateField(context.Background(), core.FieldRequest{Label: "Favourite Colour", Type: core.TypeSingleSelect})
	require.NoError(t, err)
	assert.Equal(t, "favourite_colour", d.ID)
	assert.Equal(t, "Favourite Colour", d.Label)
	assert.Equal(t, core.TypeText, d.Type)
}

func TestTestConnection_Forbidden(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"errors":["Forbidden"]}`)
	})
	assert.True(t, errors.IsKind(c.TestConnection(context.Background()), errors.KindAuth))
}
