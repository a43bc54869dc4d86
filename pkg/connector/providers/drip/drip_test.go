package drip

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

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "tok", user)
		assert.Empty(t, pass)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(providertest.Deps(t, srv.URL, core.Credentials{"api_token": "tok", "account_id": "9"}))
}

func TestUpsertSubscriber_CombinedWrite(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/9/subscribers", r.URL.Path)
		var body subscribers
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.Len(t, body.Subscribers, 1) {
			s := body.Subscribers[0]
			assert.Equal(t, "a@b.com", s.Email)
			assert.Equal(t, "Ada", s.FirstName)
			assert.Equal(t, "Lovelace", s.LastName)
			assert.Equal(t, map[string]string{"plan": "pro"}, s.CustomFields)
			assert.Equal(t, []string{"lead", "webinar"}, s.Tags)
		}
		_, _ = io.WriteString(w, `{"subscribers":[{"id":"z1","email":"a@b.com"}]}`)
	})

	out, err := c.UpsertSubscriber(context.Background(), &core.SubscriberRecord{
		Email:        "a@b.com",
		DisplayName:  "Ada Lovelace",
		CustomFields: map[string]string{"plan": "pro"},
		Tags:         []string{"lead", "webinar"},
	})
	require.NoError(t, err)
	assert.Equal(t, "z1", out.ID)
}

func TestAttachToList_ReadsEmailFirst(t *testing.T) {
	var steps []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		steps = append(steps, r.Method+" "+r.URL.Path)
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/9/subscribers/z1":
			_, _ = io.WriteString(w, `{"subscribers":[{"id":"z1","email":"a@b.com"}]}`)
		case r.Method == http.MethodPost && r.URL.Path == "/9/campaigns/c7/subscribers":
			var body subscribers
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "a@b.com", body.Subscribers[0].Email)
			_, _ = io.WriteString(w, `{"subscribers":[{"id":"z1"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	require.NoError(t, c.AttachToList(context.Background(), "z1", "c7"))
	assert.Equal(t, []string{"GET /9/subscribers/z1", "POST /9/campaigns/c7/subscribers"}, steps)
}

func TestFindSubscriberByEmail_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"errors":[{"code":"not_found_error","message":"The subscriber could not be found"}]}`)
	})
	id, err := c.FindSubscriberByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestListTargets_OnlyActiveOrDraft(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/campaigns"))
		_, _ = io.WriteString(w, `{"campaigns":[
			{"id":"c1","name":"Welcome","status":"active"},
			{"id":"c2","name":"Old","status":"paused"},
			{"id":"c3","name":"Next","status":"draft"}
		],"meta":{"page":1,"total_pages":1}}`)
	})
	targets, err := c.ListTargets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.Target{{ID: "c1", Name: "Welcome"}, {ID: "c3", Name: "Next"}}, targets)
}

func TestUnprocessable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"errors":[{"code":"presence_error","attribute":"email","message":"Email is required"}]}`)
	})
	_, err := c.UpsertSubscriber(context.Background(), &core.SubscriberRecord{Email: "a@b.com"})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindProviderRejected))

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, http.StatusUnprocessableEntity, e.Status)
	assert.Contains(t, e.Diagnostic, "Email is required")
}
