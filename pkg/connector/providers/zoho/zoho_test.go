package zoho

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/ajitpratap0/formsync/pkg/connector/providertest"
	"github.com/ajitpratap0/formsync/pkg/errors"
	"github.com/ajitpratap0/formsync/pkg/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeZoho struct {
	mu          sync.Mutex
	tokenCalls  int
	requests    []string
	tokenStatus int
	api         http.HandlerFunc
}

func (f *fakeZoho) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/oauth/v2/token" {
		f.mu.Lock()
		f.tokenCalls++
		status := f.tokenStatus
		f.mu.Unlock()

		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if status != 0 {
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"error":"invalid_code"}`)
			return
		}
		if r.PostForm.Get("refresh_token") != "refresh-1" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid_code"}`)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"access-1","token_type":"Bearer","expires_in":3600}`)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, r.URL.Path)
	f.mu.Unlock()
	if r.Header.Get("Authorization") != "Zoho-oauthtoken access-1" || r.URL.Query().Get("resfmt") != "JSON" {
		_, _ = io.WriteString(w, `{"status":"error","code":"1007","message":"Unauthorized request"}`)
		return
	}
	f.api(w, r)
}

func newTestClient(t *testing.T, api http.HandlerFunc) (*Client, *fakeZoho) {
	fake := &fakeZoho{api: api}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c := New(providertest.Deps(t, srv.URL, core.Credentials{
		"client_id":     "id",
		"client_secret": "secret",
		"refresh_token": "refresh-1",
		"accounts_url":  srv.URL,
	}))
	return c, fake
}

func TestListTargets_ReusesToken(t *testing.T) {
	c, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getmailinglists", r.URL.Path)
		_, _ = io.WriteString(w, `{"status":"success","list_of_details":[{"listkey":"lk1","listname":"Newsletter"}]}`)
	})

	for i := 0; i < 2; i++ {
		targets, err := c.ListTargets(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []core.Target{{ID: "lk1", Name: "Newsletter"}}, targets)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 1, fake.tokenCalls)
}

func TestRefreshTokenRejected(t *testing.T) {
	c, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("api must not be called without a token")
	})
	fake.tokenStatus = http.StatusBadRequest

	err := c.TestConnection(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindAuth))
}

func TestEnvelopeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind errors.Kind
	}{
		{"invalid token", `{"status":"error","code":"1007","message":"Invalid OAuth token"}`, errors.KindAuth},
		{"rate limited", `{"status":"error","code":"2001","message":"API rate limit exceeded"}`, errors.KindNetwork},
		{"rejected", `{"status":"error","code":"2004","message":"Invalid list key"}`, errors.KindProviderRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := c.UpsertSubscriber(context.Background(), &core.SubscriberRecord{Email: "a@b.com", ListID: "lk1"})
			require.Error(t, err)
			assert.Equal(t, tt.kind, errors.KindOf(err))
		})
	}
}

func TestUpsertSubscriber_ContactInfo(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/json/listsubscribe", r.URL.Path)
		assert.Equal(t, "lk1", r.URL.Query().Get("listkey"))

		var info map[string]string
		assert.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("contactinfo")), &info))
		assert.Equal(t, map[string]string{
			"Contact Email": "a@b.com",
			"First Name":    "Ada",
			"Interests":     "go,rust",
		}, info)
		_, _ = io.WriteString(w, `{"status":"success","code":"0","message":"A confirmation email is sent to the user."}`)
	})

	out, err := c.UpsertSubscriber(context.Background(), &core.SubscriberRecord{
		Email:        "a@b.com",
		DisplayName:  "Ada",
		ListID:       "lk1",
		CustomFields: map[string]string{"Interests": "go,rust"},
	})
	require.NoError(t, err)
	assert.Equal(t, core.UpsertOutcome{ID: "a@b.com"}, out)
}

func TestUpsertSubscriber_NeedsList(t *testing.T) {
	c, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := c.UpsertSubscriber(context.Background(), &core.SubscriberRecord{Email: "a@b.com"})
	assert.True(t, errors.IsKind(err, errors.KindValidation))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Empty(t, fake.requests)
}

func TestFetchFieldSchema_SkipsCoreFields(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"success","response":{"fieldnames":{"fieldname":[
			{"DISPLAY_NAME":"Contact Email","FIELD_NAME":"contact_email","UITYPE":"Email"},
			{"DISPLAY_NAME":"Interests","FIELD_NAME":"CONTACT_CF1","UITYPE":"Multiselect"},
			{"DISPLAY_NAME":"Birthday","FIELD_NAME":"CONTACT_CF2","UITYPE":"Date"}
		]}}}`)
	})
	fields, err := c.FetchFieldSchema(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.CustomFieldDescriptor{
		{ID: "Interests", Type: core.TypeMultiSelect, Label: "Interests", NativeType: "Multiselect"},
		{ID: "Birthday", Type: core.TypeDate, Label: "Birthday", NativeType: "Date"},
	}, fields)
}

func TestAddTags_CreatesThenAssociates(t *testing.T) {
	c, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tag/add":
			_, _ = io.WriteString(w, `{"status":"error","code":"2602","message":"Tag already exists"}`)
		case "/tag/associate":
			assert.Equal(t, "a@b.com", r.URL.Query().Get("lead_email"))
			_, _ = io.WriteString(w, `{"status":"success"}`)
		}
	})

	require.NoError(t, c.AddTags(context.Background(), "a@b.com", []string{"webinar"}))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"/tag/add", "/tag/associate"}, fake.requests)
}
