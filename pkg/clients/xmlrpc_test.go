package clients

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ajitpratap0/formsync/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestEncodeMethodCall(t *testing.T) {
	payload, err := EncodeMethodCall("ContactService.addWithDupCheck",
		"key&secret",
		map[string]interface{}{"Email": "a@b.com", "_Opt": true},
		"Email",
	)
	require.NoError(t, err)

	s := string(payload)
	assert.Contains(t, s, "<methodName>ContactService.addWithDupCheck</methodName>")
	assert.Contains(t, s, "<string>key&amp;secret</string>")
	// members are sorted by name
	assert.Contains(t, s, "<struct><member><name>Email</name><value><string>a@b.com</string></value></member>"+
		"<member><name>_Opt</name><value><boolean>1</boolean></value></member></struct>")
}

func TestEncodeMethodCall_UnsupportedType(t *testing.T) {
	_, err := EncodeMethodCall("x", struct{}{})
	assert.Error(t, err)
}

func TestDecodeMethodResponse(t *testing.T) {
	body := `<?xml version="1.0"?>
<methodResponse><params><param><value><array><data>
  <value><struct>
    <member><name>Id</name><value><i4>12</i4></value></member>
    <member><name>Name</name><value>Favourite colour</value></member>
    <member><name>Active</name><value><boolean>0</boolean></value></member>
    <member><name>Created</name><value><dateTime.iso8601>20240102T03:04:05</dateTime.iso8601></value></member>
  </struct></value>
</data></array></value></param></params></methodResponse>`

	v, fault, err := DecodeMethodResponse([]byte(body))
	require.NoError(t, err)
	require.Nil(t, fault)

	rows, ok := v.([]interface{})
	require.True(t, ok)
	require.Len(t, rows, 1)
	row := rows[0].(map[string]interface{})
	assert.Equal(t, 12, row["Id"])
	assert.Equal(t, "Favourite colour", row["Name"])
	assert.Equal(t, false, row["Active"])
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), row["Created"])
}

func TestDecodeMethodResponse_Fault(t *testing.T) {
	body := `<methodResponse><fault><value><struct>
<member><name>faultCode</name><value><int>2</int></value></member>
<member><name>faultString</name><value><string>[InvalidKey]Invalid Key</string></value></member>
</struct></value></fault></methodResponse>`

	v, fault, err := DecodeMethodResponse([]byte(body))
	require.NoError(t, err)
	assert.Nil(t, v)
	require.NotNil(t, fault)
	assert.Equal(t, 2, fault.Code)
	assert.Equal(t, "[InvalidKey]Invalid Key", fault.String)
}

func TestXMLRPCClient_Call(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind errors.Kind
		want     interface{}
	}{
		{
			name:   "result",
			status: 200,
			body:   `<methodResponse><params><param><value><int>99</int></value></param></params></methodResponse>`,
			want:   99,
		},
		{
			name:     "fault",
			status:   200,
			body:     `<methodResponse><fault><value><struct><member><name>faultCode</name><value><int>0</int></value></member><member><name>faultString</name><value>[RecordNotFound]</value></member></struct></value></fault></methodResponse>`,
			wantKind: errors.KindProviderRejected,
		},
		{
			name:     "garbage",
			status:   200,
			body:     `<html>oops`,
			wantKind: errors.KindProviderRejected,
		},
		{
			name:     "http failure",
			status:   503,
			body:     `down`,
			wantKind: errors.KindNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				assert.Contains(t, string(body), "<methodName>DataService.echo</methodName>")
				assert.Contains(t, r.Header.Get("Content-Type"), "text/xml")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewXMLRPCClient(NewHTTPClient("keap", testHTTPConfig(), zaptest.NewLogger(t)), srv.URL)
			got, err := c.Call(context.Background(), "test_connection", "DataService.echo", "hi")
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, errors.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
