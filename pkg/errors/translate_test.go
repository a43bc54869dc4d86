package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{401, KindAuth},
		{403, KindAuth},
		{400, KindProviderRejected},
		{404, KindProviderRejected},
		{409, KindProviderRejected},
		{422, KindProviderRejected},
		{408, KindNetwork},
		{429, KindNetwork},
		{500, KindNetwork},
		{503, KindNetwork},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := FromStatus("hubspot", "list_targets", tt.status, []byte("boom"))
			assert.Equal(t, tt.want, err.Kind)
			assert.Equal(t, tt.status, err.Status)
			assert.Equal(t, "boom", err.Diagnostic)
			assert.Equal(t, "hubspot", err.Provider)
		})
	}
}

func TestFromStatus_TruncatesDiagnostic(t *testing.T) {
	body := strings.Repeat("x", 2000)
	err := FromStatus("drip", "upsert_subscriber", 400, []byte(body))
	assert.Len(t, err.Diagnostic, maxDiagnostic+3)
	assert.NotContains(t, err.Message, "xxx", "raw body must not leak into the primary message")
}

func TestFromTransport(t *testing.T) {
	t.Run("deadline", func(t *testing.T) {
		err := FromTransport("zoho", "fetch_field_schema", context.DeadlineExceeded)
		assert.Equal(t, KindNetwork, err.Kind)
		assert.Equal(t, "request timed out", err.Message)
		assert.True(t, IsRetryable(err))
	})

	t.Run("dial", func(t *testing.T) {
		cause := &url.Error{Op: "Get", URL: "http://x", Err: &net.OpError{Op: "dial", Err: stderrors.New("connection refused")}}
		err := FromTransport("zoho", "list_targets", cause)
		assert.Equal(t, KindNetwork, err.Kind)
		assert.True(t, stderrors.Is(err, cause))
	})

	t.Run("already classified", func(t *testing.T) {
		inner := New(KindAuth, "token refresh rejected")
		err := FromTransport("zoho", "list_targets", inner)
		assert.Same(t, inner, err)
	})

	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, FromTransport("zoho", "x", nil))
	})
}

func TestFromBody(t *testing.T) {
	assert.Equal(t, KindAuth, FromBody("zoho", "x", "1007", "Unauthorized request.").Kind)
	assert.Equal(t, KindNetwork, FromBody("zoho", "x", "", "Rate limit exceeded").Kind)
	err := FromBody("zoho", "x", "2001", "Contact email is invalid")
	assert.Equal(t, KindProviderRejected, err.Kind)
	assert.Equal(t, "2001: Contact email is invalid", err.Diagnostic)
}

func TestFromFault(t *testing.T) {
	assert.Equal(t, KindAuth, FromFault("keap", "x", 2, "[InvalidKey]Invalid Key").Kind)
	assert.Equal(t, KindAuth, FromFault("keap", "x", 0, "[InvalidKey]").Kind)
	err := FromFault("keap", "x", 0, "[RecordNotFound]Record was not found")
	assert.Equal(t, KindProviderRejected, err.Kind)
	assert.Equal(t, 0, err.FaultCode)
}

func TestFromDecode(t *testing.T) {
	cause := stderrors.New("unexpected end of JSON input")
	err := FromDecode("sendfox", "list_targets", []byte(`{"data":[`), cause)
	assert.Equal(t, KindProviderRejected, err.Kind)
	assert.ErrorIs(t, err, cause)
}

func TestWrapPreservesBoundaryFields(t *testing.T) {
	inner := FromStatus("hubspot", "attach_to_list", 403, nil)
	outer := Wrap(inner, KindAuth, "list attachment failed")
	require.NotNil(t, outer)
	assert.Equal(t, "hubspot", outer.Provider)
	assert.Equal(t, 403, outer.Status)
	assert.Equal(t, KindAuth, KindOf(outer))
	assert.Nil(t, Wrap(nil, KindAuth, "noop"))
}

func TestPartial(t *testing.T) {
	assert.Nil(t, Partial("none", nil))

	a := New(KindProviderRejected, "field write")
	b := New(KindNetwork, "tag write")
	p := Partial("partial", []error{a, b})
	assert.Equal(t, KindPartialFailure, p.Kind)
	assert.True(t, stderrors.Is(p, b))
	assert.Contains(t, p.Error(), "2 underlying errors")
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(stderrors.New("plain")))
	assert.Equal(t, KindSchema, KindOf(New(KindSchema, "unknown field")))
}
