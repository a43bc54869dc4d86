package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/formsync/pkg/errors"
)

// XMLRPCTimeLayout is the dateTime.iso8601 layout used on the wire
const XMLRPCTimeLayout = "20060102T15:04:05"

// XMLRPCClient calls XML-RPC methods over an HTTPClient
type XMLRPCClient struct {
	http     *HTTPClient
	endpoint string
}

// NewXMLRPCClient creates an XML-RPC client posting to endpoint
func NewXMLRPCClient(httpClient *HTTPClient, endpoint string) *XMLRPCClient {
	return &XMLRPCClient{http: httpClient, endpoint: endpoint}
}

// Call invokes method with params and returns the decoded first result.
// Results decode to int, bool, string, float64, time.Time, []byte,
// []interface{}, map[string]interface{} or nil.
func (c *XMLRPCClient) Call(ctx context.Context, op, method string, params ...interface{}) (interface{}, error) {
	provider := c.http.Provider()

	payload, err := EncodeMethodCall(method, params...)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to encode xml-rpc call").
			WithProvider(provider, op)
	}

	resp, err := c.http.Send(ctx, &Request{
		Op:     op,
		Method: http.MethodPost,
		URL:    c.endpoint,
		Header: http.Header{
			"Content-Type": []string{"text/xml; charset=utf-8"},
			"Accept":       []string{"text/xml"},
		},
		Body: payload,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, errors.FromStatus(provider, op, resp.Status, resp.Body)
	}

	result, fault, err := DecodeMethodResponse(resp.Body)
	if err != nil {
		return nil, errors.FromDecode(provider, op, resp.Body, err)
	}
	if fault != nil {
		return nil, errors.FromFault(provider, op, fault.Code, fault.String)
	}
	return result, nil
}

// Fault is an XML-RPC fault response
type Fault struct {
	Code   int
	String string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("fault %d: %s", f.Code, f.String)
}

// EncodeMethodCall renders a methodCall document
func EncodeMethodCall(method string, params ...interface{}) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString("<methodCall><methodName>")
	if err := xml.EscapeText(&buf, []byte(method)); err != nil {
		return nil, err
	}
	buf.WriteString("</methodName><params>")
	for i, p := range params {
		buf.WriteString("<param>")
		if err := encodeValue(&buf, p); err != nil {
			return nil, fmt.Errorf("param %d: %w", i, err)
		}
		buf.WriteString("</param>")
	}
	buf.WriteString("</params></methodCall>")
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v interface{}) error {
	buf.WriteString("<value>")
	switch t := v.(type) {
	case nil:
		buf.WriteString("<nil/>")
	case string:
		buf.WriteString("<string>")
		if err := xml.EscapeText(buf, []byte(t)); err != nil {
			return err
		}
		buf.WriteString("</string>")
	case int:
		fmt.Fprintf(buf, "<int>%d</int>", t)
	case int32:
		fmt.Fprintf(buf, "<int>%d</int>", t)
	case int64:
		fmt.Fprintf(buf, "<int>%d</int>", t)
	case bool:
		if t {
			buf.WriteString("<boolean>1</boolean>")
		} else {
			buf.WriteString("<boolean>0</boolean>")
		}
	case float64:
		buf.WriteString("<double>" + strconv.FormatFloat(t, 'f', -1, 64) + "</double>")
	case time.Time:
		buf.WriteString("<dateTime.iso8601>" + t.Format(XMLRPCTimeLayout) + "</dateTime.iso8601>")
	case []byte:
		buf.WriteString("<base64>" + base64.StdEncoding.EncodeToString(t) + "</base64>")
	case []string:
		buf.WriteString("<array><data>")
		for _, e := range t {
			if err := encodeValue(buf, e); err != nil {
				return err
			}
		}
		buf.WriteString("</data></array>")
	case []interface{}:
		buf.WriteString("<array><data>")
		for _, e := range t {
			if err := encodeValue(buf, e); err != nil {
				return err
			}
		}
		buf.WriteString("</data></array>")
	case map[string]string:
		m := make(map[string]interface{}, len(t))
		for k, e := range t {
			m[k] = e
		}
		if err := encodeStruct(buf, m); err != nil {
			return err
		}
	case map[string]interface{}:
		if err := encodeStruct(buf, t); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported xml-rpc type %T", v)
	}
	buf.WriteString("</value>")
	return nil
}

// encodeStruct writes members in key order so payloads are deterministic
func encodeStruct(buf *bytes.Buffer, m map[string]interface{}) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteString("<struct>")
	for _, k := range keys {
		buf.WriteString("<member><name>")
		if err := xml.EscapeText(buf, []byte(k)); err != nil {
			return err
		}
		buf.WriteString("</name>")
		if err := encodeValue(buf, m[k]); err != nil {
			return fmt.Errorf("member %s: %w", k, err)
		}
		buf.WriteString("</member>")
	}
	buf.WriteString("</struct>")
	return nil
}

type xmlValue struct {
	Int      *string    `xml:"int"`
	I4       *string    `xml:"i4"`
	I8       *string    `xml:"i8"`
	Boolean  *string    `xml:"boolean"`
	String   *string    `xml:"string"`
	Double   *string    `xml:"double"`
	DateTime *string    `xml:"dateTime.iso8601"`
	Base64   *string    `xml:"base64"`
	Struct   *xmlStruct `xml:"struct"`
	Array    *xmlArray  `xml:"array"`
	Nil      *struct{}  `xml:"nil"`
	Text     string     `xml:",chardata"`
}

type xmlStruct struct {
	Members []xmlMember `xml:"member"`
}

type xmlMember struct {
	Name  string   `xml:"name"`
	Value xmlValue `xml:"value"`
}

type xmlArray struct {
	Values []xmlValue `xml:"data>value"`
}

type methodResponse struct {
	XMLName xml.Name   `xml:"methodResponse"`
	Params  []xmlValue `xml:"params>param>value"`
	Fault   *xmlValue  `xml:"fault>value"`
}

// DecodeMethodResponse parses a methodResponse document. Exactly one of the
// result and the fault is set when err is nil.
func DecodeMethodResponse(data []byte) (interface{}, *Fault, error) {
	var resp methodResponse
	if err := xml.Unmarshal(data, &resp); err != nil {
		return nil, nil, err
	}

	if resp.Fault != nil {
		v, err := resp.Fault.decode()
		if err != nil {
			return nil, nil, err
		}
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil, nil, fmt.Errorf("fault is %T, want struct", v)
		}
		f := &Fault{}
		if code, ok := m["faultCode"].(int); ok {
			f.Code = code
		}
		if s, ok := m["faultString"].(string); ok {
			f.String = s
		}
		return nil, f, nil
	}

	if len(resp.Params) == 0 {
		return nil, nil, nil
	}
	v, err := resp.Params[0].decode()
	return v, nil, err
}

func (v *xmlValue) decode() (interface{}, error) {
	switch {
	case v.Int != nil:
		return strconv.Atoi(strings.TrimSpace(*v.Int))
	case v.I4 != nil:
		return strconv.Atoi(strings.TrimSpace(*v.I4))
	case v.I8 != nil:
		return strconv.Atoi(strings.TrimSpace(*v.I8))
	case v.Boolean != nil:
		switch strings.TrimSpace(*v.Boolean) {
		case "1", "true":
			return true, nil
		case "0", "false":
			return false, nil
		}
		return nil, fmt.Errorf("invalid boolean %q", *v.Boolean)
	case v.String != nil:
		return *v.String, nil
	case v.Double != nil:
		return strconv.ParseFloat(strings.TrimSpace(*v.Double), 64)
	case v.DateTime != nil:
		return parseXMLRPCTime(strings.TrimSpace(*v.DateTime))
	case v.Base64 != nil:
		return base64.StdEncoding.DecodeString(strings.TrimSpace(*v.Base64))
	case v.Struct != nil:
		m := make(map[string]interface{}, len(v.Struct.Members))
		for i := range v.Struct.Members {
			member := &v.Struct.Members[i]
			val, err := member.Value.decode()
			if err != nil {
				return nil, fmt.Errorf("member %s: %w", member.Name, err)
			}
			m[member.Name] = val
		}
		return m, nil
	case v.Array != nil:
		out := make([]interface{}, 0, len(v.Array.Values))
		for i := range v.Array.Values {
			val, err := v.Array.Values[i].decode()
			if err != nil {
				return nil, err
			}
			out = append(out, val)
		}
		return out, nil
	case v.Nil != nil:
		return nil, nil
	default:
		// A value with no type element is a string
		return v.Text, nil
	}
}

func parseXMLRPCTime(s string) (time.Time, error) {
	for _, layout := range []string{XMLRPCTimeLayout, "2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid dateTime.iso8601 %q", s)
}
