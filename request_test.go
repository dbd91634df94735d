package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestBuilderImmutability(t *testing.T) {
	t.Parallel()
	base := New(MethodGet, "/users")
	withHeader := base.Header("X-Trace", "1")

	assert.False(t, base.Headers().Has("X-Trace"))
	assert.True(t, withHeader.Headers().Has("X-Trace"))
}

func TestRequestJSONOverridesBody(t *testing.T) {
	t.Parallel()
	req := New(MethodPost, "/items").Raw([]byte("stale"), "text/plain")
	req, err := req.JSON(map[string]int{"a": 1})
	require.NoError(t, err)

	body, ct, err := req.encodedBody()
	require.NoError(t, err)
	assert.Equal(t, "application/json", ct)
	assert.JSONEq(t, `{"a":1}`, string(body))
}

func TestRequestValidateBodyMethodInvariant(t *testing.T) {
	t.Parallel()
	req := New(MethodGet, "/x").Raw([]byte("nope"), "text/plain")
	err := req.validate(noopLogger{})
	require.Error(t, err)

	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindInvalidInput, fe.Kind)
}

func TestRequestValidateDeleteWithBodyWarnsOnly(t *testing.T) {
	t.Parallel()
	req := New(MethodDelete, "/x").Raw([]byte("ok"), "text/plain")
	assert.NoError(t, req.validate(noopLogger{}))
}

func TestRequestFormEncoding(t *testing.T) {
	t.Parallel()
	req := New(MethodPost, "/login").Form(map[string]string{"user": "a", "pass": "b"})
	body, ct, err := req.encodedBody()
	require.NoError(t, err)
	assert.Equal(t, "application/x-www-form-urlencoded", ct)
	assert.Contains(t, string(body), "user=a")
	assert.Contains(t, string(body), "pass=b")
}

func TestRequestMultipartEncoding(t *testing.T) {
	t.Parallel()
	req := New(MethodPost, "/upload").Multipart([]MultipartPart{
		{FieldName: "note", Content: []byte("hello")},
		{FieldName: "file", FileName: "a.txt", Content: []byte("contents")},
	})
	body, ct, err := req.encodedBody()
	require.NoError(t, err)
	assert.Contains(t, ct, "multipart/form-data; boundary=")
	assert.Contains(t, string(body), `name="note"`)
	assert.Contains(t, string(body), `filename="a.txt"`)
}

func TestResolveURIAbsoluteOverridesBase(t *testing.T) {
	t.Parallel()
	got, err := resolveURI("https://api.example.com/v1", "https://other.example.com/x", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com/x", got)
}

func TestResolveURIJoinsExactlyOneSlash(t *testing.T) {
	t.Parallel()
	got, err := resolveURI("https://api.example.com/v1/", "/users", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v1/users", got)
}

func TestResolveURIMergesQueryOverridingExisting(t *testing.T) {
	t.Parallel()
	got, err := resolveURI("https://api.example.com", "/search?q=old", map[string][]string{"q": {"new"}})
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/search?q=new", got)
}

func TestNormalizeURIIdempotentAndOrderIndependent(t *testing.T) {
	t.Parallel()
	a, err := normalizeURI("HTTP://Example.com:80/path?b=2&a=1")
	require.NoError(t, err)
	b, err := normalizeURI("http://example.com/path?a=1&b=2")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	twice, err := normalizeURI(a)
	require.NoError(t, err)
	assert.Equal(t, a, twice)
}
