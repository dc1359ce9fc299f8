package facts

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromServerVars(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	vars := map[string]string{
		"REMOTE_ADDR":          "66.249.66.1",
		"HTTP_USER_AGENT":      "Mozilla/5.0 (X11; Linux x86_64)",
		"HTTP_ACCEPT_LANGUAGE": "en-US",
		"HTTP_X_FORWARDED_FOR": "10.1.1.1",
		"QUERY_STRING":         "a=1&b=2",
		"REQUEST_METHOD":       "GET",
		"SERVER_PROTOCOL":      "HTTP/1.1",
		"SERVER_NAME":          "example.com",
		"DOCUMENT_ROOT":        "/var/www",
	}

	// Act
	f := FromServerVars(vars, Options{})

	// Assert
	assert.Equal("66.249.66.1", f.IP)
	assert.Equal("Mozilla/5.0 (X11; Linux x86_64)", f.UserAgent)
	assert.Equal("a=1&b=2", f.QueryString)
	assert.Equal("get", f.Method)
	assert.Equal("HTTP/1.1", f.Protocol)
	assert.Equal("example.com", f.ServerName)
	assert.Equal(map[string]string{
		"user-agent":      "Mozilla/5.0 (X11; Linux x86_64)",
		"accept-language": "en-US",
		"x-forwarded-for": "10.1.1.1",
	}, f.Headers)
}

func TestFromServerVarsPrefixIsCaseInsensitive(t *testing.T) {
	// Arrange
	vars := map[string]string{"Http_Via": "1.1 proxy"}

	// Act
	f := FromServerVars(vars, Options{})

	// Assert
	assert.Equal(t, "1.1 proxy", f.Headers["via"])
}

func TestFromServerVarsCollisionIsDeterministic(t *testing.T) {
	// Arrange
	vars := map[string]string{
		"HTTP_X_TEST": "upper",
		"http_x_test": "lower",
	}

	// Act & Assert
	for i := 0; i < 20; i++ {
		f := FromServerVars(vars, Options{})
		assert.Equal(t, "lower", f.Headers["x-test"])
	}
}

func TestFromServerVarsEmpty(t *testing.T) {
	assert := assert.New(t)

	// Act
	f := FromServerVars(nil, Options{})

	// Assert
	assert.Equal("", f.IP)
	assert.Equal("", f.Method)
	assert.NotNil(f.Headers)
	assert.Empty(f.Headers)
	assert.False(f.HasHeader("accept"))
}

func TestNormalizeIP(t *testing.T) {
	tests := []struct {
		raw         string
		exemptLocal bool
		want        string
	}{
		{"66.249.66.1", false, "66.249.66.1"},
		{" 66.249.66.1 ", false, "66.249.66.1"},
		{"::ffff:66.249.66.1", false, "66.249.66.1"},
		{"2a00:1450:4001:81b::200e", false, "2a00:1450:4001:81b::200e"},
		{"127.0.0.1", false, ""},
		{"127.0.0.1", true, "127.0.0.1"},
		{"10.0.0.8", false, ""},
		{"10.0.0.8", true, "10.0.0.8"},
		{"192.168.1.1", false, ""},
		{"169.254.1.1", false, ""},
		{"100.64.0.1", false, ""},
		{"203.0.113.7", false, ""},
		{"::1", false, ""},
		{"fe80::1%eth0", false, ""},
		{"fe80::1%eth0", true, "fe80::1"},
		{"2001:db8::1", false, ""},
		{"not-an-ip", false, ""},
		{"not-an-ip", true, ""},
		{"", false, ""},
		{"1.2.3", false, ""},
	}

	for _, tt := range tests {
		got := NormalizeIP(tt.raw, Options{ExemptLocal: tt.exemptLocal})
		assert.Equal(t, tt.want, got, "NormalizeIP(%q, exempt=%v)", tt.raw, tt.exemptLocal)
	}
}

func TestFromHTTPRequest(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	r := httptest.NewRequest("POST", "http://example.com:8080/login?next=%2F", nil)
	r.RemoteAddr = "66.249.66.1:51234"
	r.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")
	r.Header.Add("Accept", "text/html")
	r.Header.Add("Accept", "application/json")
	r.Header.Set("Referer", "http://example.com/")

	// Act
	f := FromHTTPRequest(r, Options{})

	// Assert
	assert.Equal("66.249.66.1", f.IP)
	assert.Equal("post", f.Method)
	assert.Equal("HTTP/1.1", f.Protocol)
	assert.Equal("next=%2F", f.QueryString)
	assert.Equal("example.com", f.ServerName)
	assert.Equal("Mozilla/5.0 (Windows NT 10.0; Win64; x64)", f.UserAgent)
	assert.Equal("application/json", f.Headers["accept"])
	assert.Equal("example.com:8080", f.Headers["host"])
	assert.Equal("http://example.com/", f.Headers["referer"])
}

func TestFromHTTPRequestLocalPeer(t *testing.T) {
	// Arrange
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "[::1]:4000"

	// Act
	blanked := FromHTTPRequest(r, Options{})
	kept := FromHTTPRequest(r, Options{ExemptLocal: true})

	// Assert
	assert.Equal(t, "", blanked.IP)
	assert.Equal(t, "::1", kept.IP)
}

func TestFromHTTPRequestEmptyHeaderIsPresent(t *testing.T) {
	// Arrange
	r := httptest.NewRequest("GET", "/", nil)
	r.Header["Connection"] = []string{""}

	// Act
	f := FromHTTPRequest(r, Options{})
	value, ok := f.Header("connection")

	// Assert
	assert.True(t, ok)
	assert.Equal(t, "", value)
}

func TestHeaderBlob(t *testing.T) {
	// Arrange
	f := &Facts{Headers: map[string]string{
		"user-agent": "curl/8.0",
		"accept":     "*/*",
		"host":       "example.com",
	}}

	// Act
	blob := f.HeaderBlob()

	// Assert
	assert.Equal(t, "accept: */*\nhost: example.com\nuser-agent: curl/8.0", blob)
	assert.Equal(t, "", (&Facts{}).HeaderBlob())
}

func TestCanonicalName(t *testing.T) {
	assert.Equal(t, "x-forwarded-for", CanonicalName("X_FORWARDED_FOR"))
	assert.Equal(t, "content-type", CanonicalName("Content-Type"))
	assert.Equal(t, "", CanonicalName(" "))
}
