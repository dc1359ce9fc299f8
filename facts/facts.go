// Package facts normalizes the raw attributes of an inbound request into the
// immutable record the heuristics read. It holds no policy.
package facts

import (
	"net"
	"net/http"
	"net/netip"
	"sort"
	"strings"

	"bouncer/ipaddresses"
)

const serverVarHeaderPrefix = "http_"

// Facts is the normalized view of one request.
// Header names are lower-case with dashes, e.g. "user-agent".
type Facts struct {
	IP          string
	UserAgent   string
	QueryString string
	Method      string
	Protocol    string
	ServerName  string
	Headers     map[string]string
}

// Options control how the peer address is normalized.
type Options struct {
	// ExemptLocal keeps loopback, private and reserved peer addresses instead of blanking them.
	ExemptLocal bool
}

// FromServerVars builds Facts from CGI style server variables such as
// REMOTE_ADDR and HTTP_USER_AGENT.
func FromServerVars(vars map[string]string, opts Options) *Facts {
	f := &Facts{Headers: make(map[string]string)}

	// Sorted so that when two variables fold to the same header the outcome is stable.
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !strings.HasPrefix(strings.ToLower(name), serverVarHeaderPrefix) {
			continue
		}
		header := CanonicalName(name[len(serverVarHeaderPrefix):])
		if header == "" {
			continue
		}
		f.Headers[header] = vars[name]
	}

	f.IP = NormalizeIP(vars["REMOTE_ADDR"], opts)
	f.UserAgent = strings.TrimSpace(vars["HTTP_USER_AGENT"])
	f.QueryString = vars["QUERY_STRING"]
	f.Method = normalizeMethod(vars["REQUEST_METHOD"])
	f.Protocol = strings.TrimSpace(vars["SERVER_PROTOCOL"])
	f.ServerName = strings.TrimSpace(vars["SERVER_NAME"])
	return f
}

// FromHTTPRequest builds Facts from a request received by net/http.
// Multi-valued header fields keep their last value.
func FromHTTPRequest(r *http.Request, opts Options) *Facts {
	f := &Facts{Headers: make(map[string]string, len(r.Header)+1)}

	for name, values := range r.Header {
		if len(values) == 0 {
			continue
		}
		f.Headers[CanonicalName(name)] = values[len(values)-1]
	}

	// net/http moves Host out of the header map.
	if r.Host != "" {
		f.Headers["host"] = r.Host
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	f.IP = NormalizeIP(host, opts)

	f.UserAgent = strings.TrimSpace(f.Headers["user-agent"])
	if r.URL != nil {
		f.QueryString = r.URL.RawQuery
	}
	f.Method = normalizeMethod(r.Method)
	f.Protocol = strings.TrimSpace(r.Proto)
	f.ServerName = stripPort(r.Host)
	return f
}

// CanonicalName turns a header or server variable name into the form used as a Headers key.
func CanonicalName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", "-"))
}

// NormalizeIP returns the textual form of a valid peer address, or "" when the address
// is invalid or, unless local traffic is exempt, loopback, private or reserved.
func NormalizeIP(raw string, opts Options) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	addr = addr.Unmap()
	if addr.Zone() != "" {
		addr = addr.WithZone("")
	}

	if !opts.ExemptLocal && isLocalOrReserved(addr) {
		return ""
	}

	return addr.String()
}

func isLocalOrReserved(addr netip.Addr) bool {
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified() ||
		addr.IsMulticast() || addr.IsLinkLocalMulticast() || addr.IsInterfaceLocalMulticast() {
		return true
	}

	special, err := ipaddresses.IsSpecialPurposeAddress(addr.String())
	return err == nil && special
}

// Header returns the value of the named header and whether it was sent.
func (f *Facts) Header(name string) (value string, ok bool) {
	value, ok = f.Headers[name]
	return
}

// HasHeader reports whether the named header was sent, even with an empty value.
func (f *Facts) HasHeader(name string) bool {
	_, ok := f.Headers[name]
	return ok
}

// HeaderBlob renders the headers as "name: value" lines in name order.
func (f *Facts) HeaderBlob() string {
	names := make([]string, 0, len(f.Headers))
	for name := range f.Headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(f.Headers[name])
	}
	return b.String()
}

// URI is the request identity stored with evidence: the raw query string.
func (f *Facts) URI() string {
	return f.QueryString
}

func normalizeMethod(method string) string {
	return strings.ToLower(strings.TrimSpace(method))
}

func stripPort(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return strings.TrimSuffix(strings.TrimPrefix(hostport, "["), "]")
}
