package waf

import (
	"net/http"

	"bouncer/facts"
)

// DenialPage is the body of every rejection. It is the same whichever rule fired.
const DenialPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>Denied</title>
</head>
<body>
	<p>Access to this resource is restricted</p>
</body>
</html>`

// Middleware evaluates every request before next sees it. Rejected requests get the denial page.
func (s *serverImpl) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f := facts.FromHTTPRequest(r, s.opts.Facts)

		if s.EvalRequest(r.Context(), f) == Reject {
			WriteDenial(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// WriteDenial answers a request with 403 and the static denial page.
func WriteDenial(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	h.Set("Connection", "close")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(DenialPage))
}
