package heuristics

import (
	"strings"

	"bouncer/facts"
)

const (
	minUserAgentLength = 10 // "Mozilla/5." alone
	maxUserAgentLength = 300
)

var allowedMethods = map[string]bool{
	"get":     true,
	"post":    true,
	"head":    true,
	"connect": true,
	"options": true,
	"patch":   true,
	"delete":  true,
	"put":     true,
}

func sanityCheck(f *facts.Facts) string {
	switch {
	case f.Protocol == "":
		return "no-protocol"
	case f.UserAgent == "":
		return "no-user-agent"
	case f.Method == "":
		return "no-method"
	case !strings.Contains(f.Protocol, "HTTP/"):
		return "protocol"
	case len(f.UserAgent) < minUserAgentLength || len(f.UserAgent) > maxUserAgentLength:
		return "user-agent-length"
	case !allowedMethods[f.Method]:
		return "method"
	}
	return ""
}
