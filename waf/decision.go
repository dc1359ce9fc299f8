package waf

// Decision denotes the firewall's response to a request
type Decision int

const (
	_ Decision = iota
	// Allow means that the request should be passed on to the application
	Allow

	// Reject means that the request should be answered with the denial page and go no further
	Reject
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Reject:
		return "reject"
	}
	return "unknown"
}
