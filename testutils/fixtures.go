package testutils

import (
	"sync"
	"time"

	"bouncer/facts"
)

// User agents of real clients, used across tests.
const (
	FirefoxUA   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/115.0"
	ChromeUA    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	GooglebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

// BrowserFacts returns the facts of a plain GET from a public address with the headers a browser sends.
func BrowserFacts(ua string) *facts.Facts {
	return &facts.Facts{
		IP:         "1.2.3.4",
		UserAgent:  ua,
		Method:     "get",
		Protocol:   "HTTP/1.1",
		ServerName: "example.com",
		Headers: map[string]string{
			"host":            "example.com",
			"user-agent":      ua,
			"accept":          "text/html,application/xhtml+xml",
			"accept-language": "en-US,en;q=0.5",
			"connection":      "keep-alive",
		},
	}
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock stopped at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current reading of the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
