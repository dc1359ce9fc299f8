package ipreputation

import (
	"testing"

	"bouncer/facts"
	"bouncer/signature"

	"github.com/stretchr/testify/assert"
)

const (
	googlebotUA = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
	bingbotUA   = "Mozilla/5.0 (compatible; bingbot/2.0; +http://www.bing.com/bingbot.htm)"
	firefoxUA   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/115.0"
)

func TestEmptyIP(t *testing.T) {
	engine := newDefaultEngine(t, Options{})

	reason := engine.EvalFacts(&facts.Facts{UserAgent: firefoxUA})
	if reason != ReasonNoIP {
		t.Fatalf("Engine.EvalFacts accepted a request without a peer address")
	}
}

func TestMartians(t *testing.T) {
	engine := newDefaultEngine(t, Options{ExemptLocal: true})

	for _, ip := range []string{"0.1.2.3", "172.16.5.4", "192.0.2.10", "203.0.113.200", "240.1.1.1", "169.254.9.9"} {
		reason := engine.EvalFacts(&facts.Facts{IP: ip, UserAgent: firefoxUA})
		assert.Equal(t, ReasonMartian, reason, ip)
	}
}

func TestLocalRanges(t *testing.T) {
	strict := newDefaultEngine(t, Options{})
	exempt := newDefaultEngine(t, Options{ExemptLocal: true})

	for _, ip := range []string{"10.1.2.3", "127.0.0.1", "192.168.100.1"} {
		f := &facts.Facts{IP: ip, UserAgent: firefoxUA}
		assert.Equal(t, ReasonLocal, strict.EvalFacts(f), ip)
		assert.Equal(t, "", exempt.EvalFacts(f), ip)
	}
}

func TestPublicBrowser(t *testing.T) {
	engine := newDefaultEngine(t, Options{})

	reason := engine.EvalFacts(&facts.Facts{IP: "1.2.3.4", UserAgent: firefoxUA})
	if reason != "" {
		t.Fatalf("Engine.EvalFacts false positive: %v", reason)
	}

	reason = engine.EvalFacts(&facts.Facts{IP: "2a00:1450:4001:81b::200e", UserAgent: firefoxUA})
	if reason != "" {
		t.Fatalf("Engine.EvalFacts false positive for IPv6: %v", reason)
	}
}

func TestCrawlerFromPublishedRange(t *testing.T) {
	engine := newDefaultEngine(t, Options{})

	assert.Equal(t, "", engine.EvalFacts(&facts.Facts{IP: "66.249.66.1", UserAgent: googlebotUA}))
	assert.Equal(t, "", engine.EvalFacts(&facts.Facts{IP: "40.77.167.1", UserAgent: bingbotUA}))
}

func TestSpoofedCrawler(t *testing.T) {
	engine := newDefaultEngine(t, Options{})

	assert.Equal(t, "spoofed-google", engine.EvalFacts(&facts.Facts{IP: "1.2.3.4", UserAgent: googlebotUA}))
	assert.Equal(t, "spoofed-msn", engine.EvalFacts(&facts.Facts{IP: "1.2.3.4", UserAgent: bingbotUA}))
	assert.Equal(t, "spoofed-baidu", engine.EvalFacts(&facts.Facts{IP: "1.2.3.4", UserAgent: "Mozilla/5.0 (compatible; Baiduspider/2.0; +http://www.baidu.com/search/spider.html)"}))
	assert.Equal(t, "spoofed-yahoo", engine.EvalFacts(&facts.Facts{IP: "1.2.3.4", UserAgent: "Mozilla/5.0 (compatible; Yahoo! Slurp; http://help.yahoo.com/help/us/ysearch/slurp)"}))
}

func TestCrawlerTokensAreCaseSensitive(t *testing.T) {
	engine := newDefaultEngine(t, Options{})

	reason := engine.EvalFacts(&facts.Facts{IP: "1.2.3.4", UserAgent: "Mozilla/5.0 (compatible; googlebot-like)"})
	assert.Equal(t, "", reason)
}

func TestOnlyFirstClaimedCrawlerIsChecked(t *testing.T) {
	engine := newDefaultEngine(t, Options{})

	// Claims google and msn. The address is google's, so the msn claim is never consulted.
	ua := "Googlebot msnbot"
	assert.Equal(t, "", engine.EvalFacts(&facts.Facts{IP: "66.249.66.1", UserAgent: ua}))

	// From an msn address the google claim fails first.
	assert.Equal(t, "spoofed-google", engine.EvalFacts(&facts.Facts{IP: "207.46.13.1", UserAgent: ua}))
}

func TestCustomDataset(t *testing.T) {
	// Arrange
	ds := &signature.Dataset{
		MartianRanges: []string{"2001:db8::/32"},
		Crawlers: []signature.Crawler{
			{Name: "example", UATokens: []string{"ExampleBot"}, Ranges: []string{"2a00:1450::/32"}},
		},
	}
	engine := NewEngine(ds, Options{})

	// Act & Assert
	assert.Equal(t, ReasonMartian, engine.EvalFacts(&facts.Facts{IP: "2001:db8::1"}))
	assert.Equal(t, "", engine.EvalFacts(&facts.Facts{IP: "2a00:1450:4001::1", UserAgent: "ExampleBot/1.0"}))
	assert.Equal(t, "spoofed-example", engine.EvalFacts(&facts.Facts{IP: "2a01::1", UserAgent: "ExampleBot/1.0"}))
	assert.Equal(t, "spoofed-example", engine.EvalFacts(&facts.Facts{IP: "1.2.3.4", UserAgent: "ExampleBot/1.0"}))
}

func newDefaultEngine(t *testing.T, opts Options) *Engine {
	ds, err := signature.DefaultDataset()
	if err != nil {
		t.Fatalf("failed to load default dataset: %v", err)
	}
	return NewEngine(ds, opts)
}
