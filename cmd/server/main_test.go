package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bouncer/config"
	"bouncer/evidence"
	"bouncer/facts"
	"bouncer/heuristics"
	"bouncer/logging"
	"bouncer/metrics"
	"bouncer/signature"
	"bouncer/testutils"
	"bouncer/waf"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirewallInFrontOfUpstream(t *testing.T) {
	// Arrange
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("from upstream"))
	}))
	defer upstream.Close()

	env := newTestEnv(t, upstream.URL)
	front := httptest.NewServer(env.router)
	defer front.Close()

	tests := []struct {
		name       string
		method     string
		path       string
		userAgent  string
		wantStatus int
		wantBody   string
	}{
		{"browser is proxied", http.MethodGet, "/index.html", testutils.FirefoxUA, http.StatusOK, "from upstream"},
		{"scanner is denied", http.MethodGet, "/", "sqlmap/1.7.2#stable (https://sqlmap.org)", http.StatusForbidden, waf.DenialPage},
		{"injection is denied", http.MethodGet, "/?id=1+union+select+1", testutils.FirefoxUA, http.StatusForbidden, waf.DenialPage},
		{"trace is denied", http.MethodTrace, "/", testutils.FirefoxUA, http.StatusForbidden, waf.DenialPage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, front.URL+tt.path, nil)
			require.NoError(t, err)
			req.Header.Set("User-Agent", tt.userAgent)
			req.Header.Set("Accept", "text/html")
			req.Header.Set("Accept-Language", "en-US")
			req.Header.Set("Connection", "keep-alive")

			resp, err := front.Client().Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantBody, string(body))
		})
	}

	n, err := env.store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestUpstreamDown(t *testing.T) {
	// Arrange
	upstream := httptest.NewServer(http.NotFoundHandler())
	upstreamURL := upstream.URL
	upstream.Close()

	env := newTestEnv(t, upstreamURL)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	for name, value := range testutils.BrowserFacts(testutils.FirefoxUA).Headers {
		req.Header.Set(name, value)
	}
	rr := httptest.NewRecorder()

	// Act
	env.router.ServeHTTP(rr, req)

	// Assert
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestAdminRouter(t *testing.T) {
	// Arrange
	env := newTestEnv(t, "http://127.0.0.1:1")
	ctx := context.Background()
	for _, uri := range []string{"a=1", "b=2"} {
		require.NoError(t, env.store.RecordRejection(ctx, &facts.Facts{IP: "1.2.3.4", QueryString: uri, Method: "get"}))
	}
	env.recorder.ObserveVerdict("reject", "uri/fragment")
	admin := newAdminRouter(testutils.NewTestLogger(t), env.registry, env.store)

	// Act
	health := serve(admin, "/healthz")
	metricsResp := serve(admin, "/metrics")
	recent := serve(admin, "/evidence?limit=1")
	badLimit := serve(admin, "/evidence?limit=x")

	// Assert
	assert.Equal(t, http.StatusOK, health.Code)
	assert.Equal(t, "ok", health.Body.String())

	assert.Equal(t, http.StatusOK, metricsResp.Code)
	assert.Contains(t, metricsResp.Body.String(), `bouncer_rejections_total{check="uri"} 1`)

	require.Equal(t, http.StatusOK, recent.Code)
	var records []evidence.Record
	require.NoError(t, json.Unmarshal(recent.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "b=2", records[0].URI)

	assert.Equal(t, http.StatusBadRequest, badLimit.Code)
}

func TestAdminRouterEmptyEvidence(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1")
	admin := newAdminRouter(testutils.NewTestLogger(t), env.registry, env.store)

	rr := serve(admin, "/evidence")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"", defaultEvidenceLimit, false},
		{"0", 0, false},
		{"25", 25, false},
		{"5000", maxEvidenceLimit, false},
		{"-1", 0, true},
		{"ten", 0, true},
	}

	for _, tt := range tests {
		got, err := parseLimit(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestApplyFlags(t *testing.T) {
	// Arrange
	fs := flag.NewFlagSet("bouncer", flag.ContinueOnError)
	f := registerFlags(fs)
	require.NoError(t, fs.Parse([]string{"-listen", ":9999", "-exemptlocal", "-dataset", "/etc/ds.yaml"}))
	c := config.Default()
	c.Upstream = "http://backend:80"

	// Act
	applyFlags(fs, f, &c)

	// Assert
	assert.Equal(t, ":9999", c.Listen)
	assert.True(t, c.ExemptLocal)
	assert.Equal(t, "/etc/ds.yaml", c.DatasetPath)
	assert.Equal(t, "http://backend:80", c.Upstream, "flags not given keep the config value")
	assert.Equal(t, "info", c.Log.Level)
}

func TestApplyFlagsEvidenceAndListeners(t *testing.T) {
	// Arrange
	fs := flag.NewFlagSet("bouncer", flag.ContinueOnError)
	f := registerFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"-evidencedriver", "bolt",
		"-evidencepath", "/var/lib/bouncer/firewall.bolt",
		"-locktimeout", "3s",
		"-writetimeout", "250ms",
		"-pruneinterval", "0s",
		"-metrics", "127.0.0.1:9100",
		"-maxconns", "512",
	}))
	c := config.Default()

	// Act
	applyFlags(fs, f, &c)

	// Assert
	assert.Equal(t, "bolt", c.Evidence.Driver)
	assert.Equal(t, "/var/lib/bouncer/firewall.bolt", c.Evidence.Path)
	assert.Equal(t, 3*time.Second, c.Evidence.LockTimeout)
	assert.Equal(t, 250*time.Millisecond, c.Evidence.WriteTimeout)
	assert.Equal(t, time.Duration(0), c.Evidence.PruneInterval, "an explicit zero still overrides")
	assert.Equal(t, "127.0.0.1:9100", c.Metrics.Listen)
	assert.Equal(t, 512, c.MaxConnections)
	assert.NoError(t, c.Validate())
}

func TestApplyFlagsKeepsConfigWhenNotGiven(t *testing.T) {
	// Arrange
	fs := flag.NewFlagSet("bouncer", flag.ContinueOnError)
	f := registerFlags(fs)
	require.NoError(t, fs.Parse(nil))
	c := config.Default()

	// Act
	applyFlags(fs, f, &c)

	// Assert
	assert.Equal(t, config.Default(), c)
}

func TestApplyFlagsNegativeConnectionsFailValidation(t *testing.T) {
	fs := flag.NewFlagSet("bouncer", flag.ContinueOnError)
	f := registerFlags(fs)
	require.NoError(t, fs.Parse([]string{"-maxconns", "-1"}))
	c := config.Default()

	applyFlags(fs, f, &c)

	assert.Error(t, c.Validate())
}

func TestNewProxyRejectsRelativeUpstream(t *testing.T) {
	for _, upstream := range []string{"", "backend:80/path", "/only/a/path", "http://[::1"} {
		_, err := newProxy(testutils.NewTestLogger(t), upstream)
		assert.Error(t, err, upstream)
	}
}

func TestReloadClassifierKeepsCurrentOnBadDataset(t *testing.T) {
	// Arrange
	env := newTestEnv(t, "http://127.0.0.1:1")
	bad := filepath.Join(t.TempDir(), "dataset.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("uri_fragments: [unclosed"), 0o600))
	c := config.Default()
	c.DatasetPath = bad
	f := testutils.BrowserFacts(testutils.FirefoxUA)
	f.QueryString = "id=1+union+select+1"

	// Act
	reloadClassifier(testutils.NewTestLogger(t), env.recorder, env.server, c)

	// Assert
	assert.Equal(t, waf.Reject, env.server.EvalRequest(context.Background(), f))
}

func TestReloadClassifierInstallsNewDataset(t *testing.T) {
	// Arrange
	env := newTestEnv(t, "http://127.0.0.1:1")
	path := filepath.Join(t.TempDir(), "dataset.yaml")
	require.NoError(t, os.WriteFile(path, []byte("uri_fragments: [\"forbidden-token\"]\n"), 0o600))
	c := config.Default()
	c.DatasetPath = path
	f := testutils.BrowserFacts(testutils.FirefoxUA)
	f.QueryString = "q=forbidden-token"

	before := env.server.EvalRequest(context.Background(), f)

	// Act
	reloadClassifier(testutils.NewTestLogger(t), env.recorder, env.server, c)

	// Assert
	assert.Equal(t, waf.Allow, before)
	assert.Equal(t, waf.Reject, env.server.EvalRequest(context.Background(), f))
}

type testEnv struct {
	router   http.Handler
	server   waf.Server
	store    evidence.Store
	registry *prometheus.Registry
	recorder *metrics.Recorder
}

func newTestEnv(t *testing.T, upstream string) *testEnv {
	t.Helper()
	logger := testutils.NewTestLogger(t)

	ds, err := signature.DefaultDataset()
	require.NoError(t, err)

	store, err := evidence.Open(logger, evidence.Config{Driver: evidence.DriverMemory})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	rec := metrics.NewRecorder(reg)

	opts := heuristics.Options{ExemptLocal: true}
	s, err := waf.NewServer(logger, heuristics.New(ds, opts), store, logging.NewZerologResultsLogger(logger), rec, waf.ServerOptions{
		Facts: facts.Options{ExemptLocal: true},
	})
	require.NoError(t, err)

	proxy, err := newProxy(logger, upstream)
	require.NoError(t, err)

	return &testEnv{router: newRouter(s, proxy), server: s, store: store, registry: reg, recorder: rec}
}

func serve(h http.Handler, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}
