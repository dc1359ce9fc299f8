package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	_ "net/http/pprof"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bouncer/config"
	"bouncer/evidence"
	"bouncer/facts"
	"bouncer/heuristics"
	"bouncer/logging"
	"bouncer/metrics"
	"bouncer/signature"
	"bouncer/waf"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type cliFlags struct {
	configPath  string
	listen      string
	upstream    string
	logLevel    string
	dataset     string
	exemptLocal bool
	profiling   bool

	evidenceDriver string
	evidencePath   string
	lockTimeout    time.Duration
	writeTimeout   time.Duration
	pruneInterval  time.Duration
	metricsListen  string
	maxConns       int
}

// Dependency injection composition root
func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	f := registerFlags(fs)
	fs.Parse(os.Args[1:])

	c, err := config.Load(&config.FileSystemImpl{}, f.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	applyFlags(fs, f, &c)
	if err := c.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := logging.NewAppLogger(logging.AppLogOptions{
		Level: c.Log.Level,
		File:  c.Log.File,
		Rotation: logging.LogFileSystemImpl{
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxBackups: c.Log.MaxBackups,
			MaxAgeDays: c.Log.MaxAgeDays,
			Compress:   c.Log.Compress,
		},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if f.profiling {
		go func() {
			http.ListenAndServe("localhost:6060", nil)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, c); err != nil {
		logger.Fatal().Err(err).Msg("Error while running firewall")
	}
	logger.Info().Msg("Firewall stopped")
}

func registerFlags(fs *flag.FlagSet) *cliFlags {
	f := &cliFlags{}
	fs.StringVar(&f.configPath, "config", "", "if set, read settings from this YAML file before applying flags")
	fs.StringVar(&f.listen, "listen", "", "address to accept client connections on")
	fs.StringVar(&f.upstream, "upstream", "", "base URL that admitted requests are proxied to")
	fs.StringVar(&f.logLevel, "loglevel", "", "sets log level. Can be one of: debug, info, warn, error, fatal, panic.")
	fs.StringVar(&f.dataset, "dataset", "", "if set, use the given signature dataset instead of the built in one")
	fs.BoolVar(&f.exemptLocal, "exemptlocal", false, "treat loopback and private peers as known addresses")
	fs.BoolVar(&f.profiling, "profiling", false, "whether to enable the localhost:6060/debug/pprof/ endpoint")
	fs.StringVar(&f.evidenceDriver, "evidencedriver", "", "evidence store driver. Can be one of: sqlite, bolt, memory.")
	fs.StringVar(&f.evidencePath, "evidencepath", "", "evidence database file")
	fs.DurationVar(&f.lockTimeout, "locktimeout", 0, "how long to wait for a locked evidence database")
	fs.DurationVar(&f.writeTimeout, "writetimeout", 0, "how long a rejected request waits for its evidence write")
	fs.DurationVar(&f.pruneInterval, "pruneinterval", 0, "period of the standalone evidence prune. 0 leaves pruning to inserts.")
	fs.StringVar(&f.metricsListen, "metrics", "", "address serving /metrics, /healthz and /evidence. Empty disables it.")
	fs.IntVar(&f.maxConns, "maxconns", 0, "cap on concurrently open client connections. 0 means no cap.")
	return f
}

// applyFlags overrides config values with the flags given on the command line.
func applyFlags(fs *flag.FlagSet, f *cliFlags, c *config.Main) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "listen":
			c.Listen = f.listen
		case "upstream":
			c.Upstream = f.upstream
		case "loglevel":
			c.Log.Level = f.logLevel
		case "dataset":
			c.DatasetPath = f.dataset
		case "exemptlocal":
			c.ExemptLocal = f.exemptLocal
		case "evidencedriver":
			c.Evidence.Driver = f.evidenceDriver
		case "evidencepath":
			c.Evidence.Path = f.evidencePath
		case "locktimeout":
			c.Evidence.LockTimeout = f.lockTimeout
		case "writetimeout":
			c.Evidence.WriteTimeout = f.writeTimeout
		case "pruneinterval":
			c.Evidence.PruneInterval = f.pruneInterval
		case "metrics":
			c.Metrics.Listen = f.metricsListen
		case "maxconns":
			c.MaxConnections = f.maxConns
		}
	})
}

func run(ctx context.Context, logger zerolog.Logger, c config.Main) (err error) {
	reg := prometheus.NewRegistry()
	rec := metrics.NewRecorder(reg)

	classifier, err := loadClassifier(logger, rec, c)
	if err != nil {
		return
	}

	store, err := evidence.Open(logger, evidence.Config{
		Driver:   c.Evidence.Driver,
		Path:     c.Evidence.Path,
		Timeout:  c.Evidence.LockTimeout,
		Observer: rec,
	})
	if err != nil {
		return
	}
	defer store.Close()

	rl, closeResults, err := newResultsLogger(logger, c.Log)
	if err != nil {
		return
	}
	defer closeResults()

	w, err := waf.NewServer(logger, classifier, store, rl, rec, waf.ServerOptions{
		EvidenceWriteTimeout: c.Evidence.WriteTimeout,
		Facts:                facts.Options{ExemptLocal: c.ExemptLocal},
	})
	if err != nil {
		return
	}

	proxy, err := newProxy(logger, c.Upstream)
	if err != nil {
		return
	}

	ln, err := net.Listen("tcp", c.Listen)
	if err != nil {
		return
	}
	if c.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, c.MaxConnections)
	}

	servers := []*http.Server{{Handler: newRouter(w, proxy)}}
	listeners := []net.Listener{ln}

	if c.Metrics.Listen != "" {
		var adminLn net.Listener
		if adminLn, err = net.Listen("tcp", c.Metrics.Listen); err != nil {
			ln.Close()
			return
		}
		servers = append(servers, &http.Server{Handler: newAdminRouter(logger, reg, store)})
		listeners = append(listeners, adminLn)
	}

	g, gctx := errgroup.WithContext(ctx)

	for i := range servers {
		srv, l := servers[i], listeners[i]
		logger.Info().Str("addr", l.Addr().String()).Msg("Starting listener")
		g.Go(func() error {
			if err := srv.Serve(l); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("Error while shutting down listener")
			}
		}
		return nil
	})

	g.Go(func() error {
		pruneLoop(gctx, logger, store, c.Evidence.PruneInterval)
		return nil
	})

	g.Go(func() error {
		reloadOnHangup(gctx, logger, rec, w, c)
		return nil
	})

	err = g.Wait()
	return
}

// loadClassifier reads the configured dataset and builds the heuristics pipeline over it.
func loadClassifier(logger zerolog.Logger, rec *metrics.Recorder, c config.Main) (p *heuristics.Pipeline, err error) {
	ds, err := signature.LoadDataset(&signature.FileSystemImpl{}, c.DatasetPath)
	rec.ObserveDatasetLoad(err, time.Now())
	if err != nil {
		return
	}

	p = heuristics.New(ds, heuristics.Options{ExemptLocal: c.ExemptLocal})
	logger.Info().Str("dataset", c.DatasetPath).Stringer("pipeline", p).Msg("Loaded classifier")
	return
}

// reloadOnHangup swaps in a freshly loaded classifier on every SIGHUP. A bad dataset keeps the current one.
func reloadOnHangup(ctx context.Context, logger zerolog.Logger, rec *metrics.Recorder, w waf.Server, c config.Main) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			reloadClassifier(logger, rec, w, c)
		}
	}
}

func reloadClassifier(logger zerolog.Logger, rec *metrics.Recorder, w waf.Server, c config.Main) {
	p, err := loadClassifier(logger, rec, c)
	if err != nil {
		logger.Error().Err(err).Msg("Error while reloading dataset, keeping the current classifier")
		return
	}
	w.PutClassifier(p)
}

// pruneLoop removes expired evidence on a timer. A zero interval disables it.
func pruneLoop(ctx context.Context, logger zerolog.Logger, store evidence.Store, interval time.Duration) {
	if interval <= 0 {
		return
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := store.Prune(ctx); err != nil && ctx.Err() == nil {
				logger.Warn().Err(err).Msg("Error while pruning evidence")
			}
		}
	}
}

func newResultsLogger(logger zerolog.Logger, c config.Log) (rl waf.ResultsLogger, closer func(), err error) {
	closer = func() {}
	if c.ResultsDir == "" {
		rl = logging.NewZerologResultsLogger(logger)
		return
	}

	fs := &logging.LogFileSystemImpl{
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
	frl, err := logging.NewFileResultsLogger(fs, logger, c.ResultsDir)
	if err != nil {
		return
	}
	rl = frl
	closer = func() { frl.Close() }
	return
}

func newProxy(logger zerolog.Logger, upstream string) (proxy *httputil.ReverseProxy, err error) {
	u, err := url.Parse(upstream)
	if err != nil {
		err = fmt.Errorf("parsing upstream %q: %w", upstream, err)
		return
	}
	if u.Scheme == "" || u.Host == "" {
		err = fmt.Errorf("upstream %q must be an absolute URL", upstream)
		return
	}

	proxy = httputil.NewSingleHostReverseProxy(u)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn().Err(err).Str("upstream", upstream).Msg("Error while proxying request")
		w.WriteHeader(http.StatusBadGateway)
	}
	return
}

// newRouter puts the firewall in front of every client request, whatever its method or path.
func newRouter(w waf.Server, upstream http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(w.Middleware)
	r.Handle("/*", upstream)
	return r
}
