package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/you/echo-relay/internal/backend"
	"github.com/you/echo-relay/internal/config"
	"github.com/you/echo-relay/internal/core"
	"github.com/you/echo-relay/internal/credentials"
	"github.com/you/echo-relay/internal/httpadmin"
	"github.com/you/echo-relay/internal/httpapi"
	"github.com/you/echo-relay/internal/metrics"
	"github.com/you/echo-relay/internal/sink"
	"github.com/you/echo-relay/internal/slackapi"
	"github.com/you/echo-relay/internal/slackbot"
	"github.com/you/echo-relay/internal/store"
	"github.com/you/echo-relay/internal/tokenfile"
	"github.com/you/echo-relay/internal/twitterbot"
	"github.com/you/echo-relay/internal/version"
)

// broadcastFunc lets the auditor be built before the API server exists.
type broadcastFunc func(core.AuditEvent)

func (f broadcastFunc) Broadcast(ev core.AuditEvent) { f(ev) }

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		versionFlag  bool
		configPath   string
		httpAddr     string
		dbPath       string
		baseURL      string
		backendURL   string
		tokenMode    string
		durableDedup bool
		accessLog    bool
	)

	flag.BoolVar(&versionFlag, "version", false, "Print build version and exit")
	flag.StringVar(&configPath, "config", os.Getenv("RELAY_CONFIG"), "Optional YAML config file")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address (e.g., :3000)")
	flag.StringVar(&dbPath, "sqlite", "", "Path to SQLite database file")
	flag.StringVar(&baseURL, "base-url", "", "Public base URL used in Twitter reply links")
	flag.StringVar(&backendURL, "backend-url", "", "Voice-assistant backend base URL")
	flag.StringVar(&tokenMode, "slack-token-mode", "", "Channel query token: shared or derived")
	flag.BoolVar(&durableDedup, "durable-dedup", false, "Keep processed Slack event ids in SQLite")
	flag.BoolVar(&accessLog, "http-access-log", true, "Log HTTP access records")
	flag.Parse()

	if versionFlag {
		fmt.Printf("relay version: %s (commit %s, built %s)\n", version.Version, version.Commit, version.BuildTime)
		os.Exit(0)
	}

	overrides := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		overrides[f.Name] = true
	})

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("relay: %v", err)
	}
	if overrides["http-addr"] {
		cfg.HTTP.Addr = strings.TrimSpace(httpAddr)
	}
	if overrides["sqlite"] {
		cfg.Store.SQLitePath = strings.TrimSpace(dbPath)
	}
	if overrides["base-url"] {
		cfg.BaseURL = strings.TrimSpace(baseURL)
	}
	if overrides["backend-url"] {
		cfg.Backend.URL = strings.TrimSpace(backendURL)
	}
	if overrides["slack-token-mode"] {
		cfg.Slack.TokenMode = tokenMode
	}
	if overrides["durable-dedup"] {
		cfg.Store.DurableDedup = durableDedup
	}
	if overrides["http-access-log"] {
		cfg.HTTP.AccessLog = accessLog
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("relay: invalid config: %v", err)
	}
	mode, err := slackbot.ParseTokenMode(cfg.Slack.TokenMode)
	if err != nil {
		log.Fatalf("relay: %v", err)
	}

	log.Printf("relay: %s", cfg.SummaryJSON())
	for _, name := range cfg.LegacyEnv {
		log.Printf("relay: %s is deprecated; use the RELAY_ variable", name)
	}
	if cfg.Slack.SigningSecret == "" {
		log.Printf("relay: slack signing secret not set; request signatures are not verified")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("relay: received %s, shutting down", sig)
		cancel()
	}()

	m := metrics.New()

	db, err := store.OpenSQLite(cfg.Store.SQLitePath)
	if err != nil {
		log.Fatalf("relay: open sqlite: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("relay: closing store: %v", err)
		}
	}()
	if err := db.Ping(); err != nil {
		log.Fatalf("relay: ping sqlite: %v", err)
	}

	var (
		api      *httpapi.Server
		writer   sink.Writer = sink.WriterFunc(db.WriteAudit)
		buffered *sink.BufferedWriter
	)
	if cfg.Batch() > 1 || cfg.FlushInterval() > 0 {
		buffered = sink.NewBufferedWriter(writer, sink.BufferedOptions{
			BatchSize:     cfg.Batch(),
			FlushInterval: cfg.FlushInterval(),
		})
		writer = buffered
	}
	auditor := sink.WithAPI(writer, broadcastFunc(func(ev core.AuditEvent) {
		if api != nil {
			api.Broadcast(ev)
		}
	}), m)

	tokens := tokenfile.New(cfg.SharedTokenFile)
	tokens.SetCached(cfg.SharedToken)
	var reloader httpadmin.TokenReloader
	if tokens.Path() != "" {
		if _, err := tokens.Reload(); err != nil {
			log.Printf("relay: shared token file: %v", err)
		}
		reloader = tokens
	}
	if tokens.Token() == "" {
		log.Printf("relay: no shared query token; channel and twitter queries will fail in shared mode")
	}

	resolver := credentials.NewResolver(db, cfg.Slack.ClientToken)
	query := backend.New(cfg.Backend.URL, cfg.BackendTimeout())

	var ledger slackbot.Ledger = slackbot.NewMemoryLedger()
	if cfg.Store.DurableDedup {
		ledger = db
	}

	bot, err := slackbot.New(slackbot.Deps{
		Resolver: resolver,
		Backend:  query,
		Sender:   slackapi.New(cfg.Slack.APIURL),
		Ledger:   ledger,
		Audit:    auditor,
		Metrics:  m,
		Logger:   slog.Default(),
		Mode:     mode,
		Shared:   tokens,
	})
	if err != nil {
		log.Fatalf("relay: %v", err)
	}

	pages := twitterbot.NewRegistry(cfg.BaseURL)

	api = httpapi.New(httpapi.Options{
		Addr:          cfg.HTTP.Addr,
		SigningSecret: cfg.Slack.SigningSecret,
		RateRPS:       cfg.HTTP.RateRPS,
		RateBurst:     cfg.HTTP.RateBurst,
		StaticDir:     cfg.HTTP.StaticDir,
		AccessLog:     cfg.HTTP.AccessLog,
		Build:         httpapi.BuildInfo{Version: version.Version, Revision: version.Commit, BuiltAt: version.BuiltAt()},
		Summary:       cfg.Summary(),
		Slack:         bot,
		Pages:         pages,
		Audit:         db,
		Metrics:       m,
		Dispatcher:    httpapi.NewDispatcher(cfg.BackendTimeout()+30*time.Second, m),
	})
	httpadmin.New(reloader, resolver, cfg.AdminToken).Register(api)

	var wg sync.WaitGroup

	if err := tokens.Watch(ctx); err != nil {
		log.Printf("relay: shared token watcher: %v", err)
	}

	if cfg.TwitterEnabled() {
		if cfg.BaseURL == "" {
			log.Printf("relay: base url not set; twitter reply links will be relative")
		}
		tw := twitterbot.NewAPI(ctx, twitterbot.Credentials{
			ConsumerKey:       cfg.Twitter.ConsumerKey,
			ConsumerSecret:    cfg.Twitter.ConsumerSecret,
			AccessToken:       cfg.Twitter.AccessToken,
			AccessTokenSecret: cfg.Twitter.AccessTokenSecret,
		})
		tbot, err := twitterbot.New(twitterbot.Deps{
			Backend: query,
			Poster:  twitterbot.APIPoster{Client: tw},
			Pages:   pages,
			Shared:  tokens,
			Handle:  cfg.Twitter.Handle,
			BaseURL: cfg.BaseURL,
			Audit:   auditor,
			Metrics: m,
			Logger:  slog.Default(),
		})
		if err != nil {
			log.Fatalf("relay: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := twitterbot.NewListener(tw, tbot).Run(ctx); err != nil {
				log.Printf("relay: twitter listener: %v", err)
			}
		}()
	} else {
		log.Printf("relay: twitter relay disabled")
	}

	go func() {
		if err := api.Start(); err != nil {
			log.Printf("relay: http api: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	if err := api.Shutdown(shutdownCtx); err != nil {
		log.Printf("relay: http api shutdown: %v", err)
	}
	cancelShutdown()
	wg.Wait()

	if buffered != nil {
		if err := buffered.Close(); err != nil {
			log.Printf("relay: flush audit buffer: %v", err)
		}
	}
	log.Printf("relay: shutdown complete")
}
