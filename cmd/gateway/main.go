package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wirelane/drawbridge/internal/admin"
	"github.com/wirelane/drawbridge/internal/admin/auth"
	"github.com/wirelane/drawbridge/internal/config"
	"github.com/wirelane/drawbridge/internal/connhandler"
	"github.com/wirelane/drawbridge/internal/logging"
	"github.com/wirelane/drawbridge/internal/routecache"
	"github.com/wirelane/drawbridge/internal/snapshot"
	"github.com/wirelane/drawbridge/internal/store"
	"github.com/wirelane/drawbridge/internal/supervisor"
	"github.com/wirelane/drawbridge/internal/telemetry"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// Exit codes per the admin/CLI contract: 0 ok, 2 a config document was
// rejected, 3 a listener could not bind.
const (
	exitOK          = 0
	exitConfigError = 2
	exitBindError   = 3
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitConfigError)
	}

	logCfg := logging.ConfigFromEnv()
	if logCfg.Level == "" {
		logCfg.Level = "info"
	}
	logger, logCloser, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(exitConfigError)
	}
	defer logger.Sync()
	if logCloser != nil {
		defer logCloser.Close()
	}
	logging.SetGlobal(logger)

	switch os.Args[1] {
	case "serve":
		runServe(logger, os.Args[2:])
	case "import":
		runImport(logger, os.Args[2:])
	case "export":
		runExport(logger, os.Args[2:])
	case "reset-admin":
		runResetAdmin(logger, os.Args[2:])
	case "-version", "--version", "version":
		fmt.Printf("drawbridge %s (built %s)\n", version, buildTime)
		os.Exit(exitOK)
	default:
		usage()
		os.Exit(exitConfigError)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: drawbridge <serve|import|export|reset-admin> [flags]")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func openStore(logger *zap.Logger) *store.Store {
	st, err := store.Open(env("DATABASE_PATH", "drawbridge.db"))
	if err != nil {
		logger.Error("failed to open store", zap.Error(err))
		os.Exit(exitConfigError)
	}
	return st
}

// runServe starts the data-plane listener supervisor and the admin HTTP
// server side by side, reconciling the supervisor against the store's
// current entity set once at startup.
func runServe(logger *zap.Logger, args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	bindAdmin := fs.String("bind-admin", env("BIND_ADMIN", "127.0.0.1:8081"), "admin HTTP listen address")
	fs.Parse(args)

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Error("JWT_SECRET must be set")
		os.Exit(exitConfigError)
	}

	st := openStore(logger)
	defer st.Close()

	bundle, err := st.LoadAll()
	if err != nil {
		logger.Error("failed to load entities", zap.Error(err))
		os.Exit(exitConfigError)
	}
	snap, err := snapshot.Build(bundle, logger)
	if err != nil {
		logger.Error("failed to build snapshot", zap.Error(err))
		os.Exit(exitConfigError)
	}
	snapStore := snapshot.NewStore(snap)

	cache := routecache.New(4096, 32)
	tel := telemetry.NewCollector()
	handler := connhandler.New(cache, tel, logger, connhandler.DefaultConfig)
	sv := supervisor.New(handler, cache, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if errs := sv.Reconcile(ctx, snap); len(errs) > 0 {
		for _, e := range errs {
			logger.Error("bind error during startup reconcile", zap.Error(e))
		}
		os.Exit(exitBindError)
	}

	jwtAuth := auth.New(jwtSecret, 24*time.Hour)
	adminSrv := admin.New(st, snapStore, sv, tel, jwtAuth, logger)
	httpSrv := &http.Server{Addr: *bindAdmin, Handler: adminSrv.Handler()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("admin server listening", zap.String("addr", *bindAdmin))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sv.StopAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	logger.Info("drawbridge started",
		zap.String("version", version),
		zap.Strings("listeners", sv.Addrs()),
	)

	if err := g.Wait(); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(exitConfigError)
	}
	os.Exit(exitOK)
}

func runImport(logger *zap.Logger, args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: drawbridge import <file>")
		os.Exit(exitConfigError)
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		logger.Error("failed to read config document", zap.Error(err))
		os.Exit(exitConfigError)
	}
	entities, err := config.Decode(data)
	if err != nil {
		logger.Error("config document rejected", zap.Error(err))
		os.Exit(exitConfigError)
	}

	st := openStore(logger)
	defer st.Close()

	for _, p := range entities.Proxies {
		if _, err := st.PutProxy(p); err != nil {
			logger.Error("failed to import proxy", zap.Error(err))
			os.Exit(exitConfigError)
		}
	}
	for _, n := range entities.Nodes {
		if _, err := st.PutGatewayNode(n); err != nil {
			logger.Error("failed to import gateway node", zap.Error(err))
			os.Exit(exitConfigError)
		}
	}
	for _, d := range entities.Domains {
		if _, err := st.PutDomain(d); err != nil {
			logger.Error("failed to import domain", zap.Error(err))
			os.Exit(exitConfigError)
		}
	}
	for _, rule := range entities.Rules {
		if _, err := st.PutGateway(rule); err != nil {
			logger.Error("failed to import gateway rule", zap.Error(err))
			os.Exit(exitConfigError)
		}
	}

	if _, err := st.BumpGeneration(); err != nil {
		logger.Error("failed to bump generation", zap.Error(err))
		os.Exit(exitConfigError)
	}

	logger.Info("import complete", zap.Int("proxies", len(entities.Proxies)))
	os.Exit(exitOK)
}

func runExport(logger *zap.Logger, args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: drawbridge export <file>")
		os.Exit(exitConfigError)
	}

	st := openStore(logger)
	defer st.Close()

	bundle, err := st.LoadAll()
	if err != nil {
		logger.Error("failed to load entities", zap.Error(err))
		os.Exit(exitConfigError)
	}
	out, err := config.Encode(config.Entities{
		Proxies: bundle.Proxies, Domains: bundle.Domains, Nodes: bundle.Nodes, Rules: bundle.Gateways,
	})
	if err != nil {
		logger.Error("failed to encode entities", zap.Error(err))
		os.Exit(exitConfigError)
	}
	if err := os.WriteFile(fs.Arg(0), out, 0o644); err != nil {
		logger.Error("failed to write config document", zap.Error(err))
		os.Exit(exitConfigError)
	}
	os.Exit(exitOK)
}

func runResetAdmin(logger *zap.Logger, args []string) {
	fs := flag.NewFlagSet("reset-admin", flag.ExitOnError)
	fs.Parse(args)

	st := openStore(logger)
	defer st.Close()

	_, password, err := st.ResetAdmin()
	if err != nil {
		logger.Error("failed to reset admin user", zap.Error(err))
		os.Exit(exitConfigError)
	}
	fmt.Printf("admin password reset: %s\n", password)
	os.Exit(exitOK)
}
