// placesync is a command-line client for the places catalogue: it browses
// locations and categories, manages an account, and keeps per-user favorites
// and comments in the shared document store.
//
// Usage:
//
//	placesync setup                                  # interactive first-run wizard
//	placesync locations [--query q] [--category id]  # list or search locations
//	placesync login --email <address>                # sign in and record the login
//	placesync favorite --email <address> --location <id>
//	placesync watch [--interval 5m]                  # keep the cache fresh until interrupted
//	placesync status                                 # show config and login history
//	placesync version                                # print version
//
// Every command accepts --config <path> and --verbose. Run placesync without
// arguments for the full list.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/njoerd114/placesync/internal/apperr"
	"github.com/njoerd114/placesync/internal/async"
	"github.com/njoerd114/placesync/internal/auth/identitytoolkit"
	"github.com/njoerd114/placesync/internal/config"
	"github.com/njoerd114/placesync/internal/ledger"
	"github.com/njoerd114/placesync/internal/remote/firestore"
	"github.com/njoerd114/placesync/internal/setup"
	syncp "github.com/njoerd114/placesync/internal/sync"
	"github.com/njoerd114/placesync/internal/telemetry"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

// errUsage is returned after usage has been printed.
var errUsage = errors.New("invalid usage")

func main() {
	if err := run(os.Args[1:]); err != nil {
		if !errors.Is(err, errUsage) {
			reportError(err)
		}
		os.Exit(1)
	}
}

// reportError prints the user-facing message for classified errors and the
// full chain for everything else.
func reportError(err error) {
	if kind := apperr.KindOf(err); kind != apperr.KindUnknown {
		fmt.Fprintf(os.Stderr, "%s\n  (%v)\n", kind.Message(), err)
		return
	}
	slog.Error("fatal error", "error", err)
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string) error
}

func commands() []command {
	return []command{
		{"setup", "Interactive first-run wizard", runSetup},
		{"locations", "List locations [--query q | --category id | --prefix p] [--lang en]", runLocations},
		{"location", "Show one location --id <id>", runLocation},
		{"categories", "List location categories", runCategories},
		{"signup", "Create an account --email <address> --name <name>", runSignUp},
		{"login", "Sign in --email <address>", runLogin},
		{"favorites", "List your favorite locations --email <address>", runFavorites},
		{"favorite", "Toggle a favorite --email <address> --location <id>", runFavorite},
		{"comments", "List comments on a location --location <id>", runComments},
		{"comment", "Add a comment --email <address> --location <id> --text <text>", runComment},
		{"uncomment", "Remove your comment --email <address> --id <comment id>", runUncomment},
		{"profile", "Show or change your profile --email <address> [--name] [--new-email] [--picture]", runProfile},
		{"delete-account", "Delete your account --email <address> [--yes]", runDeleteAccount},
		{"reset-password", "Send a password reset email --email <address>", runResetPassword},
		{"status", "Show config and login history", runStatus},
		{"watch", "Refresh cached locations until interrupted [--interval d]", runWatch},
		{"version", "Print version", runVersion},
	}
}

// run dispatches to the subcommand named by args[0].
func run(args []string) error {
	if len(args) < 1 {
		printUsage()
		return errUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	for _, c := range commands() {
		if c.name == args[0] {
			return c.run(ctx, args[1:])
		}
	}

	fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
	printUsage()
	return errUsage
}

// printUsage shows help and suggests setup if no config exists.
func printUsage() {
	fmt.Fprintln(os.Stderr, "placesync: browse places, keep favorites and comments in sync")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	for _, c := range commands() {
		fmt.Fprintf(os.Stderr, "  placesync %-15s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Global flags: --config <path>  --verbose")

	cfgPath, _ := config.DefaultPath()
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "No config file found. Run 'placesync setup' to get started.")
	}
}

// --- Flags -------------------------------------------------------------------

// globalFlags are accepted by every command.
type globalFlags struct {
	configPath string
	verbose    bool
}

func newFlagSet(name string) (*flag.FlagSet, *globalFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	g := &globalFlags{}
	defaultCfg, _ := config.DefaultPath()
	fs.StringVar(&g.configPath, "config", defaultCfg, "path to config.yaml")
	fs.BoolVar(&g.verbose, "verbose", false, "enable debug logging")
	return fs, g
}

// parse parses args and checks that every flag in required was given a
// non-empty value.
func parse(fs *flag.FlagSet, args []string, required ...string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	for _, name := range required {
		if f := fs.Lookup(name); f == nil || f.Value.String() == "" {
			fmt.Fprintf(os.Stderr, "%s: --%s is required\n", fs.Name(), name)
			fs.Usage()
			return errUsage
		}
	}
	return nil
}

// --- Wiring ------------------------------------------------------------------

// app holds the backends shared by the data commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	prompt *setup.Prompter

	ledger *ledger.Ledger
	repo   *syncp.Repository
	toggle *syncp.FavoriteToggle

	// Completions are delivered on loop, which runs on the command's own
	// goroutine. scope closes when the command is interrupted.
	loop  *async.Loop
	scope *async.Scope

	closers []func()
}

func newLogger(verbose bool) (*slog.Logger, slog.Handler) {
	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	return slog.New(h), h
}

// loadConfig sets up logging and reads the config file. Telemetry, when
// configured, is started here so that the log tee sees every later record.
func loadConfig(ctx context.Context, g *globalFlags) (*config.Config, *slog.Logger, func(), error) {
	logger, handler := newLogger(g.verbose)
	slog.SetDefault(logger)

	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config from %q: %w", g.configPath, err)
	}
	logger.Debug("config loaded", "path", g.configPath, "project_id", cfg.ProjectID)

	shutdown := func() {}
	if cfg.Telemetry != nil {
		shutdownTel, err := telemetry.Setup(ctx, telemetry.Config{
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
			Insecure:       cfg.Telemetry.Insecure,
			Headers:        cfg.Telemetry.Headers,
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: version,
			ProjectID:      cfg.ProjectID,
		})
		if err != nil {
			logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			logger = slog.New(telemetry.NewLogHandler(handler, telemetry.DefaultServiceName))
			slog.SetDefault(logger)
			logger.Debug("telemetry enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
			shutdown = func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTel(flushCtx); err != nil {
					logger.Error("telemetry shutdown error", "error", err)
				}
			}
		}
	}
	return cfg, logger, shutdown, nil
}

func ledgerPath(cfg *config.Config) (string, error) {
	if cfg.LedgerPath != "" {
		return cfg.LedgerPath, nil
	}
	return ledger.DefaultPath()
}

// openApp connects every backend. The caller must defer app.close.
func openApp(ctx context.Context, g *globalFlags) (*app, error) {
	cfg, logger, shutdownTel, err := loadConfig(ctx, g)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:     cfg,
		logger:  logger,
		prompt:  setup.NewPrompter(os.Stdin, os.Stderr),
		loop:    async.NewLoop(),
		scope:   async.NewScope(),
		closers: []func(){shutdownTel},
	}
	stopScope := context.AfterFunc(ctx, a.scope.Close)
	a.closers = append(a.closers, func() { stopScope() })

	// --- Document store ------------------------------------------------------

	store, err := firestore.Open(ctx, firestore.Config{
		ProjectID:       cfg.ProjectID,
		CredentialsFile: cfg.CredentialsFile,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("opening document store: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := store.Close(); err != nil {
			logger.Error("closing document store", "error", err)
		}
	})

	// --- Identity provider ---------------------------------------------------

	provider, err := identitytoolkit.New(identitytoolkit.Config{
		APIKey:   cfg.APIKey,
		Endpoint: cfg.AuthEndpoint,
		Timeout:  cfg.RequestTimeout,
	}, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("initialising identity provider: %w", err)
	}

	// --- Login ledger --------------------------------------------------------

	path, err := ledgerPath(cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	led, err := ledger.Open(ctx, path, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("opening login ledger at %q: %w", path, err)
	}
	a.ledger = led
	a.closers = append(a.closers, func() {
		if err := led.Close(); err != nil {
			logger.Error("closing login ledger", "error", err)
		}
	})

	a.repo = syncp.NewRepository(store, provider, led, syncp.Options{PurgeDependents: cfg.PurgeDependents}, logger)
	a.toggle = syncp.NewFavoriteToggle(a.repo, logger)
	return a, nil
}

// close releases backends in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// call runs fn through the async layer and pumps the loop until its result
// is delivered or ctx ends.
func call[T any](ctx context.Context, a *app, fn func(context.Context) (T, error)) (T, error) {
	return deliver(ctx, a.scope, a.loop, fn)
}

func deliver[T any](ctx context.Context, scope *async.Scope, loop *async.Loop, fn func(context.Context) (T, error)) (T, error) {
	loopCtx, stop := context.WithCancel(ctx)
	defer stop()

	var (
		res       async.Result[T]
		delivered bool
	)
	async.Deliver(ctx, scope, loop, fn, func(r async.Result[T]) {
		res, delivered = r, true
		stop()
	})
	_ = loop.Run(loopCtx)

	if !delivered {
		var zero T
		return zero, fmt.Errorf("interrupted: %w", ctx.Err())
	}
	return res.Value, res.Err
}

// exec is call for operations without a result value.
func exec(ctx context.Context, a *app, fn func(context.Context) error) error {
	_, err := call(ctx, a, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
