package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/tenxcards/tenxcards-go/internal/client"
	"github.com/tenxcards/tenxcards-go/internal/config"
	"github.com/tenxcards/tenxcards-go/internal/events"
	"github.com/tenxcards/tenxcards-go/internal/logging"
	"github.com/tenxcards/tenxcards-go/internal/metrics"
	"github.com/tenxcards/tenxcards-go/internal/service"
	"github.com/tenxcards/tenxcards-go/internal/store"
)

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":          {"login -email EMAIL [-password PASSWORD]", runLogin},
	"register":       {"register -email EMAIL [-password PASSWORD]", runRegister},
	"logout":         {"logout", runLogout},
	"whoami":         {"whoami", runWhoami},
	"decks":          {"decks [-page N] [-size N] [-sort FIELD,DIR]", runDecks},
	"deck-create":    {"deck-create -name NAME", runDeckCreate},
	"cards":          {"cards -deck ID [-source manual|ai|ai-edited] [-page N] [-size N]", runCards},
	"study":          {"study -deck ID [-shuffle=false]", runStudy},
	"generate":       {"generate -deck ID -file PATH|- [-count N]", runGenerate},
	"generations":    {"generations [-page N] [-size N]", runGenerations},
	"accept":         {"accept -generation ID [-only ID,ID]", runAccept},
	"reset-password": {"reset-password -email EMAIL | -token TOKEN [-password PASSWORD]", runResetPassword},
	"serve":          {"serve [-addr HOST:PORT]", runServe},
	"fake-api":       {"fake-api [-addr HOST:PORT]", runFakeAPI},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("tenxcards", flag.ContinueOnError)
	global.SetOutput(stderr)
	ephemeral := global.Bool("ephemeral", false, "keep tokens in memory only")
	global.Usage = func() { printUsage(stderr) }
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		printUsage(stderr)
		return 2
	}

	name := global.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", name)
		printUsage(stderr)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if *ephemeral {
		cfg.Store.Backend = config.StoreMemory
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format)
	a, err := newApp(ctx, cfg, log, stdin, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer a.Close()

	if err := cmd.run(logging.IntoContext(ctx, log), a, global.Args()[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		printError(stderr, err)
		return 1
	}
	return 0
}

// app wires the client stack once per invocation.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *metrics.Registry
	bus     *events.Bus
	tokens  *store.TokenStore
	auth    *client.AuthClient
	authed  *client.AuthenticatedClient
	session *service.SessionService
	decks   *client.DecksAPI
	cards   *client.FlashcardsAPI
	ai      *client.AIAPI

	stdin  io.Reader
	stdout io.Writer

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger, stdin io.Reader, stdout io.Writer) (*app, error) {
	a := &app{
		cfg:     cfg,
		log:     log,
		metrics: metrics.NewRegistry(),
		bus:     events.NewBus(),
		stdin:   stdin,
		stdout:  stdout,
	}

	backend, err := a.openBackend(ctx)
	if err != nil {
		return nil, err
	}
	a.tokens = store.NewTokenStore(backend, cfg.Store.Prefix, log)

	httpClient := client.NewHTTPClient(cfg.API.BaseURL,
		client.WithTimeout(cfg.API.Timeout),
		client.WithMetrics(a.metrics),
		client.WithLogger(log),
	)
	a.auth = client.NewAuthClient(httpClient)
	a.authed = client.NewAuthenticatedClient(httpClient, a.auth, a.tokens, a.bus, a.metrics, log)
	a.session = service.NewSessionService(a.auth, a.authed, a.tokens, a.bus, a.metrics, log)
	a.closers = append(a.closers, func() error { a.session.Close(); return nil })

	a.decks = client.NewDecksAPI(a.authed)
	a.cards = client.NewFlashcardsAPI(a.authed)
	a.ai = client.NewAIAPI(a.authed)
	return a, nil
}

func (a *app) openBackend(ctx context.Context) (store.Backend, error) {
	switch a.cfg.Store.Backend {
	case config.StoreMemory:
		return store.NewMemoryBackend(), nil
	case config.StoreRedis:
		backend, err := store.NewRedisBackend(ctx, a.cfg.Store.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, backend.Close)
		return backend, nil
	default:
		path := a.cfg.Store.Path
		if path == "" {
			var err error
			if path, err = store.DefaultFilePath(); err != nil {
				return nil, err
			}
		}
		return store.NewFileBackend(path), nil
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("failed to close resource", "error", err)
		}
	}
}

func printUsage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "usage: tenxcards [-ephemeral] <command> [flags]")
	fmt.Fprintln(w)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
}

func printError(w io.Writer, err error) {
	fields := client.FieldErrors(err)
	if len(fields) == 0 {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "error: invalid input")
	for _, name := range names {
		fmt.Fprintf(w, "  %s: %s\n", name, strings.TrimSpace(fields[name]))
	}
}
