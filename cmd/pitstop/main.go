// ABOUTME: Interactive client for a vehicle-service agent over its HTTP API
// ABOUTME: Wires config, auth, the agent client, uploads, and the local transcript into a REPL

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
	"path/filepath"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/2389/pitstop/internal/agentclient"
	"github.com/2389/pitstop/internal/authctx"
	"github.com/2389/pitstop/internal/config"
	"github.com/2389/pitstop/internal/files"
	"github.com/2389/pitstop/internal/ledger"
	"github.com/2389/pitstop/internal/logging"
	"github.com/2389/pitstop/internal/session"
	"github.com/2389/pitstop/internal/upload"
	"github.com/2389/pitstop/internal/wire"
)

func main() {
	configPath := flag.String("config", config.Path(), "Path to config file (YAML or TOML)")
	sessionID := flag.String("session", "", "Session to open instead of the most recent one")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *sessionID, *debug); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Goodbye!")
}

func run(ctx context.Context, configPath, sessionID string, debug bool) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	logger := logging.Setup(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	auth, err := authctx.Load(cfg, logger)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}
	defer auth.Teardown()

	var transcript *ledger.Store
	if !cfg.Ledger.Disabled {
		transcript, err = ledger.Open(cfg.Ledger.Path, logger)
		if err != nil {
			return fmt.Errorf("opening transcript: %w", err)
		}
		defer transcript.Close()
	}

	client := agentclient.New(agentclient.Options{
		BaseURL:           cfg.Agent.BaseURL,
		RequestTimeout:    cfg.Agent.RequestTimeout,
		StreamIdleTimeout: cfg.Agent.StreamIdleTimeout,
	}, auth, logger)

	router := upload.NewRouter(client, upload.Options{
		CacheTTL:  cfg.Upload.CacheTTL,
		CacheSize: cfg.Upload.CacheSize,
	}, logger)
	defer router.Close()

	mcfg := session.Config{
		AppName:   auth.AppName,
		UserID:    auth.UserID,
		Directory: client,
		Runner:    &progressRunner{client: client, out: os.Stdout},
		Uploader:  router,
		Encoder:   files.Base64Encoder{MaxBytes: cfg.Attachments.MaxBytes},
		Logger:    logger,
	}
	if transcript != nil {
		mcfg.Transcript = transcript
	}
	mgr := session.NewManager(mcfg)
	defer mgr.Close()

	printBanner(cfg, auth)

	if err := mgr.Start(ctx); err != nil {
		color.Yellow("Could not load sessions: %v\n", err)
	}
	if sessionID != "" {
		if err := mgr.SelectSession(ctx, sessionID); err != nil {
			color.Yellow("Could not open session %s: %v\n", sessionID, err)
		}
	}

	input, err := newLineInput(filepath.Join(config.DataDir(), "history"))
	if err != nil {
		logger.Debug("readline unavailable, using plain input", "error", err)
	}
	defer input.Close()

	var reader transcriptReader
	if transcript != nil {
		reader = transcript
	}
	r := newREPL(mgr, reader, cfg.Agent.BaseURL, os.Stdout)
	r.printHistory()
	return loop(ctx, r, input)
}

func loop(ctx context.Context, r *repl, input lineInput) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := input.ReadLine(r.prompt())
		if err != nil {
			switch {
			case errors.Is(err, readline.ErrInterrupt):
				continue
			case errors.Is(err, io.EOF):
				return nil
			default:
				return fmt.Errorf("reading input: %w", err)
			}
		}
		if err := r.handle(ctx, line); errors.Is(err, errQuit) {
			return nil
		}
	}
}

func printBanner(cfg *config.Config, auth *authctx.Context) {
	cyan := color.New(color.FgCyan)
	cyan.Printf("pitstop connected to %s\n", cfg.Agent.BaseURL)
	if auth.Anonymous() {
		fmt.Printf("Auth: none (set %s or write %s)\n", authctx.TokenEnv, cfg.Auth.TokenFile)
	} else {
		fmt.Printf("Auth: bearer token for %s\n", auth.UserID)
	}
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+D to quit.")
	fmt.Println()
}

// progressRunner streams replies through the agent client and prints a
// dot per content record so long answers show signs of life.
type progressRunner struct {
	client *agentclient.Client
	out    io.Writer
}

func (p *progressRunner) Run(ctx context.Context, req wire.RunRequest) ([]wire.Content, error) {
	faint := color.New(color.Faint)
	var shown bool
	contents, err := p.client.RunStream(ctx, req, func(wire.Content) {
		faint.Fprint(p.out, ".")
		shown = true
	})
	if shown {
		fmt.Fprintln(p.out)
	}
	return contents, err
}
