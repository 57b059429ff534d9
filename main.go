package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/raine/page-image-prompts/internal/config"
	"github.com/raine/page-image-prompts/internal/messaging"
	"github.com/raine/page-image-prompts/internal/options"
	"github.com/raine/page-image-prompts/internal/popup"
	"github.com/raine/page-image-prompts/internal/server"
	"github.com/raine/page-image-prompts/internal/storage"
	"github.com/raine/page-image-prompts/internal/ui"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const usage = `
	Usage: imgprompt <command> [flags]

	Commands:
	  analyze [-remote URL] <page-url>   describe every image on a page
	  options [-key VALUE | -clear]      set or remove the API key
	  check                              report whether an API key is stored
	  serve                              serve the background and page contexts over HTTP
`

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, ui.Textf(usage))
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		fmt.Println(ui.Textf(usage))
		return
	}

	// Try to load existing config.env
	config.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		fatalWithWait("%v", err)
	}

	closeLog, err := setupLogging(cfg.LogLevel, cmd == "serve")
	if err != nil {
		fatalWithWait("%v", err)
	}
	defer closeLog()

	// Create context that cancels on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "analyze":
		err = runAnalyze(ctx, cfg, args)
	case "options":
		err = runOptions(ctx, cfg, args)
	case "check":
		err = runCheck(ctx, cfg)
	case "serve":
		err = runServe(ctx, cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		fmt.Fprintln(os.Stderr, ui.Textf(usage))
		cancel()
		os.Exit(2)
	}

	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, flag.ErrHelp):
	case errors.Is(err, errRunFailed), errors.Is(err, options.ErrAborted):
		closeLog()
		cancel()
		os.Exit(1)
	default:
		closeLog()
		cancel()
		fatalWithWait("%v", err)
	}
}

func runAnalyze(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	remote := fs.String("remote", "", "base URL of a running `imgprompt serve`")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: imgprompt analyze [-remote URL] <page-url>")
	}
	pageURL := fs.Arg(0)

	var bgTransport, pageTransport messaging.Transport
	if *remote != "" {
		bgTransport = messaging.NewHTTPTransport(*remote, messaging.ContextBackground)
		pageTransport = messaging.NewHTTPTransport(*remote, messaging.ContextPage)
	} else {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		bgTransport = messaging.NewLocalTransport(a.background.Router())
		pageTransport = messaging.NewLocalTransport(a.page.Router())
	}

	fmt.Println(ui.RenderTitle("Page Image Prompts"))
	fmt.Println(ui.RenderMuted(pageURL))
	fmt.Println()

	orchestrator := popup.New(bgTransport, pageTransport, popup.NewTerminalRenderer(os.Stdout)).
		WithTimeouts(cfg.MessageTimeout, cfg.ImageTimeout)

	outcome, err := orchestrator.Run(ctx, pageURL)
	if err != nil {
		return err
	}
	if outcome.State == popup.StateError {
		return errRunFailed
	}
	return nil
}

func runOptions(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("options", flag.ContinueOnError)
	key := fs.String("key", "", "API key to store")
	clearKey := fs.Bool("clear", false, "remove the stored API key")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var status ui.Status
	switch {
	case *clearKey:
		status, err = options.Clear(ctx, store)
	case *key != "" || fs.NArg() > 0:
		value := *key
		if value == "" {
			value = fs.Arg(0)
		}
		status, err = options.Save(ctx, store, value)
	case isInteractiveTerminal():
		status, err = options.RunForm(ctx, store)
	default:
		return errors.New("no terminal available: pass the key with -key")
	}
	if err != nil {
		return err
	}

	ui.PrintStatus(os.Stdout, status)
	if status.Tone == ui.ToneWarning {
		return errRunFailed
	}
	return nil
}

func runCheck(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	hasKey, err := storage.HasCredential(ctx, store)
	if err != nil {
		return err
	}
	if !hasKey {
		ui.PrintStatus(os.Stdout, popup.StatusMissingKey)
		return errRunFailed
	}
	ui.PrintStatus(os.Stdout, ui.Status{Message: "API key configured.", Tone: ui.ToneSuccess})
	return nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(cfg.ListenAddr, a.background.Router(), a.page.Router())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("shutdown with error")
		return err
	}
	log.Info().Msg("shutdown complete")
	return nil
}
