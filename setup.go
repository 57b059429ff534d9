package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/raine/page-image-prompts/internal/config"
	"github.com/raine/page-image-prompts/internal/storage"
	"github.com/raine/page-image-prompts/internal/ui"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

const logFileName = "imgprompt.log"

// isInteractiveTerminal returns true if both stdin and stdout are TTYs.
// This is used to determine if we can show the interactive options form.
func isInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// setupLogging sends logs to a file in the config directory, and to stderr
// as well when console is set or when running under systemd. The returned
// func closes the log file.
func setupLogging(level string, console bool) (func(), error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)

	consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}

	// JOURNAL_STREAM is set by systemd when running as a service; journald
	// handles persistence there.
	if _, underSystemd := os.LookupEnv("JOURNAL_STREAM"); underSystemd {
		log.Logger = log.Output(consoleWriter)
		return func() {}, nil
	}

	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	logPath := filepath.Join(dir, logFileName)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	fileWriter := zerolog.ConsoleWriter{Out: logFile, NoColor: true}
	var out io.Writer = fileWriter
	if console {
		out = io.MultiWriter(consoleWriter, fileWriter)
	}
	log.Logger = log.Output(out)
	log.Debug().Str("logFile", logPath).Msg("logging to file")

	return func() { logFile.Close() }, nil
}

// openStore prepares the settings store, generating the encryption
// passphrase on first run.
func openStore(cfg *config.Config) (*storage.SQLiteStore, error) {
	created, err := config.EnsureStoreKey(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create settings key: %w", err)
	}
	if created {
		printFirstRun(os.Stdout)
	}

	encryptionKey, err := storage.DeriveKey(cfg.StoreKey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath, encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize settings store: %w", err)
	}
	log.Info().Str("dbPath", cfg.DBPath).Msg("settings store initialized")
	return store, nil
}

func printFirstRun(w io.Writer) {
	configPath, err := config.FilePath()
	if err != nil {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, ui.RenderTitle("Page Image Prompts - First-time Setup"))
	ui.PrintStatus(w, ui.Status{Message: "Configuration saved", Tone: ui.ToneSuccess})
	fmt.Fprintln(w, ui.RenderMuted("  "+configPath))
	fmt.Fprintln(w, ui.Textf(`
		Run "imgprompt options" to store your API key.
	`))
	fmt.Fprintln(w)
}
