// Package options implements the settings surface for the API credential.
package options

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/raine/page-image-prompts/internal/storage"
	"github.com/raine/page-image-prompts/internal/ui"
	"github.com/rs/zerolog/log"
)

var (
	StatusInvalid = ui.Status{Message: "Please enter a valid API key.", Tone: ui.ToneWarning}
	StatusSaved   = ui.Status{Message: "Saved!", Tone: ui.ToneSuccess}
	StatusCleared = ui.Status{Message: "API key removed.", Tone: ui.ToneSuccess}
)

// CredentialClearer removes the stored key.
type CredentialClearer interface {
	ClearCredential(ctx context.Context) error
}

// ErrAborted is returned when the user cancels the interactive form.
var ErrAborted = errors.New("options cancelled")

// Load returns the stored key for pre-filling the form.
func Load(ctx context.Context, store storage.CredentialStore) (string, error) {
	return store.GetCredential(ctx)
}

// Save trims input and stores it. Empty input leaves the stored value
// untouched and yields a warning status.
func Save(ctx context.Context, store storage.CredentialStore, input string) (ui.Status, error) {
	value := strings.TrimSpace(input)
	if value == "" {
		log.Debug().Msg("rejected empty api key")
		return StatusInvalid, nil
	}

	if err := store.SetCredential(ctx, value); err != nil {
		return ui.Status{Message: err.Error(), Tone: ui.ToneError}, fmt.Errorf("failed to save api key: %w", err)
	}

	log.Info().Msg("api key saved")
	return StatusSaved, nil
}

// Clear removes the stored key. Later checks report it as missing.
func Clear(ctx context.Context, store CredentialClearer) (ui.Status, error) {
	if err := store.ClearCredential(ctx); err != nil {
		return ui.Status{Message: err.Error(), Tone: ui.ToneError}, fmt.Errorf("failed to clear api key: %w", err)
	}
	log.Info().Msg("api key cleared")
	return StatusCleared, nil
}

// RunForm shows an interactive input pre-filled with the current key and
// saves the submitted value.
func RunForm(ctx context.Context, store storage.CredentialStore) (ui.Status, error) {
	key, err := Load(ctx, store)
	if err != nil {
		return ui.Status{}, err
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Vision API Key").
				Description("Get a Gemini key at https://aistudio.google.com/apikey").
				EchoMode(huh.EchoModePassword).
				Value(&key),
		),
	).WithTheme(huh.ThemeBase16())

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ui.Status{}, ErrAborted
		}
		return ui.Status{}, err
	}

	return Save(ctx, store, key)
}
