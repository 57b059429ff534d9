// Package popup drives one analysis run: check the credential, collect the
// page's images, analyze them and render the results.
package popup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raine/page-image-prompts/internal/llm"
	"github.com/raine/page-image-prompts/internal/messaging"
	"github.com/raine/page-image-prompts/internal/page"
	"github.com/raine/page-image-prompts/internal/ui"
	"github.com/rs/zerolog/log"
)

// State is a step of a run.
type State int

const (
	StateIdle State = iota
	StateCheckingKey
	StateMissingKey
	StateScrapingPage
	StateNoImages
	StateAnalyzing
	StateError
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateCheckingKey:
		return "CheckingKey"
	case StateMissingKey:
		return "MissingKey"
	case StateScrapingPage:
		return "ScrapingPage"
	case StateNoImages:
		return "NoImages"
	case StateAnalyzing:
		return "Analyzing"
	case StateError:
		return "Error"
	case StateDone:
		return "Done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether a run ends in s.
func (s State) Terminal() bool {
	switch s {
	case StateMissingKey, StateNoImages, StateError, StateDone:
		return true
	}
	return false
}

// Status lines shown during a run.
var (
	StatusChecking    = ui.Status{Message: "Checking page for images..."}
	StatusMissingKey  = ui.Status{Message: "Add your Google Vision API key in Options first.", Tone: ui.ToneWarning}
	StatusNoActiveTab = ui.Status{Message: page.NoActiveTabMessage, Tone: ui.ToneError}
	StatusNoImages    = ui.Status{Message: "No image URLs found on this page.", Tone: ui.ToneWarning}
	StatusFailed      = ui.Status{Message: "Something went wrong.", Tone: ui.ToneError}
	StatusTimedOut    = ui.Status{Message: "Analysis timed out. Try a page with fewer images.", Tone: ui.ToneError}
	StatusDone        = ui.Status{Message: "Done. Click a URL to open the image.", Tone: ui.ToneSuccess}
)

const (
	DefaultMessageTimeout = 10 * time.Second
	// DefaultImageTimeout is the analysis budget per image.
	DefaultImageTimeout = 45 * time.Second
)

// ErrBusy is returned by Run while another run holds the trigger.
var ErrBusy = errors.New("analysis already in progress")

// Renderer displays a run's progress.
type Renderer interface {
	SetStatus(status ui.Status)
	SetBusy(busy bool)
	ShowResults(results []llm.AnalysisResult)
	ClearResults()
}

// Outcome is the terminal state of a run.
type Outcome struct {
	RunID   string
	State   State
	Status  ui.Status
	Results []llm.AnalysisResult
}

// Orchestrator runs the popup flow against the background and page
// contexts.
type Orchestrator struct {
	background     messaging.Transport
	page           messaging.Transport
	renderer       Renderer
	messageTimeout time.Duration
	imageTimeout   time.Duration

	mu     sync.Mutex
	state  State
	active bool
}

// New creates an orchestrator with default timeouts.
func New(background, page messaging.Transport, renderer Renderer) *Orchestrator {
	return &Orchestrator{
		background:     background,
		page:           page,
		renderer:       renderer,
		messageTimeout: DefaultMessageTimeout,
		imageTimeout:   DefaultImageTimeout,
	}
}

// WithTimeouts sets the per-message timeout and the per-image analysis
// budget. ANALYZE_IMAGES waits for one message timeout plus one image
// budget per image. Zero keeps the current value.
func (o *Orchestrator) WithTimeouts(message, perImage time.Duration) *Orchestrator {
	if message > 0 {
		o.messageTimeout = message
	}
	if perImage > 0 {
		o.imageTimeout = perImage
	}
	return o
}

func (o *Orchestrator) analyzeTimeout(images int) time.Duration {
	return o.messageTimeout + time.Duration(images)*o.imageTimeout
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Run performs one run for pageURL. Each call starts from Idle and clears
// the previous results; a call made while another run is in flight returns
// ErrBusy without touching the renderer.
func (o *Orchestrator) Run(ctx context.Context, pageURL string) (*Outcome, error) {
	o.mu.Lock()
	if o.active {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	o.active = true
	o.state = StateIdle
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.active = false
		o.mu.Unlock()
	}()

	runID := uuid.NewString()
	logger := log.With().Str("runId", runID).Str("page", pageURL).Logger()
	out := &Outcome{RunID: runID}

	finish := func(state State, status ui.Status) (*Outcome, error) {
		o.enter(state, status)
		out.State, out.Status = state, status
		logger.Info().Str("state", state.String()).Str("status", status.Message).Msg("run finished")
		return out, nil
	}

	o.renderer.ClearResults()
	o.enter(StateCheckingKey, StatusChecking)

	keyResp, err := messaging.Call(ctx, o.background, o.messageTimeout, messaging.Message{Type: messaging.KindCheckAPIKey})
	if err != nil {
		logger.Warn().Err(err).Msg("credential check failed")
		return finish(StateError, StatusFailed)
	}
	if !keyResp.OK {
		return finish(StateError, responseError(keyResp))
	}
	if keyResp.HasKey == nil || !*keyResp.HasKey {
		return finish(StateMissingKey, StatusMissingKey)
	}

	o.enter(StateScrapingPage, StatusChecking)
	pageResp, err := messaging.Call(ctx, o.page, o.messageTimeout, messaging.Message{
		Type:    messaging.KindGetImages,
		PageURL: pageURL,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("page unreachable")
		return finish(StateError, StatusNoActiveTab)
	}
	if !pageResp.OK {
		logger.Warn().Str("error", pageResp.Error).Msg("failed to collect images")
		if pageResp.Error == "" || pageResp.Error == page.NoActiveTabMessage {
			return finish(StateError, StatusNoActiveTab)
		}
		return finish(StateError, responseError(pageResp))
	}
	if len(pageResp.ImageURLs) == 0 {
		return finish(StateNoImages, StatusNoImages)
	}

	imageURLs := pageResp.ImageURLs
	o.enter(StateAnalyzing, ui.Status{Message: fmt.Sprintf("Analyzing %d image(s)...", len(imageURLs))})
	o.renderer.SetBusy(true)
	analyzeResp, err := messaging.Call(ctx, o.background, o.analyzeTimeout(len(imageURLs)), messaging.Message{
		Type:      messaging.KindAnalyzeImages,
		ImageURLs: imageURLs,
	})
	o.renderer.SetBusy(false)

	if err != nil {
		logger.Warn().Err(err).Int("images", len(imageURLs)).Msg("analysis failed")
		if errors.Is(err, context.DeadlineExceeded) {
			return finish(StateError, StatusTimedOut)
		}
		return finish(StateError, StatusFailed)
	}
	if !analyzeResp.OK {
		return finish(StateError, responseError(analyzeResp))
	}

	out.Results = analyzeResp.Results
	outcome, _ := finish(StateDone, StatusDone)
	o.renderer.ShowResults(out.Results)
	return outcome, nil
}

func (o *Orchestrator) enter(state State, status ui.Status) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
	o.renderer.SetStatus(status)
}

func responseError(resp *messaging.Response) ui.Status {
	if resp.Error == "" {
		return StatusFailed
	}
	return ui.Status{Message: resp.Error, Tone: ui.ToneError}
}
