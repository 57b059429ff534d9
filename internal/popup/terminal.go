package popup

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/raine/page-image-prompts/internal/llm"
	"github.com/raine/page-image-prompts/internal/ui"
)

var promptStyle = lipgloss.NewStyle().PaddingLeft(2)

// TerminalRenderer prints status lines and results to a terminal. Result
// URLs are emitted as OSC 8 hyperlinks.
type TerminalRenderer struct {
	mu   sync.Mutex
	w    io.Writer
	last ui.Status
}

// NewTerminalRenderer creates a renderer writing to w.
func NewTerminalRenderer(w io.Writer) *TerminalRenderer {
	return &TerminalRenderer{w: w}
}

// SetStatus implements Renderer. Repeated identical statuses are printed
// once.
func (r *TerminalRenderer) SetStatus(status ui.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if status == r.last {
		return
	}
	r.last = status
	ui.PrintStatus(r.w, status)
}

// SetBusy implements Renderer. A terminal has no trigger to disable.
func (r *TerminalRenderer) SetBusy(bool) {}

// ClearResults implements Renderer.
func (r *TerminalRenderer) ClearResults() {
	r.mu.Lock()
	r.last = ui.Status{}
	r.mu.Unlock()
}

// ShowResults implements Renderer.
func (r *TerminalRenderer) ShowResults(results []llm.AnalysisResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, ui.RenderMuted(ui.Pluralize("result", "results", len(results))))
	for i, res := range results {
		fmt.Fprintf(r.w, "\n%d. %s\n", i+1, ui.Hyperlink(res.ImageURL, res.ImageURL))
		fmt.Fprintln(r.w, promptStyle.Render(res.Prompt))
	}
}
