// Package messaging carries request/response exchanges between the popup,
// background and page contexts.
package messaging

import (
	"fmt"

	"github.com/raine/page-image-prompts/internal/llm"
)

// Kind identifies a message type.
type Kind string

const (
	KindGetImages     Kind = "GET_IMAGES"
	KindCheckAPIKey   Kind = "CHECK_API_KEY"
	KindAnalyzeImages Kind = "ANALYZE_IMAGES"
)

// Message is a request sent to another context.
type Message struct {
	Type      Kind     `json:"type"`
	ImageURLs []string `json:"imageUrls,omitempty"`
	PageURL   string   `json:"pageUrl,omitempty"`
}

// Response is the reply to a Message. Which fields are set depends on the
// message kind. A non-nil empty ImageURLs is written as [].
type Response struct {
	OK        bool                 `json:"ok"`
	HasKey    *bool                `json:"hasKey,omitempty"`
	ImageURLs []string             `json:"imageUrls,omitzero"`
	Results   []llm.AnalysisResult `json:"results,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// MessagingError reports an absent or malformed response, an unknown
// message kind, or a timeout.
type MessagingError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *MessagingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *MessagingError) Unwrap() error {
	return e.Err
}

// Bool returns a pointer to b, for Response.HasKey.
func Bool(b bool) *bool {
	return &b
}
