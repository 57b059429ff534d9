package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Transport delivers a message to another context and returns its reply.
type Transport interface {
	Send(ctx context.Context, msg Message) (*Response, error)
}

// LocalTransport delivers messages to a router in the same process.
type LocalTransport struct {
	router *Router
}

// NewLocalTransport creates a transport for router.
func NewLocalTransport(router *Router) *LocalTransport {
	return &LocalTransport{router: router}
}

// Send implements Transport.
func (t *LocalTransport) Send(ctx context.Context, msg Message) (*Response, error) {
	return t.router.Dispatch(ctx, msg)
}

// HTTPTransport posts messages to a context served by `imgprompt serve`.
type HTTPTransport struct {
	client *resty.Client
	path   string
}

// NewHTTPTransport creates a transport for contextName at baseURL.
func NewHTTPTransport(baseURL, contextName string) *HTTPTransport {
	return &HTTPTransport{
		client: resty.New().SetBaseURL(strings.TrimRight(baseURL, "/")),
		path:   MessagePath(contextName),
	}
}

// MessagePath is the route a context's messages are posted to.
func MessagePath(contextName string) string {
	return "/v1/" + contextName + "/messages"
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, msg Message) (*Response, error) {
	var result, errResult Response
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(msg).
		SetResult(&result).
		SetError(&errResult).
		Post(t.path)
	if err != nil {
		return nil, &MessagingError{Kind: msg.Type, Reason: "request failed", Err: err}
	}

	if resp.IsError() {
		reason := errResult.Error
		if reason == "" {
			reason = fmt.Sprintf("unexpected status %d", resp.StatusCode())
		}
		return nil, &MessagingError{Kind: msg.Type, Reason: reason}
	}
	if len(resp.Body()) == 0 {
		return nil, &MessagingError{Kind: msg.Type, Reason: "empty response"}
	}
	return &result, nil
}

// Call sends msg over t and waits at most timeout for the reply. A zero
// timeout waits until ctx is done. Transport failures come back as
// *MessagingError.
func Call(ctx context.Context, t Transport, timeout time.Duration, msg Message) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type reply struct {
		resp *Response
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		resp, err := t.Send(ctx, msg)
		done <- reply{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, &MessagingError{Kind: msg.Type, Reason: "no response", Err: ctx.Err()}
	case r := <-done:
		// A failure that lands with the deadline is reported as the deadline.
		if ctxErr := ctx.Err(); ctxErr != nil && (r.err != nil || r.resp == nil || !r.resp.OK) {
			return nil, &MessagingError{Kind: msg.Type, Reason: "no response", Err: ctxErr}
		}
		if r.err != nil {
			var msgErr *MessagingError
			if errors.As(r.err, &msgErr) {
				return nil, r.err
			}
			return nil, &MessagingError{Kind: msg.Type, Reason: "call failed", Err: r.err}
		}
		if r.resp == nil {
			return nil, &MessagingError{Kind: msg.Type, Reason: "empty response"}
		}
		return r.resp, nil
	}
}
