package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoRouter() *Router {
	return NewRouter(ContextPage, map[Kind]HandlerFunc{
		KindGetImages: func(ctx context.Context, msg Message) (*Response, error) {
			return &Response{OK: true, ImageURLs: []string{msg.PageURL + "/a.jpg"}}, nil
		},
	})
}

func TestRouterDispatch(t *testing.T) {
	r := echoRouter()

	resp, err := r.Dispatch(context.Background(), Message{Type: KindGetImages, PageURL: "https://example.com"})

	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, []string{"https://example.com/a.jpg"}, resp.ImageURLs)
	assert.Equal(t, []Kind{KindGetImages}, r.Kinds())
	assert.True(t, r.Handles(KindGetImages))
	assert.False(t, r.Handles(KindAnalyzeImages))
}

func TestRouterDispatch_UnknownKind(t *testing.T) {
	_, err := echoRouter().Dispatch(context.Background(), Message{Type: KindAnalyzeImages})

	var msgErr *MessagingError
	require.True(t, errors.As(err, &msgErr))
	assert.Equal(t, KindAnalyzeImages, msgErr.Kind)
	assert.Equal(t, "ANALYZE_IMAGES: unknown message type", err.Error())
}

func TestRouterDispatch_NilResponse(t *testing.T) {
	r := NewRouter("test", map[Kind]HandlerFunc{
		KindCheckAPIKey: func(ctx context.Context, msg Message) (*Response, error) { return nil, nil },
	})

	_, err := r.Dispatch(context.Background(), Message{Type: KindCheckAPIKey})

	var msgErr *MessagingError
	assert.True(t, errors.As(err, &msgErr))
}

func TestRouterClose(t *testing.T) {
	r := echoRouter()
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err := r.Dispatch(context.Background(), Message{Type: KindGetImages})

	var msgErr *MessagingError
	require.True(t, errors.As(err, &msgErr))
	assert.Contains(t, err.Error(), "router closed")
}

func TestRouterClose_WaitsForInFlightHandlers(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	r := NewRouter("test", map[Kind]HandlerFunc{
		KindCheckAPIKey: func(ctx context.Context, msg Message) (*Response, error) {
			close(entered)
			<-release
			return &Response{OK: true}, nil
		},
	})

	dispatched := make(chan error, 1)
	go func() {
		_, err := r.Dispatch(context.Background(), Message{Type: KindCheckAPIKey})
		dispatched <- err
	}()
	<-entered

	closed := make(chan struct{})
	go func() {
		r.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a handler was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-dispatched)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after the handler finished")
	}
}

func TestCall_FailureAtDeadlineReportsTimeout(t *testing.T) {
	_, err := Call(context.Background(), deadlineReplyTransport{}, 20*time.Millisecond, Message{Type: KindAnalyzeImages})

	var msgErr *MessagingError
	require.True(t, errors.As(err, &msgErr))
	assert.Equal(t, "no response", msgErr.Reason)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRouterTableIsFixed(t *testing.T) {
	handlers := map[Kind]HandlerFunc{
		KindGetImages: func(ctx context.Context, msg Message) (*Response, error) { return &Response{OK: true}, nil },
	}
	r := NewRouter("test", handlers)
	handlers[KindCheckAPIKey] = handlers[KindGetImages]

	assert.False(t, r.Handles(KindCheckAPIKey))
}

type blockingTransport struct{}

func (blockingTransport) Send(ctx context.Context, msg Message) (*Response, error) {
	<-ctx.Done()
	time.Sleep(10 * time.Millisecond)
	return nil, ctx.Err()
}

func TestCall_TimesOut(t *testing.T) {
	start := time.Now()
	_, err := Call(context.Background(), blockingTransport{}, 20*time.Millisecond, Message{Type: KindCheckAPIKey})

	var msgErr *MessagingError
	require.True(t, errors.As(err, &msgErr))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCall_Local(t *testing.T) {
	resp, err := Call(context.Background(), NewLocalTransport(echoRouter()), time.Second,
		Message{Type: KindGetImages, PageURL: "https://x.test"})

	require.NoError(t, err)
	assert.Equal(t, []string{"https://x.test/a.jpg"}, resp.ImageURLs)
}

// deadlineReplyTransport answers with a failure once ctx is done.
type deadlineReplyTransport struct{}

func (deadlineReplyTransport) Send(ctx context.Context, msg Message) (*Response, error) {
	<-ctx.Done()
	return &Response{OK: false, Error: ctx.Err().Error()}, nil
}

type errTransport struct{ err error }

func (e errTransport) Send(ctx context.Context, msg Message) (*Response, error) { return nil, e.err }

func TestCall_WrapsPlainErrors(t *testing.T) {
	cause := errors.New("boom")
	_, err := Call(context.Background(), errTransport{err: cause}, time.Second, Message{Type: KindGetImages})

	var msgErr *MessagingError
	require.True(t, errors.As(err, &msgErr))
	assert.True(t, errors.Is(err, cause))
}

func TestHTTPTransport(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/background/messages", r.URL.Path)

		var msg Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		w.Header().Set("Content-Type", "application/json")

		switch msg.Type {
		case KindCheckAPIKey:
			io.WriteString(w, `{"ok":true,"hasKey":false}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"ok":false,"error":"unknown message type"}`)
		}
	}))
	defer ts.Close()

	transport := NewHTTPTransport(ts.URL+"/", ContextBackground)

	resp, err := transport.Send(context.Background(), Message{Type: KindCheckAPIKey})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	require.NotNil(t, resp.HasKey)
	assert.False(t, *resp.HasKey)

	_, err = transport.Send(context.Background(), Message{Type: "NOPE"})
	var msgErr *MessagingError
	require.True(t, errors.As(err, &msgErr))
	assert.Equal(t, "unknown message type", msgErr.Reason)
}

func TestHTTPTransport_EmptyBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	_, err := NewHTTPTransport(ts.URL, ContextPage).Send(context.Background(), Message{Type: KindGetImages})

	var msgErr *MessagingError
	require.True(t, errors.As(err, &msgErr))
	assert.Equal(t, "empty response", msgErr.Reason)
}

func TestResponseJSON_OmitsUnsetFields(t *testing.T) {
	data, err := json.Marshal(Response{OK: true, HasKey: Bool(false)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true,"hasKey":false}`, string(data))
}

func TestResponseJSON_KeepsEmptyImageList(t *testing.T) {
	data, err := json.Marshal(Response{OK: true, ImageURLs: []string{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true,"imageUrls":[]}`, string(data))
}
