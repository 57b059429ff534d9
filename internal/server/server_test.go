package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/raine/page-image-prompts/internal/llm"
	"github.com/raine/page-image-prompts/internal/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server, *messaging.Router) {
	t.Helper()
	background := messaging.NewRouter(messaging.ContextBackground, map[messaging.Kind]messaging.HandlerFunc{
		messaging.KindCheckAPIKey: func(ctx context.Context, msg messaging.Message) (*messaging.Response, error) {
			return &messaging.Response{OK: true, HasKey: messaging.Bool(true)}, nil
		},
		messaging.KindAnalyzeImages: func(ctx context.Context, msg messaging.Message) (*messaging.Response, error) {
			return &messaging.Response{OK: true, Results: []llm.AnalysisResult{
				{ImageURL: "https://x.test/a.jpg", Prompt: "A cat", Raw: []byte(`{}`)},
				{ImageURL: "https://x.test/b.jpg", Prompt: "Error: Failed to fetch image: 404", Raw: []byte(`{}`), Degraded: true},
				{ImageURL: "https://x.test/c.jpg", Prompt: "Error: 404 page screenshot, stark white text", Raw: []byte(`{}`)},
			}}, nil
		},
	})
	page := messaging.NewRouter(messaging.ContextPage, map[messaging.Kind]messaging.HandlerFunc{
		messaging.KindGetImages: func(ctx context.Context, msg messaging.Message) (*messaging.Response, error) {
			return &messaging.Response{OK: true, ImageURLs: []string{"https://x.test/a.jpg"}}, nil
		},
	})

	srv := New("127.0.0.1:0", background, page)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts, background
}

func post(t *testing.T, url, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestMessages_OverHTTPTransport(t *testing.T) {
	_, ts, _ := newTestServer(t)

	bg := messaging.NewHTTPTransport(ts.URL, messaging.ContextBackground)
	resp, err := messaging.Call(context.Background(), bg, time.Second, messaging.Message{Type: messaging.KindCheckAPIKey})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	require.NotNil(t, resp.HasKey)
	assert.True(t, *resp.HasKey)

	pg := messaging.NewHTTPTransport(ts.URL, messaging.ContextPage)
	resp, err = messaging.Call(context.Background(), pg, time.Second, messaging.Message{
		Type:    messaging.KindGetImages,
		PageURL: "https://x.test/",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://x.test/a.jpg"}, resp.ImageURLs)
}

func TestMessages_AnalyzeResponseShape(t *testing.T) {
	_, ts, _ := newTestServer(t)

	status, body := post(t, ts.URL+"/v1/background/messages",
		`{"type":"ANALYZE_IMAGES","imageUrls":["https://x.test/a.jpg","https://x.test/b.jpg"]}`)

	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{
		"ok": true,
		"results": [
			{"imageUrl": "https://x.test/a.jpg", "prompt": "A cat", "raw": {}},
			{"imageUrl": "https://x.test/b.jpg", "prompt": "Error: Failed to fetch image: 404", "raw": {}},
			{"imageUrl": "https://x.test/c.jpg", "prompt": "Error: 404 page screenshot, stark white text", "raw": {}}
		]
	}`, body)
}

func TestMessages_Malformed(t *testing.T) {
	_, ts, _ := newTestServer(t)

	status, body := post(t, ts.URL+"/v1/background/messages", `{"type":`)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"ok":false,"error":"malformed message"}`, body)
}

func TestMessages_UnknownKind(t *testing.T) {
	_, ts, _ := newTestServer(t)

	status, body := post(t, ts.URL+"/v1/page/messages", `{"type":"CHECK_API_KEY"}`)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "unknown message type")
}

func TestMessages_ClosedRouter(t *testing.T) {
	_, ts, background := newTestServer(t)
	require.NoError(t, background.Close())

	status, _ := post(t, ts.URL+"/v1/background/messages", `{"type":"CHECK_API_KEY"}`)

	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestHealthz(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	_, ts, _ := newTestServer(t)
	post(t, ts.URL+"/v1/background/messages", `{"type":"ANALYZE_IMAGES","imageUrls":["https://x.test/a.jpg"]}`)
	post(t, ts.URL+"/v1/background/messages", `{"type":"BOGUS"}`)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(data)

	assert.Contains(t, text, `imgprompt_messages_total{context="background",outcome="ok",type="ANALYZE_IMAGES"} 1`)
	assert.Contains(t, text, `imgprompt_messages_total{context="background",outcome="bad_request",type="unknown"} 1`)
	assert.Contains(t, text, `imgprompt_images_analyzed_total{outcome="described"} 2`)
	assert.Contains(t, text, `imgprompt_images_analyzed_total{outcome="degraded"} 1`)
	assert.NotContains(t, text, "BOGUS")
}

func TestRun_StopsOnCancel(t *testing.T) {
	srv := New("127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
