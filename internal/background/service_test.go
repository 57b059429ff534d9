package background

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/raine/page-image-prompts/internal/llm"
	"github.com/raine/page-image-prompts/internal/messaging"
	"github.com/raine/page-image-prompts/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type analyzerMock struct {
	mock.Mock
}

func (m *analyzerMock) AnalyzeImages(ctx context.Context, imageURLs []string) ([]llm.AnalysisResult, error) {
	args := m.Called(ctx, imageURLs)
	results, _ := args.Get(0).([]llm.AnalysisResult)
	return results, args.Error(1)
}

func newStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:", []byte("test-key-32-bytes-long-ok-test!!"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCheckAPIKey(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	svc := NewService(store, new(analyzerMock))
	defer svc.Close()

	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"absent", "", false},
		{"whitespace", "   ", false},
		{"present", "abc123", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				require.NoError(t, store.SetCredential(ctx, tt.value))
			}
			resp, err := svc.Router().Dispatch(ctx, messaging.Message{Type: messaging.KindCheckAPIKey})
			require.NoError(t, err)
			assert.True(t, resp.OK)
			require.NotNil(t, resp.HasKey)
			assert.Equal(t, tt.want, *resp.HasKey)
		})
	}
}

func TestAnalyzeImages_OK(t *testing.T) {
	analyzer := new(analyzerMock)
	urls := []string{"https://example.com/a.jpg", "https://example.com/missing.jpg"}
	analyzer.On("AnalyzeImages", mock.Anything, urls).Return([]llm.AnalysisResult{
		{ImageURL: urls[0], Prompt: "A cat", Raw: json.RawMessage(`{}`)},
		{ImageURL: urls[1], Prompt: "Error: Failed to fetch image: 404", Raw: json.RawMessage(`{}`)},
	}, nil)
	svc := NewService(newStore(t), analyzer)

	resp, err := svc.Router().Dispatch(context.Background(), messaging.Message{
		Type:      messaging.KindAnalyzeImages,
		ImageURLs: urls,
	})

	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Empty(t, resp.Error)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "Error: Failed to fetch image: 404", resp.Results[1].Prompt)
	analyzer.AssertExpectations(t)
}

func TestAnalyzeImages_MissingCredential(t *testing.T) {
	analyzer := new(analyzerMock)
	analyzer.On("AnalyzeImages", mock.Anything, mock.Anything).Return(nil, llm.ErrMissingCredential)
	svc := NewService(newStore(t), analyzer)

	resp, err := svc.Router().Dispatch(context.Background(), messaging.Message{
		Type:      messaging.KindAnalyzeImages,
		ImageURLs: []string{"https://example.com/a.jpg"},
	})

	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, "Missing API key. Set it in the extension options.", resp.Error)
	assert.Empty(t, resp.Results)
}

func TestClose(t *testing.T) {
	svc := NewService(newStore(t), new(analyzerMock))
	require.NoError(t, svc.Close())

	_, err := svc.Router().Dispatch(context.Background(), messaging.Message{Type: messaging.KindCheckAPIKey})
	assert.Error(t, err)
}

func TestRouterKinds(t *testing.T) {
	svc := NewService(newStore(t), new(analyzerMock))
	assert.Equal(t, []messaging.Kind{messaging.KindAnalyzeImages, messaging.KindCheckAPIKey}, svc.Router().Kinds())
	assert.False(t, svc.Router().Handles(messaging.KindGetImages))
}
