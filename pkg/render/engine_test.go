package render

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sceneforge/pkg/model"
	"sceneforge/pkg/render/fal"
	"sceneforge/pkg/tracker"
)

type stubRunner struct {
	result map[string]any
	err    error
	args   map[string]any
	model  string
	calls  int
}

func (s *stubRunner) Run(_ context.Context, model string, args map[string]any) (map[string]any, error) {
	s.calls++
	s.model = model
	s.args = args
	return s.result, s.err
}

func testEngine(stub *stubRunner) *Engine {
	e := NewEngine(time.Second, tracker.New())
	e.newRunner = func(string) runner { return stub }
	return e
}

func testProvider() *Provider {
	return &Provider{ID: "fal-1", APIKey: "k", Model: "fal-ai/flux/dev", Resolution: "landscape_16_9"}
}

func testDescriptor() *model.SceneDescriptor {
	return &model.SceneDescriptor{
		SceneID: "0123456789abcdef01234567",
		Prompts: &model.ScenePrompts{Base: "a castle at dusk", Negative: "lowres"},
	}
}

func TestRender_Success(t *testing.T) {
	stub := &stubRunner{result: map[string]any{
		"images": []any{map[string]any{
			"url": "https://img/1.png", "width": float64(1024), "height": float64(576),
		}},
	}}
	e := testEngine(stub)
	p := testProvider()

	assets, err := e.Render(context.Background(), p, testDescriptor())
	require.NoError(t, err)

	assert.Equal(t, "https://img/1.png", assets.ImageURL)
	assert.Equal(t, "https://img/1.png", assets.ThumbnailURL)
	assert.Equal(t, 1024, assets.Width)
	assert.Equal(t, 576, assets.Height)
	assert.Equal(t, "fal", assets.Provider)
	assert.Equal(t, "fal-ai/flux/dev", assets.Model)

	assert.Equal(t, "fal-ai/flux/dev", stub.model)
	assert.Equal(t, "a castle at dusk", stub.args["prompt"])
	assert.Equal(t, "lowres", stub.args["negative_prompt"])
	assert.Equal(t, "landscape_16_9", stub.args["image_size"])
	assert.Equal(t, 1, stub.args["num_images"])

	assert.Equal(t, int64(0), p.Failures())
}

func TestRender_SingleImageObject(t *testing.T) {
	stub := &stubRunner{result: map[string]any{
		"image": map[string]any{"signed_url": "https://img/signed.png", "thumbnail": "https://img/t.png"},
	}}
	e := testEngine(stub)

	assets, err := e.Render(context.Background(), testProvider(), testDescriptor())
	require.NoError(t, err)
	assert.Equal(t, "https://img/signed.png", assets.ImageURL)
	assert.Equal(t, "https://img/t.png", assets.ThumbnailURL)
}

func TestRender_ImagesAsSingleObject(t *testing.T) {
	stub := &stubRunner{result: map[string]any{
		"images": map[string]any{"url": "https://img/solo.png"},
	}}
	e := testEngine(stub)

	assets, err := e.Render(context.Background(), testProvider(), testDescriptor())
	require.NoError(t, err)
	assert.Equal(t, "https://img/solo.png", assets.ImageURL)
}

func TestRender_ImageAsList(t *testing.T) {
	stub := &stubRunner{result: map[string]any{
		"image": []any{map[string]any{"url": "https://img/listed.png"}},
	}}
	e := testEngine(stub)

	assets, err := e.Render(context.Background(), testProvider(), testDescriptor())
	require.NoError(t, err)
	assert.Equal(t, "https://img/listed.png", assets.ImageURL)
}

func TestRender_MultipleImagesUsesFirst(t *testing.T) {
	stub := &stubRunner{result: map[string]any{
		"images": []any{
			map[string]any{"url": "https://img/first.png"},
			map[string]any{"url": "https://img/second.png"},
		},
	}}
	e := testEngine(stub)

	assets, err := e.Render(context.Background(), testProvider(), testDescriptor())
	require.NoError(t, err)
	assert.Equal(t, "https://img/first.png", assets.ImageURL)
}

func TestRender_MissingURLIsFailure(t *testing.T) {
	tests := []struct {
		name   string
		result map[string]any
	}{
		{"empty list", map[string]any{"images": []any{}}},
		{"no url keys", map[string]any{"images": []any{map[string]any{"seed": float64(7)}}}},
		{"malformed record", map[string]any{"images": []any{"not-an-object"}}},
		{"no image at all", map[string]any{"status": "done"}},
		{"malformed list", map[string]any{"images": "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubRunner{result: tt.result}
			e := testEngine(stub)
			p := testProvider()

			_, err := e.Render(context.Background(), p, testDescriptor())
			require.Error(t, err)
			assert.Equal(t, int64(1), p.Failures())
			assert.False(t, p.Disabled(), "malformed responses are transient failures")
		})
	}
}

func TestRender_TransientFailureCountsButDoesNotDisable(t *testing.T) {
	stub := &stubRunner{err: &fal.APIError{StatusCode: http.StatusServiceUnavailable, Body: "overloaded"}}
	e := testEngine(stub)
	p := testProvider()

	_, err := e.Render(context.Background(), p, testDescriptor())
	require.Error(t, err)
	assert.Equal(t, int64(1), p.Failures())
	assert.False(t, p.Disabled())
}

func TestRender_CategoricalErrorDisables(t *testing.T) {
	stub := &stubRunner{err: &fal.APIError{StatusCode: http.StatusUnauthorized, Body: "invalid key"}}
	e := testEngine(stub)
	p := testProvider()

	_, err := e.Render(context.Background(), p, testDescriptor())
	require.Error(t, err)
	assert.True(t, p.Disabled())
	assert.Contains(t, p.DisabledReason(), "401")
}

func TestRender_MissingAPIKeyDisables(t *testing.T) {
	e := testEngine(&stubRunner{})
	p := testProvider()
	p.APIKey = ""

	_, err := e.Render(context.Background(), p, testDescriptor())
	require.Error(t, err)
	assert.True(t, p.Disabled())
}

func TestRender_FailureCounterResetsOnSuccess(t *testing.T) {
	stub := &stubRunner{err: errors.New("boom")}
	e := testEngine(stub)
	p := testProvider()

	_, _ = e.Render(context.Background(), p, testDescriptor())
	_, _ = e.Render(context.Background(), p, testDescriptor())
	assert.Equal(t, int64(2), p.Failures())

	stub.err = nil
	stub.result = map[string]any{"images": []any{map[string]any{"url": "https://img/ok.png"}}}
	_, err := e.Render(context.Background(), p, testDescriptor())
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.Failures())
}
