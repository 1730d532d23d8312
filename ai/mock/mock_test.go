package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/minutes/ai"
	"github.com/poiesic/minutes/vecmath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ai.Embedder   = (*MockEmbedder)(nil)
	_ ai.Generator  = (*MockGenerator)(nil)
	_ ai.AIProvider = (*MockProvider)(nil)
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	m := NewMockEmbedder()

	a, err := m.EmbedText(context.Background(), "hello")
	require.NoError(t, err)
	b, err := m.EmbedTexts(context.Background(), []string{"hello", "world"})
	require.NoError(t, err)

	assert.Equal(t, a, b[0])
	assert.NotEqual(t, b[0], b[1])
	assert.Len(t, a, Dimensions)
	assert.InDelta(t, 1.0, vecmath.Magnitude(a), 1e-5)
	assert.Equal(t, 2, m.CallCount())

	m.Reset()
	assert.Zero(t, m.CallCount())
}

func TestMockEmbedder_Func(t *testing.T) {
	m := NewMockEmbedder()
	m.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("down")
	}

	_, err := m.EmbedTexts(context.Background(), []string{"x"})
	assert.EqualError(t, err, "down")
}

func TestMockGenerator(t *testing.T) {
	g := NewMockGenerator("answer")

	out, err := g.Generate(context.Background(), "sys", "input")
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
	assert.Equal(t, []Call{{System: "sys", Input: "input"}}, g.Calls())

	g.GenerateFunc = func(ctx context.Context, system, input string) (string, error) {
		return input + "!", nil
	}
	out, err = g.Generate(context.Background(), "sys", "again")
	require.NoError(t, err)
	assert.Equal(t, "again!", out)
	assert.Equal(t, 2, g.CallCount())
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider().(*MockProvider)
	assert.Same(t, p.GetMockEmbedder(), p.Embedder())
	assert.Same(t, p.GetMockGenerator(), p.Generator())
	assert.NoError(t, p.Close())
}
