package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendeepwiki/deepresearch/internal/domain"
)

// fakeModel 按预设分片输出；failAt >= 0 时在该分片位置注入流错误
type fakeModel struct {
	chunks  []string
	failAt  int
	failErr error
	openErr error
	got     []*schema.Message
}

func (f *fakeModel) Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage(strings.Join(f.chunks, ""), nil), nil
}

func (f *fakeModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.got = in
	if f.openErr != nil {
		return nil, f.openErr
	}
	sr, sw := schema.Pipe[*schema.Message](len(f.chunks) + 1)
	go func() {
		defer sw.Close()
		for i, c := range f.chunks {
			if f.failErr != nil && i == f.failAt {
				sw.Send(nil, f.failErr)
				return
			}
			sw.Send(schema.AssistantMessage(c, nil), nil)
		}
	}()
	return sr, nil
}

func envelope() *domain.Envelope {
	return &domain.Envelope{
		Goal:     domain.GoalDirectAnswer,
		Guidance: "<role>analyst</role>",
		Shape:    domain.OutputShape{Kind: domain.ShapeFreeText},
		Query:    "How is the session token validated?",
		History:  []domain.Exchange{{Query: "first question", Response: "first answer"}},
		Context:  []domain.ContextBlock{{FilePath: "auth/session.go", Content: "func Validate() {}"}},
	}
}

func TestStreamAccumulatesChunks(t *testing.T) {
	m := &fakeModel{chunks: []string{"Tokens are ", "validated in ", "auth/session.go"}}
	g := NewGenerator(m, "fake")

	var seen []string
	text, err := g.Stream(context.Background(), envelope(), func(c string) error {
		seen = append(seen, c)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Tokens are validated in auth/session.go", text)
	assert.Equal(t, m.chunks, seen)

	require.Len(t, m.got, 4)
	assert.Equal(t, schema.System, m.got[0].Role)
	assert.Equal(t, schema.User, m.got[1].Role)
	assert.Equal(t, schema.Assistant, m.got[2].Role)
	assert.Contains(t, m.got[3].Content, "<START_OF_CONTEXT>")
	assert.Contains(t, m.got[3].Content, "## File Path: auth/session.go")
	assert.Contains(t, m.got[3].Content, "How is the session token validated?")
}

func TestStreamInterruptedKeepsPartial(t *testing.T) {
	cause := errors.New("connection reset")
	m := &fakeModel{chunks: []string{"## Research Plan\n", "partial", "never"}, failAt: 2, failErr: cause}
	g := NewGenerator(m, "fake")

	_, err := g.Stream(context.Background(), envelope(), nil)
	var ci *domain.ChannelInterruption
	require.True(t, errors.As(err, &ci), "got %v", err)
	assert.Equal(t, "## Research Plan\npartial", ci.Partial)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, domain.ErrChannelInterrupted)
}

func TestStreamEmptyResponseIsInterruption(t *testing.T) {
	g := NewGenerator(&fakeModel{}, "fake")
	_, err := g.Stream(context.Background(), envelope(), nil)
	var ci *domain.ChannelInterruption
	require.True(t, errors.As(err, &ci))
	assert.Empty(t, ci.Partial)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestStreamOpenFailureIsPlainError(t *testing.T) {
	g := NewGenerator(&fakeModel{openErr: errors.New("401")}, "fake")
	_, err := g.Stream(context.Background(), envelope(), nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrChannelInterrupted))
}

func TestStreamConsumerGoneIsInterruption(t *testing.T) {
	g := NewGenerator(&fakeModel{chunks: []string{"a", "b"}}, "fake")
	gone := errors.New("websocket closed")
	_, err := g.Stream(context.Background(), envelope(), func(string) error { return gone })
	var ci *domain.ChannelInterruption
	require.True(t, errors.As(err, &ci))
	assert.Equal(t, "a", ci.Partial)
}

func TestRenderRepairAndForbidden(t *testing.T) {
	env := &domain.Envelope{
		Goal:             domain.GoalThreatModel,
		Guidance:         `schema {"type": "object"}`,
		Shape:            domain.OutputShape{Kind: domain.ShapeSchemaDocument},
		ForbiddenMarkers: []string{"```"},
		Query:            "threat model please",
	}
	msgs, err := Render(context.Background(), env.WithRepair("missing property 'scope'"))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Content, `schema {"type": "object"}`)
	assert.Contains(t, msgs[0].Content, "The response must not contain: `"+"```"+"`")
	assert.Contains(t, msgs[1].Content, "<repair>")
	assert.Contains(t, msgs[1].Content, "missing property 'scope'")
	assert.NotContains(t, msgs[1].Content, "<START_OF_CONTEXT>")
}

func TestProviderCachesGenerators(t *testing.T) {
	calls := 0
	p := NewProviderWithFactory("default-model", func(ctx context.Context, name string) (model.BaseChatModel, error) {
		calls++
		return &fakeModel{}, nil
	})

	a, err := p.Generator(context.Background(), "")
	require.NoError(t, err)
	b, err := p.Generator(context.Background(), "default-model")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, "default-model", a.Name())
	assert.Equal(t, 1, calls)

	_, err = p.Generator(context.Background(), "other")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
