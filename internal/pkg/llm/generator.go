package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"k8s.io/klog/v2"

	"github.com/opendeepwiki/deepresearch/internal/domain"
)

// ErrEmptyResponse 通道正常结束但没有任何内容
var ErrEmptyResponse = errors.New("generator returned no content")

// ChunkFunc 每收到一个分片调用一次；返回错误表示下游已不再接收
type ChunkFunc func(chunk string) error

// Generator 生成器通道：把指令发给模型并累计流式分片
type Generator struct {
	model model.BaseChatModel
	name  string
}

func NewGenerator(m model.BaseChatModel, name string) *Generator {
	return &Generator{model: m, name: name}
}

// Name 模型名
func (g *Generator) Name() string {
	return g.name
}

// Stream 流式生成，直到收到结束信号为止，返回完整文本。
// 打开流失败是普通错误（可重试）；流中途出错或内容为空返回 *domain.ChannelInterruption。
func (g *Generator) Stream(ctx context.Context, env *domain.Envelope, onChunk ChunkFunc) (string, error) {
	msgs, err := Render(ctx, env)
	if err != nil {
		return "", err
	}

	klog.V(6).Infof("[Generator.Stream] 开始生成: model=%s, goal=%s, messages=%d", g.name, env.Goal, len(msgs))
	sr, err := g.model.Stream(ctx, msgs)
	if err != nil {
		klog.Errorf("[Generator.Stream] 打开流失败: model=%s, err=%v", g.name, err)
		return "", fmt.Errorf("open stream: %w", err)
	}
	defer sr.Close()

	var sb strings.Builder
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", &domain.ChannelInterruption{Partial: sb.String(), Cause: ctxErr}
		}
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			klog.Warningf("[Generator.Stream] 流中断: model=%s, received=%d, err=%v", g.name, sb.Len(), err)
			return "", &domain.ChannelInterruption{Partial: sb.String(), Cause: err}
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		sb.WriteString(chunk.Content)
		if onChunk != nil {
			if err := onChunk(chunk.Content); err != nil {
				return "", &domain.ChannelInterruption{Partial: sb.String(), Cause: err}
			}
		}
	}

	if sb.Len() == 0 {
		return "", &domain.ChannelInterruption{Cause: ErrEmptyResponse}
	}
	klog.V(6).Infof("[Generator.Stream] 生成完成: model=%s, length=%d", g.name, sb.Len())
	return sb.String(), nil
}

// Dispatcher 把生成器包装成 domain.DispatchFunc
func (g *Generator) Dispatcher(onChunk ChunkFunc) domain.DispatchFunc {
	return func(ctx context.Context, env *domain.Envelope) (string, error) {
		return g.Stream(ctx, env, onChunk)
	}
}
