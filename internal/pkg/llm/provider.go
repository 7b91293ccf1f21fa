package llm

import (
	"context"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"k8s.io/klog/v2"

	"github.com/opendeepwiki/deepresearch/config"
	"github.com/opendeepwiki/deepresearch/internal/domain"
)

// ModelFactory 按模型名创建底层 ChatModel
type ModelFactory func(ctx context.Context, modelName string) (model.BaseChatModel, error)

// Provider 按请求的模型名提供生成器，同名复用
type Provider struct {
	defaultModel string
	factory      ModelFactory

	mu    sync.RWMutex
	cache map[string]*Generator
}

// NewProvider 使用 OpenAI 兼容接口创建生成器
func NewProvider(cfg *config.Config) *Provider {
	llmCfg := cfg.LLM
	return NewProviderWithFactory(llmCfg.Model, func(ctx context.Context, modelName string) (model.BaseChatModel, error) {
		openaiConfig := &openai.ChatModelConfig{
			APIKey: llmCfg.APIKey,
			Model:  modelName,
		}
		if llmCfg.APIURL != "" {
			openaiConfig.BaseURL = llmCfg.APIURL
		}
		if llmCfg.MaxTokens > 0 {
			maxTokens := llmCfg.MaxTokens
			openaiConfig.MaxTokens = &maxTokens
		}
		chatModel, err := openai.NewChatModel(ctx, openaiConfig)
		if err != nil {
			klog.Errorf("[Provider] 创建 ChatModel 失败: model=%s, err=%v", modelName, err)
			return nil, err
		}
		return chatModel, nil
	})
}

func NewProviderWithFactory(defaultModel string, factory ModelFactory) *Provider {
	return &Provider{
		defaultModel: defaultModel,
		factory:      factory,
		cache:        make(map[string]*Generator),
	}
}

// Generator 获取指定模型的生成器，name 为空时使用默认模型
func (p *Provider) Generator(ctx context.Context, name string) (*Generator, error) {
	if name == "" {
		name = p.defaultModel
	}

	p.mu.RLock()
	if g, ok := p.cache[name]; ok {
		p.mu.RUnlock()
		return g, nil
	}
	p.mu.RUnlock()

	m, err := p.factory(ctx, name)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if g, ok := p.cache[name]; ok {
		return g, nil
	}
	g := NewGenerator(m, name)
	p.cache[name] = g
	klog.V(6).Infof("[Provider.Generator] 创建并缓存生成器: model=%s", name)
	return g, nil
}

// Dispatcher 获取指定模型的 DispatchFunc
func (p *Provider) Dispatcher(ctx context.Context, name string, onChunk ChunkFunc) (domain.DispatchFunc, error) {
	g, err := p.Generator(ctx, name)
	if err != nil {
		return nil, err
	}
	return g.Dispatcher(onChunk), nil
}
