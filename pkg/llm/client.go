// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"formfill-go/internal/config"
	"formfill-go/pkg/log"

	openai "github.com/sashabaranov/go-openai"
)

// Client defines the interface for an LLM client.
type Client interface {
	// Complete 以 role-based 消息调用聊天接口并要求模型返回 JSON 对象，返回原始文本内容。
	// 调用方必须把返回内容视为不可信数据，自行校验结构。
	Complete(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem = openai.ChatMessageRoleSystem
	RoleUser   = openai.ChatMessageRoleUser
)

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

type openAICompatibleClient struct {
	cfg    config.LLMConfig
	client *openai.Client
}

// NewClient creates a new LLM client based on the provider in the config.
func NewClient(cfg config.LLMConfig) Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &openAICompatibleClient{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientCfg),
	}
}

func (c *openAICompatibleClient) Complete(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.cfg.Model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	c.applyGeneration(&req, gen)

	log.Infof("[LLMClient] 开始调用 Chat API, model: %s, messages: %d", c.cfg.Model, len(messages))
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		log.Errorf("[LLMClient] 调用 Chat API 失败, error: %v", err)
		return "", fmt.Errorf("failed to call chat api: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat api returned no choices")
	}
	content := resp.Choices[0].Message.Content
	log.Infof("[LLMClient] Chat API 返回成功, content_len: %d, total_tokens: %d", len(content), resp.Usage.TotalTokens)
	return content, nil
}

// applyGeneration 注入生成参数，传参优先于全局配置，配置中的零值视为未设置。
func (c *openAICompatibleClient) applyGeneration(req *openai.ChatCompletionRequest, gen *GenerationParams) {
	if gen != nil {
		if gen.Temperature != nil {
			req.Temperature = float32(*gen.Temperature)
		}
		if gen.TopP != nil {
			req.TopP = float32(*gen.TopP)
		}
		if gen.MaxTokens != nil {
			req.MaxTokens = *gen.MaxTokens
		}
		return
	}
	if c.cfg.Generation.Temperature != 0 {
		req.Temperature = float32(c.cfg.Generation.Temperature)
	}
	if c.cfg.Generation.TopP != 0 {
		req.TopP = float32(c.cfg.Generation.TopP)
	}
	if c.cfg.Generation.MaxTokens != 0 {
		req.MaxTokens = c.cfg.Generation.MaxTokens
	}
}
