// Package embedding provides a client for interacting with embedding models.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"formfill-go/internal/config"
	"formfill-go/pkg/log"

	"golang.org/x/time/rate"
)

// Client defines the interface for an embedding client.
type Client interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
	// Dimensions 返回全系统固定的向量维度。
	Dimensions() int
}

// ShapeError 表示向量维度与系统固定维度不一致。该错误对当次调用是致命的，向量不会被截断或补齐。
type ShapeError struct {
	Want int
	Got  int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("embedding shape mismatch: want %d dimensions, got %d", e.Want, e.Got)
}

// Validate 校验向量维度，维度不符时返回 *ShapeError。
func Validate(vector []float32, dims int) error {
	if len(vector) != dims {
		return &ShapeError{Want: dims, Got: len(vector)}
	}
	return nil
}

type openAICompatibleClient struct {
	cfg     config.EmbeddingConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new embedding client based on the provider in the config.
// 所有调用共享同一个限流器，RateLimit 为 0 时不限流。
func NewClient(cfg config.EmbeddingConfig) Client {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &openAICompatibleClient{
		cfg:     cfg,
		client:  &http.Client{},
		limiter: rate.NewLimiter(limit, burst),
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *openAICompatibleClient) Dimensions() int {
	return c.cfg.Dimensions
}

// CreateEmbedding calls the OpenAI-compatible API to get the vector for a given text.
func (c *openAICompatibleClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limiter: %w", err)
	}

	log.Infof("[EmbeddingClient] 开始调用 Embedding API, model: %s, input_len: %d", c.cfg.Model, len(text))
	reqBody := embeddingRequest{
		Model:      c.cfg.Model,
		Input:      []string{text},
		Dimensions: c.cfg.Dimensions,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		return nil, fmt.Errorf("failed to call embedding api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Errorf("[EmbeddingClient] Embedding API 返回非 200 状态码: %s", resp.Status)
		return nil, fmt.Errorf("embedding api returned non-200 status: %s, body: %s", resp.Status, string(body))
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		log.Errorf("[EmbeddingClient] 解析 Embedding API 响应失败, error: %v", err)
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(embeddingResp.Data) == 0 {
		log.Warnf("[EmbeddingClient] Embedding API 返回了空的向量数据")
		return nil, fmt.Errorf("received empty embedding from api")
	}

	vector := embeddingResp.Data[0].Embedding
	if err := Validate(vector, c.cfg.Dimensions); err != nil {
		log.Errorf("[EmbeddingClient] 向量维度不符: %v", err)
		return nil, err
	}

	log.Infof("[EmbeddingClient] 成功从 Embedding API 获取向量, 维度: %d", len(vector))
	return vector, nil
}
