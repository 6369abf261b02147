// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"formfill-go/internal/config"
	"formfill-go/internal/model"
	"formfill-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端，并确保上下文索引以给定的向量维度存在。
func InitES(esCfg config.ElasticsearchConfig, dims int) error {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName, dims)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName string, dims int) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	defer res.Body.Close()
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	// 向量字段使用 cosine 相似度，user_id 作为 kNN 的过滤条件。
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"entry_id": { "type": "keyword" },
				"user_id": { "type": "long" },
				"key": { "type": "text", "analyzer": "standard" },
				"text": { "type": "text", "analyzer": "standard" },
				"tags": { "type": "keyword" },
				"source_kind": { "type": "keyword" },
				"document_id": { "type": "keyword" },
				"chunk_index": { "type": "integer" },
				"total_chunks": { "type": "integer" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, dims)

	createRes, err := ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer createRes.Body.Close()
	if createRes.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, createRes.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// Hit 是一次 kNN 检索的命中结果，Score 为 Elasticsearch 原始得分。
type Hit struct {
	Doc   model.EsContextDocument
	Score float64
}

// ContextIndex 封装了上下文索引上的写入、kNN 检索与删除。
type ContextIndex struct {
	client    *elasticsearch.Client
	indexName string
}

// NewContextIndex 创建一个 ContextIndex。
func NewContextIndex(client *elasticsearch.Client, indexName string) *ContextIndex {
	return &ContextIndex{client: client, indexName: indexName}
}

// Upsert 以 EntryID 为文档 ID 写入或覆盖一条上下文。
func (i *ContextIndex) Upsert(ctx context.Context, doc model.EsContextDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      i.indexName,
		DocumentID: doc.EntryID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引文档到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index document")
	}
	return nil
}

// KNNSearch 在指定用户的上下文中执行近似最近邻检索，返回最多 k 条结果。
func (i *ContextIndex) KNNSearch(ctx context.Context, userID uint, vector []float32, k int) ([]Hit, error) {
	query := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              k,
			"num_candidates": k * 2,
			"filter": map[string]interface{}{
				"term": map[string]interface{}{"user_id": userID},
			},
		},
		"size": k,
		"_source": map[string]interface{}{
			"excludes": []string{"vector"},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(i.indexName),
		i.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		log.Errorf("[ContextIndex] Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(body))
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.EsContextDocument `json:"_source"`
				Score  float64                 `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	hits := make([]Hit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		hits = append(hits, Hit{Doc: h.Source, Score: h.Score})
	}
	return hits, nil
}

// DeleteByDocument 删除某个用户某个文档的全部分块。
func (i *ContextIndex) DeleteByDocument(ctx context.Context, userID uint, documentID string) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []map[string]interface{}{
					{"term": map[string]interface{}{"user_id": userID}},
					{"term": map[string]interface{}{"document_id": documentID}},
				},
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := i.client.DeleteByQuery(
		[]string{i.indexName},
		&buf,
		i.client.DeleteByQuery.WithContext(ctx),
		i.client.DeleteByQuery.WithRefresh(true),
		i.client.DeleteByQuery.WithConflicts("proceed"),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete_by_query failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch delete_by_query returned an error: %s", res.String())
	}
	return nil
}

// DeleteEntry 删除单条上下文，文档不存在时视为成功。
func (i *ContextIndex) DeleteEntry(ctx context.Context, entryID string) error {
	res, err := i.client.Delete(
		i.indexName,
		entryID,
		i.client.Delete.WithContext(ctx),
		i.client.Delete.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("elasticsearch delete returned an error: %s", res.String())
	}
	return nil
}
