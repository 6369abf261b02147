// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// DocumentIngestTask 描述一个文档的后台处理任务：抽取文本、切块、向量化并写入上下文。
type DocumentIngestTask struct {
	DocumentID string `json:"document_id"`
	UserID     uint   `json:"user_id"`
	ObjectName string `json:"object_name"`
	FileName   string `json:"file_name"`
	Title      string `json:"title"`
}
