package model

// EsDocument 定义了目录索引存储在 Elasticsearch 中的文档结构。
type EsDocument struct {
	EntryID      string    `json:"entry_id"`  // 索引条目的唯一标识
	RecordID     string    `json:"record_id"` // 对应的药品记录 _id
	TextContent  string    `json:"text_content"`
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"model_version"`
}
