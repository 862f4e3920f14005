package model

import "time"

// SearchDocument 代表镜像到 MongoDB 中的文档结构，嵌入向量与元数据一并落库，
// 供 Atlas $vectorSearch 聚合查询使用。
type SearchDocument struct {
	ID        string            `bson:"_id" json:"id"`
	Dataset   string            `bson:"dataset" json:"dataset"`
	Type      string            `bson:"type" json:"type"`
	Content   string            `bson:"content" json:"content"`
	Snippet   string            `bson:"snippet" json:"snippet"`
	Metadata  map[string]string `bson:"metadata" json:"metadata"`
	FilePath  string            `bson:"file_path" json:"file_path"`
	Embedding []float32         `bson:"embedding" json:"embedding"`
	CreatedAt time.Time         `bson:"created_at" json:"created_at"`
}
