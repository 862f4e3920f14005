package repository

import (
	"context"
	"fmt"

	"med-search-go/internal/model"
	"med-search-go/pkg/log"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SearchDocumentRepository 定义了 MongoDB 文档镜像的数据操作接口。
// 镜像是可选能力：未配置 Mongo 时注入 nil collection，所有操作变为 no-op。
type SearchDocumentRepository interface {
	ReplaceAll(ctx context.Context, docs []model.SearchDocument) error
	VectorSearch(ctx context.Context, queryVector []float32, topK int) ([]model.SearchResult, error)
	Enabled() bool
}

type searchDocumentRepository struct {
	collection *mongo.Collection
}

// NewSearchDocumentRepository 创建一个新的 SearchDocumentRepository 实例。
func NewSearchDocumentRepository(collection *mongo.Collection) SearchDocumentRepository {
	return &searchDocumentRepository{collection: collection}
}

// Enabled 报告镜像功能是否可用。
func (r *searchDocumentRepository) Enabled() bool {
	return r.collection != nil
}

// ReplaceAll 先清空集合再批量写入，保持镜像与当前索引严格一致。
// 单条写入冲突不中断整批（unordered insert）。
func (r *searchDocumentRepository) ReplaceAll(ctx context.Context, docs []model.SearchDocument) error {
	if r.collection == nil {
		return nil
	}

	if _, err := r.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("清空镜像集合失败: %w", err)
	}
	if len(docs) == 0 {
		return nil
	}

	payload := make([]interface{}, 0, len(docs))
	for _, doc := range docs {
		payload = append(payload, doc)
	}

	opts := options.InsertMany().SetOrdered(false)
	result, err := r.collection.InsertMany(ctx, payload, opts)
	if err != nil {
		return fmt.Errorf("批量写入镜像文档失败: %w", err)
	}
	log.Infof("[SearchDocumentRepo] 已写入 %d 条镜像文档", len(result.InsertedIDs))
	return nil
}

// VectorSearch 通过 Atlas $vectorSearch 聚合执行备用向量检索路径。
// 需要在集合上预先创建名为 vector_index 的向量索引。
func (r *searchDocumentRepository) VectorSearch(ctx context.Context, queryVector []float32, topK int) ([]model.SearchResult, error) {
	if r.collection == nil {
		return []model.SearchResult{}, nil
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: "vector_index"},
			{Key: "path", Value: "embedding"},
			{Key: "queryVector", Value: queryVector},
			{Key: "numCandidates", Value: topK * 10},
			{Key: "limit", Value: topK},
		}}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "dataset", Value: 1},
			{Key: "type", Value: 1},
			{Key: "content", Value: 1},
			{Key: "snippet", Value: 1},
			{Key: "metadata", Value: 1},
			{Key: "file_path", Value: 1},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongodb 向量检索失败: %w", err)
	}
	defer cursor.Close(ctx)

	var results []model.SearchResult
	for cursor.Next(ctx) {
		var doc struct {
			ID       string            `bson:"_id"`
			Dataset  string            `bson:"dataset"`
			Type     string            `bson:"type"`
			Content  string            `bson:"content"`
			Snippet  string            `bson:"snippet"`
			Metadata map[string]string `bson:"metadata"`
			FilePath string            `bson:"file_path"`
			Score    float64           `bson:"score"`
		}
		if err := cursor.Decode(&doc); err != nil {
			log.Warnf("[SearchDocumentRepo] 跳过无法解码的检索结果: %v", err)
			continue
		}
		results = append(results, model.SearchResult{
			ID:             doc.ID,
			Dataset:        doc.Dataset,
			Type:           doc.Type,
			Content:        doc.Content,
			Snippet:        doc.Snippet,
			Metadata:       doc.Metadata,
			FilePath:       doc.FilePath,
			RelevanceScore: float32(doc.Score),
			FusedScore:     doc.Score,
			SearchType:     "mongodb_vector",
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("读取检索结果失败: %w", err)
	}
	return results, nil
}
