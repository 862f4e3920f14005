// Package service 提供了搜索相关的业务逻辑。
package service

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"med-search-go/internal/config"
	"med-search-go/internal/engine"
	"med-search-go/internal/model"
	"med-search-go/internal/repository"
	"med-search-go/pkg/embedding"
	"med-search-go/pkg/kafka"
	"med-search-go/pkg/log"
	"med-search-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// SearchService 接口定义了对外的搜索与索引管理操作。
type SearchService interface {
	Search(ctx context.Context, query string, topK int, searchTypes []string) ([]model.SearchResult, error)
	Stats(ctx context.Context) model.Stats
	RequestRebuild(ctx context.Context, force bool, modalities []string, requestedBy string) (*model.BuildRun, error)
	ListRuns(ctx context.Context, limit int) ([]*model.BuildRun, error)
}

type searchService struct {
	engine       *engine.Engine
	buildRunRepo repository.BuildRunRepository
	docRepo      repository.SearchDocumentRepository
	textEncoder  embedding.Client
	rdb          *redis.Client
	searchCfg    config.SearchConfig
}

// NewSearchService 创建一个新的 SearchService 实例。rdb 为 nil 时禁用结果缓存。
func NewSearchService(
	eng *engine.Engine,
	buildRunRepo repository.BuildRunRepository,
	docRepo repository.SearchDocumentRepository,
	textEncoder embedding.Client,
	rdb *redis.Client,
	searchCfg config.SearchConfig,
) SearchService {
	return &searchService{
		engine:       eng,
		buildRunRepo: buildRunRepo,
		docRepo:      docRepo,
		textEncoder:  textEncoder,
		rdb:          rdb,
		searchCfg:    searchCfg,
	}
}

// Search 执行统一检索：空查询直接返回空结果；命中 Redis 缓存时跳过嵌入与索引查询。
func (s *searchService) Search(ctx context.Context, query string, topK int, searchTypes []string) ([]model.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		log.Warnf("[SearchService] 收到空查询, 返回空结果")
		return []model.SearchResult{}, nil
	}
	if topK <= 0 {
		topK = s.searchCfg.DefaultTopK
	}
	if !s.engine.Ready() {
		// 本地索引缺失时退回 MongoDB 镜像的向量检索
		if s.docRepo != nil && s.docRepo.Enabled() {
			return s.searchViaMongo(ctx, query, topK)
		}
		return nil, engine.ErrNotReady
	}

	cacheKey := s.cacheKey(query, topK, searchTypes)
	if cached, ok := s.cacheGet(ctx, cacheKey); ok {
		log.Infof("[SearchService] 缓存命中, query: '%s'", query)
		return cached, nil
	}

	log.Infof("[SearchService] 开始执行检索, query: '%s', topK: %d, types: %v", query, topK, searchTypes)
	results, err := s.engine.Search(ctx, query, topK, searchTypes)
	if err != nil {
		return nil, fmt.Errorf("检索执行失败: %w", err)
	}

	s.cacheSet(ctx, cacheKey, results)
	log.Infof("[SearchService] 检索完成, query: '%s', 返回 %d 条结果", query, len(results))
	return results, nil
}

// searchViaMongo 是本地索引不可用时的降级检索路径：
// 查询向量化后走 Atlas $vectorSearch，结果标记来源为 mongodb_vector。
func (s *searchService) searchViaMongo(ctx context.Context, query string, topK int) ([]model.SearchResult, error) {
	log.Warnf("[SearchService] 本地索引不可用, 退回 MongoDB 向量检索, query: '%s'", query)
	queryVector, err := s.textEncoder.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("查询向量化失败: %w", err)
	}
	results, err := s.docRepo.VectorSearch(ctx, queryVector, topK)
	if err != nil {
		return nil, fmt.Errorf("mongodb 检索失败: %w", err)
	}
	return results, nil
}

// Stats 返回当前索引的统计信息。
func (s *searchService) Stats(_ context.Context) model.Stats {
	return s.engine.Stats()
}

// RequestRebuild 创建构建记录并将重建任务投递到 Kafka，由后台消费者异步执行。
func (s *searchService) RequestRebuild(_ context.Context, force bool, modalities []string, requestedBy string) (*model.BuildRun, error) {
	if len(modalities) == 0 {
		modalities = []string{model.TypeCSV, model.TypeText, model.TypeImage}
	}

	run := &model.BuildRun{
		RunID:        uuid.NewString(),
		Modalities:   strings.Join(modalities, ","),
		Status:       model.BuildRunPending,
		ForceRebuild: force,
		RequestedBy:  requestedBy,
		CreatedAt:    time.Now(),
	}
	if err := s.buildRunRepo.Create(run); err != nil {
		return nil, fmt.Errorf("创建构建记录失败: %w", err)
	}

	task := tasks.RebuildTask{
		RunID:        run.RunID,
		Modalities:   modalities,
		ForceRebuild: force,
		RequestedBy:  requestedBy,
	}
	if err := kafka.ProduceRebuildTask(task); err != nil {
		return nil, fmt.Errorf("投递重建任务失败: %w", err)
	}

	log.Infof("[SearchService] 已投递索引重建任务, RunID: %s, force: %v", run.RunID, force)
	return run, nil
}

// ListRuns 返回最近的构建记录。
func (s *searchService) ListRuns(_ context.Context, limit int) ([]*model.BuildRun, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.buildRunRepo.FindRecent(limit)
}

// cacheKey 由查询参数生成稳定的缓存键。
func (s *searchService) cacheKey(query string, topK int, searchTypes []string) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%d|%s", query, topK, strings.Join(searchTypes, ","))))
	return fmt.Sprintf("search:cache:%x", sum)
}

func (s *searchService) cacheGet(ctx context.Context, key string) ([]model.SearchResult, bool) {
	if s.rdb == nil || s.searchCfg.CacheTTLSeconds <= 0 {
		return nil, false
	}
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		// redis.Nil 表示未命中，其他错误降级为未命中
		if err != redis.Nil {
			log.Warnf("[SearchService] 读取结果缓存失败: %v", err)
		}
		return nil, false
	}
	var results []model.SearchResult
	if err := json.Unmarshal(data, &results); err != nil {
		log.Warnf("[SearchService] 解析结果缓存失败: %v", err)
		return nil, false
	}
	return results, true
}

func (s *searchService) cacheSet(ctx context.Context, key string, results []model.SearchResult) {
	if s.rdb == nil || s.searchCfg.CacheTTLSeconds <= 0 {
		return
	}
	data, err := json.Marshal(results)
	if err != nil {
		return
	}
	ttl := time.Duration(s.searchCfg.CacheTTLSeconds) * time.Second
	if err := s.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		log.Warnf("[SearchService] 写入结果缓存失败: %v", err)
	}
}
