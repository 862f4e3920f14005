// Package engine 实现了多模态搜索的编排层：从数据快照构建各模态的向量索引，
// 管理索引产物的存取，并对外提供统一的查询入口。
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"med-search-go/internal/config"
	"med-search-go/internal/index"
	"med-search-go/internal/loader"
	"med-search-go/internal/model"
	"med-search-go/pkg/embedding"
	"med-search-go/pkg/log"
)

// 索引产物文件名，文本与图像各一份，均为自包含的带版本产物。
const (
	TextArtifactName  = "text_index.artifact"
	ImageArtifactName = "image_index.artifact"
)

// rrfK 是 Reciprocal Rank Fusion 的平滑常数，取业界惯用值。
const rrfK = 60

// BuildResult 汇总一次索引构建的规模与降级情况。
type BuildResult struct {
	TextItems     int
	ImageItems    int
	SkippedImages int
}

// Engine 持有两个模态的向量索引与对应的编码客户端。
// 索引指针的替换在写锁内原子完成，重建期间查询始终命中旧索引。
type Engine struct {
	mu         sync.RWMutex
	textIndex  *index.Flat
	imageIndex *index.Flat

	textEncoder embedding.Client
	clipClient  *embedding.CLIPClient

	cacheDir   string
	textModel  string
	imageModel string
}

// New 创建一个尚未持有任何索引的 Engine。
func New(textEncoder embedding.Client, clipClient *embedding.CLIPClient, embCfg config.EmbeddingConfig, clipCfg config.CLIPConfig, cacheDir string) *Engine {
	return &Engine{
		textEncoder: textEncoder,
		clipClient:  clipClient,
		cacheDir:    cacheDir,
		textModel:   embCfg.Model,
		imageModel:  clipCfg.Model,
	}
}

// Build 从快照构建请求模态的索引，全部构建成功后才替换生效。
// modalities 为空时重建全部；未请求的模态保持现有索引不变。
// csv 与 text 共用文本索引，请求其一即重建整个文本索引。
func (e *Engine) Build(ctx context.Context, snapshot loader.Snapshot, modalities ...string) (BuildResult, error) {
	wantText := len(modalities) == 0 || containsAny(modalities, model.TypeCSV, model.TypeText)
	wantImage := len(modalities) == 0 || containsAny(modalities, model.TypeImage)
	log.Infof("[Engine] 开始构建搜索索引, text: %v, image: %v", wantText, wantImage)

	var (
		textIdx, imageIdx *index.Flat
		skipped           int
		err               error
	)
	if wantText {
		textIdx, err = e.buildTextIndex(ctx, snapshot)
		if err != nil {
			return BuildResult{}, fmt.Errorf("构建文本索引失败: %w", err)
		}
	}
	if wantImage {
		imageIdx, skipped, err = e.buildImageIndex(ctx, snapshot)
		if err != nil {
			return BuildResult{}, fmt.Errorf("构建图像索引失败: %w", err)
		}
	}

	e.mu.Lock()
	if wantText {
		e.textIndex = textIdx
	}
	if wantImage {
		e.imageIndex = imageIdx
	}
	e.mu.Unlock()

	result := BuildResult{SkippedImages: skipped}
	if wantText && textIdx != nil {
		result.TextItems = textIdx.Len()
	}
	if wantImage && imageIdx != nil {
		result.ImageItems = imageIdx.Len()
	}
	log.Infof("[Engine] 索引构建完成, text: %d, image: %d, skipped_images: %d",
		result.TextItems, result.ImageItems, result.SkippedImages)
	return result, nil
}

// buildTextIndex 将表格与文本条目逐条向量化后加入文本索引。
// 嵌入服务的失败会中止构建：文本模态整体静默缺失比构建失败更危险。
func (e *Engine) buildTextIndex(ctx context.Context, snapshot loader.Snapshot) (*index.Flat, error) {
	corpus := snapshot.TextCorpus()
	if len(corpus) == 0 {
		log.Warnf("[Engine] 没有可索引的文本数据")
		return nil, nil
	}

	log.Infof("[Engine] 步骤1: 为 %d 条文本生成嵌入向量", len(corpus))
	vectors := make([][]float32, 0, len(corpus))
	for i, item := range corpus {
		vector, err := e.textEncoder.CreateEmbedding(ctx, item.Content)
		if err != nil {
			return nil, fmt.Errorf("第 %d 条文本向量化失败 (id=%s): %w", i, item.ID, err)
		}
		vectors = append(vectors, vector)
	}

	idx := index.NewFlat(len(vectors[0]))
	if err := idx.Add(vectors, corpus); err != nil {
		return nil, err
	}
	log.Infof("[Engine] 文本索引构建完成, 共 %d 条", idx.Len())
	return idx, nil
}

// buildImageIndex 将图像条目编码后加入图像索引。
// 单张图片的解码失败只跳过该条并计数，不会让整批构建失败。
func (e *Engine) buildImageIndex(ctx context.Context, snapshot loader.Snapshot) (*index.Flat, int, error) {
	if len(snapshot.Image) == 0 {
		log.Warnf("[Engine] 没有可索引的图像数据")
		return nil, 0, nil
	}

	log.Infof("[Engine] 步骤2: 为 %d 张图片生成嵌入向量", len(snapshot.Image))
	var (
		vectors [][]float32
		items   []model.DatasetItem
		skipped int
	)
	for _, item := range snapshot.Image {
		imageBytes, err := os.ReadFile(item.FilePath)
		if err != nil {
			log.Warnf("[Engine] 读取图片失败, 跳过 (id=%s): %v", item.ID, err)
			skipped++
			continue
		}

		result, err := e.clipClient.EncodeImage(ctx, imageBytes)
		if err != nil {
			return nil, 0, fmt.Errorf("图片向量化失败 (id=%s): %w", item.ID, err)
		}
		if result.Skipped() {
			log.Warnf("[Engine] 图片被编码服务跳过 (id=%s): %s", item.ID, result.SkipReason)
			skipped++
			continue
		}
		vectors = append(vectors, result.Vector)
		items = append(items, item)
	}

	if len(vectors) == 0 {
		log.Warnf("[Engine] 所有图片均被跳过, 图像索引为空")
		return nil, skipped, nil
	}

	idx := index.NewFlat(len(vectors[0]))
	if err := idx.Add(vectors, items); err != nil {
		return nil, 0, err
	}
	log.Infof("[Engine] 图像索引构建完成, 共 %d 条, 跳过 %d 条", idx.Len(), skipped)
	return idx, skipped, nil
}

// SaveArtifacts 将当前生效的索引各自持久化为单个产物文件。
// modalities 为空时两个模态都保存，否则只保存请求模态的产物。
func (e *Engine) SaveArtifacts(modalities ...string) error {
	wantText := len(modalities) == 0 || containsAny(modalities, model.TypeCSV, model.TypeText)
	wantImage := len(modalities) == 0 || containsAny(modalities, model.TypeImage)

	e.mu.RLock()
	textIdx, imageIdx := e.textIndex, e.imageIndex
	e.mu.RUnlock()

	if !wantText {
		textIdx = nil
	}
	if !wantImage {
		imageIdx = nil
	}

	if textIdx != nil {
		path := filepath.Join(e.cacheDir, TextArtifactName)
		if err := index.SaveArtifact(textIdx, path, model.TypeText, e.textModel); err != nil {
			return err
		}
		log.Infof("[Engine] 文本索引产物已保存: %s", path)
	}
	if imageIdx != nil {
		path := filepath.Join(e.cacheDir, ImageArtifactName)
		if err := index.SaveArtifact(imageIdx, path, model.TypeImage, e.imageModel); err != nil {
			return err
		}
		log.Infof("[Engine] 图像索引产物已保存: %s", path)
	}
	return nil
}

// LoadArtifacts 从磁盘产物恢复索引。单个模态的产物缺失只记录并跳过，
// 损坏的产物整体拒绝加载。
func (e *Engine) LoadArtifacts() error {
	var textIdx, imageIdx *index.Flat

	textPath := filepath.Join(e.cacheDir, TextArtifactName)
	if _, err := os.Stat(textPath); err == nil {
		idx, modelVersion, err := index.LoadArtifact(textPath)
		if err != nil {
			return fmt.Errorf("加载文本索引产物失败: %w", err)
		}
		if modelVersion != e.textModel {
			log.Warnf("[Engine] 文本索引产物的模型版本 '%s' 与配置 '%s' 不一致", modelVersion, e.textModel)
		}
		textIdx = idx
		log.Infof("[Engine] 文本索引已从产物恢复, 共 %d 条", idx.Len())
	} else {
		log.Warnf("[Engine] 文本索引产物不存在: %s", textPath)
	}

	imagePath := filepath.Join(e.cacheDir, ImageArtifactName)
	if _, err := os.Stat(imagePath); err == nil {
		idx, modelVersion, err := index.LoadArtifact(imagePath)
		if err != nil {
			return fmt.Errorf("加载图像索引产物失败: %w", err)
		}
		if modelVersion != e.imageModel {
			log.Warnf("[Engine] 图像索引产物的模型版本 '%s' 与配置 '%s' 不一致", modelVersion, e.imageModel)
		}
		imageIdx = idx
		log.Infof("[Engine] 图像索引已从产物恢复, 共 %d 条", idx.Len())
	} else {
		log.Warnf("[Engine] 图像索引产物不存在: %s", imagePath)
	}

	e.mu.Lock()
	if textIdx != nil {
		e.textIndex = textIdx
	}
	if imageIdx != nil {
		e.imageIndex = imageIdx
	}
	e.mu.Unlock()
	return nil
}

// ArtifactPaths 返回请求模态的索引产物本地路径（文本在前），
// modalities 为空时返回全部。
func (e *Engine) ArtifactPaths(modalities ...string) []string {
	var paths []string
	if len(modalities) == 0 || containsAny(modalities, model.TypeCSV, model.TypeText) {
		paths = append(paths, filepath.Join(e.cacheDir, TextArtifactName))
	}
	if len(modalities) == 0 || containsAny(modalities, model.TypeImage) {
		paths = append(paths, filepath.Join(e.cacheDir, ImageArtifactName))
	}
	return paths
}

// Search 是统一查询入口。空查询返回空结果而不是错误。
// searchTypes 为空时默认覆盖全部模态；跨模态结果用 RRF 合并，
// 单模态结果保持原始得分排序。
func (e *Engine) Search(ctx context.Context, query string, topK int, searchTypes []string) ([]model.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return []model.SearchResult{}, nil
	}
	if len(searchTypes) == 0 {
		searchTypes = []string{model.TypeCSV, model.TypeText, model.TypeImage}
	}

	wantText := containsAny(searchTypes, model.TypeCSV, model.TypeText)
	wantImage := containsAny(searchTypes, model.TypeImage)

	var (
		lists   [][]model.SearchResult
		lastErr error
	)

	if wantText {
		results, err := e.searchText(ctx, query, topK)
		if err != nil {
			// 单个模态失败降级，另一模态仍可返回结果
			log.Errorf("[Engine] 文本检索失败: %v", err)
			lastErr = err
		} else if len(results) > 0 {
			lists = append(lists, results)
		}
	}

	if wantImage {
		results, err := e.searchImages(ctx, query, topK)
		if err != nil {
			log.Errorf("[Engine] 图像检索失败: %v", err)
			lastErr = err
		} else if len(results) > 0 {
			lists = append(lists, results)
		}
	}

	// 所有请求的模态都没有产出且确有错误发生时，将错误上抛，
	// 避免系统性故障被"空结果"掩盖
	if len(lists) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return []model.SearchResult{}, nil
	}

	if len(lists) == 1 {
		results := lists[0]
		for i := range results {
			results[i].FusedScore = float64(results[i].RelevanceScore)
		}
		if len(results) > topK {
			results = results[:topK]
		}
		return results, nil
	}

	return fuseByRank(lists, topK), nil
}

// searchText 在文本索引中检索（覆盖 csv 与 text 两类条目）。
func (e *Engine) searchText(ctx context.Context, query string, topK int) ([]model.SearchResult, error) {
	e.mu.RLock()
	idx := e.textIndex
	e.mu.RUnlock()
	if idx == nil {
		return nil, nil
	}

	queryVector, err := e.textEncoder.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("查询向量化失败: %w", err)
	}

	scored, err := idx.Search(queryVector, topK)
	if err != nil {
		return nil, err
	}
	return toSearchResults(scored, model.TypeText), nil
}

// searchImages 用 CLIP 文本编码在图像索引中做跨模态检索。
func (e *Engine) searchImages(ctx context.Context, query string, topK int) ([]model.SearchResult, error) {
	e.mu.RLock()
	idx := e.imageIndex
	e.mu.RUnlock()
	if idx == nil {
		return nil, nil
	}

	queryVector, err := e.clipClient.EncodeText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("CLIP 查询向量化失败: %w", err)
	}

	scored, err := idx.Search(queryVector, topK)
	if err != nil {
		return nil, err
	}
	return toSearchResults(scored, model.TypeImage), nil
}

// Stats 汇总当前已索引数据的统计信息。
func (e *Engine) Stats() model.Stats {
	e.mu.RLock()
	textIdx, imageIdx := e.textIndex, e.imageIndex
	e.mu.RUnlock()

	stats := model.Stats{Datasets: make(map[string]*model.DatasetTypeStats)}
	collect := func(idx *index.Flat) []model.DatasetItem {
		if idx == nil {
			return nil
		}
		_, items := idx.Snapshot()
		return items
	}

	textItems := collect(textIdx)
	imageItems := collect(imageIdx)
	stats.TextItems = len(textItems)
	stats.ImageItems = len(imageItems)
	stats.TotalItems = stats.TextItems + stats.ImageItems

	for _, item := range append(textItems, imageItems...) {
		ds, ok := stats.Datasets[item.Dataset]
		if !ok {
			ds = &model.DatasetTypeStats{Types: make(map[string]int)}
			stats.Datasets[item.Dataset] = ds
		}
		ds.Total++
		ds.Types[item.Type]++
	}
	return stats
}

// IndexSnapshots 返回两个索引的向量与条目，供 MongoDB 镜像使用。
func (e *Engine) IndexSnapshots() (textVectors [][]float32, textItems []model.DatasetItem, imageVectors [][]float32, imageItems []model.DatasetItem) {
	e.mu.RLock()
	textIdx, imageIdx := e.textIndex, e.imageIndex
	e.mu.RUnlock()

	if textIdx != nil {
		textVectors, textItems = textIdx.Snapshot()
	}
	if imageIdx != nil {
		imageVectors, imageItems = imageIdx.Snapshot()
	}
	return
}

// Ready 报告引擎是否至少持有一个可查询的索引。
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.textIndex != nil || e.imageIndex != nil
}

// fuseByRank 用 Reciprocal Rank Fusion 合并来自不同模态的结果列表。
// 文本余弦与 CLIP 余弦不在同一标度上，直接按原始得分混排会系统性偏向
// 某一模态，这里改用排名融合，同时在结果上保留各自的原始得分。
func fuseByRank(lists [][]model.SearchResult, topK int) []model.SearchResult {
	var fused []model.SearchResult
	for _, list := range lists {
		for rank, result := range list {
			result.FusedScore = 1.0 / float64(rrfK+rank+1)
			fused = append(fused, result)
		}
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].FusedScore > fused[j].FusedScore
	})

	if len(fused) > topK {
		fused = fused[:topK]
	}
	return fused
}

func toSearchResults(scored []index.Scored, searchType string) []model.SearchResult {
	results := make([]model.SearchResult, 0, len(scored))
	for _, s := range scored {
		results = append(results, model.SearchResult{
			ID:             s.Item.ID,
			Dataset:        s.Item.Dataset,
			Type:           s.Item.Type,
			Content:        s.Item.Content,
			Snippet:        s.Item.Snippet,
			Metadata:       s.Item.Metadata,
			FilePath:       s.Item.FilePath,
			RelevanceScore: s.Score,
			SearchType:     searchType,
		})
	}
	return results
}

func containsAny(list []string, targets ...string) bool {
	for _, v := range list {
		for _, t := range targets {
			if v == t {
				return true
			}
		}
	}
	return false
}

// ErrNotReady 表示引擎尚未持有任何索引。
var ErrNotReady = errors.New("search engine has no index loaded")
