// Package pipeline 定义了索引重建的核心流程。
package pipeline

import (
	"context"
	"fmt"
	"time"

	"med-search-go/internal/config"
	"med-search-go/internal/engine"
	"med-search-go/internal/loader"
	"med-search-go/internal/model"
	"med-search-go/internal/repository"
	"med-search-go/pkg/log"
	"med-search-go/pkg/storage"
	"med-search-go/pkg/tasks"
)

// Processor 封装了索引重建的所有依赖和逻辑。
type Processor struct {
	loader       *loader.Loader
	engine       *engine.Engine
	docRepo      repository.SearchDocumentRepository
	buildRunRepo repository.BuildRunRepository
	minioCfg     config.MinIOConfig
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	l *loader.Loader,
	eng *engine.Engine,
	docRepo repository.SearchDocumentRepository,
	buildRunRepo repository.BuildRunRepository,
	minioCfg config.MinIOConfig,
) *Processor {
	return &Processor{
		loader:       l,
		engine:       eng,
		docRepo:      docRepo,
		buildRunRepo: buildRunRepo,
		minioCfg:     minioCfg,
	}
}

// Process 是索引重建任务的主函数。任一阶段失败都会把失败原因
// 记入 build_runs，而不是只留下一条日志。
func (p *Processor) Process(ctx context.Context, task tasks.RebuildTask) error {
	log.Infof("[Processor] 开始处理索引重建任务, RunID: %s, Force: %v", task.RunID, task.ForceRebuild)

	if err := p.buildRunRepo.MarkRunning(task.RunID); err != nil {
		log.Warnf("[Processor] 更新构建记录状态失败 (run_id=%s): %v", task.RunID, err)
	}

	result, err := p.rebuild(ctx, task)
	if err != nil {
		p.finish(task.RunID, model.BuildRun{
			Status:   model.BuildRunFailed,
			ErrorMsg: err.Error(),
		})
		return err
	}

	p.finish(task.RunID, model.BuildRun{
		Status:        model.BuildRunSuccess,
		TextItems:     result.TextItems,
		ImageItems:    result.ImageItems,
		SkippedImages: result.SkippedImages,
	})
	log.Infof("[Processor] 索引重建成功完成, RunID: %s", task.RunID)
	return nil
}

func (p *Processor) rebuild(ctx context.Context, task tasks.RebuildTask) (engine.BuildResult, error) {
	// 1. 获取数据快照：非强制重建时优先使用磁盘缓存
	log.Info("[Processor] 步骤1: 加载数据集快照")
	var snapshot loader.Snapshot
	if !task.ForceRebuild {
		if cached, ok := p.loader.LoadCache(); ok {
			log.Info("[Processor] 使用缓存的数据集快照")
			snapshot = cached
		}
	}
	if snapshot.Total() == 0 {
		log.Info("[Processor] 重新扫描数据集目录")
		snapshot = p.loader.LoadAll()
		if err := p.loader.SaveCache(snapshot); err != nil {
			log.Warnf("[Processor] 保存数据缓存失败: %v", err)
		}
	}
	if snapshot.Total() == 0 {
		return engine.BuildResult{}, fmt.Errorf("没有加载到任何数据集条目")
	}
	log.Infof("[Processor] 步骤1: 快照就绪, 共 %d 条", snapshot.Total())

	// 2. 只重建请求的模态（嵌入 + 归一化 + 入索引），完成后原子切换生效，
	// 未请求的模态保持现有索引与产物不动
	log.Infof("[Processor] 步骤2: 构建向量索引, modalities: %v", task.Modalities)
	result, err := p.engine.Build(ctx, snapshot, task.Modalities...)
	if err != nil {
		return engine.BuildResult{}, err
	}

	// 3. 持久化重建模态的索引产物
	log.Info("[Processor] 步骤3: 保存索引产物")
	if err := p.engine.SaveArtifacts(task.Modalities...); err != nil {
		return engine.BuildResult{}, fmt.Errorf("保存索引产物失败: %w", err)
	}

	// 4. 上传产物到 MinIO，供其他实例共享
	if storage.MinioClient != nil {
		log.Info("[Processor] 步骤4: 上传索引产物到 MinIO")
		for _, path := range p.engine.ArtifactPaths(task.Modalities...) {
			if err := storage.UploadArtifact(ctx, p.minioCfg.BucketName, path); err != nil {
				// 上传失败不影响本地索引可用性，记录后继续
				log.Errorf("[Processor] 上传索引产物失败: %v", err)
			}
		}
	}

	// 5. 镜像到 MongoDB
	if p.docRepo.Enabled() {
		log.Info("[Processor] 步骤5: 镜像文档到 MongoDB")
		if err := p.mirrorToMongo(ctx); err != nil {
			return engine.BuildResult{}, fmt.Errorf("镜像文档到 MongoDB 失败: %w", err)
		}
	}

	return result, nil
}

// mirrorToMongo 将索引中的全部条目连同嵌入向量写入镜像集合。
func (p *Processor) mirrorToMongo(ctx context.Context) error {
	textVectors, textItems, imageVectors, imageItems := p.engine.IndexSnapshots()

	docs := make([]model.SearchDocument, 0, len(textItems)+len(imageItems))
	now := time.Now().UTC()
	appendDocs := func(vectors [][]float32, items []model.DatasetItem) {
		for i, item := range items {
			docs = append(docs, model.SearchDocument{
				ID:        item.ID,
				Dataset:   item.Dataset,
				Type:      item.Type,
				Content:   item.Content,
				Snippet:   item.Snippet,
				Metadata:  item.Metadata,
				FilePath:  item.FilePath,
				Embedding: vectors[i],
				CreatedAt: now,
			})
		}
	}
	appendDocs(textVectors, textItems)
	appendDocs(imageVectors, imageItems)

	if err := p.docRepo.ReplaceAll(ctx, docs); err != nil {
		return err
	}
	log.Infof("[Processor] 已镜像 %d 条文档到 MongoDB", len(docs))
	return nil
}

func (p *Processor) finish(runID string, result model.BuildRun) {
	if err := p.buildRunRepo.MarkFinished(runID, result); err != nil {
		log.Errorf("[Processor] 写入构建结果失败 (run_id=%s): %v", runID, err)
	}
}
