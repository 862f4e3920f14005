package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"med-search-go/pkg/log"
)

// 快照缓存文件格式版本与文件名。
const (
	cacheVersion  = 1
	cacheFileName = "dataset_snapshot.json"
)

// snapshotCache 是快照磁盘缓存的序列化格式，单个 JSON 文件覆盖全部模态。
type snapshotCache struct {
	Version    int       `json:"version"`
	SavedAt    time.Time `json:"saved_at"`
	TotalItems int       `json:"total_items"`
	Snapshot   Snapshot  `json:"snapshot"`
}

// SaveCache 将快照写入磁盘缓存，供后续启动跳过重新扫描数据集。
func (l *Loader) SaveCache(snapshot Snapshot) error {
	cache := snapshotCache{
		Version:    cacheVersion,
		SavedAt:    time.Now().UTC(),
		TotalItems: snapshot.Total(),
		Snapshot:   snapshot,
	}

	data, err := json.Marshal(cache)
	if err != nil {
		return fmt.Errorf("序列化数据缓存失败: %w", err)
	}

	if err := os.MkdirAll(l.cacheDir, os.ModePerm); err != nil {
		return fmt.Errorf("创建缓存目录失败: %w", err)
	}
	path := filepath.Join(l.cacheDir, cacheFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("写入数据缓存失败: %w", err)
	}

	log.Infof("[Loader] 数据缓存已保存到 %s, 共 %d 条", path, cache.TotalItems)
	return nil
}

// LoadCache 尝试从磁盘缓存恢复快照。缓存不存在、版本不匹配或损坏时
// 返回 false，由调用方退回完整加载。
func (l *Loader) LoadCache() (Snapshot, bool) {
	path := filepath.Join(l.cacheDir, cacheFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, false
	}

	var cache snapshotCache
	if err := json.Unmarshal(data, &cache); err != nil {
		log.Errorf("[Loader] 解析数据缓存失败: %v", err)
		return Snapshot{}, false
	}
	if cache.Version != cacheVersion {
		log.Warnf("[Loader] 数据缓存版本不匹配 (got %d, want %d), 忽略缓存", cache.Version, cacheVersion)
		return Snapshot{}, false
	}

	log.Infof("[Loader] 从缓存加载了 %d 条数据", cache.TotalItems)
	return cache.Snapshot, true
}
