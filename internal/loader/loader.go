package loader

import (
	"os"
	"path/filepath"
	"time"

	"med-search-go/internal/model"
	"med-search-go/pkg/log"
)

// Loader 扫描配置的数据集根目录，按模态产出 DatasetItem 列表。
// 加载过程中的所有失败都是非致命的：缺失的数据集目录跳过，坏行坏图跳过。
type Loader struct {
	datasetsDir string
	cacheDir    string

	csvDatasets   []CSVDatasetConfig
	textDatasets  []TextDatasetConfig
	imageDatasets []ImageDatasetConfig
}

// New 创建一个使用内置数据集配置的 Loader。
func New(datasetsDir, cacheDir string) *Loader {
	return &Loader{
		datasetsDir:   datasetsDir,
		cacheDir:      cacheDir,
		csvDatasets:   defaultCSVDatasets(),
		textDatasets:  defaultTextDatasets(),
		imageDatasets: defaultImageDatasets(),
	}
}

// Snapshot 是一次完整加载的不可变结果，取代跨调用累积的全局状态：
// 每次加载返回一个新的快照，显式传递给下游的嵌入与索引阶段。
type Snapshot struct {
	CSV       []model.DatasetItem `json:"csv"`
	Text      []model.DatasetItem `json:"text"`
	Image     []model.DatasetItem `json:"image"`
	CreatedAt time.Time           `json:"created_at"`
}

// TextCorpus 返回进入文本索引的条目：表格数据与自由文本数据合并，
// 顺序为先 CSV 后 Text，与向量索引的插入顺序一致。
func (s Snapshot) TextCorpus() []model.DatasetItem {
	corpus := make([]model.DatasetItem, 0, len(s.CSV)+len(s.Text))
	corpus = append(corpus, s.CSV...)
	corpus = append(corpus, s.Text...)
	return corpus
}

// Total 返回快照中所有模态的条目总数。
func (s Snapshot) Total() int {
	return len(s.CSV) + len(s.Text) + len(s.Image)
}

// LoadAll 依次加载三种模态的数据集并返回快照。
func (l *Loader) LoadAll() Snapshot {
	log.Info("[Loader] 开始加载全部数据集")
	snapshot := Snapshot{
		CSV:       l.LoadCSVDatasets(),
		Text:      l.LoadTextDatasets(),
		Image:     l.LoadImageDatasets(),
		CreatedAt: time.Now().UTC(),
	}
	log.Infof("[Loader] 数据集加载完成, csv: %d, text: %d, image: %d",
		len(snapshot.CSV), len(snapshot.Text), len(snapshot.Image))
	return snapshot
}

// datasetPath 返回数据集目录，不存在时记录警告并返回 false（跳过该数据集）。
func (l *Loader) datasetPath(name string) (string, bool) {
	path := filepath.Join(l.datasetsDir, name)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		log.Warnf("[Loader] 数据集 '%s' 不存在于 %s, 跳过", name, path)
		return "", false
	}
	return path, true
}

// makeSnippet 截取前 200 个字符作为摘要，超长时追加省略号。
func makeSnippet(text string) string {
	const limit = 200
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
