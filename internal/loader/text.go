package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"med-search-go/internal/model"
	"med-search-go/pkg/log"
)

// LoadTextDatasets 加载所有自由文本医疗数据集（转写记录 CSV 与 PubMedQA JSON）。
func (l *Loader) LoadTextDatasets() []model.DatasetItem {
	log.Info("[Loader] 开始加载文本数据集")
	var items []model.DatasetItem

	for _, cfg := range l.textDatasets {
		datasetPath, ok := l.datasetPath(cfg.Name)
		if !ok {
			continue
		}

		var loaded []model.DatasetItem
		switch cfg.Format {
		case formatCSV:
			loaded = l.loadTranscriptions(cfg, datasetPath)
		case formatJSON:
			loaded = l.loadPubMedQA(cfg, datasetPath)
		default:
			log.Warnf("[Loader] 文本数据集 '%s' 的格式 '%s' 未知, 跳过", cfg.Name, cfg.Format)
			continue
		}
		items = append(items, loaded...)
		log.Infof("[Loader] 数据集 '%s' 加载了 %d 条记录", cfg.Name, len(loaded))
	}

	log.Infof("[Loader] 文本记录总数: %d", len(items))
	return items
}

// loadTranscriptions 处理医疗转写 CSV：正文列为空的行跳过。
func (l *Loader) loadTranscriptions(cfg TextDatasetConfig, datasetPath string) []model.DatasetItem {
	files, err := filepath.Glob(filepath.Join(datasetPath, "*.csv"))
	if err != nil {
		log.Errorf("[Loader] 枚举数据集 '%s' 的 CSV 文件失败: %v", cfg.Name, err)
		return nil
	}

	var items []model.DatasetItem
	for _, file := range files {
		rows, header, err := readCSVFile(file)
		if err != nil {
			log.Errorf("[Loader] 读取 CSV 文件 '%s' 失败: %v", file, err)
			continue
		}

		for idx, row := range rows {
			content, ok := cell(header, row, cfg.TextColumn)
			if !ok {
				continue
			}

			metadata := make(map[string]string)
			for _, col := range cfg.MetadataColumns {
				if v, ok := cell(header, row, col); ok {
					metadata[col] = v
				}
			}

			items = append(items, model.DatasetItem{
				ID:       fmt.Sprintf("%s_%d", cfg.Name, idx),
				Dataset:  cfg.Name,
				Type:     model.TypeText,
				Content:  fmt.Sprintf("Medical transcription: %s", content),
				Snippet:  makeSnippet(content),
				Metadata: metadata,
				FilePath: file,
			})
		}
	}
	return items
}

// pubmedQARecord 兼容 PubMedQA 导出文件中大小写不一致的键名。
type pubmedQARecord struct {
	Question      string   `json:"question"`
	QuestionUpper string   `json:"QUESTION"`
	Context       []string `json:"context"`
	ContextUpper  []string `json:"CONTEXTS"`
	FinalDecision string   `json:"final_decision"`
	FinalUpper    string   `json:"FINAL_DECISION"`
}

func (r pubmedQARecord) question() string {
	if r.Question != "" {
		return r.Question
	}
	return r.QuestionUpper
}

func (r pubmedQARecord) contexts() []string {
	if len(r.Context) > 0 {
		return r.Context
	}
	return r.ContextUpper
}

func (r pubmedQARecord) answer() string {
	if r.FinalDecision != "" {
		return r.FinalDecision
	}
	return r.FinalUpper
}

// loadPubMedQA 处理 PubMedQA JSON：顶层是 pubmed_id -> 记录 的映射。
// 无法解析的记录跳过，缺少问题文本的记录跳过。
func (l *Loader) loadPubMedQA(cfg TextDatasetConfig, datasetPath string) []model.DatasetItem {
	files, err := filepath.Glob(filepath.Join(datasetPath, "*.json"))
	if err != nil {
		log.Errorf("[Loader] 枚举数据集 '%s' 的 JSON 文件失败: %v", cfg.Name, err)
		return nil
	}

	var items []model.DatasetItem
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			log.Errorf("[Loader] 读取 JSON 文件 '%s' 失败: %v", file, err)
			continue
		}

		var records map[string]json.RawMessage
		if err := json.Unmarshal(data, &records); err != nil {
			log.Errorf("[Loader] 解析 JSON 文件 '%s' 失败: %v", file, err)
			continue
		}

		for key, raw := range records {
			var rec pubmedQARecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				log.Warnf("[Loader] 跳过无法解析的 PubMedQA 记录 (key=%s): %v", key, err)
				continue
			}

			question := rec.question()
			if question == "" {
				continue
			}

			content := fmt.Sprintf("Medical Question: %s", question)
			if answer := rec.answer(); answer != "" {
				content += fmt.Sprintf(" Answer: %s", answer)
			}
			if ctxs := rec.contexts(); len(ctxs) > 0 {
				// 只取前两段上下文，避免内容过长稀释嵌入
				if len(ctxs) > 2 {
					ctxs = ctxs[:2]
				}
				content += fmt.Sprintf(" Context: %s", strings.Join(ctxs, " "))
			}

			items = append(items, model.DatasetItem{
				ID:      fmt.Sprintf("%s_%s", cfg.Name, key),
				Dataset: cfg.Name,
				Type:    model.TypeText,
				Content: content,
				Snippet: makeSnippet(question),
				Metadata: map[string]string{
					"answer":    rec.answer(),
					"pubmed_id": key,
				},
				FilePath: file,
			})
		}
	}
	return items
}
