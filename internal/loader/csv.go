package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"med-search-go/internal/model"
	"med-search-go/pkg/log"
)

// LoadCSVDatasets 加载所有表格型医疗数据集。
// 每一行被拼装成一段可检索的英文描述文本，并保留关键列作为元数据。
func (l *Loader) LoadCSVDatasets() []model.DatasetItem {
	log.Info("[Loader] 开始加载 CSV 数据集")
	var items []model.DatasetItem

	for _, cfg := range l.csvDatasets {
		datasetPath, ok := l.datasetPath(cfg.Name)
		if !ok {
			continue
		}

		files, err := filepath.Glob(filepath.Join(datasetPath, "*.csv"))
		if err != nil {
			log.Errorf("[Loader] 枚举数据集 '%s' 的 CSV 文件失败: %v", cfg.Name, err)
			continue
		}

		count := 0
		for _, file := range files {
			log.Infof("[Loader] 正在处理 %s", file)
			rows, header, err := readCSVFile(file)
			if err != nil {
				log.Errorf("[Loader] 读取 CSV 文件 '%s' 失败: %v", file, err)
				continue
			}

			for idx, row := range rows {
				item, ok := buildCSVItem(cfg, file, idx, header, row)
				if !ok {
					continue
				}
				items = append(items, item)
				count++
			}
		}
		log.Infof("[Loader] 数据集 '%s' 加载了 %d 条记录", cfg.Name, count)
	}

	log.Infof("[Loader] CSV 记录总数: %d", len(items))
	return items
}

// buildCSVItem 将一行表格数据组装为 DatasetItem，文本列全部缺失时跳过该行。
func buildCSVItem(cfg CSVDatasetConfig, file string, idx int, header map[string]int, row []string) (model.DatasetItem, bool) {
	textParts := make([]string, 0, len(cfg.TextColumns))
	for _, col := range cfg.TextColumns {
		if v, ok := cell(header, row, col); ok {
			textParts = append(textParts, fmt.Sprintf("%s: %s", col, v))
		}
	}
	if len(textParts) == 0 {
		return model.DatasetItem{}, false
	}

	metadata := make(map[string]string)
	metaParts := make([]string, 0, len(cfg.MetadataColumns))
	for _, col := range cfg.MetadataColumns {
		if v, ok := cell(header, row, col); ok {
			metadata[col] = v
			metaParts = append(metaParts, fmt.Sprintf("%s=%s", col, v))
		}
	}

	joined := strings.Join(textParts, "; ")
	content := fmt.Sprintf("Medical data from %s: %s", cfg.Name, joined)
	// 按数据集补充英文语境，提升嵌入的检索效果（对齐原始实现的模板）
	switch cfg.Name {
	case "breast-cancer":
		content += fmt.Sprintf(" Patient with breast mass characteristics: %s", strings.Join(metaParts, ", "))
	case "diabetes":
		content += fmt.Sprintf(" Diabetes risk factors: %s", strings.Join(metaParts, ", "))
	case "stroke":
		content += fmt.Sprintf(" Stroke risk assessment: %s", strings.Join(metaParts, ", "))
	}

	return model.DatasetItem{
		ID:       fmt.Sprintf("%s_%d", cfg.Name, idx),
		Dataset:  cfg.Name,
		Type:     model.TypeCSV,
		Content:  content,
		Snippet:  makeSnippet(joined),
		Metadata: metadata,
		FilePath: file,
	}, true
}

// readCSVFile 读取 CSV 文件，返回数据行与"列名 -> 下标"的表头映射。
// 字段数不一致的坏行跳过而不是中断整个文件。
func readCSVFile(path string) ([][]string, map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	headerRow, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("读取表头失败: %w", err)
	}
	header := make(map[string]int, len(headerRow))
	for i, name := range headerRow {
		header[strings.TrimSpace(name)] = i
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warnf("[Loader] 跳过无法解析的 CSV 行 (%s): %v", path, err)
			continue
		}
		rows = append(rows, row)
	}
	return rows, header, nil
}

// cell 按列名取出一行中的值，列不存在或值为空时返回 false。
func cell(header map[string]int, row []string, col string) (string, bool) {
	idx, ok := header[col]
	if !ok || idx >= len(row) {
		return "", false
	}
	v := strings.TrimSpace(row[idx])
	if v == "" {
		return "", false
	}
	return v, true
}
