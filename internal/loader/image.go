package loader

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"med-search-go/internal/model"
	"med-search-go/pkg/log"

	// 注册图像解码器，DecodeConfig 用于在入库前验证图片可解码
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
)

// LoadImageDatasets 加载所有图像医疗数据集。
// 每个数据集按分类子目录组织；分类目录缺失时退回数据集根目录。
// 无法解码的图片在加载阶段即被跳过。
func (l *Loader) LoadImageDatasets() []model.DatasetItem {
	log.Info("[Loader] 开始加载图像数据集")
	var items []model.DatasetItem

	for _, cfg := range l.imageDatasets {
		datasetPath, ok := l.datasetPath(cfg.Name)
		if !ok {
			continue
		}

		count := 0
		for _, category := range cfg.Categories {
			categoryPath := filepath.Join(datasetPath, category)
			if info, err := os.Stat(categoryPath); err != nil || !info.IsDir() {
				// 分类目录不存在时直接扫数据集根目录
				categoryPath = datasetPath
			}

			entries, err := os.ReadDir(categoryPath)
			if err != nil {
				log.Errorf("[Loader] 读取目录 '%s' 失败: %v", categoryPath, err)
				continue
			}

			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}
				ext := strings.ToLower(filepath.Ext(entry.Name()))
				if !containsString(cfg.Formats, ext) {
					continue
				}

				filePath := filepath.Join(categoryPath, entry.Name())
				if !verifyImage(filePath) {
					continue
				}

				info, err := entry.Info()
				if err != nil {
					log.Warnf("[Loader] 获取文件信息失败 '%s': %v", filePath, err)
					continue
				}

				items = append(items, buildImageItem(cfg.Name, category, filePath, entry.Name(), ext, info.Size()))
				count++
			}
		}
		log.Infof("[Loader] 数据集 '%s' 加载了 %d 张图片", cfg.Name, count)
	}

	log.Infof("[Loader] 图片总数: %d", len(items))
	return items
}

// buildImageItem 为一张图片组装带英文语境描述的 DatasetItem。
func buildImageItem(dataset, category, filePath, fileName, ext string, size int64) model.DatasetItem {
	stem := strings.TrimSuffix(fileName, ext)
	content := fmt.Sprintf("Medical image from %s: %s - %s", dataset, category, fileName)
	switch {
	case dataset == "brain-scans":
		content += fmt.Sprintf(" Brain MRI scan showing %s", strings.ReplaceAll(category, "_", " "))
	case dataset == "covid-xray":
		content += fmt.Sprintf(" Chest X-ray image classified as %s", category)
	case strings.Contains(strings.ToLower(dataset), "xray"):
		content += " X-ray medical imaging"
	}

	return model.DatasetItem{
		ID:      fmt.Sprintf("%s_%s_%s", dataset, category, stem),
		Dataset: dataset,
		Type:    model.TypeImage,
		Content: content,
		Snippet: fmt.Sprintf("%s - %s", category, fileName),
		Metadata: map[string]string{
			"category": category,
			"filename": fileName,
			"format":   strings.TrimPrefix(ext, "."),
			"size":     strconv.FormatInt(size, 10),
		},
		FilePath: filePath,
	}
}

// verifyImage 尝试解析图片头部，确认文件确实是可解码的图像。
func verifyImage(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		log.Warnf("[Loader] 无法打开图片 '%s': %v", path, err)
		return false
	}
	defer f.Close()

	if _, _, err := image.DecodeConfig(f); err != nil {
		log.Warnf("[Loader] 无效图片 '%s': %v", path, err)
		return false
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
