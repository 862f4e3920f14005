// Package loader 负责扫描各模态的医疗数据集目录并产出可索引的数据条目。
package loader

// CSVDatasetConfig 描述一个表格型数据集的列映射。
type CSVDatasetConfig struct {
	Name            string
	TextColumns     []string
	MetadataColumns []string
}

// TextDatasetConfig 描述一个自由文本数据集的来源格式与列映射。
type TextDatasetConfig struct {
	Name            string
	Format          string // csv / json
	TextColumn      string
	MetadataColumns []string
}

// ImageDatasetConfig 描述一个图像数据集的分类目录与可接受的图片格式。
type ImageDatasetConfig struct {
	Name       string
	Categories []string
	Formats    []string
}

// 数据集格式常量。
const (
	formatCSV  = "csv"
	formatJSON = "json"
)

// defaultCSVDatasets 返回内置的表格数据集配置。
func defaultCSVDatasets() []CSVDatasetConfig {
	return []CSVDatasetConfig{
		{
			Name:            "breast-cancer",
			TextColumns:     []string{"diagnosis"},
			MetadataColumns: []string{"id", "radius_mean", "texture_mean", "perimeter_mean", "area_mean"},
		},
		{
			Name:            "diabetes",
			TextColumns:     []string{"Outcome"},
			MetadataColumns: []string{"Pregnancies", "Glucose", "BloodPressure", "BMI", "Age"},
		},
		{
			Name:            "stroke",
			TextColumns:     []string{"stroke"},
			MetadataColumns: []string{"age", "hypertension", "heart_disease", "work_type", "smoking_status"},
		},
	}
}

// defaultTextDatasets 返回内置的文本数据集配置。
func defaultTextDatasets() []TextDatasetConfig {
	return []TextDatasetConfig{
		{
			Name:            "medical-transcriptions",
			Format:          formatCSV,
			TextColumn:      "transcription",
			MetadataColumns: []string{"medical_specialty", "sample_name", "description"},
		},
		{
			Name:   "pubmedqa",
			Format: formatJSON,
		},
	}
}

// defaultImageDatasets 返回内置的图像数据集配置。
func defaultImageDatasets() []ImageDatasetConfig {
	return []ImageDatasetConfig{
		{
			Name:       "brain-scans",
			Categories: []string{"glioma_tumor", "meningioma_tumor", "no_tumor", "pituitary_tumor"},
			Formats:    []string{".jpg", ".jpeg", ".png", ".bmp"},
		},
		{
			Name:       "covid-xray",
			Categories: []string{"NORMAL", "PNEUMONIA", "COVID"},
			Formats:    []string{".jpg", ".jpeg", ".png"},
		},
		{
			Name:       "ecg-heartbeat",
			Categories: []string{"normal", "abnormal"},
			Formats:    []string{".png", ".jpg"},
		},
	}
}
