// Package model 定义了系统核心的数据结构。
package model

// 数据模态常量，与数据集目录结构一一对应。
const (
	TypeCSV   = "csv"
	TypeText  = "text"
	TypeImage = "image"
)

// DatasetItem 是一条可被索引的数据记录，由各模态的加载器产出，创建后不可变。
// 它与向量索引中的向量按插入位置一一对应。
type DatasetItem struct {
	ID       string            `json:"id"`
	Dataset  string            `json:"dataset"`
	Type     string            `json:"type"` // csv / text / image
	Content  string            `json:"content"`
	Snippet  string            `json:"snippet"`
	Metadata map[string]string `json:"metadata"`
	FilePath string            `json:"file_path"`
}
