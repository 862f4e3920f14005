package model

// SearchResult 是单条搜索结果，RelevanceScore 为该模态内的原始余弦得分，
// FusedScore 为跨模态合并时使用的 RRF 得分（单模态查询时与排名序一致）。
type SearchResult struct {
	ID             string            `json:"id"`
	Dataset        string            `json:"dataset"`
	Type           string            `json:"type"`
	Content        string            `json:"content"`
	Snippet        string            `json:"snippet"`
	Metadata       map[string]string `json:"metadata"`
	FilePath       string            `json:"file_path"`
	RelevanceScore float32           `json:"relevance_score"`
	FusedScore     float64           `json:"fused_score"`
	SearchType     string            `json:"search_type"` // text / image
}

// DatasetTypeStats 记录某个数据集内按模态划分的条目数。
type DatasetTypeStats struct {
	Total int            `json:"total"`
	Types map[string]int `json:"types"`
}

// Stats 是已索引数据的整体统计信息。
type Stats struct {
	TotalItems int                          `json:"total_items"`
	TextItems  int                          `json:"text_items"`
	ImageItems int                          `json:"image_items"`
	Datasets   map[string]*DatasetTypeStats `json:"datasets"`
}
