package index

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"med-search-go/internal/model"
)

// ArtifactVersion 是索引产物文件的当前 schema 版本。
const ArtifactVersion = 1

// artifactFile 是索引产物的磁盘格式：向量与条目映射捆绑在同一个带版本号的
// 文件中，从根本上消除"索引文件与映射文件各自更新"导致的错位风险。
type artifactFile struct {
	Version      int                 `json:"version"`
	Modality     string              `json:"modality"`
	ModelVersion string              `json:"model_version"`
	Dimension    int                 `json:"dimension"`
	Count        int                 `json:"count"`
	CreatedAt    time.Time           `json:"created_at"`
	Vectors      string              `json:"vectors"` // base64(小端 float32 平铺)
	Items        []model.DatasetItem `json:"items"`
}

// SaveArtifact 将索引序列化为单个产物文件。写入采用临时文件 + rename，
// 避免进程中断留下半个产物。
func SaveArtifact(f *Flat, path, modality, modelVersion string) error {
	vectors, items := f.Snapshot()

	buf := new(bytes.Buffer)
	for _, v := range vectors {
		for _, val := range v {
			if err := binary.Write(buf, binary.LittleEndian, val); err != nil {
				return fmt.Errorf("编码向量失败: %w", err)
			}
		}
	}

	artifact := artifactFile{
		Version:      ArtifactVersion,
		Modality:     modality,
		ModelVersion: modelVersion,
		Dimension:    f.Dim(),
		Count:        len(items),
		CreatedAt:    time.Now().UTC(),
		Vectors:      base64.StdEncoding.EncodeToString(buf.Bytes()),
		Items:        items,
	}

	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("序列化索引产物失败: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("创建产物目录失败: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("写入索引产物失败: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadArtifact 从产物文件恢复索引。版本、维度、数量三者任一不一致时整体拒绝，
// 保证加载后的索引与条目映射仍然严格对齐。
func LoadArtifact(path string) (*Flat, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("读取索引产物失败: %w", err)
	}

	var artifact artifactFile
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, "", fmt.Errorf("解析索引产物失败: %w", err)
	}
	if artifact.Version != ArtifactVersion {
		return nil, "", fmt.Errorf("不支持的索引产物版本: %d", artifact.Version)
	}
	if artifact.Count != len(artifact.Items) {
		return nil, "", fmt.Errorf("索引产物条目数不一致: count=%d, items=%d", artifact.Count, len(artifact.Items))
	}

	raw, err := base64.StdEncoding.DecodeString(artifact.Vectors)
	if err != nil {
		return nil, "", fmt.Errorf("解码向量数据失败: %w", err)
	}
	if len(raw) != artifact.Count*artifact.Dimension*4 {
		return nil, "", fmt.Errorf("向量数据长度不一致: got %d bytes, want %d", len(raw), artifact.Count*artifact.Dimension*4)
	}

	f := NewFlat(artifact.Dimension)
	reader := bytes.NewReader(raw)
	vectors := make([][]float32, artifact.Count)
	for i := 0; i < artifact.Count; i++ {
		v := make([]float32, artifact.Dimension)
		if err := binary.Read(reader, binary.LittleEndian, v); err != nil {
			return nil, "", fmt.Errorf("解码第 %d 个向量失败: %w", i, err)
		}
		vectors[i] = v
	}
	// 产物中的向量已经归一化，Add 再归一化一次是幂等的
	if err := f.Add(vectors, artifact.Items); err != nil {
		return nil, "", err
	}
	return f, artifact.ModelVersion, nil
}
