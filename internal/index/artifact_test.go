package index

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"med-search-go/internal/model"
)

func buildTestIndex(t *testing.T) *Flat {
	t.Helper()
	idx := NewFlat(3)
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.5, 0.5, 0},
	}
	items := []model.DatasetItem{
		{ID: "a", Dataset: "d1", Type: model.TypeText, Content: "alpha", Metadata: map[string]string{"k": "v"}},
		{ID: "b", Dataset: "d1", Type: model.TypeText, Content: "beta"},
		{ID: "c", Dataset: "d2", Type: model.TypeCSV, Content: "gamma"},
	}
	if err := idx.Add(vectors, items); err != nil {
		t.Fatalf("Add: %v", err)
	}
	return idx
}

func TestArtifactRoundTrip(t *testing.T) {
	idx := buildTestIndex(t)
	path := filepath.Join(t.TempDir(), "text_index.artifact")

	if err := SaveArtifact(idx, path, model.TypeText, "model-v1"); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}

	loaded, modelVersion, err := LoadArtifact(path)
	if err != nil {
		t.Fatalf("LoadArtifact: %v", err)
	}
	if modelVersion != "model-v1" {
		t.Errorf("model version = %q, want model-v1", modelVersion)
	}
	if loaded.Len() != idx.Len() {
		t.Fatalf("loaded %d entries, want %d", loaded.Len(), idx.Len())
	}
	if loaded.Dim() != idx.Dim() {
		t.Fatalf("loaded dim %d, want %d", loaded.Dim(), idx.Dim())
	}

	// 加载后的索引对同一查询应给出相同的排序与条目
	query := []float32{1, 0.1, 0}
	want, err := idx.Search(query, 3)
	if err != nil {
		t.Fatalf("Search original: %v", err)
	}
	got, err := loaded.Search(query, 3)
	if err != nil {
		t.Fatalf("Search loaded: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("result count mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Item.ID != want[i].Item.ID {
			t.Errorf("result[%d] = %s, want %s", i, got[i].Item.ID, want[i].Item.ID)
		}
	}
	if got[0].Item.Metadata["k"] != "v" {
		t.Errorf("metadata lost in round trip: %v", got[0].Item.Metadata)
	}
}

func TestLoadArtifactRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.artifact")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, _, err := LoadArtifact(path); err == nil {
		t.Fatal("expected error for corrupt artifact")
	}
}

func TestLoadArtifactRejectsUnknownVersion(t *testing.T) {
	idx := buildTestIndex(t)
	path := filepath.Join(t.TempDir(), "v.artifact")
	if err := SaveArtifact(idx, path, model.TypeText, "m"); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	raw["version"] = json.RawMessage("99")
	doctored, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := os.WriteFile(path, doctored, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, _, err := LoadArtifact(path); err == nil || !strings.Contains(err.Error(), "版本") {
		t.Fatalf("expected version error, got %v", err)
	}
}

func TestLoadArtifactRejectsCountMismatch(t *testing.T) {
	idx := buildTestIndex(t)
	path := filepath.Join(t.TempDir(), "c.artifact")
	if err := SaveArtifact(idx, path, model.TypeText, "m"); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	// 条目数与向量数据不再对齐，加载必须整体拒绝
	raw["count"] = json.RawMessage("2")
	doctored, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := os.WriteFile(path, doctored, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, _, err := LoadArtifact(path); err == nil {
		t.Fatal("expected error for count mismatch")
	}
}

func TestSaveArtifactLeavesNoTempFile(t *testing.T) {
	idx := buildTestIndex(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "idx.artifact")
	if err := SaveArtifact(idx, path, model.TypeText, "m"); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file should be renamed away, stat err = %v", err)
	}
}
