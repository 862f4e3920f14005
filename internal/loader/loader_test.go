package loader

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"med-search-go/internal/model"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewGray(image.Rect(0, 0, 1, 1))); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
}

func TestLoadCSVDatasets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "breast-cancer", "data.csv"),
		"id,diagnosis,radius_mean,texture_mean\n"+
			"842302,M,17.99,10.38\n"+
			"842517,,13.0,20.0\n") // 文本列为空的行必须被跳过

	l := New(dir, t.TempDir())
	items := l.LoadCSVDatasets()

	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	it := items[0]
	if it.ID != "breast-cancer_0" {
		t.Errorf("ID = %s, want breast-cancer_0", it.ID)
	}
	if it.Type != model.TypeCSV {
		t.Errorf("Type = %s, want %s", it.Type, model.TypeCSV)
	}
	if !strings.Contains(it.Content, "Medical data from breast-cancer: diagnosis: M") {
		t.Errorf("unexpected content: %s", it.Content)
	}
	if !strings.Contains(it.Content, "Patient with breast mass characteristics") {
		t.Errorf("dataset specific context missing: %s", it.Content)
	}
	if it.Metadata["radius_mean"] != "17.99" {
		t.Errorf("metadata radius_mean = %q, want 17.99", it.Metadata["radius_mean"])
	}
}

func TestLoadTranscriptionsSkipsEmptyAndTruncatesSnippet(t *testing.T) {
	dir := t.TempDir()
	long := strings.Repeat("patient presents with chest pain ", 20)
	writeFile(t, filepath.Join(dir, "medical-transcriptions", "mt.csv"),
		"description,medical_specialty,sample_name,transcription\n"+
			"d1,Cardiology,S1,\""+long+"\"\n"+
			"d2,Radiology,S2,\n")

	l := New(dir, t.TempDir())
	items := l.LoadTextDatasets()

	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	it := items[0]
	if !strings.HasPrefix(it.Content, "Medical transcription: ") {
		t.Errorf("unexpected content prefix: %s", it.Content)
	}
	if !strings.HasSuffix(it.Snippet, "...") {
		t.Errorf("long snippet should be truncated with ellipsis: %q", it.Snippet)
	}
	if got := len([]rune(it.Snippet)); got != 203 {
		t.Errorf("snippet length = %d runes, want 203", got)
	}
	if it.Metadata["medical_specialty"] != "Cardiology" {
		t.Errorf("metadata medical_specialty = %q", it.Metadata["medical_specialty"])
	}
}

func TestLoadPubMedQA(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "pubmedqa", "ori.json"), `{
		"12345": {"QUESTION": "Does aspirin reduce stroke risk?", "CONTEXTS": ["c1", "c2", "c3"], "FINAL_DECISION": "yes"},
		"67890": {"question": "Is metformin first line?", "final_decision": "no"},
		"777": 42
	}`)

	l := New(dir, t.TempDir())
	items := l.LoadTextDatasets()

	if len(items) != 2 {
		t.Fatalf("expected 2 items (malformed record skipped), got %d", len(items))
	}

	byID := make(map[string]model.DatasetItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	upper, ok := byID["pubmedqa_12345"]
	if !ok {
		t.Fatal("missing item pubmedqa_12345")
	}
	if !strings.Contains(upper.Content, "Medical Question: Does aspirin reduce stroke risk?") {
		t.Errorf("unexpected content: %s", upper.Content)
	}
	if !strings.Contains(upper.Content, "Answer: yes") {
		t.Errorf("answer missing from content: %s", upper.Content)
	}
	// 上下文只取前两段
	if !strings.Contains(upper.Content, "c1 c2") || strings.Contains(upper.Content, "c3") {
		t.Errorf("context truncation wrong: %s", upper.Content)
	}
	if upper.Metadata["pubmed_id"] != "12345" {
		t.Errorf("metadata pubmed_id = %q", upper.Metadata["pubmed_id"])
	}

	lower, ok := byID["pubmedqa_67890"]
	if !ok {
		t.Fatal("missing item pubmedqa_67890")
	}
	if lower.Metadata["answer"] != "no" {
		t.Errorf("lowercase keys not handled: %v", lower.Metadata)
	}
}

func TestLoadImageDatasets(t *testing.T) {
	dir := t.TempDir()
	categoryDir := filepath.Join(dir, "brain-scans", "glioma_tumor")
	writePNG(t, filepath.Join(categoryDir, "scan1.png"))
	writeFile(t, filepath.Join(categoryDir, "fake.png"), "this is not an image")
	writeFile(t, filepath.Join(categoryDir, "notes.txt"), "ignored")

	l := New(dir, t.TempDir())
	items := l.LoadImageDatasets()

	if len(items) != 1 {
		t.Fatalf("expected 1 item (invalid image and txt skipped), got %d", len(items))
	}
	it := items[0]
	if it.ID != "brain-scans_glioma_tumor_scan1" {
		t.Errorf("ID = %s", it.ID)
	}
	if it.Type != model.TypeImage {
		t.Errorf("Type = %s, want %s", it.Type, model.TypeImage)
	}
	if !strings.Contains(it.Content, "Brain MRI scan showing glioma tumor") {
		t.Errorf("unexpected content: %s", it.Content)
	}
	if it.Metadata["category"] != "glioma_tumor" || it.Metadata["format"] != "png" {
		t.Errorf("unexpected metadata: %v", it.Metadata)
	}
}

func TestDatasetPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "stroke"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	l := New(dir, t.TempDir())

	path, ok := l.datasetPath("stroke")
	if !ok {
		t.Fatal("existing dataset dir should resolve")
	}
	if path != filepath.Join(dir, "stroke") {
		t.Errorf("path = %q, want %q", path, filepath.Join(dir, "stroke"))
	}

	if _, ok := l.datasetPath("missing"); ok {
		t.Error("missing dataset dir must not resolve")
	}
}

func TestLoadAllSkipsMissingDatasets(t *testing.T) {
	// 空目录下所有数据集都缺失，加载不报错且快照为空
	l := New(t.TempDir(), t.TempDir())
	snapshot := l.LoadAll()
	if snapshot.Total() != 0 {
		t.Errorf("expected empty snapshot, got %d items", snapshot.Total())
	}
	if snapshot.CreatedAt.IsZero() {
		t.Error("snapshot CreatedAt should be set")
	}
}

func TestSnapshotTextCorpusOrder(t *testing.T) {
	s := Snapshot{
		CSV:  []model.DatasetItem{{ID: "csv1"}, {ID: "csv2"}},
		Text: []model.DatasetItem{{ID: "txt1"}},
	}
	corpus := s.TextCorpus()
	want := []string{"csv1", "csv2", "txt1"}
	if len(corpus) != len(want) {
		t.Fatalf("corpus size = %d, want %d", len(corpus), len(want))
	}
	for i, id := range want {
		if corpus[i].ID != id {
			t.Errorf("corpus[%d] = %s, want %s", i, corpus[i].ID, id)
		}
	}
}

func TestCacheRoundTrip(t *testing.T) {
	cacheDir := t.TempDir()
	l := New(t.TempDir(), cacheDir)

	snapshot := Snapshot{
		CSV:   []model.DatasetItem{{ID: "a", Dataset: "d", Type: model.TypeCSV, Content: "x"}},
		Image: []model.DatasetItem{{ID: "b", Dataset: "d", Type: model.TypeImage, FilePath: "/p"}},
	}
	if err := l.SaveCache(snapshot); err != nil {
		t.Fatalf("SaveCache: %v", err)
	}

	loaded, ok := l.LoadCache()
	if !ok {
		t.Fatal("LoadCache returned false for a fresh cache")
	}
	if loaded.Total() != snapshot.Total() {
		t.Errorf("loaded %d items, want %d", loaded.Total(), snapshot.Total())
	}
	if loaded.CSV[0].ID != "a" || loaded.Image[0].FilePath != "/p" {
		t.Errorf("cache round trip lost data: %+v", loaded)
	}
}

func TestLoadCacheRejectsVersionMismatch(t *testing.T) {
	cacheDir := t.TempDir()
	l := New(t.TempDir(), cacheDir)

	writeFile(t, filepath.Join(cacheDir, "dataset_snapshot.json"),
		`{"version": 99, "total_items": 1, "snapshot": {"csv": [{"id": "a"}]}}`)

	if _, ok := l.LoadCache(); ok {
		t.Fatal("cache with unknown version must be ignored")
	}
}

func TestLoadCacheMissingFile(t *testing.T) {
	l := New(t.TempDir(), t.TempDir())
	if _, ok := l.LoadCache(); ok {
		t.Fatal("missing cache file should return false")
	}
}
