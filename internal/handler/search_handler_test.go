package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"med-search-go/internal/model"

	"github.com/gin-gonic/gin"
)

// stubSearchService 记录 RequestRebuild 的入参，其余操作返回零值。
type stubSearchService struct {
	rebuildForce      bool
	rebuildModalities []string
	rebuildCalls      int
}

func (s *stubSearchService) Search(ctx context.Context, query string, topK int, searchTypes []string) ([]model.SearchResult, error) {
	return []model.SearchResult{}, nil
}

func (s *stubSearchService) Stats(ctx context.Context) model.Stats {
	return model.Stats{}
}

func (s *stubSearchService) RequestRebuild(ctx context.Context, force bool, modalities []string, requestedBy string) (*model.BuildRun, error) {
	s.rebuildCalls++
	s.rebuildForce = force
	s.rebuildModalities = modalities
	return &model.BuildRun{RunID: "run-1", Status: model.BuildRunPending}, nil
}

func (s *stubSearchService) ListRuns(ctx context.Context, limit int) ([]*model.BuildRun, error) {
	return nil, nil
}

func newRebuildRouter(svc *stubSearchService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/v1/index/rebuild", NewSearchHandler(svc).Rebuild)
	return r
}

func TestRebuildAcceptsEmptyBody(t *testing.T) {
	svc := &stubSearchService{}
	r := newRebuildRouter(svc)

	// 空请求体等价于默认重建
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/index/rebuild", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d, body: %s", w.Code, http.StatusAccepted, w.Body.String())
	}
	if svc.rebuildCalls != 1 {
		t.Errorf("RequestRebuild called %d times, want 1", svc.rebuildCalls)
	}
	if svc.rebuildForce {
		t.Error("empty body should not force a rebuild")
	}
}

func TestRebuildParsesBody(t *testing.T) {
	svc := &stubSearchService{}
	r := newRebuildRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/index/rebuild",
		strings.NewReader(`{"force": true, "modalities": ["csv"]}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if !svc.rebuildForce {
		t.Error("force flag lost")
	}
	if len(svc.rebuildModalities) != 1 || svc.rebuildModalities[0] != model.TypeCSV {
		t.Errorf("modalities = %v, want [csv]", svc.rebuildModalities)
	}
}

func TestRebuildRejectsMalformedBody(t *testing.T) {
	svc := &stubSearchService{}
	r := newRebuildRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/index/rebuild",
		strings.NewReader(`{"force": "not-a-bool"`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if svc.rebuildCalls != 0 {
		t.Errorf("RequestRebuild must not be called on a malformed body, got %d calls", svc.rebuildCalls)
	}
}
