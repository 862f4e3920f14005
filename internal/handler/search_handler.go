// Package handler 存放 Gin 的 HTTP 处理器。
package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"med-search-go/internal/engine"
	"med-search-go/internal/service"
	"med-search-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 结构体定义了搜索相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
	}
}

// Search 是处理统一检索请求的 Gin 处理函数。
// types 参数为逗号分隔的模态列表 (csv,text,image)，缺省为全部。
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("query")
	log.Infof("[SearchHandler] 收到检索请求, query: %s", query)

	topKStr := c.DefaultQuery("topK", "0")
	topK, err := strconv.Atoi(topKStr)
	if err != nil || topK < 0 {
		topK = 0
	}

	var searchTypes []string
	if typesStr := c.Query("types"); typesStr != "" {
		for _, t := range strings.Split(typesStr, ",") {
			if t = strings.TrimSpace(t); t != "" {
				searchTypes = append(searchTypes, t)
			}
		}
	}

	results, err := h.searchService.Search(c.Request.Context(), query, topK, searchTypes)
	if err != nil {
		if errors.Is(err, engine.ErrNotReady) {
			log.Warnf("[SearchHandler] 索引尚未就绪")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "索引尚未就绪"})
			return
		}
		log.Errorf("[SearchHandler] 检索服务返回错误, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "搜索失败"})
		return
	}

	log.Infof("[SearchHandler] 检索成功, query: '%s', 返回 %d 条结果", query, len(results))
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": results, "message": "success"})
}

// Stats 返回当前已索引数据的统计信息。
func (h *SearchHandler) Stats(c *gin.Context) {
	stats := h.searchService.Stats(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": stats, "message": "success"})
}

// rebuildRequest 是重建接口的请求体。
type rebuildRequest struct {
	Force      bool     `json:"force"`
	Modalities []string `json:"modalities"`
}

// Rebuild 投递一个异步索引重建任务。
func (h *SearchHandler) Rebuild(c *gin.Context) {
	var req rebuildRequest
	// 空请求体等价于默认重建，其他解析错误才拒绝
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Warnf("[SearchHandler] 解析重建请求失败: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求体"})
		return
	}

	run, err := h.searchService.RequestRebuild(c.Request.Context(), req.Force, req.Modalities, c.ClientIP())
	if err != nil {
		log.Errorf("[SearchHandler] 投递重建任务失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "投递重建任务失败"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"code": 202, "data": run, "message": "rebuild scheduled"})
}

// ListRuns 返回最近的索引构建记录。
func (h *SearchHandler) ListRuns(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "20")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 20
	}

	runs, err := h.searchService.ListRuns(c.Request.Context(), limit)
	if err != nil {
		log.Errorf("[SearchHandler] 查询构建记录失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询构建记录失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": runs, "message": "success"})
}
