// Package main 是搜索服务的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"med-search-go/internal/config"
	"med-search-go/internal/engine"
	"med-search-go/internal/handler"
	"med-search-go/internal/loader"
	"med-search-go/internal/middleware"
	"med-search-go/internal/model"
	"med-search-go/internal/pipeline"
	"med-search-go/internal/repository"
	"med-search-go/internal/service"
	"med-search-go/pkg/database"
	"med-search-go/pkg/embedding"
	"med-search-go/pkg/kafka"
	"med-search-go/pkg/log"
	"med-search-go/pkg/storage"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、MongoDB 与对象存储
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	database.InitMongo(cfg.Mongo)
	storage.InitMinIO(cfg.MinIO)
	kafka.InitProducer(cfg.Kafka)

	// 建表（幂等）
	if err := database.DB.AutoMigrate(&model.BuildRun{}); err != nil {
		log.Fatalf("build_runs 表迁移失败: %v", err)
	}

	// 4. 初始化 Repository
	buildRunRepo := repository.NewBuildRunRepository(database.DB)
	docRepo := repository.NewSearchDocumentRepository(database.MongoCollection(cfg.Mongo))

	// 5. 初始化加载器、编码客户端与搜索引擎 (依赖注入)
	datasetLoader := loader.New(cfg.Datasets.Dir, cfg.Datasets.CacheDir)
	textEncoder := embedding.NewClient(cfg.Embedding)
	clipClient := embedding.NewCLIPClient(cfg.CLIP)
	searchEngine := engine.New(textEncoder, clipClient, cfg.Embedding, cfg.CLIP, cfg.Datasets.CacheDir)

	// 5.1 恢复索引：本地产物缺失时尝试从 MinIO 下载共享产物
	restoreArtifacts(searchEngine, cfg)

	searchService := service.NewSearchService(searchEngine, buildRunRepo, docRepo, textEncoder, database.RDB, cfg.Search)

	// 6. 初始化索引重建管道 (Processor)
	processor := pipeline.NewProcessor(
		datasetLoader,
		searchEngine,
		docRepo,
		buildRunRepo,
		cfg.MinIO,
	)

	// 7. 启动后台 Kafka 消费者
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	searchHandler := handler.NewSearchHandler(searchService)
	apiV1 := r.Group("/api/v1")
	{
		search := apiV1.Group("/search")
		{
			search.GET("", searchHandler.Search)
			search.GET("/stats", searchHandler.Stats)
		}

		idx := apiV1.Group("/index")
		{
			idx.POST("/rebuild", searchHandler.Rebuild)
			idx.GET("/runs", searchHandler.ListRuns)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// Kafka 消费者是一个循环，会在程序退出时自然结束。
	log.Info("服务已优雅关闭")
}

// restoreArtifacts 启动时恢复索引产物：本地缺失时先尝试从 MinIO 拉取，
// 两者都没有则以空索引启动，等待首次重建任务。
func restoreArtifacts(searchEngine *engine.Engine, cfg config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	for _, path := range searchEngine.ArtifactPaths() {
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if storage.MinioClient == nil {
			continue
		}
		if err := storage.DownloadArtifact(ctx, cfg.MinIO.BucketName, path); err != nil {
			log.Warnf("从 MinIO 拉取索引产物失败 (%s): %v", path, err)
		}
	}

	if err := searchEngine.LoadArtifacts(); err != nil {
		log.Errorf("加载索引产物失败: %v", err)
		return
	}
	if !searchEngine.Ready() {
		log.Warnf("没有可用的索引产物，服务将以空索引启动，请触发一次重建")
	}
}
