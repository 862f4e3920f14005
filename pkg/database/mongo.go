package database

import (
	"context"
	"time"

	"med-search-go/internal/config"
	"med-search-go/pkg/log"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoClient 是全局的 MongoDB 客户端实例，URI 为空时保持 nil（镜像功能禁用）。
var MongoClient *mongo.Client

// InitMongo 初始化 MongoDB 连接并做一次 Ping 校验。
// 文档镜像是可选能力，配置为空时直接跳过，不视为错误。
func InitMongo(cfg config.MongoConfig) {
	if cfg.URI == "" {
		log.Info("未配置 MongoDB URI，文档镜像功能已禁用")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		log.Fatal("failed to connect to mongodb", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		log.Fatal("failed to ping mongodb", err)
	}

	MongoClient = client
	log.Info("MongoDB client connected successfully")
}

// MongoCollection 返回配置指定的镜像集合，Mongo 未启用时返回 nil。
func MongoCollection(cfg config.MongoConfig) *mongo.Collection {
	if MongoClient == nil {
		return nil
	}
	return MongoClient.Database(cfg.Database).Collection(cfg.Collection)
}
