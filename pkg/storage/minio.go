// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"med-search-go/internal/config"
	"med-search-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error

	// 1. 初始化 MinIO 客户端
	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	log.Info("MinIO 客户端初始化成功")

	// 2. 检查存储桶 (Bucket) 是否存在，如果不存在则创建
	ctx := context.Background()
	bucketName := cfg.BucketName
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}

	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
		err = MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", bucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", bucketName)
	}
}

// UploadArtifact 将本地索引产物文件上传到 MinIO，对象名固定为 artifacts/<文件名>。
// 索引产物在多实例间共享：构建节点上传，查询节点启动时按需下载。
func UploadArtifact(ctx context.Context, bucketName, localPath string) error {
	objectName := artifactObjectName(localPath)
	info, err := MinioClient.FPutObject(ctx, bucketName, objectName, localPath, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("上传索引产物 '%s' 失败: %w", objectName, err)
	}
	log.Infof("索引产物已上传到 MinIO, object: %s, size: %d", objectName, info.Size)
	return nil
}

// DownloadArtifact 从 MinIO 下载索引产物到本地路径。对象不存在时返回错误，由调用方决定是否降级。
func DownloadArtifact(ctx context.Context, bucketName, localPath string) error {
	objectName := artifactObjectName(localPath)
	if err := os.MkdirAll(filepath.Dir(localPath), os.ModePerm); err != nil {
		return fmt.Errorf("创建本地缓存目录失败: %w", err)
	}
	if err := MinioClient.FGetObject(ctx, bucketName, objectName, localPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("下载索引产物 '%s' 失败: %w", objectName, err)
	}
	log.Infof("索引产物已从 MinIO 下载, object: %s -> %s", objectName, localPath)
	return nil
}

// artifactObjectName 由本地文件名推导对象名，保证上传与下载的命名一致。
func artifactObjectName(localPath string) string {
	return "artifacts/" + filepath.Base(localPath)
}
