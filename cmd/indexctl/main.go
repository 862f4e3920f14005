// indexctl 是离线索引管理工具：不依赖 HTTP 服务即可构建索引、
// 执行一次查询或查看索引统计。
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"med-search-go/internal/config"
	"med-search-go/internal/engine"
	"med-search-go/internal/loader"
	"med-search-go/pkg/embedding"
	"med-search-go/pkg/log"

	"github.com/spf13/cobra"
)

var (
	configPath   string
	topK         int
	searchTypes  string
	forceRebuild bool
)

var rootCmd = &cobra.Command{
	Use:   "indexctl",
	Short: "医疗多模态搜索索引的离线管理工具",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.Init(configPath)
		cfg := config.Conf
		log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	},
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "扫描数据集、生成嵌入并构建索引产物",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Conf
		datasetLoader := loader.New(cfg.Datasets.Dir, cfg.Datasets.CacheDir)
		eng := newEngine(cfg)

		var snapshot loader.Snapshot
		if !forceRebuild {
			if cached, ok := datasetLoader.LoadCache(); ok {
				snapshot = cached
			}
		}
		if snapshot.Total() == 0 {
			snapshot = datasetLoader.LoadAll()
			if err := datasetLoader.SaveCache(snapshot); err != nil {
				log.Warnf("保存数据缓存失败: %v", err)
			}
		}
		if snapshot.Total() == 0 {
			return fmt.Errorf("没有加载到任何数据集条目, 请检查 datasets.dir 配置")
		}

		result, err := eng.Build(context.Background(), snapshot)
		if err != nil {
			return fmt.Errorf("构建索引失败: %w", err)
		}
		if err := eng.SaveArtifacts(); err != nil {
			return fmt.Errorf("保存索引产物失败: %w", err)
		}

		fmt.Printf("索引构建完成: text=%d, image=%d, skipped_images=%d\n",
			result.TextItems, result.ImageItems, result.SkippedImages)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "加载索引产物并执行一次查询, 结果以 JSON 输出",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Conf
		eng := newEngine(cfg)
		if err := eng.LoadArtifacts(); err != nil {
			return err
		}
		if !eng.Ready() {
			return fmt.Errorf("没有可用的索引产物, 请先执行 indexctl build")
		}

		var types []string
		if searchTypes != "" {
			types = strings.Split(searchTypes, ",")
		}
		results, err := eng.Search(context.Background(), args[0], topK, types)
		if err != nil {
			return fmt.Errorf("查询失败: %w", err)
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(results)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "输出当前索引产物的统计信息",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Conf
		eng := newEngine(cfg)
		if err := eng.LoadArtifacts(); err != nil {
			return err
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(eng.Stats())
	},
}

func newEngine(cfg config.Config) *engine.Engine {
	textEncoder := embedding.NewClient(cfg.Embedding)
	clipClient := embedding.NewCLIPClient(cfg.CLIP)
	return engine.New(textEncoder, clipClient, cfg.Embedding, cfg.CLIP, cfg.Datasets.CacheDir)
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "配置文件路径")
	buildCmd.Flags().BoolVar(&forceRebuild, "force", false, "忽略数据缓存, 重新扫描数据集")
	searchCmd.Flags().IntVarP(&topK, "top-k", "k", 5, "返回的结果数")
	searchCmd.Flags().StringVar(&searchTypes, "types", "", "检索的模态, 逗号分隔 (csv,text,image)")

	rootCmd.AddCommand(buildCmd, searchCmd, statsCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
