package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/RecoveryAshes/F95Crawler/internal/config"
	"github.com/RecoveryAshes/F95Crawler/internal/core"
	"github.com/RecoveryAshes/F95Crawler/internal/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string

	// HTTP头部参数
	headers        []string // 自定义HTTP请求头
	validateConfig bool     // 验证配置文件

	// 运行参数
	pages      int
	maxThreads int
	batchSize  int
	infinite   bool
	dryRun     bool

	// init 子命令
	forceInit bool
)

// appConfig 由PersistentPreRunE加载
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "f95crawler",
	Short: "F95Zone游戏帖子抓取并发布到WordPress",
	Long: `F95Crawler - 抓取F95Zone游戏分类列表,提取游戏信息并发布到WordPress

功能:
  • 按页抓取分类列表,跳过已发布的帖子
  • 提取标题、版本、开发者、标签、截图和下载链接
  • 批量发布到WordPress插件接口
  • 已发布集合保存在JSON文件、SQLite或MySQL中

示例:
  # 生成配置模板
  f95crawler init

  # 抓取前2页,最多5个帖子
  f95crawler --pages 2 --max-threads 5

  # 只输出提取结果,不发布
  f95crawler --dry-run --pages 1 > games.ndjson

  # 验证配置文件
  f95crawler --validate-config

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env 不存在时忽略
		_ = godotenv.Load()

		cfg, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		if err := ValidateFlags(pages, maxThreads, batchSize); err != nil {
			return err
		}
		cfg.MergeCLIFlags(
			changedInt(cmd, "pages", pages),
			changedInt(cmd, "max-threads", maxThreads),
			changedInt(cmd, "batch-size", batchSize),
			logLevel,
			verbose,
		)

		if err := utils.InitLogger(cfg.LogConfig()); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		if verbose {
			utils.Info("详细模式已启用")
		}

		appConfig = cfg
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if validateConfig {
			return runValidate(appConfig)
		}

		// Ctrl+C 在当前帖子处理完后停止, 已发布集合照常保存
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runCrawl(ctx, appConfig)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("F95Crawler %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "生成配置文件模板",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if path == "" {
			path = config.DefaultConfigFile
		}
		if err := config.WriteTemplate(path, forceInit); err != nil {
			return err
		}
		fmt.Printf("✅ 已生成配置文件: %s\n", path)
		fmt.Println("请填写 wordpress_api_url、wordpress_api_key 和 cookies 后运行 f95crawler")
		return nil
	},
}

// changedInt 未在命令行指定的参数返回-1, 保留配置文件中的值
func changedInt(cmd *cobra.Command, name string, value int) int {
	if !cmd.Flags().Changed(name) {
		return -1
	}
	return value
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", config.DefaultConfigFile, "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")

	// HTTP头部参数
	rootCmd.Flags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.Flags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件并显示有效头部")

	// 运行参数
	rootCmd.Flags().IntVarP(&pages, "pages", "p", 0, "最多抓取的列表页数 (0为不限)")
	rootCmd.Flags().IntVarP(&maxThreads, "max-threads", "t", 0, "最多抓取的帖子数 (0为不限)")
	rootCmd.Flags().IntVarP(&batchSize, "batch-size", "b", 10, "每批发布的记录数 (1-500)")
	rootCmd.Flags().BoolVar(&infinite, "infinite", false, "不限页数,直到没有新帖子")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "只输出提取结果(NDJSON),不发布也不记录")

	initCmd.Flags().BoolVar(&forceInit, "force", false, "覆盖已存在的配置文件")

	// 添加子命令
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
