package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/RecoveryAshes/F95Crawler/internal/config"
	"github.com/RecoveryAshes/F95Crawler/internal/models"
	"github.com/RecoveryAshes/F95Crawler/internal/utils"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀 (F95_WORDPRESS_API_KEY 等)
const EnvPrefix = "F95"

// Config 应用程序配置,加载后不再修改
type Config struct {
	WordPressAPIURL      string            `mapstructure:"wordpress_api_url"`
	WordPressAPIKey      string            `mapstructure:"wordpress_api_key"`
	DelayBetweenRequests float64           `mapstructure:"delay_between_requests"`
	Cookies              []models.Cookie   `mapstructure:"cookies"`
	Headers              map[string]string `mapstructure:"headers"`
	RandomUserAgent      bool              `mapstructure:"random_user_agent"`
	RespectRobotsTxt     bool              `mapstructure:"respect_robots_txt"`

	BaseURL         string   `mapstructure:"base_url"`
	CategoryURL     string   `mapstructure:"category_url"`
	IgnoreThreadIDs []string `mapstructure:"ignore_thread_ids"`

	FetchRetries   int     `mapstructure:"fetch_retries"`
	RetryBackoff   float64 `mapstructure:"retry_backoff"`
	RequestTimeout float64 `mapstructure:"request_timeout"`

	SyncExisting     bool `mapstructure:"sync_existing"`
	ExistingPageSize int  `mapstructure:"existing_page_size"`
	UseBatchEndpoint bool `mapstructure:"use_batch_endpoint"`
	StopWhenCaughtUp bool `mapstructure:"stop_when_caught_up"`

	// 运行上限,可被命令行参数覆盖
	Pages      int `mapstructure:"pages"`
	MaxThreads int `mapstructure:"max_threads"`
	BatchSize  int `mapstructure:"batch_size"`

	State      StateConfig      `mapstructure:"state"`
	ImageProxy ImageProxyConfig `mapstructure:"image_proxy"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	ReportDir  string           `mapstructure:"report_dir"`
}

// StateConfig 已发布集合的存储配置
type StateConfig struct {
	Driver string `mapstructure:"driver"` // json, sqlite, mysql, none
	Path   string `mapstructure:"path"`   // json文件路径
	DSN    string `mapstructure:"dsn"`    // sqlite文件或mysql DSN
}

// ImageProxyConfig 图片代理配置
type ImageProxyConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Hosts   []string `mapstructure:"hosts"`
}

// NATSConfig 发布通知配置,URL为空时关闭
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// LoadConfig 加载JSON配置文件
// 文件缺失或无法解析时返回 ConfigError
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = config.DefaultConfigFile
	}
	if err := config.CheckFile(configPath); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, &models.ConfigError{FilePath: configPath, Cause: err}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &models.ConfigError{
			FilePath: configPath,
			Cause:    fmt.Errorf("配置绑定失败: %w", err),
		}
	}

	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}

	if err := cfg.Validate(); err != nil {
		return nil, &models.ConfigError{FilePath: configPath, Cause: err}
	}

	return &cfg, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 必需项也注册默认值,否则环境变量覆盖不生效
	v.SetDefault("wordpress_api_url", "")
	v.SetDefault("wordpress_api_key", "")
	v.SetDefault("delay_between_requests", 2.0)
	v.SetDefault("random_user_agent", false)
	v.SetDefault("respect_robots_txt", false)

	v.SetDefault("base_url", "https://f95zone.to")
	v.SetDefault("category_url", "https://f95zone.to/forums/games.2/")
	v.SetDefault("ignore_thread_ids", []string{"137266", "50885", "21333"})

	v.SetDefault("fetch_retries", 2)
	v.SetDefault("retry_backoff", 1.0)
	v.SetDefault("request_timeout", 30.0)

	v.SetDefault("sync_existing", true)
	v.SetDefault("existing_page_size", 2000)
	v.SetDefault("use_batch_endpoint", false)
	v.SetDefault("stop_when_caught_up", false)

	v.SetDefault("pages", 0)
	v.SetDefault("max_threads", 0)
	v.SetDefault("batch_size", models.DefaultBatchSize)

	v.SetDefault("state.driver", "json")
	v.SetDefault("state.path", "state/published_threads.json")
	v.SetDefault("state.dsn", "")

	v.SetDefault("image_proxy.enabled", true)
	v.SetDefault("image_proxy.hosts", []string{"attachments.f95zone.to"})

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "f95crawler.published")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("report_dir", "reports")
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.WordPressAPIURL == "" {
		return fmt.Errorf("缺少 wordpress_api_url")
	}
	if err := utils.ValidateURL(c.WordPressAPIURL); err != nil {
		return fmt.Errorf("wordpress_api_url 无效: %w", err)
	}
	if strings.TrimSpace(c.WordPressAPIKey) == "" {
		return fmt.Errorf("缺少 wordpress_api_key (也可通过 %s_WORDPRESS_API_KEY 设置)", EnvPrefix)
	}
	if err := utils.ValidateURL(c.CategoryURL); err != nil {
		return fmt.Errorf("category_url 无效: %w", err)
	}
	if c.DelayBetweenRequests < 0 {
		return fmt.Errorf("delay_between_requests 不能为负数")
	}
	if c.FetchRetries < 0 || c.FetchRetries > 10 {
		return fmt.Errorf("fetch_retries 必须在0-10之间")
	}
	if c.ExistingPageSize < 1 {
		return fmt.Errorf("existing_page_size 必须大于0")
	}

	switch c.State.Driver {
	case "json":
		if c.State.Path == "" {
			return fmt.Errorf("state.driver=json 需要 state.path")
		}
	case "sqlite", "mysql":
		if c.State.DSN == "" {
			return fmt.Errorf("state.driver=%s 需要 state.dsn", c.State.Driver)
		}
	case "none":
	default:
		return fmt.Errorf("未知的 state.driver: %s", c.State.Driver)
	}

	hv := utils.NewHeaderValidator()
	if err := hv.ValidateCookies(c.Cookies); err != nil {
		return err
	}
	for name, value := range c.Headers {
		if err := hv.ValidateHeader(name, value); err != nil {
			return err
		}
	}

	limits := c.Limits(false)
	return limits.Validate()
}

// MergeCLIFlags 合并命令行参数到配置 (负数表示未指定)
func (c *Config) MergeCLIFlags(pages, maxThreads, batchSize int, logLevel string, verbose bool) {
	if pages >= 0 {
		c.Pages = pages
	}
	if maxThreads >= 0 {
		c.MaxThreads = maxThreads
	}
	if batchSize > 0 {
		c.BatchSize = batchSize
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if verbose {
		c.Logging.Level = "debug"
	}
}

// Limits 运行上限
func (c *Config) Limits(infinite bool) models.RunLimits {
	return models.RunLimits{
		Pages:      c.Pages,
		MaxThreads: c.MaxThreads,
		BatchSize:  c.BatchSize,
		Infinite:   infinite,
	}
}

// Delay 请求间隔
func (c *Config) Delay() time.Duration {
	return seconds(c.DelayBetweenRequests)
}

// Timeout 单次请求超时
func (c *Config) Timeout() time.Duration {
	return seconds(c.RequestTimeout)
}

// Backoff 重试初始退避时间
func (c *Config) Backoff() time.Duration {
	return seconds(c.RetryBackoff)
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// APIRoot 插件REST根路径 (去掉 /create-post)
func (c *Config) APIRoot() string {
	u := strings.TrimRight(c.WordPressAPIURL, "/")
	return strings.TrimSuffix(u, "/create-post")
}

// ExistingThreadsURL 已发布帖子ID接口
func (c *Config) ExistingThreadsURL() string {
	return c.APIRoot() + "/existing-threads"
}

// BatchURL 批量发布接口
func (c *Config) BatchURL() string {
	return c.APIRoot() + "/create-batch"
}

// WordPressRoot 站点根地址 (/wp-json 之前的部分)
func (c *Config) WordPressRoot() string {
	if i := strings.Index(c.WordPressAPIURL, "/wp-json"); i >= 0 {
		return c.WordPressAPIURL[:i]
	}
	return strings.TrimRight(c.WordPressAPIURL, "/")
}

// IgnoreSet 忽略的帖子ID集合
func (c *Config) IgnoreSet() map[string]bool {
	set := make(map[string]bool, len(c.IgnoreThreadIDs))
	for _, id := range c.IgnoreThreadIDs {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = true
		}
	}
	return set
}

// LogConfig 转换为日志配置
func (c *Config) LogConfig() utils.LogConfig {
	lc := utils.DefaultLogConfig()
	lc.Level = c.Logging.Level
	lc.Dir = c.Logging.LogDir
	lc.MaxSize = c.Logging.Rotation.MaxSize
	lc.MaxBackups = c.Logging.Rotation.MaxBackups
	lc.MaxAge = c.Logging.Rotation.MaxAge
	lc.Compress = c.Logging.Rotation.Compress
	return lc
}
