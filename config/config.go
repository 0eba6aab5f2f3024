package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Storage  StorageConfig  `mapstructure:"storage"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Router   RouterConfig   `mapstructure:"router"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Mode           string `mapstructure:"mode"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	Path         string `mapstructure:"path"` // sqlite 文件路径
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type QueueConfig struct {
	JobQueue     string        `mapstructure:"job_queue"`
	MaxWorkers   int           `mapstructure:"max_workers"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"` // 停止时等待进行中任务的上限
}

type StorageConfig struct {
	Provider string      `mapstructure:"provider"` // local, oss, gcs
	Local    LocalConfig `mapstructure:"local"`
	OSS      OSSConfig   `mapstructure:"oss"`
	GCS      GCSConfig   `mapstructure:"gcs"`
}

type LocalConfig struct {
	Dir string `mapstructure:"dir"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	Prefix          string `mapstructure:"prefix"`
}

type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type OCRConfig struct {
	Providers     []string `mapstructure:"providers"` // 按顺序尝试: plain, docx, pdftotext, mistral, tesseract, vision
	PdfToTextPath string   `mapstructure:"pdftotext_path"`
	PdftoppmPath  string   `mapstructure:"pdftoppm_path"`
	TesseractPath string   `mapstructure:"tesseract_path"`
	TesseractLang string   `mapstructure:"tesseract_lang"`
	DPI           int      `mapstructure:"dpi"`
	MistralAPIKey string   `mapstructure:"mistral_api_key"`
	MistralModel  string   `mapstructure:"mistral_model"`
	VisionModel   string   `mapstructure:"vision_model"`
	VisionAPIKey  string   `mapstructure:"vision_api_key"`
	VisionBaseURL string   `mapstructure:"vision_base_url"`
	MaxBytes      int64    `mapstructure:"max_bytes"` // 外部 OCR 服务的大小上限
}

type LLMConfig struct {
	Provider      string        `mapstructure:"provider"` // anthropic, openai, vertex
	Model         string        `mapstructure:"model"`
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	Temperature   float64       `mapstructure:"temperature"`
	MaxTokens     int64         `mapstructure:"max_tokens"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	VertexProject string        `mapstructure:"vertex_project"`
	VertexRegion  string        `mapstructure:"vertex_region"`
}

type RouterConfig struct {
	MaxQuickBytes int64         `mapstructure:"max_quick_bytes"`
	TargetedBytes int64         `mapstructure:"targeted_bytes"`
	MaxQuickPages int           `mapstructure:"max_quick_pages"`
	BytesPerPage  int64         `mapstructure:"bytes_per_page"`
	QuickTimeout  time.Duration `mapstructure:"quick_timeout"`
}

type JobsConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	DefaultPriority int           `mapstructure:"default_priority"`
	StaleAfter      time.Duration `mapstructure:"stale_after"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type AnalysisConfig struct {
	MaxClauses      int           `mapstructure:"max_clauses"`
	OCRTimeout      time.Duration `mapstructure:"ocr_timeout"`
	ReuseAssessment bool          `mapstructure:"reuse_assessment"`
	ReuseTTL        time.Duration `mapstructure:"reuse_ttl"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

// setDefaults 所有可调参数的默认值，配置文件为空时也能启动
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.max_upload_bytes", 50<<20)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "lease_jobs.db")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 20)

	v.SetDefault("queue.job_queue", "lease_processing_jobs")
	v.SetDefault("queue.max_workers", 4)
	v.SetDefault("queue.poll_interval", 5*time.Second)
	v.SetDefault("queue.drain_timeout", 2*time.Minute)

	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.local.dir", "/tmp/lease_uploads")

	v.SetDefault("ocr.providers", []string{"plain", "docx", "pdftotext", "mistral", "tesseract", "vision"})
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.pdftoppm_path", "pdftoppm")
	v.SetDefault("ocr.tesseract_path", "tesseract")
	v.SetDefault("ocr.tesseract_lang", "eng")
	v.SetDefault("ocr.dpi", 300)
	v.SetDefault("ocr.vision_model", "gpt-4o")
	v.SetDefault("ocr.vision_base_url", "https://api.openai.com/v1")
	v.SetDefault("ocr.max_bytes", 20<<20)

	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 1200)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.rate_per_second", 2.0)
	v.SetDefault("llm.retry_attempts", 3)
	v.SetDefault("llm.vertex_region", "europe-west2")

	v.SetDefault("router.max_quick_bytes", 5<<20)
	v.SetDefault("router.targeted_bytes", 2<<20)
	v.SetDefault("router.max_quick_pages", 10)
	v.SetDefault("router.bytes_per_page", 100<<10)
	v.SetDefault("router.quick_timeout", 90*time.Second)

	v.SetDefault("jobs.max_retries", 3)
	v.SetDefault("jobs.default_priority", 5)
	v.SetDefault("jobs.stale_after", 15*time.Minute)
	v.SetDefault("jobs.cleanup_interval", 5*time.Minute)

	v.SetDefault("analysis.max_clauses", 10)
	v.SetDefault("analysis.ocr_timeout", 60*time.Second)
	v.SetDefault("analysis.reuse_assessment", false)
	v.SetDefault("analysis.reuse_ttl", time.Hour)

	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "X-User-ID"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认值
		if _, statErr := os.Stat(configPath); !os.IsNotExist(statErr) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default 返回仅包含默认值的配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}
