package config

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Redis     RedisConfig
	Exam      ExamConfig      `mapstructure:"exam"`
	Storage   StorageConfig
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"` // 强制执行数据库迁移
	MigrateOnly  bool `mapstructure:"-"` // 仅迁移模式（迁移后退出）

	// 热加载后的考试参数。请求协程与后台协程并发读取，
	// 必须走原子指针，不能直接改 Exam 字段
	liveExam atomic.Pointer[ExamConfig]
}

// LiveExam 返回当前生效的考试参数，任意协程调用都安全。
// 从未热加载过时退回启动时解析的 Exam。
func (c *Config) LiveExam() ExamConfig {
	if e := c.liveExam.Load(); e != nil {
		return *e
	}
	return c.Exam
}

// PublishExam 原子发布一组新的考试参数，配置热加载的唯一写入口
func (c *Config) PublishExam(e ExamConfig) {
	e.ApplyDefaults()
	c.liveExam.Store(&e)
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

func (r *RateLimitConfig) ApplyDefaults() {
	if r.MaxRequests <= 0 {
		r.MaxRequests = 100000
	}
	if r.WindowMinutes <= 0 {
		r.WindowMinutes = 1
	}
}

// Window 限流窗口时长
func (r *RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowMinutes) * time.Minute
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

// ExamConfig 考试核心参数，支持热加载
type ExamConfig struct {
	MaxViolations            int `mapstructure:"max_violations"`              // 违规自动交卷阈值
	ViolationTTLFloorSeconds int `mapstructure:"violation_ttl_floor_seconds"` // 违规记录 TTL 下限
	SchedulerPollSeconds     int `mapstructure:"scheduler_poll_seconds"`      // 到期调度器轮询间隔
	SchedulerMaxRetries      int `mapstructure:"scheduler_max_retries"`       // 触发失败重试上限
	SchedulerBackoffSeconds  int `mapstructure:"scheduler_backoff_seconds"`   // 重试退避基数
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("PROCTORA")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// Exam
	viper.BindEnv("exam.max_violations", "EXAM_MAX_VIOLATIONS")

	// Storage
	viper.BindEnv("storage.type", "STORAGE_TYPE")
	viper.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour
	cfg.Exam.ApplyDefaults()
	cfg.RateLimit.ApplyDefaults()

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

func (e *ExamConfig) ApplyDefaults() {
	if e.MaxViolations <= 0 {
		e.MaxViolations = 5
	}
	if e.ViolationTTLFloorSeconds <= 0 {
		e.ViolationTTLFloorSeconds = 60
	}
	if e.SchedulerPollSeconds <= 0 {
		e.SchedulerPollSeconds = 5
	}
	if e.SchedulerMaxRetries <= 0 {
		e.SchedulerMaxRetries = 5
	}
	if e.SchedulerBackoffSeconds <= 0 {
		e.SchedulerBackoffSeconds = 10
	}
}
