// Package config 统一配置管理
//
// 配置加载优先级（高→低）：
//  1. 环境变量（通过 .env 文件或 shell/systemd 注入）
//  2. YAML 配置文件（common.yaml → {env}.yaml）
//  3. 代码硬编码默认值
//
// 凭据单一数据源：
//
//	密码/密钥只存在 .env 文件或环境变量中（YAML 中不存储任何密码）。
//
// 环境：
//   - 开发: APP_ENV=dev → configs/dev.yaml + .env.dev
//   - 测试: APP_ENV=test → configs/test.yaml + .env.test
//   - 生产: APP_ENV=prod → /etc/match-admin/prod.yaml
package config

import "time"

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Storage   StorageConfig   `yaml:"storage"`
	Registry  RegistryConfig  `yaml:"registry"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Buffer    BufferConfig    `yaml:"buffer"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig 日志配置，LOG_LEVEL/LOG_FORMAT 环境变量优先
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StorageConfig Run 文档存储
type StorageConfig struct {
	Driver string      `yaml:"driver"` // "mongodb"（默认）, "postgres", "sqlite", "memory"
	Mongo  MongoConfig `yaml:"mongo"`
	SQL    SQLConfig   `yaml:"sql"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"` // MONGO_URI 环境变量优先
	Database string `yaml:"database"`
}

type SQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"` // 只从 DB_PASSWORD 环境变量读取
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	Path     string `yaml:"path"` // SQLite 文件路径
}

// RegistryConfig Worker 封禁名单
type RegistryConfig struct {
	Driver  string      `yaml:"driver"` // "static"（默认）, "redis", "etcd"
	Blocked []string    `yaml:"blocked"`
	Redis   RedisConfig `yaml:"redis"`
	Etcd    EtcdConfig  `yaml:"etcd"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"` // 只从 REDIS_PASSWORD 环境变量读取
}

type EtcdConfig struct {
	Endpoints   []string      `yaml:"endpoints"`
	Prefix      string        `yaml:"prefix"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// ArchiveConfig PGN 归档
type ArchiveConfig struct {
	Driver string      `yaml:"driver"` // "none"（默认）, "minio"
	MinIO  MinIOConfig `yaml:"minio"`
}

// MinIOConfig MinIO 对象存储配置
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"` // 例如 localhost:9000
	AccessKey string `yaml:"-"`        // 只从 MINIO_ACCESS_KEY 环境变量读取
	SecretKey string `yaml:"-"`        // 只从 MINIO_SECRET_KEY 环境变量读取
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
}

// SchedulerConfig 调度器配置
type SchedulerConfig struct {
	RequireApproval   bool          `yaml:"require_approval"`
	GamesPerCore      int           `yaml:"games_per_core"`
	MinChunk          int           `yaml:"min_chunk"`
	MaxChunk          int           `yaml:"max_chunk"`
	MaxTasksPerWorker int           `yaml:"max_tasks_per_worker"`
	StaleTimeout      time.Duration `yaml:"stale_timeout"`
	ScavengeInterval  time.Duration `yaml:"scavenge_interval"`
	StrategyChain     []string      `yaml:"strategy_chain"` // 为空时使用 priority → affinity → load_balance → fifo
}

// BufferConfig 写缓冲配置
type BufferConfig struct {
	FlushInterval       time.Duration `yaml:"flush_interval"`
	MaxPendingMutations int           `yaml:"max_pending_mutations"`
	RetryBase           time.Duration `yaml:"retry_base"`
	RetryMax            time.Duration `yaml:"retry_max"`
	MaxRetries          int           `yaml:"max_retries"`
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env Environment

	// 各章节（已填充默认值）
	YAMLConfig

	StorageURL     string // 按 Storage.Driver 解析出的连接串
	ConfigFilePath string // 实际加载的配置文件路径
}
