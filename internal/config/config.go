package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load 加载配置
//  1. 加载 .env.{env}（敏感信息）
//  2. 加载 common.yaml 和 {env}.yaml
//  3. 环境变量覆盖，填充默认值
func Load() (*Config, error) {
	env := parseEnv(getEnv("APP_ENV", "dev"))
	loadEnvFiles(env)

	yc, loadedFrom, err := loadYAMLConfig(env, effectiveConfigPaths())
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(yc)
	yc.validate()

	cfg := &Config{
		Env:            env,
		YAMLConfig:     *yc,
		StorageURL:     buildStorageURL(yc.Storage),
		ConfigFilePath: loadedFrom,
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaults 代码硬编码默认值
func defaults() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		Storage: StorageConfig{
			Driver: "mongodb",
			Mongo:  MongoConfig{URI: "mongodb://localhost:27017", Database: "match_admin"},
			SQL:    SQLConfig{Host: "localhost", Port: 5432, User: "match", Name: "match_admin", SSLMode: "disable"},
		},
		Registry: RegistryConfig{
			Driver: "static",
			Redis:  RedisConfig{Host: "localhost", Port: 6379},
			Etcd:   EtcdConfig{Endpoints: []string{"localhost:2379"}, Prefix: "/match", DialTimeout: 5 * time.Second},
		},
		Archive: ArchiveConfig{Driver: "none", MinIO: MinIOConfig{Endpoint: "localhost:9000", Bucket: "match-pgns"}},
	}
}

// loadYAMLConfig 加载顺序：默认值 → common.yaml → {env}.yaml
// 文件不存在时跳过，解析失败时返回错误
func loadYAMLConfig(env Environment, paths []string) (*YAMLConfig, string, error) {
	cfg := defaults()
	loadedFrom := ""

	for _, name := range []string{"common.yaml", fmt.Sprintf("%s.yaml", env)} {
		for _, base := range paths {
			path := filepath.Join(base, name)
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, "", fmt.Errorf("config: parse %s: %w", path, err)
			}
			loadedFrom = path
			break
		}
	}
	return cfg, loadedFrom, nil
}

// applyEnvOverrides 环境变量覆盖 YAML，凭据只从环境变量读取
func applyEnvOverrides(c *YAMLConfig) {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Storage.Driver = getEnv("STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.Mongo.URI = getEnv("MONGO_URI", c.Storage.Mongo.URI)
	c.Storage.SQL.Password = os.Getenv("DB_PASSWORD")
	c.Registry.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Archive.MinIO.AccessKey = os.Getenv("MINIO_ACCESS_KEY")
	c.Archive.MinIO.SecretKey = os.Getenv("MINIO_SECRET_KEY")
}

// validate 填充各章节默认值，零值视为未配置
func (c *YAMLConfig) validate() {
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if c.Storage.Driver == "" {
		c.Storage.Driver = "mongodb"
	}
	if c.Registry.Driver == "" {
		c.Registry.Driver = "static"
	}
	if c.Archive.Driver == "" {
		c.Archive.Driver = "none"
	}

	s := &c.Scheduler
	if s.GamesPerCore == 0 {
		s.GamesPerCore = 250
	}
	if s.MinChunk == 0 {
		s.MinChunk = 2
	}
	if s.MaxChunk == 0 {
		s.MaxChunk = 2000
	}
	if s.MaxTasksPerWorker == 0 {
		s.MaxTasksPerWorker = 1
	}
	if s.StaleTimeout == 0 {
		s.StaleTimeout = 30 * time.Minute
	}
	if s.ScavengeInterval == 0 {
		s.ScavengeInterval = time.Minute
	}

	b := &c.Buffer
	if b.FlushInterval == 0 {
		b.FlushInterval = time.Second
	}
	if b.MaxPendingMutations == 0 {
		b.MaxPendingMutations = 100
	}
	if b.RetryBase == 0 {
		b.RetryBase = 50 * time.Millisecond
	}
	if b.RetryMax == 0 {
		b.RetryMax = 5 * time.Second
	}
	if b.MaxRetries == 0 {
		b.MaxRetries = 5
	}
}

// check 拒绝无法启动的组合
func (c *Config) check() error {
	switch c.Storage.Driver {
	case "mongodb", "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Registry.Driver {
	case "static", "redis", "etcd":
	default:
		return fmt.Errorf("config: unknown registry driver %q", c.Registry.Driver)
	}
	switch c.Archive.Driver {
	case "none", "minio":
	default:
		return fmt.Errorf("config: unknown archive driver %q", c.Archive.Driver)
	}
	if c.Scheduler.MinChunk > c.Scheduler.MaxChunk {
		return fmt.Errorf("config: scheduler.min_chunk %d exceeds max_chunk %d", c.Scheduler.MinChunk, c.Scheduler.MaxChunk)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsTest 是否为测试环境
func (c *Config) IsTest() bool {
	return c.Env == EnvTest
}

// String 返回配置摘要（隐藏密码）
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Storage: %s %s, Registry: %s, Archive: %s}",
		c.Env, c.Storage.Driver, maskPassword(c.StorageURL), c.Registry.Driver, c.Archive.Driver)
}
