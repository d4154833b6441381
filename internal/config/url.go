package config

import (
	"fmt"
	"regexp"
	"strings"
)

// buildStorageURL 根据驱动类型构建存储连接字符串
func buildStorageURL(s StorageConfig) string {
	switch s.Driver {
	case "sqlite":
		dbPath := s.SQL.Path
		if dbPath == "" {
			dbPath = "/var/lib/match-admin/match-admin.db"
		}
		return fmt.Sprintf("file:%s?cache=shared&mode=rwc", dbPath)
	case "postgres":
		db := s.SQL
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			db.User, db.Password, db.Host, db.Port, db.Name, db.SSLMode)
	case "memory":
		return ""
	default:
		return s.Mongo.URI
	}
}

// Addr 返回 host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// maskPassword 隐藏密码
func maskPassword(url string) string {
	re := regexp.MustCompile(`(://[^:]*:)([^@]+)(@)`)
	return re.ReplaceAllString(url, "${1}***${3}")
}

// parseEnv 解析环境字符串
func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}
