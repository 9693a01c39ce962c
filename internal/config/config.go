// Package config 统一配置管理
//
// 配置加载策略：
//  1. 若存在 .env，加载之（敏感信息、外部服务地址）
//  2. 其余参数从环境变量读取，缺省时回落到文档约定的默认值
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

func lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Config 进程级配置，加载一次，之后只读
type Config struct {
	Port int

	SessionTTL         time.Duration
	MaxConcurrentTasks int
	CloneTimeout       time.Duration
	AgentTimeout       time.Duration
	TestTimeout        time.Duration
	MaxArchiveBytes    int64
	MaxOutputBytes     int
	WorkspaceBase      string

	MinValidatorStake    float64
	ValidatorRefreshSecs time.Duration
	ConsensusThreshold   float64
	ConsensusTTL         time.Duration
	MaxPendingConsensus  int

	MetagraphURL string

	AuditDatabaseURL string // postgres DSN; empty -> sqlite fallback under WorkspaceBase

	ArtifactsEndpoint  string
	ArtifactsAccessKey string
	ArtifactsSecretKey string
	ArtifactsBucket    string
	ArtifactsUseSSL    bool

	HistoryMongoURI string
	HistoryMongoDB  string

	ValidatorCacheRedisAddr string
}

// Load 从环境加载配置
func Load() (*Config, error) {
	for _, p := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	cfg := &Config{
		Port:                 envInt("PORT", 8080),
		SessionTTL:            envSeconds("SESSION_TTL_SECS", 7200),
		MaxConcurrentTasks:    envInt("MAX_CONCURRENT_TASKS", 8),
		CloneTimeout:          envSeconds("CLONE_TIMEOUT_SECS", 180),
		AgentTimeout:          envSeconds("AGENT_TIMEOUT_SECS", 600),
		TestTimeout:           envSeconds("TEST_TIMEOUT_SECS", 300),
		MaxArchiveBytes:       envInt64("MAX_ARCHIVE_BYTES", 524288000),
		MaxOutputBytes:        envInt("MAX_OUTPUT_BYTES", 1048576),
		WorkspaceBase:         envString("WORKSPACE_BASE", "/tmp/sessions"),
		MinValidatorStake:     envFloat("MIN_VALIDATOR_STAKE", 10000),
		ValidatorRefreshSecs:  envSeconds("VALIDATOR_REFRESH_SECS", 300),
		ConsensusThreshold:    envFloat("CONSENSUS_THRESHOLD", 0.5),
		ConsensusTTL:          envSeconds("CONSENSUS_TTL_SECS", 60),
		MaxPendingConsensus:   envInt("MAX_PENDING_CONSENSUS", 100),
		MetagraphURL:          envString("METAGRAPH_URL", ""),
		AuditDatabaseURL:      envString("AUDIT_DATABASE_URL", ""),
		ArtifactsEndpoint:     envString("ARTIFACTS_ENDPOINT", ""),
		ArtifactsAccessKey:    envString("ARTIFACTS_ACCESS_KEY", ""),
		ArtifactsSecretKey:    envString("ARTIFACTS_SECRET_KEY", ""),
		ArtifactsBucket:       envString("ARTIFACTS_BUCKET", "term-executor"),
		ArtifactsUseSSL:       envBool("ARTIFACTS_USE_SSL", true),
		HistoryMongoURI:       envString("HISTORY_MONGO_URI", ""),
		HistoryMongoDB:        envString("HISTORY_MONGO_DB", "term_executor"),
		ValidatorCacheRedisAddr: envString("VALIDATOR_CACHE_REDIS_ADDR", ""),
	}

	if cfg.ConsensusThreshold <= 0 || cfg.ConsensusThreshold > 1 {
		return nil, fmt.Errorf("CONSENSUS_THRESHOLD must lie in (0, 1], got %v", cfg.ConsensusThreshold)
	}

	return cfg, nil
}

// AuditDBPath 为 AuditDatabaseURL 未设置时 sqlite 回落文件的路径
func (c *Config) AuditDBPath() string {
	return filepath.Join(c.WorkspaceBase, "audit.db")
}

// Banner 打印启动横幅：有效配置摘要与已启用的可选周边集成
func (c *Config) Banner(log *slog.Logger) {
	log.Info("term-executor starting",
		slog.Int("port", c.Port),
		slog.Duration("session_ttl", c.SessionTTL),
		slog.Int("max_concurrent_tasks", c.MaxConcurrentTasks),
		slog.String("workspace_base", c.WorkspaceBase),
		slog.Float64("consensus_threshold", c.ConsensusThreshold),
		slog.Bool("audit_postgres", c.AuditDatabaseURL != ""),
		slog.Bool("artifacts_enabled", c.ArtifactsEndpoint != ""),
		slog.Bool("history_enabled", c.HistoryMongoURI != ""),
		slog.Bool("validator_cache_enabled", c.ValidatorCacheRedisAddr != ""),
	)
}

func envString(key, def string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v, ok := lookup(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v, ok := lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envSeconds(key string, defSecs int) time.Duration {
	return time.Duration(envInt(key, defSecs)) * time.Second
}
