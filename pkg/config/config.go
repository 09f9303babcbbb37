package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Zilliz     ZillizConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	LLM        LLMConfig
	Search     SearchConfig
	Guardrails GuardrailsConfig
	Session    SessionConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type ZillizConfig struct {
	Endpoint       string
	APIKey         string
	CollectionName string
	VectorDim      int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host       string
	Port       int
	Password   string
	DB         int
	TTLSeconds int
}

type LLMConfig struct {
	Model          string
	APIKey         string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
	EmbeddingModel string
	EmbeddingDim   int
	Moderation     bool
}

type SearchConfig struct {
	Enabled    bool
	SerpAPIKey string
	MaxResults int
	TimeoutSec int
}

type GuardrailsConfig struct {
	MaxInputLength     int
	MaxResponseLength  int
	KeywordThreshold   int
	RequestsPerMinute  int
	RequestsPerHour    int
	RequestsPerDay     int
	BurstWindowMinutes int
	BurstThreshold     int
}

type SessionConfig struct {
	MaxTurns       int
	IdleTTLMinutes int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/aven-agent")

	viper.SetEnvPrefix("AVEN_AGENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("zilliz.endpoint", "localhost:19530")
	viper.SetDefault("zilliz.collectionName", "aven_kb")
	viper.SetDefault("zilliz.vectorDim", 1536)

	viper.SetDefault("sqlite.path", "./data/avenagent.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttlSeconds", 3600)

	viper.SetDefault("llm.model", "gpt-4")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.timeoutSec", 60)
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-large")
	viper.SetDefault("llm.embeddingDim", 1536)
	viper.SetDefault("llm.moderation", true)

	viper.SetDefault("search.enabled", true)
	viper.SetDefault("search.maxResults", 3)
	viper.SetDefault("search.timeoutSec", 10)

	viper.SetDefault("guardrails.maxInputLength", 2000)
	viper.SetDefault("guardrails.maxResponseLength", 5000)
	viper.SetDefault("guardrails.keywordThreshold", 3)
	viper.SetDefault("guardrails.requestsPerMinute", 30)
	viper.SetDefault("guardrails.requestsPerHour", 300)
	viper.SetDefault("guardrails.requestsPerDay", 1000)
	viper.SetDefault("guardrails.burstWindowMinutes", 5)
	viper.SetDefault("guardrails.burstThreshold", 10)

	viper.SetDefault("session.maxTurns", 50)
	viper.SetDefault("session.idleTTLMinutes", 120)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
