// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Chunker       ChunkerConfig       `mapstructure:"chunker"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Refine        RefineConfig        `mapstructure:"refine"`
	Seed          SeedConfig          `mapstructure:"seed"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// StatusPollInterval 是文档状态 WebSocket 的轮询间隔。
	StatusPollInterval time.Duration `mapstructure:"status_poll_interval"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 校验相关的配置。令牌由外部身份服务签发，这里只做校验。
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
// Dimensions 是全系统唯一的向量维度，写入和检索时都会校验。
type EmbeddingConfig struct {
	APIKey     string  `mapstructure:"api_key"`
	BaseURL    string  `mapstructure:"base_url"`
	Model      string  `mapstructure:"model"`
	Dimensions int     `mapstructure:"dimensions"`
	RateLimit  float64 `mapstructure:"rate_limit"` // 每秒请求数，0 表示不限流
	Burst      int     `mapstructure:"burst"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
	Prompt     LLMPromptConfig     `mapstructure:"prompt"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置系统提示与上下文包裹格式（可选）。
type LLMPromptConfig struct {
	Rules        string `mapstructure:"rules"`
	RefStart     string `mapstructure:"ref_start"`
	RefEnd       string `mapstructure:"ref_end"`
	NoResultText string `mapstructure:"no_result_text"`
}

// ChunkerConfig 配置文档切块的长度边界（按字符计）。
type ChunkerConfig struct {
	SmallDocumentThreshold int `mapstructure:"small_document_threshold"`
	TargetSize             int `mapstructure:"target_size"`
	MinSize                int `mapstructure:"min_size"`
	MaxSize                int `mapstructure:"max_size"`
}

// RetrievalConfig 配置上下文检索。
type RetrievalConfig struct {
	Limit               int     `mapstructure:"limit"`
	MinScore            float64 `mapstructure:"min_score"`
	CandidateMultiplier int     `mapstructure:"candidate_multiplier"`
	TargetedLimit       int     `mapstructure:"targeted_limit"`
}

// RefineConfig 配置字段精修。
type RefineConfig struct {
	ExcerptLength int           `mapstructure:"excerpt_length"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	KeepPrevious  int           `mapstructure:"keep_previous"`
}

// SeedConfig 配置启动时的文档预导入。Dir 为空或 UserID 为 0 时不导入。
type SeedConfig struct {
	Dir    string `mapstructure:"dir"`
	UserID uint   `mapstructure:"user_id"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.status_poll_interval", "1s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.topic", "document-ingest")
	v.SetDefault("kafka.group_id", "formfill-go-consumer")
	v.SetDefault("elasticsearch.index_name", "context_chunks")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.rate_limit", 5)
	v.SetDefault("embedding.burst", 1)
	v.SetDefault("llm.generation.temperature", 0.2)
	v.SetDefault("chunker.small_document_threshold", 1500)
	v.SetDefault("chunker.target_size", 1000)
	v.SetDefault("chunker.min_size", 200)
	v.SetDefault("chunker.max_size", 1500)
	v.SetDefault("retrieval.limit", 10)
	v.SetDefault("retrieval.min_score", 0.3)
	v.SetDefault("retrieval.candidate_multiplier", 3)
	v.SetDefault("retrieval.targeted_limit", 3)
	v.SetDefault("refine.excerpt_length", 2000)
	v.SetDefault("refine.cache_ttl", "10m")
	v.SetDefault("refine.keep_previous", 3)
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
// 环境变量以 FORMFILL_ 为前缀覆盖文件中的同名键，例如 FORMFILL_LLM_API_KEY。
func Init(configPath string) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("FORMFILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := v.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}

// Defaults 返回只包含默认值的配置，供测试和无配置文件的场景使用。
func Defaults() Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	_ = v.Unmarshal(&c)
	return c
}
