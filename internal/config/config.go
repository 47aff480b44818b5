// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
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
	Queue         QueueConfig         `mapstructure:"queue"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Storage       StorageConfig       `mapstructure:"storage"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Chunking      ChunkingConfig      `mapstructure:"chunking"`
	Summarizer    SummarizerConfig    `mapstructure:"summarizer"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Retry         RetryConfig         `mapstructure:"retry"`
	VectorIndex   VectorIndexConfig   `mapstructure:"vector_index"`
	Processing    ProcessingConfig    `mapstructure:"processing"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// QueueConfig 选择摄入任务队列：kafka 或进程内的 local。
type QueueConfig struct {
	Driver  string `mapstructure:"driver"`
	Workers int    `mapstructure:"workers"`
}

type KafkaConfig struct {
	Brokers     string `mapstructure:"brokers"`
	Topic       string `mapstructure:"topic"`
	GroupID     string `mapstructure:"group_id"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ElasticsearchConfig 用作向量索引的持久化后端。
type ElasticsearchConfig struct {
	Addresses    string `mapstructure:"addresses"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	PassageIndex string `mapstructure:"passage_index"`
	SummaryIndex string `mapstructure:"summary_index"`
}

// StorageConfig 选择文档存储：minio 或 memory。
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。Provider 为 openai 或 gemini。
type EmbeddingConfig struct {
	Provider    string `mapstructure:"provider"`
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url"`
	Model       string `mapstructure:"model"`
	Dimensions  int    `mapstructure:"dimensions"`
	Concurrency int    `mapstructure:"concurrency"`
}

// LLMConfig 存储大语言模型相关的配置。Provider 为 openai 或 gemini。
type LLMConfig struct {
	Provider   string              `mapstructure:"provider"`
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
	Prompt     LLMPromptConfig     `mapstructure:"prompt"`
}

type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置回答的附加规则和特殊情况下的固定回复。
type LLMPromptConfig struct {
	Rules          string `mapstructure:"rules"`
	NoResultText   string `mapstructure:"no_result_text"`
	ProcessingText string `mapstructure:"processing_text"`
}

type ChunkingConfig struct {
	MinTokens      int     `mapstructure:"min_tokens"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	OverlapPercent float64 `mapstructure:"overlap_percent"`
}

// SummarizerConfig 中 InputBudgetTokens 是单次生成调用允许的输入 token 数。
type SummarizerConfig struct {
	InputBudgetTokens int `mapstructure:"input_budget_tokens"`
	TopicMaxTokens    int `mapstructure:"topic_max_tokens"`
	UnitMaxTokens     int `mapstructure:"unit_max_tokens"`
	MaxReduceDepth    int `mapstructure:"max_reduce_depth"`
}

type RetrievalConfig struct {
	PassageK           int `mapstructure:"passage_k"`
	TopicK             int `mapstructure:"topic_k"`
	UnitK              int `mapstructure:"unit_k"`
	ContextTokenBudget int `mapstructure:"context_token_budget"`
	PreviewRunes       int `mapstructure:"preview_runes"`
	AnswerMaxTokens    int `mapstructure:"answer_max_tokens"`
	ClassifyMaxTokens  int `mapstructure:"classify_max_tokens"`
}

// RetryConfig 作用于所有外部 embedding/生成调用。
type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	InitialInterval   time.Duration `mapstructure:"initial_interval"`
	MaxInterval       time.Duration `mapstructure:"max_interval"`
	Multiplier        float64       `mapstructure:"multiplier"`
	AttemptTimeout    time.Duration `mapstructure:"attempt_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// VectorIndexConfig 中 Backend 为 file、es 或 memory。
type VectorIndexConfig struct {
	Backend             string `mapstructure:"backend"`
	Dir                 string `mapstructure:"dir"`
	RebuildOnCorruption bool   `mapstructure:"rebuild_on_corruption"`
}

// ProcessingConfig 中 RunTimeout 是处理任务的租约，超过该时长没有进度的任务可被接管，0 表示不接管。
type ProcessingConfig struct {
	RunTimeout time.Duration `mapstructure:"run_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8081")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("queue.driver", "kafka")
	v.SetDefault("queue.workers", 2)
	v.SetDefault("kafka.topic", "unit-processing")
	v.SetDefault("kafka.group_id", "edu-rag-pipeline")
	v.SetDefault("kafka.max_attempts", 3)
	v.SetDefault("storage.driver", "minio")
	v.SetDefault("elasticsearch.passage_index", "edu_passage_index")
	v.SetDefault("elasticsearch.summary_index", "edu_summary_index")
	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.concurrency", 4)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.prompt.no_result_text", "No relevant content found in the course materials.")
	v.SetDefault("llm.prompt.processing_text", "This unit's materials are still being processed. Please try again in a few minutes.")
	v.SetDefault("chunking.min_tokens", 300)
	v.SetDefault("chunking.max_tokens", 600)
	v.SetDefault("chunking.overlap_percent", 0.15)
	v.SetDefault("summarizer.input_budget_tokens", 6000)
	v.SetDefault("summarizer.topic_max_tokens", 400)
	v.SetDefault("summarizer.unit_max_tokens", 600)
	v.SetDefault("summarizer.max_reduce_depth", 3)
	v.SetDefault("retrieval.passage_k", 5)
	v.SetDefault("retrieval.topic_k", 3)
	v.SetDefault("retrieval.unit_k", 1)
	v.SetDefault("retrieval.context_token_budget", 3000)
	v.SetDefault("retrieval.preview_runes", 160)
	v.SetDefault("retrieval.answer_max_tokens", 1024)
	v.SetDefault("retrieval.classify_max_tokens", 20)
	v.SetDefault("retry.max_attempts", 4)
	v.SetDefault("retry.initial_interval", "2s")
	v.SetDefault("retry.max_interval", "30s")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.attempt_timeout", "60s")
	v.SetDefault("retry.requests_per_second", 6.67)
	v.SetDefault("retry.burst", 1)
	v.SetDefault("vector_index.backend", "file")
	v.SetDefault("vector_index.dir", "./data/index")
	v.SetDefault("vector_index.rebuild_on_corruption", true)
	v.SetDefault("processing.run_timeout", "30m")
}

// Load 读取 .env（若存在）和 YAML 配置文件，环境变量 EDU_RAG_<SECTION>_<KEY> 覆盖文件中的值。
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("EDU_RAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return &cfg, nil
}

// Init 加载配置到全局变量 Conf，失败时直接 panic。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = *cfg
}
