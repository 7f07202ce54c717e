// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"medimate-go/internal/apperr"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Log            LogConfig            `mapstructure:"log"`
	OpenAI         OpenAIConfig         `mapstructure:"openai"`
	Retry          RetryConfig          `mapstructure:"retry"`
	Timeouts       TimeoutConfig        `mapstructure:"timeouts"`
	Catalog        CatalogConfig        `mapstructure:"catalog"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Elasticsearch  ElasticsearchConfig  `mapstructure:"elasticsearch"`
	Qdrant         QdrantConfig         `mapstructure:"qdrant"`
	MinIO          MinIOConfig          `mapstructure:"minio"`
	Kafka          KafkaConfig          `mapstructure:"kafka"`
	Tika           TikaConfig           `mapstructure:"tika"`
	Chunking       ChunkingConfig       `mapstructure:"chunking"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Extraction     ExtractionConfig     `mapstructure:"extraction"`
	Conversation   ConversationConfig   `mapstructure:"conversation"`
	Session        SessionConfig        `mapstructure:"session"`
	Prescription   PrescriptionConfig   `mapstructure:"prescription"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// OpenAIConfig 存储聊天模型与 Embedding 模型的配置，两者共用同一个凭证。
type OpenAIConfig struct {
	APIKey              string  `mapstructure:"api_key"`
	BaseURL             string  `mapstructure:"base_url"`
	ChatModel           string  `mapstructure:"chat_model"`
	ExtractionModel     string  `mapstructure:"extraction_model"`
	EmbeddingModel      string  `mapstructure:"embedding_model"`
	EmbeddingDimensions int     `mapstructure:"embedding_dimensions"`
	RPS                 float64 `mapstructure:"rps"`
	Burst               int     `mapstructure:"burst"`
}

// RetryConfig 控制对瞬时故障的有限重试。
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// TimeoutConfig 为每一类外部调用设置超时。
type TimeoutConfig struct {
	Embedding  time.Duration `mapstructure:"embedding"`
	Generation time.Duration `mapstructure:"generation"`
	Store      time.Duration `mapstructure:"store"`
	Extraction time.Duration `mapstructure:"extraction"`
	Redis      time.Duration `mapstructure:"redis"`
}

// CatalogConfig 描述药品目录的来源、存储与索引后端。
type CatalogConfig struct {
	Source         string `mapstructure:"source"`        // file | minio | store
	File           string `mapstructure:"file"`          // source=file 时的 JSON 文件路径
	Object         string `mapstructure:"object"`        // source=minio 时的对象名
	StoreDriver    string `mapstructure:"store_driver"`  // mongo | mysql
	IndexBackend   string `mapstructure:"index_backend"` // memory | elasticsearch | qdrant
	CacheDir       string `mapstructure:"cache_dir"`     // 为空则不启用 Embedding 缓存
	EmbedBatchSize int    `mapstructure:"embed_batch_size"`
	EmbedWorkers   int    `mapstructure:"embed_workers"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	Mongo MongoConfig `mapstructure:"mongo"`
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MongoConfig 存储 MongoDB 的配置。
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
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

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// QdrantConfig 存储 Qdrant 相关的配置。
type QdrantConfig struct {
	URL        string `mapstructure:"url"`
	APIKey     string `mapstructure:"api_key"`
	Collection string `mapstructure:"collection"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// ChunkingConfig 控制两阶段切块的窗口大小与重叠。
type ChunkingConfig struct {
	ParagraphSize    int `mapstructure:"paragraph_size"`
	ParagraphOverlap int `mapstructure:"paragraph_overlap"`
	FineSize         int `mapstructure:"fine_size"`
	FineOverlap      int `mapstructure:"fine_overlap"`
}

// RecommendationConfig 控制目录检索的广度。
type RecommendationConfig struct {
	TopK         int `mapstructure:"top_k"`
	FetchWorkers int `mapstructure:"fetch_workers"`
}

// ExtractionConfig 控制药名抽取的检索增强查询。
type ExtractionConfig struct {
	Query       string  `mapstructure:"query"`
	TopK        int     `mapstructure:"top_k"`
	Temperature float64 `mapstructure:"temperature"`
}

// ConversationConfig 控制对话会话。
type ConversationConfig struct {
	Temperature float64       `mapstructure:"temperature"`
	TTL         time.Duration `mapstructure:"ttl"`
	MaxMessages int           `mapstructure:"max_messages"`
	Persona     string        `mapstructure:"persona"`
	Welcome     string        `mapstructure:"welcome"`
}

// SessionConfig 存储会话令牌的签名配置。
type SessionConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// PrescriptionConfig 控制处方上传。
type PrescriptionConfig struct {
	MaxUploadMB int  `mapstructure:"max_upload_mb"`
	Archive     bool `mapstructure:"archive"`
}

// 环境变量与配置键的映射，环境变量优先于 YAML。
var envBindings = map[string]string{
	"openai.api_key":            "OPENAI_API_KEY",
	"openai.base_url":           "OPENAI_BASE_URL",
	"database.mongo.uri":        "MONGO_URL",
	"database.mysql.dsn":        "MYSQL_DSN",
	"database.redis.addr":       "REDIS_ADDR",
	"database.redis.password":   "REDIS_PASSWORD",
	"catalog.file":              "MEDICINES_FILE",
	"catalog.source":            "CATALOG_SOURCE",
	"catalog.index_backend":     "CATALOG_INDEX_BACKEND",
	"elasticsearch.addresses":   "ES_ADDRESSES",
	"qdrant.url":                "QDRANT_URL",
	"qdrant.api_key":            "QDRANT_API_KEY",
	"minio.endpoint":            "MINIO_ENDPOINT",
	"minio.access_key_id":       "MINIO_ACCESS_KEY",
	"minio.secret_access_key":   "MINIO_SECRET_KEY",
	"kafka.brokers":             "KAFKA_BROKERS",
	"tika.server_url":           "TIKA_SERVER_URL",
	"session.secret":            "SESSION_SECRET",
	"server.port":               "PORT",
	"recommendation.top_k":      "RECOMMENDATION_TOP_K",
	"conversation.max_messages": "CONVERSATION_MAX_MESSAGES",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "5000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("openai.chat_model", "gpt-3.5-turbo")
	v.SetDefault("openai.extraction_model", "gpt-3.5-turbo")
	v.SetDefault("openai.embedding_model", "text-embedding-ada-002")
	v.SetDefault("openai.rps", 0)
	v.SetDefault("openai.burst", 1)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_interval", 200*time.Millisecond)
	v.SetDefault("retry.max_interval", 5*time.Second)

	v.SetDefault("timeouts.embedding", 30*time.Second)
	v.SetDefault("timeouts.generation", 60*time.Second)
	v.SetDefault("timeouts.store", 5*time.Second)
	v.SetDefault("timeouts.extraction", 30*time.Second)
	v.SetDefault("timeouts.redis", 2*time.Second)

	v.SetDefault("catalog.source", "file")
	v.SetDefault("catalog.file", "medicines.json")
	v.SetDefault("catalog.object", "catalog/medicines.json")
	v.SetDefault("catalog.store_driver", "mongo")
	v.SetDefault("catalog.index_backend", "memory")
	v.SetDefault("catalog.cache_dir", "docs/chroma")
	v.SetDefault("catalog.embed_batch_size", 64)
	v.SetDefault("catalog.embed_workers", 4)

	v.SetDefault("database.mongo.database", "medimate")
	v.SetDefault("database.mongo.collection", "medicines")

	v.SetDefault("elasticsearch.index_name", "medimate_catalog")
	v.SetDefault("qdrant.collection", "medimate_catalog")
	v.SetDefault("minio.bucket_name", "medimate")
	v.SetDefault("kafka.topic", "prescription-analyzed")
	v.SetDefault("tika.server_url", "http://localhost:9998")

	v.SetDefault("chunking.paragraph_size", 1000)
	v.SetDefault("chunking.paragraph_overlap", 50)
	v.SetDefault("chunking.fine_size", 500)
	v.SetDefault("chunking.fine_overlap", 20)

	v.SetDefault("recommendation.top_k", 5)
	v.SetDefault("recommendation.fetch_workers", 4)

	v.SetDefault("extraction.query", DefaultExtractionQuery)
	v.SetDefault("extraction.top_k", 4)
	v.SetDefault("extraction.temperature", 0)

	v.SetDefault("conversation.temperature", 0.9)
	v.SetDefault("conversation.ttl", 7*24*time.Hour)
	v.SetDefault("conversation.max_messages", 20)
	v.SetDefault("conversation.persona", DefaultPersona)
	v.SetDefault("conversation.welcome", DefaultWelcome)

	v.SetDefault("session.expire_hours", 24*7)
	v.SetDefault("prescription.max_upload_mb", 10)
}

// Load 读取 .env 与 YAML 配置文件，并用环境变量覆盖。配置文件不存在时仅使用默认值与环境变量。
func Load(configPath string) (*Config, error) {
	// .env 不存在是正常情况
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("绑定环境变量 %s 失败: %w", env, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return &cfg, nil
}

// Validate 检查启动所必需的配置项，缺失时返回 ConfigurationMissing。
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	switch c.Catalog.StoreDriver {
	case "mysql":
		if strings.TrimSpace(c.Database.MySQL.DSN) == "" {
			missing = append(missing, "MYSQL_DSN")
		}
	case "mongo", "":
		if strings.TrimSpace(c.Database.Mongo.URI) == "" {
			missing = append(missing, "MONGO_URL")
		}
	default:
		return apperr.New(apperr.ErrConfigurationMissing, "config.Validate",
			fmt.Errorf("不支持的目录存储驱动: %s", c.Catalog.StoreDriver))
	}
	if len(missing) > 0 {
		return apperr.New(apperr.ErrConfigurationMissing, "config.Validate",
			fmt.Errorf("缺少必需配置: %s", strings.Join(missing, ", ")))
	}
	return nil
}
