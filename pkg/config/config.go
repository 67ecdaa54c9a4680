package config

import "time"

// Transcode definition transcode_worker YAML structure
type Transcode struct {
	IP       string `mapstructure:"ip"`
	Port     string `mapstructure:"port"`       // gRPC health
	HTTPPort string `mapstructure:"http_port"`  // admin api
	Pprof    string `mapstructure:"pprof_addr"` // 空字串關閉

	Worker     WorkerConfig   `mapstructure:"worker"`
	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	MinIO      MinIOConfig    `mapstructure:"minio"`
	RabbitMQ   RabbitMQConfig `mapstructure:"rabbitmq"`
	Redis      RedisConfig    `mapstructure:"redis"`
	Kafka      KafkaConfig    `mapstructure:"kafka"`
	Mongo      MongoConfig    `mapstructure:"mongo"`
}

// WorkerConfig definition job pipeline setting
type WorkerConfig struct {
	ScratchDir            string        `mapstructure:"scratch_dir"`
	FFmpegPath            string        `mapstructure:"ffmpeg_path"`
	MaxConcurrentJobs     int           `mapstructure:"max_concurrent_jobs"`
	MaxParallelRenditions int           `mapstructure:"max_parallel_renditions"`
	TranscodeTimeout      time.Duration `mapstructure:"transcode_timeout"`
	StorageTimeout        time.Duration `mapstructure:"storage_timeout"`
	DBTimeout             time.Duration `mapstructure:"db_timeout"`
	RequeueDelay          time.Duration `mapstructure:"requeue_delay"`
	LockTTL               time.Duration `mapstructure:"lock_ttl"`
	ThumbnailOffset       int           `mapstructure:"thumbnail_offset"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// MinIOConfig definition minio setting
type MinIOConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	RawBucket       string        `mapstructure:"raw_bucket"`
	ProcessedBucket string        `mapstructure:"processed_bucket"`
	PresignExpiry   time.Duration `mapstructure:"presign_expiry"`
	RetryInterval   time.Duration `mapstructure:"retry_interval"`
	RetryCount      int           `mapstructure:"retry_count"`
}

// RabbitMQConfig definition rabbitmq setting
type RabbitMQConfig struct {
	IP              string        `mapstructure:"ip"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Queue           string        `mapstructure:"queue"`
	DeadLetterQueue string        `mapstructure:"dead_letter_queue"`
	RetryInterval   time.Duration `mapstructure:"retry_interval"`
	RetryCount      int           `mapstructure:"retry_count"`
}

// RedisConfig definition redis setting, empty Addr and SentinelAddrs disables the job lock
type RedisConfig struct {
	Addr          string   `mapstructure:"addr"`
	MasterName    string   `mapstructure:"master_name"`
	SentinelAddrs []string `mapstructure:"sentinel_addrs"`
	RedisDB       int      `mapstructure:"redis_db"`
}

// KafkaConfig definition kafka setting
type KafkaConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Brokers       []string      `mapstructure:"brokers"`
	Topic         string        `mapstructure:"topic"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	RetryCount    int           `mapstructure:"retry_count"`
}

// MongoConfig definition mongo setting
type MongoConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	URI        string        `mapstructure:"uri"`
	Database   string        `mapstructure:"database"`
	Collection string        `mapstructure:"collection"`
	RetryCount int           `mapstructure:"retry_count"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// DefaultTranscode local development defaults
func DefaultTranscode() map[string]interface{} {
	return map[string]interface{}{
		"ip":         "0.0.0.0",
		"port":       "50053",
		"http_port":  "8084",
		"pprof_addr": "127.0.0.1:6060",

		"worker.scratch_dir":             "./temp",
		"worker.ffmpeg_path":             "ffmpeg",
		"worker.max_concurrent_jobs":     2,
		"worker.max_parallel_renditions": 3,
		"worker.transcode_timeout":       "30m",
		"worker.storage_timeout":         "5m",
		"worker.db_timeout":              "10s",
		"worker.requeue_delay":           "10s",
		"worker.lock_ttl":                "45m",
		"worker.thumbnail_offset":        5,

		"pg.host":           "localhost",
		"pg.port":           5432,
		"pg.user":           "postgres",
		"pg.password":       "localdev",
		"pg.database":       "sdlearner",
		"pg.retry_interval": 3,
		"pg.retry_count":    5,

		"minio.host":             "localhost",
		"minio.port":             9000,
		"minio.user":             "minioadmin",
		"minio.password":         "minioadmin",
		"minio.use_ssl":          false,
		"minio.raw_bucket":       "raw-uploads",
		"minio.processed_bucket": "processed-videos",
		"minio.presign_expiry":   "1h",
		"minio.retry_interval":   3,
		"minio.retry_count":      5,

		"rabbitmq.ip":                "localhost",
		"rabbitmq.port":              "5672",
		"rabbitmq.user":              "guest",
		"rabbitmq.password":          "guest",
		"rabbitmq.queue":             "video-processing",
		"rabbitmq.dead_letter_queue": "video-processing.dead",
		"rabbitmq.retry_interval":    3,
		"rabbitmq.retry_count":       5,

		"redis.addr":           "",
		"redis.master_name":    "",
		"redis.sentinel_addrs": []string{},
		"redis.redis_db":       0,

		"kafka.enabled":        false,
		"kafka.brokers":        []string{"localhost:9092"},
		"kafka.topic":          "video.transcoded",
		"kafka.retry_interval": 3,
		"kafka.retry_count":    3,

		"mongo.enabled":     false,
		"mongo.uri":         "mongodb://localhost:27017",
		"mongo.database":    "transcode",
		"mongo.collection":  "transcode_reports",
		"mongo.retry_count": 3,
		"mongo.retry_delay": "2s",
	}
}
