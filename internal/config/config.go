package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	MySQLDSN string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioRegion    string
	Bucket         string
	PublicBaseURL  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TempDir       string
	FFmpegPath    string
	FFmpegPreset  string
	AudioBitrate  string
	EncodeTimeout time.Duration

	PollInterval time.Duration
	AdminAddr    string
	LogLevel     slog.Level
}

func Load() Config {
	logLevel := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	tempDir := os.Getenv("WORKER_TMP_DIR")
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	return Config{
		MySQLDSN: valueOrDefault(os.Getenv("MYSQL_DSN"), "root:root@tcp(localhost:3306)/videopipeline?parseTime=true"),

		MinioEndpoint:  valueOrDefault(os.Getenv("MINIO_ENDPOINT"), "localhost:9000"),
		MinioAccessKey: valueOrDefault(os.Getenv("MINIO_ACCESS_KEY"), "minio"),
		MinioSecretKey: valueOrDefault(os.Getenv("MINIO_SECRET_KEY"), "minio123"),
		MinioUseSSL:    strings.EqualFold(os.Getenv("MINIO_USE_SSL"), "true"),
		MinioRegion:    os.Getenv("MINIO_REGION"),
		Bucket:         valueOrDefault(os.Getenv("VIDEO_BUCKET"), "videos"),
		PublicBaseURL:  valueOrDefault(os.Getenv("PUBLIC_BASE_URL"), "http://localhost:9000/videos"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       parseInt(os.Getenv("REDIS_DB"), 0),

		TempDir:       tempDir,
		FFmpegPath:    valueOrDefault(os.Getenv("FFMPEG_PATH"), "ffmpeg"),
		FFmpegPreset:  valueOrDefault(os.Getenv("FFMPEG_PRESET"), "medium"),
		AudioBitrate:  valueOrDefault(os.Getenv("AUDIO_BITRATE"), "128k"),
		EncodeTimeout: parseDuration(os.Getenv("ENCODE_TIMEOUT"), 0),

		PollInterval: parseDuration(os.Getenv("POLL_INTERVAL"), 2*time.Second),
		AdminAddr:    valueOrDefault(os.Getenv("ADMIN_ADDR"), ":8081"),
		LogLevel:     logLevel,
	}
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
