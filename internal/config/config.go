package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrUnknownModel 表示模型名称既不属于 gpt 也不属于 claude 系列。
var ErrUnknownModel = errors.New("model does not contain 'gpt' or 'claude'; unable to determine API")

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Storage   StorageConfig
	Persist   PersistConfig
	Log       LogConfig
	Interview InterviewConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	storage, err := loadStorageConfig()
	if err != nil {
		return nil, err
	}

	persist, err := loadPersistConfig()
	if err != nil {
		return nil, err
	}

	interview, err := LoadInterview(getEnvOrDefault("INTERVIEW_CONFIG", "interview.yaml"))
	if err != nil {
		return nil, err
	}

	logins, err := parseBoolEnv("LOGINS", interview.Logins)
	if err != nil {
		return nil, err
	}
	interview.Logins = logins
	if err := interview.checkLogins(); err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		AI:        ai,
		Storage:   storage,
		Persist:   persist,
		Log:       loadLogConfig(),
		Interview: interview,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
	// SessionRateLimit 是每个 IP 每分钟允许创建的会话数，0 表示不限制。
	SessionRateLimit int
	// 已完成会话与闲置会话在内存中的保留时长。
	SessionCompletedTTL time.Duration
	SessionIdleTTL      time.Duration
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	cfg := ServerConfig{
		AllowedOrigins:   splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),
		SessionRateLimit: 30,
	}

	if limit, err := parseOptionalIntEnv("SESSION_RATE_LIMIT"); err != nil {
		return ServerConfig{}, err
	} else if limit != nil {
		if *limit < 0 {
			return ServerConfig{}, fmt.Errorf("invalid SESSION_RATE_LIMIT value %d: must not be negative", *limit)
		}
		cfg.SessionRateLimit = *limit
	}

	var err error
	if cfg.SessionCompletedTTL, err = parseDurationEnv("SESSION_COMPLETED_TTL", 15*time.Minute); err != nil {
		return ServerConfig{}, err
	}
	if cfg.SessionIdleTTL, err = parseDurationEnv("SESSION_IDLE_TTL", 6*time.Hour); err != nil {
		return ServerConfig{}, err
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		cfg.Addr = port
		return cfg, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	cfg.Addr = ":" + port
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Provider 标识模型所属的 API 协议族，启动时确定一次。
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// DetectProvider 根据模型名称中的 gpt / claude 子串选择协议族。
func DetectProvider(model string) (Provider, error) {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "gpt"):
		return ProviderOpenAI, nil
	case strings.Contains(lower, "claude"):
		return ProviderAnthropic, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider    Provider
	APIKey      string
	Model       string
	BaseURL     string
	Temperature *float64
	MaxTokens   int
}

func loadAIConfig() (AIConfig, error) {
	model := strings.TrimSpace(os.Getenv("MODEL"))
	provider, err := DetectProvider(model)
	if err != nil {
		return AIConfig{}, err
	}

	apiKey := strings.TrimSpace(os.Getenv("API_KEY"))
	if apiKey == "" {
		return AIConfig{}, fmt.Errorf("API_KEY is required")
	}

	temperature, err := parseOptionalFloatEnv("TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens := 2048
	if override, err := parseOptionalIntEnv("MAX_OUTPUT_TOKENS"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return AIConfig{}, fmt.Errorf("invalid MAX_OUTPUT_TOKENS value %d: must be positive", *override)
		}
		maxTokens = *override
	}

	return AIConfig{
		Provider:    provider,
		APIKey:      apiKey,
		Model:       model,
		BaseURL:     strings.TrimSpace(os.Getenv("AI_BASE_URL")),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, nil
}

// StorageConfig 描述 Google Drive 上传所需的配置。
type StorageConfig struct {
	CredentialsFile string
	CredentialsJSON string
	FolderID        string
	FolderName      string
	SharePublic     bool
	UploadTimeFile  bool
}

// Enabled 表示是否提供了服务账号凭证。
func (c StorageConfig) Enabled() bool {
	return c.CredentialsFile != "" || c.CredentialsJSON != ""
}

// LoadStorage 只读取存储相关的环境变量，供不需要模型配置的工具使用。
func LoadStorage() (StorageConfig, error) {
	return loadStorageConfig()
}

func loadStorageConfig() (StorageConfig, error) {
	share, err := parseBoolEnv("GOOGLE_DRIVE_SHARE_PUBLIC", false)
	if err != nil {
		return StorageConfig{}, err
	}

	uploadTime, err := parseBoolEnv("UPLOAD_TIME_FILE", true)
	if err != nil {
		return StorageConfig{}, err
	}

	return StorageConfig{
		CredentialsFile: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")),
		CredentialsJSON: strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")),
		FolderID:        strings.TrimSpace(os.Getenv("GOOGLE_DRIVE_FOLDER_ID")),
		FolderName:      getEnvOrDefault("GOOGLE_DRIVE_FOLDER_NAME", "interview-transcripts"),
		SharePublic:     share,
		UploadTimeFile:  uploadTime,
	}, nil
}

// PersistConfig 描述本地目录以及最终保存的重试策略。
type PersistConfig struct {
	TranscriptsDir string
	TimesDir       string
	BackupsDir     string
	RetryAttempts  int
	RetryDelay     time.Duration
	RetryMaxDelay  time.Duration
}

func loadPersistConfig() (PersistConfig, error) {
	attempts := 20
	if override, err := parseOptionalIntEnv("PERSIST_RETRY_ATTEMPTS"); err != nil {
		return PersistConfig{}, err
	} else if override != nil {
		if *override < 1 {
			attempts = 1
		} else {
			attempts = *override
		}
	}

	delay, err := parseDurationEnv("PERSIST_RETRY_DELAY", 100*time.Millisecond)
	if err != nil {
		return PersistConfig{}, err
	}

	maxDelay, err := parseDurationEnv("PERSIST_RETRY_MAX_DELAY", 2*time.Second)
	if err != nil {
		return PersistConfig{}, err
	}
	if maxDelay < delay {
		maxDelay = delay
	}

	return PersistConfig{
		TranscriptsDir: getEnvOrDefault("TRANSCRIPTS_DIRECTORY", "data/transcripts"),
		TimesDir:       getEnvOrDefault("TIMES_DIRECTORY", "data/times"),
		BackupsDir:     getEnvOrDefault("BACKUPS_DIRECTORY", "data/backups"),
		RetryAttempts:  attempts,
		RetryDelay:     delay,
		RetryMaxDelay:  maxDelay,
	}, nil
}

// LogConfig 描述日志级别与输出格式。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "console")),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
