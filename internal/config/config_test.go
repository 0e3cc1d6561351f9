package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		model string
		want  Provider
	}{
		{"gpt-4o-2024-05-13", ProviderOpenAI},
		{"GPT-4o", ProviderOpenAI},
		{"claude-3-5-sonnet-20240620", ProviderAnthropic},
		{"Claude-3-Opus", ProviderAnthropic},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			got, err := DetectProvider(tt.model)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectProviderUnknownModel(t *testing.T) {
	_, err := DetectProvider("llama3")
	require.ErrorIs(t, err, ErrUnknownModel)

	_, err = DetectProvider("")
	require.ErrorIs(t, err, ErrUnknownModel)
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MODEL", "gpt-4o")
	t.Setenv("API_KEY", "sk-test")
	t.Setenv("INTERVIEW_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 30, cfg.Server.SessionRateLimit)
	assert.Equal(t, 15*time.Minute, cfg.Server.SessionCompletedTTL)
	assert.Equal(t, 6*time.Hour, cfg.Server.SessionIdleTTL)
	assert.Equal(t, ProviderOpenAI, cfg.AI.Provider)
	assert.Equal(t, 2048, cfg.AI.MaxTokens)
	assert.Nil(t, cfg.AI.Temperature)
	assert.Equal(t, "data/transcripts", cfg.Persist.TranscriptsDir)
	assert.Equal(t, 20, cfg.Persist.RetryAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Persist.RetryDelay)
	assert.Equal(t, 2*time.Second, cfg.Persist.RetryMaxDelay)
	assert.False(t, cfg.Storage.Enabled())
	assert.True(t, cfg.Storage.UploadTimeFile)
	assert.Equal(t, DefaultTestAccount, cfg.Interview.TestAccount)
	assert.Len(t, cfg.Interview.ClosingMessages, 2)
}

func TestLoadRejectsUnknownModel(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MODEL", "mistral-large")

	_, err := Load()
	require.ErrorIs(t, err, ErrUnknownModel)
}

func TestLoadRequiresAPIKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_KEY", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MODEL", "claude-3-5-sonnet-latest")
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("TEMPERATURE", "0.7")
	t.Setenv("MAX_OUTPUT_TOKENS", "512")
	t.Setenv("PERSIST_RETRY_ATTEMPTS", "0")
	t.Setenv("PERSIST_RETRY_DELAY", "50ms")
	t.Setenv("PERSIST_RETRY_MAX_DELAY", "10ms")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", `{"type":"service_account"}`)
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("SESSION_RATE_LIMIT", "0")
	t.Setenv("SESSION_IDLE_TTL", "30m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Zero(t, cfg.Server.SessionRateLimit)
	assert.Equal(t, 30*time.Minute, cfg.Server.SessionIdleTTL)
	assert.Equal(t, ProviderAnthropic, cfg.AI.Provider)
	require.NotNil(t, cfg.AI.Temperature)
	assert.InDelta(t, 0.7, *cfg.AI.Temperature, 1e-9)
	assert.Equal(t, 512, cfg.AI.MaxTokens)
	assert.Equal(t, 1, cfg.Persist.RetryAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Persist.RetryDelay)
	assert.Equal(t, 50*time.Millisecond, cfg.Persist.RetryMaxDelay)
	assert.True(t, cfg.Storage.Enabled())
}

func TestLoadInvalidValues(t *testing.T) {
	cases := map[string]string{
		"PORT":                "80 80",
		"TEMPERATURE":         "hot",
		"MAX_OUTPUT_TOKENS":   "-1",
		"PERSIST_RETRY_DELAY": "soon",
		"LOGINS":              "maybe",
		"SESSION_RATE_LIMIT":  "-5",
		"SESSION_IDLE_TTL":    "forever",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadRejectsLoginsWithoutPasswords(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOGINS", "true")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no passwords configured")
}

func TestLoadLoginsOverrideWithPasswords(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "interview.yaml")
	require.NoError(t, os.WriteFile(path, []byte("passwords:\n  alice: s3cret\n"), 0o600))
	t.Setenv("INTERVIEW_CONFIG", path)
	t.Setenv("LOGINS", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Interview.Logins)
	assert.Equal(t, "s3cret", cfg.Interview.Passwords["alice"])
}

func TestLoadInterviewFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interview.yaml")
	content := `title: Work study
system_prompt: "Interview {name} from {company}."
closing_messages:
  - code: "END1"
    message: "Bye."
avatars:
  interviewer: "I"
  respondent: "R"
logins: true
passwords:
  alice: secret
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadInterview(path)
	require.NoError(t, err)

	assert.Equal(t, "Work study", cfg.Title)
	assert.Equal(t, "Interview {name} from {company}.", cfg.SystemPrompt)
	require.Len(t, cfg.ClosingMessages, 1)
	assert.Equal(t, "END1", cfg.ClosingMessages[0].Code)
	assert.Equal(t, "I", cfg.Avatars.Interviewer)
	assert.True(t, cfg.Logins)
	assert.Equal(t, "secret", cfg.Passwords["alice"])
	assert.Equal(t, DefaultTestAccount, cfg.TestAccount)
}

func TestLoadInterviewMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadInterview(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultInterview().ClosingMessages, cfg.ClosingMessages)
	assert.Contains(t, cfg.SystemPrompt, "{name}")
}

func TestLoadInterviewValidation(t *testing.T) {
	cases := map[string]string{
		"unknown field":   "bogus: 1\n",
		"empty prompt":    "system_prompt: \"  \"\n",
		"duplicate code":  "closing_messages:\n  - {code: a, message: x}\n  - {code: a, message: y}\n",
		"empty message":   "closing_messages:\n  - {code: a}\n",
		"logins no users": "logins: true\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadInterviewFromReader(strings.NewReader(body))
			require.Error(t, err)
		})
	}
}
