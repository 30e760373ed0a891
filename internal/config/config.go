package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	OpenAIAPIKey    string
	ProviderBaseURL string
	ProviderTimeout time.Duration
	ProviderRPS     float64
	AssistantID     string
	AssistantModel  string
	VectorStoreID   string

	DatabaseURL string
	HTTPPort    string
	LogLevel    string
	JWTSecret   string

	UploadDir     string
	AudioDir      string
	UploadWorkers int

	PollInterval      time.Duration
	MaxPollAttempts   int
	RunTimeout        time.Duration
	ReplyLookback     int
	IndexPollAttempts int

	ReconcileInterval time.Duration
	AudioRetention    time.Duration

	TranscriptionModel    string
	TranscriptionLanguage string
	SpeechModel           string
	SpeechVoice           string
	SpeechInstructions    string
	VoiceLogUser          string
}

var AppConfig Config

// LoadConfig reads an optional .env file and the process environment into
// AppConfig. Missing or malformed values fall back to defaults; call Validate
// before serving.
func LoadConfig() *Config {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		ProviderBaseURL: getEnv("PROVIDER_BASE_URL", "https://api.openai.com/v1"),
		ProviderTimeout: getEnvAsDuration("PROVIDER_TIMEOUT", 120*time.Second),
		ProviderRPS:     getEnvAsFloat("PROVIDER_RPS", 0),
		AssistantID:     getEnv("ASSISTANT_ID", ""),
		AssistantModel:  getEnv("ASSISTANT_MODEL", "gpt-4o-mini"),
		VectorStoreID:   getEnv("VECTOR_STORE_ID", ""),

		DatabaseURL: getEnv("DATABASE_URL", "boardroom.db"),
		HTTPPort:    getEnv("HTTP_PORT", "8501"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		UploadDir:     getEnv("UPLOAD_DIR", "uploaded_files"),
		AudioDir:      getEnv("AUDIO_DIR", "audio_files"),
		UploadWorkers: getEnvAsInt("UPLOAD_WORKERS", 4),

		PollInterval:      getEnvAsDuration("POLL_INTERVAL", 2*time.Second),
		MaxPollAttempts:   getEnvAsInt("MAX_POLL_ATTEMPTS", 90),
		RunTimeout:        getEnvAsDuration("RUN_TIMEOUT", 3*time.Minute),
		ReplyLookback:     getEnvAsInt("REPLY_LOOKBACK", 3),
		IndexPollAttempts: getEnvAsInt("INDEX_POLL_ATTEMPTS", 10),

		ReconcileInterval: getEnvAsDuration("RECONCILE_INTERVAL", 15*time.Minute),
		AudioRetention:    getEnvAsDuration("AUDIO_RETENTION", 24*time.Hour),

		TranscriptionModel:    getEnv("TRANSCRIPTION_MODEL", "whisper-1"),
		TranscriptionLanguage: getEnv("TRANSCRIPTION_LANGUAGE", "en"),
		SpeechModel:           getEnv("SPEECH_MODEL", "gpt-4o-mini-tts"),
		SpeechVoice:           getEnv("SPEECH_VOICE", "alloy"),
		SpeechInstructions:    getEnv("SPEECH_INSTRUCTIONS", "Speak in a cheerful and positive tone."),
		VoiceLogUser:          getEnv("VOICE_LOG_USER", "mainadmin"),
	}

	return &AppConfig
}

// Validate checks the settings required to talk to the provider.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return errors.New("OPENAI_API_KEY environment variable is required")
	}
	if c.AssistantID == "" {
		return errors.New("ASSISTANT_ID environment variable is required")
	}
	if c.VectorStoreID == "" {
		return errors.New("VECTOR_STORE_ID environment variable is required")
	}
	if c.PollInterval <= 0 {
		return errors.New("POLL_INTERVAL must be positive")
	}
	if c.MaxPollAttempts < 1 {
		return errors.New("MAX_POLL_ATTEMPTS must be at least 1")
	}
	if c.RunTimeout <= 0 {
		return errors.New("RUN_TIMEOUT must be positive")
	}
	if c.ReplyLookback < 1 {
		return errors.New("REPLY_LOOKBACK must be at least 1")
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
