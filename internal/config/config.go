package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	// Server
	OpsAddr  string
	LogLevel string

	// Telegram
	BotToken string

	// Gemini API
	GeminiAPIKey        string
	GeminiAPIEndpoint   string // if set, overrides default Gemini API base URL
	GeminiModelPrimary  string // primary story model, e.g. gemini-3-pro-preview
	GeminiModelFallback string // fallback story model, e.g. gemini-2.5-flash-lite
	GeminiModelImage    string // image generation, e.g. gemini-3-pro-image-preview
	GeminiModelTTS      string // TTS model, e.g. gemini-2.5-pro-preview-tts
	GeminiTTSVoice      string // TTS voice name, e.g. Zephyr, Puck, Aoede

	// Story generation
	StoryLanguage    string  // language of generated tales, e.g. Russian
	StoryTemperature float64 // sampling temperature for story generation
	StoryMaxTokens   int     // output cap for story generation

	// Input bounds
	MaxNameLength  int // child name cap in characters
	MaxTopicLength int // topic cap in characters
	MaxTTSLength   int // TTS input cap in characters

	// Audio encoding
	FFmpegPath   string // transcoder binary, looked up on PATH when bare name
	VoiceBitrate string // opus bitrate for voice messages, e.g. 64k

	// Optional stages
	OptionalStageTimeout time.Duration // per-stage cap for image/audio generation

	// Artifact archive (S3, optional; disabled when bucket is empty)
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3PublicURL string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		OpsAddr:  getEnv("OPS_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		BotToken: getEnv("TELEGRAM_BOT_TOKEN", os.Getenv("BOT_TOKEN")),

		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiAPIEndpoint:   getEnv("GEMINI_API_ENDPOINT", ""),
		GeminiModelPrimary:  getEnv("GEMINI_MODEL_PRIMARY", "gemini-3-pro-preview"),
		GeminiModelFallback: getEnv("GEMINI_MODEL_FALLBACK", "gemini-2.5-flash-lite"),
		GeminiModelImage:    getEnv("GEMINI_MODEL_IMAGE", "gemini-3-pro-image-preview"),
		GeminiModelTTS:      getEnv("GEMINI_MODEL_TTS", "gemini-2.5-pro-preview-tts"),
		GeminiTTSVoice:      getEnv("GEMINI_TTS_VOICE", "Zephyr"),

		StoryLanguage:    getEnv("STORY_LANGUAGE", "Russian"),
		StoryTemperature: getEnvFloat("STORY_TEMPERATURE", 0.9),
		StoryMaxTokens:   getEnvInt("STORY_MAX_TOKENS", 600),

		MaxNameLength:  getEnvInt("MAX_NAME_LENGTH", 64),
		MaxTopicLength: getEnvInt("MAX_TOPIC_LENGTH", 200),
		MaxTTSLength:   getEnvInt("MAX_TTS_LENGTH", 3000),

		FFmpegPath:   getEnv("FFMPEG_PATH", "ffmpeg"),
		VoiceBitrate: getEnv("VOICE_BITRATE", "64k"),

		OptionalStageTimeout: getEnvDuration("OPTIONAL_STAGE_TIMEOUT", 90*time.Second),

		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3Bucket:    getEnv("S3_BUCKET", ""),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3PublicURL: getEnv("S3_PUBLIC_URL", ""),
	}
}

// Validate checks required credentials. Missing credentials are a startup
// failure, not a runtime one.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is not set")
	}
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is not set")
	}
	return nil
}

// ArchiveEnabled reports whether the optional S3 artifact archive is configured.
func (c *Config) ArchiveEnabled() bool {
	return c.S3Bucket != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
