package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	OCR     OCRConfig
	Face    FaceConfig
	LLM     LLMConfig
	Storage StorageConfig
	Google  GoogleConfig
	Log     LogConfig
}

// ServerConfig holds transport-related configuration
type ServerConfig struct {
	HTTPAddr       string
	GRPCAddr       string // empty disables the gRPC health endpoint
	MaxUploadMB    int
	RequestTimeout time.Duration
	Workers        int
	QueueSize      int
}

// OCRConfig selects and tunes the text recognizer
type OCRConfig struct {
	Engine        string // tesseract | tesseract-cli | cloudvision
	Tesseract     string // binary for tesseract-cli
	TesseractLang string
	TessdataDir   string
}

// FaceConfig selects the face detector
type FaceConfig struct {
	Engine    string // dlib | cloudvision | none
	ModelsDir string
	UseCNN    bool
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Provider        string // openai | gemini
	Model           string
	APIKey          string
	BaseURL         string
	GeminiAPIKey    string
	GeminiModel     string
	Temperature     float32
	Timeout         time.Duration
	MaxRetries      int
	MalformedPolicy string // null-fill | reject
}

// StorageConfig selects where face crops are written
type StorageConfig struct {
	Backend    string // fs | sqlite | postgres | memory
	FaceDir    string
	SQLitePath string
	DSN        string
	MaxConns   int32
}

// GoogleConfig holds the Cloud Vision credential
type GoogleConfig struct {
	APIKey string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:       getEnv("HTTP_ADDR", ":"+getEnv("PORT", "5000")),
			GRPCAddr:       getEnv("GRPC_ADDR", ""),
			MaxUploadMB:    getEnvAsInt("MAX_UPLOAD_MB", 10),
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 2*time.Minute),
			Workers:        getEnvAsInt("WORKERS", 4),
			QueueSize:      getEnvAsInt("QUEUE_SIZE", 64),
		},
		OCR: OCRConfig{
			Engine:        strings.ToLower(getEnv("OCR_ENGINE", "tesseract")),
			Tesseract:     getEnv("TESSERACT_BIN", "tesseract"),
			TesseractLang: getEnv("TESSERACT_LANG", "eng"),
			TessdataDir:   getEnv("TESSDATA_PREFIX", ""),
		},
		Face: FaceConfig{
			Engine:    strings.ToLower(getEnv("FACE_ENGINE", "dlib")),
			ModelsDir: getEnv("DLIB_MODELS_DIR", "./models"),
			UseCNN:    getEnvAsBool("DLIB_USE_CNN", false),
		},
		LLM: LLMConfig{
			Provider:        strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
			Model:           getEnv("OPENAI_MODEL", "gpt-4"),
			APIKey:          getEnv("OPENAI_API_KEY", ""),
			BaseURL:         getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
			GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			Temperature:     getEnvAsFloat32("LLM_TEMPERATURE", 0.2),
			Timeout:         getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
			MaxRetries:      getEnvAsInt("LLM_MAX_RETRIES", 3),
			MalformedPolicy: strings.ToLower(getEnv("MALFORMED_POLICY", "null-fill")),
		},
		Storage: StorageConfig{
			Backend:    strings.ToLower(getEnv("STORAGE_BACKEND", "fs")),
			FaceDir:    getEnv("FACE_DIR", "reference_faces"),
			SQLitePath: getEnv("SQLITE_PATH", "faces.db"),
			DSN:        getEnv("DB_URL", ""),
			MaxConns:   getEnvAsInt32("DB_MAX_CONNS", 10),
		},
		Google: GoogleConfig{
			APIKey: getEnv("GOOGLE_API_KEY", ""),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks enum settings and the credentials the selected engines need.
func (c *Config) Validate() error {
	cloudVision := c.OCR.Engine == "cloudvision" || c.Face.Engine == "cloudvision"

	v := NewValidator().
		Check("HTTP_ADDR", c.Server.HTTPAddr, Required, ListenAddr).
		CheckIf(c.Server.GRPCAddr != "", "GRPC_ADDR", c.Server.GRPCAddr, ListenAddr).
		Check("MAX_UPLOAD_MB", c.Server.MaxUploadMB, Positive).
		Check("WORKERS", c.Server.Workers, Positive).
		Check("QUEUE_SIZE", c.Server.QueueSize, Positive).
		Check("REQUEST_TIMEOUT", c.Server.RequestTimeout, Positive).
		Check("OCR_ENGINE", c.OCR.Engine, OneOf("tesseract", "tesseract-cli", "cloudvision")).
		Check("FACE_ENGINE", c.Face.Engine, OneOf("dlib", "cloudvision", "none")).
		Check("LLM_PROVIDER", c.LLM.Provider, OneOf("openai", "gemini")).
		Check("LLM_TIMEOUT", c.LLM.Timeout, Positive).
		Check("MALFORMED_POLICY", c.LLM.MalformedPolicy, OneOf("null-fill", "reject")).
		Check("STORAGE_BACKEND", c.Storage.Backend, OneOf("fs", "sqlite", "postgres", "memory")).
		CheckIf(c.LLM.Provider == "openai", "OPENAI_API_KEY", c.LLM.APIKey, Required).
		CheckIf(c.LLM.Provider == "gemini", "GEMINI_API_KEY", c.LLM.GeminiAPIKey, Required).
		CheckIf(cloudVision, "GOOGLE_API_KEY", c.Google.APIKey, Required).
		CheckIf(c.Face.Engine == "dlib", "DLIB_MODELS_DIR", c.Face.ModelsDir, Required).
		CheckIf(c.Storage.Backend == "fs", "FACE_DIR", c.Storage.FaceDir, Required).
		CheckIf(c.Storage.Backend == "sqlite", "SQLITE_PATH", c.Storage.SQLitePath, Required).
		CheckIf(c.Storage.Backend == "postgres", "DB_URL", c.Storage.DSN, Required)

	if v.HasErrors() {
		return &AppError{Code: CodeConfig, Message: v.ErrorMessage(), Cause: ErrInvalidConfig}
	}
	return nil
}
