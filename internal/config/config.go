package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Keys      APIKeys
	Ai        AIConfig
	Rag       RagConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	UploadDir          string
	NatsURL            string
	RedisURL           string
	IngestionTopic     string
}

type DatabaseConfig struct {
	Driver     string // "postgres" or "sqlite"
	Connection string
	// VectorConnection points at the pgvector database. Defaults to Connection.
	VectorConnection string
}

type APIKeys struct {
	GoogleGemini string
	Jina         string
	OpenAI       string
	JwtSecret    string
}

type AIConfig struct {
	EmbeddingProvider  string // "gemini", "ollama" or "jina"
	EmbeddingModel     string
	EmbeddingDimension int
	OllamaBaseURL      string
	OpenAIBaseURL      string
	// LLMCandidates is the ordered generation cascade, "provider:model" entries.
	LLMCandidates []string
	FragmentDelay time.Duration
}

type RagConfig struct {
	ChunkSize       int
	ChunkOverlap    int
	TopK            int
	ScoreThreshold  float64
	UpsertBatchSize int
	IngestWorkers   int
	EmbedPerSecond  float64
	QueryAttempts   int
	QueryBackoff    time.Duration
}

type RateLimitConfig struct {
	RegisterPerMinute int
	LoginPerMinute    int
	UploadPerMinute   int
	ChatPerMinute     int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	dbConnection := getEnv("DB_CONNECTION_STRING", "")

	environment := getEnv("GO_ENV", "development")
	jwtSecret, err := resolveJwtSecret(getEnv("JWT_SECRET", ""), environment)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "8000"),
			Environment:        environment,
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			UploadDir:          getEnv("UPLOAD_DIR", "uploaded_docs"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			IngestionTopic:     getEnv("INGESTION_TOPIC_NAME", "INGEST_DOCUMENT"),
		},
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "postgres"),
			Connection:       dbConnection,
			VectorConnection: getEnv("VECTOR_DB_CONNECTION_STRING", dbConnection),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_API_KEY", ""),
			Jina:         getEnv("JINA_API_KEY", ""),
			OpenAI:       getEnv("OPENAI_API_KEY", ""),
			JwtSecret:    jwtSecret,
		},
		Ai: AIConfig{
			EmbeddingProvider:  getEnv("EMBEDDING_PROVIDER", "gemini"),
			EmbeddingModel:     getEnv("EMBEDDING_MODEL", ""),
			EmbeddingDimension: getEnvAsInt("EMBEDDING_DIMENSION", 768),
			OllamaBaseURL:      getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://router.huggingface.co/v1"),
			LLMCandidates: getEnvAsList("LLM_CANDIDATES", []string{
				"gemini:gemini-2.5-flash",
				"gemini:gemini-2.0-flash",
				"gemini:gemini-flash-latest",
			}),
			FragmentDelay: getEnvAsDuration("LLM_FRAGMENT_DELAY", 10*time.Millisecond),
		},
		Rag: RagConfig{
			ChunkSize:       getEnvAsInt("RAG_CHUNK_SIZE", 1000),
			ChunkOverlap:    getEnvAsInt("RAG_CHUNK_OVERLAP", 200),
			TopK:            getEnvAsInt("RAG_TOP_K", 5),
			ScoreThreshold:  getEnvAsFloat("RAG_SCORE_THRESHOLD", 0.30),
			UpsertBatchSize: getEnvAsInt("RAG_UPSERT_BATCH_SIZE", 100),
			IngestWorkers:   getEnvAsInt("RAG_INGEST_WORKERS", 4),
			EmbedPerSecond:  getEnvAsFloat("RAG_EMBED_PER_SECOND", 10),
			QueryAttempts:   getEnvAsInt("RAG_QUERY_EMBED_ATTEMPTS", 3),
			QueryBackoff:    getEnvAsDuration("RAG_QUERY_EMBED_BACKOFF", time.Second),
		},
		RateLimit: RateLimitConfig{
			RegisterPerMinute: getEnvAsInt("RATE_LIMIT_REGISTER", 5),
			LoginPerMinute:    getEnvAsInt("RATE_LIMIT_LOGIN", 10),
			UploadPerMinute:   getEnvAsInt("RATE_LIMIT_UPLOAD", 10),
			ChatPerMinute:     getEnvAsInt("RATE_LIMIT_CHAT", 20),
		},
	}
}

// resolveJwtSecret refuses an unset secret in production. Elsewhere it
// generates one per process, so tokens do not outlive a restart.
func resolveJwtSecret(secret, environment string) (string, error) {
	if secret != "" {
		return secret, nil
	}
	if environment == "production" {
		return "", errors.New("JWT_SECRET must be set when GO_ENV=production")
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate JWT secret: %w", err)
	}
	log.Println("Warning: JWT_SECRET not set, using a random secret for this process")
	return hex.EncodeToString(buf), nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsList splits a comma separated value, dropping empty entries.
func getEnvAsList(key string, fallback []string) []string {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(strValue, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
