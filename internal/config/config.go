package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string
	PublicHost  string // externally reachable host for the TwiML stream URL

	GroqKey     string
	GroqModelID string
	DeepgramKey string

	ChromaURL        string
	ChromaCollection string

	VADAggressiveness int

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseBucket         string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it: %v", err)
	}

	cfg := Config{
		HTTPAddress:            getEnv("HTTP_ADDRESS", ":8080"),
		PublicHost:             os.Getenv("PUBLIC_HOST"),
		GroqKey:                os.Getenv("GROQ_API_KEY"),
		GroqModelID:            getEnv("GROQ_MODEL_ID", "llama-3.3-70b-versatile"),
		DeepgramKey:            os.Getenv("DEEPGRAM_API_KEY"),
		ChromaURL:              getEnv("CHROMA_URL", "http://localhost:8000"),
		ChromaCollection:       getEnv("CHROMA_COLLECTION", "decision_rules"),
		VADAggressiveness:      getEnvInt("VAD_AGGRESSIVENESS", 2),
		TwilioAccountSID:       os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:        os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:       os.Getenv("TWILIO_FROM_NUMBER"),
		SupabaseURL:            os.Getenv("SUPABASE_URL"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:         getEnv("SUPABASE_BUCKET", "call-transcripts"),
	}

	if cfg.GroqKey == "" {
		log.Println("Warning: GROQ_API_KEY not set - the dialogue agent will not work")
	}
	if cfg.DeepgramKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - speech in and out will not work")
	}
	if cfg.TwilioAuthToken == "" {
		log.Println("Warning: TWILIO_AUTH_TOKEN not set - webhook signatures will not be checked and outbound calls are disabled")
	}
	if cfg.SupabaseURL == "" || cfg.SupabaseServiceRoleKey == "" {
		log.Println("Warning: Supabase credentials not set - transcripts will not be archived")
	}

	log.Printf("config: HTTP_ADDRESS=%s", cfg.HTTPAddress)
	return cfg
}

// Validate reports whether the keys the call path cannot run without are set.
func (c Config) Validate() error {
	if c.GroqKey == "" {
		return fmt.Errorf("GROQ_API_KEY is required")
	}
	if c.DeepgramKey == "" {
		return fmt.Errorf("DEEPGRAM_API_KEY is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: %s=%q is not a number, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}
