package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Engine struct {
	// MatchInterval is the sleep between matching passes. A pass always runs
	// to completion before the next tick is armed.
	MatchInterval time.Duration
}

type Storage struct {
	DataDir string // pebble database directory
	KeyFile string // engine keypair location, separate from the pebble dir
}

type API struct {
	Addr           string
	AllowedOrigins []string
}

type Config struct {
	Engine  Engine
	Storage Storage
	API     API
	LogFile string
}

func Default() Config {
	return Config{
		Engine: Engine{
			MatchInterval: 2 * time.Second,
		},
		Storage: Storage{
			DataDir: "data/darkpool.db",
			KeyFile: "data/keys/engine_keypair.json",
		},
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		LogFile: "data/node.log",
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	if iv := os.Getenv("MATCH_INTERVAL_MS"); iv != "" {
		if ms, err := strconv.Atoi(iv); err == nil {
			cfg.Engine.MatchInterval = time.Duration(ms) * time.Millisecond
		}
	}

	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	if kf := os.Getenv("KEY_FILE"); kf != "" {
		cfg.Storage.KeyFile = kf
	}

	if addr := os.Getenv("API_ADDR"); addr != "" {
		cfg.API.Addr = addr
	}
	if origins := os.Getenv("API_ALLOWED_ORIGINS"); origins != "" {
		// Example: "http://localhost:3000,https://desk.example.com"
		cfg.API.AllowedOrigins = strings.Split(origins, ",")
	}

	if lf := os.Getenv("LOG_FILE"); lf != "" {
		cfg.LogFile = lf
	}

	return cfg
}
