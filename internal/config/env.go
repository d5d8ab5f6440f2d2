package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Env struct {
	ListenAddr    string
	DatabaseURL   string
	EventPath     string
	AuditLog      string
	PlannerLogDir string
	RosterPath    string // registration export, verification is off when empty
	LogLevel      string
	AppEnv        string
}

// LoadEnv reads .env style files (missing files are fine) and then the
// process environment. Values already set in the environment win.
func LoadEnv(files ...string) Env {
	for _, f := range files {
		_ = godotenv.Load(f)
	}
	return Env{
		ListenAddr:    getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		EventPath:     getenv("EVENT_CONFIG", "event.yaml"),
		AuditLog:      getenv("AUDIT_LOG", "generated/audit/judging.jsonl"),
		PlannerLogDir: getenv("PLANNER_LOG_DIR", "generated/autoqueue_log"),
		RosterPath:    os.Getenv("ROSTER_CSV"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		AppEnv:        getenv("APP_ENV", "production"),
	}
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
