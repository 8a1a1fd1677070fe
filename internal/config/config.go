package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	ServerPort         string
	CORSAllowedOrigins []string

	JWTSecret string

	RedisURL string

	// Push provider: "fcm", "expo" or empty for a no-op gateway
	PushProvider   string
	PushBatchSize  int
	FCMProjectID   string
	FCMClientEmail string
	FCMPrivateKey  string

	DispatchWorkers   int
	DispatchQueueSize int
	EventWorkers      int

	ReminderSweepInterval   time.Duration
	ReminderLookahead       time.Duration
	ReminderCleanupInterval time.Duration
	ReminderRetention       time.Duration
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables")
	}

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	sslMode := os.Getenv("DB_SSLMODE")
	if sslMode == "" {
		sslMode = "require"
	}

	var origins []string
	for _, o := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return &Config{
		AppEnv: os.Getenv("APP_ENV"),

		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBSSLMode:  sslMode,

		ServerPort:         serverPort,
		CORSAllowedOrigins: origins,

		JWTSecret: os.Getenv("JWT_SECRET"),

		RedisURL: os.Getenv("REDIS_URL"),

		PushProvider:   strings.ToLower(os.Getenv("PUSH_PROVIDER")),
		PushBatchSize:  intEnv("PUSH_BATCH_SIZE", 500),
		FCMProjectID:   os.Getenv("FCM_PROJECT_ID"),
		FCMClientEmail: os.Getenv("FCM_CLIENT_EMAIL"),
		FCMPrivateKey:  os.Getenv("FCM_PRIVATE_KEY"),

		DispatchWorkers:   intEnv("DISPATCH_WORKERS", 4),
		DispatchQueueSize: intEnv("DISPATCH_QUEUE_SIZE", 256),
		EventWorkers:      intEnv("EVENT_WORKERS", 2),

		ReminderSweepInterval:   durationEnv("REMINDER_SWEEP_INTERVAL", 15*time.Minute),
		ReminderLookahead:       durationEnv("REMINDER_LOOKAHEAD", 5*time.Minute),
		ReminderCleanupInterval: durationEnv("REMINDER_CLEANUP_INTERVAL", 24*time.Hour),
		ReminderRetention:       durationEnv("REMINDER_RETENTION", 7*24*time.Hour),
	}, nil
}

// FCMConfigured reports whether all Firebase service account fields are present.
func (c *Config) FCMConfigured() bool {
	return c.FCMProjectID != "" && c.FCMClientEmail != "" && c.FCMPrivateKey != ""
}

func intEnv(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
