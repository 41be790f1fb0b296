package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	// Matrix holds the homeserver-facing identity of this application service.
	Matrix MatrixConfig

	// DB is the homeserver database used for read-only directory lookups.
	DB DBConfig

	// Store is the database holding the gateway's own tables. When its Type
	// is blank the gateway shares the homeserver connection.
	Store DBConfig

	SMTP SMTPConfig
}

// MatrixConfig configures the appservice listener.
type MatrixConfig struct {
	// Domain is the local homeserver domain; invites for users on any other
	// domain are ignored.
	Domain string

	// Localpart namespaces the durable transaction results of this listener.
	Localpart string

	// HSToken is the shared secret the homeserver presents on every push.
	HSToken string
}

// DBConfig describes one database connection.
type DBConfig struct {
	Type            string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxIdleConn     int
	MaxOpenConn     int
	ConnMaxLifetime int
}

// SMTPConfig configures the outbound email provider.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "matrixgw"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8090"),
		Matrix: MatrixConfig{
			Domain:    strings.TrimSpace(getenv("MATRIX_DOMAIN", "")),
			Localpart: getenv("APPSVC_LOCALPART", "appservice"),
			HSToken:   strings.TrimSpace(getenv("APPSVC_HS_TOKEN", "")),
		},
		DB:    loadDB("DATABASE", DBConfig{Type: "postgres", Name: "synapse", User: "synapse"}),
		Store: loadDB("STORE_DATABASE", DBConfig{}),
		SMTP: SMTPConfig{
			Host:     getenv("SMTP_HOST", ""),
			Port:     getenvInt("SMTP_PORT", 587),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", ""),
		},
	}
}

func loadDB(prefix string, def DBConfig) DBConfig {
	return DBConfig{
		Type:            getenv(prefix+"_TYPE", def.Type),
		Host:            getenv(prefix+"_HOST", "localhost"),
		Port:            getenv(prefix+"_PORT", "5432"),
		Name:            getenv(prefix+"_NAME", def.Name),
		User:            getenv(prefix+"_USER", def.User),
		Password:        getenv(prefix+"_PASSWORD", ""),
		SSLMode:         getenv(prefix+"_SSLMODE", "disable"),
		MaxIdleConn:     getenvInt(prefix+"_MAX_IDLE_CONN", 2),
		MaxOpenConn:     getenvInt(prefix+"_MAX_OPEN_CONN", 10),
		ConnMaxLifetime: getenvInt(prefix+"_CONN_MAX_LIFETIME", 3600),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
