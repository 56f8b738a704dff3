// Package config loads backend settings from the environment. A .env file in
// the working directory is read first when present.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Storage backends selectable with STORAGE_BACKEND.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageDrive    = "drive"
)

// Config holds every backend setting. Secrets are not stored here; the
// *Param fields name the SSM parameters (or env vars in dev mode) that hold
// them.
type Config struct {
	DevMode     bool
	Port        string
	FrontendURL string
	LogLevel    string
	LogPretty   bool

	StorageBackend  string
	DatabaseURL     string
	UseDynamo       bool // tokens, memory records and audit events in DynamoDB
	FileStoreTable  string
	UserTokensTable string
	EventsTable     string
	AuditTopic      string

	KMSKeyID          string
	GoogleClientID    string
	GoogleRedirectURL string

	GoogleClientSecretParam string
	JWTSecretParam          string
	APIGatewaySecretParam   string
	TokenKeyParam           string
}

// Load reads .env (if any) and the process environment.
func Load() Config {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from lookup, applying defaults for unset keys.
func FromLookup(lookup func(string) (string, bool)) Config {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}
	devMode, _ := strconv.ParseBool(get("DEV_MODE", "false"))
	pretty, _ := strconv.ParseBool(get("LOG_PRETTY", strconv.FormatBool(devMode)))
	// Dev mode talks to DynamoDB only when pointed at a local endpoint.
	useDynamo, _ := strconv.ParseBool(get("USE_DYNAMODB", strconv.FormatBool(!devMode || get("AWS_ENDPOINT_URL", "") != "")))

	c := Config{
		DevMode:     devMode,
		Port:        get("PORT", "8080"),
		FrontendURL: strings.TrimSuffix(get("FRONTEND_URL", "http://localhost:3000"), "/"),
		LogLevel:    get("LOG_LEVEL", "info"),
		LogPretty:   pretty,

		StorageBackend:  strings.ToLower(get("STORAGE_BACKEND", "")),
		DatabaseURL:     get("DATABASE_URL", ""),
		UseDynamo:       useDynamo,
		FileStoreTable:  get("FILE_STORE_TABLE", "FileStore"),
		UserTokensTable: get("USER_TOKENS_TABLE", "UserTokens"),
		EventsTable:     get("EVENTS_TABLE", "Events"),
		AuditTopic:      get("AUDIT_TOPIC", "notely.audit"),

		KMSKeyID:          get("KMS_KEY_ID", "alias/notely-token-key"),
		GoogleClientID:    get("GOOGLE_CLIENT_ID", ""),
		GoogleRedirectURL: get("GOOGLE_REDIRECT_URL", ""),

		GoogleClientSecretParam: get("GOOGLE_CLIENT_SECRET_PARAM", "/notely/google-client-secret"),
		JWTSecretParam:          get("JWT_SECRET_PARAM", "/notely/jwt-secret"),
		APIGatewaySecretParam:   get("API_GATEWAY_SECRET_PARAM", "/notely/api-gateway-secret"),
		TokenKeyParam:           get("TOKEN_KEY_PARAM", "/notely/token-key"),
	}
	if c.StorageBackend == "" {
		switch {
		case c.DatabaseURL != "":
			c.StorageBackend = StoragePostgres
		case c.DevMode:
			c.StorageBackend = StorageMemory
		default:
			c.StorageBackend = StorageDrive
		}
	}
	if c.GoogleRedirectURL == "" {
		if c.DevMode {
			c.GoogleRedirectURL = "http://localhost:" + c.Port + "/auth/callback"
		} else {
			c.GoogleRedirectURL = c.FrontendURL + "/api/auth/callback"
		}
	}
	return c
}
