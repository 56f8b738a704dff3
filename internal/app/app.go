// Package app wires configuration, storage, identity and audit into the
// Lambda request handler.
package app

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/notely/notely/internal/adapter"
	"github.com/notely/notely/internal/adapter/googledrive"
	"github.com/notely/notely/internal/adapter/memory"
	"github.com/notely/notely/internal/adapter/postgres"
	"github.com/notely/notely/internal/audit"
	"github.com/notely/notely/internal/auth"
	"github.com/notely/notely/internal/config"
	"github.com/notely/notely/internal/crypto"
	"github.com/notely/notely/internal/handler"
	"github.com/notely/notely/internal/secret"
)

// App holds the dependencies for the Lambda function.
type App struct {
	authHandler   *handler.AuthHandler
	folderHandler *handler.FolderHandler
	noteHandler   *handler.NoteHandler
	eventHandler  *handler.EventHandler

	devMode          bool
	frontendURL      string
	apiGatewaySecret string

	audit   *audit.Audit
	closers []func()
}

// Deps are the collaborators App is assembled from.
type Deps struct {
	Config  config.Config
	Secrets secret.Secrets
	Auth    *auth.AuthService
	// Storage serves non-demo users; demo users always get Demo.
	Storage adapter.StorageProvider
	Demo    adapter.StorageProvider
	Events  audit.Log
}

// NewWithDeps assembles an App and starts its audit recorder.
func NewWithDeps(ctx context.Context, d Deps) (*App, error) {
	if d.Demo == nil {
		d.Demo = memory.NewProvider()
	}
	if d.Events == nil {
		d.Events = audit.NewMemoryLog()
	}

	a := audit.New(d.Events, d.Config.AuditTopic)
	if err := a.Start(ctx); err != nil {
		return nil, err
	}
	storage := audit.NewProvider(NewHybridProvider(d.Storage, d.Demo), a.Publisher)
	jwtSecret := d.Secrets.JWTSecret

	return &App{
		authHandler:      handler.NewAuthHandler(d.Auth, storage, jwtSecret, d.Config.FrontendURL, d.Config.DevMode),
		folderHandler:    handler.NewFolderHandler(storage, jwtSecret),
		noteHandler:      handler.NewNoteHandler(storage, jwtSecret),
		eventHandler:     handler.NewEventHandler(a.Log, jwtSecret),
		devMode:          d.Config.DevMode,
		frontendURL:      d.Config.FrontendURL,
		apiGatewaySecret: d.Secrets.APIGatewaySecret,
		audit:            a,
	}, nil
}

// New builds the App described by cfg: AWS clients, secrets, the token
// cipher and the storage backend.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var resolver secret.Resolver
	if cfg.DevMode {
		resolver = secret.NewEnvResolver()
		log.Info().Msg("secrets from environment (DEV_MODE)")
	} else {
		resolver = secret.NewCached(secret.NewSSMResolver(ssm.NewFromConfig(awsCfg)))
	}
	secrets, err := secret.Load(ctx, resolver, cfg)
	if err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}

	var cipher crypto.Cipher
	if cfg.DevMode {
		cipher = crypto.NewSecretBoxCipher(secrets.TokenKey)
		log.Info().Msg("refresh tokens sealed with secretbox (DEV_MODE)")
	} else {
		cipher = crypto.NewKMSCipher(kms.NewFromConfig(awsCfg), cfg.KMSKeyID)
	}

	// nil clients keep tokens, demo records and events in process memory
	var tokensDB auth.DynamoAPI
	var recordsDB memory.DynamoAPI
	var eventsDB audit.DynamoAPI
	if cfg.UseDynamo {
		client := dynamodb.NewFromConfig(awsCfg)
		tokensDB, recordsDB, eventsDB = client, client, client
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: secrets.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/drive.file",
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}
	authService := auth.NewAuthService(oauthConfig, tokensDB, cfg.UserTokensTable, cipher)

	demo := memory.NewProvider(memory.WithDynamo(recordsDB, cfg.FileStoreTable))
	d := Deps{Config: cfg, Secrets: secrets, Auth: authService, Demo: demo}
	if eventsDB != nil {
		d.Events = audit.NewDynamoLog(eventsDB, cfg.EventsTable)
	}

	var closers []func()
	switch cfg.StorageBackend {
	case config.StoragePostgres:
		pool, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		closers = append(closers, pool.Close)
		d.Storage = postgres.NewProvider(pool)
		d.Events = audit.NewPostgresLog(pool)
	case config.StorageMemory:
		d.Storage = memory.NewProvider(memory.WithDynamo(recordsDB, cfg.FileStoreTable), memory.WithoutLimits())
	case config.StorageDrive:
		d.Storage = googledrive.NewProvider(authService)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	log.Info().Str("backend", cfg.StorageBackend).Bool("dynamodb", cfg.UseDynamo).Msg("storage configured")

	a, err := NewWithDeps(ctx, d)
	if err != nil {
		for _, c := range closers {
			c()
		}
		return nil, err
	}
	a.closers = closers
	return a, nil
}

// Close stops the audit recorder and releases database connections.
func (app *App) Close() {
	if err := app.audit.Close(); err != nil {
		log.Warn().Err(err).Msg("close audit pub/sub")
	}
	for _, c := range app.closers {
		c()
	}
}
