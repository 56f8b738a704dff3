// Package secret resolves the server's secrets from SSM Parameter Store or,
// in dev mode, from environment variables.
package secret

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/notely/notely/internal/config"
)

// SSMClient is the subset of *ssm.Client methods used by SSMResolver.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver retrieves secret values by parameter name.
type Resolver interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SSMResolver reads SecureString parameters.
type SSMResolver struct {
	client SSMClient
}

func NewSSMResolver(client SSMClient) *SSMResolver {
	return &SSMResolver{client: client}
}

func (r *SSMResolver) GetSecret(ctx context.Context, name string) (string, error) {
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("ssm get parameter %q: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("ssm parameter %q has no value", name)
	}
	return *out.Parameter.Value, nil
}

// EnvResolver maps a parameter path to an environment variable by its last
// segment: "/notely/jwt-secret" is read from JWT_SECRET.
type EnvResolver struct {
	lookup func(string) (string, bool)
}

// NewEnvResolver reads the process environment.
func NewEnvResolver() *EnvResolver {
	return &EnvResolver{lookup: os.LookupEnv}
}

// NewLookupResolver reads through lookup instead of the environment.
func NewLookupResolver(lookup func(string) (string, bool)) *EnvResolver {
	return &EnvResolver{lookup: lookup}
}

func (r *EnvResolver) GetSecret(_ context.Context, name string) (string, error) {
	envName := paramNameToEnvVar(name)
	val, ok := r.lookup(envName)
	if !ok || val == "" {
		return "", fmt.Errorf("environment variable %q (from param %q) is not set", envName, name)
	}
	return val, nil
}

// "/notely/google-client-secret" -> "GOOGLE_CLIENT_SECRET"
func paramNameToEnvVar(name string) string {
	parts := strings.Split(name, "/")
	last := parts[len(parts)-1]
	return strings.ToUpper(strings.ReplaceAll(last, "-", "_"))
}

// Cached remembers successful lookups for the life of the process. Warm
// Lambda invocations then skip SSM.
type Cached struct {
	next Resolver
	mu   sync.Mutex
	vals map[string]string
}

func NewCached(next Resolver) *Cached {
	return &Cached{next: next, vals: map[string]string{}}
}

func (c *Cached) GetSecret(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	v, ok := c.vals[name]
	c.mu.Unlock()
	if ok {
		return v, nil
	}
	v, err := c.next.GetSecret(ctx, name)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.vals[name] = v
	c.mu.Unlock()
	return v, nil
}

// Secrets are the values the server needs at startup.
type Secrets struct {
	GoogleClientSecret string
	JWTSecret          string
	APIGatewaySecret   string
	TokenKey           string // secretbox key for dev-mode token encryption
}

// devJWTSecret signs sessions when a dev server has no JWT_SECRET.
const devJWTSecret = "notely-dev-secret"

// Load resolves every secret named by cfg. Outside dev mode the JWT secret
// and API gateway secret are required; in dev mode missing values fall back
// to local defaults.
func Load(ctx context.Context, r Resolver, cfg config.Config) (Secrets, error) {
	var s Secrets
	var err error

	get := func(name string, required bool) string {
		if err != nil {
			return ""
		}
		v, e := r.GetSecret(ctx, name)
		if e != nil {
			if required {
				err = e
			} else {
				log.Debug().Str("param", name).Msg("secret not set")
			}
		}
		return v
	}

	s.GoogleClientSecret = get(cfg.GoogleClientSecretParam, false)
	s.JWTSecret = get(cfg.JWTSecretParam, !cfg.DevMode)
	s.APIGatewaySecret = get(cfg.APIGatewaySecretParam, !cfg.DevMode)
	s.TokenKey = get(cfg.TokenKeyParam, false)
	if err != nil {
		return Secrets{}, err
	}

	if s.JWTSecret == "" {
		log.Warn().Msg("JWT secret not configured, using the dev default")
		s.JWTSecret = devJWTSecret
	}
	if s.TokenKey == "" {
		s.TokenKey = s.JWTSecret
	}
	return s, nil
}
