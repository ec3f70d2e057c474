// Package secrets resolves runtime credentials from AWS Secrets Manager
// with an in-memory TTL cache in front. In production the Postgres and
// RabbitMQ credentials live in Secrets Manager; local setups skip this
// entirely by configuring plain URLs.
package secrets

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	pkgsecrets "github.com/freshhhy/rfq-engine/pkg/secrets"
)

// Resolver fetches and caches named secrets.
type Resolver struct {
	logger   *zap.Logger
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[map[string]string]
}

func NewResolver(logger *zap.Logger, provider pkgsecrets.Provider, cache *pkgsecrets.Cache[map[string]string]) *Resolver {
	return &Resolver{logger: logger, provider: provider, cache: cache}
}

// Resolve returns the key-value payload of a secret, cached.
func (r *Resolver) Resolve(ctx context.Context, name string) (map[string]string, error) {
	if values, ok := r.cache.Get(name); ok {
		return values, nil
	}

	values, err := r.provider.GetSecret(ctx, name)
	if err != nil {
		r.logger.Warn("secrets.fetch_failed", zap.String("name", name), zap.Error(err))
		return nil, fmt.Errorf("resolve secret %q: %w", name, err)
	}

	r.cache.Put(name, values)
	r.logger.Info("secrets.resolved", zap.String("name", name))
	return values, nil
}

// DatabaseURL overlays the username and password from the named secret
// onto the configured Postgres URL. An empty secret name returns the
// URL untouched.
func (r *Resolver) DatabaseURL(ctx context.Context, baseURL, secretName string) (string, error) {
	if secretName == "" {
		return baseURL, nil
	}

	values, err := r.Resolve(ctx, secretName)
	if err != nil {
		return "", err
	}
	username, password := values["username"], values["password"]
	if username == "" || password == "" {
		return "", fmt.Errorf("secret %q missing username or password", secretName)
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	u.User = url.UserPassword(username, password)
	return u.String(), nil
}
