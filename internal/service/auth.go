package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pinboard/event-delivery-service/config"
	"github.com/pinboard/event-delivery-service/internal/domain/model"
)

var (
	ErrUnauthenticated = errors.New("service: unauthenticated")
	ErrAuthTimeout     = errors.New("service: credential verification timed out")
)

// Auther turns an opaque bearer credential into a verified identity.
type Auther interface {
	Inspect(ctx context.Context, token string) (model.Identity, error)
}

var _ Auther = (*AuthService)(nil)

type AuthService struct {
	secret []byte
	issuer string

	// [HOT_PATH] verified tokens, keyed by the raw credential
	cache  *expirable.LRU[string, model.Identity]
	verify func(token string) (model.Identity, error)
	now    func() time.Time
}

func NewAuthService(cfg config.AuthConfig) *AuthService {
	size := cfg.CacheSize
	if size <= 0 {
		size = 1024
	}
	a := &AuthService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		cache:  expirable.NewLRU[string, model.Identity](size, nil, cfg.CacheTTL),
		now:    time.Now,
	}
	a.verify = a.parse
	return a
}

// Inspect honors ctx: a verification that outlives the deadline fails with ErrAuthTimeout,
// it never degrades to an anonymous identity.
func (a *AuthService) Inspect(ctx context.Context, token string) (model.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.Identity{}, fmt.Errorf("%w: missing credential", ErrUnauthenticated)
	}

	if id, ok := a.cache.Get(token); ok {
		if id.Valid(a.now()) {
			return id, nil
		}
		a.cache.Remove(token)
	}

	type result struct {
		id  model.Identity
		err error
	}
	done := make(chan result, 1)
	go func() {
		id, err := a.verify(token)
		done <- result{id, err}
	}()

	select {
	case <-ctx.Done():
		return model.Identity{}, fmt.Errorf("%w: %w", ErrAuthTimeout, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return model.Identity{}, r.err
		}
		if !r.id.Valid(a.now()) {
			return model.Identity{}, fmt.Errorf("%w: expired", ErrUnauthenticated)
		}
		a.cache.Add(token, r.id)
		return r.id, nil
	}
}

func (a *AuthService) parse(token string) (model.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...); err != nil {
		return model.Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return model.Identity{}, fmt.Errorf("%w: subject is required", ErrUnauthenticated)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return model.Identity{}, fmt.Errorf("%w: exp is required", ErrUnauthenticated)
	}

	return model.Identity{
		UserID:    sub,
		Roles:     roles(claims),
		ExpiresAt: exp.Time,
	}, nil
}

// roles accepts "roles" as a list and "scope" as a list or a space separated string.
func roles(claims jwt.MapClaims) []string {
	var out []string
	for _, key := range []string{"roles", "scope"} {
		switch v := claims[key].(type) {
		case string:
			out = append(out, strings.Fields(v)...)
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					out = append(out, s)
				}
			}
		}
	}
	return out
}
