package auth

import (
	"context"
	"errors"
)

var ErrNoToken = errors.New("auth: no token available")

// StaticToken hands out a fixed bearer token, typically read from the config
// or the environment.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	if t == "" {
		return "", ErrNoToken
	}
	return string(t), nil
}

// TokenFunc adapts a function to a token source, for callers that refresh
// credentials out of band.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}
