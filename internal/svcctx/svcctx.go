// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/promptlab/internal/config"
	"github.com/jackzampolin/promptlab/internal/defra"
	"github.com/jackzampolin/promptlab/internal/evaluate"
	"github.com/jackzampolin/promptlab/internal/home"
	"github.com/jackzampolin/promptlab/internal/providers"
	"github.com/jackzampolin/promptlab/internal/runs"
	"github.com/jackzampolin/promptlab/internal/store"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Store       store.Store
	Evaluator   *evaluate.Service
	Executor    *runs.Executor
	LLM         *providers.Holder
	Models      *providers.ModelCache
	DefraClient *defra.Client // nil unless the defra backend is in use
	Config      *config.Manager
	Logger      *slog.Logger
	Home        *home.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// StoreFrom extracts the record store from context.
func StoreFrom(ctx context.Context) store.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// EvaluatorFrom extracts the scoring and correction service from context.
func EvaluatorFrom(ctx context.Context) *evaluate.Service {
	if s := ServicesFrom(ctx); s != nil {
		return s.Evaluator
	}
	return nil
}

// ExecutorFrom extracts the run executor from context.
func ExecutorFrom(ctx context.Context) *runs.Executor {
	if s := ServicesFrom(ctx); s != nil {
		return s.Executor
	}
	return nil
}

// LLMFrom extracts the LLM client holder from context.
func LLMFrom(ctx context.Context) *providers.Holder {
	if s := ServicesFrom(ctx); s != nil {
		return s.LLM
	}
	return nil
}

// ModelsFrom extracts the model list cache from context.
func ModelsFrom(ctx context.Context) *providers.ModelCache {
	if s := ServicesFrom(ctx); s != nil {
		return s.Models
	}
	return nil
}

// DefraClientFrom extracts the DefraDB client from context.
func DefraClientFrom(ctx context.Context) *defra.Client {
	if s := ServicesFrom(ctx); s != nil {
		return s.DefraClient
	}
	return nil
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
