// Package settings reads storefront parameters and canned chat messages from
// the content backend.
package settings

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"ourofino-storefront/internal/domain"
	"ourofino-storefront/internal/strapi"
)

// LoginRequiredSlug names the parameter that forces sign-in before chatting.
const LoginRequiredSlug = "login-requerido-atendimento"

// DefaultMessage is a canned message offered to customers as a suggestion.
type DefaultMessage struct {
	ID     int    `json:"id"`
	Text   string `json:"message"`
	Sender string `json:"sender,omitempty"`
}

type Repository interface {
	// Flag returns the boolean parameter with the given slug.
	Flag(ctx context.Context, slug string) (bool, error)
	DefaultMessages(ctx context.Context) ([]DefaultMessage, error)
}

type strapiRepo struct {
	client *strapi.Client
	logger *zap.Logger
}

func NewStrapi(client *strapi.Client, logger *zap.Logger) Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &strapiRepo{client: client, logger: logger}
}

func (r *strapiRepo) Flag(ctx context.Context, slug string) (bool, error) {
	resp, err := r.client.List(ctx, "parametros", strapi.NewQuery().Filter("slug", strapi.Eq, slug))
	if err != nil {
		return false, err
	}
	if len(resp.Data) == 0 {
		return false, domain.ErrNotFound
	}
	var a struct {
		Configuracao bool `json:"configuracao"`
	}
	if err := resp.Data[0].Decode(&a); err != nil {
		return false, err
	}
	return a.Configuracao, nil
}

func (r *strapiRepo) DefaultMessages(ctx context.Context) ([]DefaultMessage, error) {
	resp, err := r.client.List(ctx, "default-messages", strapi.NewQuery().Populate("*"))
	if err != nil {
		return nil, err
	}
	out := make([]DefaultMessage, 0, len(resp.Data))
	for _, e := range resp.Data {
		var a struct {
			Mensagem  string `json:"mensagem"`
			Remetente string `json:"remetente"`
		}
		if err := e.Decode(&a); err != nil {
			r.logger.Warn("settings repo: skip default message", zap.Int("id", e.ID), zap.Error(err))
			continue
		}
		if a.Mensagem == "" {
			continue
		}
		out = append(out, DefaultMessage{ID: e.ID, Text: a.Mensagem, Sender: a.Remetente})
	}
	return out, nil
}

// LoginRequired resolves the sign-in parameter, falling back to def when the
// parameter is missing or the backend is unreachable.
func LoginRequired(ctx context.Context, repo Repository, def bool, logger *zap.Logger) bool {
	v, err := repo.Flag(ctx, LoginRequiredSlug)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) && logger != nil {
			logger.Warn("login-required parameter unavailable, using default", zap.Bool("default", def), zap.Error(err))
		}
		return def
	}
	return v
}
