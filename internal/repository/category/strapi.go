package category

import (
	"context"

	"go.uber.org/zap"

	"ourofino-storefront/internal/domain"
	"ourofino-storefront/internal/strapi"
)

type strapiRepo struct {
	client *strapi.Client
	logger *zap.Logger
}

// NewStrapi returns a Repository over the collections endpoint. Categories are
// read from each collection's populated "categoria" relation.
func NewStrapi(client *strapi.Client, logger *zap.Logger) Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &strapiRepo{client: client, logger: logger}
}

type collectionAttrs struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Slug        string          `json:"slug"`
	Categoria   strapi.Relation `json:"categoria"`
}

type categoryAttrs struct {
	Nome string `json:"nome"`
}

func (r *strapiRepo) ListCollections(ctx context.Context) ([]domain.Collection, []domain.Category, error) {
	resp, err := r.client.List(ctx, "collections", strapi.NewQuery().Populate("*"))
	if err != nil {
		return nil, nil, err
	}

	collections := make([]domain.Collection, 0, len(resp.Data))
	categories := make(map[int]string)
	for _, e := range resp.Data {
		var a collectionAttrs
		if err := e.Decode(&a); err != nil {
			r.logger.Warn("category repo: skip undecodable collection", zap.Int("id", e.ID), zap.Error(err))
			continue
		}
		c := domain.Collection{
			ID:          e.ID,
			Name:        a.Name,
			Description: a.Description,
			Slug:        a.Slug,
		}
		if c.Slug == "" {
			c.Slug = domain.Slugify(a.Name)
		}
		if a.Categoria.Data != nil {
			var cat categoryAttrs
			if err := a.Categoria.Data.Decode(&cat); err == nil {
				c.CategoryID = a.Categoria.Data.ID
				categories[c.CategoryID] = cat.Nome
			}
		}
		collections = append(collections, c)
	}

	out := make([]domain.Category, 0, len(categories))
	for id, name := range categories {
		out = append(out, domain.Category{ID: id, Name: name})
	}
	return collections, out, nil
}
