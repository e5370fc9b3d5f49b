package category

import (
	"context"
	"sort"
	"strings"

	"ourofino-storefront/internal/domain"
	"ourofino-storefront/internal/repository/category"
)

type Service struct {
	repo category.Repository
}

func New(repo category.Repository) *Service {
	return &Service{repo: repo}
}

// Tree groups collections under their categories, ordered by id.
func (s *Service) Tree(ctx context.Context) ([]domain.Category, error) {
	collections, categories, err := s.repo.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int]*domain.Category, len(categories))
	for i := range categories {
		categories[i].Collections = []domain.Collection{}
		byID[categories[i].ID] = &categories[i]
	}
	for _, c := range collections {
		if cat, ok := byID[c.CategoryID]; ok {
			cat.Collections = append(cat.Collections, c)
		}
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].ID < categories[j].ID })
	return categories, nil
}

// CollectionByName matches a collection by name or slug, case-insensitively.
func (s *Service) CollectionByName(ctx context.Context, name string) (*domain.Collection, error) {
	collections, _, err := s.repo.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range collections {
		if strings.EqualFold(c.Name, name) || strings.EqualFold(c.Slug, name) {
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}
