package product

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"ourofino-storefront/internal/domain"
	"ourofino-storefront/internal/strapi"
)

const collection = "products"

type strapiRepo struct {
	client *strapi.Client
	logger *zap.Logger
}

// NewStrapi returns a Repository reading the catalog from the content backend.
func NewStrapi(client *strapi.Client, logger *zap.Logger) Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &strapiRepo{client: client, logger: logger}
}

type sizeStockAttrs struct {
	Estoque int `json:"estoque"`
	Tamanho int `json:"tamanho"`
}

type variantAttrs struct {
	Classificacao   string           `json:"classificacao"`
	Preco           float64          `json:"preco"`
	Descricao       string           `json:"descricao"`
	TamanhoMinimo   flexInt          `json:"tamanho_minimo"`
	TamanhoMaximo   flexInt          `json:"tamanho_maximo"`
	TamanhosEstoque []sizeStockAttrs `json:"tamanhos_estoque"`
}

type variantsPriceAttrs struct {
	Variantes []variantAttrs `json:"variantes"`
}

type productAttrs struct {
	Name            string              `json:"name"`
	Description     string              `json:"description"`
	Active          bool                `json:"active"`
	Hot             bool                `json:"hot"`
	DestaqueVitrine bool                `json:"destaque_vitrine"`
	PricePrimary    *float64            `json:"price_primary"`
	VariantsPrice   *variantsPriceAttrs `json:"variants_price"`
	Largura         float64             `json:"largura"`
	Altura          float64             `json:"altura"`
	Comprimento     float64             `json:"comprimento"`
	Peso            float64             `json:"peso"`
	Material        string              `json:"material"`
	Images          strapi.Media        `json:"images"`
	Collection      strapi.Relation     `json:"collection"`
	CreatedAt       time.Time           `json:"createdAt"`
}

// flexInt accepts ring sizes stored either as numbers or numeric strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("size %q: %w", s, err)
	}
	*f = flexInt(n)
	return nil
}

func toDomain(e strapi.Entity) (domain.Product, error) {
	var a productAttrs
	if err := e.Decode(&a); err != nil {
		return domain.Product{}, err
	}
	p := domain.Product{
		ID:          e.ID,
		Name:        a.Name,
		Description: a.Description,
		Active:      a.Active,
		Hot:         a.Hot,
		Showcase:    a.DestaqueVitrine,
		Width:       a.Largura,
		Height:      a.Altura,
		Length:      a.Comprimento,
		Weight:      a.Peso,
		Material:    a.Material,
		Images:      a.Images.URLs(),
		CreatedAt:   a.CreatedAt,
	}
	if a.PricePrimary != nil {
		cents := domain.Cents(*a.PricePrimary)
		p.PrimaryPriceCents = &cents
	}
	if a.VariantsPrice != nil {
		for _, v := range a.VariantsPrice.Variantes {
			variant := domain.Variant{
				Tier:        v.Classificacao,
				PriceCents:  domain.Cents(v.Preco),
				Description: v.Descricao,
				MinSize:     int(v.TamanhoMinimo),
				MaxSize:     int(v.TamanhoMaximo),
			}
			for _, s := range v.TamanhosEstoque {
				variant.Stock = append(variant.Stock, domain.SizeStock{Size: s.Tamanho, Stock: s.Estoque})
			}
			p.Variants = append(p.Variants, variant)
		}
	}
	if a.Collection.Data != nil {
		p.CollectionID = a.Collection.Data.ID
	}
	return p, nil
}

func (r *strapiRepo) List(ctx context.Context, params ListParams) ([]domain.Product, error) {
	q := strapi.NewQuery().Populate("*").Page(params.Page, params.PageSize)
	for _, f := range params.Filters {
		op, ok := strapi.ParseOperator(f.Operator)
		if !ok {
			return nil, fmt.Errorf("%w: operator %q", domain.ErrInvalidInput, f.Operator)
		}
		q.Filter(f.Field, op, f.Value)
	}
	if params.SortBy != "" {
		q.Sort(params.SortBy, params.SortDesc)
	}

	resp, err := r.client.List(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(resp.Data))
	for _, e := range resp.Data {
		p, err := toDomain(e)
		if err != nil {
			r.logger.Warn("product repo: skip undecodable product", zap.Int("id", e.ID), zap.Error(err))
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *strapiRepo) GetByID(ctx context.Context, id int) (*domain.Product, error) {
	e, err := r.client.Get(ctx, collection, id, strapi.NewQuery().Populate("*"))
	if err != nil {
		return nil, err
	}
	p, err := toDomain(*e)
	if err != nil {
		return nil, fmt.Errorf("decode product %d: %w", id, err)
	}
	return &p, nil
}

// Upsert creates the product, or updates it when it carries an existing id.
func (r *strapiRepo) Upsert(ctx context.Context, p domain.Product) (*domain.Product, error) {
	data := fromDomain(p)
	var (
		e   *strapi.Entity
		err error
	)
	if p.ID > 0 {
		e, err = r.client.Update(ctx, collection, p.ID, data)
		if errors.Is(err, domain.ErrNotFound) {
			e, err = r.client.Create(ctx, collection, data)
		}
	} else {
		e, err = r.client.Create(ctx, collection, data)
	}
	if err != nil {
		return nil, err
	}
	p.ID = e.ID
	return &p, nil
}

func fromDomain(p domain.Product) map[string]any {
	data := map[string]any{
		"name":             p.Name,
		"description":      p.Description,
		"active":           p.Active,
		"hot":              p.Hot,
		"destaque_vitrine": p.Showcase,
		"largura":          p.Width,
		"altura":           p.Height,
		"comprimento":      p.Length,
		"peso":             p.Weight,
	}
	if p.Material != "" {
		data["material"] = p.Material
	}
	if p.PrimaryPriceCents != nil {
		data["price_primary"] = domain.Amount(*p.PrimaryPriceCents)
	}
	if len(p.Variants) > 0 {
		variants := make([]map[string]any, 0, len(p.Variants))
		for _, v := range p.Variants {
			stock := make([]map[string]any, 0, len(v.Stock))
			for _, s := range v.Stock {
				stock = append(stock, map[string]any{"tamanho": s.Size, "estoque": s.Stock})
			}
			variants = append(variants, map[string]any{
				"classificacao":    v.Tier,
				"preco":            domain.Amount(v.PriceCents),
				"descricao":        v.Description,
				"tamanho_minimo":   strconv.Itoa(v.MinSize),
				"tamanho_maximo":   strconv.Itoa(v.MaxSize),
				"tamanhos_estoque": stock,
			})
		}
		data["variants_price"] = map[string]any{"variantes": variants}
	}
	if p.CollectionID > 0 {
		data["collection"] = strapi.Connect(p.CollectionID)
	}
	return data
}
