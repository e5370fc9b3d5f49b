// Package importer loads a spreadsheet export of the jewelry catalog into the
// content backend.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"ourofino-storefront/internal/domain"
)

type ProductWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

// CollectionResolver maps the collection column to a catalog collection.
type CollectionResolver interface {
	CollectionByName(ctx context.Context, name string) (*domain.Collection, error)
}

// CSVImporter reads one product per "name" row. Rows that leave name empty
// continue the previous product with another size tier or image.
type CSVImporter struct {
	reader      *csv.Reader
	products    ProductWriter
	collections CollectionResolver
	logger      *zap.Logger

	collectionIDs map[string]int
}

func NewCSVImporter(r io.Reader, products ProductWriter, collections CollectionResolver, logger *zap.Logger) *CSVImporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1
	csvr.TrimLeadingSpace = true
	return &CSVImporter{
		reader:        csvr,
		products:      products,
		collections:   collections,
		logger:        logger,
		collectionIDs: make(map[string]int),
	}
}

// Result counts what a run did.
type Result struct {
	Imported int
	Skipped  int
}

// Run parses every row and upserts the grouped products. Invalid products are
// logged and skipped; backend failures stop the run.
func (i *CSVImporter) Run(ctx context.Context) (Result, error) {
	var res Result
	headers, err := i.reader.Read()
	if err != nil {
		return res, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	if _, ok := index["name"]; !ok {
		return res, fmt.Errorf("missing name column")
	}

	var current *productRow
	flush := func() error {
		if current == nil {
			return nil
		}
		row := current
		current = nil
		if err := row.validate(); err != nil {
			i.logger.Warn("skipping product", zap.Int("line", row.line), zap.Error(err))
			res.Skipped++
			return nil
		}
		if err := i.save(ctx, row); err != nil {
			return err
		}
		res.Imported++
		return nil
	}

	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read row: %w", err)
		}
		line, _ := i.reader.FieldPos(0)
		r := rowReader{record: record, index: index}

		if name := r.get("name"); name != "" {
			if err := flush(); err != nil {
				return res, err
			}
			current = parseProduct(r, line)
			continue
		}
		if current == nil {
			continue
		}
		if err := current.extend(r); err != nil {
			current.err = fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := flush(); err != nil {
		return res, err
	}
	return res, nil
}

func (i *CSVImporter) save(ctx context.Context, row *productRow) error {
	p := row.product
	if row.collection != "" {
		id, err := i.collectionID(ctx, row.collection)
		if err != nil {
			return err
		}
		p.CollectionID = id
	}
	saved, err := i.products.Upsert(ctx, p)
	if err != nil {
		return fmt.Errorf("upsert product %q: %w", p.Name, err)
	}
	i.logger.Debug("product imported", zap.Int("id", saved.ID), zap.String("name", saved.Name), zap.Int("variants", len(saved.Variants)))
	return nil
}

// collectionID resolves a collection once per run. Unknown collections leave
// the product unassigned.
func (i *CSVImporter) collectionID(ctx context.Context, name string) (int, error) {
	key := strings.ToLower(name)
	if id, ok := i.collectionIDs[key]; ok {
		return id, nil
	}
	if i.collections == nil {
		return 0, nil
	}
	c, err := i.collections.CollectionByName(ctx, name)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		i.logger.Warn("unknown collection", zap.String("collection", name))
		i.collectionIDs[key] = 0
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("resolve collection %q: %w", name, err)
	}
	i.collectionIDs[key] = c.ID
	return c.ID, nil
}

type productRow struct {
	line       int
	product    domain.Product
	collection string
	err        error
}

func parseProduct(r rowReader, line int) *productRow {
	row := &productRow{
		line:       line,
		collection: r.get("collection"),
		product: domain.Product{
			Name:        r.get("name"),
			Description: r.get("description"),
			Material:    r.get("material"),
			Active:      r.flag("active", true),
			Hot:         r.flag("hot", false),
			Showcase:    r.flag("showcase", false),
		},
	}
	var err error
	if s := r.get("id"); s != "" {
		if row.product.ID, err = strconv.Atoi(s); err != nil {
			row.err = fmt.Errorf("invalid id %q", s)
			return row
		}
	}
	if s := r.get("price"); s != "" {
		cents, err := parsePrice(s)
		if err != nil {
			row.err = err
			return row
		}
		row.product.PrimaryPriceCents = &cents
	}
	dims := []struct {
		col string
		dst *float64
	}{
		{"width", &row.product.Width},
		{"height", &row.product.Height},
		{"length", &row.product.Length},
		{"weight", &row.product.Weight},
	}
	for _, d := range dims {
		if s := r.get(d.col); s != "" {
			if *d.dst, err = parseDecimal(s); err != nil {
				row.err = fmt.Errorf("invalid %s %q", d.col, s)
				return row
			}
		}
	}
	if err := row.extend(r); err != nil {
		row.err = err
	}
	return row
}

// extend adds the variant and image columns of a row.
func (p *productRow) extend(r rowReader) error {
	if img := r.get("image"); img != "" {
		p.product.Images = append(p.product.Images, img)
	}
	tier := r.get("variant_tier")
	if tier == "" {
		return nil
	}
	price, err := parsePrice(r.get("variant_price"))
	if err != nil {
		return err
	}
	minSize, err1 := strconv.Atoi(r.get("variant_min_size"))
	maxSize, err2 := strconv.Atoi(r.get("variant_max_size"))
	if err1 != nil || err2 != nil || minSize > maxSize {
		return fmt.Errorf("invalid size range for tier %s", tier)
	}
	p.product.Variants = append(p.product.Variants, domain.Variant{
		Tier:        strings.ToUpper(tier),
		PriceCents:  price,
		Description: r.get("variant_description"),
		MinSize:     minSize,
		MaxSize:     maxSize,
	})
	return nil
}

func (p *productRow) validate() error {
	if p.err != nil {
		return p.err
	}
	if p.product.PrimaryPriceCents == nil && len(p.product.Variants) == 0 {
		return fmt.Errorf("product %q has no price", p.product.Name)
	}
	for i, a := range p.product.Variants {
		for _, b := range p.product.Variants[i+1:] {
			if a.MinSize <= b.MaxSize && b.MinSize <= a.MaxSize {
				return fmt.Errorf("product %q: tiers %s and %s overlap", p.product.Name, a.Tier, b.Tier)
			}
		}
	}
	return nil
}

// parsePrice accepts "1.249,90", "1249.90" or "1249" and returns cents.
func parsePrice(s string) (int64, error) {
	v, err := parseDecimal(strings.TrimPrefix(strings.TrimSpace(s), "R$"))
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	return domain.Cents(v), nil
}

func parseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	return strconv.ParseFloat(s, 64)
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

type rowReader struct {
	record []string
	index  map[string]int
}

func (r rowReader) get(col string) string {
	pos, ok := r.index[col]
	if !ok || pos >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[pos])
}

func (r rowReader) flag(col string, def bool) bool {
	s := r.get(col)
	if s == "" {
		return def
	}
	switch strings.ToLower(s) {
	case "sim", "s", "yes":
		return true
	case "nao", "não", "n", "no":
		return false
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}
