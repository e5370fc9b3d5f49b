package httpserver

import (
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	productrepo "ourofino-storefront/internal/repository/product"
)

// parseListParams reads filters[field][sub][$op]=value, sort=field:asc|desc,
// page and pageSize.
func parseListParams(q url.Values) (productrepo.ListParams, bool) {
	var params productrepo.ListParams
	keys := make([]string, 0, len(q))
	for key := range q {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !strings.HasPrefix(key, "filters[") || !strings.HasSuffix(key, "]") {
			continue
		}
		parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(key, "filters["), "]"), "][")
		if len(parts) < 2 {
			return params, false
		}
		field := strings.Join(parts[:len(parts)-1], ".")
		for _, v := range q[key] {
			params.Filters = append(params.Filters, productrepo.Filter{Field: field, Operator: parts[len(parts)-1], Value: v})
		}
	}
	if s := q.Get("sort"); s != "" {
		field, dir, _ := strings.Cut(s, ":")
		params.SortBy = field
		params.SortDesc = strings.EqualFold(dir, "desc")
	}
	var err error
	if p := q.Get("page"); p != "" {
		if params.Page, err = strconv.Atoi(p); err != nil {
			return params, false
		}
	}
	if p := q.Get("pageSize"); p != "" {
		if params.PageSize, err = strconv.Atoi(p); err != nil {
			return params, false
		}
	}
	return params, true
}

func (h *handlers) listProducts(c *gin.Context) {
	if col := c.Query("collection"); col != "" {
		id, err := strconv.Atoi(col)
		if err != nil {
			badRequest(c, "invalid collection")
			return
		}
		products, err := h.deps.Products.ByCollection(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": products})
		return
	}
	params, ok := parseListParams(c.Request.URL.Query())
	if !ok {
		badRequest(c, "invalid query")
		return
	}
	products, err := h.deps.Products.List(c.Request.Context(), params)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": products})
}

func (h *handlers) showcase(c *gin.Context) {
	products, err := h.deps.Products.Showcase(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": products})
}

// getProduct returns the product, priced for ?size= when given.
func (h *handlers) getProduct(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	if size, has := c.GetQuery("size"); has {
		priced, err := h.deps.Products.Resolve(c.Request.Context(), id, size)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"product":    priced.Product,
			"size":       priced.Size,
			"priceCents": priced.PriceCents,
			"stock":      priced.Stock,
		})
		return
	}
	p, err := h.deps.Products.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": p})
}

func (h *handlers) listCollections(c *gin.Context) {
	tree, err := h.deps.Categories.Tree(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": tree})
}
