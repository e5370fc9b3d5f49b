package strapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ourofino-storefront/internal/domain"
)

func TestQuery_Encode(t *testing.T) {
	q := NewQuery().
		Filter("customer.email", Eq, "a@b.com").
		Filter("id", In, "1, 2").
		Sort("createdAt", true).
		Populate("*")

	values, err := url.ParseQuery(q.Encode())
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", values.Get("filters[customer][email][$eq]"))
	assert.Equal(t, "1", values.Get("filters[id][$in][0]"))
	assert.Equal(t, "2", values.Get("filters[id][$in][1]"))
	assert.Equal(t, "createdAt:desc", values.Get("sort[0]"))
	assert.Equal(t, "*", values.Get("populate"))
}

func TestParseOperator(t *testing.T) {
	op, ok := ParseOperator("containsi")
	assert.True(t, ok)
	assert.Equal(t, ContainsI, op)
	_, ok = ParseOperator("$drop")
	assert.False(t, ok)
}

func TestClient_ListAndCreate(t *testing.T) {
	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/customers":
			assert.Equal(t, "x@y.com", r.URL.Query().Get("filters[email][$eq]"))
			_, _ = io.WriteString(w, `{"data":[{"id":5,"attributes":{"email":"x@y.com"}}],"meta":{"pagination":{"page":1,"pageSize":25,"pageCount":1,"total":1}}}`)
		case r.Method == http.MethodPost && r.URL.Path == "/api/customers":
			raw, _ := io.ReadAll(r.Body)
			gotBody = string(raw)
			_, _ = io.WriteString(w, `{"data":{"id":6,"attributes":{"email":"new@y.com"}}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", srv.Client(), nil)
	ctx := context.Background()

	list, err := c.List(ctx, "customers", NewQuery().Filter("email", Eq, "x@y.com"))
	require.NoError(t, err)
	require.Len(t, list.Data, 1)
	assert.Equal(t, 5, list.Data[0].ID)
	assert.Equal(t, 1, list.Meta.Pagination.Total)
	assert.Equal(t, "Bearer tok", gotAuth)

	var attrs struct {
		Email string `json:"email"`
	}
	require.NoError(t, list.Data[0].Decode(&attrs))
	assert.Equal(t, "x@y.com", attrs.Email)

	created, err := c.Create(ctx, "customers", map[string]any{"email": "new@y.com", "customer": Connect(3)})
	require.NoError(t, err)
	assert.Equal(t, 6, created.ID)

	var envelope map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(gotBody), &envelope))
	assert.Equal(t, "new@y.com", envelope["data"]["email"])

	_, err = c.Get(ctx, "customers", 99, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"invalid"}}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", nil, nil).Create(context.Background(), "orders", map[string]any{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Body, "invalid")
}

func TestMedia_URLs(t *testing.T) {
	var m Media
	require.NoError(t, json.Unmarshal([]byte(`{"data":[{"id":1,"attributes":{"url":"https://img/1.png"}},{"id":2,"attributes":{"url":""}}]}`), &m))
	assert.Equal(t, []string{"https://img/1.png"}, m.URLs())
}
