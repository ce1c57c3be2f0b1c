package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalogServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/products/maize-aa", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"product":{"id":"maize-aa","inventory":{"quantity":120}}}}`)
	})
	mux.HandleFunc("/api/products", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("category") {
		case "cereals":
			fmt.Fprint(w, `{"data":{"products":[{"id":"maize-aa"},{"id":"wheat-1"}]}}`)
		case "empty":
			fmt.Fprint(w, `{"data":{"products":[]}}`)
		default:
			http.Error(w, "unknown category", http.StatusInternalServerError)
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestAvailable(t *testing.T) {
	server := newCatalogServer(t)
	client := NewClient(server.URL)

	qty, err := client.Available(context.Background(), "maize-aa")
	require.NoError(t, err)
	assert.Equal(t, 120, qty)
}

func TestAvailable_UnknownProduct(t *testing.T) {
	server := newCatalogServer(t)
	client := NewClient(server.URL)

	_, err := client.Available(context.Background(), "no-such-product")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestProductIDsByCategory(t *testing.T) {
	server := newCatalogServer(t)
	client := NewClient(server.URL)

	ids, err := client.ProductIDsByCategory(context.Background(), "cereals")
	require.NoError(t, err)
	assert.Equal(t, []string{"maize-aa", "wheat-1"}, ids)

	ids, err = client.ProductIDsByCategory(context.Background(), "empty")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestProductIDsByCategory_UpstreamError(t *testing.T) {
	server := newCatalogServer(t)
	client := NewClient(server.URL)

	_, err := client.ProductIDsByCategory(context.Background(), "unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
