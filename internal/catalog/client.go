package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client talks to the product-catalog service. The bidding core only needs
// two things from it: available inventory for a product, and the product
// ids belonging to a category (for auction list filtering).
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

type productResponse struct {
	Data struct {
		Product struct {
			ID        string `json:"id"`
			Inventory struct {
				Quantity int `json:"quantity"`
			} `json:"inventory"`
		} `json:"product"`
	} `json:"data"`
}

// Available returns the product's current inventory quantity.
func (c *Client) Available(ctx context.Context, productID string) (int, error) {
	var resp productResponse
	if err := c.get(ctx, fmt.Sprintf("/api/products/%s", url.PathEscape(productID)), &resp); err != nil {
		return 0, err
	}
	return resp.Data.Product.Inventory.Quantity, nil
}

type productListResponse struct {
	Data struct {
		Products []struct {
			ID string `json:"id"`
		} `json:"products"`
	} `json:"data"`
}

// ProductIDsByCategory resolves a category filter into product ids.
func (c *Client) ProductIDsByCategory(ctx context.Context, category string) ([]string, error) {
	var resp productListResponse
	path := "/api/products?category=" + url.QueryEscape(category)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Data.Products))
	for _, p := range resp.Data.Products {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building catalog request: %w", err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling catalog service: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("catalog: %s not found", path)
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog returned status %d for %s", res.StatusCode, path)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding catalog response: %w", err)
	}
	return nil
}
