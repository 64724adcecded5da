package ecommerce

import (
	"context"
	"net/url"
	"strconv"

	"catalog-sync/internal/providers"
)

type Client struct {
	API *providers.Client
}

func New(api *providers.Client) *Client {
	return &Client{API: api}
}

// CourseRuns lists course runs with their seat products.
func (c *Client) CourseRuns(ctx context.Context, page, pageSize int) (*providers.Page[CourseRun], error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	q.Set("include_products", "true")

	var out providers.Page[CourseRun]
	if err := c.API.GetJSON(ctx, "courses/", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Products lists standalone products of one class.
func (c *Client) Products(ctx context.Context, page, pageSize int, productClass string) (*providers.Page[Product], error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	q.Set("product_class", productClass)

	var out providers.Page[Product]
	if err := c.API.GetJSON(ctx, "products/", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
