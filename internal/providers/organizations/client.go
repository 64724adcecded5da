package organizations

import (
	"context"
	"net/url"
	"strconv"

	"catalog-sync/internal/providers"
)

type Organization struct {
	Key         string  `json:"key"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Logo        *string `json:"logo"`
}

type Client struct {
	API *providers.Client
}

func New(api *providers.Client) *Client {
	return &Client{API: api}
}

func (c *Client) List(ctx context.Context, page, pageSize int) (*providers.Page[Organization], error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	var out providers.Page[Organization]
	if err := c.API.GetJSON(ctx, "organizations/", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
