package programs

import (
	"context"
	"net/url"
	"strconv"

	"catalog-sync/internal/providers"
)

// BannerSize is the banner rendition stored on programs.
const BannerSize = "w1440h480"

type Program struct {
	UUID            string            `json:"uuid"`
	Name            string            `json:"name"`
	Subtitle        string            `json:"subtitle"`
	MarketingSlug   string            `json:"marketing_slug"`
	Status          string            `json:"status"`
	BannerImageURLs map[string]string `json:"banner_image_urls"`
	Organizations   []struct {
		Key string `json:"key"`
	} `json:"organizations"`
	CourseCodes []struct {
		RunModes []struct {
			CourseKey string `json:"course_key"`
		} `json:"run_modes"`
	} `json:"course_codes"`
}

// OrganizationKeys returns the authoring organization keys in listed order.
func (p Program) OrganizationKeys() []string {
	keys := make([]string, 0, len(p.Organizations))
	for _, o := range p.Organizations {
		keys = append(keys, o.Key)
	}
	return keys
}

// RunKeys flattens every run mode's course key.
func (p Program) RunKeys() []string {
	var keys []string
	for _, cc := range p.CourseCodes {
		for _, rm := range cc.RunModes {
			keys = append(keys, rm.CourseKey)
		}
	}
	return keys
}

type Client struct {
	API *providers.Client
}

func New(api *providers.Client) *Client {
	return &Client{API: api}
}

func (c *Client) List(ctx context.Context, page, pageSize int) (*providers.Page[Program], error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	var out providers.Page[Program]
	if err := c.API.GetJSON(ctx, "programs/", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download fetches a banner image; the status is returned for the caller to judge.
func (c *Client) Download(ctx context.Context, rawURL string) (int, []byte, error) {
	return c.API.Fetch(ctx, rawURL)
}
