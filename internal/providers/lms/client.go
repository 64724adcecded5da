package lms

import (
	"context"
	"net/url"
	"strconv"

	"catalog-sync/internal/providers"
)

// Block listing parameters.
const (
	BlocksDepth           = "3"
	BlocksRequestedFields = "children,display_name,type,due,graded,special_exam_info,format"
)

type Client struct {
	API *providers.Client
}

func New(api *providers.Client) *Client {
	return &Client{API: api}
}

func (c *Client) Courses(ctx context.Context, page, pageSize int, username string) (*CoursePage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	q.Set("username", username)

	var out CoursePage
	if err := c.API.GetJSON(ctx, "courses/", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CourseDetail(ctx context.Context, courseID, username string) (*CourseDetail, error) {
	q := url.Values{}
	q.Set("username", username)

	var out CourseDetail
	if err := c.API.GetJSON(ctx, "courses/"+url.PathEscape(courseID)+"/", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Blocks lists a course run's outline restricted to the comma-separated block types.
func (c *Client) Blocks(ctx context.Context, courseID, username, typesFilter string) (*Blocks, error) {
	q := url.Values{}
	q.Set("course_id", courseID)
	q.Set("username", username)
	q.Set("depth", BlocksDepth)
	q.Set("block_types_filter", typesFilter)
	q.Set("requested_fields", BlocksRequestedFields)

	var out Blocks
	if err := c.API.GetJSON(ctx, "blocks/", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
