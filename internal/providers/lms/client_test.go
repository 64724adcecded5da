package lms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"catalog-sync/internal/logger"
	"catalog-sync/internal/providers"
)

func TestCoursesAndBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/api/courses/v1/courses/":
			if q.Get("username") != "catalog_worker" || q.Get("page_size") != "50" {
				t.Errorf("Unexpected courses query %q", r.URL.RawQuery)
			}
			w.Write([]byte(`{"results": [{"id": "course-v1:MITx+6.002x+2T2024", "name": "Circuits", "pacing": "instructor",
				"media": {"image": {"raw": "https://img/raw.png"}, "course_video": {"uri": null}}}],
				"pagination": {"count": 51, "num_pages": 2, "next": "https://lms/api/courses/v1/courses/?page=2"}}`))
		case "/api/courses/v1/courses/course-v1:MITx+6.002x+2T2024/":
			w.Write([]byte(`{"id": "course-v1:MITx+6.002x+2T2024", "overview": "<p>Overview</p>"}`))
		case "/api/courses/v1/blocks/":
			if q.Get("block_types_filter") != "chapter,sequential" || q.Get("depth") != BlocksDepth ||
				q.Get("requested_fields") != BlocksRequestedFields || q.Get("course_id") != "course-v1:MITx+6.002x+2T2024" {
				t.Errorf("Unexpected blocks query %q", r.URL.RawQuery)
			}
			w.Write([]byte(`{"root": "r", "blocks": {"c1": {"id": "c1", "block_id": "b1", "type": "chapter", "display_name": "Week 1", "children": ["s1"]}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(providers.NewClient("courses", srv.URL+"/api/courses/v1/", providers.Options{}, logger.NewNop()))
	ctx := context.Background()

	page, err := c.Courses(ctx, 1, 50, "catalog_worker")
	if err != nil {
		t.Fatalf("courses: %v", err)
	}
	if page.Pagination.NumPages != 2 || page.Pagination.Count != 51 || len(page.Results) != 1 {
		t.Errorf("Unexpected page %+v", page.Pagination)
	}
	if page.Results[0].Media.Image.Raw != "https://img/raw.png" || page.Results[0].Media.CourseVideo.URI != nil {
		t.Errorf("Unexpected media %+v", page.Results[0].Media)
	}

	detail, err := c.CourseDetail(ctx, "course-v1:MITx+6.002x+2T2024", "catalog_worker")
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail.Overview != "<p>Overview</p>" {
		t.Errorf("Unexpected overview %q", detail.Overview)
	}

	blocks, err := c.Blocks(ctx, "course-v1:MITx+6.002x+2T2024", "catalog_worker", "chapter,sequential")
	if err != nil {
		t.Fatalf("blocks: %v", err)
	}
	if b := blocks.Blocks["c1"]; b.Type != "chapter" || len(b.Children) != 1 {
		t.Errorf("Unexpected block %+v", b)
	}
}
