package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"catalog-sync/internal/config"
	"catalog-sync/internal/logger"
	"catalog-sync/internal/store"
)

// writeConfig writes a sqlite-backed config under a temp dir and returns its
// path and the database DSN.
func writeConfig(t *testing.T, extra string) (string, string) {
	t.Helper()
	t.Setenv("CATALOG_CONFIG", "")
	dir := t.TempDir()
	dsn := filepath.Join(dir, "catalog.db")
	body := "partner:\n  short_code: edx\n" +
		"database:\n  driver: sqlite\n  dsn: " + dsn + "\n" +
		"logging:\n  mode: prod\n" + extra
	path := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path, dsn
}

func TestSelectLoaders(t *testing.T) {
	testCases := []struct {
		args     []string
		expected []string
	}{
		{args: []string{"all"}, expected: ingestOrder},
		{args: []string{"courses", "all"}, expected: ingestOrder},
		{args: []string{"programs", "organizations"}, expected: []string{"organizations", "programs"}},
		{args: []string{"ecommerce", "ecommerce"}, expected: []string{"ecommerce"}},
	}

	for _, tc := range testCases {
		t.Run(strings.Join(tc.args, ","), func(t *testing.T) {
			if got := selectLoaders(tc.args); !slices.Equal(got, tc.expected) {
				t.Errorf("Expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestIngestRejectsUnknownCollection(t *testing.T) {
	for _, args := range [][]string{{"ingest"}, {"ingest", "courses", "employees"}} {
		if err := run(context.Background(), args); err == nil {
			t.Errorf("Expected error for %v, got nil", args)
		}
	}
}

func TestMigrate(t *testing.T) {
	path, dsn := writeConfig(t, "")
	if err := run(context.Background(), []string{"--config", path, "migrate"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := os.Stat(dsn); err != nil {
		t.Errorf("Expected database file to exist, got %v", err)
	}
}

func TestIngestOrganizations(t *testing.T) {
	var (
		mu   sync.Mutex
		auth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/organizations/v0/organizations/" {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		auth = r.Header.Get("Authorization")
		mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"count":   1,
			"results": []any{map[string]any{"key": "MITx", "name": "MIT"}},
		})
	}))
	defer srv.Close()

	path, dsn := writeConfig(t, "upstream:\n  organizations_url: "+srv.URL+"/api/organizations/v0/\n  access_token: secret\n  max_attempts: 1\n")
	if err := run(context.Background(), []string{"--config", path, "ingest", "organizations"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	mu.Lock()
	got := auth
	mu.Unlock()
	if got != "JWT secret" {
		t.Errorf("Expected JWT authorization header, got %q", got)
	}

	s, err := store.Open(config.DatabaseConfig{Driver: "sqlite", DSN: dsn}, logger.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	partner, err := s.EnsurePartner(ctx, config.PartnerConfig{ShortCode: "edx"})
	if err != nil {
		t.Fatalf("partner: %v", err)
	}
	org, err := s.OrganizationByKey(ctx, partner.ID, "MITx")
	if err != nil {
		t.Fatalf("Expected organization MITx, got %v", err)
	}
	if org.Name != "MIT" {
		t.Errorf("Expected name MIT, got %q", org.Name)
	}
}

func TestIngestNeedsUpstreamURL(t *testing.T) {
	path, _ := writeConfig(t, "")
	err := run(context.Background(), []string{"--config", path, "ingest", "courses"})
	if err == nil || !strings.Contains(err.Error(), "upstream.courses_url") {
		t.Errorf("Expected missing courses url error, got %v", err)
	}
}

func TestPublishNeedsMarketingSite(t *testing.T) {
	path, _ := writeConfig(t, "")
	err := run(context.Background(), []string{"--config", path, "publish", "course-runs"})
	if err == nil || !strings.Contains(err.Error(), "marketing.publish_enabled") {
		t.Errorf("Expected publishing disabled error, got %v", err)
	}
}
