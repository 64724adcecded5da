package loaders

import (
	"context"
	"net/http"
	"slices"
	"testing"

	"catalog-sync/internal/domain"
	"catalog-sync/internal/logger"
	"catalog-sync/internal/providers/organizations"
	"catalog-sync/internal/store/testutil"
)

func organizationsAPI(t *testing.T, pages ...[]map[string]any) *organizations.Client {
	t.Helper()
	return organizations.New(newAPI(t, "organizations", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/organizations/" {
			http.NotFound(w, r)
			return
		}
		page := 1
		if v := r.URL.Query().Get("page"); v == "2" {
			page = 2
		}
		var next *string
		if page < len(pages) {
			u := "http://upstream/organizations/?page=2"
			next = &u
		}
		count := 0
		for _, p := range pages {
			count += len(p)
		}
		writeJSON(w, map[string]any{"count": count, "next": next, "results": pages[page-1]})
	})))
}

func orgKeys(t *testing.T, orgs []domain.Organization) []string {
	t.Helper()
	keys := make([]string, 0, len(orgs))
	for _, o := range orgs {
		keys = append(keys, o.Key)
	}
	slices.Sort(keys)
	return keys
}

func TestOrganizationsIngest(t *testing.T) {
	ctx := context.Background()
	s := testutil.Store(t)
	partner := testutil.Partner(t, s, "edx", "")
	other := testutil.Partner(t, s, "other", "")

	for _, key := range []string{"X", "Y", "Z"} {
		if _, err := s.GetOrCreateOrganization(ctx, partner.ID, key); err != nil {
			t.Fatalf("seed org: %v", err)
		}
	}
	if _, err := s.GetOrCreateOrganization(ctx, other.ID, "X"); err != nil {
		t.Fatalf("seed org: %v", err)
	}

	logo := "https://img/z.png"
	api := organizationsAPI(t,
		[]map[string]any{{"key": "z", "name": " Zeta ", "description": "Z org", "logo": logo}},
		[]map[string]any{{"key": "NEW", "name": "New Org", "logo": nil}},
	)

	l := NewOrganizationsLoader(partner, api, s, Options{PageSize: 1}, logger.NewNop())
	if err := l.Ingest(ctx); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	orgs, err := s.ListOrganizations(ctx, partner.ID)
	if err != nil {
		t.Fatalf("list orgs: %v", err)
	}
	if got := orgKeys(t, orgs); !slices.Equal(got, []string{"NEW", "Z"}) {
		t.Fatalf("Expected organizations [NEW Z], got %v", got)
	}

	z, err := s.OrganizationByKey(ctx, partner.ID, "Z")
	if err != nil {
		t.Fatalf("lookup Z: %v", err)
	}
	if z.Key != "Z" {
		t.Errorf("Expected stored key to keep its case, got %q", z.Key)
	}
	if z.Name != "Zeta" || z.LogoImageURL != logo || z.CertificateLogoImageURL != logo {
		t.Errorf("Expected name and logos updated, got %+v", z)
	}

	// Other partners are untouched.
	if others, _ := s.ListOrganizations(ctx, other.ID); len(others) != 1 {
		t.Errorf("Expected the other partner's organization to survive, got %d", len(others))
	}
}

func TestOrganizationsIngestWithMarketingSite(t *testing.T) {
	ctx := context.Background()
	s := testutil.Store(t)
	partner := testutil.Partner(t, s, "edx", "https://marketing.example.com")

	org := domain.Organization{PartnerID: partner.ID, Key: "MITx", Name: "Curated Name"}
	if _, err := s.UpsertOrganization(ctx, &org, "name"); err != nil {
		t.Fatalf("seed org: %v", err)
	}

	api := organizationsAPI(t, []map[string]any{{"key": "MITx", "name": "Upstream Name", "logo": "https://img/mit.png"}})
	l := NewOrganizationsLoader(partner, api, s, Options{}, logger.NewNop())
	if err := l.Ingest(ctx); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	got, err := s.OrganizationByKey(ctx, partner.ID, "MITx")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Name != "Curated Name" {
		t.Errorf("Expected marketing-owned name to be kept, got %q", got.Name)
	}
	if got.LogoImageURL != "" {
		t.Errorf("Expected logo to be left alone, got %q", got.LogoImageURL)
	}
	if got.CertificateLogoImageURL != "https://img/mit.png" {
		t.Errorf("Expected certificate logo updated, got %q", got.CertificateLogoImageURL)
	}
}

func TestOrganizationsIngestUpstreamFailure(t *testing.T) {
	s := testutil.Store(t)
	partner := testutil.Partner(t, s, "edx", "")
	api := organizations.New(newAPI(t, "organizations", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})))

	l := NewOrganizationsLoader(partner, api, s, Options{}, logger.NewNop())
	if err := l.Ingest(context.Background()); err == nil {
		t.Fatal("Expected error, got nil")
	}
}
