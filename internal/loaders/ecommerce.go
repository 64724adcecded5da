package loaders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"catalog-sync/internal/concurrency"
	"catalog-sync/internal/domain"
	"catalog-sync/internal/logger"
	"catalog-sync/internal/mappers"
	"catalog-sync/internal/metrics"
	"catalog-sync/internal/providers"
	"catalog-sync/internal/providers/ecommerce"
	"catalog-sync/internal/store"
)

// EcommerceLoader mirrors seats, entitlements and enrollment codes.
type EcommerceLoader struct {
	partner *domain.Partner
	api     *ecommerce.Client
	store   *store.Store
	opts    Options
	log     *logger.Logger

	mu              sync.Mutex
	entitlementSKUs []string
	enrollmentSKUs  []string
}

func NewEcommerceLoader(partner *domain.Partner, api *ecommerce.Client, s *store.Store, opts Options, log *logger.Logger) *EcommerceLoader {
	return &EcommerceLoader{
		partner: partner,
		api:     api,
		store:   s,
		opts:    opts,
		log:     log.With("loader", "ecommerce"),
	}
}

func (l *EcommerceLoader) Name() string { return "ecommerce" }

func (l *EcommerceLoader) Ingest(ctx context.Context) error {
	l.log.Info("refreshing course seats", "url", l.api.API.BaseURL)

	l.mu.Lock()
	l.entitlementSKUs = nil
	l.enrollmentSKUs = nil
	l.mu.Unlock()

	// Every collection's first page is in hand before anything is written.
	var (
		runs         *providers.Page[ecommerce.CourseRun]
		entitlements *providers.Page[ecommerce.Product]
		codes        *providers.Page[ecommerce.Product]
	)
	firstPages := []func(ctx context.Context) error{
		func(ctx context.Context) (err error) { runs, err = l.fetchCourseRuns(ctx, 1); return err },
		func(ctx context.Context) (err error) { entitlements, err = l.fetchEntitlements(ctx, 1); return err },
		func(ctx context.Context) (err error) { codes, err = l.fetchEnrollmentCodes(ctx, 1); return err },
	}
	errs := concurrency.ForEach(ctx, firstPages, concurrency.ParallelOptions{MaxWorkers: l.opts.MaxWorkers},
		func(ctx context.Context, _ int, fetch func(context.Context) error) error {
			return fetch(ctx)
		})
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if err := l.processCourseRuns(ctx, 1, runs); err != nil {
		return err
	}
	if err := l.processEntitlements(ctx, 1, entitlements); err != nil {
		return err
	}
	if err := l.processEnrollmentCodes(ctx, 1, codes); err != nil {
		return err
	}

	p := newPager(l.opts.MaxWorkers, l.store.ConcurrentWrites(), 0)
	size := l.opts.pageSize()
	if err := walkPages(ctx, p, pageRange(2, providers.PageCount(runs.Count, size)), l.fetchCourseRuns, l.processCourseRuns); err != nil {
		return err
	}
	if err := walkPages(ctx, p, pageRange(2, providers.PageCount(entitlements.Count, size)), l.fetchEntitlements, l.processEntitlements); err != nil {
		return err
	}
	if err := walkPages(ctx, p, pageRange(2, providers.PageCount(codes.Count, size)), l.fetchEnrollmentCodes, l.processEnrollmentCodes); err != nil {
		return err
	}

	accepted, applied := l.skus()
	l.log.Info("retrieved e-commerce products",
		"course_seats", runs.Count,
		"course_entitlements", entitlements.Count,
		"enrollment_codes", codes.Count,
		"entitlements_kept", len(accepted),
		"enrollment_codes_applied", len(applied),
		"url", l.api.API.BaseURL,
	)

	if err := l.deleteEntitlements(ctx); err != nil {
		return err
	}
	return deleteOrphans(ctx, l.store, l.log)
}

func (l *EcommerceLoader) fetchCourseRuns(ctx context.Context, page int) (*providers.Page[ecommerce.CourseRun], error) {
	resp, err := l.api.CourseRuns(ctx, page, l.opts.pageSize())
	if err != nil {
		return nil, fmt.Errorf("list course seats page %d: %w", page, err)
	}
	return resp, nil
}

func (l *EcommerceLoader) fetchEntitlements(ctx context.Context, page int) (*providers.Page[ecommerce.Product], error) {
	resp, err := l.api.Products(ctx, page, l.opts.pageSize(), ecommerce.ClassEntitlement)
	if err != nil {
		return nil, fmt.Errorf("list entitlements page %d: %w", page, err)
	}
	return resp, nil
}

func (l *EcommerceLoader) fetchEnrollmentCodes(ctx context.Context, page int) (*providers.Page[ecommerce.Product], error) {
	resp, err := l.api.Products(ctx, page, l.opts.pageSize(), ecommerce.ClassEnrollmentCode)
	if err != nil {
		return nil, fmt.Errorf("list enrollment codes page %d: %w", page, err)
	}
	return resp, nil
}

// skip logs records that reference something missing and lets every other
// error through.
func (l *EcommerceLoader) skip(err error, kind string) error {
	if errors.Is(err, ErrMissingReference) {
		record(l.Name(), metrics.OutcomeSkipped)
		l.log.Warn("skipping "+kind, "reason", err.Error())
		return nil
	}
	return err
}

func (l *EcommerceLoader) processCourseRuns(ctx context.Context, _ int, page *providers.Page[ecommerce.CourseRun]) error {
	l.log.Info("processing course seats", "count", len(page.Results))
	for _, body := range page.Results {
		if err := l.skip(l.updateSeats(ctx, body), "course seats"); err != nil {
			return err
		}
	}
	return nil
}

func (l *EcommerceLoader) processEntitlements(ctx context.Context, _ int, page *providers.Page[ecommerce.Product]) error {
	l.log.Info("processing course entitlements", "count", len(page.Results))
	for _, body := range page.Results {
		sku, err := l.updateEntitlement(ctx, body)
		if err := l.skip(err, "entitlement"); err != nil {
			return err
		}
		if sku != "" {
			l.mu.Lock()
			l.entitlementSKUs = append(l.entitlementSKUs, sku)
			l.mu.Unlock()
		}
	}
	return nil
}

func (l *EcommerceLoader) processEnrollmentCodes(ctx context.Context, _ int, page *providers.Page[ecommerce.Product]) error {
	l.log.Info("processing course enrollment codes", "count", len(page.Results))
	for _, body := range page.Results {
		sku, err := l.updateEnrollmentCode(ctx, body)
		if err := l.skip(err, "enrollment code"); err != nil {
			return err
		}
		if sku != "" {
			l.mu.Lock()
			l.enrollmentSKUs = append(l.enrollmentSKUs, sku)
			l.mu.Unlock()
		}
	}
	return nil
}

func certificateType(p ecommerce.Product) string {
	if t := strings.TrimSpace(p.AttributesByName()["certificate_type"]); t != "" {
		return t
	}
	return domain.SeatTypeAudit
}

// updateSeats upserts the run's seat products and removes seats whose
// certificate type the run no longer sells.
func (l *EcommerceLoader) updateSeats(ctx context.Context, body ecommerce.CourseRun) error {
	run, err := l.store.CourseRunByKey(ctx, strings.TrimSpace(body.ID), true)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: course run %s", ErrMissingReference, body.ID)
	}
	if err != nil {
		return err
	}

	var types []string
	for _, product := range body.Products {
		if product.Structure != ecommerce.StructureChild {
			continue
		}
		types = append(types, certificateType(product))
		if err := l.skip(l.updateSeat(ctx, run, product), "seat"); err != nil {
			return err
		}
	}

	n, err := l.store.DeleteSeatsExceptTypes(ctx, run.ID, types)
	if err != nil {
		return fmt.Errorf("delete seats for %s: %w", run.Key, err)
	}
	if n > 0 {
		metrics.OrphansDeleted.WithLabelValues("seat").Add(float64(n))
	}
	return nil
}

func (l *EcommerceLoader) updateSeat(ctx context.Context, run *domain.CourseRun, product ecommerce.Product) error {
	if len(product.StockRecords) == 0 {
		return fmt.Errorf("%w: seat product %d has no stockrecords", ErrMissingReference, product.ID)
	}
	stock := product.StockRecords[0]
	currency, price, sku, err := readStockRecord(stock)
	if err != nil {
		return fmt.Errorf("%w: seat product %d: %v", ErrMissingReference, product.ID, err)
	}
	if _, err := l.store.CurrencyByCode(ctx, currency); errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: currency %s", ErrMissingReference, currency)
	} else if err != nil {
		return err
	}

	attrs := product.AttributesByName()
	seat := domain.Seat{
		CourseRunID:     run.ID,
		Type:            certificateType(product),
		CreditProvider:  strings.TrimSpace(attrs["credit_provider"]),
		CurrencyCode:    currency,
		Price:           price,
		SKU:             sku,
		UpgradeDeadline: mappers.ParseDate(product.Expires),
	}
	if v := strings.TrimSpace(attrs["credit_hours"]); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("seat product %d credit_hours %q: %w", product.ID, v, err)
		}
		seat.CreditHours = &hours
	}

	created, err := l.store.UpsertSeat(ctx, &seat)
	if err != nil {
		return err
	}
	record(l.Name(), outcome(created))
	return nil
}

// readStockRecord extracts the fields every product needs from its first stockrecord.
func readStockRecord(stock ecommerce.StockRecord) (currency string, price decimal.Decimal, sku string, err error) {
	if stock.PriceCurrency == nil || strings.TrimSpace(*stock.PriceCurrency) == "" {
		return "", price, "", errors.New("missing price_currency")
	}
	if stock.PartnerSKU == nil {
		return "", price, "", errors.New("missing partner_sku")
	}
	price, err = stock.Price()
	if err != nil {
		return "", price, "", fmt.Errorf("price_excl_tax: %w", err)
	}
	return strings.TrimSpace(*stock.PriceCurrency), price, strings.TrimSpace(*stock.PartnerSKU), nil
}

// validateProduct checks the stockrecord and currency of an entitlement or
// enrollment code and returns the stockrecord fields.
func (l *EcommerceLoader) validateProduct(ctx context.Context, body ecommerce.Product, kind string) (string, decimal.Decimal, string, error) {
	title := strings.TrimSpace(body.Title)
	if len(body.StockRecords) == 0 {
		return "", decimal.Decimal{}, "", fmt.Errorf("%w: %s product %s has no stockrecords", ErrMissingReference, kind, title)
	}
	currency, price, sku, err := readStockRecord(body.StockRecords[0])
	if err != nil {
		return "", decimal.Decimal{}, "", fmt.Errorf("%w: a necessary stockrecord field is missing or incorrectly set for %s %s: %v",
			ErrMissingReference, kind, title, err)
	}
	if _, err := l.store.CurrencyByCode(ctx, currency); errors.Is(err, store.ErrNotFound) {
		return "", decimal.Decimal{}, "", fmt.Errorf("%w: could not find currency %s while loading %s %s with sku %s",
			ErrMissingReference, currency, kind, title, sku)
	} else if err != nil {
		return "", decimal.Decimal{}, "", err
	}
	return currency, price, sku, nil
}

// updateEntitlement returns the entitlement's SKU once it is stored.
func (l *EcommerceLoader) updateEntitlement(ctx context.Context, body ecommerce.Product) (string, error) {
	currency, price, sku, err := l.validateProduct(ctx, body, "entitlement")
	if err != nil {
		return "", err
	}
	attrs := body.AttributesByName()
	title := strings.TrimSpace(body.Title)

	courseUUID, err := uuid.Parse(strings.TrimSpace(attrs["UUID"]))
	if err != nil {
		return "", fmt.Errorf("%w: could not find course %q while loading entitlement %s with sku %s",
			ErrMissingReference, attrs["UUID"], title, sku)
	}
	course, err := l.store.CourseByUUID(ctx, courseUUID)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: could not find course %s while loading entitlement %s with sku %s",
			ErrMissingReference, courseUUID, title, sku)
	}
	if err != nil {
		return "", err
	}

	modeName := strings.TrimSpace(attrs["certificate_type"])
	mode, err := l.store.SeatTypeBySlug(ctx, modeName)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: could not find mode %s while loading entitlement %s with sku %s",
			ErrMissingReference, modeName, title, sku)
	}
	if err != nil {
		return "", err
	}

	e := domain.CourseEntitlement{
		CourseID:     course.ID,
		ModeID:       mode.ID,
		PartnerID:    l.partner.ID,
		Price:        price,
		CurrencyCode: currency,
		SKU:          sku,
		Expires:      mappers.ParseDate(body.Expires),
	}
	created, err := l.store.UpsertEntitlement(ctx, &e)
	if err != nil {
		return "", err
	}
	record(l.Name(), outcome(created))
	l.log.Info("stored entitlement", "title", title, "sku", sku, "partner", l.partner.ShortCode)
	return sku, nil
}

// updateEnrollmentCode stamps the code's SKU on the matching seats and returns it.
func (l *EcommerceLoader) updateEnrollmentCode(ctx context.Context, body ecommerce.Product) (string, error) {
	_, _, sku, err := l.validateProduct(ctx, body, "enrollment code")
	if err != nil {
		return "", err
	}
	attrs := body.AttributesByCode()
	title := strings.TrimSpace(body.Title)
	courseKey := strings.TrimSpace(attrs["course_key"])

	run, err := l.store.CourseRunByKey(ctx, courseKey, false)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: could not find course run %s while loading enrollment code %s with sku %s",
			ErrMissingReference, courseKey, title, sku)
	}
	if err != nil {
		return "", err
	}

	seatType := strings.TrimSpace(attrs["seat_type"])
	err = l.store.SetBulkSKU(ctx, run.ID, seatType, sku)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: could not find seat type %s while loading enrollment code %s with sku %s",
			ErrMissingReference, seatType, title, sku)
	}
	if err != nil {
		return "", err
	}
	record(l.Name(), metrics.OutcomeUpdated)
	l.log.Info("stored enrollment code", "title", title, "sku", sku, "partner", l.partner.ShortCode)
	return sku, nil
}

// deleteEntitlements removes partner entitlements whose SKU no page returned.
func (l *EcommerceLoader) deleteEntitlements(ctx context.Context) error {
	l.mu.Lock()
	skus := append([]string(nil), l.entitlementSKUs...)
	l.mu.Unlock()

	n, err := l.store.DeleteEntitlementsExceptSKUs(ctx, l.partner.ID, skus)
	if err != nil {
		return fmt.Errorf("delete entitlements: %w", err)
	}
	if n > 0 {
		metrics.OrphansDeleted.WithLabelValues("entitlement").Add(float64(n))
		l.log.Info("deleted entitlements missing upstream", "count", n, "partner", l.partner.ShortCode)
	}
	return nil
}

// skus returns the entitlement SKUs accepted and the enrollment code SKUs
// applied by the last ingest.
func (l *EcommerceLoader) skus() (entitlements, enrollmentCodes []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entitlementSKUs...), append([]string(nil), l.enrollmentSKUs...)
}
