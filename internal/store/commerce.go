package store

import (
	"context"
	"fmt"

	"catalog-sync/internal/domain"
)

func (s *Store) CurrencyByCode(ctx context.Context, code string) (*domain.Currency, error) {
	var c domain.Currency
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) SeatTypeBySlug(ctx context.Context, slug string) (*domain.SeatType, error) {
	var st domain.SeatType
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&st).Error; err != nil {
		return nil, notFound(err)
	}
	return &st, nil
}

// UpsertSeat matches on (course run, type, credit provider, currency).
func (s *Store) UpsertSeat(ctx context.Context, seat *domain.Seat) (bool, error) {
	db := s.db.WithContext(ctx)
	var existing domain.Seat
	err := db.Where(
		"course_run_id = ? AND type = ? AND credit_provider = ? AND currency_code = ?",
		seat.CourseRunID, seat.Type, seat.CreditProvider, seat.CurrencyCode,
	).First(&existing).Error
	switch notFound(err) {
	case nil:
		seat.ID = existing.ID
		seat.BulkSKU = existing.BulkSKU
		err = db.Model(seat).Select("price", "sku", "upgrade_deadline", "credit_hours").Updates(seat).Error
		if err != nil {
			return false, fmt.Errorf("store: update seat: %w", err)
		}
		return false, nil
	case ErrNotFound:
		if err := db.Create(seat).Error; err != nil {
			return false, fmt.Errorf("store: create seat: %w", err)
		}
		return true, nil
	default:
		return false, fmt.Errorf("store: lookup seat: %w", err)
	}
}

// DeleteSeatsExceptTypes removes the run's seats whose type is not in types.
// An empty types removes every seat of the run.
func (s *Store) DeleteSeatsExceptTypes(ctx context.Context, runID uint, types []string) (int64, error) {
	q := s.db.WithContext(ctx).Where("course_run_id = ?", runID)
	if len(types) > 0 {
		q = q.Where("type NOT IN ?", types)
	}
	res := q.Delete(&domain.Seat{})
	return res.RowsAffected, res.Error
}

func (s *Store) SeatsForRun(ctx context.Context, runID uint) ([]domain.Seat, error) {
	var seats []domain.Seat
	err := s.db.WithContext(ctx).Where("course_run_id = ?", runID).Order("id").Find(&seats).Error
	return seats, err
}

// SetBulkSKU stamps every seat of the type on the run. It reports ErrNotFound
// when the run has no such seat.
func (s *Store) SetBulkSKU(ctx context.Context, runID uint, seatType, sku string) error {
	res := s.db.WithContext(ctx).
		Model(&domain.Seat{}).
		Where("course_run_id = ? AND type = ?", runID, seatType).
		Update("bulk_sku", sku)
	if res.Error != nil {
		return fmt.Errorf("store: set bulk sku: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertEntitlement matches on (course, mode).
func (s *Store) UpsertEntitlement(ctx context.Context, e *domain.CourseEntitlement) (bool, error) {
	db := s.db.WithContext(ctx)
	var existing domain.CourseEntitlement
	err := db.Where("course_id = ? AND mode_id = ?", e.CourseID, e.ModeID).First(&existing).Error
	switch notFound(err) {
	case nil:
		e.ID = existing.ID
		err = db.Model(e).Select("partner_id", "price", "currency_code", "sku", "expires").Updates(e).Error
		if err != nil {
			return false, fmt.Errorf("store: update entitlement: %w", err)
		}
		return false, nil
	case ErrNotFound:
		if err := db.Omit("Mode").Create(e).Error; err != nil {
			return false, fmt.Errorf("store: create entitlement: %w", err)
		}
		return true, nil
	default:
		return false, fmt.Errorf("store: lookup entitlement: %w", err)
	}
}

// DeleteEntitlementsExceptSKUs removes the partner's entitlements whose SKU was not seen.
func (s *Store) DeleteEntitlementsExceptSKUs(ctx context.Context, partnerID uint, skus []string) (int64, error) {
	q := s.db.WithContext(ctx).Where("partner_id = ?", partnerID)
	if len(skus) > 0 {
		q = q.Where("sku NOT IN ?", skus)
	}
	res := q.Delete(&domain.CourseEntitlement{})
	return res.RowsAffected, res.Error
}

func (s *Store) EntitlementsForPartner(ctx context.Context, partnerID uint) ([]domain.CourseEntitlement, error) {
	var out []domain.CourseEntitlement
	err := s.db.WithContext(ctx).Preload("Mode").Where("partner_id = ?", partnerID).Order("id").Find(&out).Error
	return out, err
}
