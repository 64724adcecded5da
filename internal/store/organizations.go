package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"catalog-sync/internal/domain"
)

// OrganizationByKey matches the key case-insensitively within the partner.
func (s *Store) OrganizationByKey(ctx context.Context, partnerID uint, key string) (*domain.Organization, error) {
	var org domain.Organization
	err := s.db.WithContext(ctx).
		Where("partner_id = ?", partnerID).
		Where(iexact("key"), key).
		Order("id").
		First(&org).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &org, nil
}

// UpsertOrganization updates the listed columns of the partner's organization
// matching org.Key (case-insensitively) or creates it.
func (s *Store) UpsertOrganization(ctx context.Context, org *domain.Organization, columns ...string) (bool, error) {
	existing, err := s.OrganizationByKey(ctx, org.PartnerID, org.Key)
	switch {
	case err == ErrNotFound:
		if err := s.db.WithContext(ctx).Create(org).Error; err != nil {
			return false, fmt.Errorf("store: create organization %s: %w", org.Key, err)
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("store: lookup organization %s: %w", org.Key, err)
	}

	org.ID = existing.ID
	org.Key = existing.Key
	if err := s.db.WithContext(ctx).Model(org).Select(columns).Updates(org).Error; err != nil {
		return false, fmt.Errorf("store: update organization %s: %w", org.Key, err)
	}
	return false, nil
}

func (s *Store) GetOrCreateOrganization(ctx context.Context, partnerID uint, key string) (*domain.Organization, error) {
	org, err := s.OrganizationByKey(ctx, partnerID, key)
	if err == nil {
		return org, nil
	}
	if err != ErrNotFound {
		return nil, err
	}
	org = &domain.Organization{PartnerID: partnerID, Key: key}
	if err := s.db.WithContext(ctx).Create(org).Error; err != nil {
		return nil, fmt.Errorf("store: create organization %s: %w", key, err)
	}
	return org, nil
}

// OrganizationsByKeys matches keys exactly.
func (s *Store) OrganizationsByKeys(ctx context.Context, partnerID uint, keys []string) ([]domain.Organization, error) {
	var orgs []domain.Organization
	if len(keys) == 0 {
		return orgs, nil
	}
	err := s.db.WithContext(ctx).
		Where("partner_id = ? AND key IN ?", partnerID, keys).
		Order("id").
		Find(&orgs).Error
	return orgs, err
}

func (s *Store) ListOrganizations(ctx context.Context, partnerID uint) ([]domain.Organization, error) {
	var orgs []domain.Organization
	err := s.db.WithContext(ctx).Where("partner_id = ?", partnerID).Order("id").Find(&orgs).Error
	return orgs, err
}

// DeleteOrganizations removes the organizations and their authoring links.
func (s *Store) DeleteOrganizations(ctx context.Context, orgs []domain.Organization) error {
	if len(orgs) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(orgs))
	for _, o := range orgs {
		ids = append(ids, o.ID)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM course_authoring_organizations WHERE organization_id IN ?", ids).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM program_authoring_organizations WHERE organization_id IN ?", ids).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&domain.Organization{}).Error
	})
}
