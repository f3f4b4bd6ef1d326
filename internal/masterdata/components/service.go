package components

import (
	"context"
	"strings"

	"github.com/stocklot-erp/stocklot/internal/masterdata/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Component, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Component, error) {
	if id <= 0 {
		return Component{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, component Component) (Component, error) {
	if err := s.validate(component); err != nil {
		return Component{}, err
	}
	return s.repo.Create(ctx, component)
}

func (s *Service) Update(ctx context.Context, id int64, component Component) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.validate(component); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, component)
}

func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Deactivate(ctx, id)
}

func (s *Service) validate(c Component) error {
	if c.CompanyID <= 0 {
		return shared.ErrValidation
	}
	if strings.TrimSpace(c.SKU) == "" {
		return shared.ErrRequiredField
	}
	if strings.TrimSpace(c.Name) == "" {
		return shared.ErrRequiredField
	}
	if c.CostPerUnit < 0 || c.ReorderPoint < 0 || c.LeadTimeDays < 0 {
		return shared.ErrValidation
	}
	return nil
}
