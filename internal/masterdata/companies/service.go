package companies

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

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Company, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Company, error) {
	if id <= 0 {
		return Company{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, company Company) (Company, error) {
	if err := s.validate(company); err != nil {
		return Company{}, err
	}
	return s.repo.Create(ctx, company)
}

func (s *Service) Update(ctx context.Context, id int64, company Company) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.validate(company); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, company)
}

func (s *Service) validate(c Company) error {
	if strings.TrimSpace(c.Code) == "" {
		return shared.ErrRequiredField
	}
	if strings.TrimSpace(c.Name) == "" {
		return shared.ErrRequiredField
	}
	if c.DefectRateThreshold < 0 || c.DefectRateThreshold > 1 {
		return shared.ErrValidation
	}
	return nil
}
