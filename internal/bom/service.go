package bom

import (
	"context"
	"errors"
	"fmt"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	GetVersion(ctx context.Context, id int64) (Version, []Line, error)
	GetActiveVersion(ctx context.Context, companyID int64, sku string) (Version, []Line, error)
	ResolveVersion(ctx context.Context, id int64) (Resolved, error)
	CreateVersion(ctx context.Context, version Version, lines []Line, activate bool) (Version, error)
	Activate(ctx context.Context, id int64) error
	ListVersions(ctx context.Context, companyID int64, sku string) ([]Version, error)
}

// Service coordinates BOM operations.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// CreateVersionInput describes a new BOM revision.
type CreateVersionInput struct {
	CompanyID int64
	SKU       string
	Notes     string
	Activate  bool
	Lines     []LineInput
}

// LineInput is one recipe entry.
type LineInput struct {
	ComponentID     int64
	QuantityPerUnit float64
}

// CreateVersion validates and persists a new revision.
func (s *Service) CreateVersion(ctx context.Context, input CreateVersionInput) (Version, error) {
	if input.CompanyID <= 0 {
		return Version{}, errors.New("bom: company required")
	}
	if input.SKU == "" {
		return Version{}, errors.New("bom: sku required")
	}
	if len(input.Lines) == 0 {
		return Version{}, ErrEmptyBOM
	}
	seen := make(map[int64]bool, len(input.Lines))
	lines := make([]Line, 0, len(input.Lines))
	for _, line := range input.Lines {
		if line.ComponentID <= 0 {
			return Version{}, errors.New("bom: component required on every line")
		}
		if line.QuantityPerUnit <= 0 {
			return Version{}, fmt.Errorf("bom: quantity per unit must be positive for component %d", line.ComponentID)
		}
		if seen[line.ComponentID] {
			return Version{}, fmt.Errorf("bom: duplicate component %d", line.ComponentID)
		}
		seen[line.ComponentID] = true
		lines = append(lines, Line{ComponentID: line.ComponentID, QuantityPerUnit: line.QuantityPerUnit})
	}
	version := Version{CompanyID: input.CompanyID, SKU: input.SKU, Notes: input.Notes}
	return s.repo.CreateVersion(ctx, version, lines, input.Activate)
}

// GetVersion loads a version with lines.
func (s *Service) GetVersion(ctx context.Context, id int64) (Version, []Line, error) {
	if id <= 0 {
		return Version{}, nil, ErrVersionNotFound
	}
	return s.repo.GetVersion(ctx, id)
}

// GetActiveVersion loads the active revision for a SKU.
func (s *Service) GetActiveVersion(ctx context.Context, companyID int64, sku string) (Version, []Line, error) {
	return s.repo.GetActiveVersion(ctx, companyID, sku)
}

// ResolveVersion returns the version's lines priced at current component costs.
func (s *Service) ResolveVersion(ctx context.Context, id int64) (Resolved, error) {
	if id <= 0 {
		return Resolved{}, ErrVersionNotFound
	}
	return s.repo.ResolveVersion(ctx, id)
}

// Activate switches the active revision for a SKU.
func (s *Service) Activate(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrVersionNotFound
	}
	return s.repo.Activate(ctx, id)
}

// ListVersions lists revisions for a SKU, newest first.
func (s *Service) ListVersions(ctx context.Context, companyID int64, sku string) ([]Version, error) {
	return s.repo.ListVersions(ctx, companyID, sku)
}
