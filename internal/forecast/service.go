package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stocklot-erp/stocklot/internal/inventory"
)

// RepositoryPort abstracts the ledger reads the engine needs.
type RepositoryPort interface {
	GetComponent(ctx context.Context, id int64) (ComponentInfo, error)
	ListActiveComponents(ctx context.Context, companyID int64) ([]ComponentInfo, error)
	GetCompanyConfig(ctx context.Context, companyID int64) (*Config, error)
	ConsumptionNet(ctx context.Context, componentIDs []int64, since time.Time, excluded []inventory.TransactionType, locationID int64) (map[int64]float64, error)
}

// BalancePort reads on-hand quantities. Satisfied by the inventory service.
type BalancePort interface {
	GetQuantities(ctx context.Context, componentIDs []int64, locationID int64) (map[int64]float64, error)
}

// Query scopes one forecast request. ComponentID 0 means every active
// component of the company.
type Query struct {
	CompanyID   int64
	ComponentID int64
	LocationID  int64
	// Config nil uses the service defaults.
	Config *Config
}

type Service struct {
	repo     RepositoryPort
	balances BalancePort
	cache    *Cache
	logger   *slog.Logger
	defaults Config

	// group collapses concurrent dashboard queries for the same scope.
	group singleflight.Group
}

func NewService(repo RepositoryPort, balances BalancePort, cache *Cache, logger *slog.Logger, defaults Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if defaults.LookbackDays <= 0 {
		defaults = DefaultConfig(defaults.LookbackDays, defaults.SafetyDays)
	}
	return &Service{repo: repo, balances: balances, cache: cache, logger: logger, defaults: defaults}
}

// GetForecast computes the projections for the query scope. Results with the
// default config are served from cache when fresh.
func (s *Service) GetForecast(ctx context.Context, query Query) ([]Forecast, error) {
	if query.CompanyID <= 0 {
		return nil, fmt.Errorf("forecast: company required")
	}
	cacheable := query.Config == nil && s.cache != nil
	key := Key(query.CompanyID, query.ComponentID, query.LocationID)

	if cacheable {
		if cached, ok, err := s.cache.Get(ctx, key); err != nil {
			s.logger.Warn("forecast cache read failed", "key", key, "error", err)
		} else if ok {
			return cached, nil
		}
	}

	result, err, _ := s.group.Do(key, func() (any, error) {
		return s.compute(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	forecasts := result.([]Forecast)

	if cacheable {
		if err := s.cache.Set(ctx, key, forecasts); err != nil {
			s.logger.Warn("forecast cache write failed", "key", key, "error", err)
		}
	}
	return forecasts, nil
}

func (s *Service) compute(ctx context.Context, query Query) ([]Forecast, error) {
	// Config resolution: explicit query override, then the company's own
	// settings row, then the process defaults.
	cfg := s.defaults
	if query.Config != nil {
		cfg = query.Config.merged(s.defaults)
	} else {
		companyCfg, err := s.repo.GetCompanyConfig(ctx, query.CompanyID)
		if err != nil {
			return nil, err
		}
		if companyCfg != nil {
			cfg = companyCfg.merged(s.defaults)
		}
	}

	var infos []ComponentInfo
	if query.ComponentID > 0 {
		info, err := s.repo.GetComponent(ctx, query.ComponentID)
		if err != nil {
			return nil, err
		}
		infos = []ComponentInfo{info}
	} else {
		var err error
		infos, err = s.repo.ListActiveComponents(ctx, query.CompanyID)
		if err != nil {
			return nil, err
		}
	}
	if len(infos) == 0 {
		return []Forecast{}, nil
	}

	ids := make([]int64, 0, len(infos))
	for _, info := range infos {
		ids = append(ids, info.ID)
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -cfg.LookbackDays)
	nets, err := s.repo.ConsumptionNet(ctx, ids, since, cfg.ExcludedTypes, query.LocationID)
	if err != nil {
		return nil, err
	}
	onHand, err := s.balances.GetQuantities(ctx, ids, query.LocationID)
	if err != nil {
		return nil, err
	}

	forecasts := make([]Forecast, 0, len(infos))
	for _, info := range infos {
		rate := DailyRate(nets[info.ID], cfg.LookbackDays)
		have := onHand[info.ID]
		days, runoutDate := Runout(have, rate, today)
		qty, reorderDate := Recommendation(rate, info.LeadTimeDays, cfg.SafetyDays, runoutDate)

		forecasts = append(forecasts, Forecast{
			ComponentID:             info.ID,
			ComponentSKU:            info.SKU,
			ComponentName:           info.Name,
			QuantityOnHand:          have,
			AverageDailyConsumption: rate,
			DaysUntilRunout:         days,
			RunoutDate:              runoutDate,
			RecommendedReorderQty:   qty,
			RecommendedReorderDate:  reorderDate,
			ReorderPoint:            info.ReorderPoint,
			ReorderStatus:           inventory.ReorderStatusFor(have, info.ReorderPoint, inventory.DefaultWarningMultiplier),
		})
	}
	return forecasts, nil
}

// BelowReorderPoint filters a forecast set down to components whose status
// is warning or critical, for the reorder digest.
func BelowReorderPoint(forecasts []Forecast) []Forecast {
	var out []Forecast
	for _, f := range forecasts {
		if f.ReorderStatus != inventory.ReorderStatusOK {
			out = append(out, f)
		}
	}
	return out
}
