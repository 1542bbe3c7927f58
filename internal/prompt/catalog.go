package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ahrav/strategybench/internal/domain"
)

var (
	// ErrCatalogMalformed indicates that the strategy catalog is invalid.
	ErrCatalogMalformed = errors.New("strategy catalog malformed")

	// ErrUnknownStrategy indicates a selection that names no catalog entry.
	ErrUnknownStrategy = errors.New("unknown strategy")
)

// Catalog is the ordered list of strategies a run iterates over.
type Catalog struct {
	strategies []domain.Strategy
}

// LoadCatalog reads a JSON array of {"name", "description"} entries.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read strategy catalog: %w", err)
	}

	var strategies []domain.Strategy
	if err := json.Unmarshal(data, &strategies); err != nil {
		return Catalog{}, fmt.Errorf("%w: %s: %w", ErrCatalogMalformed, path, err)
	}
	return NewCatalog(strategies...)
}

// NewCatalog validates strategies and keeps their order.
func NewCatalog(strategies ...domain.Strategy) (Catalog, error) {
	if len(strategies) == 0 {
		return Catalog{}, fmt.Errorf("%w: no strategies", ErrCatalogMalformed)
	}

	seen := make(map[domain.StrategyID]struct{}, len(strategies))
	for i := range strategies {
		if err := strategies[i].Validate(); err != nil {
			return Catalog{}, fmt.Errorf("%w: strategy %d: %w", ErrCatalogMalformed, i, err)
		}
		if _, dup := seen[strategies[i].Name]; dup {
			return Catalog{}, fmt.Errorf("%w: duplicate strategy %q", ErrCatalogMalformed, strategies[i].Name)
		}
		seen[strategies[i].Name] = struct{}{}
	}

	return Catalog{strategies: append([]domain.Strategy(nil), strategies...)}, nil
}

// Strategies returns the catalog entries in run order.
func (c Catalog) Strategies() []domain.Strategy {
	return append([]domain.Strategy(nil), c.strategies...)
}

// Len returns the number of strategies.
func (c Catalog) Len() int { return len(c.strategies) }

// Select narrows the catalog to the named strategies. The result keeps
// catalog order whatever the order of names. An empty selection returns the
// catalog unchanged.
func (c Catalog) Select(names ...domain.StrategyID) (Catalog, error) {
	if len(names) == 0 {
		return c, nil
	}

	wanted := make(map[domain.StrategyID]bool, len(names))
	for _, n := range names {
		wanted[n] = false
	}

	var selected []domain.Strategy
	for _, s := range c.strategies {
		if _, ok := wanted[s.Name]; ok {
			wanted[s.Name] = true
			selected = append(selected, s)
		}
	}

	var errs []error
	for _, n := range names {
		if !wanted[n] {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownStrategy, n))
			wanted[n] = true
		}
	}
	if err := errors.Join(errs...); err != nil {
		return Catalog{}, err
	}
	return Catalog{strategies: selected}, nil
}
