package domain

// StrategyID identifies a reasoning strategy. Catalog order defines run order;
// the identifier itself carries no other meaning.
type StrategyID string

// Strategy is a catalog entry: an identifier plus the guidance text placed in
// the prompt's strategy region.
type Strategy struct {
	Name        StrategyID `json:"name" validate:"required"`
	Description string     `json:"description,omitempty"`
}

// Validate checks the strategy's struct constraints.
func (s *Strategy) Validate() error { return validateStruct(s) }

// Guidance returns the text used to fill the strategy placeholder.
// Entries without a description fall back to their name.
func (s *Strategy) Guidance() string {
	if s.Description != "" {
		return s.Description
	}
	return string(s.Name)
}
