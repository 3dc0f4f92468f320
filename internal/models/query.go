package models

import "strings"

// Names of the default embedding spaces addressed by QuerySpec.
const (
	SpaceScope = "scope"
	SpacePrice = "price"
	SpaceRisks = "risks"
)

// QuerySpec is the wire shape of a search request.
type QuerySpec struct {
	ScopeQuery  string  `json:"scope_query,omitempty"`
	RisksQuery  string  `json:"risks_query,omitempty"`
	ScopeWeight float64 `json:"scope_weight"`
	PriceWeight float64 `json:"price_weight"`
	RisksWeight float64 `json:"risks_weight"`
	Limit       int     `json:"limit"`
}

// Query maps the wire shape onto the default spaces.
func (q QuerySpec) Query() Query {
	targets := make(map[string]string, 2)
	if s := strings.TrimSpace(q.ScopeQuery); s != "" {
		targets[SpaceScope] = s
	}
	if s := strings.TrimSpace(q.RisksQuery); s != "" {
		targets[SpaceRisks] = s
	}
	return Query{
		Targets: targets,
		Weights: map[string]float64{
			SpaceScope: q.ScopeWeight,
			SpacePrice: q.PriceWeight,
			SpaceRisks: q.RisksWeight,
		},
		Limit: q.Limit,
	}
}

// Query is a search over an arbitrary set of spaces.
// Targets holds the query text per text space; Weights holds the weight per space.
// A space with weight 0 (or no weight) does not participate.
type Query struct {
	Targets map[string]string  `json:"targets,omitempty"`
	Weights map[string]float64 `json:"weights"`
	Limit   int                `json:"limit"`
}

// ActiveSpaces returns the names of spaces with a non-zero weight.
func (q Query) ActiveSpaces() []string {
	var names []string
	for name, w := range q.Weights {
		if w != 0 {
			names = append(names, name)
		}
	}
	return names
}
