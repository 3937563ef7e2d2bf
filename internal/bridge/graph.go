package bridge

import (
	"errors"

	"github.com/shopspring/decimal"
)

var ErrSelfRelationship = errors.New("provider and copyer must differ")

// Relationship is one provider -> copyer copy link. Scaling parameters are
// decimals so multiplier and clamp math stays exact.
type Relationship struct {
	ProviderID       string
	CopyerID         string
	VolumeMultiplier decimal.Decimal
	MaxLots          decimal.Decimal
	Enabled          bool
}

type pairKey struct {
	provider string
	copyer   string
}

// graph holds the relationship edges with a per-provider index so the
// router's lookup never scans the full set.
type graph struct {
	byPair     map[pairKey]*Relationship
	byProvider map[string][]*Relationship
	order      []*Relationship
}

func newGraph() *graph {
	return &graph{
		byPair:     map[pairKey]*Relationship{},
		byProvider: map[string][]*Relationship{},
	}
}

// upsert creates the (provider, copyer) edge or updates its scaling
// parameters in place; a second create for the same ordered pair never
// duplicates it and leaves the enabled flag alone.
func (g *graph) upsert(providerID, copyerID string, multiplier, maxLots decimal.Decimal) (*Relationship, bool, error) {
	if providerID == copyerID {
		return nil, false, ErrSelfRelationship
	}
	key := pairKey{provider: providerID, copyer: copyerID}
	if rel, ok := g.byPair[key]; ok {
		rel.VolumeMultiplier = multiplier
		rel.MaxLots = maxLots
		return rel, false, nil
	}
	rel := &Relationship{
		ProviderID:       providerID,
		CopyerID:         copyerID,
		VolumeMultiplier: multiplier,
		MaxLots:          maxLots,
		Enabled:          true,
	}
	g.byPair[key] = rel
	g.byProvider[providerID] = append(g.byProvider[providerID], rel)
	g.order = append(g.order, rel)
	return rel, true, nil
}

func (g *graph) setEnabled(providerID, copyerID string, enabled bool) *Relationship {
	rel, ok := g.byPair[pairKey{provider: providerID, copyer: copyerID}]
	if !ok {
		return nil
	}
	rel.Enabled = enabled
	return rel
}

func (g *graph) delete(providerID, copyerID string) bool {
	key := pairKey{provider: providerID, copyer: copyerID}
	rel, ok := g.byPair[key]
	if !ok {
		return false
	}
	delete(g.byPair, key)
	g.byProvider[providerID] = removeRel(g.byProvider[providerID], rel)
	if len(g.byProvider[providerID]) == 0 {
		delete(g.byProvider, providerID)
	}
	g.order = removeRel(g.order, rel)
	return true
}

// copyersOf returns the enabled relationships for a provider in creation
// order. The result shares no storage with the graph, so callers may use it
// after the core lock is released.
func (g *graph) copyersOf(providerID string) []Relationship {
	rels := g.byProvider[providerID]
	out := make([]Relationship, 0, len(rels))
	for _, rel := range rels {
		if rel.Enabled {
			out = append(out, *rel)
		}
	}
	return out
}

func (g *graph) list() []*Relationship {
	out := make([]*Relationship, len(g.order))
	copy(out, g.order)
	return out
}

func removeRel(rels []*Relationship, target *Relationship) []*Relationship {
	for i, rel := range rels {
		if rel == target {
			return append(rels[:i], rels[i+1:]...)
		}
	}
	return rels
}
