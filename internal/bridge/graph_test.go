package bridge

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestGraphUpsert_NoDuplicatePair(t *testing.T) {
	g := newGraph()
	_, created, err := g.upsert("A", "B", d(1), d(10))
	if err != nil || !created {
		t.Fatalf("first upsert: created=%v err=%v", created, err)
	}
	rel, created, err := g.upsert("A", "B", d(0.5), d(5))
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created {
		t.Fatalf("second upsert must update, not create")
	}
	if rel.VolumeMultiplier.Cmp(d(0.5)) != 0 || rel.MaxLots.Cmp(d(5)) != 0 {
		t.Fatalf("parameters not updated: mult=%s max=%s", rel.VolumeMultiplier, rel.MaxLots)
	}
	if len(g.list()) != 1 {
		t.Fatalf("want 1 relationship, got %d", len(g.list()))
	}
}

func TestGraphUpsert_RejectsSelfLink(t *testing.T) {
	g := newGraph()
	_, _, err := g.upsert("X", "X", d(1), d(10))
	if !errors.Is(err, ErrSelfRelationship) {
		t.Fatalf("want ErrSelfRelationship, got %v", err)
	}
	if len(g.list()) != 0 {
		t.Fatalf("self link must not create an entry")
	}
}

func TestGraphUpsert_PreservesEnabledOnUpdate(t *testing.T) {
	g := newGraph()
	rel, _, _ := g.upsert("A", "B", d(1), d(10))
	rel.Enabled = false
	rel, _, _ = g.upsert("A", "B", d(2), d(10))
	if rel.Enabled {
		t.Fatalf("update must not re-enable a disabled relationship")
	}
}

func TestGraphCopyersOf_EnabledOnlyInCreationOrder(t *testing.T) {
	g := newGraph()
	g.upsert("A", "B", d(1), d(10))
	g.upsert("A", "C", d(2), d(10))
	g.upsert("A", "D", d(3), d(10))
	g.upsert("Z", "B", d(1), d(10))
	if g.setEnabled("A", "C", false) == nil {
		t.Fatalf("setEnabled on existing pair returned nil")
	}

	rels := g.copyersOf("A")
	if len(rels) != 2 {
		t.Fatalf("want 2 enabled copyers, got %d", len(rels))
	}
	if rels[0].CopyerID != "B" || rels[1].CopyerID != "D" {
		t.Fatalf("creation order not preserved: %s, %s", rels[0].CopyerID, rels[1].CopyerID)
	}
}

func TestGraphSetEnabled_UnknownPair(t *testing.T) {
	g := newGraph()
	if g.setEnabled("A", "B", true) != nil {
		t.Fatalf("unknown pair must return nil")
	}
}

func TestGraphDelete(t *testing.T) {
	g := newGraph()
	g.upsert("A", "B", d(1), d(10))
	g.upsert("A", "C", d(1), d(10))
	if !g.delete("A", "B") {
		t.Fatalf("delete existing pair failed")
	}
	if g.delete("A", "B") {
		t.Fatalf("double delete must report false")
	}
	rels := g.copyersOf("A")
	if len(rels) != 1 || rels[0].CopyerID != "C" {
		t.Fatalf("unexpected remaining copyers: %+v", rels)
	}
}
