package ui

import (
	"testing"

	rl "github.com/gen2brain/raylib-go/raylib"
)

func TestOverlayDefaults(t *testing.T) {
	s := NewOverlaySet()
	for _, id := range []OverlayID{OverlayVision, OverlayFood, OverlayCorpses, OverlayQualityPanel} {
		if !s.Enabled(id) {
			t.Errorf("%s should start on", id)
		}
	}
	for _, id := range []OverlayID{OverlayTierColors, OverlayCladeColors, OverlayTierRings, OverlayIndexGrid} {
		if s.Enabled(id) {
			t.Errorf("%s should start off", id)
		}
	}
}

func TestColourOverlaysAreExclusive(t *testing.T) {
	s := NewOverlaySet()
	s.Set(OverlayTierColors, true)
	s.Set(OverlayCladeColors, true)
	if s.Enabled(OverlayTierColors) {
		t.Error("clade colours should switch tier colours off")
	}
	if !s.Toggle(OverlayTierColors) {
		t.Error("toggle should turn tier colours on")
	}
	if s.Enabled(OverlayCladeColors) {
		t.Error("tier colours should switch clade colours off")
	}
}

func TestHandleKey(t *testing.T) {
	s := NewOverlaySet()
	id, on, ok := s.HandleKey(rl.KeyG)
	if !ok || id != OverlayIndexGrid || !on {
		t.Errorf("HandleKey(G) = %v, %v, %v", id, on, ok)
	}
	if _, _, ok := s.HandleKey(rl.KeyZ); ok {
		t.Error("unbound key matched an overlay")
	}
	if _, _, ok := s.HandleKey(0); ok {
		t.Error("zero key matched an overlay")
	}
}

func TestEveryOverlayIsGrouped(t *testing.T) {
	n := 0
	for g := range numGroups {
		n += len(InGroup(g))
	}
	if n != int(numOverlays) {
		t.Errorf("%d overlays grouped, want %d", n, numOverlays)
	}
	if Describe(OverlayFood).KeyLabel() != "F" {
		t.Errorf("food key label = %q", Describe(OverlayFood).KeyLabel())
	}
}
