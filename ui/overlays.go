package ui

import (
	rl "github.com/gen2brain/raylib-go/raylib"
)

// OverlayID names a toggleable viewer layer.
type OverlayID uint8

const (
	OverlayTierColors OverlayID = iota
	OverlayCladeColors
	OverlayVision
	OverlayFood
	OverlayCorpses
	OverlayTierRings
	OverlayIndexGrid
	OverlayQualityPanel
	numOverlays

	noOverlay = numOverlays
)

// OverlayGroup orders overlays in the controls panel.
type OverlayGroup uint8

const (
	GroupAgents OverlayGroup = iota
	GroupWorld
	GroupDebug
	numGroups
)

func (g OverlayGroup) String() string {
	switch g {
	case GroupAgents:
		return "Agents"
	case GroupWorld:
		return "World"
	case GroupDebug:
		return "Debug"
	}
	return "?"
}

// Overlay is the static description of one layer.
type Overlay struct {
	Name  string
	Key   int32 // letter key, 0 for none
	Group OverlayGroup
	On    bool      // initial state
	Rival OverlayID // switched off when this one turns on
}

var overlays = [numOverlays]Overlay{
	OverlayTierColors:   {"Tier Colors", rl.KeyT, GroupAgents, false, OverlayCladeColors},
	OverlayCladeColors:  {"Clade Colors", rl.KeyY, GroupAgents, false, OverlayTierColors},
	OverlayVision:       {"Vision Range", rl.KeyV, GroupAgents, true, noOverlay},
	OverlayFood:         {"Food", rl.KeyF, GroupWorld, true, noOverlay},
	OverlayCorpses:      {"Corpses", rl.KeyC, GroupWorld, true, noOverlay},
	OverlayTierRings:    {"Tier Rings", rl.KeyR, GroupDebug, false, noOverlay},
	OverlayIndexGrid:    {"Index Grid", rl.KeyG, GroupDebug, false, noOverlay},
	OverlayQualityPanel: {"Quality Panel", rl.KeyQ, GroupDebug, true, noOverlay},
}

func (id OverlayID) String() string {
	if id < numOverlays {
		return overlays[id].Name
	}
	return "none"
}

// KeyLabel is the bound key as printed in the panel, or "".
func (o Overlay) KeyLabel() string {
	if o.Key >= 'A' && o.Key <= 'Z' {
		return string(rune(o.Key))
	}
	return ""
}

// OverlaySet holds which overlays are on.
type OverlaySet struct {
	on [numOverlays]bool
}

func NewOverlaySet() *OverlaySet {
	s := &OverlaySet{}
	for id, o := range overlays {
		s.on[id] = o.On
	}
	return s
}

func (s *OverlaySet) Enabled(id OverlayID) bool {
	return id < numOverlays && s.on[id]
}

// Set switches id, turning its rival off when id comes on.
func (s *OverlaySet) Set(id OverlayID, on bool) {
	if id >= numOverlays {
		return
	}
	s.on[id] = on
	if r := overlays[id].Rival; on && r != noOverlay {
		s.on[r] = false
	}
}

// Toggle flips id and returns its new state.
func (s *OverlaySet) Toggle(id OverlayID) bool {
	on := !s.Enabled(id)
	s.Set(id, on)
	return s.Enabled(id)
}

// HandleKey toggles the overlay bound to key, if any.
func (s *OverlaySet) HandleKey(key int32) (id OverlayID, on, ok bool) {
	if key == 0 {
		return noOverlay, false, false
	}
	for i, o := range overlays {
		if o.Key == key {
			id = OverlayID(i)
			return id, s.Toggle(id), true
		}
	}
	return noOverlay, false, false
}

// InGroup lists the overlays of g in declaration order.
func InGroup(g OverlayGroup) []OverlayID {
	var ids []OverlayID
	for i, o := range overlays {
		if o.Group == g {
			ids = append(ids, OverlayID(i))
		}
	}
	return ids
}

// Describe returns the static description of id.
func Describe(id OverlayID) Overlay {
	return overlays[id]
}
