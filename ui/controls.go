package ui

import (
	"fmt"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"
)

// ControlsPanel renders the overlay toggle list.
type ControlsPanel struct {
	renderer *Renderer
	x, y     int32
	width    int32
	visible  bool
}

// NewControlsPanel creates a new controls panel.
func NewControlsPanel(x, y, width int32) *ControlsPanel {
	return &ControlsPanel{
		renderer: NewRenderer(),
		x:        x,
		y:        y,
		width:    width,
	}
}

// SetPosition updates the panel position.
func (c *ControlsPanel) SetPosition(x, y int32) {
	c.x = x
	c.y = y
}

// IsVisible returns whether the panel is shown.
func (c *ControlsPanel) IsVisible() bool {
	return c.visible
}

// Toggle switches panel visibility.
func (c *ControlsPanel) Toggle() bool {
	c.visible = !c.visible
	return c.visible
}

// Draw renders the overlay list grouped by section and returns the
// panel's bottom edge.
func (c *ControlsPanel) Draw(set *OverlaySet) int32 {
	if !c.visible {
		return c.y
	}
	r := c.renderer
	pad, line := r.Theme.Padding, r.Theme.LineHeight

	rows := int32(numOverlays + numGroups)
	height := (rows+1)*line + pad*3 + int32(numGroups)*4
	r.DrawPanel(c.x, c.y, c.width, height)

	y := c.y + pad
	rl.DrawText("Overlays", c.x+pad, y, 16, rl.White)
	y += line + 4
	for g := range numGroups {
		y = r.DrawSectionHeader(c.x+pad, y, g.String())
		for _, id := range InGroup(g) {
			c.drawToggle(c.x+pad, y, Describe(id), set.Enabled(id), c.width-pad*2)
			y += line
		}
		y += 4
	}
	return c.y + height
}

var (
	toggleOff = rl.Color{R: 80, G: 80, B: 80, A: 255}
	toggleOn  = rl.Color{R: 100, G: 200, B: 100, A: 255}
	keyHint   = rl.Color{R: 150, G: 150, B: 150, A: 255}
)

func (c *ControlsPanel) drawToggle(x, y int32, o Overlay, on bool, width int32) {
	th := c.renderer.Theme
	box, name := toggleOff, th.LabelColor
	if on {
		box, name = toggleOn, rl.White
	}
	rl.DrawRectangle(x, y+2, 8, 8, box)
	rl.DrawText(o.Name, x+14, y, th.FontSize, name)

	if k := o.KeyLabel(); k != "" {
		hint := fmt.Sprintf("[%s]", k)
		rl.DrawText(hint, x+width-rl.MeasureText(hint, th.FontSize), y, th.FontSize, keyHint)
	}
}

// QualityState is what the quality panel shows and edits.
type QualityState struct {
	Levels  []string
	Current int
	Pinned  bool
	Paused  bool
	Steps   int
}

// QualityAction is the user's input on the quality panel this frame.
type QualityAction struct {
	Pin         int // -1 when no level was chosen
	Unpin       bool
	TogglePause bool
	Steps       int
}

// QualityPanel lets the user pin a quality level, pause, and set the
// number of simulation steps per rendered frame.
type QualityPanel struct {
	renderer *Renderer
	x, y     int32
	width    int32
}

// NewQualityPanel creates a new quality panel.
func NewQualityPanel(x, y, width int32) *QualityPanel {
	return &QualityPanel{renderer: NewRenderer(), x: x, y: y, width: width}
}

// SetPosition updates the panel position.
func (q *QualityPanel) SetPosition(x, y int32) {
	q.x = x
	q.y = y
}

// Draw renders the panel and returns what the user clicked.
func (q *QualityPanel) Draw(st QualityState) QualityAction {
	r := q.renderer
	padding := r.Theme.Padding
	const rowH = 22

	rows := int32(len(st.Levels) + 3)
	r.DrawPanel(q.x, q.y, q.width, rows*rowH+padding*2+20)

	act := QualityAction{Pin: -1, Steps: st.Steps}
	x := float32(q.x + padding)
	y := float32(q.y + padding)
	w := float32(q.width - padding*2)

	rl.DrawText("Quality", int32(x), int32(y), 16, rl.White)
	y += 20

	for i, name := range st.Levels {
		label := name
		if i == st.Current {
			label = "> " + name
		}
		if gui.Button(rl.Rectangle{X: x, Y: y, Width: w, Height: rowH - 4}, label) {
			act.Pin = i
		}
		y += rowH
	}

	auto := "Auto"
	if !st.Pinned {
		auto = "> Auto"
	}
	if gui.Button(rl.Rectangle{X: x, Y: y, Width: w, Height: rowH - 4}, auto) {
		act.Unpin = true
	}
	y += rowH

	pause := "Pause"
	if st.Paused {
		pause = "Resume"
	}
	if gui.Button(rl.Rectangle{X: x, Y: y, Width: w, Height: rowH - 4}, pause) {
		act.TogglePause = true
	}
	y += rowH

	steps := gui.SliderBar(
		rl.Rectangle{X: x + 40, Y: y, Width: w - 70, Height: rowH - 6},
		"Steps", fmt.Sprintf("%d", st.Steps),
		float32(st.Steps), 1, 16,
	)
	act.Steps = max(1, int(steps+0.5))
	return act
}
