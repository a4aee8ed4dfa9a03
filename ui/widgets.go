package ui

import (
	"fmt"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// Renderer draws panels and descriptor-driven fields in one theme.
type Renderer struct {
	Theme Theme
}

func NewRenderer() *Renderer {
	return &Renderer{Theme: DefaultTheme()}
}

// DrawPanel fills a bordered panel background.
func (r *Renderer) DrawPanel(x, y, width, height int32) {
	rl.DrawRectangle(x, y, width, height, r.Theme.PanelBg)
	rl.DrawRectangleLines(x, y, width, height, r.Theme.PanelBorder)
}

// DrawSectionHeader draws title and returns the next line's Y.
func (r *Renderer) DrawSectionHeader(x, y int32, title string) int32 {
	rl.DrawText(title, x, y, r.Theme.HeaderFontSize, r.Theme.SectionHeader)
	return y + r.Theme.LineHeight
}

// DrawLabelValue draws "label: value". A value that would overflow
// totalWidth is pulled left to end at it.
func (r *Renderer) DrawLabelValue(x, y int32, label, value string, totalWidth int32) int32 {
	r.label(x, y, label)
	vx := x + r.Theme.LabelWidth
	if w := rl.MeasureText(value, r.Theme.FontSize); vx+w > x+totalWidth {
		vx = max(x+totalWidth-w, x)
	}
	rl.DrawText(value, vx, y, r.Theme.FontSize, r.Theme.ValueColor)
	return y + r.Theme.LineHeight
}

func (r *Renderer) label(x, y int32, label string) {
	rl.DrawText(label+":", x, y, r.Theme.FontSize, r.Theme.LabelColor)
}

// track draws the label and the empty bar, leaving reserve pixels on the
// right for the readout. It returns the bar's X and width.
func (r *Renderer) track(x, y int32, label string, width, reserve int32) (int32, int32) {
	r.label(x, y, label)
	bx, bw := x+r.Theme.LabelWidth, max(width-r.Theme.LabelWidth-reserve, 0)
	rl.DrawRectangle(bx, y+2, bw, r.Theme.BarHeight, r.Theme.BarBg)
	return bx, bw
}

func (r *Renderer) readout(x, y int32, text string) int32 {
	rl.DrawText(text, x+5, y, r.Theme.FontSize, r.Theme.ValueColor)
	return y + r.Theme.LineHeight + 2
}

// DrawBar draws a fill bar for a value in [0, 1].
func (r *Renderer) DrawBar(x, y int32, label string, value float32, width int32) int32 {
	value = clampUnit(value)
	bx, bw := r.track(x, y, label, width, 50)
	rl.DrawRectangle(bx, y+2, int32(float32(bw)*value), r.Theme.BarHeight, r.Theme.BarFill)
	return r.readout(bx+bw, y, fmt.Sprintf("%.2f", value))
}

// DrawEnergyBar draws current out of limit, coloured by how full it is.
func (r *Renderer) DrawEnergyBar(x, y int32, label string, current, limit float32, width int32) int32 {
	var ratio float32
	if limit > 0 {
		ratio = clampUnit(current / limit)
	}
	fill := r.Theme.BarFillHigh
	switch {
	case ratio < 0.3:
		fill = r.Theme.BarFillLow
	case ratio < 0.6:
		fill = r.Theme.BarFillMedium
	}
	bx, bw := r.track(x, y, label, width, 80)
	rl.DrawRectangle(bx, y+2, int32(float32(bw)*ratio), r.Theme.BarHeight, fill)
	return r.readout(bx+bw, y, fmt.Sprintf("%.0f/%.0f", current, limit))
}

// DrawCenteredBar draws a bar that grows left or right of a centre line,
// scaled against lo for negative values and hi for positive ones.
func (r *Renderer) DrawCenteredBar(x, y int32, label string, value, lo, hi float32, width int32) int32 {
	bx, bw := r.track(x, y, label, width, 50)
	cx := bx + bw/2
	rl.DrawLine(cx, y+2, cx, y+2+r.Theme.BarHeight, r.Theme.PanelBorder)

	bound, fill := hi, r.Theme.BarFillPositive
	mag := value
	if value < 0 {
		bound, fill, mag = -lo, r.Theme.BarFillNegative, -value
	}
	var frac float32
	if bound > 0 {
		frac = clampUnit(mag / bound)
	}
	half := int32(float32(bw/2) * frac)
	left := cx
	if value < 0 {
		left = cx - half
	}
	rl.DrawRectangle(left, y+2, half, r.Theme.BarHeight, fill)
	return r.readout(bx+bw, y, fmt.Sprintf("%+.2f", value))
}

// DrawField draws one field and returns the next Y.
func (r *Renderer) DrawField(x, y int32, fd FieldDescriptor, data any, width int32) int32 {
	value := func() float32 {
		if fd.Getter == nil {
			return 0
		}
		return fd.Getter(data)
	}
	switch fd.Widget {
	case WidgetText:
		text := ""
		switch {
		case fd.TextGetter != nil:
			text = fd.TextGetter(data)
		case fd.Getter != nil:
			text = fmt.Sprintf(fd.Format, fd.Getter(data))
		}
		return r.DrawLabelValue(x, y, fd.Label, text, width)
	case WidgetBar:
		return r.DrawBar(x, y, fd.Label, value(), width)
	case WidgetCenteredBar:
		return r.DrawCenteredBar(x, y, fd.Label, value(), fd.Range.Min, fd.Range.Max, width)
	case WidgetEnergyBar:
		if fd.MaxGetter == nil {
			return y + r.Theme.LineHeight
		}
		return r.DrawEnergyBar(x, y, fd.Label, value(), fd.MaxGetter(data), width)
	}
	return y
}

// DrawSection draws a titled group of fields, skipping hidden ones.
func (r *Renderer) DrawSection(x, y int32, sd SectionDescriptor, data any, width int32) int32 {
	if sd.Visible != nil && !sd.Visible(data) {
		return y
	}
	if sd.Title != "" {
		y = r.DrawSectionHeader(x, y, sd.Title)
	}
	for _, fd := range sd.Fields {
		if fd.Visible == nil || fd.Visible(data) {
			y = r.DrawField(x, y, fd, data, width)
		}
	}
	return y + 4
}

func clampUnit(v float32) float32 {
	return min(max(v, 0), 1)
}
