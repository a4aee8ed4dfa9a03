// Package camera provides the top-down viewport onto the XZ plane of the
// world. Screen X follows world X and screen Y follows world Z.
package camera

import "github.com/pthm-cable/forge/world"

// Camera controls the viewport into the simulation world.
type Camera struct {
	// Focus is the world point under the viewport centre.
	X, Z float32

	// Zoom is screen pixels per world unit.
	Zoom float32

	ViewportW, ViewportH float32

	Bounds world.Bounds

	MinZoom, MaxZoom float32
}

// New creates a camera centred on the world, zoomed to fit it.
func New(viewportW, viewportH float32, b world.Bounds) *Camera {
	c := &Camera{
		ViewportW: viewportW,
		ViewportH: viewportH,
		Bounds:    b,
		MaxZoom:   40,
	}
	c.MinZoom = c.fitZoom() * 0.5
	c.Reset()
	return c
}

// fitZoom is the zoom at which the whole world fills the viewport.
func (c *Camera) fitZoom() float32 {
	w := c.Bounds.MaxX - c.Bounds.MinX
	h := c.Bounds.MaxZ - c.Bounds.MinZ
	if w <= 0 || h <= 0 {
		return 1
	}
	return min(c.ViewportW/w, c.ViewportH/h)
}

// WorldToScreen converts a world position to screen pixels.
func (c *Camera) WorldToScreen(wx, wz float32) (sx, sy float32) {
	sx = c.ViewportW/2 + (wx-c.X)*c.Zoom
	sy = c.ViewportH/2 + (wz-c.Z)*c.Zoom
	return sx, sy
}

// ScreenToWorld converts screen pixels to a world position.
func (c *Camera) ScreenToWorld(sx, sy float32) (wx, wz float32) {
	wx = c.X + (sx-c.ViewportW/2)/c.Zoom
	wz = c.Z + (sy-c.ViewportH/2)/c.Zoom
	return wx, wz
}

// IsVisible reports whether a circle at (wx, wz) could be on screen.
func (c *Camera) IsVisible(wx, wz, radius float32) bool {
	halfW := c.ViewportW/(2*c.Zoom) + radius
	halfH := c.ViewportH/(2*c.Zoom) + radius
	return absf(wx-c.X) <= halfW && absf(wz-c.Z) <= halfH
}

// Resize updates viewport dimensions and recalculates zoom constraints.
func (c *Camera) Resize(viewportW, viewportH float32) {
	if viewportW == c.ViewportW && viewportH == c.ViewportH {
		return
	}
	c.ViewportW = viewportW
	c.ViewportH = viewportH
	c.MinZoom = c.fitZoom() * 0.5
	c.SetZoom(c.Zoom)
}

// Pan moves the focus by a delta in screen pixels. The focus stays inside
// the world bounds.
func (c *Camera) Pan(dx, dy float32) {
	c.MoveTo(c.X+dx/c.Zoom, c.Z+dy/c.Zoom)
}

// MoveTo sets the focus, clamped to the world bounds.
func (c *Camera) MoveTo(wx, wz float32) {
	c.X = clamp(wx, c.Bounds.MinX, c.Bounds.MaxX)
	c.Z = clamp(wz, c.Bounds.MinZ, c.Bounds.MaxZ)
}

// SetZoom sets the zoom level, clamped to min/max.
func (c *Camera) SetZoom(zoom float32) {
	c.Zoom = clamp(zoom, c.MinZoom, c.MaxZoom)
}

// ZoomBy multiplies the current zoom by the given factor.
func (c *Camera) ZoomBy(factor float32) {
	c.SetZoom(c.Zoom * factor)
}

// ZoomAt zooms by factor keeping the world point under (sx, sy) fixed.
func (c *Camera) ZoomAt(sx, sy, factor float32) {
	wx, wz := c.ScreenToWorld(sx, sy)
	c.ZoomBy(factor)
	nx, nz := c.ScreenToWorld(sx, sy)
	c.MoveTo(c.X+wx-nx, c.Z+wz-nz)
}

// Reset centres the camera on the world and fits it to the viewport.
func (c *Camera) Reset() {
	c.X = (c.Bounds.MinX + c.Bounds.MaxX) / 2
	c.Z = (c.Bounds.MinZ + c.Bounds.MaxZ) / 2
	c.SetZoom(c.fitZoom())
}

// VisibleWorldBounds returns the world rectangle under the viewport.
func (c *Camera) VisibleWorldBounds() (minX, minZ, maxX, maxZ float32) {
	halfW := c.ViewportW / (2 * c.Zoom)
	halfH := c.ViewportH / (2 * c.Zoom)
	return c.X - halfW, c.Z - halfH, c.X + halfW, c.Z + halfH
}

func absf(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
