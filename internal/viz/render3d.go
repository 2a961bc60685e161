package viz

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Camera projects the bunch cloud, expressed in units of its widest spread,
// onto the canvas.
type Camera struct {
	RotX, RotY, RotZ float64
	Zoom             float64
	Distance         float64
}

func NewCamera() *Camera {
	return &Camera{RotX: -1.1, RotZ: 0.6, Zoom: 1, Distance: 6}
}

func (c *Camera) RotateX(a float64) { c.RotX += a }
func (c *Camera) RotateY(a float64) { c.RotY += a }
func (c *Camera) RotateZ(a float64) { c.RotZ += a }
func (c *Camera) ZoomIn()           { c.Zoom = math.Min(10, c.Zoom*1.2) }
func (c *Camera) ZoomOut()          { c.Zoom = math.Max(0.1, c.Zoom/1.2) }

// RotatePoint rotates p about x, then y, then z.
func (c *Camera) RotatePoint(p r3.Vec) r3.Vec {
	cx, sx := math.Cos(c.RotX), math.Sin(c.RotX)
	p.Y, p.Z = p.Y*cx-p.Z*sx, p.Y*sx+p.Z*cx
	cy, sy := math.Cos(c.RotY), math.Sin(c.RotY)
	p.X, p.Z = p.X*cy+p.Z*sy, -p.X*sy+p.Z*cy
	cz, sz := math.Cos(c.RotZ), math.Sin(c.RotZ)
	p.X, p.Y = p.X*cz-p.Y*sz, p.X*sz+p.Y*cz
	return p
}

// Project converts a point to sub-pixel coordinates on a sw x sh canvas.
// It reports false for points behind the camera or off screen.
func (c *Camera) Project(p r3.Vec, sw, sh int) (int, int, bool) {
	rot := r3.Scale(c.Zoom, c.RotatePoint(p))
	if rot.Z >= c.Distance-0.1 {
		return 0, 0, false
	}
	scale := c.Distance / (c.Distance - rot.Z)
	pScale := float64(min(sw, sh)) / 3.0
	sx := int(rot.X*scale*pScale) + sw/2
	sy := int(-rot.Y*scale*pScale) + sh/2
	return sx, sy, sx >= 0 && sx < sw && sy >= 0 && sy < sh
}

// RenderCloud draws the axes and every point relative to origin, scaled so
// a distance of unit maps to one axis length.
func RenderCloud(c *Canvas, cam *Camera, origin r3.Vec, unit float64, pts []r3.Vec) {
	if c == nil || cam == nil {
		return
	}
	if unit <= 0 {
		unit = 1
	}
	sw, sh := c.Width*2, c.Height*4

	o := r3.Vec{}
	for _, axis := range []r3.Vec{{X: 1}, {Y: 1}, {Z: 1}} {
		x0, y0, ok0 := cam.Project(o, sw, sh)
		x1, y1, ok1 := cam.Project(axis, sw, sh)
		if ok0 || ok1 {
			c.DrawLine(x0, y0, x1, y1)
		}
	}

	for _, p := range pts {
		x, y, ok := cam.Project(r3.Scale(1/unit, r3.Sub(p, origin)), sw, sh)
		if ok {
			c.Set(x, y)
		}
	}
}
