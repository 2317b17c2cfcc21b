// CoverLink - Starfield Animation
// Copyright (c) 2025 - Open Source Project

package coverlink

import (
	"image"
	"math/rand"
)

const (
	starSpread = 25
	starZStep  = 0.2
	starFocal  = 128.0
)

type star struct {
	x, y, z float64
}

// Starfield is a 3D fly-through of point stars projected into a viewport.
type Starfield struct {
	maxDepth int
	stars    []star
	rng      *rand.Rand

	vpX, vpY, vpW, vpH int
	originX, originY   int
}

// NewStarfield creates n stars for a width x height screen. rng may be nil.
// maxDepth is raised to 2 and a negative n means no stars.
func NewStarfield(width, height, n, maxDepth int, rng *rand.Rand) *Starfield {
	if n < 0 {
		n = 0
	}
	if maxDepth < 2 {
		maxDepth = 2
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	sf := &Starfield{
		maxDepth: maxDepth,
		stars:    make([]star, n),
		rng:      rng,
	}
	for i := range sf.stars {
		sf.stars[i] = star{
			x: sf.spread(),
			y: sf.spread(),
			z: float64(1 + sf.rng.Intn(maxDepth-1)),
		}
	}
	sf.SetViewport(0, 0, width, height)
	return sf
}

// spread returns an integer offset in [-25, 25).
func (sf *Starfield) spread() float64 {
	return float64(sf.rng.Intn(2*starSpread) - starSpread)
}

// SetViewport limits drawing to a rectangle and centers the origin in it.
func (sf *Starfield) SetViewport(x, y, w, h int) {
	sf.vpX, sf.vpY, sf.vpW, sf.vpH = x, y, w, h
	sf.originX = x + w/2
	sf.originY = y + h/2
}

// Viewport returns the current drawing rectangle.
func (sf *Starfield) Viewport() image.Rectangle {
	return image.Rect(sf.vpX, sf.vpY, sf.vpX+sf.vpW, sf.vpY+sf.vpH)
}

// UpdateAndDraw moves every star one step closer and plots it into dst.
func (sf *Starfield) UpdateAndDraw(dst *image.Gray) {
	vp := sf.Viewport()
	for i := range sf.stars {
		s := &sf.stars[i]
		s.z -= starZStep
		if s.z <= 0 {
			s.x = sf.spread()
			s.y = sf.spread()
			s.z = float64(sf.maxDepth)
		}

		k := starFocal / s.z
		x := int(s.x*k + float64(sf.originX))
		y := int(s.y*k + float64(sf.originY))

		if !(image.Point{X: x, Y: y}).In(vp) {
			continue
		}
		dst.SetGray(x, y, white)
		// near stars get a second pixel
		if (1-s.z/float64(sf.maxDepth))*4 >= 2 {
			dst.SetGray(x+1, y, white)
		}
	}
}

// Len returns the number of stars.
func (sf *Starfield) Len() int { return len(sf.stars) }
