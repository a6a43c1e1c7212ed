// Package geom provides the spatial primitives shared by the facility,
// the room registry and the agents: points and axis-aligned volumes.
// Y is up; the floor is the X/Z plane.
package geom

import (
	"fmt"
	"math"
)

// Vec3 is a point or offset in facility space.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Scale returns v * k.
func (v Vec3) Scale(k float64) Vec3 { return Vec3{v.X * k, v.Y * k, v.Z * k} }

// Len returns the Euclidean length.
func (v Vec3) Len() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// Dist returns the distance between two points.
func Dist(a, b Vec3) float64 { return a.Sub(b).Len() }

// FlatDist returns the distance on the floor plane, ignoring height.
func FlatDist(a, b Vec3) float64 {
	dx, dz := a.X-b.X, a.Z-b.Z
	return math.Sqrt(dx*dx + dz*dz)
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f)", v.X, v.Y, v.Z)
}

// Bounds is an axis-aligned box.
type Bounds struct {
	Min Vec3 `json:"min"`
	Max Vec3 `json:"max"`
}

// BoundsFromCenter builds a box of the given size around center.
func BoundsFromCenter(center, size Vec3) Bounds {
	half := size.Scale(0.5)
	return Bounds{Min: center.Sub(half), Max: center.Add(half)}
}

// Contains reports whether p lies inside b (inclusive).
func (b Bounds) Contains(p Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Center returns the midpoint of b.
func (b Bounds) Center() Vec3 { return b.Min.Add(b.Max).Scale(0.5) }

// Size returns the extent of b on each axis.
func (b Bounds) Size() Vec3 { return b.Max.Sub(b.Min) }

// FloorCenter returns the centre of the box at floor height.
func (b Bounds) FloorCenter() Vec3 {
	c := b.Center()
	c.Y = b.Min.Y
	return c
}

// WithHeight returns b with its ceiling set to floor + h.
func (b Bounds) WithHeight(h float64) Bounds {
	b.Max.Y = b.Min.Y + h
	return b
}
