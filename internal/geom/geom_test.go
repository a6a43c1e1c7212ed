package geom

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoundsFromCenter(t *testing.T) {
	b := BoundsFromCenter(Vec3{X: 10, Y: 2, Z: -4}, Vec3{X: 4, Y: 4, Z: 6})
	require.Equal(t, Vec3{X: 8, Y: 0, Z: -7}, b.Min)
	require.Equal(t, Vec3{X: 12, Y: 4, Z: -1}, b.Max)
	require.Equal(t, Vec3{X: 10, Y: 0, Z: -4}, b.FloorCenter())
	require.True(t, b.Contains(b.FloorCenter()))
	require.True(t, b.Contains(b.Max), "inclusive")
	require.False(t, b.Contains(Vec3{X: 12.01, Y: 1, Z: -4}))
}

func TestWithHeight(t *testing.T) {
	b := Bounds{Min: Vec3{Y: 1}, Max: Vec3{X: 2, Y: 1, Z: 2}}.WithHeight(4)
	require.Equal(t, 5.0, b.Max.Y)
	require.Equal(t, Vec3{X: 2, Y: 4, Z: 2}, b.Size())
}

func TestDistances(t *testing.T) {
	a, b := Vec3{X: 0, Y: 0, Z: 0}, Vec3{X: 3, Y: 12, Z: 4}
	require.InDelta(t, 13.0, Dist(a, b), 1e-9)
	require.InDelta(t, 5.0, FlatDist(a, b), 1e-9)
}
