package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phantomjam/engine/internal/config"
	"github.com/phantomjam/engine/internal/track"
)

func TestTrackOutline3857_Linear(t *testing.T) {
	o := NewPlaneOrigin(config.GeoConfig{MetersPerUnit: 1})
	g := track.New(track.Linear, 900, 700)

	ls, err := o.TrackOutline3857(g, 2)
	require.NoError(t, err)

	seq := ls.Coordinates()
	require.Equal(t, 3, seq.Length())

	first := seq.Get(0)
	assert.InDelta(t, 0, first.X, 1e-6)
	assert.InDelta(t, 350, first.Y, 1e-6)

	last := seq.Get(seq.Length() - 1)
	assert.InDelta(t, 900, last.X, 1e-6)
	assert.InDelta(t, 350, last.Y, 1e-6)
}

func TestTrackOutline3857_CircularClosed(t *testing.T) {
	o := NewPlaneOrigin(config.GeoConfig{MetersPerUnit: 1})
	g := track.New(track.Circular, 900, 700)

	ls, err := o.TrackOutline3857(g, 64)
	require.NoError(t, err)

	seq := ls.Coordinates()
	require.Equal(t, 65, seq.Length())

	// loop starts on the +x axis of the plane center
	first := seq.Get(0)
	assert.InDelta(t, 450+233, first.X, 1e-6)
	assert.InDelta(t, 350, first.Y, 1e-6)

	last := seq.Get(seq.Length() - 1)
	assert.InDelta(t, first.X, last.X, 1e-6)
	assert.InDelta(t, first.Y, last.Y, 1e-6)
}

func TestTrackOutline3857_TooFewSegments(t *testing.T) {
	o := NewPlaneOrigin(config.GeoConfig{MetersPerUnit: 1})
	g := track.New(track.Circular, 900, 700)

	_, err := o.TrackOutline3857(g, 1)
	require.Error(t, err)
}
