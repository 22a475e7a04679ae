package kde

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/riskgrid/internal/fishnet"
)

func TestQuartic_ZeroBeyondBandwidth(t *testing.T) {
	points := []fishnet.XY{{X: 0, Y: 0}}
	sites := []fishnet.XY{{X: 0, Y: 0}, {X: 500, Y: 0}, {X: 5000, Y: 0}}

	d, err := Quartic(sites, points, 1000)
	require.NoError(t, err)

	assert.Greater(t, d[0], 0.0)
	assert.Greater(t, d[1], 0.0)
	assert.Zero(t, d[2], "site beyond the bandwidth sees no density")
}

func TestQuartic_PeaksAtEventLocation(t *testing.T) {
	points := []fishnet.XY{{X: 100, Y: 100}}
	sites := []fishnet.XY{
		{X: 100, Y: 100},
		{X: 300, Y: 100},
		{X: 100, Y: 600},
	}

	d, err := Quartic(sites, points, 1000)
	require.NoError(t, err)

	assert.Greater(t, d[0], d[1])
	assert.Greater(t, d[1], d[2])
}

func TestQuartic_MorePointsMoreDensity(t *testing.T) {
	site := []fishnet.XY{{X: 0, Y: 0}}
	one := []fishnet.XY{{X: 50, Y: 0}}
	three := []fishnet.XY{{X: 50, Y: 0}, {X: 0, Y: 50}, {X: -50, Y: 0}}

	d1, err := Quartic(site, one, 1000)
	require.NoError(t, err)
	d3, err := Quartic(site, three, 1000)
	require.NoError(t, err)

	assert.Greater(t, d3[0], d1[0])
}

func TestQuartic_WiderBandwidthReachesFartherEvents(t *testing.T) {
	site := []fishnet.XY{{X: 0, Y: 0}}
	points := []fishnet.XY{{X: 1200, Y: 0}}

	narrow, err := Quartic(site, points, 1000)
	require.NoError(t, err)
	mid, err := Quartic(site, points, 1500)
	require.NoError(t, err)
	wide, err := Quartic(site, points, 2000)
	require.NoError(t, err)

	assert.Zero(t, narrow[0], "event beyond the bandwidth contributes nothing")
	assert.Greater(t, mid[0], 0.0, "widening past the nearest event picks it up")
	assert.Greater(t, wide[0], 0.0)
}

func TestQuartic_WiderBandwidthSpreadsThePeak(t *testing.T) {
	site := []fishnet.XY{{X: 0, Y: 0}}
	points := []fishnet.XY{{X: 0, Y: 0}}

	narrow, err := Quartic(site, points, 1000)
	require.NoError(t, err)
	wide, err := Quartic(site, points, 2000)
	require.NoError(t, err)

	// Each event carries unit mass at any bandwidth, so a wider kernel
	// trades peak height for reach.
	assert.Greater(t, narrow[0], wide[0])
	assert.InDelta(t, 4.0, narrow[0]/wide[0], 1e-9)
}

func TestQuartic_NoPoints(t *testing.T) {
	sites := []fishnet.XY{{X: 0, Y: 0}, {X: 1, Y: 1}}
	d, err := Quartic(sites, nil, 1000)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, d)
}

func TestQuartic_Errors(t *testing.T) {
	sites := []fishnet.XY{{X: 0, Y: 0}}
	points := []fishnet.XY{{X: 0, Y: 0}}

	_, err := Quartic(sites, points, 0)
	assert.Error(t, err)

	_, err = Quartic(sites, points, -100)
	assert.Error(t, err)

	_, err = Quartic(nil, points, 1000)
	assert.Error(t, err)
}
