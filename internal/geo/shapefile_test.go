package geo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/riskgrid/internal/crs"
)

func writeTestShapefile(t *testing.T, path string) {
	t.Helper()

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)

	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("PRI_NEIGH", 50)}))

	rings := [][][]shp.Point{
		{{{X: -87.74, Y: 41.89}, {X: -87.69, Y: 41.89}, {X: -87.69, Y: 41.91}, {X: -87.74, Y: 41.91}, {X: -87.74, Y: 41.89}}},
		{{{X: -87.72, Y: 41.91}, {X: -87.68, Y: 41.91}, {X: -87.68, Y: 41.94}, {X: -87.72, Y: 41.94}, {X: -87.72, Y: 41.91}}},
	}
	names := []string{"HUMBOLDT PARK", "LOGAN SQUARE"}

	for i, ring := range rings {
		poly := shp.Polygon(*shp.NewPolyLine(ring))
		w.Write(&poly)
		require.NoError(t, w.WriteAttribute(i, 0, names[i]))
	}
	w.Close()

	// go-shp v0.1.1's Writer names the attribute table "<base>dbf" (the dot
	// is lost), while its Reader opens "<base>.dbf"; rename so the reader
	// can find it.
	base := strings.TrimSuffix(path, ".shp")
	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
}

func TestLoadShapefile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hoods.shp")
	writeTestShapefile(t, path)

	proj := crs.NewIllinoisEast()
	areas, err := LoadShapefile(path, "PRI_NEIGH", proj)
	require.NoError(t, err)
	require.Len(t, areas, 2)

	assert.Equal(t, "Humboldt Park", areas[0].Name)
	assert.Equal(t, "Logan Square", areas[1].Name)

	e, n, err := proj.Forward(41.90, -87.71)
	require.NoError(t, err)
	assert.True(t, ContainsPoint(areas[0].Polygon, e, n))
}

func TestLoadShapefile_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hoods.shp")
	writeTestShapefile(t, path)

	_, err := LoadShapefile(path, "NOPE", crs.NewIllinoisEast())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no field")
}

func TestLoadShapefile_MissingFile(t *testing.T) {
	_, err := LoadShapefile(filepath.Join(t.TempDir(), "missing.shp"), "", crs.NewIllinoisEast())
	assert.Error(t, err)
}
