package geo

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// SRID identifies the state-plane system used for stored geometries.
const SRID = 3435

// EncodeEWKB serializes a multipolygon to EWKB bytes for storage.
func EncodeEWKB(mp *geom.MultiPolygon) ([]byte, error) {
	cloned := geom.NewMultiPolygonFlat(mp.Layout(), mp.FlatCoords(), mp.Endss()).SetSRID(SRID)
	data, err := ewkb.Marshal(cloned, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode ewkb")
	}
	return data, nil
}

// DecodeEWKB deserializes stored EWKB bytes back into a multipolygon.
func DecodeEWKB(data []byte) (*geom.MultiPolygon, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "geo: decode ewkb")
	}
	mp, ok := g.(*geom.MultiPolygon)
	if !ok {
		return nil, eris.Errorf("geo: ewkb is %T, want multipolygon", g)
	}
	return mp, nil
}
