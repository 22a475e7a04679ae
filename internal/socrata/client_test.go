package socrata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/riskgrid/internal/fetcher"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, pageSize int, format string) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  "test-agent",
		Timeout:    5 * time.Second,
		MaxRetries: 1,
	})
	return NewClient(f, srv.URL, pageSize, format), srv
}

func TestPoints_SinglePage(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/resource/abcd-1234.json", r.URL.Path)
		assert.Equal(t, "year = 2017 AND primary_type = 'WEAPONS VIOLATION'", r.URL.Query().Get("$where"))
		fmt.Fprint(w, `[
			{"case_number":"HZ1","latitude":"41.88","longitude":"-87.63","year":"2017"},
			{"case_number":"HZ2","latitude":"41.90","longitude":"-87.70","year":"2017"}
		]`)
	}, 1000, FormatJSON)

	points, err := c.Points(context.Background(), Crime("abcd-1234", "WEAPONS VIOLATION", 2017))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "HZ1", points[0].Key)
	assert.InDelta(t, 41.88, points[0].Latitude, 1e-9)
	assert.InDelta(t, -87.63, points[0].Longitude, 1e-9)
	assert.Equal(t, 2017, points[0].Year)
}

func TestPoints_Paging(t *testing.T) {
	// Two full pages of 2, then a short page of 1.
	pages := map[int]string{
		0: `[{"case_number":"A","latitude":"41.1","longitude":"-87.1"},{"case_number":"B","latitude":"41.2","longitude":"-87.2"}]`,
		2: `[{"case_number":"C","latitude":"41.3","longitude":"-87.3"},{"case_number":"D","latitude":"41.4","longitude":"-87.4"}]`,
		4: `[{"case_number":"E","latitude":"41.5","longitude":"-87.5"}]`,
	}
	var requests int
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		offset, _ := strconv.Atoi(r.URL.Query().Get("$offset"))
		assert.Equal(t, "2", r.URL.Query().Get("$limit"))
		fmt.Fprint(w, pages[offset])
	}, 2, FormatJSON)

	points, err := c.Points(context.Background(), Crime("abcd-1234", "X", 2017))
	require.NoError(t, err)
	assert.Len(t, points, 5)
	assert.Equal(t, 3, requests)
}

func TestPoints_Dedupe(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"case_number":"DUP","latitude":"41.88","longitude":"-87.63"},
			{"case_number":"DUP","latitude":"41.88","longitude":"-87.63"},
			{"case_number":"OTHER","latitude":"41.90","longitude":"-87.70"}
		]`)
	}, 1000, FormatJSON)

	points, err := c.Points(context.Background(), Crime("abcd-1234", "X", 2017))
	require.NoError(t, err)
	assert.Len(t, points, 2)
}

func TestPoints_DropsRowsWithoutCoordinates(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"case_number":"NO_COORDS"},
			{"case_number":"BAD","latitude":"not-a-number","longitude":"-87.63"},
			{"case_number":"ZERO","latitude":"0","longitude":"0"},
			{"case_number":"OK","latitude":"41.90","longitude":"-87.70"}
		]`)
	}, 1000, FormatJSON)

	points, err := c.Points(context.Background(), Crime("abcd-1234", "X", 2017))
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "OK", points[0].Key)
}

func TestPoints_NestedLocation(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"service_request_number":"SR1","location":{"latitude":"41.85","longitude":"-87.65"}}
		]`)
	}, 1000, FormatJSON)

	points, err := c.Points(context.Background(), ServiceRequests("abandoned", "abcd-1234", "created_date", 2017))
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "SR1", points[0].Key)
	assert.InDelta(t, 41.85, points[0].Latitude, 1e-9)
}

func TestPoints_EmptyDatasetIsError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}, 1000, FormatJSON)

	_, err := c.Points(context.Background(), Crime("abcd-1234", "X", 2017))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no usable rows")
}

func TestPoints_CSVFormat(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/resource/abcd-1234.csv", r.URL.Path)
		assert.Equal(t, "year = 2017 AND primary_type = 'WEAPONS VIOLATION'", r.URL.Query().Get("$where"))
		fmt.Fprint(w, "case_number,latitude,longitude,year\nHZ1,41.88,-87.63,2017\nHZ2,41.90,-87.70,2017\n")
	}, 1000, FormatCSV)

	points, err := c.Points(context.Background(), Crime("abcd-1234", "WEAPONS VIOLATION", 2017))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "HZ1", points[0].Key)
	assert.InDelta(t, 41.88, points[0].Latitude, 1e-9)
	assert.InDelta(t, -87.63, points[0].Longitude, 1e-9)
	assert.Equal(t, 2017, points[0].Year)
}

func TestPoints_CSVPaging(t *testing.T) {
	pages := map[int]string{
		0: "case_number,latitude,longitude\nA,41.1,-87.1\nB,41.2,-87.2\n",
		2: "case_number,latitude,longitude\nC,41.3,-87.3\n",
	}
	var requests int
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		offset, _ := strconv.Atoi(r.URL.Query().Get("$offset"))
		fmt.Fprint(w, pages[offset])
	}, 2, FormatCSV)

	points, err := c.Points(context.Background(), Crime("abcd-1234", "X", 2017))
	require.NoError(t, err)
	assert.Len(t, points, 3)
	assert.Equal(t, 2, requests)
}

func TestPoints_CSVLocationColumn(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "service_request_number,location\nSR1,\"POINT (-87.65 41.85)\"\nSR2,not-a-point\n")
	}, 1000, FormatCSV)

	points, err := c.Points(context.Background(), ServiceRequests("abandoned", "abcd-1234", "created_date", 2017))
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "SR1", points[0].Key)
	assert.InDelta(t, 41.85, points[0].Latitude, 1e-9)
	assert.InDelta(t, -87.65, points[0].Longitude, 1e-9)
}

func TestParsePointWKT(t *testing.T) {
	lat, lng, ok := parsePointWKT("POINT (-87.63 41.88)")
	require.True(t, ok)
	assert.Equal(t, "41.88", lat)
	assert.Equal(t, "-87.63", lng)

	_, _, ok = parsePointWKT("")
	assert.False(t, ok)
	_, _, ok = parsePointWKT("(-87.63, 41.88)")
	assert.False(t, ok)
	_, _, ok = parsePointWKT("POINT (-87.63)")
	assert.False(t, ok)
}

func TestExportGeoJSON(t *testing.T) {
	geojson := `{"type":"FeatureCollection","features":[]}`
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/geospatial/ewy2-6yfk", r.URL.Path)
		assert.Equal(t, "export", r.URL.Query().Get("method"))
		assert.Equal(t, "GeoJSON", r.URL.Query().Get("format"))
		fmt.Fprint(w, geojson)
	}, 1000, FormatJSON)

	data, err := c.ExportGeoJSON(context.Background(), "ewy2-6yfk")
	require.NoError(t, err)
	assert.JSONEq(t, geojson, string(data))
}

func TestDatasetWhereClauses(t *testing.T) {
	assert.Equal(t, "year = 2017 AND primary_type = 'WEAPONS VIOLATION'",
		Crime("x", "WEAPONS VIOLATION", 2017).Where)
	assert.Equal(t, "date_extract_y(creation_date) = 2017",
		ServiceRequests("lights", "x", "creation_date", 2017).Where)
	assert.Equal(t, "date_extract_y(date) = 2018", SensorAlerts("x", 2018).Where)
	assert.Equal(t, "sensor", SensorAlerts("x", 2018).Name)
}
