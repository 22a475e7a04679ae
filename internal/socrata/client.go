// Package socrata fetches rows from the Chicago open-data portal's SODA API.
package socrata

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/riskgrid/internal/fetcher"
)

// Point is a single geocoded record from a point dataset, in WGS84 degrees.
type Point struct {
	Key       string
	Latitude  float64
	Longitude float64
	Year      int
}

// Resource page formats the portal serves. JSON is the default; CSV is useful
// when a dataset's JSON endpoint is misbehaving or an operator wants exports
// that match the portal's download links.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Client pages through SODA dataset resources.
type Client struct {
	fetch    fetcher.Fetcher
	baseURL  string
	pageSize int
	format   string
}

// NewClient creates a portal client. pageSize caps rows per request; the SODA
// API allows up to 50000 without an app token. format selects the resource
// page encoding, FormatJSON when empty.
func NewClient(f fetcher.Fetcher, baseURL string, pageSize int, format string) *Client {
	if pageSize <= 0 {
		pageSize = 50000
	}
	if format == "" {
		format = FormatJSON
	}
	return &Client{fetch: f, baseURL: baseURL, pageSize: pageSize, format: format}
}

// sodaRow is the union of the fields we read across the point datasets.
// Every SODA field arrives as a string; coordinates are parsed downstream.
type sodaRow struct {
	Latitude             string        `json:"latitude"`
	Longitude            string        `json:"longitude"`
	CaseNumber           string        `json:"case_number"`
	Year                 string        `json:"year"`
	ServiceRequestNumber string        `json:"service_request_number"`
	UniqueKey            string        `json:"unique_key"`
	Location             *sodaLocation `json:"location"`
}

type sodaLocation struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

func (c *Client) pageURL(dataset, where string, limit, offset int) string {
	q := url.Values{}
	q.Set("$limit", strconv.Itoa(limit))
	q.Set("$offset", strconv.Itoa(offset))
	q.Set("$order", ":id")
	if where != "" {
		q.Set("$where", where)
	}
	return fmt.Sprintf("%s/resource/%s.%s?%s", c.baseURL, dataset, c.format, q.Encode())
}

// Points downloads every row of the dataset matching the descriptor's filter,
// deduplicated by record key. Rows without usable coordinates are dropped.
// An empty result set is an error: the pipeline cannot proceed without events.
func (c *Client) Points(ctx context.Context, ds Dataset) ([]Point, error) {
	log := zap.L().With(zap.String("dataset", ds.ID), zap.String("source", ds.Name))

	seen := make(map[string]bool)
	var points []Point
	var skipped int

	for offset := 0; ; offset += c.pageSize {
		rows, err := c.fetchPage(ctx, ds, offset)
		if err != nil {
			return nil, err
		}

		for _, row := range rows {
			p, ok := rowToPoint(row, ds.Year)
			if !ok {
				skipped++
				continue
			}
			if p.Key != "" && seen[p.Key] {
				continue
			}
			if p.Key != "" {
				seen[p.Key] = true
			}
			points = append(points, p)
		}

		log.Debug("fetched page", zap.Int("offset", offset), zap.Int("rows", len(rows)))
		if len(rows) < c.pageSize {
			break
		}
	}

	if skipped > 0 {
		log.Debug("dropped rows without coordinates", zap.Int("skipped", skipped))
	}
	if len(points) == 0 {
		return nil, eris.Errorf("socrata: dataset %s returned no usable rows for %q", ds.ID, ds.Where)
	}

	log.Info("dataset downloaded", zap.Int("points", len(points)))
	return points, nil
}

func (c *Client) fetchPage(ctx context.Context, ds Dataset, offset int) ([]sodaRow, error) {
	body, err := c.fetch.Download(ctx, c.pageURL(ds.ID, ds.Where, c.pageSize, offset))
	if err != nil {
		return nil, eris.Wrapf(err, "socrata: fetch %s offset %d", ds.ID, offset)
	}
	defer body.Close() //nolint:errcheck

	var rows []sodaRow
	if c.format == FormatCSV {
		rows, err = decodeCSVPage(ctx, body)
	} else {
		rows, err = decodeJSONPage(ctx, body)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "socrata: decode %s offset %d", ds.ID, offset)
	}
	return rows, nil
}

func decodeJSONPage(ctx context.Context, r io.Reader) ([]sodaRow, error) {
	rowCh, errCh := fetcher.DecodeJSONArray[sodaRow](ctx, r)
	var rows []sodaRow
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return rows, nil
}

// decodeCSVPage maps a CSV resource page onto the same row shape the JSON
// endpoint produces. Location columns arrive as WKT points in CSV exports.
func decodeCSVPage(ctx context.Context, r io.Reader) ([]sodaRow, error) {
	header, recCh, errCh, err := fetcher.DecodeCSV(ctx, r)
	if err != nil {
		return nil, err
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(name)] = i
	}
	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var rows []sodaRow
	for rec := range recCh {
		row := sodaRow{
			Latitude:             field(rec, "latitude"),
			Longitude:            field(rec, "longitude"),
			CaseNumber:           field(rec, "case_number"),
			Year:                 field(rec, "year"),
			ServiceRequestNumber: field(rec, "service_request_number"),
			UniqueKey:            field(rec, "unique_key"),
		}
		if row.Latitude == "" || row.Longitude == "" {
			if lat, lng, ok := parsePointWKT(field(rec, "location")); ok {
				row.Location = &sodaLocation{Latitude: lat, Longitude: lng}
			}
		}
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return rows, nil
}

// parsePointWKT splits "POINT (lng lat)" into its coordinate strings.
func parsePointWKT(s string) (lat, lng string, ok bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "POINT") {
		return "", "", false
	}
	s = strings.TrimSpace(strings.TrimPrefix(s, "POINT"))
	s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[1], parts[0], true
}

// rowToPoint extracts coordinates and the dedup key from a raw row.
func rowToPoint(row sodaRow, year int) (Point, bool) {
	latStr, lngStr := row.Latitude, row.Longitude
	if latStr == "" || lngStr == "" {
		if row.Location == nil {
			return Point{}, false
		}
		latStr, lngStr = row.Location.Latitude, row.Location.Longitude
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return Point{}, false
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return Point{}, false
	}
	if lat == 0 && lng == 0 {
		return Point{}, false
	}

	key := row.CaseNumber
	if key == "" {
		key = row.ServiceRequestNumber
	}
	if key == "" {
		key = row.UniqueKey
	}

	return Point{Key: key, Latitude: lat, Longitude: lng, Year: year}, true
}

// ExportGeoJSON downloads a geospatial dataset as GeoJSON bytes.
func (c *Client) ExportGeoJSON(ctx context.Context, dataset string) ([]byte, error) {
	u := fmt.Sprintf("%s/api/geospatial/%s?method=export&format=GeoJSON", c.baseURL, dataset)
	body, err := c.fetch.Download(ctx, u)
	if err != nil {
		return nil, eris.Wrapf(err, "socrata: export geojson %s", dataset)
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, eris.Wrapf(err, "socrata: read geojson %s", dataset)
	}
	if len(data) == 0 {
		return nil, eris.Errorf("socrata: empty geojson export for %s", dataset)
	}
	return data, nil
}
