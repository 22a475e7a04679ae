// Package fetcher downloads and parses data from HTTP, CSV, and JSON sources.
package fetcher

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// DecodeCSV streams the data rows of a CSV export that begins with a header
// row. The header is read up front so callers can map column names to field
// positions; data rows follow on the returned channel with surrounding
// whitespace trimmed, mirroring DecodeJSONArray's channel contract. Empty
// input yields a nil header and no rows. Both channels are closed when
// processing completes.
func DecodeCSV(ctx context.Context, r io.Reader) ([]string, <-chan []string, <-chan error, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // allow variable fields

	header, err := reader.Read()
	if err == io.EOF {
		rowCh := make(chan []string)
		errCh := make(chan error)
		close(rowCh)
		close(errCh)
		return nil, rowCh, errCh, nil
	}
	if err != nil {
		return nil, nil, nil, eris.Wrap(err, "csv: read header")
	}
	for i, name := range header {
		header[i] = strings.TrimSpace(name)
	}

	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return header, rowCh, errCh, nil
}
