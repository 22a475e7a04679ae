package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/riskgrid/internal/fishnet"
	"github.com/sells-group/riskgrid/internal/geo"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	stage       TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS points (
	source   TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	year     INTEGER NOT NULL,
	x        REAL NOT NULL,
	y        REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS areas (
	kind TEXT NOT NULL,
	name TEXT NOT NULL,
	geom BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS grid_meta (
	id        INTEGER PRIMARY KEY CHECK (id = 1),
	cell_size REAL NOT NULL,
	origin_x  REAL NOT NULL,
	origin_y  REAL NOT NULL,
	rows      INTEGER NOT NULL,
	cols      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS grid_cells (
	id           INTEGER PRIMARY KEY,
	row          INTEGER NOT NULL,
	col          INTEGER NOT NULL,
	min_x        REAL NOT NULL,
	min_y        REAL NOT NULL,
	max_x        REAL NOT NULL,
	max_y        REAL NOT NULL,
	center_x     REAL NOT NULL,
	center_y     REAL NOT NULL,
	neighborhood TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS cell_features (
	cell_id         INTEGER PRIMARY KEY REFERENCES grid_cells(id),
	crime_count     INTEGER NOT NULL,
	abandoned_count INTEGER NOT NULL,
	lights_count    INTEGER NOT NULL,
	sensor_count    INTEGER NOT NULL,
	abandoned_dist  REAL NOT NULL,
	lights_dist     REAL NOT NULL,
	sensor_dist     REAL NOT NULL,
	local_i         REAL NOT NULL,
	p_value         REAL NOT NULL,
	significant     INTEGER NOT NULL,
	dist_sig        REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS predictions (
	cell_id     INTEGER NOT NULL REFERENCES grid_cells(id),
	scheme      TEXT NOT NULL,
	feature_set TEXT NOT NULL,
	fold        TEXT NOT NULL,
	predicted   REAL NOT NULL,
	observed    REAL NOT NULL,
	PRIMARY KEY (cell_id, scheme, feature_set)
);

CREATE TABLE IF NOT EXISTS kde_values (
	cell_id   INTEGER NOT NULL REFERENCES grid_cells(id),
	bandwidth REAL NOT NULL,
	density   REAL NOT NULL,
	PRIMARY KEY (cell_id, bandwidth)
);

CREATE TABLE IF NOT EXISTS risk_capture (
	method   TEXT NOT NULL,
	category INTEGER NOT NULL,
	events   INTEGER NOT NULL,
	share    REAL NOT NULL,
	PRIMARY KEY (method, category)
);

CREATE TABLE IF NOT EXISTS model_summary (
	scheme      TEXT NOT NULL,
	feature_set TEXT NOT NULL,
	mae_mean    REAL NOT NULL,
	mae_sd      REAL NOT NULL,
	morans_i    REAL NOT NULL,
	morans_p    REAL NOT NULL,
	PRIMARY KEY (scheme, feature_set)
);

CREATE INDEX IF NOT EXISTS idx_points_source_year ON points(source, year);
CREATE INDEX IF NOT EXISTS idx_areas_kind ON areas(kind);
CREATE INDEX IF NOT EXISTS idx_predictions_config ON predictions(scheme, feature_set);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) StartRun(ctx context.Context, stage string) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, stage, status, started_at) VALUES (?, ?, 'running', ?)`,
		id, stage, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert run for stage %s", stage)
	}
	return &Run{ID: id, Stage: stage, Status: "running", StartedAt: now}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		status, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: run %s not found", runID)
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *SQLiteStore) withTx(ctx context.Context, action string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrapf(err, "sqlite: begin %s", action)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit %s", action)
}

func (s *SQLiteStore) ReplacePoints(ctx context.Context, source, category string, year int, pts []fishnet.XY) error {
	return s.withTx(ctx, "replace points", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM points WHERE source = ? AND year = ?`, source, year,
		); err != nil {
			return eris.Wrapf(err, "sqlite: delete points %s/%d", source, year)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO points (source, category, year, x, y) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare insert points")
		}
		defer stmt.Close()
		for _, p := range pts {
			if _, err := stmt.ExecContext(ctx, source, category, year, p.X, p.Y); err != nil {
				return eris.Wrapf(err, "sqlite: insert point %s/%d", source, year)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) Points(ctx context.Context, source string, year int) ([]fishnet.XY, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT x, y FROM points WHERE source = ? AND year = ?`, source, year)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: select points %s/%d", source, year)
	}
	defer rows.Close()

	var pts []fishnet.XY
	for rows.Next() {
		var p fishnet.XY
		if err := rows.Scan(&p.X, &p.Y); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan point")
		}
		pts = append(pts, p)
	}
	return pts, eris.Wrap(rows.Err(), "sqlite: iterate points")
}

func (s *SQLiteStore) ReplaceAreas(ctx context.Context, kind string, areas []geo.Area) error {
	return s.withTx(ctx, "replace areas", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM areas WHERE kind = ?`, kind); err != nil {
			return eris.Wrapf(err, "sqlite: delete areas %s", kind)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO areas (kind, name, geom) VALUES (?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare insert areas")
		}
		defer stmt.Close()
		for _, a := range areas {
			wkb, err := geo.EncodeEWKB(a.Polygon)
			if err != nil {
				return eris.Wrapf(err, "sqlite: encode area %s", a.Name)
			}
			if _, err := stmt.ExecContext(ctx, kind, a.Name, wkb); err != nil {
				return eris.Wrapf(err, "sqlite: insert area %s", a.Name)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) Areas(ctx context.Context, kind string) ([]geo.Area, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, geom FROM areas WHERE kind = ? ORDER BY name`, kind)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: select areas %s", kind)
	}
	defer rows.Close()

	var areas []geo.Area
	for rows.Next() {
		var a geo.Area
		var wkb []byte
		if err := rows.Scan(&a.Name, &wkb); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan area")
		}
		mp, err := geo.DecodeEWKB(wkb)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode area %s", a.Name)
		}
		a.Polygon = mp
		areas = append(areas, a)
	}
	return areas, eris.Wrap(rows.Err(), "sqlite: iterate areas")
}

func (s *SQLiteStore) ReplaceGrid(ctx context.Context, g *fishnet.Grid) error {
	return s.withTx(ctx, "replace grid", func(tx *sql.Tx) error {
		for _, q := range []string{`DELETE FROM grid_meta`, `DELETE FROM grid_cells`} {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return eris.Wrap(err, "sqlite: clear grid")
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO grid_meta (id, cell_size, origin_x, origin_y, rows, cols) VALUES (1, ?, ?, ?, ?, ?)`,
			g.CellSize, g.OriginX, g.OriginY, g.Rows, g.Cols,
		); err != nil {
			return eris.Wrap(err, "sqlite: insert grid meta")
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO grid_cells (id, row, col, min_x, min_y, max_x, max_y, center_x, center_y, neighborhood)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare insert cells")
		}
		defer stmt.Close()
		for _, c := range g.Cells {
			if _, err := stmt.ExecContext(ctx,
				c.ID, c.Row, c.Col, c.MinX, c.MinY, c.MaxX, c.MaxY, c.CenterX, c.CenterY, c.Neighborhood,
			); err != nil {
				return eris.Wrapf(err, "sqlite: insert cell %d", c.ID)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) Grid(ctx context.Context) (*fishnet.Grid, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT cell_size, origin_x, origin_y, rows, cols FROM grid_meta WHERE id = 1`)

	var cellSize, originX, originY float64
	var nrows, ncols int
	if err := row.Scan(&cellSize, &originX, &originY, &nrows, &ncols); err != nil {
		if err == sql.ErrNoRows {
			return nil, eris.New("sqlite: no grid stored, run the grid stage first")
		}
		return nil, eris.Wrap(err, "sqlite: scan grid meta")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, row, col, min_x, min_y, max_x, max_y, center_x, center_y, neighborhood
		 FROM grid_cells ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select cells")
	}
	defer rows.Close()

	var cells []fishnet.Cell
	for rows.Next() {
		var c fishnet.Cell
		if err := rows.Scan(&c.ID, &c.Row, &c.Col, &c.MinX, &c.MinY, &c.MaxX, &c.MaxY,
			&c.CenterX, &c.CenterY, &c.Neighborhood); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cell")
		}
		cells = append(cells, c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate cells")
	}
	if len(cells) == 0 {
		return nil, eris.New("sqlite: grid has no cells")
	}
	return fishnet.Restore(cellSize, originX, originY, nrows, ncols, cells), nil
}

func (s *SQLiteStore) ReplaceFeatures(ctx context.Context, feats []CellFeatures) error {
	return s.withTx(ctx, "replace features", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cell_features`); err != nil {
			return eris.Wrap(err, "sqlite: delete features")
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO cell_features (cell_id, crime_count, abandoned_count, lights_count, sensor_count,
			 abandoned_dist, lights_dist, sensor_dist, local_i, p_value, significant, dist_sig)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare insert features")
		}
		defer stmt.Close()
		for _, f := range feats {
			sig := 0
			if f.Significant {
				sig = 1
			}
			if _, err := stmt.ExecContext(ctx,
				f.CellID, f.CrimeCount, f.AbandonedCount, f.LightsCount, f.SensorCount,
				f.AbandonedDist, f.LightsDist, f.SensorDist, f.LocalI, f.PValue, sig, f.DistSig,
			); err != nil {
				return eris.Wrapf(err, "sqlite: insert features for cell %d", f.CellID)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) Features(ctx context.Context) ([]CellFeatures, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cell_id, crime_count, abandoned_count, lights_count, sensor_count,
		 abandoned_dist, lights_dist, sensor_dist, local_i, p_value, significant, dist_sig
		 FROM cell_features ORDER BY cell_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select features")
	}
	defer rows.Close()

	var feats []CellFeatures
	for rows.Next() {
		var f CellFeatures
		var sig int
		if err := rows.Scan(&f.CellID, &f.CrimeCount, &f.AbandonedCount, &f.LightsCount, &f.SensorCount,
			&f.AbandonedDist, &f.LightsDist, &f.SensorDist, &f.LocalI, &f.PValue, &sig, &f.DistSig); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan features")
		}
		f.Significant = sig != 0
		feats = append(feats, f)
	}
	return feats, eris.Wrap(rows.Err(), "sqlite: iterate features")
}

func (s *SQLiteStore) ReplacePredictions(ctx context.Context, scheme, featureSet string, preds []Prediction) error {
	return s.withTx(ctx, "replace predictions", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM predictions WHERE scheme = ? AND feature_set = ?`, scheme, featureSet,
		); err != nil {
			return eris.Wrapf(err, "sqlite: delete predictions %s/%s", scheme, featureSet)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO predictions (cell_id, scheme, feature_set, fold, predicted, observed)
			 VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare insert predictions")
		}
		defer stmt.Close()
		for _, p := range preds {
			if _, err := stmt.ExecContext(ctx,
				p.CellID, scheme, featureSet, p.Fold, p.Predicted, p.Observed,
			); err != nil {
				return eris.Wrapf(err, "sqlite: insert prediction for cell %d", p.CellID)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) Predictions(ctx context.Context, scheme, featureSet string) ([]Prediction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cell_id, fold, predicted, observed FROM predictions
		 WHERE scheme = ? AND feature_set = ? ORDER BY cell_id`, scheme, featureSet)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: select predictions %s/%s", scheme, featureSet)
	}
	defer rows.Close()

	var preds []Prediction
	for rows.Next() {
		var p Prediction
		if err := rows.Scan(&p.CellID, &p.Fold, &p.Predicted, &p.Observed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan prediction")
		}
		preds = append(preds, p)
	}
	return preds, eris.Wrap(rows.Err(), "sqlite: iterate predictions")
}

func (s *SQLiteStore) ReplaceKDE(ctx context.Context, bandwidth float64, values []KDEValue) error {
	return s.withTx(ctx, "replace kde", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM kde_values WHERE bandwidth = ?`, bandwidth,
		); err != nil {
			return eris.Wrapf(err, "sqlite: delete kde %v", bandwidth)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO kde_values (cell_id, bandwidth, density) VALUES (?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare insert kde")
		}
		defer stmt.Close()
		for _, v := range values {
			if _, err := stmt.ExecContext(ctx, v.CellID, bandwidth, v.Density); err != nil {
				return eris.Wrapf(err, "sqlite: insert kde for cell %d", v.CellID)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) KDE(ctx context.Context, bandwidth float64) ([]KDEValue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cell_id, density FROM kde_values WHERE bandwidth = ? ORDER BY cell_id`, bandwidth)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: select kde %v", bandwidth)
	}
	defer rows.Close()

	var values []KDEValue
	for rows.Next() {
		var v KDEValue
		if err := rows.Scan(&v.CellID, &v.Density); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan kde")
		}
		values = append(values, v)
	}
	return values, eris.Wrap(rows.Err(), "sqlite: iterate kde")
}

func (s *SQLiteStore) ReplaceRiskCapture(ctx context.Context, rows []RiskCapture) error {
	return s.withTx(ctx, "replace risk capture", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM risk_capture`); err != nil {
			return eris.Wrap(err, "sqlite: delete risk capture")
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO risk_capture (method, category, events, share) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare insert risk capture")
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, r.Method, r.Category, r.Events, r.Share); err != nil {
				return eris.Wrapf(err, "sqlite: insert risk capture %s/%d", r.Method, r.Category)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) RiskCapture(ctx context.Context) ([]RiskCapture, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT method, category, events, share FROM risk_capture ORDER BY method, category`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select risk capture")
	}
	defer rows.Close()

	var out []RiskCapture
	for rows.Next() {
		var r RiskCapture
		if err := rows.Scan(&r.Method, &r.Category, &r.Events, &r.Share); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan risk capture")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate risk capture")
}

func (s *SQLiteStore) ReplaceModelSummaries(ctx context.Context, rows []ModelSummary) error {
	return s.withTx(ctx, "replace model summaries", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM model_summary`); err != nil {
			return eris.Wrap(err, "sqlite: delete model summaries")
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO model_summary (scheme, feature_set, mae_mean, mae_sd, morans_i, morans_p)
			 VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare insert model summaries")
		}
		defer stmt.Close()
		for _, m := range rows {
			if _, err := stmt.ExecContext(ctx,
				m.Scheme, m.FeatureSet, m.MAEMean, m.MAESD, m.MoransI, m.MoransP,
			); err != nil {
				return eris.Wrapf(err, "sqlite: insert model summary %s/%s", m.Scheme, m.FeatureSet)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ModelSummaries(ctx context.Context) ([]ModelSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT scheme, feature_set, mae_mean, mae_sd, morans_i, morans_p
		 FROM model_summary ORDER BY scheme, feature_set`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select model summaries")
	}
	defer rows.Close()

	var out []ModelSummary
	for rows.Next() {
		var m ModelSummary
		if err := rows.Scan(&m.Scheme, &m.FeatureSet, &m.MAEMean, &m.MAESD, &m.MoransI, &m.MoransP); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan model summary")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate model summaries")
}
