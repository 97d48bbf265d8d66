package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/okian/pulse/internal/domain/model"
)

const driverSQLite = "sqlite"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS weight_profiles (
	version          TEXT PRIMARY KEY,
	description      TEXT NOT NULL DEFAULT '',
	weights          TEXT NOT NULL,
	role_adjustments TEXT NOT NULL DEFAULT '{}',
	active           INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL,
	activated_at     TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_weight_profiles_active ON weight_profiles(active) WHERE active = 1;

CREATE TABLE IF NOT EXISTS entities (
	id         TEXT PRIMARY KEY,
	role       TEXT NOT NULL DEFAULT '',
	active     INTEGER NOT NULL DEFAULT 1,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS score_inputs (
	entity_id     TEXT NOT NULL,
	timeframe     TEXT NOT NULL,
	period_start  TEXT NOT NULL,
	period_end    TEXT NOT NULL,
	submission_id TEXT NOT NULL DEFAULT '',
	scores        TEXT NOT NULL,
	sample_size   INTEGER NOT NULL DEFAULT 0,
	submitted_at  TEXT NOT NULL,
	PRIMARY KEY (entity_id, timeframe, period_start, period_end)
);

CREATE TABLE IF NOT EXISTS score_records (
	entity_id        TEXT NOT NULL,
	timeframe        TEXT NOT NULL,
	period_start     TEXT NOT NULL,
	period_end       TEXT NOT NULL,
	overall_score    REAL NOT NULL,
	confidence_score REAL NOT NULL,
	category_scores  TEXT NOT NULL,
	percentiles      TEXT,
	trend_direction  TEXT NOT NULL DEFAULT 'unknown',
	trend_strength   REAL NOT NULL DEFAULT 0,
	previous_score   REAL,
	score_change     REAL,
	sample_size      INTEGER NOT NULL DEFAULT 0,
	profile_version  TEXT NOT NULL,
	role             TEXT NOT NULL DEFAULT '',
	degraded         INTEGER NOT NULL DEFAULT 0,
	degraded_reason  TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL,
	UNIQUE (entity_id, timeframe, period_start, period_end)
);
CREATE INDEX IF NOT EXISTS idx_score_records_period ON score_records(timeframe, period_start, period_end);

CREATE TABLE IF NOT EXISTS alerts (
	id              TEXT PRIMARY KEY,
	entity_id       TEXT NOT NULL,
	rule            TEXT NOT NULL,
	alert_type      TEXT NOT NULL,
	severity        TEXT NOT NULL,
	category        TEXT NOT NULL,
	message         TEXT NOT NULL,
	metric_value    REAL NOT NULL,
	threshold_value REAL NOT NULL,
	alert_date      TEXT NOT NULL,
	timeframe       TEXT NOT NULL,
	period_start    TEXT NOT NULL,
	period_end      TEXT NOT NULL,
	is_active       INTEGER NOT NULL DEFAULT 1,
	acknowledged_at TEXT,
	created_at      TEXT NOT NULL,
	UNIQUE (entity_id, rule, alert_type, category, alert_date)
);
CREATE INDEX IF NOT EXISTS idx_alerts_entity_date ON alerts(entity_id, alert_date);
`

const (
	profileColumns = `version, description, weights, role_adjustments, active, created_at, activated_at`
	scoreColumns   = `entity_id, timeframe, period_start, period_end, overall_score, confidence_score,
	category_scores, percentiles, trend_direction, trend_strength, previous_score, score_change,
	sample_size, profile_version, role, degraded, degraded_reason, created_at, updated_at`
	alertColumns = `id, entity_id, rule, alert_type, severity, category, message, metric_value,
	threshold_value, alert_date, timeframe, period_start, period_end, is_active, acknowledged_at, created_at`
	severityOrder = `CASE severity WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0 END`
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path and applies the schema.
func NewSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer; keeps activation and upserts serialized at the connection.
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateProfile(ctx context.Context, p model.WeightProfile) (err error) {
	defer func(start time.Time) { observe(driverSQLite, "create_profile", start, err) }(time.Now())
	weights, err := encodeJSON(p.Weights)
	if err != nil {
		return err
	}
	adjustments, err := encodeJSON(p.RoleAdjustments)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO weight_profiles (version, description, weights, role_adjustments, active, created_at)
		VALUES (?, ?, ?, ?, 0, ?) ON CONFLICT(version) DO NOTHING`,
		p.Version, p.Description, string(weights), string(adjustments), formatTime(p.CreatedAt),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: create profile %s", p.Version)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", model.ErrProfileExists, p.Version)
	}
	return nil
}

func (s *SQLiteStore) scanProfile(row rowScanner) (model.WeightProfile, error) {
	var (
		p                    model.WeightProfile
		weights, adjustments string
		active               int
		createdAt            string
		activatedAt          *string
	)
	if err := row.Scan(&p.Version, &p.Description, &weights, &adjustments, &active, &createdAt, &activatedAt); err != nil {
		return model.WeightProfile{}, err
	}
	p.Active = active == 1
	if err := decodeJSON([]byte(weights), &p.Weights); err != nil {
		return model.WeightProfile{}, err
	}
	if err := decodeJSON([]byte(adjustments), &p.RoleAdjustments); err != nil {
		return model.WeightProfile{}, err
	}
	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.WeightProfile{}, err
	}
	if p.ActivatedAt, err = parseOptionalTime(activatedAt); err != nil {
		return model.WeightProfile{}, err
	}
	return p, nil
}

func (s *SQLiteStore) GetProfile(ctx context.Context, version string) (p model.WeightProfile, err error) {
	defer func(start time.Time) { observe(driverSQLite, "get_profile", start, err) }(time.Now())
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM weight_profiles WHERE version = ?`, version)
	p, err = s.scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.WeightProfile{}, fmt.Errorf("%w: %s", model.ErrProfileNotFound, version)
	}
	return p, eris.Wrapf(err, "sqlite: get profile %s", version)
}

func (s *SQLiteStore) ListProfiles(ctx context.Context) (out []model.WeightProfile, err error) {
	defer func(start time.Time) { observe(driverSQLite, "list_profiles", start, err) }(time.Now())
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM weight_profiles ORDER BY created_at, version`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list profiles")
	}
	defer rows.Close()
	for rows.Next() {
		p, err := s.scanProfile(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan profile")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list profiles")
}

// ActivateProfile deactivates the current profile and activates version in one transaction.
func (s *SQLiteStore) ActivateProfile(ctx context.Context, version string, at time.Time) (err error) {
	defer func(start time.Time) { observe(driverSQLite, "activate_profile", start, err) }(time.Now())
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin activation")
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM weight_profiles WHERE version = ?`, version).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", model.ErrProfileNotFound, version)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: lookup profile %s", version)
	}
	if _, err = tx.ExecContext(ctx, `UPDATE weight_profiles SET active = 0 WHERE active = 1`); err != nil {
		return eris.Wrap(err, "sqlite: deactivate profiles")
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE weight_profiles SET active = 1, activated_at = ? WHERE version = ?`, formatTime(at), version,
	); err != nil {
		return eris.Wrapf(err, "sqlite: activate profile %s", version)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit activation")
}

func (s *SQLiteStore) ActiveProfile(ctx context.Context) (p model.WeightProfile, err error) {
	defer func(start time.Time) { observe(driverSQLite, "active_profile", start, err) }(time.Now())
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM weight_profiles WHERE active = 1`)
	p, err = s.scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.WeightProfile{}, model.ErrNoActiveProfile
	}
	return p, eris.Wrap(err, "sqlite: active profile")
}

func (s *SQLiteStore) UpsertEntity(ctx context.Context, e model.Entity) (err error) {
	defer func(start time.Time) { observe(driverSQLite, "upsert_entity", start, err) }(time.Now())
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entities (id, role, active, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET role = excluded.role, active = excluded.active, updated_at = excluded.updated_at`,
		e.ID, e.Role, boolInt(e.Active), formatTime(e.UpdatedAt),
	)
	return eris.Wrapf(err, "sqlite: upsert entity %s", e.ID)
}

func scanEntity(row rowScanner) (model.Entity, error) {
	var (
		e         model.Entity
		active    int
		updatedAt string
	)
	if err := row.Scan(&e.ID, &e.Role, &active, &updatedAt); err != nil {
		return model.Entity{}, err
	}
	e.Active = active == 1
	var err error
	e.UpdatedAt, err = parseTime(updatedAt)
	return e, err
}

func (s *SQLiteStore) GetEntity(ctx context.Context, id string) (model.Entity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, role, active, updated_at FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Entity{}, fmt.Errorf("%w: %s", model.ErrEntityNotFound, id)
	}
	return e, eris.Wrapf(err, "sqlite: get entity %s", id)
}

func (s *SQLiteStore) ListActiveEntities(ctx context.Context) (out []model.Entity, err error) {
	defer func(start time.Time) { observe(driverSQLite, "list_active_entities", start, err) }(time.Now())
	rows, err := s.db.QueryContext(ctx, `SELECT id, role, active, updated_at FROM entities WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entities")
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list entities")
}

func (s *SQLiteStore) PutScoreSet(ctx context.Context, set model.CategoryScoreSet) (err error) {
	defer func(start time.Time) { observe(driverSQLite, "put_score_set", start, err) }(time.Now())
	scores, err := encodeJSON(set.Scores)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO score_inputs (entity_id, timeframe, period_start, period_end, submission_id, scores, sample_size, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id, timeframe, period_start, period_end) DO UPDATE SET
			submission_id = excluded.submission_id, scores = excluded.scores,
			sample_size = excluded.sample_size, submitted_at = excluded.submitted_at`,
		set.EntityID, string(set.Timeframe), formatDate(set.Period.Start), formatDate(set.Period.End),
		set.SubmissionID, string(scores), set.SampleSize, formatTime(set.SubmittedAt),
	)
	return eris.Wrapf(err, "sqlite: put score set %s", set.EntityID)
}

func (s *SQLiteStore) GetScoreSet(ctx context.Context, key model.ScoreKey) (model.CategoryScoreSet, error) {
	var (
		set                model.CategoryScoreSet
		tf, start, end, at string
		scores             string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT entity_id, timeframe, period_start, period_end, submission_id, scores, sample_size, submitted_at
		FROM score_inputs WHERE entity_id = ? AND timeframe = ? AND period_start = ? AND period_end = ?`,
		key.EntityID, string(key.Timeframe), formatDate(key.Period.Start), formatDate(key.Period.End),
	).Scan(&set.EntityID, &tf, &start, &end, &set.SubmissionID, &scores, &set.SampleSize, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CategoryScoreSet{}, fmt.Errorf("score set for %s %s: %w", key.EntityID, key.Period, model.ErrNotFound)
	}
	if err != nil {
		return model.CategoryScoreSet{}, eris.Wrapf(err, "sqlite: get score set %s", key.EntityID)
	}
	set.Timeframe = model.Timeframe(tf)
	if set.Period, err = parsePeriod(start, end); err != nil {
		return model.CategoryScoreSet{}, err
	}
	if set.SubmittedAt, err = parseTime(at); err != nil {
		return model.CategoryScoreSet{}, err
	}
	return set, decodeJSON([]byte(scores), &set.Scores)
}

func (s *SQLiteStore) UpsertScore(ctx context.Context, r model.ScoreRecord) (_ model.ScoreRecord, err error) {
	defer func(start time.Time) { observe(driverSQLite, "upsert_score", start, err) }(time.Now())
	categories, err := encodeJSON(r.CategoryScores)
	if err != nil {
		return model.ScoreRecord{}, err
	}
	var createdAt string
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO score_records (entity_id, timeframe, period_start, period_end, overall_score, confidence_score,
			category_scores, percentiles, trend_direction, trend_strength, previous_score, score_change,
			sample_size, profile_version, role, degraded, degraded_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, 'unknown', 0, NULL, NULL, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id, timeframe, period_start, period_end) DO UPDATE SET
			overall_score = excluded.overall_score, confidence_score = excluded.confidence_score,
			category_scores = excluded.category_scores, percentiles = NULL,
			trend_direction = 'unknown', trend_strength = 0, previous_score = NULL, score_change = NULL,
			sample_size = excluded.sample_size, profile_version = excluded.profile_version,
			role = excluded.role, degraded = excluded.degraded, degraded_reason = excluded.degraded_reason,
			updated_at = excluded.updated_at
		RETURNING created_at`,
		r.EntityID, string(r.Timeframe), formatDate(r.Period.Start), formatDate(r.Period.End),
		r.OverallScore, r.ConfidenceScore, string(categories),
		r.SampleSize, r.ProfileVersion, r.Role, boolInt(r.Degraded), r.DegradedReason,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	).Scan(&createdAt)
	if err != nil {
		return model.ScoreRecord{}, eris.Wrapf(err, "sqlite: upsert score %s", r.EntityID)
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.ScoreRecord{}, err
	}
	r.Percentiles = nil
	r.Trend = model.Trend{Direction: model.TrendUnknown}
	return r, nil
}

func scanScoreSQLite(row rowScanner) (model.ScoreRecord, error) {
	var (
		r                    model.ScoreRecord
		tf, start, end, dir  string
		categories           string
		percentiles          *string
		degraded             int
		createdAt, updatedAt string
	)
	if err := row.Scan(&r.EntityID, &tf, &start, &end, &r.OverallScore, &r.ConfidenceScore,
		&categories, &percentiles, &dir, &r.Trend.Strength, &r.Trend.PreviousScore, &r.Trend.ScoreChange,
		&r.SampleSize, &r.ProfileVersion, &r.Role, &degraded, &r.DegradedReason, &createdAt, &updatedAt,
	); err != nil {
		return model.ScoreRecord{}, err
	}
	r.Timeframe = model.Timeframe(tf)
	r.Trend.Direction = model.TrendDirection(dir)
	r.Degraded = degraded == 1
	var err error
	if r.Period, err = parsePeriod(start, end); err != nil {
		return model.ScoreRecord{}, err
	}
	if err = decodeJSON([]byte(categories), &r.CategoryScores); err != nil {
		return model.ScoreRecord{}, err
	}
	if percentiles != nil {
		if r.Percentiles, err = decodePercentiles([]byte(*percentiles)); err != nil {
			return model.ScoreRecord{}, err
		}
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.ScoreRecord{}, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.ScoreRecord{}, err
	}
	return r, nil
}

func (s *SQLiteStore) queryScores(ctx context.Context, op, query string, args ...any) (out []model.ScoreRecord, err error) {
	defer func(start time.Time) { observe(driverSQLite, op, start, err) }(time.Now())
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", op)
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanScoreSQLite(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score")
		}
		out = append(out, r)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: %s", op)
}

func (s *SQLiteStore) GetScore(ctx context.Context, key model.ScoreKey) (model.ScoreRecord, error) {
	out, err := s.queryScores(ctx, "get_score",
		`SELECT `+scoreColumns+` FROM score_records
		WHERE entity_id = ? AND timeframe = ? AND period_start = ? AND period_end = ?`,
		key.EntityID, string(key.Timeframe), formatDate(key.Period.Start), formatDate(key.Period.End),
	)
	if err != nil {
		return model.ScoreRecord{}, err
	}
	if len(out) == 0 {
		return model.ScoreRecord{}, fmt.Errorf("%w: %s %s", model.ErrScoreNotFound, key.EntityID, key.Period)
	}
	return out[0], nil
}

func (s *SQLiteStore) ListPeriodScores(ctx context.Context, tf model.Timeframe, p model.Period) ([]model.ScoreRecord, error) {
	return s.queryScores(ctx, "list_period_scores",
		`SELECT `+scoreColumns+` FROM score_records
		WHERE timeframe = ? AND period_start = ? AND period_end = ? ORDER BY entity_id`,
		string(tf), formatDate(p.Start), formatDate(p.End),
	)
}

func (s *SQLiteStore) CountPeriodScores(ctx context.Context, tf model.Timeframe, p model.Period) (n int, err error) {
	defer func(start time.Time) { observe(driverSQLite, "count_period_scores", start, err) }(time.Now())
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM score_records WHERE timeframe = ? AND period_start = ? AND period_end = ?`,
		string(tf), formatDate(p.Start), formatDate(p.End),
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count period scores")
}

func (s *SQLiteStore) UpdatePercentiles(ctx context.Context, key model.ScoreKey, p model.Percentiles) (err error) {
	defer func(start time.Time) { observe(driverSQLite, "update_percentiles", start, err) }(time.Now())
	b, err := encodePercentiles(&p)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE score_records SET percentiles = ?
		WHERE entity_id = ? AND timeframe = ? AND period_start = ? AND period_end = ?`,
		string(b), key.EntityID, string(key.Timeframe), formatDate(key.Period.Start), formatDate(key.Period.End),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update percentiles %s", key.EntityID)
	}
	return checkRowsAffected(res, key)
}

func (s *SQLiteStore) UpdateTrend(ctx context.Context, key model.ScoreKey, t model.Trend) (err error) {
	defer func(start time.Time) { observe(driverSQLite, "update_trend", start, err) }(time.Now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE score_records SET trend_direction = ?, trend_strength = ?, previous_score = ?, score_change = ?
		WHERE entity_id = ? AND timeframe = ? AND period_start = ? AND period_end = ?`,
		string(t.Direction), t.Strength, nullableFloat(t.PreviousScore), nullableFloat(t.ScoreChange),
		key.EntityID, string(key.Timeframe), formatDate(key.Period.Start), formatDate(key.Period.End),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update trend %s", key.EntityID)
	}
	return checkRowsAffected(res, key)
}

func (s *SQLiteStore) PreviousScore(ctx context.Context, entityID string, tf model.Timeframe, before time.Time) (model.ScoreRecord, error) {
	out, err := s.queryScores(ctx, "previous_score",
		`SELECT `+scoreColumns+` FROM score_records
		WHERE entity_id = ? AND timeframe = ? AND period_start < ?
		ORDER BY period_start DESC LIMIT 1`,
		entityID, string(tf), formatDate(before),
	)
	if err != nil {
		return model.ScoreRecord{}, err
	}
	if len(out) == 0 {
		return model.ScoreRecord{}, fmt.Errorf("%w: no period of %s before %s", model.ErrScoreNotFound, entityID, formatDate(before))
	}
	return out[0], nil
}

func (s *SQLiteStore) ScoreHistory(ctx context.Context, entityID string, tf model.Timeframe, limit int) ([]model.ScoreRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryScores(ctx, "score_history",
		`SELECT `+scoreColumns+` FROM score_records
		WHERE entity_id = ? AND timeframe = ? ORDER BY period_start DESC LIMIT ?`,
		entityID, string(tf), limit,
	)
}

func (s *SQLiteStore) InsertAlert(ctx context.Context, a model.AlertRecord) (inserted bool, err error) {
	defer func(start time.Time) { observe(driverSQLite, "insert_alert", start, err) }(time.Now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id, rule, alert_type, category, alert_date) DO NOTHING`,
		a.ID, a.EntityID, a.Rule, string(a.Type), string(a.Severity), a.Category, a.Message,
		a.MetricValue, a.ThresholdValue, formatDate(a.AlertDate), string(a.Timeframe),
		formatDate(a.Period.Start), formatDate(a.Period.End), boolInt(a.IsActive),
		formatOptionalTime(a.AcknowledgedAt), formatTime(a.CreatedAt),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert alert %s", a.Rule)
	}
	n, err := res.RowsAffected()
	return n > 0, eris.Wrap(err, "sqlite: insert alert rows affected")
}

func scanAlertSQLite(row rowScanner) (model.AlertRecord, error) {
	var (
		a                                  model.AlertRecord
		typ, sev, date, tf, start, end, at string
		active                             int
		ack                                *string
	)
	if err := row.Scan(&a.ID, &a.EntityID, &a.Rule, &typ, &sev, &a.Category, &a.Message,
		&a.MetricValue, &a.ThresholdValue, &date, &tf, &start, &end, &active, &ack, &at,
	); err != nil {
		return model.AlertRecord{}, err
	}
	a.Type = model.AlertType(typ)
	a.Severity = model.Severity(sev)
	a.Timeframe = model.Timeframe(tf)
	a.IsActive = active == 1
	var err error
	if a.AlertDate, err = parseDate(date); err != nil {
		return model.AlertRecord{}, err
	}
	if a.Period, err = parsePeriod(start, end); err != nil {
		return model.AlertRecord{}, err
	}
	if a.AcknowledgedAt, err = parseOptionalTime(ack); err != nil {
		return model.AlertRecord{}, err
	}
	if a.CreatedAt, err = parseTime(at); err != nil {
		return model.AlertRecord{}, err
	}
	return a, nil
}

func (s *SQLiteStore) ActiveAlerts(ctx context.Context, entityID string, since time.Time) (out []model.AlertRecord, err error) {
	defer func(start time.Time) { observe(driverSQLite, "active_alerts", start, err) }(time.Now())
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts
		WHERE entity_id = ? AND is_active = 1 AND acknowledged_at IS NULL AND alert_date >= ?
		ORDER BY alert_date DESC, `+severityOrder+` DESC, created_at`,
		entityID, formatDate(since),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: active alerts")
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanAlertSQLite(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alert")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: active alerts")
}

func (s *SQLiteStore) AcknowledgeAlert(ctx context.Context, id string, at time.Time) (_ model.AlertRecord, err error) {
	defer func(start time.Time) { observe(driverSQLite, "acknowledge_alert", start, err) }(time.Now())
	if _, err = s.db.ExecContext(ctx,
		`UPDATE alerts SET acknowledged_at = ? WHERE id = ? AND acknowledged_at IS NULL`, formatTime(at), id,
	); err != nil {
		return model.AlertRecord{}, eris.Wrapf(err, "sqlite: acknowledge alert %s", id)
	}
	a, err := scanAlertSQLite(s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.AlertRecord{}, fmt.Errorf("%w: %s", model.ErrAlertNotFound, id)
	}
	return a, eris.Wrapf(err, "sqlite: get alert %s", id)
}

func parsePeriod(start, end string) (model.Period, error) {
	s, err := parseDate(start)
	if err != nil {
		return model.Period{}, err
	}
	e, err := parseDate(end)
	if err != nil {
		return model.Period{}, err
	}
	return model.Period{Start: s, End: e}, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkRowsAffected(res sql.Result, key model.ScoreKey) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", model.ErrScoreNotFound, key.EntityID, key.Period)
	}
	return nil
}
