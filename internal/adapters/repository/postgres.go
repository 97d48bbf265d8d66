package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/okian/pulse/internal/domain/model"
)

const driverPostgres = "postgres"

// Pool is the subset of *pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS weight_profiles (
	version          TEXT PRIMARY KEY,
	description      TEXT NOT NULL DEFAULT '',
	weights          JSONB NOT NULL,
	role_adjustments JSONB NOT NULL DEFAULT '{}',
	active           BOOLEAN NOT NULL DEFAULT false,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	activated_at     TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_weight_profiles_active ON weight_profiles(active) WHERE active;

CREATE TABLE IF NOT EXISTS entities (
	id         TEXT PRIMARY KEY,
	role       TEXT NOT NULL DEFAULT '',
	active     BOOLEAN NOT NULL DEFAULT true,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS score_inputs (
	entity_id     TEXT NOT NULL,
	timeframe     TEXT NOT NULL,
	period_start  DATE NOT NULL,
	period_end    DATE NOT NULL,
	submission_id TEXT NOT NULL DEFAULT '',
	scores        JSONB NOT NULL,
	sample_size   INTEGER NOT NULL DEFAULT 0,
	submitted_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (entity_id, timeframe, period_start, period_end)
);

CREATE TABLE IF NOT EXISTS score_records (
	entity_id        TEXT NOT NULL,
	timeframe        TEXT NOT NULL,
	period_start     DATE NOT NULL,
	period_end       DATE NOT NULL,
	overall_score    DOUBLE PRECISION NOT NULL,
	confidence_score DOUBLE PRECISION NOT NULL,
	category_scores  JSONB NOT NULL,
	percentiles      JSONB,
	trend_direction  TEXT NOT NULL DEFAULT 'unknown',
	trend_strength   DOUBLE PRECISION NOT NULL DEFAULT 0,
	previous_score   DOUBLE PRECISION,
	score_change     DOUBLE PRECISION,
	sample_size      INTEGER NOT NULL DEFAULT 0,
	profile_version  TEXT NOT NULL,
	role             TEXT NOT NULL DEFAULT '',
	degraded         BOOLEAN NOT NULL DEFAULT false,
	degraded_reason  TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
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
	metric_value    DOUBLE PRECISION NOT NULL,
	threshold_value DOUBLE PRECISION NOT NULL,
	alert_date      DATE NOT NULL,
	timeframe       TEXT NOT NULL,
	period_start    DATE NOT NULL,
	period_end      DATE NOT NULL,
	is_active       BOOLEAN NOT NULL DEFAULT true,
	acknowledged_at TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (entity_id, rule, alert_type, category, alert_date)
);
CREATE INDEX IF NOT EXISTS idx_alerts_entity_date ON alerts(entity_id, alert_date DESC);
`

// NewPostgres connects a pool of at most maxConns connections and applies the schema.
func NewPostgres(ctx context.Context, connString string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	s := NewPostgresWithPool(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresWithPool wraps an existing pool without migrating.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateProfile(ctx context.Context, p model.WeightProfile) (err error) {
	defer func(start time.Time) { observe(driverPostgres, "create_profile", start, err) }(time.Now())
	weights, err := encodeJSON(p.Weights)
	if err != nil {
		return err
	}
	adjustments, err := encodeJSON(p.RoleAdjustments)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO weight_profiles (version, description, weights, role_adjustments, active, created_at)
		VALUES ($1, $2, $3, $4, false, $5) ON CONFLICT (version) DO NOTHING`,
		p.Version, p.Description, weights, adjustments, p.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: create profile %s", p.Version)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", model.ErrProfileExists, p.Version)
	}
	return nil
}

func scanProfilePostgres(row rowScanner) (model.WeightProfile, error) {
	var (
		p                    model.WeightProfile
		weights, adjustments []byte
	)
	if err := row.Scan(&p.Version, &p.Description, &weights, &adjustments, &p.Active, &p.CreatedAt, &p.ActivatedAt); err != nil {
		return model.WeightProfile{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	if err := decodeJSON(weights, &p.Weights); err != nil {
		return model.WeightProfile{}, err
	}
	if err := decodeJSON(adjustments, &p.RoleAdjustments); err != nil {
		return model.WeightProfile{}, err
	}
	return p, nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, version string) (p model.WeightProfile, err error) {
	defer func(start time.Time) { observe(driverPostgres, "get_profile", start, err) }(time.Now())
	p, err = scanProfilePostgres(s.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM weight_profiles WHERE version = $1`, version))
	if eris.Is(err, pgx.ErrNoRows) {
		return model.WeightProfile{}, fmt.Errorf("%w: %s", model.ErrProfileNotFound, version)
	}
	return p, eris.Wrapf(err, "postgres: get profile %s", version)
}

func (s *PostgresStore) ListProfiles(ctx context.Context) (out []model.WeightProfile, err error) {
	defer func(start time.Time) { observe(driverPostgres, "list_profiles", start, err) }(time.Now())
	rows, err := s.pool.Query(ctx, `SELECT `+profileColumns+` FROM weight_profiles ORDER BY created_at, version`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list profiles")
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProfilePostgres(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan profile")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list profiles")
}

// ActivateProfile deactivates the current profile and activates version in one transaction.
func (s *PostgresStore) ActivateProfile(ctx context.Context, version string, at time.Time) (err error) {
	defer func(start time.Time) { observe(driverPostgres, "activate_profile", start, err) }(time.Now())
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin activation")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var exists int
	err = tx.QueryRow(ctx, `SELECT 1 FROM weight_profiles WHERE version = $1 FOR UPDATE`, version).Scan(&exists)
	if eris.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", model.ErrProfileNotFound, version)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: lookup profile %s", version)
	}
	if _, err = tx.Exec(ctx, `UPDATE weight_profiles SET active = false WHERE active`); err != nil {
		return eris.Wrap(err, "postgres: deactivate profiles")
	}
	if _, err = tx.Exec(ctx,
		`UPDATE weight_profiles SET active = true, activated_at = $1 WHERE version = $2`, at, version,
	); err != nil {
		return eris.Wrapf(err, "postgres: activate profile %s", version)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit activation")
}

func (s *PostgresStore) ActiveProfile(ctx context.Context) (p model.WeightProfile, err error) {
	defer func(start time.Time) { observe(driverPostgres, "active_profile", start, err) }(time.Now())
	p, err = scanProfilePostgres(s.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM weight_profiles WHERE active`))
	if eris.Is(err, pgx.ErrNoRows) {
		return model.WeightProfile{}, model.ErrNoActiveProfile
	}
	return p, eris.Wrap(err, "postgres: active profile")
}

func (s *PostgresStore) UpsertEntity(ctx context.Context, e model.Entity) (err error) {
	defer func(start time.Time) { observe(driverPostgres, "upsert_entity", start, err) }(time.Now())
	_, err = s.pool.Exec(ctx,
		`INSERT INTO entities (id, role, active, updated_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role, active = EXCLUDED.active, updated_at = EXCLUDED.updated_at`,
		e.ID, e.Role, e.Active, e.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert entity %s", e.ID)
}

func (s *PostgresStore) GetEntity(ctx context.Context, id string) (model.Entity, error) {
	var e model.Entity
	err := s.pool.QueryRow(ctx, `SELECT id, role, active, updated_at FROM entities WHERE id = $1`, id).
		Scan(&e.ID, &e.Role, &e.Active, &e.UpdatedAt)
	if eris.Is(err, pgx.ErrNoRows) {
		return model.Entity{}, fmt.Errorf("%w: %s", model.ErrEntityNotFound, id)
	}
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, eris.Wrapf(err, "postgres: get entity %s", id)
}

func (s *PostgresStore) ListActiveEntities(ctx context.Context) (out []model.Entity, err error) {
	defer func(start time.Time) { observe(driverPostgres, "list_active_entities", start, err) }(time.Now())
	rows, err := s.pool.Query(ctx, `SELECT id, role, active, updated_at FROM entities WHERE active ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entities")
	}
	defer rows.Close()
	for rows.Next() {
		var e model.Entity
		if err := rows.Scan(&e.ID, &e.Role, &e.Active, &e.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		e.UpdatedAt = e.UpdatedAt.UTC()
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list entities")
}

func (s *PostgresStore) PutScoreSet(ctx context.Context, set model.CategoryScoreSet) (err error) {
	defer func(start time.Time) { observe(driverPostgres, "put_score_set", start, err) }(time.Now())
	scores, err := encodeJSON(set.Scores)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO score_inputs (entity_id, timeframe, period_start, period_end, submission_id, scores, sample_size, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (entity_id, timeframe, period_start, period_end) DO UPDATE SET
			submission_id = EXCLUDED.submission_id, scores = EXCLUDED.scores,
			sample_size = EXCLUDED.sample_size, submitted_at = EXCLUDED.submitted_at`,
		set.EntityID, string(set.Timeframe), set.Period.Start, set.Period.End,
		set.SubmissionID, scores, set.SampleSize, set.SubmittedAt,
	)
	return eris.Wrapf(err, "postgres: put score set %s", set.EntityID)
}

func (s *PostgresStore) GetScoreSet(ctx context.Context, key model.ScoreKey) (model.CategoryScoreSet, error) {
	var (
		set    model.CategoryScoreSet
		tf     string
		scores []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT entity_id, timeframe, period_start, period_end, submission_id, scores, sample_size, submitted_at
		FROM score_inputs WHERE entity_id = $1 AND timeframe = $2 AND period_start = $3 AND period_end = $4`,
		key.EntityID, string(key.Timeframe), key.Period.Start, key.Period.End,
	).Scan(&set.EntityID, &tf, &set.Period.Start, &set.Period.End, &set.SubmissionID, &scores, &set.SampleSize, &set.SubmittedAt)
	if eris.Is(err, pgx.ErrNoRows) {
		return model.CategoryScoreSet{}, fmt.Errorf("score set for %s %s: %w", key.EntityID, key.Period, model.ErrNotFound)
	}
	if err != nil {
		return model.CategoryScoreSet{}, eris.Wrapf(err, "postgres: get score set %s", key.EntityID)
	}
	set.Timeframe = model.Timeframe(tf)
	set.SubmittedAt = set.SubmittedAt.UTC()
	return set, decodeJSON(scores, &set.Scores)
}

func (s *PostgresStore) UpsertScore(ctx context.Context, r model.ScoreRecord) (_ model.ScoreRecord, err error) {
	defer func(start time.Time) { observe(driverPostgres, "upsert_score", start, err) }(time.Now())
	categories, err := encodeJSON(r.CategoryScores)
	if err != nil {
		return model.ScoreRecord{}, err
	}
	var createdAt time.Time
	err = s.pool.QueryRow(ctx,
		`INSERT INTO score_records (entity_id, timeframe, period_start, period_end, overall_score, confidence_score,
			category_scores, percentiles, trend_direction, trend_strength, previous_score, score_change,
			sample_size, profile_version, role, degraded, degraded_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, 'unknown', 0, NULL, NULL, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (entity_id, timeframe, period_start, period_end) DO UPDATE SET
			overall_score = EXCLUDED.overall_score, confidence_score = EXCLUDED.confidence_score,
			category_scores = EXCLUDED.category_scores, percentiles = NULL,
			trend_direction = 'unknown', trend_strength = 0, previous_score = NULL, score_change = NULL,
			sample_size = EXCLUDED.sample_size, profile_version = EXCLUDED.profile_version,
			role = EXCLUDED.role, degraded = EXCLUDED.degraded, degraded_reason = EXCLUDED.degraded_reason,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at`,
		r.EntityID, string(r.Timeframe), r.Period.Start, r.Period.End,
		r.OverallScore, r.ConfidenceScore, categories,
		r.SampleSize, r.ProfileVersion, r.Role, r.Degraded, r.DegradedReason,
		r.CreatedAt, r.UpdatedAt,
	).Scan(&createdAt)
	if err != nil {
		return model.ScoreRecord{}, eris.Wrapf(err, "postgres: upsert score %s", r.EntityID)
	}
	r.CreatedAt = createdAt.UTC()
	r.Percentiles = nil
	r.Trend = model.Trend{Direction: model.TrendUnknown}
	return r, nil
}

func scanScorePostgres(row rowScanner) (model.ScoreRecord, error) {
	var (
		r                       model.ScoreRecord
		tf, dir                 string
		categories, percentiles []byte
	)
	if err := row.Scan(&r.EntityID, &tf, &r.Period.Start, &r.Period.End, &r.OverallScore, &r.ConfidenceScore,
		&categories, &percentiles, &dir, &r.Trend.Strength, &r.Trend.PreviousScore, &r.Trend.ScoreChange,
		&r.SampleSize, &r.ProfileVersion, &r.Role, &r.Degraded, &r.DegradedReason, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return model.ScoreRecord{}, err
	}
	r.Timeframe = model.Timeframe(tf)
	r.Trend.Direction = model.TrendDirection(dir)
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	if err := decodeJSON(categories, &r.CategoryScores); err != nil {
		return model.ScoreRecord{}, err
	}
	var err error
	r.Percentiles, err = decodePercentiles(percentiles)
	return r, err
}

func (s *PostgresStore) queryScores(ctx context.Context, op, query string, args ...any) (out []model.ScoreRecord, err error) {
	defer func(start time.Time) { observe(driverPostgres, op, start, err) }(time.Now())
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s", op)
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanScorePostgres(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan score")
		}
		out = append(out, r)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: %s", op)
}

func (s *PostgresStore) GetScore(ctx context.Context, key model.ScoreKey) (model.ScoreRecord, error) {
	out, err := s.queryScores(ctx, "get_score",
		`SELECT `+scoreColumns+` FROM score_records
		WHERE entity_id = $1 AND timeframe = $2 AND period_start = $3 AND period_end = $4`,
		key.EntityID, string(key.Timeframe), key.Period.Start, key.Period.End,
	)
	if err != nil {
		return model.ScoreRecord{}, err
	}
	if len(out) == 0 {
		return model.ScoreRecord{}, fmt.Errorf("%w: %s %s", model.ErrScoreNotFound, key.EntityID, key.Period)
	}
	return out[0], nil
}

func (s *PostgresStore) ListPeriodScores(ctx context.Context, tf model.Timeframe, p model.Period) ([]model.ScoreRecord, error) {
	return s.queryScores(ctx, "list_period_scores",
		`SELECT `+scoreColumns+` FROM score_records
		WHERE timeframe = $1 AND period_start = $2 AND period_end = $3 ORDER BY entity_id`,
		string(tf), p.Start, p.End,
	)
}

func (s *PostgresStore) CountPeriodScores(ctx context.Context, tf model.Timeframe, p model.Period) (n int, err error) {
	defer func(start time.Time) { observe(driverPostgres, "count_period_scores", start, err) }(time.Now())
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM score_records WHERE timeframe = $1 AND period_start = $2 AND period_end = $3`,
		string(tf), p.Start, p.End,
	).Scan(&n)
	return n, eris.Wrap(err, "postgres: count period scores")
}

func (s *PostgresStore) UpdatePercentiles(ctx context.Context, key model.ScoreKey, p model.Percentiles) (err error) {
	defer func(start time.Time) { observe(driverPostgres, "update_percentiles", start, err) }(time.Now())
	b, err := encodePercentiles(&p)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE score_records SET percentiles = $1
		WHERE entity_id = $2 AND timeframe = $3 AND period_start = $4 AND period_end = $5`,
		b, key.EntityID, string(key.Timeframe), key.Period.Start, key.Period.End,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update percentiles %s", key.EntityID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %s", model.ErrScoreNotFound, key.EntityID, key.Period)
	}
	return nil
}

func (s *PostgresStore) UpdateTrend(ctx context.Context, key model.ScoreKey, t model.Trend) (err error) {
	defer func(start time.Time) { observe(driverPostgres, "update_trend", start, err) }(time.Now())
	tag, err := s.pool.Exec(ctx,
		`UPDATE score_records SET trend_direction = $1, trend_strength = $2, previous_score = $3, score_change = $4
		WHERE entity_id = $5 AND timeframe = $6 AND period_start = $7 AND period_end = $8`,
		string(t.Direction), t.Strength, t.PreviousScore, t.ScoreChange,
		key.EntityID, string(key.Timeframe), key.Period.Start, key.Period.End,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update trend %s", key.EntityID)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %s", model.ErrScoreNotFound, key.EntityID, key.Period)
	}
	return nil
}

func (s *PostgresStore) PreviousScore(ctx context.Context, entityID string, tf model.Timeframe, before time.Time) (model.ScoreRecord, error) {
	out, err := s.queryScores(ctx, "previous_score",
		`SELECT `+scoreColumns+` FROM score_records
		WHERE entity_id = $1 AND timeframe = $2 AND period_start < $3
		ORDER BY period_start DESC LIMIT 1`,
		entityID, string(tf), model.Date(before),
	)
	if err != nil {
		return model.ScoreRecord{}, err
	}
	if len(out) == 0 {
		return model.ScoreRecord{}, fmt.Errorf("%w: no period of %s before %s", model.ErrScoreNotFound, entityID, formatDate(before))
	}
	return out[0], nil
}

func (s *PostgresStore) ScoreHistory(ctx context.Context, entityID string, tf model.Timeframe, limit int) ([]model.ScoreRecord, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	return s.queryScores(ctx, "score_history",
		`SELECT `+scoreColumns+` FROM score_records
		WHERE entity_id = $1 AND timeframe = $2 ORDER BY period_start DESC LIMIT $3`,
		entityID, string(tf), lim,
	)
}

func (s *PostgresStore) InsertAlert(ctx context.Context, a model.AlertRecord) (inserted bool, err error) {
	defer func(start time.Time) { observe(driverPostgres, "insert_alert", start, err) }(time.Now())
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (entity_id, rule, alert_type, category, alert_date) DO NOTHING`,
		a.ID, a.EntityID, a.Rule, string(a.Type), string(a.Severity), a.Category, a.Message,
		a.MetricValue, a.ThresholdValue, a.AlertDate, string(a.Timeframe),
		a.Period.Start, a.Period.End, a.IsActive, a.AcknowledgedAt, a.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert alert %s", a.Rule)
	}
	return tag.RowsAffected() > 0, nil
}

func scanAlertPostgres(row rowScanner) (model.AlertRecord, error) {
	var (
		a            model.AlertRecord
		typ, sev, tf string
	)
	if err := row.Scan(&a.ID, &a.EntityID, &a.Rule, &typ, &sev, &a.Category, &a.Message,
		&a.MetricValue, &a.ThresholdValue, &a.AlertDate, &tf, &a.Period.Start, &a.Period.End,
		&a.IsActive, &a.AcknowledgedAt, &a.CreatedAt,
	); err != nil {
		return model.AlertRecord{}, err
	}
	a.Type = model.AlertType(typ)
	a.Severity = model.Severity(sev)
	a.Timeframe = model.Timeframe(tf)
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

func (s *PostgresStore) ActiveAlerts(ctx context.Context, entityID string, since time.Time) (out []model.AlertRecord, err error) {
	defer func(start time.Time) { observe(driverPostgres, "active_alerts", start, err) }(time.Now())
	rows, err := s.pool.Query(ctx,
		`SELECT `+alertColumns+` FROM alerts
		WHERE entity_id = $1 AND is_active AND acknowledged_at IS NULL AND alert_date >= $2
		ORDER BY alert_date DESC, `+severityOrder+` DESC, created_at`,
		entityID, model.Date(since),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: active alerts")
	}
	defer rows.Close()
	for rows.Next() {
		a, err := scanAlertPostgres(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan alert")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: active alerts")
}

func (s *PostgresStore) AcknowledgeAlert(ctx context.Context, id string, at time.Time) (a model.AlertRecord, err error) {
	defer func(start time.Time) { observe(driverPostgres, "acknowledge_alert", start, err) }(time.Now())
	a, err = scanAlertPostgres(s.pool.QueryRow(ctx,
		`UPDATE alerts SET acknowledged_at = COALESCE(acknowledged_at, $1) WHERE id = $2 RETURNING `+alertColumns,
		at, id,
	))
	if eris.Is(err, pgx.ErrNoRows) {
		return model.AlertRecord{}, fmt.Errorf("%w: %s", model.ErrAlertNotFound, id)
	}
	return a, eris.Wrapf(err, "postgres: acknowledge alert %s", id)
}
