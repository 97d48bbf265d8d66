package repository

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/okian/pulse/internal/domain/model"
)

const timestampLayout = time.RFC3339Nano

// rowScanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func encodeJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "encode json")
	}
	return b, nil
}

func decodeJSON(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return eris.Wrap(json.Unmarshal(b, v), "decode json")
}

// encodePercentiles returns nil for an unranked record so the column stays NULL.
func encodePercentiles(p *model.Percentiles) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return encodeJSON(p)
}

func decodePercentiles(b []byte) (*model.Percentiles, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var p model.Percentiles
	if err := decodeJSON(b, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func formatDate(t time.Time) string { return t.UTC().Format(model.DateLayout) }

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(model.DateLayout, s)
	return t, eris.Wrapf(err, "parse date %q", s)
}

func formatTime(t time.Time) string { return t.UTC().Format(timestampLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	return t, eris.Wrapf(err, "parse timestamp %q", s)
}

// formatOptionalTime and nullableFloat bind NULL for nil pointers.
func formatOptionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func parseOptionalTime(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
