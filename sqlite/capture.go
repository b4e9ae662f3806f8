package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/fwojciec/autofetch"
	"github.com/google/uuid"
)

// Compile-time interface verification.
var _ autofetch.CaptureService = (*CaptureService)(nil)

// CaptureService implements autofetch.CaptureService using SQLite.
type CaptureService struct {
	db *DB
}

// NewCaptureService creates a new CaptureService.
func NewCaptureService(db *DB) *CaptureService {
	return &CaptureService{db: db}
}

const captureColumns = "id, url, source, mod, bytes, content_hash, error, fetched_at"

// CreateCapture records a capture with a generated ID.
func (s *CaptureService) CreateCapture(ctx context.Context, c *autofetch.Capture) error {
	if err := c.Validate(); err != nil {
		return err
	}

	c.ID = uuid.New().String()
	if c.FetchedAt.IsZero() {
		c.FetchedAt = time.Now()
	}
	c.FetchedAt = c.FetchedAt.UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO captures (`+captureColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.URL, c.Source, string(c.Mod), c.Bytes, c.ContentHash, c.Error, formatTime(c.FetchedAt))

	return err
}

// FindCaptureByID retrieves a capture by ID.
func (s *CaptureService) FindCaptureByID(ctx context.Context, id string) (*autofetch.Capture, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+captureColumns+" FROM captures WHERE id = ?", id)

	c, err := scanCapture(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, autofetch.Errorf(autofetch.ENOTFOUND, "capture not found")
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FindCaptures retrieves captures matching the filter, newest first.
func (s *CaptureService) FindCaptures(ctx context.Context, filter autofetch.CaptureFilter) ([]*autofetch.Capture, error) {
	var query strings.Builder
	var args []any

	query.WriteString("SELECT " + captureColumns + " FROM captures WHERE 1=1")

	if filter.URL != nil {
		query.WriteString(" AND url = ?")
		args = append(args, *filter.URL)
	}
	if filter.Source != nil {
		query.WriteString(" AND source = ?")
		args = append(args, *filter.Source)
	}
	if filter.Failed != nil {
		if *filter.Failed {
			query.WriteString(" AND error != ''")
		} else {
			query.WriteString(" AND error = ''")
		}
	}

	if filter.Since != nil {
		query.WriteString(" AND fetched_at >= ?")
		args = append(args, formatTime(*filter.Since))
	}

	query.WriteString(" ORDER BY fetched_at DESC, rowid DESC")
	appendPagination(&query, &args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var captures []*autofetch.Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		captures = append(captures, c)
	}

	return captures, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCapture(row scanner) (*autofetch.Capture, error) {
	var c autofetch.Capture
	var mod, fetchedAt string

	if err := row.Scan(&c.ID, &c.URL, &c.Source, &mod, &c.Bytes, &c.ContentHash, &c.Error, &fetchedAt); err != nil {
		return nil, err
	}
	c.Mod = autofetch.Mod(mod)

	var err error
	c.FetchedAt, err = parseRFC3339(fetchedAt, "fetched_at")
	if err != nil {
		return nil, err
	}
	return &c, nil
}
