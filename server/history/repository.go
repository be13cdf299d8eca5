package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/openrport/rguard/db/migration/history"
	"github.com/openrport/rguard/db/sqlite"
	"github.com/openrport/rguard/share/logger"
	"github.com/openrport/rguard/share/models"
)

// Repository is the durable store of event log entries and finished scans. Writes are
// append-only, reads are always newest first.
type Repository interface {
	AppendEvents(ctx context.Context, batch []models.EventItem) error
	RecentEvents(ctx context.Context, max int) ([]models.EventItem, error)
	AddScanRecord(ctx context.Context, record *models.ScanRecord) error
	RecentScans(ctx context.Context, max int) ([]models.ScanRecord, error)
	ScansByType(ctx context.Context, scanType models.ScanType, max int) ([]models.ScanRecord, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

type SqliteProvider struct {
	db     *sqlx.DB
	logger *logger.Logger
}

func NewSqliteProvider(dbPath string, logger *logger.Logger) (*SqliteProvider, error) {
	db, err := sqlite.New(dbPath, history.Migrations, history.Dir, sqlite.DataSourceOptions{WALEnabled: true})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create history DB instance")
	}

	logger.Infof("initialized database at %s", dbPath)

	return &SqliteProvider{db: db, logger: logger}, nil
}

type eventRow struct {
	Timestamp time.Time `db:"timestamp"`
	Level     string    `db:"level"`
	Source    string    `db:"source"`
	Message   string    `db:"message"`
}

func (p *SqliteProvider) AppendEvents(ctx context.Context, batch []models.EventItem) error {
	if len(batch) == 0 {
		return nil
	}
	rows := make([]eventRow, 0, len(batch))
	for _, e := range batch {
		rows = append(rows, eventRow{
			Timestamp: e.Timestamp.UTC(),
			Level:     string(e.Level),
			Source:    e.Source,
			Message:   e.Message,
		})
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareNamedContext(ctx,
		"INSERT INTO events (timestamp, level, source, message) VALUES (:timestamp, :level, :source, :message)")
	if err != nil {
		return errors.Wrap(err, "failed to prepare event insert")
	}
	defer stmt.Close()

	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]); err != nil {
			return errors.Wrapf(err, "failed to insert event from %q", rows[i].Source)
		}
	}
	return tx.Commit()
}

func (p *SqliteProvider) RecentEvents(ctx context.Context, max int) ([]models.EventItem, error) {
	result := []models.EventItem{}
	if max <= 0 {
		return result, nil
	}

	var rows []eventRow
	err := p.db.SelectContext(ctx, &rows,
		"SELECT timestamp, level, source, message FROM events ORDER BY timestamp DESC, id DESC LIMIT ?", max)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read events")
	}
	for _, r := range rows {
		result = append(result, models.EventItem{
			Timestamp: r.Timestamp.UTC(),
			Level:     models.EventLevel(r.Level),
			Source:    r.Source,
			Message:   r.Message,
		})
	}
	return result, nil
}

type scanRow struct {
	ID         string       `db:"id"`
	Type       string       `db:"type"`
	Target     string       `db:"target"`
	StartedAt  time.Time    `db:"started_at"`
	FinishedAt sql.NullTime `db:"finished_at"`
	Status     string       `db:"status"`
	Findings   string       `db:"findings"`
	Meta       string       `db:"meta"`
}

func newScanRow(r *models.ScanRecord) (*scanRow, error) {
	findings := r.Findings
	if findings == nil {
		findings = []models.ScanFinding{}
	}
	findingsJSON, err := json.Marshal(findings)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode findings")
	}
	meta := r.Meta
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode meta")
	}

	row := &scanRow{
		ID:        r.ID,
		Type:      string(r.Type),
		Target:    r.Target,
		StartedAt: r.StartedAt.UTC(),
		Status:    string(r.Status),
		Findings:  string(findingsJSON),
		Meta:      string(metaJSON),
	}
	if r.FinishedAt != nil {
		row.FinishedAt = sql.NullTime{Time: r.FinishedAt.UTC(), Valid: true}
	}
	return row, nil
}

func (row scanRow) record() (models.ScanRecord, error) {
	rec := models.ScanRecord{
		ID:        row.ID,
		Type:      models.ScanType(row.Type),
		Target:    row.Target,
		StartedAt: row.StartedAt.UTC(),
		Status:    models.ScanStatus(row.Status),
		Findings:  []models.ScanFinding{},
	}
	if row.FinishedAt.Valid {
		finishedAt := row.FinishedAt.Time.UTC()
		rec.FinishedAt = &finishedAt
	}
	if err := json.Unmarshal([]byte(row.Findings), &rec.Findings); err != nil {
		return rec, errors.Wrapf(err, "failed to decode findings of scan %s", row.ID)
	}
	if row.Meta != "" && row.Meta != "{}" {
		if err := json.Unmarshal([]byte(row.Meta), &rec.Meta); err != nil {
			return rec, errors.Wrapf(err, "failed to decode meta of scan %s", row.ID)
		}
	}
	return rec, nil
}

// AddScanRecord stores a finished scan. Pending records and already stored ids are
// rejected with models.ErrInvalidRecord.
func (p *SqliteProvider) AddScanRecord(ctx context.Context, record *models.ScanRecord) error {
	if record == nil {
		return errors.Wrap(models.ErrInvalidRecord, "nil scan record")
	}
	if !record.Status.IsTerminal() || record.FinishedAt == nil {
		return errors.Wrapf(models.ErrInvalidRecord, "scan %s is %s", record.ID, record.Status)
	}

	row, err := newScanRow(record)
	if err != nil {
		return err
	}
	_, err = p.db.NamedExecContext(ctx,
		"INSERT INTO scans (id, type, target, started_at, finished_at, status, findings, meta) "+
			"VALUES (:id, :type, :target, :started_at, :finished_at, :status, :findings, :meta)",
		row,
	)
	if isConstraintErr(err) {
		return errors.Wrapf(models.ErrInvalidRecord, "scan %s already stored", record.ID)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to store scan %s", record.ID)
	}
	return nil
}

func isConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

func (p *SqliteProvider) RecentScans(ctx context.Context, max int) ([]models.ScanRecord, error) {
	return p.selectScans(ctx, max,
		"SELECT * FROM scans ORDER BY started_at DESC, id DESC LIMIT ?", max)
}

func (p *SqliteProvider) ScansByType(ctx context.Context, scanType models.ScanType, max int) ([]models.ScanRecord, error) {
	return p.selectScans(ctx, max,
		"SELECT * FROM scans WHERE type = ? ORDER BY started_at DESC, id DESC LIMIT ?", string(scanType), max)
}

func (p *SqliteProvider) selectScans(ctx context.Context, max int, q string, args ...interface{}) ([]models.ScanRecord, error) {
	result := []models.ScanRecord{}
	if max <= 0 {
		return result, nil
	}

	var rows []scanRow
	if err := p.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "failed to read scans")
	}
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, nil
}

// DeleteOlderThan removes events and scans that happened before cutoff and returns the
// number of deleted rows.
func (p *SqliteProvider) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoff = cutoff.UTC()

	res, err := p.db.ExecContext(ctx, "DELETE FROM events WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete events")
	}
	events, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	res, err = p.db.ExecContext(ctx, "DELETE FROM scans WHERE started_at < ?", cutoff)
	if err != nil {
		return events, errors.Wrap(err, "failed to delete scans")
	}
	scans, err := res.RowsAffected()
	if err != nil {
		return events, err
	}
	return events + scans, nil
}

func (p *SqliteProvider) Close() error {
	return p.db.Close()
}
