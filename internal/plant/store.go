// Package plant is the SQLite-backed data layer for equipment, work orders,
// maintenance documents, and sensor history. It uses modernc.org/sqlite for
// pure-Go, CGO-free database access.
package plant

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

//go:embed seed.sql
var seedSQL string

// ErrNotFound reports a lookup for an unknown record.
var ErrNotFound = errors.New("not found")

// Equipment is one registered asset.
type Equipment struct {
	ID           string
	Name         string
	Kind         string
	Area         string
	Status       string
	Manufacturer string
	Model        string
	InstalledAt  time.Time
}

// WorkOrder is a maintenance task raised against one asset.
type WorkOrder struct {
	ID          string
	EquipmentID string
	Title       string
	Status      string
	Priority    string
	Summary     string
	OpenedAt    time.Time
	ClosedAt    *time.Time
}

// Document is one ingested section of a maintenance document.
type Document struct {
	ID          int64
	Title       string
	DocType     string
	EquipmentID string
	Section     string
	Content     string
	Path        string
	IngestedAt  time.Time
}

// SensorReading is one sampled metric value.
type SensorReading struct {
	EquipmentID string
	Metric      string
	Value       float64
	Unit        string
	RecordedAt  time.Time
}

// Details bundles an asset with its open work and latest readings.
type Details struct {
	Equipment      Equipment
	OpenWorkOrders []WorkOrder
	LatestReadings []SensorReading
}

// Store provides access to the plant database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the plant database at path, applies the
// schema, and seeds reference data on first use.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create plant data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open plant database: %w", err)
	}
	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply plant schema: %w", err)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM equipment").Scan(&count); err != nil {
		return fmt.Errorf("count equipment: %w", err)
	}
	if count == 0 {
		if _, err := s.db.Exec(seedSQL); err != nil {
			return fmt.Errorf("seed plant data: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// SearchEquipment lists assets matching the filters. Empty filters match
// everything; search matches id, name, and kind case-insensitively.
func (s *Store) SearchEquipment(ctx context.Context, search, area, status string) ([]Equipment, error) {
	query := `SELECT id, name, kind, area, status, manufacturer, model, installed_at
		FROM equipment WHERE 1=1`
	var args []any
	if search != "" {
		// LIKE is case-insensitive for ASCII in SQLite.
		query += ` AND (id LIKE ? OR name LIKE ? OR kind LIKE ?)`
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern, pattern)
	}
	if area != "" {
		query += ` AND area = ? COLLATE NOCASE`
		args = append(args, area)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search equipment: %w", err)
	}
	defer rows.Close()

	var out []Equipment
	for rows.Next() {
		eq, err := scanEquipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, eq)
	}
	return out, rows.Err()
}

// EquipmentDetails returns one asset with its open work orders and the latest
// reading per metric. Returns ErrNotFound for unknown ids.
func (s *Store) EquipmentDetails(ctx context.Context, id string) (*Details, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, kind, area, status, manufacturer, model, installed_at
		FROM equipment WHERE id = ?`, id)
	eq, err := scanEquipment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("equipment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	details := &Details{Equipment: eq}

	rows, err := s.db.QueryContext(ctx, `SELECT id, equipment_id, title, status, priority, summary, opened_at, closed_at
		FROM work_orders WHERE equipment_id = ? AND status != 'closed' ORDER BY opened_at`, id)
	if err != nil {
		return nil, fmt.Errorf("load work orders: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		wo, err := scanWorkOrder(rows)
		if err != nil {
			return nil, err
		}
		details.OpenWorkOrders = append(details.OpenWorkOrders, wo)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	readingRows, err := s.db.QueryContext(ctx, `SELECT r.equipment_id, r.metric, r.value, r.unit, r.recorded_at
		FROM sensor_readings r
		JOIN (SELECT metric, MAX(recorded_at) AS latest FROM sensor_readings WHERE equipment_id = ? GROUP BY metric) m
			ON r.metric = m.metric AND r.recorded_at = m.latest
		WHERE r.equipment_id = ?
		ORDER BY r.metric`, id, id)
	if err != nil {
		return nil, fmt.Errorf("load latest readings: %w", err)
	}
	defer readingRows.Close()
	for readingRows.Next() {
		reading, err := scanReading(readingRows)
		if err != nil {
			return nil, err
		}
		details.LatestReadings = append(details.LatestReadings, reading)
	}
	return details, readingRows.Err()
}

// SearchDocuments returns document sections whose title or content match the
// query, newest first.
func (s *Store) SearchDocuments(ctx context.Context, query, docType string, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 10
	}
	sqlQuery := `SELECT id, title, doc_type, equipment_id, section, content, path, ingested_at
		FROM documents WHERE (title LIKE ? OR content LIKE ?)`
	pattern := "%" + query + "%"
	args := []any{pattern, pattern}
	if docType != "" {
		sqlQuery += ` AND doc_type = ?`
		args = append(args, docType)
	}
	sqlQuery += ` ORDER BY ingested_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var doc Document
		var ingestedAt string
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.DocType, &doc.EquipmentID, &doc.Section, &doc.Content, &doc.Path, &ingestedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc.IngestedAt = parseTime(ingestedAt)
		out = append(out, doc)
	}
	return out, rows.Err()
}

// SensorReadings returns readings for one asset, oldest first. A zero since
// means no time filter; metric narrows to one series.
func (s *Store) SensorReadings(ctx context.Context, equipmentID, metric string, since time.Time, limit int) ([]SensorReading, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT equipment_id, metric, value, unit, recorded_at
		FROM sensor_readings WHERE equipment_id = ?`
	args := []any{equipmentID}
	if metric != "" {
		query += ` AND metric = ?`
		args = append(args, metric)
	}
	if !since.IsZero() {
		query += ` AND recorded_at >= ?`
		args = append(args, since.UTC().Format(time.RFC3339))
	}
	query += ` ORDER BY recorded_at LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load sensor readings: %w", err)
	}
	defer rows.Close()

	var out []SensorReading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, reading)
	}
	return out, rows.Err()
}

// InsertReading appends one sensor sample.
func (s *Store) InsertReading(ctx context.Context, r SensorReading) error {
	recordedAt := r.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO sensor_readings (equipment_id, metric, value, unit, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.EquipmentID, r.Metric, r.Value, r.Unit, recordedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// ReplaceDocument upserts one document section keyed by (path, section) so
// re-ingesting a file updates in place.
func (s *Store) ReplaceDocument(ctx context.Context, doc Document) error {
	ingestedAt := doc.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `UPDATE documents
		SET title = ?, doc_type = ?, equipment_id = ?, content = ?, ingested_at = ?
		WHERE path = ? AND section = ?`,
		doc.Title, doc.DocType, doc.EquipmentID, doc.Content, ingestedAt.UTC().Format(time.RFC3339),
		doc.Path, doc.Section)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO documents (title, doc_type, equipment_id, section, content, path, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.Title, doc.DocType, doc.EquipmentID, doc.Section, doc.Content, doc.Path,
		ingestedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// OpenWorkOrders lists non-closed work orders across the plant, oldest first.
func (s *Store) OpenWorkOrders(ctx context.Context) ([]WorkOrder, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, equipment_id, title, status, priority, summary, opened_at, closed_at
		FROM work_orders WHERE status != 'closed' ORDER BY opened_at`)
	if err != nil {
		return nil, fmt.Errorf("load open work orders: %w", err)
	}
	defer rows.Close()

	var out []WorkOrder
	for rows.Next() {
		wo, err := scanWorkOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wo)
	}
	return out, rows.Err()
}

// StaleSensorEquipment lists assets whose newest reading is older than cutoff,
// including assets with no readings at all.
func (s *Store) StaleSensorEquipment(ctx context.Context, cutoff time.Time) ([]Equipment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT e.id, e.name, e.kind, e.area, e.status, e.manufacturer, e.model, e.installed_at
		FROM equipment e
		LEFT JOIN (SELECT equipment_id, MAX(recorded_at) AS latest FROM sensor_readings GROUP BY equipment_id) r
			ON e.id = r.equipment_id
		WHERE r.latest IS NULL OR r.latest < ?
		ORDER BY e.id`, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("load stale sensor equipment: %w", err)
	}
	defer rows.Close()

	var out []Equipment
	for rows.Next() {
		eq, err := scanEquipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, eq)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEquipment(row rowScanner) (Equipment, error) {
	var eq Equipment
	var installedAt string
	if err := row.Scan(&eq.ID, &eq.Name, &eq.Kind, &eq.Area, &eq.Status, &eq.Manufacturer, &eq.Model, &installedAt); err != nil {
		return Equipment{}, err
	}
	eq.InstalledAt = parseTime(installedAt)
	return eq, nil
}

func scanWorkOrder(row rowScanner) (WorkOrder, error) {
	var wo WorkOrder
	var openedAt string
	var closedAt sql.NullString
	if err := row.Scan(&wo.ID, &wo.EquipmentID, &wo.Title, &wo.Status, &wo.Priority, &wo.Summary, &openedAt, &closedAt); err != nil {
		return WorkOrder{}, fmt.Errorf("scan work order: %w", err)
	}
	wo.OpenedAt = parseTime(openedAt)
	if closedAt.Valid {
		t := parseTime(closedAt.String)
		wo.ClosedAt = &t
	}
	return wo, nil
}

func scanReading(row rowScanner) (SensorReading, error) {
	var r SensorReading
	var recordedAt string
	if err := row.Scan(&r.EquipmentID, &r.Metric, &r.Value, &r.Unit, &recordedAt); err != nil {
		return SensorReading{}, fmt.Errorf("scan reading: %w", err)
	}
	r.RecordedAt = parseTime(recordedAt)
	return r, nil
}

// parseTime accepts the RFC3339 timestamps this package writes plus SQLite's
// default datetime rendering.
func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
