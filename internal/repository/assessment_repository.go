// Package repository provides data access implementations
package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/abelzeko/aqua-monitor/internal/entities"
	"github.com/abelzeko/aqua-monitor/internal/scoring"
	_ "github.com/mattn/go-sqlite3"
)

// AssessmentRepository defines the interface for assessment and subscriber persistence
type AssessmentRepository interface {
	SaveAssessments(records []entities.AssessmentRecord) error
	GetRecentAssessments(source string, limit int) ([]entities.AssessmentRecord, error)
	GetLatestByPond() ([]entities.AssessmentRecord, error)
	GetAssessmentsSince(cutoff time.Time) ([]entities.AssessmentRecord, error)
	GetPonds() ([]string, error)
	GetLastUpdateTime() (time.Time, error)
	AddSubscriber(sub entities.Subscriber) (bool, error)
	RemoveSubscriber(channel, address string) (bool, error)
	ListSubscribers(channel string) ([]entities.Subscriber, error)
	Close() error
}

// SQLiteAssessmentRepository implements AssessmentRepository using SQLite
type SQLiteAssessmentRepository struct {
	db     *sql.DB
	DBPath string
}

const assessmentColumns = `id, source, pond, ph, dissolved_oxygen, ammonia, risk_level,
	mortality_rate, recommendations, timestamp`

// NewSQLiteAssessmentRepository creates and initializes a new SQLite repository
func NewSQLiteAssessmentRepository(dbPath string) (*SQLiteAssessmentRepository, error) {
	if dbPath == "" {
		// Set default path if not specified
		dbDir := "data"
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dbPath = filepath.Join(dbDir, "aquamonitor.db")
	}

	log.Printf("Opening database at %s", dbPath)
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS assessments (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		pond TEXT NOT NULL DEFAULT '',
		ph REAL NOT NULL,
		dissolved_oxygen REAL NOT NULL,
		ammonia REAL NOT NULL,
		risk_level TEXT NOT NULL,
		mortality_rate REAL NOT NULL,
		recommendations TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(source, pond, timestamp)
	);
	CREATE INDEX IF NOT EXISTS idx_assessments_pond ON assessments(pond);
	CREATE INDEX IF NOT EXISTS idx_assessments_timestamp ON assessments(timestamp);
	CREATE TABLE IF NOT EXISTS subscribers (
		id TEXT PRIMARY KEY,
		channel TEXT NOT NULL,
		address TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(channel, address)
	);`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteAssessmentRepository{
		db:     db,
		DBPath: dbPath,
	}, nil
}

// Close closes the database connection
func (r *SQLiteAssessmentRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveAssessments stores assessment records in a single transaction
func (r *SQLiteAssessmentRepository) SaveAssessments(records []entities.AssessmentRecord) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO assessments(` + assessmentColumns + `)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, pond, timestamp) DO UPDATE SET
		ph=excluded.ph,
		dissolved_oxygen=excluded.dissolved_oxygen,
		ammonia=excluded.ammonia,
		risk_level=excluded.risk_level,
		mortality_rate=excluded.mortality_rate,
		recommendations=excluded.recommendations
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		recommendations, err := json.Marshal(rec.Assessment.Recommendations)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to encode recommendations for %s: %w", rec.ID, err)
		}

		a := rec.Assessment
		if _, err := stmt.Exec(
			rec.ID,
			rec.Source,
			rec.Pond,
			a.PH,
			a.DissolvedOxygen,
			a.Ammonia,
			a.RiskLevel.String(),
			a.MortalityRatePercent,
			string(recommendations),
			rec.Timestamp,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert assessment for %s at %s: %w", rec.Source, rec.Pond, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Printf("Successfully saved %d assessment records", len(records))
	return nil
}

// GetRecentAssessments returns the newest records for a source, newest first.
// An empty source matches every source.
func (r *SQLiteAssessmentRepository) GetRecentAssessments(source string, limit int) ([]entities.AssessmentRecord, error) {
	query := `
		SELECT ` + assessmentColumns + `
		FROM assessments
		WHERE (? = '' OR source = ?)
		ORDER BY timestamp DESC
		LIMIT ?`

	rows, err := r.db.Query(query, source, source, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent assessments: %w", err)
	}
	return scanAssessments(rows)
}

// GetLatestByPond returns the most recent feed assessment for each pond
func (r *SQLiteAssessmentRepository) GetLatestByPond() ([]entities.AssessmentRecord, error) {
	query := `
		SELECT ` + assessmentColumns + `
		FROM assessments
		WHERE source = ? AND (pond, timestamp) IN (
			SELECT pond, MAX(timestamp)
			FROM assessments
			WHERE source = ?
			GROUP BY pond
		)
		ORDER BY pond`

	rows, err := r.db.Query(query, entities.SourceFeed, entities.SourceFeed)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest pond assessments: %w", err)
	}
	return scanAssessments(rows)
}

// GetAssessmentsSince returns feed assessments recorded at or after cutoff
func (r *SQLiteAssessmentRepository) GetAssessmentsSince(cutoff time.Time) ([]entities.AssessmentRecord, error) {
	query := `
		SELECT ` + assessmentColumns + `
		FROM assessments
		WHERE source = ? AND timestamp >= ?
		ORDER BY pond, timestamp DESC`

	rows, err := r.db.Query(query, entities.SourceFeed, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query assessments: %w", err)
	}
	return scanAssessments(rows)
}

// GetPonds returns all pond names seen in feed data
func (r *SQLiteAssessmentRepository) GetPonds() ([]string, error) {
	rows, err := r.db.Query(`
		SELECT DISTINCT pond
		FROM assessments
		WHERE source = ? AND pond != ''
		ORDER BY pond`, entities.SourceFeed)
	if err != nil {
		return nil, fmt.Errorf("failed to query ponds: %w", err)
	}
	defer rows.Close()

	var ponds []string
	for rows.Next() {
		var pond string
		if err := rows.Scan(&pond); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ponds = append(ponds, pond)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return ponds, nil
}

// GetLastUpdateTime returns the most recent feed timestamp in the database
func (r *SQLiteAssessmentRepository) GetLastUpdateTime() (time.Time, error) {
	var timestampStr sql.NullString
	err := r.db.QueryRow("SELECT MAX(timestamp) FROM assessments WHERE source = ?", entities.SourceFeed).Scan(&timestampStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to get last update time: %w", err)
	}

	if !timestampStr.Valid || timestampStr.String == "" {
		return time.Time{}, nil
	}

	return parseTimestamp(timestampStr.String)
}

// parseTimestamp handles the layouts SQLite may hand back for a DATETIME column
func parseTimestamp(value string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05-07:00",
		"2006-01-02 15:04:05Z07:00",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}

	// SQLite DATETIME without a zone
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", value, err)
	}
	return ts, nil
}

// AddSubscriber stores a subscriber. It reports false when the address was already subscribed.
func (r *SQLiteAssessmentRepository) AddSubscriber(sub entities.Subscriber) (bool, error) {
	res, err := r.db.Exec(`
		INSERT INTO subscribers(id, channel, address, created_at)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(channel, address) DO NOTHING`,
		sub.ID, sub.Channel, sub.Address, sub.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to add %s subscriber: %w", sub.Channel, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// RemoveSubscriber deletes a subscriber. It reports false when nothing was removed.
func (r *SQLiteAssessmentRepository) RemoveSubscriber(channel, address string) (bool, error) {
	res, err := r.db.Exec("DELETE FROM subscribers WHERE channel = ? AND address = ?", channel, address)
	if err != nil {
		return false, fmt.Errorf("failed to remove %s subscriber: %w", channel, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// ListSubscribers returns subscribers on a channel, oldest first
func (r *SQLiteAssessmentRepository) ListSubscribers(channel string) ([]entities.Subscriber, error) {
	rows, err := r.db.Query(`
		SELECT id, channel, address, created_at
		FROM subscribers
		WHERE channel = ?
		ORDER BY created_at, address`, channel)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscribers: %w", err)
	}
	defer rows.Close()

	var subs []entities.Subscriber
	for rows.Next() {
		var s entities.Subscriber
		if err := rows.Scan(&s.ID, &s.Channel, &s.Address, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		subs = append(subs, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return subs, nil
}

func scanAssessments(rows *sql.Rows) ([]entities.AssessmentRecord, error) {
	defer rows.Close()

	var result []entities.AssessmentRecord
	for rows.Next() {
		var (
			rec             entities.AssessmentRecord
			riskLevel       string
			recommendations string
			a               = &rec.Assessment
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Source,
			&rec.Pond,
			&a.PH,
			&a.DissolvedOxygen,
			&a.Ammonia,
			&riskLevel,
			&a.MortalityRatePercent,
			&recommendations,
			&rec.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		level, err := entities.ParseRiskLevel(riskLevel)
		if err != nil {
			return nil, fmt.Errorf("bad risk level in record %s: %w", rec.ID, err)
		}
		a.RiskLevel = level
		a.ColorCode = level.Color()
		a.MortalityRate = scoring.FormatMortalityRate(a.MortalityRatePercent)

		if err := json.Unmarshal([]byte(recommendations), &a.Recommendations); err != nil {
			return nil, fmt.Errorf("bad recommendations in record %s: %w", rec.ID, err)
		}

		result = append(result, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return result, nil
}
