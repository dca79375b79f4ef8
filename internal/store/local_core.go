// Package store persists subjects, chat logs, manual chunks, report metadata
// and analysis results in SQLite.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	// SQLite drivers: "sqlite" is pure Go, "sqlite3" needs cgo.
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"labreport/internal/embedding"
	"labreport/internal/logging"
)

// timeLayout is fixed-width so text ordering matches chronological ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// LocalStore is the SQLite-backed persistence layer.
//
// It implements types.Resolver and types.ChatLogSource, stores exported report
// metadata, optional analysis results, and manual chunks for context search.
type LocalStore struct {
	db              *sql.DB
	mu              sync.RWMutex
	dbPath          string
	driver          string
	embeddingEngine embedding.EmbeddingEngine // optional; keyword search when nil
	now             func() time.Time
}

// NewLocalStore opens (or creates) the database at path with the given driver.
// driver is "sqlite" (modernc) or "sqlite3" (mattn).
func NewLocalStore(driver, path string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	if driver == "" {
		driver = "sqlite"
	}
	logging.Store("Initializing LocalStore at path: %s (driver=%s)", path, driver)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.StoreError("Failed to create directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	store := &LocalStore{db: db, dbPath: path, driver: driver, now: time.Now}
	if err := store.initialize(); err != nil {
		logging.StoreError("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("LocalStore initialization complete")
	return store, nil
}

// initialize creates the required tables.
func (s *LocalStore) initialize() error {
	subjectsTable := `
	CREATE TABLE IF NOT EXISTS subjects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		owner_id TEXT,
		description TEXT DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_subjects_owner ON subjects(owner_id);
	`

	chatTable := `
	CREATE TABLE IF NOT EXISTS chat_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_logs_subject ON chat_logs(subject_id, created_at);
	`

	manualTable := `
	CREATE TABLE IF NOT EXISTS manual_chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		manual_id TEXT NOT NULL,
		chunk_type TEXT NOT NULL,
		content TEXT NOT NULL,
		embedding TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_manual_chunks_manual ON manual_chunks(manual_id, chunk_type);
	`

	reportsTable := `
	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		manual_id TEXT DEFAULT '',
		report_type TEXT NOT NULL,
		file_path TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'created',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reports_user ON reports(user_id, status);
	`

	analysisTable := `
	CREATE TABLE IF NOT EXISTS analysis_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_id TEXT NOT NULL,
		method TEXT NOT NULL,
		text TEXT NOT NULL,
		structured_logs INTEGER DEFAULT 0,
		chat_logs INTEGER DEFAULT 0,
		generated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analysis_subject ON analysis_results(subject_id);
	`

	for _, table := range []string{subjectsTable, chatTable, manualTable, reportsTable, analysisTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// SetEmbeddingEngine enables semantic manual search.
func (s *LocalStore) SetEmbeddingEngine(engine embedding.EmbeddingEngine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddingEngine = engine
	if engine != nil {
		logging.Store("Embedding engine attached: %s", engine.Name())
	}
}

// GetDB returns the underlying database handle.
func (s *LocalStore) GetDB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *LocalStore) Close() error {
	logging.StoreDebug("Closing LocalStore")
	return s.db.Close()
}

// GetStats returns row counts per table.
func (s *LocalStore) GetStats() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	for _, table := range []string{"subjects", "chat_logs", "manual_chunks", "reports", "analysis_results"} {
		var n int64
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		stats[table] = n
	}
	return stats, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
