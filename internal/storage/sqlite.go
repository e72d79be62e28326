package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	sharedErrors "github.com/jswatch/jswatch/internal/shared/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding content hashes, raw snapshots,
// fingerprints and the per-domain endpoint tables.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	if dataDir == "" {
		return nil, sharedErrors.ErrEmptyDataDir
	}

	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "jswatch.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

// --- Content records ---

// GetContentRecord returns the most recent record for (domain, url), or
// ErrRecordNotFound when the url has never been observed.
func (s *Store) GetContentRecord(domain, url string) (*ContentRecord, error) {
	var rec ContentRecord
	var observedAt string
	err := s.db.QueryRow(`
		SELECT domain, url, hash, size, observed_at
		FROM content_records WHERE domain = ? AND url = ?`, domain, url,
	).Scan(&rec.Domain, &rec.URL, &rec.Hash, &rec.Size, &observedAt)
	if err == sql.ErrNoRows {
		return nil, sharedErrors.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, observedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing observed_at: %w", sharedErrors.ErrStoreCorrupt)
	}
	rec.ObservedAt = t
	return &rec, nil
}

// SaveSnapshot captures the raw bytes for (domain, url, hash). It must be
// called before SetContentHash so a crash between the two writes cannot leave
// a hash pointing at missing content.
func (s *Store) SaveSnapshot(domain, url, hash string, body []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO snapshots (domain, url, hash, body, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(domain, url, hash) DO NOTHING`,
		domain, url, hash, body, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// SetContentHash replaces the stored hash for (domain, url).
func (s *Store) SetContentHash(domain, url, hash string, size int, observedAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO content_records (domain, url, hash, size, observed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(domain, url) DO UPDATE SET
			hash = excluded.hash, size = excluded.size, observed_at = excluded.observed_at`,
		domain, url, hash, size, observedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetSnapshot returns the raw bytes previously captured for (domain, url, hash).
func (s *Store) GetSnapshot(domain, url, hash string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRow(`
		SELECT body FROM snapshots WHERE domain = ? AND url = ? AND hash = ?`,
		domain, url, hash,
	).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, sharedErrors.ErrRecordNotFound
	}
	return body, err
}

// --- Fingerprints ---

// SaveFingerprint stores or replaces the fingerprint for one file version.
func (s *Store) SaveFingerprint(rec FingerprintRecord) error {
	sigs, err := json.Marshal(rec.Signatures)
	if err != nil {
		return err
	}
	imports, err := json.Marshal(rec.Imports)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO fingerprints (domain, url, signatures, imports, normalized_hash, code_length, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain, url) DO UPDATE SET
			signatures = excluded.signatures,
			imports = excluded.imports,
			normalized_hash = excluded.normalized_hash,
			code_length = excluded.code_length,
			observed_at = excluded.observed_at`,
		rec.Domain, rec.URL, string(sigs), string(imports),
		rec.NormalizedHash, rec.CodeLength, rec.ObservedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ListFingerprints returns all fingerprints for a domain ordered by url, so
// clustering iterates in a fixed order.
func (s *Store) ListFingerprints(domain string) ([]FingerprintRecord, error) {
	rows, err := s.db.Query(`
		SELECT domain, url, signatures, imports, normalized_hash, code_length, observed_at
		FROM fingerprints WHERE domain = ? ORDER BY url ASC`, domain,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FingerprintRecord
	for rows.Next() {
		var rec FingerprintRecord
		var sigs, imports, observedAt string
		if err := rows.Scan(&rec.Domain, &rec.URL, &sigs, &imports, &rec.NormalizedHash, &rec.CodeLength, &observedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(sigs), &rec.Signatures); err != nil {
			return nil, fmt.Errorf("decoding signatures for %s: %w", rec.URL, sharedErrors.ErrStoreCorrupt)
		}
		if err := json.Unmarshal([]byte(imports), &rec.Imports); err != nil {
			return nil, fmt.Errorf("decoding imports for %s: %w", rec.URL, sharedErrors.ErrStoreCorrupt)
		}
		if rec.ObservedAt, err = time.Parse(time.RFC3339, observedAt); err != nil {
			return nil, fmt.Errorf("parsing observed_at for %s: %w", rec.URL, sharedErrors.ErrStoreCorrupt)
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// --- Endpoints ---

// confidenceRank orders confidence buckets for the keep-higher merge done at
// the SQL layer when the same endpoint string is seen again.
func confidenceRank(c string) int {
	switch c {
	case "HIGH":
		return 3
	case "MEDIUM":
		return 2
	default:
		return 1
	}
}

// resolvedCallCategory mirrors the extraction-time tie-break: on equal
// confidence, a resolved network call wins over a static literal.
func resolvedCallCategory(c string) bool {
	switch c {
	case "network-call", "fetch", "http-call":
		return true
	}
	return false
}

// endpointUpgrades reports whether an incoming record should replace the
// stored row: strictly higher confidence always wins, and on equal confidence
// a resolved call category replaces a non-call one.
func endpointUpgrades(rec EndpointRecord, existingConfidence, existingCategory string) bool {
	newRank, oldRank := confidenceRank(rec.Confidence), confidenceRank(existingConfidence)
	if newRank != oldRank {
		return newRank > oldRank
	}
	return resolvedCallCategory(rec.Category) && !resolvedCallCategory(existingCategory)
}

// SaveEndpoints upserts deduplicated endpoints for a domain, keeping the
// higher-confidence variant when the endpoint string already exists and
// preferring resolved call categories on equal confidence.
func (s *Store) SaveEndpoints(domain string, recs []EndpointRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rec := range recs {
		var existingConfidence, existingCategory string
		err := tx.QueryRow(`SELECT confidence, category FROM endpoints WHERE domain = ? AND endpoint = ?`,
			domain, rec.Endpoint).Scan(&existingConfidence, &existingCategory)
		switch {
		case err == sql.ErrNoRows:
			if _, err := tx.Exec(`
				INSERT INTO endpoints (domain, endpoint, method, category, confidence, source_file, line, first_seen)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				domain, rec.Endpoint, rec.Method, rec.Category, rec.Confidence,
				rec.SourceFile, rec.Line, rec.FirstSeen.UTC().Format(time.RFC3339),
			); err != nil {
				return err
			}
		case err != nil:
			return err
		case endpointUpgrades(rec, existingConfidence, existingCategory):
			if _, err := tx.Exec(`
				UPDATE endpoints SET method = ?, category = ?, confidence = ?, source_file = ?, line = ?
				WHERE domain = ? AND endpoint = ?`,
				rec.Method, rec.Category, rec.Confidence, rec.SourceFile, rec.Line,
				domain, rec.Endpoint,
			); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// ListEndpoints returns all stored endpoints for a domain ordered by endpoint.
func (s *Store) ListEndpoints(domain string) ([]EndpointRecord, error) {
	rows, err := s.db.Query(`
		SELECT domain, endpoint, method, category, confidence, source_file, line, first_seen
		FROM endpoints WHERE domain = ? ORDER BY endpoint ASC`, domain,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []EndpointRecord
	for rows.Next() {
		var rec EndpointRecord
		var firstSeen string
		if err := rows.Scan(&rec.Domain, &rec.Endpoint, &rec.Method, &rec.Category, &rec.Confidence, &rec.SourceFile, &rec.Line, &firstSeen); err != nil {
			return nil, err
		}
		if rec.FirstSeen, err = time.Parse(time.RFC3339, firstSeen); err != nil {
			return nil, fmt.Errorf("parsing first_seen for %s: %w", rec.Endpoint, sharedErrors.ErrStoreCorrupt)
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// --- Retention ---

// TrimFiles drops the oldest content records (and their fingerprints and
// snapshots) beyond max for a domain. A max of zero disables trimming.
func (s *Store) TrimFiles(domain string, max int) (int64, error) {
	if max <= 0 {
		return 0, nil
	}
	res, err := s.db.Exec(`
		DELETE FROM content_records WHERE domain = ? AND url IN (
			SELECT url FROM content_records WHERE domain = ?
			ORDER BY observed_at DESC LIMIT -1 OFFSET ?
		)`, domain, domain, max)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		// Fingerprints and snapshots for trimmed urls go with them.
		if _, err := s.db.Exec(`
			DELETE FROM fingerprints WHERE domain = ? AND url NOT IN (
				SELECT url FROM content_records WHERE domain = ?
			)`, domain, domain); err != nil {
			return n, err
		}
		if _, err := s.db.Exec(`
			DELETE FROM snapshots WHERE domain = ? AND url NOT IN (
				SELECT url FROM content_records WHERE domain = ?
			)`, domain, domain); err != nil {
			return n, err
		}
	}
	return n, nil
}

// TrimEndpoints drops the oldest endpoints beyond max for a domain.
func (s *Store) TrimEndpoints(domain string, max int) (int64, error) {
	if max <= 0 {
		return 0, nil
	}
	res, err := s.db.Exec(`
		DELETE FROM endpoints WHERE domain = ? AND endpoint IN (
			SELECT endpoint FROM endpoints WHERE domain = ?
			ORDER BY first_seen DESC LIMIT -1 OFFSET ?
		)`, domain, domain, max)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Domains lists every domain with at least one content record.
func (s *Store) Domains() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT domain FROM content_records ORDER BY domain ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}
