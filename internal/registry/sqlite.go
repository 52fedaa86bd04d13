package registry

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/curator/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id           TEXT PRIMARY KEY,
	tier         TEXT NOT NULL,
	domain       TEXT NOT NULL DEFAULT '',
	risk_profile TEXT NOT NULL DEFAULT '',
	context      TEXT NOT NULL DEFAULT '',
	maturity     TEXT NOT NULL DEFAULT '',
	validated_at INTEGER,
	retired      INTEGER NOT NULL DEFAULT 0,
	data         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_domain ON items(domain);
CREATE INDEX IF NOT EXISTS idx_items_risk_profile ON items(risk_profile);
CREATE INDEX IF NOT EXISTS idx_items_context ON items(context);
CREATE INDEX IF NOT EXISTS idx_items_maturity ON items(maturity);

CREATE TABLE IF NOT EXISTS edges (
	from_id TEXT NOT NULL,
	kind    TEXT NOT NULL,
	to_id   TEXT NOT NULL,
	PRIMARY KEY (from_id, kind, to_id)
);

CREATE INDEX IF NOT EXISTS idx_edges_inbound ON edges(to_id, kind);

CREATE TABLE IF NOT EXISTS fingerprints (
	item_id     TEXT PRIMARY KEY,
	captured_at INTEGER NOT NULL,
	shingles    BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS duplicates (
	document_id  TEXT NOT NULL,
	duplicate_of TEXT NOT NULL,
	similarity   REAL NOT NULL,
	source_url   TEXT NOT NULL DEFAULT '',
	recorded_at  INTEGER NOT NULL,
	PRIMARY KEY (document_id, duplicate_of)
);
`

var axisColumns = map[model.Axis]string{
	model.AxisDomain:      "domain",
	model.AxisRiskProfile: "risk_profile",
	model.AxisContext:     "context",
	model.AxisMaturity:    "maturity",
}

// SQLiteStore persists the registry in a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create registry directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*model.ClassifiedItem, error) {
	var data string
	if err := row.Scan(&data); err != nil {
		return nil, err
	}
	var item model.ClassifiedItem
	if err := json.Unmarshal([]byte(data), &item); err != nil {
		return nil, fmt.Errorf("failed to decode item: %w", err)
	}
	return &item, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getItem(ctx context.Context, q queryer, id string) (*model.ClassifiedItem, error) {
	item, err := scanItem(q.QueryRowContext(ctx, `SELECT data FROM items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load item %s: %w", id, err)
	}
	return item, nil
}

// Get returns the item or nil when absent
func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.ClassifiedItem, error) {
	return getItem(ctx, s.db, id)
}

type sqliteTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *sqliteTx) Get(id string) (*model.ClassifiedItem, error) {
	return getItem(t.ctx, t.tx, id)
}

func (t *sqliteTx) Put(item *model.ClassifiedItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode item: %w", err)
	}

	var validatedAt sql.NullInt64
	if item.ValidatedAt != nil {
		validatedAt = sql.NullInt64{Int64: item.ValidatedAt.UnixNano(), Valid: true}
	}
	retired := 0
	if item.Retired() {
		retired = 1
	}

	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO items (id, tier, domain, risk_profile, context, maturity, validated_at, retired, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tier = excluded.tier,
			domain = excluded.domain,
			risk_profile = excluded.risk_profile,
			context = excluded.context,
			maturity = excluded.maturity,
			validated_at = excluded.validated_at,
			retired = excluded.retired,
			data = excluded.data`,
		item.ID, string(item.Tier),
		item.Taxonomy.Domain, item.Taxonomy.RiskProfile, item.Taxonomy.Context, item.Taxonomy.Maturity,
		validatedAt, retired, string(data))
	if err != nil {
		return fmt.Errorf("failed to write item %s: %w", item.ID, err)
	}

	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM edges WHERE from_id = ?`, item.ID); err != nil {
		return fmt.Errorf("failed to clear edges of %s: %w", item.ID, err)
	}
	for _, kind := range model.RelationKinds {
		for _, to := range item.Relationships.Get(kind) {
			if _, err := t.tx.ExecContext(t.ctx,
				`INSERT INTO edges (from_id, kind, to_id) VALUES (?, ?, ?)`, item.ID, string(kind), to); err != nil {
				return fmt.Errorf("failed to write edge %s -%s-> %s: %w", item.ID, kind, to, err)
			}
		}
	}
	return nil
}

func (t *sqliteTx) PutFingerprint(fp model.Fingerprint) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO fingerprints (item_id, captured_at, shingles) VALUES (?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET captured_at = excluded.captured_at, shingles = excluded.shingles`,
		fp.ItemID, fp.CapturedAt.UnixNano(), encodeShingles(fp.Shingles))
	if err != nil {
		return fmt.Errorf("failed to write fingerprint %s: %w", fp.ItemID, err)
	}
	return nil
}

func (t *sqliteTx) PutDuplicate(m model.DuplicateMarker) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO duplicates (document_id, duplicate_of, similarity, source_url, recorded_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(document_id, duplicate_of) DO UPDATE SET
			similarity = excluded.similarity, source_url = excluded.source_url, recorded_at = excluded.recorded_at`,
		m.DocumentID, m.DuplicateOf, m.Similarity, m.SourceURL, m.RecordedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write duplicate marker: %w", err)
	}
	return nil
}

// Update runs fn in one database transaction
func (s *SQLiteStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Query streams matching items straight from the result set
func (s *SQLiteStore) Query(ctx context.Context, q Query) iter.Seq2[model.ClassifiedItem, error] {
	return func(yield func(model.ClassifiedItem, error) bool) {
		col, ok := axisColumns[q.Axis]
		if !ok {
			yield(model.ClassifiedItem{}, fmt.Errorf("unknown axis %q", q.Axis))
			return
		}

		stmt := `SELECT data FROM items WHERE ` + col + ` = ?`
		if !q.IncludeRetired {
			stmt += ` AND retired = 0`
		}
		stmt += ` ORDER BY validated_at IS NULL, validated_at DESC, id ASC`

		rows, err := s.db.QueryContext(ctx, stmt, q.Value)
		if err != nil {
			yield(model.ClassifiedItem{}, fmt.Errorf("failed to query items: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			item, err := scanItem(rows)
			if err != nil {
				yield(model.ClassifiedItem{}, err)
				return
			}
			if !yield(*item, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(model.ClassifiedItem{}, fmt.Errorf("failed to read items: %w", err))
		}
	}
}

// Fingerprints streams stored fingerprints ordered by item id
func (s *SQLiteStore) Fingerprints(ctx context.Context) iter.Seq2[model.Fingerprint, error] {
	return func(yield func(model.Fingerprint, error) bool) {
		rows, err := s.db.QueryContext(ctx, `SELECT item_id, captured_at, shingles FROM fingerprints ORDER BY item_id`)
		if err != nil {
			yield(model.Fingerprint{}, fmt.Errorf("failed to query fingerprints: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				fp       model.Fingerprint
				captured int64
				blob     []byte
			)
			if err := rows.Scan(&fp.ItemID, &captured, &blob); err != nil {
				yield(model.Fingerprint{}, fmt.Errorf("failed to scan fingerprint: %w", err))
				return
			}
			fp.CapturedAt = time.Unix(0, captured).UTC()
			fp.Shingles = decodeShingles(blob)
			if !yield(fp, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(model.Fingerprint{}, fmt.Errorf("failed to read fingerprints: %w", err))
		}
	}
}

// Inbound returns the sorted ids with an edge of kind to id
func (s *SQLiteStore) Inbound(ctx context.Context, id string, kind model.RelationKind) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_id FROM edges WHERE to_id = ? AND kind = ? ORDER BY from_id`, id, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var from string
		if err := rows.Scan(&from); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		ids = append(ids, from)
	}
	return ids, rows.Err()
}

// Duplicates returns the markers pointing at itemID, oldest first
func (s *SQLiteStore) Duplicates(ctx context.Context, itemID string) ([]model.DuplicateMarker, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, duplicate_of, similarity, source_url, recorded_at
		FROM duplicates WHERE duplicate_of = ? ORDER BY recorded_at, document_id`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicates: %w", err)
	}
	defer rows.Close()

	var out []model.DuplicateMarker
	for rows.Next() {
		var (
			m        model.DuplicateMarker
			recorded int64
		)
		if err := rows.Scan(&m.DocumentID, &m.DuplicateOf, &m.Similarity, &m.SourceURL, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan duplicate: %w", err)
		}
		m.RecordedAt = time.Unix(0, recorded).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeShingles(shingles []uint64) []byte {
	buf := make([]byte, 8*len(shingles))
	for i, v := range shingles {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	return buf
}

func decodeShingles(buf []byte) []uint64 {
	out := make([]uint64, len(buf)/8)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
	return out
}
