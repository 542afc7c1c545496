// Package replica implements the follower vector store on SQLite with the
// sqlite-vec extension. Its schema is flat: typed columns for the common
// fields, JSON text for composites, and a tenant_name column for partitioning.
package replica

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"notesync-be/internal/entity"
	"notesync-be/internal/repository/contract"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

var _ contract.VectorStore = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db        *sql.DB
	dimension int
}

const schema = `
CREATE TABLE IF NOT EXISTS records (
	tenant_name           TEXT    NOT NULL,
	unique_id             TEXT    NOT NULL,
	record_type           TEXT    NOT NULL,
	created               INTEGER NOT NULL DEFAULT 0,
	last_modified         INTEGER NOT NULL DEFAULT 0,
	last_update_device    TEXT    NOT NULL DEFAULT '',
	last_update_device_id TEXT    NOT NULL DEFAULT '',
	title                 TEXT    NOT NULL DEFAULT '',
	content               TEXT    NOT NULL DEFAULT '',
	tags                  TEXT,
	tag_ids               TEXT,
	incoming_connections  TEXT,
	outgoing_connections  TEXT,
	attributes            TEXT,
	embedding             BLOB,
	PRIMARY KEY (tenant_name, unique_id)
);
CREATE INDEX IF NOT EXISTS idx_records_tenant_modified ON records(tenant_name, last_modified);
`

const columns = `tenant_name, unique_id, record_type, created, last_modified, last_update_device,
last_update_device_id, title, content, tags, tag_ids, incoming_connections, outgoing_connections,
attributes, embedding`

// NewSQLiteStore opens (or creates) the replica database at path.
func NewSQLiteStore(path string, dimension int) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating replica dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating replica schema: %w", err)
	}
	return &SQLiteStore{db: db, dimension: dimension}, nil
}

func (s *SQLiteStore) Name() string {
	return "replica"
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) upsert(ctx context.Context, ex execer, r *entity.Record) error {
	var blob []byte
	if len(r.Vector) > 0 {
		var err error
		blob, err = sqlite_vec.SerializeFloat32(entity.FitVector(r.Vector, s.dimension))
		if err != nil {
			return fmt.Errorf("serializing embedding: %w", err)
		}
	}
	q := `INSERT INTO records(` + columns + `) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(tenant_name, unique_id) DO UPDATE SET
	record_type = excluded.record_type,
	created = excluded.created,
	last_modified = excluded.last_modified,
	last_update_device = excluded.last_update_device,
	last_update_device_id = excluded.last_update_device_id,
	title = excluded.title,
	content = excluded.content,
	tags = excluded.tags,
	tag_ids = excluded.tag_ids,
	incoming_connections = excluded.incoming_connections,
	outgoing_connections = excluded.outgoing_connections,
	attributes = excluded.attributes,
	embedding = COALESCE(excluded.embedding, records.embedding)`
	_, err := ex.ExecContext(ctx, q,
		r.TenantID, r.UniqueID, string(r.RecordType), r.Created, r.LastModified,
		r.LastUpdateDevice, r.LastUpdateDeviceID, r.Title, r.Content,
		jsonText(r.Tags), jsonText(r.TagIDs), jsonText(r.IncomingConnections),
		jsonText(r.OutgoingConnections), jsonText(r.Attributes), blob,
	)
	if err != nil {
		return fmt.Errorf("upserting replica record %s: %w", r.UniqueID, err)
	}
	return nil
}

func (s *SQLiteStore) Insert(ctx context.Context, record *entity.Record) error {
	return s.upsert(ctx, s.db, record)
}

func (s *SQLiteStore) UpsertBatch(ctx context.Context, records []*entity.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range records {
		if err := s.upsert(ctx, tx, r); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing replica batch: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateMetadata(ctx context.Context, tenantID, uniqueID string, update *entity.MetadataUpdate) (*entity.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+columns+` FROM records WHERE tenant_name = ? AND unique_id = ?`, tenantID, uniqueID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contract.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading replica record %s: %w", uniqueID, err)
	}

	update.Apply(rec)
	if err := s.upsert(ctx, tx, rec); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing metadata update: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) UpdateVector(ctx context.Context, tenantID, uniqueID string, vector []float32, lastModified int64) error {
	blob, err := sqlite_vec.SerializeFloat32(entity.FitVector(vector, s.dimension))
	if err != nil {
		return fmt.Errorf("serializing embedding: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET embedding = ?, last_modified = MAX(last_modified, ?) WHERE tenant_name = ? AND unique_id = ?`,
		blob, lastModified, tenantID, uniqueID)
	if err != nil {
		return fmt.Errorf("updating replica vector %s: %w", uniqueID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return contract.ErrRecordNotFound
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, tenantID, uniqueID string) error {
	return s.DeleteMany(ctx, tenantID, []string{uniqueID})
}

func (s *SQLiteStore) DeleteMany(ctx context.Context, tenantID string, uniqueIDs []string) error {
	if len(uniqueIDs) == 0 {
		return nil
	}
	args := []any{tenantID}
	for _, id := range uniqueIDs {
		args = append(args, id)
	}
	q := `DELETE FROM records WHERE tenant_name = ? AND unique_id IN (` + placeholders(len(uniqueIDs)) + `)`
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("deleting replica records: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, tenantID, uniqueID string) (*entity.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM records WHERE tenant_name = ? AND unique_id = ?`, tenantID, uniqueID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStore) Fetch(ctx context.Context, filter entity.RecordFilter, limit, offset int) ([]*entity.Record, error) {
	where, args := whereClause(filter)
	order := "ASC"
	if filter.NewestFirst {
		order = "DESC"
	}
	q := `SELECT ` + columns + ` FROM records WHERE ` + where +
		` ORDER BY last_modified ` + order + `, unique_id ASC LIMIT ? OFFSET ?`
	return s.query(ctx, q, append(args, limit, offset)...)
}

// QueryByVector ranks by cosine distance computed by sqlite-vec.
func (s *SQLiteStore) QueryByVector(ctx context.Context, query entity.VectorQuery, limit, offset int) ([]*entity.Record, error) {
	blob, err := sqlite_vec.SerializeFloat32(entity.FitVector(query.Vector, s.dimension))
	if err != nil {
		return nil, fmt.Errorf("serializing query vector: %w", err)
	}
	where, args := whereClause(query.Filter)
	q := `SELECT ` + columns + ` FROM records WHERE embedding IS NOT NULL AND ` + where +
		` ORDER BY vec_distance_cosine(embedding, ?) ASC LIMIT ? OFFSET ?`
	return s.query(ctx, q, append(args, blob, limit, offset)...)
}

func (s *SQLiteStore) Count(ctx context.Context, filter entity.RecordFilter) (int64, error) {
	where, args := whereClause(filter)
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE `+where, args...).Scan(&n)
	return n, err
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]*entity.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying replica: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func whereClause(f entity.RecordFilter) (string, []any) {
	conds := []string{"tenant_name = ?"}
	args := []any{f.TenantID}
	if len(f.RecordTypes) > 0 {
		conds = append(conds, "record_type IN ("+placeholders(len(f.RecordTypes))+")")
		for _, t := range f.RecordTypes {
			args = append(args, string(t))
		}
	}
	if f.ModifiedAfter != nil {
		conds = append(conds, "last_modified > ?")
		args = append(args, *f.ModifiedAfter)
	}
	if len(f.AnyTagIDs) > 0 {
		conds = append(conds, "EXISTS (SELECT 1 FROM json_each(records.tag_ids) WHERE json_each.value IN ("+placeholders(len(f.AnyTagIDs))+"))")
		for _, id := range f.AnyTagIDs {
			args = append(args, id)
		}
	}
	if f.Keyword != "" {
		pattern := "%" + strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(f.Keyword) + "%"
		conds = append(conds, `(title LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\' OR json_extract(attributes, '$.text') LIKE ? ESCAPE '\' OR json_extract(attributes, '$.name') LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern, pattern)
	}
	if len(f.UniqueIDs) > 0 {
		conds = append(conds, "unique_id IN ("+placeholders(len(f.UniqueIDs))+")")
		for _, id := range f.UniqueIDs {
			args = append(args, id)
		}
	}
	return strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*entity.Record, error) {
	var (
		r                                entity.Record
		recordType                       string
		tags, tagIDs, incoming, outgoing sql.NullString
		attributes                       sql.NullString
		embedding                        []byte
	)
	err := sc.Scan(&r.TenantID, &r.UniqueID, &recordType, &r.Created, &r.LastModified,
		&r.LastUpdateDevice, &r.LastUpdateDeviceID, &r.Title, &r.Content,
		&tags, &tagIDs, &incoming, &outgoing, &attributes, &embedding)
	if err != nil {
		return nil, err
	}
	r.RecordType = entity.RecordType(recordType)
	decodeText(tags, &r.Tags)
	decodeText(tagIDs, &r.TagIDs)
	decodeText(incoming, &r.IncomingConnections)
	decodeText(outgoing, &r.OutgoingConnections)
	decodeText(attributes, &r.Attributes)
	if len(embedding) > 0 {
		r.Vector = deserializeFloat32(embedding)
	}
	return &r, nil
}

func jsonText(v any) any {
	raw, err := json.Marshal(v)
	if err != nil || string(raw) == "null" {
		return nil
	}
	return string(raw)
}

func decodeText(s sql.NullString, dst any) {
	if !s.Valid || s.String == "" {
		return
	}
	_ = json.Unmarshal([]byte(s.String), dst)
}

// deserializeFloat32 reverses sqlite_vec.SerializeFloat32 (little-endian float32s).
func deserializeFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
