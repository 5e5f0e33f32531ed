// Package journal keeps an optional local record of attestations that were
// already emitted. Rows are hash chained so that edits or deletions are
// detected by the Auditor. Nothing secret and nothing identifying the device
// is stored.
package journal

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration

	"github.com/majorcontext/ephemera/internal/attest"
	"github.com/majorcontext/ephemera/internal/ephemeral"
	"github.com/majorcontext/ephemera/internal/payload"
)

var (
	// ErrNotFound is returned when a record doesn't exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey is returned when an attestation with an already
	// journaled public key is appended. Ephemeral keys never repeat, so this
	// indicates a replayed or broken attestation.
	ErrDuplicateKey = errors.New("public key already journaled")
)

// Record is one journaled attestation.
type Record struct {
	Seq         uint64
	RecordedAt  time.Time
	Attestation *attest.Attestation
	// Encoded holds the exact signed bytes as stored.
	Encoded  []byte
	PrevHash string
	Hash     string
}

// busyTimeout is how long a writer waits for another process holding the
// journal's write lock.
const busyTimeout = 5 * time.Second

// Store is an append-only SQLite journal. Several processes may append to
// the same file; each append reads the chain head under the write lock.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// Open opens or creates a journal at path.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS attestations (
			seq         INTEGER PRIMARY KEY,
			recorded_at TEXT NOT NULL,
			kind        INTEGER NOT NULL,
			payload     TEXT NOT NULL,
			public_key  TEXT NOT NULL UNIQUE,
			signature   TEXT NOT NULL,
			prev_hash   TEXT NOT NULL,
			hash        TEXT NOT NULL UNIQUE
		);
		CREATE INDEX IF NOT EXISTS idx_attestations_recorded ON attestations(recorded_at);
	`)
	return err
}

// head returns the sequence number and hash of the newest record.
func head(ctx context.Context, conn *sql.Conn) (uint64, string, error) {
	var seq uint64
	var hash string
	err := conn.QueryRowContext(ctx, `SELECT seq, hash FROM attestations ORDER BY seq DESC LIMIT 1`).Scan(&seq, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("loading last record: %w", err)
	}
	return seq, hash, nil
}

// Append journals att and returns the stored record.
func (s *Store) Append(att *attest.Attestation) (*Record, error) {
	return s.append(context.Background(), att)
}

func (s *Store) append(ctx context.Context, att *attest.Attestation) (rec *Record, err error) {
	encoded, err := att.EncodedPayload()
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close()

	// IMMEDIATE takes the write lock up front, so no other writer can
	// extend the chain between reading the head and inserting.
	if _, err := conn.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		return nil, fmt.Errorf("locking journal: %w", err)
	}
	defer func() {
		if err != nil {
			_, _ = conn.ExecContext(context.Background(), `ROLLBACK`)
		}
	}()

	pk, sig := att.PublicKey(), att.Signature()
	pkHex := payload.HexEncode(pk[:])

	var exists int
	err = conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM attestations WHERE public_key = ?`, pkHex).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking public key: %w", err)
	}
	if exists > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, pkHex)
	}

	lastSeq, lastHash, err := head(ctx, conn)
	if err != nil {
		return nil, err
	}
	rec = &Record{
		Seq:         lastSeq + 1,
		RecordedAt:  s.now(),
		Attestation: att,
		Encoded:     encoded,
		PrevHash:    lastHash,
	}
	rec.Hash = rec.computeHash()

	_, err = conn.ExecContext(ctx, `
		INSERT INTO attestations (seq, recorded_at, kind, payload, public_key, signature, prev_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Seq, rec.RecordedAt.Format(time.RFC3339Nano), int(att.Event().Kind()),
		payload.HexEncode(encoded), pkHex, payload.HexEncode(sig[:]), rec.PrevHash, rec.Hash)
	if err != nil {
		return nil, fmt.Errorf("inserting record: %w", err)
	}
	if _, err = conn.ExecContext(ctx, `COMMIT`); err != nil {
		return nil, fmt.Errorf("committing record: %w", err)
	}
	return rec, nil
}

// Emit appends att, so a Store can be used as an output sink.
func (s *Store) Emit(ctx context.Context, att *attest.Attestation) error {
	_, err := s.append(ctx, att)
	return err
}

// Get retrieves a record by sequence number.
func (s *Store) Get(seq uint64) (*Record, error) {
	row := s.db.QueryRow(`
		SELECT seq, recorded_at, payload, public_key, signature, prev_hash, hash
		FROM attestations WHERE seq = ?
	`, seq)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// List returns up to limit records in sequence order, starting after the
// given sequence number. A limit of 0 means no limit.
func (s *Store) List(after uint64, limit int) ([]*Record, error) {
	q := `
		SELECT seq, recorded_at, payload, public_key, signature, prev_hash, hash
		FROM attestations WHERE seq > ? ORDER BY seq`
	args := []any{after}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var recs []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Count returns the number of journaled attestations.
func (s *Store) Count() (uint64, error) {
	var n uint64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM attestations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var recordedAt, encHex, pkHex, sigHex string
	err := row.Scan(&rec.Seq, &recordedAt, &encHex, &pkHex, &sigHex, &rec.PrevHash, &rec.Hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning record: %w", err)
	}
	rec.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)

	if rec.Encoded, err = payload.HexDecode(encHex); err != nil {
		return nil, fmt.Errorf("record %d: decoding payload: %w", rec.Seq, err)
	}
	p, err := payload.Decode(rec.Encoded)
	if err != nil && !errors.Is(err, payload.ErrUnrecognizedEvent) {
		return nil, fmt.Errorf("record %d: %w", rec.Seq, err)
	}

	var pk [ephemeral.PublicKeySize]byte
	var sig [ephemeral.SignatureSize]byte
	if err := decodeInto(pk[:], pkHex); err != nil {
		return nil, fmt.Errorf("record %d: public key: %w", rec.Seq, err)
	}
	if err := decodeInto(sig[:], sigHex); err != nil {
		return nil, fmt.Errorf("record %d: signature: %w", rec.Seq, err)
	}
	rec.Attestation = attest.FromParts(p, pk, sig)
	return &rec, nil
}

func decodeInto(dst []byte, s string) error {
	b, err := payload.HexDecode(s)
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return fmt.Errorf("got %d bytes, want %d", len(b), len(dst))
	}
	copy(dst, b)
	return nil
}

// computeHash calculates SHA-256(seq || recorded_at || prev || payload || pk || sig).
func (r *Record) computeHash() string {
	h := sha256.New()

	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], r.Seq)
	h.Write(seq[:])
	h.Write([]byte(r.RecordedAt.Format(time.RFC3339Nano)))
	h.Write([]byte(r.PrevHash))
	h.Write(r.Encoded)

	pk, sig := r.Attestation.PublicKey(), r.Attestation.Signature()
	h.Write(pk[:])
	h.Write(sig[:])

	return hex.EncodeToString(h.Sum(nil))
}

// VerifyHash reports whether the record's stored hash matches its content.
func (r *Record) VerifyHash() bool {
	return r.Hash == r.computeHash()
}
