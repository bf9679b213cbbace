package auditlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// appendLockKey serialises appends across threatd replicas sharing one
// database.
const appendLockKey = int64(0x7468_7265_6174) // "threat"

const entryColumns = `seq, recorded_at, threat_model_id, subject, action, actor, summary, digest, prev_hash, hash`

// PostgresLedger stores the chain in the audit_ledger table
// (migrations/001_audit_ledger.sql).
type PostgresLedger struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ Ledger = (*PostgresLedger)(nil)

// NewPostgres returns a ledger backed by pool. The genesis row is inserted
// if the table is empty.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) (*PostgresLedger, error) {
	l := &PostgresLedger{pool: pool, logger: logger}
	g := genesis(time.Now())
	if _, err := pool.Exec(ctx,
		`INSERT INTO audit_ledger (`+entryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (seq) DO NOTHING`,
		g.Seq, g.RecordedAt, g.ThreatModelID, g.Subject, g.Action, g.Actor,
		g.Summary, g.Digest, g.PrevHash, g.Hash,
	); err != nil {
		return nil, fmt.Errorf("seed audit genesis: %w", err)
	}
	return l, nil
}

// Append implements Ledger. The head is read and the new row written in one
// transaction holding a transaction-scoped advisory lock.
func (l *PostgresLedger) Append(ctx context.Context, r Record) (*Entry, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", appendLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	head, err := scanEntry(tx.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM audit_ledger ORDER BY seq DESC LIMIT 1`))
	if err != nil {
		return nil, fmt.Errorf("read audit head: %w", err)
	}

	e, err := link(head, r, time.Now())
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO audit_ledger (`+entryColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.Seq, e.RecordedAt, e.ThreatModelID, e.Subject, e.Action, e.Actor,
		e.Summary, e.Digest, e.PrevHash, e.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert audit entry: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit audit entry: %w", err)
	}

	l.logger.Debug("audit entry appended",
		zap.Int("seq", e.Seq),
		zap.String("action", e.Action),
		zap.String("threat_model_id", e.ThreatModelID),
	)
	return &e, nil
}

// Get implements Ledger.
func (l *PostgresLedger) Get(ctx context.Context, seq int) (*Entry, error) {
	e, err := scanEntry(l.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM audit_ledger WHERE seq = $1`, seq))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get audit entry %d: %w", seq, err)
	}
	return e, nil
}

// Recent implements Ledger.
func (l *PostgresLedger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM audit_ledger ORDER BY seq DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Len implements Ledger.
func (l *PostgresLedger) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_ledger").Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}

// Verify implements Ledger. Rows are streamed in seq order.
func (l *PostgresLedger) Verify(ctx context.Context) error {
	rows, err := l.pool.Query(ctx, `SELECT `+entryColumns+` FROM audit_ledger ORDER BY seq ASC`)
	if err != nil {
		return fmt.Errorf("query audit ledger: %w", err)
	}
	defer rows.Close()

	var prev *Entry
	for rows.Next() {
		curr, err := scanEntry(rows)
		if err != nil {
			return fmt.Errorf("scan audit entry: %w", err)
		}
		if err := verifyLink(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return rows.Err()
}

// Head implements Ledger.
func (l *PostgresLedger) Head(ctx context.Context) (string, error) {
	var hash string
	if err := l.pool.QueryRow(ctx,
		"SELECT hash FROM audit_ledger ORDER BY seq DESC LIMIT 1",
	).Scan(&hash); err != nil {
		return "", fmt.Errorf("get audit head: %w", err)
	}
	return hash, nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	e := &Entry{}
	if err := row.Scan(
		&e.Seq, &e.RecordedAt, &e.ThreatModelID, &e.Subject, &e.Action,
		&e.Actor, &e.Summary, &e.Digest, &e.PrevHash, &e.Hash,
	); err != nil {
		return nil, err
	}
	e.RecordedAt = e.RecordedAt.UTC()
	return e, nil
}
