package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/submission-intake/internal/db"
	"github.com/sells-group/submission-intake/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	q       queries
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

func newPostgresStore(pool db.Pool, closeFn func()) *PostgresStore {
	return &PostgresStore{
		pool:    pool,
		closeFn: closeFn,
		q:       queries{ph: sq.Dollar, jsonArg: func(b []byte) any { return b }},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return newPostgresStore(pool, pool.Close), nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS submissions (
	case_id             TEXT PRIMARY KEY,
	tx_id               TEXT NOT NULL,
	artifi_id           TEXT NOT NULL,
	submission_data     JSONB NOT NULL,
	history_sequence_id INTEGER NOT NULL,
	transaction_type    TEXT NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS submission_history (
	case_id             TEXT NOT NULL,
	history_sequence_id INTEGER NOT NULL,
	tx_id               TEXT NOT NULL,
	artifi_id           TEXT NOT NULL,
	submission_data     JSONB NOT NULL,
	transaction_type    TEXT NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (case_id, history_sequence_id)
);

CREATE TABLE IF NOT EXISTS agent_responses (
	case_id             TEXT PRIMARY KEY,
	tx_id               TEXT NOT NULL,
	artifi_id           TEXT NOT NULL,
	agent_response      JSONB NOT NULL,
	history_sequence_id INTEGER NOT NULL,
	transaction_type    TEXT NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS agent_response_history (
	case_id             TEXT NOT NULL,
	history_sequence_id INTEGER NOT NULL,
	tx_id               TEXT NOT NULL,
	artifi_id           TEXT NOT NULL,
	agent_response      JSONB NOT NULL,
	transaction_type    TEXT NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (case_id, history_sequence_id)
);

CREATE TABLE IF NOT EXISTS agent_catalog (
	agent_id   TEXT PRIMARY KEY,
	agent_name TEXT NOT NULL DEFAULT '',
	record     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_submissions_tx_id ON submissions(tx_id);
CREATE INDEX IF NOT EXISTS idx_submission_history_created_at ON submission_history(case_id, created_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveInitial stores a new intake as the next history version. A case seen
// before keeps its earlier versions and gets a fresh artifi_id.
func (s *PostgresStore) SaveInitial(ctx context.Context, rec SaveRecord) (*SaveResult, error) {
	var res *SaveResult
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		next, err := s.nextSequence(ctx, tx, rec.CaseID)
		if err != nil {
			return err
		}
		sub, agent, err := rec.rows(rec.TxID, uuid.New().String(), next, model.TransactionInitial, s.now())
		if err != nil {
			return err
		}
		stmts, err := s.q.appendStatements(sub, agent)
		if err != nil {
			return err
		}
		if err := execAll(ctx, tx, stmts); err != nil {
			return err
		}
		res = sub.result()
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: save initial %s", rec.CaseID)
	}
	return res, nil
}

func (s *PostgresStore) SaveUpdated(ctx context.Context, rec SaveRecord) (*SaveResult, error) {
	var res *SaveResult
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		identity, err := s.q.selectIdentity(rec.CaseID)
		if err != nil {
			return err
		}
		var txID, artifiID string
		if err := tx.QueryRow(ctx, identity.sql, identity.args...).Scan(&txID, &artifiID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNothingToUpdate
			}
			return eris.Wrap(err, "read current submission")
		}

		next, err := s.nextSequence(ctx, tx, rec.CaseID)
		if err != nil {
			return err
		}
		sub, agent, err := rec.rows(txID, artifiID, next, model.TransactionUpdated, s.now())
		if err != nil {
			return err
		}
		stmts, err := s.q.appendStatements(sub, agent)
		if err != nil {
			return err
		}
		if err := execAll(ctx, tx, stmts); err != nil {
			return err
		}
		res = sub.result()
		return nil
	})
	if errors.Is(err, ErrNothingToUpdate) {
		return nil, ErrNothingToUpdate
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: save updated %s", rec.CaseID)
	}
	return res, nil
}

// nextSequence is one past the highest sequence in either history table.
func (s *PostgresStore) nextSequence(ctx context.Context, tx pgx.Tx, caseID string) (int, error) {
	next := 0
	for _, f := range []family{submissionTables, agentTables} {
		q, err := s.q.maxSeq(f, caseID)
		if err != nil {
			return 0, err
		}
		var seq int
		if err := tx.QueryRow(ctx, q.sql, q.args...).Scan(&seq); err != nil {
			return 0, eris.Wrapf(err, "read max sequence from %s", f.history)
		}
		next = max(next, seq)
	}
	return next + 1, nil
}

func (s *PostgresStore) LatestSubmission(ctx context.Context, caseID string) (*model.SubmissionDocument, error) {
	r, err := s.current(ctx, submissionTables, caseID)
	if err != nil || r == nil {
		return nil, err
	}
	return r.submission()
}

func (s *PostgresStore) LatestAgentResponse(ctx context.Context, caseID string) (*model.AgentResponseDocument, error) {
	r, err := s.current(ctx, agentTables, caseID)
	if err != nil || r == nil {
		return nil, err
	}
	return r.agentResponse()
}

func (s *PostgresStore) current(ctx context.Context, f family, caseID string) (*docRow, error) {
	q, err := s.q.selectCurrent(f, caseID)
	if err != nil {
		return nil, err
	}
	r, err := scanDocRow(s.pool.QueryRow(ctx, q.sql, q.args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get %s", f.current)
	}
	return &r, nil
}

func (s *PostgresStore) SubmissionHistory(ctx context.Context, caseID string) ([]model.SubmissionDocument, error) {
	q, err := s.q.selectHistory(submissionTables, caseID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list submission history")
	}
	defer rows.Close()

	var out []model.SubmissionDocument
	for rows.Next() {
		r, err := scanDocRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan submission history")
		}
		doc, err := r.submission()
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate submission history")
}

func (s *PostgresStore) AgentCatalog(ctx context.Context, ids []string) ([]model.AgentRecord, error) {
	q, err := s.q.selectCatalog(ids)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list agent catalog")
	}
	defer rows.Close()

	var out []model.AgentRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan agent record")
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate agent catalog")
}

// UpsertAgents loads catalog records in one COPY-backed upsert.
func (s *PostgresStore) UpsertAgents(ctx context.Context, records []model.AgentRecord) (int64, error) {
	now := s.now()
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		if rec.AgentID == "" {
			return 0, eris.New("postgres: agent record without AgentID")
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal agent %s", rec.AgentID)
		}
		rows = append(rows, []any{rec.AgentID, rec.AgentName, raw, now})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "agent_catalog",
		Columns:      catalogColumns,
		ConflictKeys: []string{"agent_id"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert agents")
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "commit tx")
}

func execAll(ctx context.Context, tx pgx.Tx, stmts []stmt) error {
	for _, st := range stmts {
		if _, err := tx.Exec(ctx, st.sql, st.args...); err != nil {
			return eris.Wrap(err, "exec")
		}
	}
	return nil
}

func scanDocRow(row pgx.Row) (docRow, error) {
	var r docRow
	var typ string
	err := row.Scan(&r.CaseID, &r.TxID, &r.ArtifiID, &r.Payload, &r.Seq, &typ, &r.CreatedAt)
	r.Type = model.TransactionType(typ)
	return r, err
}
