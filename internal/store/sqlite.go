package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/submission-intake/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	q   queries
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer keeps the read-modify-write in SaveUpdated serialized.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{
		db:  db,
		q:   queries{ph: sq.Question, jsonArg: func(b []byte) any { return string(b) }},
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS submissions (
	case_id             TEXT PRIMARY KEY,
	tx_id               TEXT NOT NULL,
	artifi_id           TEXT NOT NULL,
	submission_data     TEXT NOT NULL,
	history_sequence_id INTEGER NOT NULL,
	transaction_type    TEXT NOT NULL,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS submission_history (
	case_id             TEXT NOT NULL,
	history_sequence_id INTEGER NOT NULL,
	tx_id               TEXT NOT NULL,
	artifi_id           TEXT NOT NULL,
	submission_data     TEXT NOT NULL,
	transaction_type    TEXT NOT NULL,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (case_id, history_sequence_id)
);

CREATE TABLE IF NOT EXISTS agent_responses (
	case_id             TEXT PRIMARY KEY,
	tx_id               TEXT NOT NULL,
	artifi_id           TEXT NOT NULL,
	agent_response      TEXT NOT NULL,
	history_sequence_id INTEGER NOT NULL,
	transaction_type    TEXT NOT NULL,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS agent_response_history (
	case_id             TEXT NOT NULL,
	history_sequence_id INTEGER NOT NULL,
	tx_id               TEXT NOT NULL,
	artifi_id           TEXT NOT NULL,
	agent_response      TEXT NOT NULL,
	transaction_type    TEXT NOT NULL,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (case_id, history_sequence_id)
);

CREATE TABLE IF NOT EXISTS agent_catalog (
	agent_id   TEXT PRIMARY KEY,
	agent_name TEXT NOT NULL DEFAULT '',
	record     TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_submissions_tx_id ON submissions(tx_id);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveInitial stores a new intake as the next history version. A case seen
// before keeps its earlier versions and gets a fresh artifi_id.
func (s *SQLiteStore) SaveInitial(ctx context.Context, rec SaveRecord) (*SaveResult, error) {
	var res *SaveResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
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
		if err := execAllSQL(ctx, tx, stmts); err != nil {
			return err
		}
		res = sub.result()
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: save initial %s", rec.CaseID)
	}
	return res, nil
}

func (s *SQLiteStore) SaveUpdated(ctx context.Context, rec SaveRecord) (*SaveResult, error) {
	var res *SaveResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		identity, err := s.q.selectIdentity(rec.CaseID)
		if err != nil {
			return err
		}
		var txID, artifiID string
		if err := tx.QueryRowContext(ctx, identity.sql, identity.args...).Scan(&txID, &artifiID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
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
		if err := execAllSQL(ctx, tx, stmts); err != nil {
			return err
		}
		res = sub.result()
		return nil
	})
	if errors.Is(err, ErrNothingToUpdate) {
		return nil, ErrNothingToUpdate
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: save updated %s", rec.CaseID)
	}
	return res, nil
}

// nextSequence is one past the highest sequence in either history table.
func (s *SQLiteStore) nextSequence(ctx context.Context, tx *sql.Tx, caseID string) (int, error) {
	next := 0
	for _, f := range []family{submissionTables, agentTables} {
		q, err := s.q.maxSeq(f, caseID)
		if err != nil {
			return 0, err
		}
		var seq int
		if err := tx.QueryRowContext(ctx, q.sql, q.args...).Scan(&seq); err != nil {
			return 0, eris.Wrapf(err, "read max sequence from %s", f.history)
		}
		next = max(next, seq)
	}
	return next + 1, nil
}

func (s *SQLiteStore) LatestSubmission(ctx context.Context, caseID string) (*model.SubmissionDocument, error) {
	r, err := s.current(ctx, submissionTables, caseID)
	if err != nil || r == nil {
		return nil, err
	}
	return r.submission()
}

func (s *SQLiteStore) LatestAgentResponse(ctx context.Context, caseID string) (*model.AgentResponseDocument, error) {
	r, err := s.current(ctx, agentTables, caseID)
	if err != nil || r == nil {
		return nil, err
	}
	return r.agentResponse()
}

func (s *SQLiteStore) current(ctx context.Context, f family, caseID string) (*docRow, error) {
	q, err := s.q.selectCurrent(f, caseID)
	if err != nil {
		return nil, err
	}
	r, err := scanSQLDocRow(s.db.QueryRowContext(ctx, q.sql, q.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get %s", f.current)
	}
	return &r, nil
}

func (s *SQLiteStore) SubmissionHistory(ctx context.Context, caseID string) ([]model.SubmissionDocument, error) {
	q, err := s.q.selectHistory(submissionTables, caseID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q.sql, q.args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list submission history")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SubmissionDocument
	for rows.Next() {
		r, err := scanSQLDocRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan submission history")
		}
		doc, err := r.submission()
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate submission history")
}

func (s *SQLiteStore) AgentCatalog(ctx context.Context, ids []string) ([]model.AgentRecord, error) {
	q, err := s.q.selectCatalog(ids)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q.sql, q.args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list agent catalog")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.AgentRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan agent record")
		}
		rec, err := decodeRecord([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate agent catalog")
}

func (s *SQLiteStore) UpsertAgents(ctx context.Context, records []model.AgentRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	now := s.now()
	stmts := make([]stmt, 0, len(records))
	for _, rec := range records {
		if rec.AgentID == "" {
			return 0, eris.New("sqlite: agent record without AgentID")
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal agent %s", rec.AgentID)
		}
		st, err := s.q.upsertCatalog(rec.AgentID, rec.AgentName, raw, now)
		if err != nil {
			return 0, err
		}
		stmts = append(stmts, st)
	}
	if err := s.inTx(ctx, func(tx *sql.Tx) error { return execAllSQL(ctx, tx, stmts) }); err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert agents")
	}
	return int64(len(stmts)), nil
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "commit tx")
}

func execAllSQL(ctx context.Context, tx *sql.Tx, stmts []stmt) error {
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.sql, st.args...); err != nil {
			return eris.Wrap(err, "exec")
		}
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLDocRow(row scannable) (docRow, error) {
	var r docRow
	var typ, payload string
	err := row.Scan(&r.CaseID, &r.TxID, &r.ArtifiID, &payload, &r.Seq, &typ, &r.CreatedAt)
	r.Payload = []byte(payload)
	r.Type = model.TransactionType(typ)
	return r, err
}
