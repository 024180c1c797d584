package store

import (
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"

	"github.com/sells-group/submission-intake/internal/model"
)

// family is one current/history table pair.
type family struct {
	current string
	history string
	payload string
}

var (
	submissionTables = family{current: "submissions", history: "submission_history", payload: "submission_data"}
	agentTables      = family{current: "agent_responses", history: "agent_response_history", payload: "agent_response"}
)

func (f family) columns() []string {
	return []string{"case_id", "tx_id", "artifi_id", f.payload, "history_sequence_id", "transaction_type", "created_at"}
}

// docRow is a row of either family.
type docRow struct {
	CaseID    string
	TxID      string
	ArtifiID  string
	Payload   []byte
	Seq       int
	Type      model.TransactionType
	CreatedAt time.Time
}

type stmt struct {
	sql  string
	args []any
}

// queries builds the SQL shared by both drivers. Placeholders and the JSON
// argument encoding differ per dialect.
type queries struct {
	ph      sq.PlaceholderFormat
	jsonArg func([]byte) any
}

func (q queries) values(r docRow) []any {
	return []any{r.CaseID, r.TxID, r.ArtifiID, q.jsonArg(r.Payload), r.Seq, string(r.Type), r.CreatedAt}
}

func (q queries) upsertCurrent(f family, r docRow) (stmt, error) {
	sql, args, err := sq.Insert(f.current).
		Columns(f.columns()...).
		Values(q.values(r)...).
		Suffix("ON CONFLICT (case_id) DO UPDATE SET " +
			"tx_id = EXCLUDED.tx_id, artifi_id = EXCLUDED.artifi_id, " +
			f.payload + " = EXCLUDED." + f.payload + ", " +
			"history_sequence_id = EXCLUDED.history_sequence_id, " +
			"transaction_type = EXCLUDED.transaction_type, created_at = EXCLUDED.created_at").
		PlaceholderFormat(q.ph).
		ToSql()
	if err != nil {
		return stmt{}, eris.Wrapf(err, "store: build upsert %s", f.current)
	}
	return stmt{sql: sql, args: args}, nil
}

// insertHistory appends a history row. A duplicate sequence number fails
// on the table's primary key; history rows are never rewritten.
func (q queries) insertHistory(f family, r docRow) (stmt, error) {
	sql, args, err := sq.Insert(f.history).
		Columns(f.columns()...).
		Values(q.values(r)...).
		PlaceholderFormat(q.ph).
		ToSql()
	if err != nil {
		return stmt{}, eris.Wrapf(err, "store: build insert %s", f.history)
	}
	return stmt{sql: sql, args: args}, nil
}

func (q queries) selectCurrent(f family, caseID string) (stmt, error) {
	sql, args, err := sq.Select(f.columns()...).
		From(f.current).
		Where(sq.Eq{"case_id": caseID}).
		PlaceholderFormat(q.ph).
		ToSql()
	if err != nil {
		return stmt{}, eris.Wrapf(err, "store: build select %s", f.current)
	}
	return stmt{sql: sql, args: args}, nil
}

func (q queries) selectIdentity(caseID string) (stmt, error) {
	sql, args, err := sq.Select("tx_id", "artifi_id").
		From(submissionTables.current).
		Where(sq.Eq{"case_id": caseID}).
		PlaceholderFormat(q.ph).
		ToSql()
	if err != nil {
		return stmt{}, eris.Wrap(err, "store: build select identity")
	}
	return stmt{sql: sql, args: args}, nil
}

func (q queries) maxSeq(f family, caseID string) (stmt, error) {
	sql, args, err := sq.Select("COALESCE(MAX(history_sequence_id), 0)").
		From(f.history).
		Where(sq.Eq{"case_id": caseID}).
		PlaceholderFormat(q.ph).
		ToSql()
	if err != nil {
		return stmt{}, eris.Wrapf(err, "store: build max sequence %s", f.history)
	}
	return stmt{sql: sql, args: args}, nil
}

func (q queries) selectHistory(f family, caseID string) (stmt, error) {
	sql, args, err := sq.Select(f.columns()...).
		From(f.history).
		Where(sq.Eq{"case_id": caseID}).
		OrderBy("history_sequence_id ASC").
		PlaceholderFormat(q.ph).
		ToSql()
	if err != nil {
		return stmt{}, eris.Wrapf(err, "store: build select %s", f.history)
	}
	return stmt{sql: sql, args: args}, nil
}

func (q queries) selectCatalog(ids []string) (stmt, error) {
	b := sq.Select("record").From("agent_catalog").OrderBy("agent_id").PlaceholderFormat(q.ph)
	if len(ids) > 0 {
		b = b.Where(sq.Eq{"agent_id": ids})
	}
	sql, args, err := b.ToSql()
	if err != nil {
		return stmt{}, eris.Wrap(err, "store: build select agent_catalog")
	}
	return stmt{sql: sql, args: args}, nil
}

func (q queries) upsertCatalog(agentID, agentName string, record []byte, now time.Time) (stmt, error) {
	sql, args, err := sq.Insert("agent_catalog").
		Columns(catalogColumns...).
		Values(agentID, agentName, q.jsonArg(record), now).
		Suffix("ON CONFLICT (agent_id) DO UPDATE SET " +
			"agent_name = EXCLUDED.agent_name, record = EXCLUDED.record, updated_at = EXCLUDED.updated_at").
		PlaceholderFormat(q.ph).
		ToSql()
	if err != nil {
		return stmt{}, eris.Wrap(err, "store: build upsert agent_catalog")
	}
	return stmt{sql: sql, args: args}, nil
}

var catalogColumns = []string{"agent_id", "agent_name", "record", "updated_at"}

// appendStatements appends the next version of both families and makes it
// current. Initial and Updated saves share it.
func (q queries) appendStatements(sub, agent docRow) ([]stmt, error) {
	return q.collect(
		func() (stmt, error) { return q.insertHistory(submissionTables, sub) },
		func() (stmt, error) { return q.insertHistory(agentTables, agent) },
		func() (stmt, error) { return q.upsertCurrent(submissionTables, sub) },
		func() (stmt, error) { return q.upsertCurrent(agentTables, agent) },
	)
}

func (q queries) collect(builders ...func() (stmt, error)) ([]stmt, error) {
	out := make([]stmt, 0, len(builders))
	for _, build := range builders {
		s, err := build()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// rows renders a SaveRecord as one row per family.
func (rec SaveRecord) rows(txID, artifiID string, seq int, typ model.TransactionType, now time.Time) (docRow, docRow, error) {
	subJSON, err := json.Marshal(rec.SubmissionData)
	if err != nil {
		return docRow{}, docRow{}, eris.Wrap(err, "store: marshal submission data")
	}
	responses := rec.AgentResponse
	if responses == nil {
		responses = model.AgentResponses{}
	}
	agentJSON, err := json.Marshal(responses)
	if err != nil {
		return docRow{}, docRow{}, eris.Wrap(err, "store: marshal agent response")
	}
	base := docRow{CaseID: rec.CaseID, TxID: txID, ArtifiID: artifiID, Seq: seq, Type: typ, CreatedAt: now}
	sub, agent := base, base
	sub.Payload = subJSON
	agent.Payload = agentJSON
	return sub, agent, nil
}

func (r docRow) result() *SaveResult {
	return &SaveResult{
		CaseID:            r.CaseID,
		TxID:              r.TxID,
		ArtifiID:          r.ArtifiID,
		HistorySequenceID: r.Seq,
		TransactionType:   r.Type,
		CreatedAt:         r.CreatedAt,
	}
}

func (r docRow) submission() (*model.SubmissionDocument, error) {
	data, err := model.Parse(r.Payload)
	if err != nil {
		return nil, eris.Wrapf(err, "store: decode submission for %s", r.CaseID)
	}
	return &model.SubmissionDocument{
		CaseID:            r.CaseID,
		TxID:              r.TxID,
		ArtifiID:          r.ArtifiID,
		SubmissionData:    data,
		HistorySequenceID: r.Seq,
		TransactionType:   r.Type,
		CreatedAt:         r.CreatedAt,
	}, nil
}

func (r docRow) agentResponse() (*model.AgentResponseDocument, error) {
	var responses model.AgentResponses
	if err := json.Unmarshal(r.Payload, &responses); err != nil {
		return nil, eris.Wrapf(err, "store: decode agent response for %s", r.CaseID)
	}
	return &model.AgentResponseDocument{
		CaseID:            r.CaseID,
		TxID:              r.TxID,
		ArtifiID:          r.ArtifiID,
		AgentResponse:     responses,
		HistorySequenceID: r.Seq,
		TransactionType:   r.Type,
		CreatedAt:         r.CreatedAt,
	}, nil
}

func decodeRecord(raw []byte) (model.AgentRecord, error) {
	var rec model.AgentRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.AgentRecord{}, eris.Wrap(err, "store: decode agent record")
	}
	return rec, nil
}
