// Package store persists submission snapshots, agent responses and the
// agent catalog.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/submission-intake/internal/model"
)

// ErrNothingToUpdate is returned by SaveUpdated when the case has never
// been saved.
var ErrNothingToUpdate = eris.New("store: no existing submission to update")

// SaveRecord is one submission snapshot with the agent replies produced
// from it.
type SaveRecord struct {
	CaseID         string
	TxID           string
	SubmissionData model.Value
	AgentResponse  model.AgentResponses
}

// SaveResult identifies the version written by a save.
type SaveResult struct {
	CaseID            string                `json:"case_id"`
	TxID              string                `json:"tx_id"`
	ArtifiID          string                `json:"artifi_id"`
	HistorySequenceID int                   `json:"history_sequence_id"`
	TransactionType   model.TransactionType `json:"transaction_type"`
	CreatedAt         time.Time             `json:"created_at"`
}

// Store defines persistence for the intake pipeline. Each case has a
// current submission and agent-response row plus an append-only history of
// both, numbered by a shared history_sequence_id.
type Store interface {
	// SaveInitial records a new intake under a fresh artifi_id and makes it
	// current. The first save of a case is sequence 1; a repeat intake of a
	// known case is appended at the next sequence.
	SaveInitial(ctx context.Context, rec SaveRecord) (*SaveResult, error)
	// SaveUpdated appends the next version of an existing case and makes
	// it current. It returns ErrNothingToUpdate when the case is unknown.
	SaveUpdated(ctx context.Context, rec SaveRecord) (*SaveResult, error)

	// LatestSubmission returns the current submission, or nil when the case
	// is unknown.
	LatestSubmission(ctx context.Context, caseID string) (*model.SubmissionDocument, error)
	LatestAgentResponse(ctx context.Context, caseID string) (*model.AgentResponseDocument, error)
	SubmissionHistory(ctx context.Context, caseID string) ([]model.SubmissionDocument, error)

	// AgentCatalog returns the catalog records for ids, or every record
	// when ids is empty.
	AgentCatalog(ctx context.Context, ids []string) ([]model.AgentRecord, error)
	UpsertAgents(ctx context.Context, records []model.AgentRecord) (int64, error)

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
