package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/sells-group/submission-intake/internal/agents"
	"github.com/sells-group/submission-intake/internal/metrics"
	"github.com/sells-group/submission-intake/internal/model"
	"github.com/sells-group/submission-intake/internal/normalize"
	"github.com/sells-group/submission-intake/internal/poll"
	"github.com/sells-group/submission-intake/internal/store"
	"github.com/sells-group/submission-intake/pkg/casemgmt"
	"github.com/sells-group/submission-intake/pkg/docintel"
)

// Application error types raised by activities and workflows. All three are
// non-retryable.
const (
	ErrDocumentProcessingFailed = "DocumentProcessingFailed"
	ErrDataShape                = "DataShapeError"
	ErrStatusCallFailed         = "StatusCallFailed"
)

// Dispatcher runs the agent roster over a submission.
type Dispatcher interface {
	Dispatch(ctx context.Context, submission model.Value, threadID int) (model.AgentResponses, error)
	Rerun(ctx context.Context, subs agents.SubmissionReader, caseID string, override model.Value, threadID int) (*agents.RerunResult, error)
}

// Activities holds the collaborators every intake task handler needs.
// Register it once per worker; each exported method is one activity.
type Activities struct {
	docintel   docintel.Client
	dispatcher Dispatcher
	store      store.Store
	cases      casemgmt.Client
	pollOpts   []poll.Option
}

// ActivitiesOption configures Activities.
type ActivitiesOption func(*Activities)

// WithPollOptions passes opts to every Poller built by PollSubmissionStatus.
func WithPollOptions(opts ...poll.Option) ActivitiesOption {
	return func(a *Activities) { a.pollOpts = append(a.pollOpts, opts...) }
}

// NewActivities builds the activity set.
func NewActivities(di docintel.Client, dispatcher Dispatcher, st store.Store, cases casemgmt.Client, opts ...ActivitiesOption) *Activities {
	a := &Activities{docintel: di, dispatcher: dispatcher, store: st, cases: cases}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// --- Document intelligence ---

// GenerateAuthToken obtains a bearer token for the document-intelligence API.
func (a *Activities) GenerateAuthToken(ctx context.Context) (string, error) {
	token, err := a.docintel.Authenticate(ctx)
	if err != nil {
		return "", eris.Wrap(err, "activity: generate auth token")
	}
	return token, nil
}

// UploadURLInput requests an upload slot for one file.
type UploadURLInput struct {
	Token    string `json:"token"`
	Filename string `json:"filename"`
}

// GetUploadURL reserves an upload URL and the tx_id that tracks the job.
func (a *Activities) GetUploadURL(ctx context.Context, in UploadURLInput) (*docintel.UploadTarget, error) {
	target, err := a.docintel.GetUploadURL(ctx, in.Token, in.Filename)
	if err != nil {
		return nil, eris.Wrapf(err, "activity: get upload url for %s", in.Filename)
	}
	zap.L().Info("activity: upload url issued", zap.String("tx_id", target.TxID), zap.String("filename", in.Filename))
	return target, nil
}

// UploadInput is one file upload to a reserved URL.
type UploadInput struct {
	UploadURL   string `json:"upload_url"`
	Content     []byte `json:"content"`
	ContentType string `json:"content_type"`
}

// UploadFile PUTs the document to its upload URL.
func (a *Activities) UploadFile(ctx context.Context, in UploadInput) error {
	if err := a.docintel.Upload(ctx, in.UploadURL, in.Content, in.ContentType); err != nil {
		return eris.Wrap(err, "activity: upload file")
	}
	return nil
}

// JobInput addresses one document-intelligence job.
type JobInput struct {
	Token string `json:"token"`
	TxID  string `json:"tx_id"`
}

// TriggerProcessing starts extraction of an uploaded document.
func (a *Activities) TriggerProcessing(ctx context.Context, in JobInput) error {
	if err := a.docintel.TriggerProcessing(ctx, in.Token, in.TxID); err != nil {
		return eris.Wrapf(err, "activity: trigger processing %s", in.TxID)
	}
	return nil
}

// PollSubmissionStatus waits for the job to reach a terminal status,
// heartbeating on every observed status. A failed status request is a
// non-retryable StatusCallFailed error; a FAILED job is returned as a
// normal result for the workflow to judge.
func (a *Activities) PollSubmissionStatus(ctx context.Context, in JobInput) (*poll.Result, error) {
	opts := append([]poll.Option{}, a.pollOpts...)
	opts = append(opts, poll.WithObserver(func(tr poll.Transition) {
		activity.RecordHeartbeat(ctx, tr.Attempt)
		metrics.PollAttempts.WithLabelValues(string(tr.Current)).Inc()
		if tr.Terminal {
			metrics.PollDuration.Observe(tr.Elapsed.Seconds())
		}
	}))

	res, err := poll.New(a.docintel, opts...).Poll(ctx, in.TxID, in.Token)
	if err != nil {
		var callErr *poll.CallError
		if errors.As(err, &callErr) {
			return nil, temporal.NewNonRetryableApplicationError(callErr.Error(), ErrStatusCallFailed, callErr)
		}
		return nil, err
	}
	return res, nil
}

// PackageOutcome records what happened to one data package.
type PackageOutcome struct {
	PackageID string `json:"package_id"`
	Category  string `json:"category"`
	Outcome   string `json:"outcome"`
}

// FetchResult is the normalized submission assembled from every data
// package that applied.
type FetchResult struct {
	SubmissionData model.Value      `json:"submission_data"`
	Packages       []PackageOutcome `json:"packages"`
}

// FetchSubmissionData fetches and normalizes every data package. A package
// the service reports as not found does not apply to the submission and is
// skipped. Malformed package data is a non-retryable DataShapeError.
func (a *Activities) FetchSubmissionData(ctx context.Context, in JobInput) (*FetchResult, error) {
	log := zap.L().With(zap.String("tx_id", in.TxID))
	var data model.SubmissionData
	outcomes := make([]PackageOutcome, 0, len(normalize.Packages))

	for _, pkg := range normalize.Packages {
		raw, err := a.docintel.FetchPackage(ctx, in.Token, pkg.ID, in.TxID)
		if err != nil {
			if docintel.IsNotFound(err) {
				log.Info("activity: data package not present", zap.String("package", pkg.ID))
				metrics.PackagesFetched.WithLabelValues(pkg.ID, metrics.OutcomeNotFound).Inc()
				outcomes = append(outcomes, PackageOutcome{PackageID: pkg.ID, Category: pkg.Category, Outcome: metrics.OutcomeNotFound})
				continue
			}
			metrics.PackagesFetched.WithLabelValues(pkg.ID, metrics.OutcomeError).Inc()
			return nil, eris.Wrapf(err, "activity: fetch package %s", pkg.ID)
		}

		if err := pkg.Apply(&data, raw); err != nil {
			metrics.PackagesFetched.WithLabelValues(pkg.ID, metrics.OutcomeError).Inc()
			if se, ok := normalize.AsShapeError(err); ok {
				return nil, temporal.NewNonRetryableApplicationError(se.Error(), ErrDataShape, se, pkg.ID)
			}
			return nil, eris.Wrapf(err, "activity: normalize package %s", pkg.ID)
		}
		metrics.PackagesFetched.WithLabelValues(pkg.ID, metrics.OutcomeOK).Inc()
		outcomes = append(outcomes, PackageOutcome{PackageID: pkg.ID, Category: pkg.Category, Outcome: metrics.OutcomeOK})
	}

	sub, err := data.Value()
	if err != nil {
		return nil, eris.Wrap(err, "activity: encode submission data")
	}
	log.Info("activity: submission data assembled", zap.Strings("categories", data.Categories()))
	return &FetchResult{SubmissionData: sub, Packages: outcomes}, nil
}

// --- Agents ---

// DispatchInput is a submission for the agent roster.
type DispatchInput struct {
	SubmissionData model.Value `json:"submission_data"`
	ThreadID       int         `json:"thread_id,omitempty"`
}

// CallAgentService runs every roster agent over the submission.
func (a *Activities) CallAgentService(ctx context.Context, in DispatchInput) (model.AgentResponses, error) {
	out, err := a.dispatcher.Dispatch(ctx, in.SubmissionData, in.ThreadID)
	if err != nil {
		return nil, eris.Wrap(err, "activity: call agent service")
	}
	return out, nil
}

// RerunDispatchInput carries operator edits for an existing case.
type RerunDispatchInput struct {
	CaseID       string      `json:"case_id"`
	ModifiedData model.Value `json:"modified_data"`
	ThreadID     int         `json:"thread_id,omitempty"`
}

// CallAgentServiceRerun merges the edits into the stored submission and
// runs the roster over the result.
func (a *Activities) CallAgentServiceRerun(ctx context.Context, in RerunDispatchInput) (*agents.RerunResult, error) {
	out, err := a.dispatcher.Rerun(ctx, a.store, in.CaseID, in.ModifiedData, in.ThreadID)
	if err != nil {
		return nil, eris.Wrapf(err, "activity: rerun agents for %s", in.CaseID)
	}
	return out, nil
}

// --- Persistence ---

// PersistInput is one version of a case to save.
type PersistInput struct {
	CaseID         string               `json:"case_id"`
	TxID           string               `json:"tx_id,omitempty"`
	SubmissionData model.Value          `json:"submission_data"`
	AgentOutput    model.AgentResponses `json:"agent_output"`
}

// PersistResult reports the saved version, or no_op when an update found
// nothing to update.
type PersistResult struct {
	Outcome string            `json:"outcome"`
	Saved   *store.SaveResult `json:"saved,omitempty"`
}

func (in PersistInput) record() store.SaveRecord {
	return store.SaveRecord{
		CaseID:         in.CaseID,
		TxID:           in.TxID,
		SubmissionData: in.SubmissionData,
		AgentResponse:  in.AgentOutput,
	}
}

// PersistInitial saves the first version of a case.
func (a *Activities) PersistInitial(ctx context.Context, in PersistInput) (*PersistResult, error) {
	res, err := a.store.SaveInitial(ctx, in.record())
	if err != nil {
		metrics.Saves.WithLabelValues(string(model.TransactionInitial), metrics.OutcomeError).Inc()
		return nil, eris.Wrapf(err, "activity: persist initial %s", in.CaseID)
	}
	metrics.Saves.WithLabelValues(string(model.TransactionInitial), metrics.OutcomeOK).Inc()
	return &PersistResult{Outcome: metrics.OutcomeOK, Saved: res}, nil
}

// PersistUpdated appends a new version of an existing case. An unknown
// case is reported as no_op, not as a failure.
func (a *Activities) PersistUpdated(ctx context.Context, in PersistInput) (*PersistResult, error) {
	res, err := a.store.SaveUpdated(ctx, in.record())
	if errors.Is(err, store.ErrNothingToUpdate) {
		zap.L().Warn("activity: no stored submission to update", zap.String("case_id", in.CaseID))
		metrics.Saves.WithLabelValues(string(model.TransactionUpdated), metrics.OutcomeNoOp).Inc()
		return &PersistResult{Outcome: metrics.OutcomeNoOp}, nil
	}
	if err != nil {
		metrics.Saves.WithLabelValues(string(model.TransactionUpdated), metrics.OutcomeError).Inc()
		return nil, eris.Wrapf(err, "activity: persist update %s", in.CaseID)
	}
	metrics.Saves.WithLabelValues(string(model.TransactionUpdated), metrics.OutcomeOK).Inc()
	return &PersistResult{Outcome: metrics.OutcomeOK, Saved: res}, nil
}

// --- Case management ---

// CaseInput is the package pushed to case management.
type CaseInput struct {
	CaseID     string               `json:"case_id"`
	TxID       string               `json:"tx_id,omitempty"`
	ParsedData model.Value          `json:"parsed_data"`
	Insights   model.AgentResponses `json:"insights"`
}

// SendToCaseManagement pushes the initial package for a case.
func (a *Activities) SendToCaseManagement(ctx context.Context, in CaseInput) (*casemgmt.Response, error) {
	return a.push(ctx, casemgmt.Package{
		CaseID:     in.CaseID,
		TxID:       in.TxID,
		ParsedData: in.ParsedData,
		Insights:   in.Insights,
	})
}

// SendToCaseManagementRerun pushes a rerun's insights together with the
// case's current stored submission. The payload carries no tx_id.
func (a *Activities) SendToCaseManagementRerun(ctx context.Context, in CaseInput) (*casemgmt.Response, error) {
	doc, err := a.store.LatestSubmission(ctx, in.CaseID)
	if err != nil {
		return nil, eris.Wrapf(err, "activity: load submission %s", in.CaseID)
	}
	parsed := model.FromObject(nil)
	if doc != nil {
		parsed = doc.SubmissionData
	}
	return a.push(ctx, casemgmt.Package{CaseID: in.CaseID, ParsedData: parsed, Insights: in.Insights})
}

func (a *Activities) push(ctx context.Context, pkg casemgmt.Package) (*casemgmt.Response, error) {
	start := time.Now()
	resp, err := a.cases.Push(ctx, pkg)
	if err != nil {
		metrics.CasePushes.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, eris.Wrapf(err, "activity: push case %s", pkg.CaseID)
	}
	metrics.CasePushes.WithLabelValues(metrics.OutcomeOK).Inc()
	zap.L().Info("activity: case pushed",
		zap.String("case_id", pkg.CaseID),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}
