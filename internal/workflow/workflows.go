// Package workflow runs the intake pipeline on Temporal: the task handlers
// are activities and the two pipelines are workflows.
package workflow

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/sells-group/submission-intake/internal/agents"
	"github.com/sells-group/submission-intake/internal/model"
	"github.com/sells-group/submission-intake/internal/poll"
	"github.com/sells-group/submission-intake/pkg/casemgmt"
	"github.com/sells-group/submission-intake/pkg/docintel"
)

// Workflow type names.
const (
	IntakeWorkflowName = "IntakeWorkflow"
	RerunWorkflowName  = "RerunWorkflow"
)

// Settings bound the activities a workflow schedules. Zero fields take the
// defaults.
type Settings struct {
	PollTimeout      time.Duration `json:"poll_timeout"`
	PollHeartbeat    time.Duration `json:"poll_heartbeat"`
	AgentCallTimeout time.Duration `json:"agent_call_timeout"`
}

const (
	defaultActivityTimeout = 5 * time.Minute
	defaultPollTimeout     = 2 * time.Hour
	defaultPollHeartbeat   = 5 * time.Minute
	defaultAgentTimeout    = 300 * time.Second
)

func (s Settings) withDefaults() Settings {
	if s.PollTimeout <= 0 {
		s.PollTimeout = defaultPollTimeout
	}
	if s.PollHeartbeat <= 0 {
		s.PollHeartbeat = defaultPollHeartbeat
	}
	if s.AgentCallTimeout <= 0 {
		s.AgentCallTimeout = defaultAgentTimeout
	}
	return s
}

func taskOptions(ctx workflow.Context) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: defaultActivityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	})
}

// pollOptions allows a single attempt: a failed status call must surface
// instead of restarting the wait.
func pollOptions(ctx workflow.Context, s Settings) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: s.PollTimeout,
		HeartbeatTimeout:    s.PollHeartbeat,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
}

// agentOptions covers one dispatch: agents run concurrently, so the
// activity needs one call timeout plus slack.
func agentOptions(ctx workflow.Context, s Settings) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: s.AgentCallTimeout + time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 2},
	})
}

// IntakeInput starts the pipeline for one uploaded document.
type IntakeInput struct {
	// CaseID defaults to the tx_id assigned by the document service.
	CaseID      string   `json:"case_id,omitempty"`
	Filename    string   `json:"filename"`
	ContentType string   `json:"content_type"`
	Content     []byte   `json:"content"`
	ThreadID    int      `json:"thread_id,omitempty"`
	Settings    Settings `json:"settings"`
}

// IntakeResult is the outcome of a completed intake.
type IntakeResult struct {
	CaseID         string               `json:"case_id"`
	TxID           string               `json:"tx_id"`
	Status         poll.Status          `json:"status"`
	Packages       []PackageOutcome     `json:"packages"`
	SubmissionData model.Value          `json:"submission_data"`
	AgentOutput    model.AgentResponses `json:"agent_output"`
	Persisted      *PersistResult       `json:"persisted"`
	CaseManagement *casemgmt.Response   `json:"case_management"`
}

// IntakeWorkflow uploads a document, waits for extraction, normalizes the
// data packages, runs the agents, saves the Initial version and pushes the
// package to case management.
func IntakeWorkflow(ctx workflow.Context, in IntakeInput) (*IntakeResult, error) {
	log := workflow.GetLogger(ctx)
	settings := in.Settings.withDefaults()
	var a *Activities
	taskCtx := taskOptions(ctx)

	var token string
	if err := workflow.ExecuteActivity(taskCtx, a.GenerateAuthToken).Get(ctx, &token); err != nil {
		return nil, err
	}

	var target docintel.UploadTarget
	if err := workflow.ExecuteActivity(taskCtx, a.GetUploadURL, UploadURLInput{Token: token, Filename: in.Filename}).
		Get(ctx, &target); err != nil {
		return nil, err
	}
	caseID := in.CaseID
	if caseID == "" {
		caseID = target.TxID
	}
	log.Info("intake: job created", "tx_id", target.TxID, "case_id", caseID)

	upload := UploadInput{UploadURL: target.UploadURL, Content: in.Content, ContentType: in.ContentType}
	if err := workflow.ExecuteActivity(taskCtx, a.UploadFile, upload).Get(ctx, nil); err != nil {
		return nil, err
	}

	job := JobInput{Token: token, TxID: target.TxID}
	if err := workflow.ExecuteActivity(taskCtx, a.TriggerProcessing, job).Get(ctx, nil); err != nil {
		return nil, err
	}

	var status poll.Result
	if err := workflow.ExecuteActivity(pollOptions(ctx, settings), a.PollSubmissionStatus, job).Get(ctx, &status); err != nil {
		return nil, err
	}
	if status.Status == poll.StatusFailed {
		log.Error("intake: document processing failed", "tx_id", target.TxID, "attempts", status.Attempts)
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("document processing failed for %s", target.TxID),
			ErrDocumentProcessingFailed, nil, status.Payload)
	}

	var fetched FetchResult
	if err := workflow.ExecuteActivity(taskCtx, a.FetchSubmissionData, job).Get(ctx, &fetched); err != nil {
		return nil, err
	}

	var insights model.AgentResponses
	dispatch := DispatchInput{SubmissionData: fetched.SubmissionData, ThreadID: in.ThreadID}
	if err := workflow.ExecuteActivity(agentOptions(ctx, settings), a.CallAgentService, dispatch).Get(ctx, &insights); err != nil {
		return nil, err
	}

	var persisted PersistResult
	save := PersistInput{CaseID: caseID, TxID: target.TxID, SubmissionData: fetched.SubmissionData, AgentOutput: insights}
	if err := workflow.ExecuteActivity(taskCtx, a.PersistInitial, save).Get(ctx, &persisted); err != nil {
		return nil, err
	}

	var pushed casemgmt.Response
	push := CaseInput{CaseID: caseID, TxID: target.TxID, ParsedData: fetched.SubmissionData, Insights: insights}
	if err := workflow.ExecuteActivity(taskCtx, a.SendToCaseManagement, push).Get(ctx, &pushed); err != nil {
		return nil, err
	}

	log.Info("intake: complete", "case_id", caseID, "tx_id", target.TxID, "agents", len(insights))
	return &IntakeResult{
		CaseID:         caseID,
		TxID:           target.TxID,
		Status:         status.Status,
		Packages:       fetched.Packages,
		SubmissionData: fetched.SubmissionData,
		AgentOutput:    insights,
		Persisted:      &persisted,
		CaseManagement: &pushed,
	}, nil
}

// RerunInput re-evaluates an existing case with operator edits.
type RerunInput struct {
	CaseID       string      `json:"case_id"`
	ModifiedData model.Value `json:"modified_data"`
	ThreadID     int         `json:"thread_id,omitempty"`
	Settings     Settings    `json:"settings"`
}

// RerunResult is the outcome of a completed rerun.
type RerunResult struct {
	CaseID         string               `json:"case_id"`
	SubmissionData model.Value          `json:"submission_data"`
	AgentOutput    model.AgentResponses `json:"agent_output"`
	ModifiedFields []string             `json:"modified_fields"`
	Persisted      *PersistResult       `json:"persisted"`
	CaseManagement *casemgmt.Response   `json:"case_management"`
}

// RerunWorkflow merges the edits into the stored submission, reruns the
// agents, saves an Updated version and pushes the new insights.
func RerunWorkflow(ctx workflow.Context, in RerunInput) (*RerunResult, error) {
	log := workflow.GetLogger(ctx)
	settings := in.Settings.withDefaults()
	var a *Activities
	taskCtx := taskOptions(ctx)

	var rerun agents.RerunResult
	dispatch := RerunDispatchInput{CaseID: in.CaseID, ModifiedData: in.ModifiedData, ThreadID: in.ThreadID}
	if err := workflow.ExecuteActivity(agentOptions(ctx, settings), a.CallAgentServiceRerun, dispatch).Get(ctx, &rerun); err != nil {
		return nil, err
	}

	var persisted PersistResult
	save := PersistInput{CaseID: in.CaseID, SubmissionData: rerun.SubmissionData, AgentOutput: rerun.AgentOutput}
	if err := workflow.ExecuteActivity(taskCtx, a.PersistUpdated, save).Get(ctx, &persisted); err != nil {
		return nil, err
	}

	var pushed casemgmt.Response
	push := CaseInput{CaseID: in.CaseID, Insights: rerun.AgentOutput}
	if err := workflow.ExecuteActivity(taskCtx, a.SendToCaseManagementRerun, push).Get(ctx, &pushed); err != nil {
		return nil, err
	}

	log.Info("rerun: complete", "case_id", in.CaseID, "modified", len(rerun.ModifiedFields), "persisted", persisted.Outcome)
	return &RerunResult{
		CaseID:         in.CaseID,
		SubmissionData: rerun.SubmissionData,
		AgentOutput:    rerun.AgentOutput,
		ModifiedFields: rerun.ModifiedFields,
		Persisted:      &persisted,
		CaseManagement: &pushed,
	}, nil
}
