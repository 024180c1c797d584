package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/sells-group/submission-intake/internal/metrics"
	"github.com/sells-group/submission-intake/internal/model"
)

// Dial connects to the Temporal frontend, logging through zap.
func Dial(hostPort, namespace string) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  hostPort,
		Namespace: namespace,
		Logger:    NewZapLogger(zap.L()),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "workflow: dial temporal at %s", hostPort)
	}
	return c, nil
}

// NewWorker creates a worker on taskQueue with both workflows and every
// activity registered.
func NewWorker(c client.Client, taskQueue string, acts *Activities) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	Register(w, acts)
	return w
}

// Register adds the workflows and activities to r.
func Register(r worker.Registry, acts *Activities) {
	r.RegisterWorkflow(IntakeWorkflow)
	r.RegisterWorkflow(RerunWorkflow)
	r.RegisterActivity(acts)
}

// Execution statuses reported by Describe.
const (
	ExecutionRunning   = "RUNNING"
	ExecutionCompleted = "COMPLETED"
	ExecutionFailed    = "FAILED"
	ExecutionCanceled  = "CANCELED"
	ExecutionTimedOut  = "TIMED_OUT"
	ExecutionUnknown   = "UNKNOWN"
)

// Execution is a snapshot of one workflow run.
type Execution struct {
	WorkflowID string      `json:"workflow_id"`
	Status     string      `json:"status"`
	Result     model.Value `json:"result"`
	// Failure holds the error message of a run that did not complete.
	Failure string `json:"failure,omitempty"`
}

// Done reports whether the run has stopped.
func (e *Execution) Done() bool {
	return e.Status != ExecutionRunning && e.Status != ExecutionUnknown
}

// Orchestrator starts intake workflows and reports on them.
type Orchestrator struct {
	client          client.Client
	taskQueue       string
	settings        Settings
	workflowTimeout time.Duration
	newID           func() string
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithSettings sets the activity bounds sent with every workflow.
func WithSettings(s Settings) OrchestratorOption {
	return func(o *Orchestrator) { o.settings = s }
}

// WithWorkflowTimeout bounds each workflow execution. Zero leaves it
// unbounded.
func WithWorkflowTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.workflowTimeout = d }
}

// NewOrchestrator builds an Orchestrator on c.
func NewOrchestrator(c client.Client, taskQueue string, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		client:    c,
		taskQueue: taskQueue,
		newID:     func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartIntake starts an IntakeWorkflow and returns its workflow ID.
func (o *Orchestrator) StartIntake(ctx context.Context, in IntakeInput) (string, error) {
	if in.Settings == (Settings{}) {
		in.Settings = o.settings
	}
	return o.start(ctx, "intake-", IntakeWorkflowName, in)
}

// StartRerun starts a RerunWorkflow and returns its workflow ID.
func (o *Orchestrator) StartRerun(ctx context.Context, in RerunInput) (string, error) {
	if in.Settings == (Settings{}) {
		in.Settings = o.settings
	}
	return o.start(ctx, "rerun-"+in.CaseID+"-", RerunWorkflowName, in)
}

func (o *Orchestrator) start(ctx context.Context, prefix, workflowName string, arg any) (string, error) {
	opts := client.StartWorkflowOptions{
		ID:                       prefix + o.newID(),
		TaskQueue:                o.taskQueue,
		WorkflowExecutionTimeout: o.workflowTimeout,
	}
	run, err := o.client.ExecuteWorkflow(ctx, opts, workflowName, arg)
	if err != nil {
		return "", eris.Wrapf(err, "workflow: start %s", workflowName)
	}
	metrics.WorkflowsStarted.WithLabelValues(workflowName).Inc()
	zap.L().Info("workflow: started",
		zap.String("workflow", workflowName),
		zap.String("workflow_id", run.GetID()),
		zap.String("run_id", run.GetRunID()),
	)
	return run.GetID(), nil
}

// Describe reports the status of workflowID's latest run, with its result
// once completed or its failure once stopped.
func (o *Orchestrator) Describe(ctx context.Context, workflowID string) (*Execution, error) {
	resp, err := o.client.DescribeWorkflowExecution(ctx, workflowID, "")
	if err != nil {
		return nil, eris.Wrapf(err, "workflow: describe %s", workflowID)
	}
	exec := &Execution{WorkflowID: workflowID, Status: statusName(resp.GetWorkflowExecutionInfo().GetStatus())}
	if !exec.Done() {
		return exec, nil
	}

	var result model.Value
	err = o.client.GetWorkflow(ctx, workflowID, "").Get(ctx, &result)
	switch {
	case err != nil && exec.Status == ExecutionCompleted:
		return nil, eris.Wrapf(err, "workflow: read result of %s", workflowID)
	case err != nil:
		exec.Failure = err.Error()
	default:
		exec.Result = result
	}
	return exec, nil
}

func statusName(s enumspb.WorkflowExecutionStatus) string {
	switch s {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING, enumspb.WORKFLOW_EXECUTION_STATUS_CONTINUED_AS_NEW:
		return ExecutionRunning
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return ExecutionCompleted
	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED, enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED:
		return ExecutionFailed
	case enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED:
		return ExecutionCanceled
	case enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return ExecutionTimedOut
	default:
		return ExecutionUnknown
	}
}
