package agents

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/submission-intake/internal/metrics"
	"github.com/sells-group/submission-intake/internal/model"
	"github.com/sells-group/submission-intake/pkg/agentsvc"
)

// MaxThreadID bounds the random thread id picked when the caller has none.
const MaxThreadID = 100000

// Catalog reads stored agent definitions.
type Catalog interface {
	AgentCatalog(ctx context.Context, ids []string) ([]model.AgentRecord, error)
}

// SubmissionReader reads the stored submission a rerun starts from.
type SubmissionReader interface {
	LatestSubmission(ctx context.Context, caseID string) (*model.SubmissionDocument, error)
}

// Dispatcher calls every roster agent over one submission.
type Dispatcher struct {
	roster  Roster
	catalog Catalog
	client  agentsvc.Client
	timeout time.Duration
	intn    func(n int) int
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithCallTimeout bounds each agent call. Default agentsvc.DefaultTimeout.
func WithCallTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithRandom replaces the thread id source; intn returns a value in [0, n).
func WithRandom(intn func(n int) int) DispatcherOption {
	return func(d *Dispatcher) { d.intn = intn }
}

// NewDispatcher builds a Dispatcher for roster.
func NewDispatcher(roster Roster, catalog Catalog, client agentsvc.Client, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		roster:  roster,
		catalog: catalog,
		client:  client,
		timeout: agentsvc.DefaultTimeout,
		intn:    rand.IntN,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Roster returns the agents this dispatcher calls.
func (d *Dispatcher) Roster() Roster { return d.roster }

// ThreadID returns id, or a random id in [1, MaxThreadID] when id is not
// positive.
func (d *Dispatcher) ThreadID(id int) int {
	if id > 0 {
		return id
	}
	return d.intn(MaxThreadID) + 1
}

// Dispatch sends submission to every roster agent and returns each reply
// keyed by agent name. A failing agent gets {"error": msg} under its key
// and does not affect the others; only a catalog read failure or a
// cancelled ctx fails the call.
func (d *Dispatcher) Dispatch(ctx context.Context, submission model.Value, threadID int) (model.AgentResponses, error) {
	return d.run(ctx, submission, threadID, "")
}

func (d *Dispatcher) run(ctx context.Context, submission model.Value, threadID int, note string) (model.AgentResponses, error) {
	records, err := d.catalog.AgentCatalog(ctx, d.roster.IDs())
	if err != nil {
		return nil, eris.Wrap(err, "agents: load catalog")
	}
	byID := make(map[string]model.AgentRecord, len(records))
	for _, rec := range records {
		byID[rec.AgentID] = rec
	}

	snapshot, err := submission.MarshalJSON()
	if err != nil {
		return nil, eris.Wrap(err, "agents: encode submission")
	}
	threadID = d.ThreadID(threadID)

	var (
		mu      sync.Mutex
		results = make(model.AgentResponses, len(d.roster))
	)
	record := func(key string, v model.Value) {
		mu.Lock()
		results[key] = v
		mu.Unlock()
	}

	taken := make(map[string]bool, len(d.roster))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(len(d.roster), 1))
	for _, entry := range d.roster {
		rec, found := byID[entry.ID]
		key, wanted := resultKey(entry, rec, taken)
		taken[key] = true
		log := zap.L().With(zap.String("agent", key), zap.String("agent_id", entry.ID))
		if key != wanted {
			log.Warn("agents: duplicate result key", zap.String("wanted", wanted))
		}

		if !found {
			log.Warn("agents: not in catalog")
			record(key, model.ErrorResponse("agent "+entry.ID+" not found in catalog"))
			continue
		}

		g.Go(func() error {
			reply, err := d.call(gctx, rec, message(snapshot, entry.PromptSuffix, note), threadID)
			if err != nil {
				log.Warn("agents: call failed", zap.Error(err))
				record(key, model.ErrorResponse(err.Error()))
				return nil
			}
			log.Debug("agents: call complete")
			record(key, reply)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "agents: dispatch interrupted")
	}
	return results, nil
}

func (d *Dispatcher) call(ctx context.Context, rec model.AgentRecord, msg string, threadID int) (model.Value, error) {
	cfg, err := CraftConfig(rec)
	if err != nil {
		return model.Value{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	reply, err := d.client.Query(ctx, agentsvc.QueryRequest{AgentConfig: cfg, Message: msg, ThreadID: threadID})
	metrics.ObserveAgentCall(rec.AgentID, err, time.Since(start))
	return reply, err
}

// resultKey names an agent's entry in the results: the catalog name, then
// the roster display name, then the ID, skipping names already taken by an
// earlier agent. wanted is the name the agent would get on its own.
func resultKey(entry RosterEntry, rec model.AgentRecord, taken map[string]bool) (key, wanted string) {
	for _, name := range []string{rec.AgentName, entry.DisplayName, entry.ID} {
		if name == "" {
			continue
		}
		if wanted == "" {
			wanted = name
		}
		if !taken[name] {
			return name, wanted
		}
	}
	for n := 2; ; n++ {
		key = fmt.Sprintf("%s (%d)", entry.ID, n)
		if !taken[key] {
			return key, wanted
		}
	}
}

func message(snapshot []byte, suffix, note string) string {
	var b strings.Builder
	b.Write(snapshot)
	for _, part := range []string{note, suffix} {
		if part != "" {
			b.WriteString("\n\n")
			b.WriteString(part)
		}
	}
	return b.String()
}

// RerunResult is the merged submission and the agents' replies to it.
type RerunResult struct {
	SubmissionData model.Value          `json:"submission_data"`
	AgentOutput    model.AgentResponses `json:"agent_output"`
	ModifiedFields []string             `json:"modified_fields"`
}

// Rerun merges override into the case's stored submission and dispatches
// the result, telling each agent which fields changed. A case with no
// stored submission starts from an empty one.
func (d *Dispatcher) Rerun(ctx context.Context, subs SubmissionReader, caseID string, override model.Value, threadID int) (*RerunResult, error) {
	doc, err := subs.LatestSubmission(ctx, caseID)
	if err != nil {
		return nil, eris.Wrapf(err, "agents: load submission %s", caseID)
	}
	base := model.FromObject(nil)
	if doc == nil {
		zap.L().Warn("agents: rerun without stored submission", zap.String("case_id", caseID))
	} else {
		base = doc.SubmissionData
	}

	if override.IsNull() {
		override = model.FromObject(nil)
	}
	merged := model.Merge(base, override)
	changed := model.ChangedPaths(base, override)
	note := ""
	if len(changed) > 0 {
		note = "Modified fields: " + strings.Join(changed, ", ")
	}

	out, err := d.run(ctx, merged, threadID, note)
	if err != nil {
		return nil, err
	}
	if changed == nil {
		changed = []string{}
	}
	return &RerunResult{SubmissionData: merged, AgentOutput: out, ModifiedFields: changed}, nil
}
