package agents

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/submission-intake/internal/model"
	"github.com/sells-group/submission-intake/pkg/agentsvc"
)

// --- Agent service mock ---

type mockAgentClient struct {
	mock.Mock
}

func (m *mockAgentClient) Query(ctx context.Context, req agentsvc.QueryRequest) (model.Value, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(model.Value), args.Error(1)
}

// forAgent matches a query addressed to agentID.
func forAgent(agentID string) any {
	return mock.MatchedBy(func(req agentsvc.QueryRequest) bool {
		return req.AgentConfig.AgentID == agentID
	})
}

// --- Store mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) AgentCatalog(ctx context.Context, ids []string) ([]model.AgentRecord, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AgentRecord), args.Error(1)
}

func (m *mockStore) LatestSubmission(ctx context.Context, caseID string) (*model.SubmissionDocument, error) {
	args := m.Called(ctx, caseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SubmissionDocument), args.Error(1)
}
