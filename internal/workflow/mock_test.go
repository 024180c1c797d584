package workflow

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/submission-intake/internal/agents"
	"github.com/sells-group/submission-intake/internal/model"
	"github.com/sells-group/submission-intake/internal/store"
	"github.com/sells-group/submission-intake/pkg/casemgmt"
	"github.com/sells-group/submission-intake/pkg/docintel"
)

// --- Document intelligence mock ---

type mockDocIntel struct {
	mock.Mock
}

func (m *mockDocIntel) Authenticate(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockDocIntel) GetUploadURL(ctx context.Context, token, filename string) (*docintel.UploadTarget, error) {
	args := m.Called(ctx, token, filename)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*docintel.UploadTarget), args.Error(1)
}

func (m *mockDocIntel) Upload(ctx context.Context, uploadURL string, body []byte, contentType string) error {
	args := m.Called(ctx, uploadURL, body, contentType)
	return args.Error(0)
}

func (m *mockDocIntel) TriggerProcessing(ctx context.Context, token, txID string) error {
	args := m.Called(ctx, token, txID)
	return args.Error(0)
}

func (m *mockDocIntel) SubmissionStatus(ctx context.Context, token, txID string) ([]byte, error) {
	args := m.Called(ctx, token, txID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockDocIntel) FetchPackage(ctx context.Context, token, dataPackageID, txID string) (model.Value, error) {
	args := m.Called(ctx, token, dataPackageID, txID)
	return args.Get(0).(model.Value), args.Error(1)
}

// --- Dispatcher mock ---

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, submission model.Value, threadID int) (model.AgentResponses, error) {
	args := m.Called(ctx, submission, threadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(model.AgentResponses), args.Error(1)
}

func (m *mockDispatcher) Rerun(ctx context.Context, subs agents.SubmissionReader, caseID string, override model.Value, threadID int) (*agents.RerunResult, error) {
	args := m.Called(ctx, subs, caseID, override, threadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*agents.RerunResult), args.Error(1)
}

// --- Store mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) SaveInitial(ctx context.Context, rec store.SaveRecord) (*store.SaveResult, error) {
	args := m.Called(ctx, rec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.SaveResult), args.Error(1)
}

func (m *mockStore) SaveUpdated(ctx context.Context, rec store.SaveRecord) (*store.SaveResult, error) {
	args := m.Called(ctx, rec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.SaveResult), args.Error(1)
}

func (m *mockStore) LatestSubmission(ctx context.Context, caseID string) (*model.SubmissionDocument, error) {
	args := m.Called(ctx, caseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SubmissionDocument), args.Error(1)
}

func (m *mockStore) LatestAgentResponse(ctx context.Context, caseID string) (*model.AgentResponseDocument, error) {
	args := m.Called(ctx, caseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AgentResponseDocument), args.Error(1)
}

func (m *mockStore) SubmissionHistory(ctx context.Context, caseID string) ([]model.SubmissionDocument, error) {
	args := m.Called(ctx, caseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SubmissionDocument), args.Error(1)
}

func (m *mockStore) AgentCatalog(ctx context.Context, ids []string) ([]model.AgentRecord, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AgentRecord), args.Error(1)
}

func (m *mockStore) UpsertAgents(ctx context.Context, records []model.AgentRecord) (int64, error) {
	args := m.Called(ctx, records)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

// --- Case management mock ---

type mockCases struct {
	mock.Mock
}

func (m *mockCases) Push(ctx context.Context, pkg casemgmt.Package) (*casemgmt.Response, error) {
	args := m.Called(ctx, pkg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*casemgmt.Response), args.Error(1)
}
