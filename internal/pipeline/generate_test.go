package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/verdantly/proposal-cli/internal/fault"
	"github.com/verdantly/proposal-cli/internal/model"
	"github.com/verdantly/proposal-cli/internal/provider"
	"github.com/verdantly/proposal-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ListCatalogItems(ctx context.Context) ([]model.CatalogItem, error) {
	args := m.Called(ctx)
	items, _ := args.Get(0).([]model.CatalogItem)
	return items, args.Error(1)
}

func (m *mockStore) GetCatalogItem(ctx context.Context, id string) (*model.CatalogItem, error) {
	args := m.Called(ctx, id)
	item, _ := args.Get(0).(*model.CatalogItem)
	return item, args.Error(1)
}

func (m *mockStore) UpsertCatalogItems(ctx context.Context, items []model.CatalogItem) (int, error) {
	args := m.Called(ctx, items)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) RecordInteraction(ctx context.Context, entry model.InteractionLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockStore) ListInteractions(ctx context.Context, limit int) ([]model.InteractionLogEntry, error) {
	args := m.Called(ctx, limit)
	entries, _ := args.Get(0).([]model.InteractionLogEntry)
	return entries, args.Error(1)
}

func (m *mockStore) CreateProposal(ctx context.Context, p model.PersistedProposal) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

func (m *mockStore) GetProposal(ctx context.Context, id string) (*model.PersistedProposal, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*model.PersistedProposal)
	return p, args.Error(1)
}

func (m *mockStore) ListProposals(ctx context.Context, filter store.ProposalFilter) ([]model.PersistedProposal, error) {
	args := m.Called(ctx, filter)
	proposals, _ := args.Get(0).([]model.PersistedProposal)
	return proposals, args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// scriptCompleter replays canned responses and records the prompts it saw.
type scriptCompleter struct {
	responses []string
	calls     int
	seenUser  []string
}

func (s *scriptCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (*provider.Completion, error) {
	s.seenUser = append(s.seenUser, userPrompt)
	if s.calls >= len(s.responses) {
		return nil, errors.New("script exhausted")
	}
	text := s.responses[s.calls]
	s.calls++
	return &provider.Completion{Text: text, Model: "test-model"}, nil
}

var pipelineItems = []model.CatalogItem{
	{ID: "prod-001", Name: "Bamboo Cutlery Set", Category: "kitchen", UnitPrice: 699, PlasticSavedPerUnit: 120, CarbonAvoidedPerUnit: 0.8},
}

func validResponse() string {
	return `{
		"products": [
			{"id": "prod-001", "name": "Bamboo Cutlery Set", "quantity": 20, "unit_price": 699, "total_cost": 13980}
		],
		"allocated": 13980,
		"total_budget_limit": 50000,
		"summary": "Twenty cutlery sets.",
		"impact": "Replaces disposable plastic cutlery.",
		"confidence": 0.9
	}`
}

func overBudgetResponse() string {
	return `{
		"products": [
			{"id": "prod-001", "name": "Bamboo Cutlery Set", "quantity": 100, "unit_price": 699, "total_cost": 69900}
		],
		"allocated": 69900,
		"total_budget_limit": 50000,
		"summary": "Too much.",
		"impact": "n/a",
		"confidence": 0.9
	}`
}

func unknownItemResponse() string {
	return `{
		"products": [
			{"id": "prod-404", "name": "Phantom", "quantity": 1, "unit_price": 1, "total_cost": 1}
		],
		"allocated": 1,
		"total_budget_limit": 50000,
		"summary": "Phantom.",
		"impact": "n/a",
		"confidence": 0.9
	}`
}

func newTestPipeline(st store.Store, ai Completer) *Pipeline {
	return New(st, ai, Config{MaxRounds: 3, ModuleVersion: "test/0"})
}

func TestGenerate_AcceptsFirstRound(t *testing.T) {
	st := new(mockStore)
	st.On("ListCatalogItems", mock.Anything).Return(pipelineItems, nil)
	st.On("RecordInteraction", mock.Anything, mock.Anything).Return(nil)
	st.On("CreateProposal", mock.Anything, mock.Anything).Return("prop-id-1", nil)

	ai := &scriptCompleter{responses: []string{validResponse()}}
	p := newTestPipeline(st, ai)

	got, err := p.Generate(context.Background(), model.ProposalRequest{ClientName: "Acme", BudgetLimit: 50000})
	require.NoError(t, err)

	assert.Equal(t, "prop-id-1", got.ID)
	assert.Equal(t, 13980.0, got.Proposal.Allocated)
	assert.Equal(t, 36020.0, got.RemainingBudget)
	assert.Equal(t, 2400.0, got.Impact.TotalPlasticSaved)
	assert.Equal(t, 16.0, got.Impact.TotalCarbonAvoided)
	assert.Equal(t, 1, ai.calls)
	st.AssertNumberOfCalls(t, "RecordInteraction", 1)
	st.AssertNumberOfCalls(t, "CreateProposal", 1)
}

func TestGenerate_FeedbackAccumulatesAcrossRounds(t *testing.T) {
	st := new(mockStore)
	st.On("ListCatalogItems", mock.Anything).Return(pipelineItems, nil)
	st.On("RecordInteraction", mock.Anything, mock.Anything).Return(nil)
	st.On("CreateProposal", mock.Anything, mock.Anything).Return("prop-id-2", nil)

	ai := &scriptCompleter{responses: []string{
		overBudgetResponse(),
		unknownItemResponse(),
		validResponse(),
	}}
	p := newTestPipeline(st, ai)

	got, err := p.Generate(context.Background(), model.ProposalRequest{BudgetLimit: 50000})
	require.NoError(t, err)
	assert.Equal(t, "prop-id-2", got.ID)
	require.Equal(t, 3, ai.calls)

	// Round 2 sees the over-budget reason, round 3 additionally sees the
	// unknown-item reason. Earlier feedback is never dropped.
	assert.NotContains(t, ai.seenUser[0], "rejected")
	assert.Contains(t, ai.seenUser[1], "exceeds the budget limit")
	assert.Contains(t, ai.seenUser[2], "exceeds the budget limit")
	assert.Contains(t, ai.seenUser[2], `product "prod-404" is not in the catalog`)

	// Every round is recorded, including the rejected ones.
	st.AssertNumberOfCalls(t, "RecordInteraction", 3)
}

func TestGenerate_ExhaustedRoundsReturnsLastRejection(t *testing.T) {
	st := new(mockStore)
	st.On("ListCatalogItems", mock.Anything).Return(pipelineItems, nil)
	st.On("RecordInteraction", mock.Anything, mock.Anything).Return(nil)

	ai := &scriptCompleter{responses: []string{
		overBudgetResponse(),
		overBudgetResponse(),
		unknownItemResponse(),
	}}
	p := newTestPipeline(st, ai)

	_, err := p.Generate(context.Background(), model.ProposalRequest{BudgetLimit: 50000})
	require.Error(t, err)

	f, ok := fault.As(err)
	require.True(t, ok)
	assert.Equal(t, fault.KindRejection, f.Kind)
	assert.Contains(t, f.Reason, "prod-404", "the last round's reason is the one surfaced")
	st.AssertNotCalled(t, "CreateProposal", mock.Anything, mock.Anything)
}

func TestGenerate_InvalidRequestIsPrecondition(t *testing.T) {
	st := new(mockStore)
	p := newTestPipeline(st, &scriptCompleter{})

	_, err := p.Generate(context.Background(), model.ProposalRequest{BudgetLimit: -5})
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindPrecondition))
	st.AssertNotCalled(t, "ListCatalogItems", mock.Anything)
}

func TestGenerate_EmptyCatalogIsPrecondition(t *testing.T) {
	st := new(mockStore)
	st.On("ListCatalogItems", mock.Anything).Return([]model.CatalogItem{}, nil)

	p := newTestPipeline(st, &scriptCompleter{})

	_, err := p.Generate(context.Background(), model.ProposalRequest{BudgetLimit: 100})
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindPrecondition))
}

func TestGenerate_LoggingFailureAborts(t *testing.T) {
	st := new(mockStore)
	st.On("ListCatalogItems", mock.Anything).Return(pipelineItems, nil)
	st.On("RecordInteraction", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	ai := &scriptCompleter{responses: []string{validResponse()}}
	p := newTestPipeline(st, ai)

	_, err := p.Generate(context.Background(), model.ProposalRequest{BudgetLimit: 50000})
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindLogging))
	assert.Equal(t, 1, ai.calls, "a failed audit write must not trigger another round")
	st.AssertNotCalled(t, "CreateProposal", mock.Anything, mock.Anything)
}

func TestGenerate_PersistenceFailure(t *testing.T) {
	st := new(mockStore)
	st.On("ListCatalogItems", mock.Anything).Return(pipelineItems, nil)
	st.On("RecordInteraction", mock.Anything, mock.Anything).Return(nil)
	st.On("CreateProposal", mock.Anything, mock.Anything).Return("", errors.New("connection lost"))

	ai := &scriptCompleter{responses: []string{validResponse()}}
	p := newTestPipeline(st, ai)

	_, err := p.Generate(context.Background(), model.ProposalRequest{BudgetLimit: 50000})
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindPersistence))
}

func TestGenerate_ProviderFaultPropagatesUnchanged(t *testing.T) {
	st := new(mockStore)
	st.On("ListCatalogItems", mock.Anything).Return(pipelineItems, nil)

	providerErr := fault.RateLimited(30, "provider rate limit persisted through all attempts")
	p := newTestPipeline(st, failingCompleter{err: providerErr})

	_, err := p.Generate(context.Background(), model.ProposalRequest{BudgetLimit: 50000})
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindRateLimited))
	st.AssertNotCalled(t, "RecordInteraction", mock.Anything, mock.Anything)
}

type failingCompleter struct {
	err error
}

func (f failingCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (*provider.Completion, error) {
	return nil, f.err
}

func TestGenerate_InteractionEntryCarriesProvenance(t *testing.T) {
	st := new(mockStore)
	st.On("ListCatalogItems", mock.Anything).Return(pipelineItems, nil)

	var recorded model.InteractionLogEntry
	st.On("RecordInteraction", mock.Anything, mock.MatchedBy(func(e model.InteractionLogEntry) bool {
		recorded = e
		return true
	})).Return(nil)
	st.On("CreateProposal", mock.Anything, mock.Anything).Return(fmt.Sprintf("prop-%d", 1), nil)

	ai := &scriptCompleter{responses: []string{validResponse()}}
	p := newTestPipeline(st, ai)

	_, err := p.Generate(context.Background(), model.ProposalRequest{BudgetLimit: 50000})
	require.NoError(t, err)

	assert.Equal(t, "test-model", recorded.Model)
	assert.Equal(t, "test/0", recorded.ModuleVersion)
	assert.Contains(t, recorded.SystemPrompt, "prod-001")
	assert.Equal(t, validResponse(), recorded.RawResponse)
}
