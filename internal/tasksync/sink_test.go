package tasksync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recovery-sync/internal/model"
	"github.com/sells-group/recovery-sync/internal/resilience"
)

type mockBoard struct {
	mock.Mock
}

func (m *mockBoard) ListFields(ctx context.Context) ([]Field, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Field), args.Error(1)
}

func (m *mockBoard) SearchByFields(ctx context.Context, filters []FieldFilter) ([]Task, error) {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Task), args.Error(1)
}

func (m *mockBoard) GetTask(ctx context.Context, id string) (*Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Task), args.Error(1)
}

func (m *mockBoard) CreateTask(ctx context.Context, t NewTask) (string, error) {
	args := m.Called(ctx, t)
	return args.String(0), args.Error(1)
}

func (m *mockBoard) UpdateTask(ctx context.Context, id string, u TaskUpdate) error {
	return m.Called(ctx, id, u).Error(0)
}

func (m *mockBoard) AddTag(ctx context.Context, taskID, tag string) error {
	return m.Called(ctx, taskID, tag).Error(0)
}

var seededIDs = map[Logical]string{
	FieldEmail:       "f-email",
	FieldWhatsApp:    "f-wa",
	FieldOpportunity: "f-opp",
	FieldNet:         "f-net",
	FieldProject:     "f-proj",
}

func newTestSink(board Board) *Sink {
	fields := NewFieldCache(DefaultProductFieldID)
	fields.Seed(seededIDs, nil)
	return NewSink(board, fields, NewLabelResolver(nil, fields), DefaultTimeouts())
}

func paidLead() model.Lead {
	return model.Lead{
		Email:      "ana@example.com",
		Project:    "escala",
		Product:    "ingresso-escala-26",
		Name:       "Ana",
		Gross:      497,
		Net:        450,
		ActionTags: []string{"comprador"},
		Phone:      "+5511912345678",
	}
}

var identityFilters = []FieldFilter{
	{FieldID: "f-email", Value: "ana@example.com"},
	{FieldID: "f-proj", Value: "escala"},
}

func TestSync_CreatesTask(t *testing.T) {
	board := new(mockBoard)
	board.On("SearchByFields", mock.Anything, identityFilters).Return([]Task{}, nil)
	board.On("CreateTask", mock.Anything, NewTask{
		Name: "Ana",
		Fields: []FieldValue{
			{FieldID: "f-email", Value: "ana@example.com"},
			{FieldID: "f-wa", Value: "+5511912345678"},
			{FieldID: "f-opp", Value: 497.0},
			{FieldID: "f-net", Value: 450.0},
			{FieldID: DefaultProductFieldID, Value: []string{"000859e0-a3fb-482a-9042-b9eb72e7afec"}},
			{FieldID: "f-proj", Value: "escala"},
		},
		Tags: []string{"comprador"},
	}).Return("t-new", nil)

	res, err := newTestSink(board).Sync(context.Background(), paidLead())
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, res.Action)
	assert.Equal(t, "t-new", res.TaskID)
	board.AssertExpectations(t)
}

func TestSync_CreateNameFallbacks(t *testing.T) {
	board := new(mockBoard)
	board.On("SearchByFields", mock.Anything, mock.Anything).Return([]Task{}, nil)
	board.On("CreateTask", mock.Anything, mock.MatchedBy(func(nt NewTask) bool {
		return nt.Name == "ana@example.com"
	})).Return("t1", nil)

	lead := paidLead()
	lead.Name = "  "
	_, err := newTestSink(board).Sync(context.Background(), lead)
	require.NoError(t, err)
	board.AssertExpectations(t)
}

func TestSync_UpdatesExistingTask(t *testing.T) {
	board := new(mockBoard)
	board.On("SearchByFields", mock.Anything, identityFilters).Return([]Task{{ID: "t1"}}, nil)
	board.On("GetTask", mock.Anything, "t1").Return(&Task{
		ID:   "t1",
		Name: "Ana Paula",
		Tags: []string{"carrinho-abandonado"},
		Fields: map[string]any{
			"f-email":             "ana@example.com",
			"f-wa":                "+5511912345678",
			"f-opp":               "497",
			"f-net":               "0",
			DefaultProductFieldID: []any{"000859e0-a3fb-482a-9042-b9eb72e7afec"},
			"f-proj":              "escala",
		},
	}, nil)
	board.On("UpdateTask", mock.Anything, "t1", TaskUpdate{
		Fields: []FieldValue{{FieldID: "f-net", Value: 450.0}},
	}).Return(nil)
	board.On("AddTag", mock.Anything, "t1", "comprador").Return(nil)

	res, err := newTestSink(board).Sync(context.Background(), paidLead())
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, res.Action)
	require.Len(t, res.Tags, 1)
	assert.True(t, res.Tags[0].Added)
	board.AssertExpectations(t)
}

func TestSync_UnchangedSkipsUpdate(t *testing.T) {
	board := new(mockBoard)
	board.On("SearchByFields", mock.Anything, mock.Anything).Return([]Task{{ID: "t1"}}, nil)
	board.On("GetTask", mock.Anything, "t1").Return(&Task{
		ID:   "t1",
		Name: "Ana",
		Tags: []string{"comprador"},
		Fields: map[string]any{
			"f-email":             "ana@example.com",
			"f-wa":                "+5511912345678",
			"f-opp":               497.0,
			"f-net":               "450",
			DefaultProductFieldID: []any{map[string]any{"id": "000859e0-a3fb-482a-9042-b9eb72e7afec"}},
			"f-proj":              "escala",
		},
	}, nil)

	res, err := newTestSink(board).Sync(context.Background(), paidLead())
	require.NoError(t, err)
	assert.Equal(t, ActionUnchanged, res.Action)
	assert.Empty(t, res.Tags)
	board.AssertNotCalled(t, "UpdateTask", mock.Anything, mock.Anything, mock.Anything)
	board.AssertNotCalled(t, "AddTag", mock.Anything, mock.Anything, mock.Anything)
}

func TestSync_NameOnlyFilledWhenBlank(t *testing.T) {
	board := new(mockBoard)
	board.On("SearchByFields", mock.Anything, mock.Anything).Return([]Task{{ID: "t1"}}, nil)
	board.On("GetTask", mock.Anything, "t1").Return(&Task{ID: "t1", Name: "", Tags: []string{"comprador"}}, nil)
	board.On("UpdateTask", mock.Anything, "t1", mock.MatchedBy(func(u TaskUpdate) bool {
		return u.Name == "Ana"
	})).Return(nil)

	_, err := newTestSink(board).Sync(context.Background(), paidLead())
	require.NoError(t, err)
	board.AssertExpectations(t)

	assert.Empty(t, planUpdate(&Task{Name: "Outro Nome"}, model.Lead{Name: "Ana"}, nil).Name)
	assert.Empty(t, planUpdate(&Task{Name: ""}, model.Lead{Name: " "}, nil).Name)
}

func TestSync_UnknownProductOmitsField(t *testing.T) {
	board := new(mockBoard)
	board.On("SearchByFields", mock.Anything, mock.Anything).Return([]Task{}, nil)
	board.On("CreateTask", mock.Anything, mock.MatchedBy(func(nt NewTask) bool {
		for _, f := range nt.Fields {
			if f.FieldID == DefaultProductFieldID {
				return false
			}
		}
		return true
	})).Return("t1", nil)

	lead := paidLead()
	lead.Product = "curso-misterioso"
	res, err := newTestSink(board).Sync(context.Background(), lead)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "curso-misterioso")
}

func TestSync_MissingEmailFieldIsAmbiguity(t *testing.T) {
	board := new(mockBoard)
	fields := NewFieldCache("")
	fields.Seed(map[Logical]string{FieldProject: "f-proj"}, nil)
	sink := NewSink(board, fields, NewLabelResolver(nil, fields), DefaultTimeouts())

	_, err := sink.Sync(context.Background(), paidLead())
	require.Error(t, err)
	assert.Equal(t, resilience.KindIdentityAmbiguity, resilience.Classify(err))
	board.AssertNotCalled(t, "CreateTask", mock.Anything, mock.Anything)
}

func TestSync_WarmsFieldsOnce(t *testing.T) {
	board := new(mockBoard)
	board.On("ListFields", mock.Anything).Return([]Field{{ID: "f-email", Name: "Email"}}, nil).Once()
	board.On("SearchByFields", mock.Anything, []FieldFilter{{FieldID: "f-email", Value: "ana@example.com"}}).Return([]Task{}, nil)
	board.On("CreateTask", mock.Anything, mock.Anything).Return("t1", nil)

	fields := NewFieldCache("")
	sink := NewSink(board, fields, NewLabelResolver(nil, fields), DefaultTimeouts())
	for range 2 {
		_, err := sink.Sync(context.Background(), paidLead())
		require.NoError(t, err)
	}
	board.AssertNumberOfCalls(t, "ListFields", 1)
}

func TestSync_FieldListingFailsCold(t *testing.T) {
	board := new(mockBoard)
	board.On("ListFields", mock.Anything).Return(nil, errors.New("401"))

	fields := NewFieldCache("")
	sink := NewSink(board, fields, NewLabelResolver(nil, fields), DefaultTimeouts())
	_, err := sink.Sync(context.Background(), paidLead())
	require.Error(t, err)
	board.AssertNotCalled(t, "SearchByFields", mock.Anything, mock.Anything)
}

func TestSync_SearchTimeoutFailsEvent(t *testing.T) {
	board := new(mockBoard)
	board.On("SearchByFields", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	sink := newTestSink(board)
	sink.timeouts.Search = 10 * time.Millisecond
	_, err := sink.Sync(context.Background(), paidLead())
	require.Error(t, err)
	assert.Equal(t, resilience.KindExternalTimeout, resilience.Classify(err))
	board.AssertNotCalled(t, "CreateTask", mock.Anything, mock.Anything)
}

func TestSync_CreateRejected(t *testing.T) {
	board := new(mockBoard)
	board.On("SearchByFields", mock.Anything, mock.Anything).Return([]Task{}, nil)
	board.On("CreateTask", mock.Anything, mock.Anything).
		Return("", resilience.NewRejectionError("clickup", 400, "FIELD_158", "invalid option id"))

	_, err := newTestSink(board).Sync(context.Background(), paidLead())
	require.Error(t, err)
	assert.Equal(t, resilience.KindExternalRejection, resilience.Classify(err))
}

func TestSync_NoEmail(t *testing.T) {
	_, err := newTestSink(new(mockBoard)).Sync(context.Background(), model.Lead{Project: "p"})
	assert.Error(t, err)
}

func TestSameValue(t *testing.T) {
	assert.True(t, sameValue("450", 450.0))
	assert.True(t, sameValue("-450.5", -450.5))
	assert.True(t, sameValue([]any{"a"}, []string{"a"}))
	assert.False(t, sameValue([]any{"a"}, []string{"b"}))
	assert.False(t, sameValue(nil, 0.0))
	assert.True(t, sameValue(nil, ""))
	assert.False(t, sameValue("ana@x.com", "ana@y.com"))
}

func TestSync_RefetchesAfterEmptyListing(t *testing.T) {
	board := new(mockBoard)
	board.On("ListFields", mock.Anything).Return([]Field{}, nil).Once()
	board.On("ListFields", mock.Anything).Return([]Field{{ID: "f-email", Name: "E-mail"}}, nil).Once()
	board.On("SearchByFields", mock.Anything, []FieldFilter{{FieldID: "f-email", Value: "ana@example.com"}}).Return([]Task{}, nil)
	board.On("CreateTask", mock.Anything, mock.Anything).Return("t1", nil)

	fields := NewFieldCache("")
	sink := NewSink(board, fields, NewLabelResolver(nil, fields), DefaultTimeouts())

	_, err := sink.Sync(context.Background(), paidLead())
	require.Error(t, err)
	assert.Equal(t, resilience.KindIdentityAmbiguity, resilience.Classify(err))

	res, err := sink.Sync(context.Background(), paidLead())
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, res.Action)
	board.AssertNumberOfCalls(t, "ListFields", 2)
}
