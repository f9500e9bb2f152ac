package tasksync

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/recovery-sync/pkg/notion"
)

type mockNotionClient struct {
	mock.Mock
}

func (m *mockNotionClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *mockNotionClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *mockNotionClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *mockNotionClient) GetPage(ctx context.Context, pageID string) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *mockNotionClient) GetDatabase(ctx context.Context, dbID string) (*notionapi.Database, error) {
	args := m.Called(ctx, dbID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Database), args.Error(1)
}

func leadDatabase() *notionapi.Database {
	return &notionapi.Database{
		Properties: notionapi.PropertyConfigs{
			"Name":         &notionapi.TitlePropertyConfig{Type: notionapi.PropertyConfigTypeTitle},
			"Email":        &notionapi.EmailPropertyConfig{Type: notionapi.PropertyConfigTypeEmail},
			"Oportunidade": &notionapi.NumberPropertyConfig{Type: notionapi.PropertyConfigTypeNumber},
			"Produto": &notionapi.SelectPropertyConfig{
				Type:   notionapi.PropertyConfigTypeSelect,
				Select: notionapi.Select{Options: []notionapi.Option{{Name: "Mentoria Pro"}}},
			},
			"Tags": &notionapi.MultiSelectPropertyConfig{Type: notionapi.PropertyConfigTypeMultiSelect},
		},
	}
}

func TestNotionBoard_ListFields(t *testing.T) {
	mc := new(mockNotionClient)
	mc.On("GetDatabase", mock.Anything, "db-1").Return(leadDatabase(), nil)

	board := NewNotionBoard(mc, NotionConfig{DatabaseID: "db-1"})
	fields, err := board.ListFields(context.Background())
	require.NoError(t, err)
	require.Len(t, fields, 5)
	assert.Equal(t, "Email", fields[0].ID)

	cache := NewFieldCache("")
	cache.Load(fields)
	assert.Equal(t, "Email", cache.ID(FieldEmail))
	assert.Equal(t, "Produto", cache.ID(FieldProduct))
	assert.Equal(t, []Option{{ID: "Mentoria Pro", Name: "Mentoria Pro"}}, cache.ProductOptions())
}

func TestNotionBoard_CreateTask(t *testing.T) {
	mc := new(mockNotionClient)
	mc.On("GetDatabase", mock.Anything, "db-1").Return(leadDatabase(), nil)
	mc.On("CreatePage", mock.Anything, mock.MatchedBy(func(req *notionapi.PageCreateRequest) bool {
		title, ok := req.Properties["Name"].(notionapi.TitleProperty)
		if !ok || len(title.Title) != 1 || title.Title[0].Text.Content != "Ana" {
			return false
		}
		num, ok := req.Properties["Oportunidade"].(notionapi.NumberProperty)
		if !ok || num.Number != 497 {
			return false
		}
		sel, ok := req.Properties["Produto"].(notionapi.SelectProperty)
		if !ok || sel.Select.Name != "Mentoria Pro" {
			return false
		}
		tags, ok := req.Properties["Tags"].(notionapi.MultiSelectProperty)
		return ok && len(tags.MultiSelect) == 1 && tags.MultiSelect[0].Name == "comprador" &&
			req.Parent.DatabaseID == notionapi.DatabaseID("db-1")
	})).Return(&notionapi.Page{ID: "page-1"}, nil)

	board := NewNotionBoard(mc, NotionConfig{DatabaseID: "db-1"})
	_, err := board.ListFields(context.Background())
	require.NoError(t, err)

	id, err := board.CreateTask(context.Background(), NewTask{
		Name: "Ana",
		Fields: []FieldValue{
			{FieldID: "Oportunidade", Value: 497.0},
			{FieldID: "Produto", Value: []string{"Mentoria Pro"}},
		},
		Tags: []string{"comprador"},
	})
	require.NoError(t, err)
	assert.Equal(t, "page-1", id)
	mc.AssertExpectations(t)
}

func TestNotionBoard_GetTask(t *testing.T) {
	mc := new(mockNotionClient)
	mc.On("GetPage", mock.Anything, "page-1").Return(&notionapi.Page{
		ID: "page-1",
		Properties: notionapi.Properties{
			"Name":         &notionapi.TitleProperty{Title: []notionapi.RichText{{PlainText: "Ana"}}},
			"Email":        &notionapi.EmailProperty{Email: "ana@example.com"},
			"Oportunidade": &notionapi.NumberProperty{Number: 497},
			"Tags":         &notionapi.MultiSelectProperty{MultiSelect: []notionapi.Option{{Name: "comprador"}}},
			"Projeto":      &notionapi.RichTextProperty{RichText: []notionapi.RichText{{PlainText: "escala"}}},
		},
	}, nil)

	board := NewNotionBoard(mc, NotionConfig{DatabaseID: "db-1"})
	task, err := board.GetTask(context.Background(), "page-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", task.Name)
	assert.Equal(t, []string{"comprador"}, task.Tags)
	assert.Equal(t, "ana@example.com", task.Fields["Email"])
	assert.Equal(t, 497.0, task.Fields["Oportunidade"])
	assert.Equal(t, "escala", task.Fields["Projeto"])
}

func TestNotionBoard_SearchByFields(t *testing.T) {
	mc := new(mockNotionClient)
	mc.On("QueryDatabase", mock.Anything, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		f, ok := req.Filter.(notionapi.AndCompoundFilter)
		return ok && len(f) == 2
	})).Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{{ID: "page-1"}}}, nil)

	board := NewNotionBoard(mc, NotionConfig{DatabaseID: "db-1"})
	tasks, err := board.SearchByFields(context.Background(), []FieldFilter{
		{FieldID: "Email", Value: "ana@example.com"},
		{FieldID: "Projeto", Value: "escala"},
	})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "page-1", tasks[0].ID)
}

func TestNotionBoard_SearchByFields_EmailProperty(t *testing.T) {
	mc := new(mockNotionClient)
	mc.On("GetDatabase", mock.Anything, "db-1").Return(leadDatabase(), nil)
	mc.On("QueryDatabase", mock.Anything, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		f, ok := req.Filter.(notion.TextPropertyFilter)
		return ok && f.Property == "Email" && f.RichText == nil &&
			f.Email != nil && f.Email.Equals == "ana@example.com"
	})).Return(&notionapi.DatabaseQueryResponse{Results: []notionapi.Page{{ID: "page-1"}}}, nil).Once()

	board := NewNotionBoard(mc, NotionConfig{DatabaseID: "db-1"})
	_, err := board.ListFields(context.Background())
	require.NoError(t, err)

	tasks, err := board.SearchByFields(context.Background(), []FieldFilter{
		{FieldID: "Email", Value: "ana@example.com"},
	})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "page-1", tasks[0].ID)
	mc.AssertExpectations(t)
}

func TestNotionBoard_AddTag(t *testing.T) {
	mc := new(mockNotionClient)
	mc.On("GetPage", mock.Anything, "page-1").Return(&notionapi.Page{
		ID: "page-1",
		Properties: notionapi.Properties{
			"Tags": &notionapi.MultiSelectProperty{MultiSelect: []notionapi.Option{{Name: "comprador"}}},
		},
	}, nil)
	mc.On("UpdatePage", mock.Anything, "page-1", mock.MatchedBy(func(req *notionapi.PageUpdateRequest) bool {
		tags, ok := req.Properties["Tags"].(notionapi.MultiSelectProperty)
		return ok && len(tags.MultiSelect) == 2 && tags.MultiSelect[1].Name == "reembolso"
	})).Return(&notionapi.Page{ID: "page-1"}, nil).Once()

	board := NewNotionBoard(mc, NotionConfig{DatabaseID: "db-1"})
	require.NoError(t, board.AddTag(context.Background(), "page-1", "reembolso"))
	assert.ErrorIs(t, board.AddTag(context.Background(), "page-1", "Comprador"), ErrTagExists)
	mc.AssertExpectations(t)
}

func TestNotionBoard_UpdateNothing(t *testing.T) {
	mc := new(mockNotionClient)
	board := NewNotionBoard(mc, NotionConfig{DatabaseID: "db-1"})
	require.NoError(t, board.UpdateTask(context.Background(), "page-1", TaskUpdate{}))
	mc.AssertNotCalled(t, "UpdatePage", mock.Anything, mock.Anything, mock.Anything)
}
