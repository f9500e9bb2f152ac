package tasksync

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"

	"github.com/sells-group/recovery-sync/internal/normalize"
	"github.com/sells-group/recovery-sync/pkg/notion"
)

// NotionConfig locates the lead database and its special properties.
type NotionConfig struct {
	DatabaseID    string
	TitleProperty string
	TagsProperty  string
}

// NotionBoard adapts a Notion database to Board. Property names act as field
// ids, select options are addressed by name, pages are tasks and tags live
// in a multi-select property.
type NotionBoard struct {
	c   notion.Client
	cfg NotionConfig

	mu    sync.Mutex
	types map[string]string
}

// NewNotionBoard wraps c for the database in cfg.
func NewNotionBoard(c notion.Client, cfg NotionConfig) *NotionBoard {
	if cfg.TitleProperty == "" {
		cfg.TitleProperty = "Name"
	}
	if cfg.TagsProperty == "" {
		cfg.TagsProperty = "Tags"
	}
	return &NotionBoard{c: c, cfg: cfg}
}

func (b *NotionBoard) ListFields(ctx context.Context) ([]Field, error) {
	db, err := b.c.GetDatabase(ctx, b.cfg.DatabaseID)
	if err != nil {
		return nil, err
	}

	types := make(map[string]string, len(db.Properties))
	out := make([]Field, 0, len(db.Properties))
	for name, pc := range db.Properties {
		if pc == nil {
			continue
		}
		f := Field{ID: name, Name: name, Type: string(pc.GetType())}
		for _, o := range selectOptions(pc) {
			f.Options = append(f.Options, Option{ID: o.Name, Name: o.Name})
		}
		types[name] = f.Type
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	b.mu.Lock()
	b.types = types
	b.mu.Unlock()
	return out, nil
}

// SearchByFields matches pages by exact value, using the condition kind for
// each property's type as seen by the last ListFields.
func (b *NotionBoard) SearchByFields(ctx context.Context, filters []FieldFilter) ([]Task, error) {
	conds := make([]notion.TextEquals, 0, len(filters))
	for _, f := range filters {
		conds = append(conds, notion.TextEquals{
			Property: f.FieldID,
			Type:     b.fieldType(f.FieldID),
			Value:    f.Value,
		})
	}
	pages, err := notion.QueryByText(ctx, b.c, b.cfg.DatabaseID, conds...)
	if err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(pages))
	for i := range pages {
		out = append(out, b.fromPage(&pages[i]))
	}
	return out, nil
}

func (b *NotionBoard) GetTask(ctx context.Context, id string) (*Task, error) {
	page, err := b.c.GetPage(ctx, id)
	if err != nil {
		return nil, err
	}
	t := b.fromPage(page)
	return &t, nil
}

func (b *NotionBoard) CreateTask(ctx context.Context, t NewTask) (string, error) {
	props := b.properties(t.Fields)
	props[b.cfg.TitleProperty] = notionapi.TitleProperty{Title: richText(t.Name)}
	if len(t.Tags) > 0 {
		props[b.cfg.TagsProperty] = multiSelect(t.Tags)
	}

	page, err := b.c.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(b.cfg.DatabaseID),
		},
		Properties: props,
	})
	if err != nil {
		return "", err
	}
	return string(page.ID), nil
}

func (b *NotionBoard) UpdateTask(ctx context.Context, id string, u TaskUpdate) error {
	props := b.properties(u.Fields)
	if u.Name != "" {
		props[b.cfg.TitleProperty] = notionapi.TitleProperty{Title: richText(u.Name)}
	}
	if len(props) == 0 {
		return nil
	}
	_, err := b.c.UpdatePage(ctx, id, &notionapi.PageUpdateRequest{Properties: props})
	return err
}

// AddTag appends tag to the page's tag property. Notion replaces
// multi-select values wholesale, so the current tags are read first.
func (b *NotionBoard) AddTag(ctx context.Context, taskID, tag string) error {
	page, err := b.c.GetPage(ctx, taskID)
	if err != nil {
		return err
	}
	current := optionNames(page.Properties[b.cfg.TagsProperty])
	if slices.ContainsFunc(current, func(t string) bool { return strings.EqualFold(t, tag) }) {
		return ErrTagExists
	}
	_, err = b.c.UpdatePage(ctx, taskID, &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{
			b.cfg.TagsProperty: multiSelect(append(current, tag)),
		},
	})
	if err != nil {
		return eris.Wrapf(err, "tasksync: add tag %q", tag)
	}
	return nil
}

func (b *NotionBoard) fieldType(name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.types[name]
}

// properties encodes field values according to the property types seen by
// the last ListFields. Unknown properties are written as rich text.
func (b *NotionBoard) properties(values []FieldValue) notionapi.Properties {
	props := make(notionapi.Properties, len(values)+2)
	for _, v := range values {
		props[v.FieldID] = encodeProperty(b.fieldType(v.FieldID), v.Value)
	}
	return props
}

func (b *NotionBoard) fromPage(p *notionapi.Page) Task {
	t := Task{ID: string(p.ID), Fields: make(map[string]any, len(p.Properties))}
	for name, prop := range p.Properties {
		switch name {
		case b.cfg.TitleProperty:
			t.Name = propertyText(prop)
		case b.cfg.TagsProperty:
			t.Tags = optionNames(prop)
		default:
			t.Fields[name] = propertyValue(prop)
		}
	}
	return t
}

func encodeProperty(typ string, v any) notionapi.Property {
	switch typ {
	case "number":
		return notionapi.NumberProperty{Number: normalize.Number(v)}
	case "email":
		return notionapi.EmailProperty{Email: normalize.Clean(v)}
	case "phone_number":
		return notionapi.PhoneNumberProperty{PhoneNumber: normalize.Clean(v)}
	case "select":
		names := toStrings(v)
		if len(names) == 0 {
			return notionapi.SelectProperty{}
		}
		return notionapi.SelectProperty{Select: notionapi.Option{Name: names[0]}}
	case "multi_select":
		return multiSelect(toStrings(v))
	case "title":
		return notionapi.TitleProperty{Title: richText(normalize.Clean(v))}
	default:
		return notionapi.RichTextProperty{RichText: richText(normalize.Clean(v))}
	}
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}}
}

func multiSelect(names []string) notionapi.MultiSelectProperty {
	opts := make([]notionapi.Option, 0, len(names))
	for _, n := range names {
		opts = append(opts, notionapi.Option{Name: n})
	}
	return notionapi.MultiSelectProperty{MultiSelect: opts}
}

func selectOptions(pc notionapi.PropertyConfig) []notionapi.Option {
	switch c := pc.(type) {
	case *notionapi.SelectPropertyConfig:
		return c.Select.Options
	case *notionapi.MultiSelectPropertyConfig:
		return c.MultiSelect.Options
	}
	return nil
}

func plainText(rt []notionapi.RichText) string {
	var sb strings.Builder
	for _, r := range rt {
		switch {
		case r.PlainText != "":
			sb.WriteString(r.PlainText)
		case r.Text != nil:
			sb.WriteString(r.Text.Content)
		}
	}
	return sb.String()
}

// propertyText returns the text content of a title or rich text property.
func propertyText(p notionapi.Property) string {
	switch v := p.(type) {
	case *notionapi.TitleProperty:
		return plainText(v.Title)
	case notionapi.TitleProperty:
		return plainText(v.Title)
	case *notionapi.RichTextProperty:
		return plainText(v.RichText)
	case notionapi.RichTextProperty:
		return plainText(v.RichText)
	}
	return ""
}

func optionNames(p notionapi.Property) []string {
	var opts []notionapi.Option
	switch v := p.(type) {
	case *notionapi.MultiSelectProperty:
		opts = v.MultiSelect
	case notionapi.MultiSelectProperty:
		opts = v.MultiSelect
	case *notionapi.SelectProperty:
		opts = []notionapi.Option{v.Select}
	case notionapi.SelectProperty:
		opts = []notionapi.Option{v.Select}
	}
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		if o.Name != "" {
			out = append(out, o.Name)
		}
	}
	return out
}

// propertyValue flattens a page property to the forms the sink compares.
func propertyValue(p notionapi.Property) any {
	switch v := p.(type) {
	case *notionapi.NumberProperty:
		return v.Number
	case notionapi.NumberProperty:
		return v.Number
	case *notionapi.EmailProperty:
		return v.Email
	case notionapi.EmailProperty:
		return v.Email
	case *notionapi.PhoneNumberProperty:
		return v.PhoneNumber
	case notionapi.PhoneNumberProperty:
		return v.PhoneNumber
	case *notionapi.SelectProperty, notionapi.SelectProperty,
		*notionapi.MultiSelectProperty, notionapi.MultiSelectProperty:
		return optionNames(p)
	default:
		return propertyText(p)
	}
}
