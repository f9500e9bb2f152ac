package tasksync

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLister struct {
	mu     sync.Mutex
	calls  int
	fields []Field
	err    error
}

func (l *countingLister) ListFields(context.Context) ([]Field, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.fields, l.err
}

var boardFields = []Field{
	{ID: "f-email", Name: "E-mail do lead"},
	{ID: "f-wa", Name: "WhatsApp"},
	{ID: "f-opp", Name: "Oportunidade (R$)"},
	{ID: "f-net", Name: "Valor Liquidado"},
	{ID: "f-prod-old", Name: "Produto antigo", Options: []Option{{ID: "old", Name: "Velho"}}},
	{ID: "f-proj", Name: "backend_projeto"},
	{ID: DefaultProductFieldID, Name: "Produto", Options: []Option{{ID: "o-mentoria", Name: "Mentoria Pro"}}},
}

func TestFieldCache_Load(t *testing.T) {
	c := NewFieldCache("")
	c.Load(boardFields)

	assert.Equal(t, "f-email", c.ID(FieldEmail))
	assert.Equal(t, "f-wa", c.ID(FieldWhatsApp))
	assert.Equal(t, "f-opp", c.ID(FieldOpportunity))
	assert.Equal(t, "f-net", c.ID(FieldNet))
	assert.Equal(t, "f-proj", c.ID(FieldProject))
	// The later matching field wins.
	assert.Equal(t, DefaultProductFieldID, c.ID(FieldProduct))
	assert.Equal(t, []Option{{ID: "o-mentoria", Name: "Mentoria Pro"}}, c.ProductOptions())
}

func TestFieldCache_ProductOverride(t *testing.T) {
	c := NewFieldCache("f-prod-old")
	c.Load(boardFields)

	assert.Equal(t, "f-prod-old", c.ID(FieldProduct))
	assert.Equal(t, []Option{{ID: "old", Name: "Velho"}}, c.ProductOptions())

	empty := NewFieldCache("fixed")
	assert.Equal(t, "fixed", empty.ID(FieldProduct))
	assert.Empty(t, empty.ID(FieldEmail))
}

func TestFieldCache_FirstMatcherWinsPerField(t *testing.T) {
	c := NewFieldCache("")
	c.Load([]Field{{ID: "f1", Name: "Email do projeto"}})

	assert.Equal(t, "f1", c.ID(FieldEmail))
	assert.Empty(t, c.ID(FieldProject))
}

func TestFieldCache_WarmOnce(t *testing.T) {
	c := NewFieldCache("")
	l := &countingLister{fields: boardFields}

	require.NoError(t, c.Warm(context.Background(), l))
	require.NoError(t, c.Warm(context.Background(), l))
	assert.Equal(t, 1, l.calls)
	assert.True(t, c.Warmed())
}

func TestFieldCache_EmptyListingIsRetried(t *testing.T) {
	c := NewFieldCache(DefaultProductFieldID)
	l := &countingLister{}

	require.NoError(t, c.Warm(context.Background(), l))
	assert.False(t, c.Warmed(), "the configured product field alone does not count as mapped")
	assert.Empty(t, c.ID(FieldEmail))

	l.fields = []Field{{ID: "f-email", Name: "E-mail"}}
	require.NoError(t, c.Warm(context.Background(), l))
	assert.Equal(t, 2, l.calls)
	assert.True(t, c.Warmed())
	assert.Equal(t, "f-email", c.ID(FieldEmail))

	require.NoError(t, c.Warm(context.Background(), l))
	assert.Equal(t, 2, l.calls)
}

func TestFieldCache_WarmError(t *testing.T) {
	c := NewFieldCache("")
	err := c.Warm(context.Background(), &countingLister{err: errors.New("boom")})
	require.Error(t, err)
	assert.False(t, c.Warmed())
}

func TestFieldCache_ConcurrentWarm(t *testing.T) {
	c := NewFieldCache("")
	l := &countingLister{fields: boardFields}

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Warm(context.Background(), l))
			_ = c.ID(FieldEmail)
		}()
	}
	wg.Wait()
	assert.Equal(t, "f-email", c.ID(FieldEmail))
}

func TestFieldCache_Seed(t *testing.T) {
	c := NewFieldCache(DefaultProductFieldID)
	c.Seed(map[Logical]string{FieldEmail: "e"}, nil)

	assert.True(t, c.Warmed())

	labelsOnly := NewFieldCache(DefaultProductFieldID)
	labelsOnly.Seed(nil, []Option{{ID: "o1", Name: "Bump"}})
	assert.False(t, labelsOnly.Warmed())
	assert.Equal(t, "e", c.ID(FieldEmail))
	assert.Equal(t, map[Logical]string{FieldEmail: "e", FieldProduct: DefaultProductFieldID}, c.Mapping())
}
