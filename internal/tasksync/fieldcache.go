package tasksync

import (
	"context"
	"maps"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Logical names the sink writes, independent of the board's field ids.
type Logical string

const (
	FieldEmail       Logical = "email"
	FieldWhatsApp    Logical = "whatsapp"
	FieldOpportunity Logical = "oportunidade"
	FieldNet         Logical = "liquidado"
	FieldProduct     Logical = "produto"
	FieldProject     Logical = "backend_projeto"
)

// DefaultProductFieldID is the product label field on the production list.
const DefaultProductFieldID = "b01ec9fe-187c-4e49-8d0e-5f40d24ed3f3"

// Matcher maps a board field to a logical name when the lowercased field
// name contains any of Substrings.
type Matcher struct {
	Field      Logical
	Substrings []string
}

// DefaultMatchers is evaluated in order per field; the first match wins for
// that field, and a later field matching the same logical name replaces an
// earlier one.
var DefaultMatchers = []Matcher{
	{Field: FieldEmail, Substrings: []string{"e-mail", "email"}},
	{Field: FieldWhatsApp, Substrings: []string{"whatsapp"}},
	{Field: FieldOpportunity, Substrings: []string{"oportunidade"}},
	{Field: FieldNet, Substrings: []string{"liquidado"}},
	{Field: FieldProduct, Substrings: []string{"produto"}},
	{Field: FieldProject, Substrings: []string{"backend_projeto", "projeto"}},
}

type fieldSnapshot struct {
	ids            map[Logical]string
	productOptions []Option
	// mapped is set when at least one id came from the board or Seed rather
	// than the configured product field.
	mapped bool
}

// FieldCache resolves logical field names to board field ids. It is filled
// once per process; a listing that maps nothing is retried on the next Warm.
// Readers see an immutable snapshot.
type FieldCache struct {
	snap           atomic.Pointer[fieldSnapshot]
	productFieldID string
	matchers       []Matcher
	log            *zap.Logger
}

// NewFieldCache creates an empty cache. A non-empty productFieldID always
// takes precedence over discovery.
func NewFieldCache(productFieldID string, matchers ...Matcher) *FieldCache {
	if len(matchers) == 0 {
		matchers = DefaultMatchers
	}
	return &FieldCache{
		productFieldID: productFieldID,
		matchers:       matchers,
		log:            zap.L().With(zap.String("component", "tasksync.fields")),
	}
}

// Warmed reports whether the cache holds a snapshot with mapped fields.
func (c *FieldCache) Warmed() bool {
	s := c.snap.Load()
	return s != nil && s.mapped
}

// Warm lists the board's fields when the cache is empty. It is a no-op when
// already warm. Concurrent warmers may both fetch; the last snapshot stored wins.
func (c *FieldCache) Warm(ctx context.Context, lister FieldLister) error {
	if c.Warmed() {
		return nil
	}
	fields, err := lister.ListFields(ctx)
	if err != nil {
		return eris.Wrap(err, "tasksync: list fields")
	}
	c.Load(fields)
	return nil
}

// Load builds and stores a snapshot from fields.
func (c *FieldCache) Load(fields []Field) {
	ids := make(map[Logical]string)
	for _, f := range fields {
		name := strings.ToLower(f.Name)
		for _, m := range c.matchers {
			if containsAny(name, m.Substrings) {
				ids[m.Field] = f.ID
				break
			}
		}
	}
	mapped := len(ids) > 0
	if c.productFieldID != "" {
		ids[FieldProduct] = c.productFieldID
	}

	snap := &fieldSnapshot{ids: ids, mapped: mapped}
	for _, f := range fields {
		if f.ID == ids[FieldProduct] {
			snap.productOptions = f.Options
			break
		}
	}
	c.snap.Store(snap)

	c.log.Info("task board fields mapped",
		zap.Int("fields", len(fields)),
		zap.Any("mapping", ids),
		zap.Int("product_labels", len(snap.productOptions)),
	)
}

// Seed stores a snapshot directly, bypassing discovery.
func (c *FieldCache) Seed(ids map[Logical]string, productOptions []Option) {
	cp := maps.Clone(ids)
	if cp == nil {
		cp = make(map[Logical]string)
	}
	mapped := len(cp) > 0
	if c.productFieldID != "" {
		cp[FieldProduct] = c.productFieldID
	}
	c.snap.Store(&fieldSnapshot{ids: cp, productOptions: productOptions, mapped: mapped})
}

// ID returns the board field id for name, or "" when unknown.
func (c *FieldCache) ID(name Logical) string {
	if name == FieldProduct && c.productFieldID != "" {
		return c.productFieldID
	}
	s := c.snap.Load()
	if s == nil {
		return ""
	}
	return s.ids[name]
}

// ProductOptions returns the discovered options of the product field.
func (c *FieldCache) ProductOptions() []Option {
	s := c.snap.Load()
	if s == nil {
		return nil
	}
	return s.productOptions
}

// Mapping returns a copy of the resolved logical-name mapping.
func (c *FieldCache) Mapping() map[Logical]string {
	s := c.snap.Load()
	if s == nil {
		return map[Logical]string{}
	}
	return maps.Clone(s.ids)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
