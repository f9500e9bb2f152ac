package tasksync

import (
	"maps"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// DefaultProductLabels maps product names, as they arrive from checkouts and
// exports, to option ids of the production product field.
var DefaultProductLabels = map[string]string{
	"ingresso escala 26":            "000859e0-a3fb-482a-9042-b9eb72e7afec",
	"ingresso-escala-26":            "000859e0-a3fb-482a-9042-b9eb72e7afec",
	"ingressoescala26":              "000859e0-a3fb-482a-9042-b9eb72e7afec",
	"ingresso + template escala 26": "46f2f9e5-c903-4ea4-be76-2d95f45a8ae0",
	"ingresso+template-escala-26":   "46f2f9e5-c903-4ea4-be76-2d95f45a8ae0",
	"ingresso+template escala 26":   "46f2f9e5-c903-4ea4-be76-2d95f45a8ae0",
	"ingressotemplateescala26":      "46f2f9e5-c903-4ea4-be76-2d95f45a8ae0",
}

var labelDelimiters = regexp.MustCompile(`[+\s-]`)

// compact lowercases s and strips plus signs, whitespace and hyphens.
func compact(s string) string {
	return labelDelimiters.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "")
}

// LabelResolver maps a product name to a label option id. The fixed table
// always wins over options discovered on the board.
type LabelResolver struct {
	fixed  map[string]string
	fields *FieldCache
	log    *zap.Logger
}

// NewLabelResolver creates a resolver over the fixed table and the product
// options held by fields. A nil fixed table uses DefaultProductLabels.
func NewLabelResolver(fixed map[string]string, fields *FieldCache) *LabelResolver {
	if fixed == nil {
		fixed = DefaultProductLabels
	}
	norm := make(map[string]string, len(fixed))
	for k, v := range fixed {
		norm[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return &LabelResolver{
		fixed:  norm,
		fields: fields,
		log:    zap.L().With(zap.String("component", "tasksync.labels")),
	}
}

// Resolve returns the option id for product. Lookup order: fixed exact,
// fixed delimiter-insensitive, discovered exact, discovered lowercased,
// discovered delimiter-insensitive.
func (r *LabelResolver) Resolve(product string) (string, bool) {
	if strings.TrimSpace(product) == "" {
		return "", false
	}
	lowered := strings.ToLower(strings.TrimSpace(product))
	stripped := compact(product)

	if id, ok := r.fixed[lowered]; ok {
		return id, true
	}
	for k, id := range r.fixed {
		if compact(k) == stripped {
			return id, true
		}
	}

	dynamic := r.dynamic()
	if id, ok := dynamic[product]; ok {
		return id, true
	}
	if id, ok := dynamic[lowered]; ok {
		return id, true
	}
	for k, id := range dynamic {
		if compact(k) == stripped {
			return id, true
		}
	}

	r.log.Warn("product label not found",
		zap.String("product", product),
		zap.Int("fixed", len(r.fixed)),
		zap.Int("discovered", len(dynamic)),
	)
	return "", false
}

// dynamic indexes discovered options under both their original and
// lowercased names.
func (r *LabelResolver) dynamic() map[string]string {
	if r.fields == nil {
		return nil
	}
	opts := r.fields.ProductOptions()
	out := make(map[string]string, len(opts)*2)
	for _, o := range opts {
		if o.Name == "" || o.ID == "" {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(o.Name))] = o.ID
		out[o.Name] = o.ID
	}
	return out
}

// Fixed returns a copy of the fixed table.
func (r *LabelResolver) Fixed() map[string]string {
	return maps.Clone(r.fixed)
}
