package pipeline

import (
	"strings"
	"time"

	"github.com/sells-group/recovery-sync/internal/classify"
	"github.com/sells-group/recovery-sync/internal/identity"
	"github.com/sells-group/recovery-sync/internal/model"
	"github.com/sells-group/recovery-sync/internal/monitoring"
	"github.com/sells-group/recovery-sync/internal/normalize"
	"github.com/sells-group/recovery-sync/internal/payload"
)

// Warning kinds raised while normalizing. None of them rejects the event.
const (
	WarnPlaceholderEmail = "placeholder_email"
	WarnInvalidPhone     = "invalid_phone"
	WarnDefaultProject   = "default_project"
	WarnNegativeNet      = "negative_net"
	WarnUnknownProduct   = "unknown_product"
)

// Warning is a validation gap that was filled locally.
type Warning struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

// Normalized is one canonical record plus what normalization observed.
type Normalized struct {
	Lead     model.Lead
	Rule     classify.Rule
	Warnings []Warning
}

// Normalizer turns raw payload trees into canonical records. Webhooks and
// bulk imports share one Normalizer so both produce identical records.
type Normalizer struct {
	fields         payload.FieldMap
	countryCode    string
	defaultProject string
	now            func() time.Time
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithFieldMap replaces the candidate path chains.
func WithFieldMap(fm payload.FieldMap) NormalizerOption {
	return func(n *Normalizer) { n.fields = fm }
}

// WithCountryCode sets the calling code prefixed to local phone numbers.
func WithCountryCode(cc string) NormalizerOption {
	return func(n *Normalizer) {
		if cc != "" {
			n.countryCode = cc
		}
	}
}

// WithDefaultProject sets the project used when neither the caller nor the
// payload names one.
func WithDefaultProject(p string) NormalizerOption {
	return func(n *Normalizer) {
		if p != "" {
			n.defaultProject = p
		}
	}
}

// NewNormalizer creates a Normalizer with the built-in field map.
func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		fields:         payload.DefaultFieldMap(),
		countryCode:    normalize.DefaultCountryCode,
		defaultProject: model.DefaultProject,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize resolves, coerces and classifies raw into a canonical record.
// project, when non-empty, takes precedence over any project in the payload.
// The returned lead always carries a usable email and a non-nil tag list.
func (n *Normalizer) Normalize(raw any, project string) Normalized {
	event, envelope := payload.Unwrap(raw)
	fm := n.fields
	get := func(path string) any { return payload.Resolve(event, path) }

	lead := model.Lead{
		Name:              normalize.Clean(get(fm.Name)),
		Gross:             normalize.Number(get(fm.Gross)),
		Net:               normalize.Number(get(fm.Net)),
		Product:           normalize.Product(normalize.Clean(get(fm.Product))),
		Email:             normalize.Email(get(fm.Email)),
		Phone:             normalize.Phone(get(fm.Phone), n.countryCode),
		UTMs:              utms(get(fm.UTMs)),
		ExternalID:        normalize.Clean(get(fm.ExternalID)),
		ExternalCreatedAt: normalize.Date(normalize.Clean(get(fm.CreatedAt))),
		Origin:            normalize.Clean(get(fm.Origin)),
		Raw:               envelope,
	}
	out := Normalized{}

	lead.Project = strings.TrimSpace(project)
	if lead.Project == "" {
		lead.Project = normalize.Clean(get(fm.Project))
	}
	if lead.Project == "" {
		lead.Project = n.defaultProject
		out.warn(WarnDefaultProject, "")
	}

	lead.ActionTags, out.Rule = classify.Classify(classify.Signals{
		Status:   normalize.Clean(get(fm.Status)),
		Method:   normalize.Clean(get(fm.Method)),
		Event:    normalize.Clean(get(fm.Event)),
		HasSale:  payload.Has(event, fm.Sale),
		HasOffer: payload.Has(event, fm.Offer),
		Explicit: get(fm.Action),
	})

	if lead.Phone != "" && !normalize.PhoneValid(lead.Phone) {
		out.warn(WarnInvalidPhone, lead.Phone)
	}

	identity.EnsureEmail(&lead, n.now())
	if lead.PlaceholderEmail {
		out.warn(WarnPlaceholderEmail, lead.Email)
	}

	if lead.Net < 0 && !model.HasTag(lead.ActionTags, model.TagRefund) {
		out.warn(WarnNegativeNet, normalize.Clean(lead.Net))
	}

	out.Lead = lead
	return out
}

func (o *Normalized) warn(kind, detail string) {
	o.Warnings = append(o.Warnings, Warning{Kind: kind, Detail: detail})
	monitoring.WarningsTotal.WithLabelValues(kind).Inc()
}

func utms(v any) *model.UTMs {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	u := &model.UTMs{
		Source:   normalize.Clean(obj["utm_source"]),
		Medium:   normalize.Clean(obj["utm_medium"]),
		Campaign: normalize.Clean(obj["utm_campaign"]),
		Content:  normalize.Clean(obj["utm_content"]),
		Term:     normalize.Clean(obj["utm_term"]),
	}
	if u.Empty() {
		return nil
	}
	return u
}
