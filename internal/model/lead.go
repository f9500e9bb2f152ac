package model

import (
	"strings"
	"time"
)

// Canonical action tags produced by the event classifier.
const (
	TagCardDeclined  = "cartao-recusado"
	TagAbandonedCart = "carrinho-abandonado"
	TagRefund        = "reembolso"
	TagBuyer         = "comprador"
	TagPixGenerated  = "pix-gerado"
	TagSaleUpdated   = "venda-atualizada"
	TagUnknownStatus = "unknown"
)

const (
	// DefaultProject is used when a payload names no project.
	DefaultProject = "default"
	// PlaceholderDomain is the reserved domain of synthesized emails.
	PlaceholderDomain = "desconhecido.local"
	// ProductTypeOrderBump marks rows imported through the product-keyed flow.
	ProductTypeOrderBump = "orderbump"
)

// UTMs holds campaign attribution parameters.
type UTMs struct {
	Source   string `json:"utm_source,omitempty"`
	Medium   string `json:"utm_medium,omitempty"`
	Campaign string `json:"utm_campaign,omitempty"`
	Content  string `json:"utm_content,omitempty"`
	Term     string `json:"utm_term,omitempty"`
}

// Empty reports whether no attribution parameter is set.
func (u *UTMs) Empty() bool {
	return u == nil || (u.Source == "" && u.Medium == "" && u.Campaign == "" && u.Content == "" && u.Term == "")
}

// Lead is the canonical, source-independent record of a lead's sale event.
type Lead struct {
	Email   string `json:"email"`
	Project string `json:"project"`
	Product string `json:"product,omitempty"`

	Name       string   `json:"name,omitempty"`
	Gross      float64  `json:"gross"`
	Net        float64  `json:"net"`
	ActionTags []string `json:"action_tags"`
	Phone      string   `json:"phone,omitempty"`
	UTMs       *UTMs    `json:"utms,omitempty"`

	ExternalID        string `json:"external_id,omitempty"`
	ExternalCreatedAt string `json:"external_created_at,omitempty"`
	Origin            string `json:"origin,omitempty"`
	Raw               any    `json:"raw,omitempty"`

	// PlaceholderEmail is set when Email was synthesized because the
	// payload carried no usable address.
	PlaceholderEmail bool `json:"placeholder_email,omitempty"`
}

// LeadRow is a Lead as persisted in the ledger.
type LeadRow struct {
	ID string `json:"id"`
	// Variant is empty for primary rows and holds the product slug for
	// product-keyed rows.
	Variant string `json:"variant,omitempty"`
	Lead
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsPlaceholderEmail reports whether email was synthesized by the pipeline.
func IsPlaceholderEmail(email string) bool {
	return strings.HasSuffix(strings.ToLower(email), "@"+PlaceholderDomain)
}

// UnionTags returns the set union of a and b, keeping first-seen order.
// Empty tags are dropped and the result is never nil.
func UnionTags(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, t := range list {
			if t == "" {
				continue
			}
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// HasTag reports whether tags contains tag.
func HasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
