// Package classify maps sale-event signals to canonical action tags.
package classify

import (
	"strings"

	"github.com/sells-group/recovery-sync/internal/model"
	"github.com/sells-group/recovery-sync/internal/normalize"
)

// Rule names which classification step produced the tags.
type Rule string

const (
	RulePaymentFailure Rule = "payment_failure"
	RuleAbandonedCart  Rule = "abandoned_cart"
	RuleRefund         Rule = "refund"
	RulePaid           Rule = "paid"
	RulePixGenerated   Rule = "pix_generated"
	RuleExplicit       Rule = "explicit"
	RuleEvent          Rule = "event"
	RuleNone           Rule = "none"
)

// Signals is the input bundle extracted from one payload.
type Signals struct {
	Status   string
	Method   string
	Event    string
	HasSale  bool
	HasOffer bool
	// Explicit is the raw caller-supplied action field, if any.
	Explicit any
}

var failureStatuses = map[string]struct{}{
	"failed":    {},
	"refused":   {},
	"declined":  {},
	"error":     {},
	"rejected":  {},
	"canceled":  {},
	"cancelled": {},
}

var abandonMarkers = map[string]struct{}{
	"checkoutabandoned":  {},
	"checkout-abandoned": {},
}

var saleUpdateMarkers = map[string]struct{}{
	"saleupdated":  {},
	"sale-updated": {},
}

const (
	statusPaid           = "paid"
	statusWaitingPayment = "waiting_payment"
	statusRefunded       = "refunded"
	methodPix            = "PIX"
)

// Classify evaluates the signals in fixed priority order and returns the
// action tags of the first matching rule. The result is never nil.
func Classify(s Signals) ([]string, Rule) {
	status := strings.TrimSpace(s.Status)
	event := strings.ToLower(strings.TrimSpace(s.Event))

	if _, ok := failureStatuses[strings.ToLower(status)]; ok && status != "" {
		return []string{model.TagCardDeclined}, RulePaymentFailure
	}

	_, abandoned := abandonMarkers[event]
	qualifyingSale := s.HasSale && (status == statusPaid || status == statusWaitingPayment || status == statusRefunded)
	if abandoned || (s.HasOffer && !qualifyingSale) {
		return []string{model.TagAbandonedCart}, RuleAbandonedCart
	}

	switch {
	case status == statusRefunded:
		return []string{model.TagRefund}, RuleRefund
	case status == statusPaid:
		return []string{model.TagBuyer}, RulePaid
	case status == statusWaitingPayment && s.Method == methodPix:
		return []string{model.TagPixGenerated}, RulePixGenerated
	}

	if tags := normalize.Tags(s.Explicit); len(tags) > 0 {
		return tags, RuleExplicit
	}

	if slug := normalize.EventSlug(s.Event); slug != "" {
		if _, ok := saleUpdateMarkers[slug]; ok {
			return []string{model.TagSaleUpdated}, RuleEvent
		}
		return []string{slug}, RuleEvent
	}

	return []string{}, RuleNone
}
