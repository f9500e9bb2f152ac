// Package identity computes identity keys and merges lead records that share
// one, either up front for a batch or against a stored row for a single event.
package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/recovery-sync/internal/model"
	"github.com/sells-group/recovery-sync/internal/normalize"
)

// Key identifies "the same lead". Variant is empty for the primary flow and
// holds the product slug for the product-keyed flow.
type Key struct {
	Email   string
	Project string
	Variant string
}

func (k Key) String() string {
	if k.Variant == "" {
		return k.Email + "|" + k.Project
	}
	return k.Email + "|" + k.Project + "|" + k.Variant
}

// KeyOf returns the identity key of lead.
func KeyOf(lead model.Lead, byProduct bool) Key {
	k := Key{Email: lead.Email, Project: lead.Project}
	if byProduct {
		k.Variant = lead.Product
	}
	return k
}

// EnsureEmail guarantees lead carries a lowercase, non-empty email. When the
// current value is unusable a placeholder on the reserved domain is derived
// from the phone digits, or from now when no phone is known.
func EnsureEmail(lead *model.Lead, now time.Time) {
	email := strings.ToLower(strings.TrimSpace(lead.Email))
	if normalize.EmailUsable(email) {
		lead.Email = email
		return
	}
	lead.PlaceholderEmail = true
	if digits := normalize.Digits(lead.Phone); digits != "" {
		lead.Email = fmt.Sprintf("whatsapp_%s@%s", digits, model.PlaceholderDomain)
		return
	}
	lead.Email = fmt.Sprintf("desconhecido_%d@%s", now.UnixMilli(), model.PlaceholderDomain)
}
