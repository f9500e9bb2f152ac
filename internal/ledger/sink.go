// Package ledger writes canonical lead records to the relational ledger,
// merging each event into the row that already holds its identity key.
package ledger

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recovery-sync/internal/identity"
	"github.com/sells-group/recovery-sync/internal/model"
	"github.com/sells-group/recovery-sync/internal/normalize"
	"github.com/sells-group/recovery-sync/internal/payload"
	"github.com/sells-group/recovery-sync/internal/store"
)

// DefaultMaxRawBytes caps the stored raw payload.
const DefaultMaxRawBytes = 1_000_000

// Outcome describes what an upsert did.
type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeUpdated  Outcome = "updated"
)

// Sink is the relational upsert sink.
type Sink struct {
	store       store.LeadStore
	maxRawBytes int
	log         *zap.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithMaxRawBytes overrides the raw payload size cap.
func WithMaxRawBytes(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.maxRawBytes = n
		}
	}
}

// NewSink creates a ledger sink over st.
func NewSink(st store.LeadStore, opts ...Option) *Sink {
	s := &Sink{
		store:       st,
		maxRawBytes: DefaultMaxRawBytes,
		log:         zap.L().With(zap.String("component", "ledger")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert inserts lead, or merges it into the row already holding its identity
// key. A lost insert race re-reads the winning row and merges into it once.
func (s *Sink) Upsert(ctx context.Context, lead model.Lead, byProduct bool) (*model.LeadRow, Outcome, error) {
	if lead.Email == "" {
		return nil, "", eris.New("ledger: lead has no email")
	}
	if lead.Project == "" {
		lead.Project = model.DefaultProject
	}
	lead.Raw = s.capRaw(lead.Raw)
	key := identity.KeyOf(lead, byProduct)

	existing, err := s.store.FindByIdentity(ctx, key)
	if err != nil {
		return nil, "", eris.Wrap(err, "ledger: find")
	}
	if existing != nil {
		return s.update(ctx, *existing, lead)
	}

	row, err := s.store.Insert(ctx, model.LeadRow{Variant: key.Variant, Lead: lead})
	if err == nil {
		s.log.Info("lead inserted",
			zap.String("id", row.ID),
			zap.String("email", row.Email),
			zap.String("project", row.Project),
			zap.Strings("action_tags", row.ActionTags),
		)
		return row, OutcomeInserted, nil
	}
	if !errors.Is(err, store.ErrDuplicate) {
		return nil, "", eris.Wrap(err, "ledger: insert")
	}

	existing, err = s.store.FindByIdentity(ctx, key)
	if err != nil {
		return nil, "", eris.Wrap(err, "ledger: find after duplicate")
	}
	if existing == nil {
		return nil, "", eris.Errorf("ledger: duplicate reported for %s but no row found", key)
	}
	return s.update(ctx, *existing, lead)
}

func (s *Sink) update(ctx context.Context, existing model.LeadRow, lead model.Lead) (*model.LeadRow, Outcome, error) {
	merged := identity.MergeInto(existing, lead)
	row, err := s.store.Update(ctx, merged)
	if err != nil {
		return nil, "", eris.Wrap(err, "ledger: update")
	}
	s.log.Info("lead updated",
		zap.String("id", row.ID),
		zap.String("email", row.Email),
		zap.String("project", row.Project),
		zap.Strings("existing_tags", existing.ActionTags),
		zap.Strings("incoming_tags", lead.ActionTags),
		zap.Strings("merged_tags", row.ActionTags),
	)
	return row, OutcomeUpdated, nil
}

// capRaw replaces an oversized raw payload with its identifying essentials.
func (s *Sink) capRaw(raw any) any {
	if raw == nil {
		return nil
	}
	b, err := json.Marshal(raw)
	if err != nil || len(b) <= s.maxRawBytes {
		return raw
	}
	s.log.Warn("raw payload too large, keeping essentials only", zap.Int("bytes", len(b)))
	return map[string]any{
		"id":           payload.Resolve(raw, "id"),
		"sale_id":      payload.Resolve(raw, "sale.id"),
		"client_email": normalize.Clean(payload.Resolve(raw, "client.email")),
	}
}
