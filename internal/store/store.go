package store

import (
	"context"
	"errors"

	"github.com/sells-group/recovery-sync/internal/identity"
	"github.com/sells-group/recovery-sync/internal/model"
)

var (
	// ErrDuplicate is returned by Insert when a row already holds the identity key.
	ErrDuplicate = errors.New("store: duplicate identity")
	// ErrNotFound is returned by Update when the row id does not exist.
	ErrNotFound = errors.New("store: lead not found")
)

// LeadFilter specifies criteria for listing ledger rows.
type LeadFilter struct {
	Project string `json:"project,omitempty"`
	Tag     string `json:"tag,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// LeadStore is the relational lead ledger. At most one row exists per
// (email, project, variant).
type LeadStore interface {
	// FindByIdentity returns the row for key, or nil when none exists.
	FindByIdentity(ctx context.Context, key identity.Key) (*model.LeadRow, error)
	Insert(ctx context.Context, row model.LeadRow) (*model.LeadRow, error)
	Update(ctx context.Context, row model.LeadRow) (*model.LeadRow, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.LeadRow, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// leadColumns is the column order shared by both drivers.
var leadColumns = []string{
	"id", "email", "project", "variant", "product", "name", "gross", "net",
	"action_tags", "phone", "utms", "external_id", "external_created_at",
	"origin", "raw", "placeholder_email", "created_at", "updated_at",
}

const defaultListLimit = 100
