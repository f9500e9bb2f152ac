package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/recovery-sync/internal/db"
	"github.com/sells-group/recovery-sync/internal/identity"
	"github.com/sells-group/recovery-sync/internal/model"
)

// LeadsTable is the ledger table name.
const LeadsTable = "recovery_leads"

// PostgresStore implements LeadStore using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	pingFn  func(ctx context.Context) error
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var (
	pgSelectByIdentity = fmt.Sprintf(
		`SELECT %s FROM %s WHERE email = $1 AND project = $2 AND variant = $3`,
		db.QuoteAndJoin(leadColumns), db.SanitizeTable(LeadsTable),
	)
	pgInsertLead = fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s)`,
		db.SanitizeTable(LeadsTable), db.QuoteAndJoin(leadColumns), pgPlaceholders(len(leadColumns)),
	)
	pgUpdateLead = fmt.Sprintf(
		`UPDATE %s SET name = $1, product = $2, gross = $3, net = $4, action_tags = $5, phone = $6, utms = $7, external_id = $8, external_created_at = $9, origin = $10, raw = $11, placeholder_email = $12, updated_at = $13 WHERE id = $14`,
		db.SanitizeTable(LeadsTable),
	)
)

func pgPlaceholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(ph, ", ")
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, pingFn: pool.Ping}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS recovery_leads (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	email               TEXT NOT NULL,
	project             TEXT NOT NULL DEFAULT 'default',
	variant             TEXT NOT NULL DEFAULT '',
	product             TEXT NOT NULL DEFAULT '',
	name                TEXT NOT NULL DEFAULT '',
	gross               DOUBLE PRECISION NOT NULL DEFAULT 0,
	net                 DOUBLE PRECISION NOT NULL DEFAULT 0,
	action_tags         TEXT[] NOT NULL DEFAULT '{}',
	phone               TEXT NOT NULL DEFAULT '',
	utms                JSONB,
	external_id         TEXT NOT NULL DEFAULT '',
	external_created_at TEXT NOT NULL DEFAULT '',
	origin              TEXT NOT NULL DEFAULT '',
	raw                 JSONB,
	placeholder_email   BOOLEAN NOT NULL DEFAULT false,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT recovery_leads_identity_key UNIQUE (email, project, variant)
);

CREATE INDEX IF NOT EXISTS idx_recovery_leads_project ON recovery_leads(project);
CREATE INDEX IF NOT EXISTS idx_recovery_leads_updated_at ON recovery_leads(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_recovery_leads_action_tags ON recovery_leads USING GIN (action_tags);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pingFn != nil {
		return eris.Wrap(s.pingFn(ctx), "postgres: ping")
	}
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) FindByIdentity(ctx context.Context, key identity.Key) (*model.LeadRow, error) {
	row := s.pool.QueryRow(ctx, pgSelectByIdentity, key.Email, key.Project, key.Variant)
	r, err := scanPostgresLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find lead %s", key)
	}
	return r, nil
}

func (s *PostgresStore) Insert(ctx context.Context, row model.LeadRow) (*model.LeadRow, error) {
	prepareForInsert(&row)

	utmsJSON, rawJSON, err := marshalJSONColumns(row.Lead)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert lead")
	}

	_, err = s.pool.Exec(ctx, pgInsertLead,
		row.ID, row.Email, row.Project, row.Variant, row.Product, row.Name, row.Gross, row.Net,
		row.ActionTags, row.Phone, utmsJSON, row.ExternalID, row.ExternalCreatedAt,
		row.Origin, rawJSON, row.PlaceholderEmail, row.CreatedAt, row.UpdatedAt,
	)
	if db.IsUniqueViolation(err) {
		return nil, eris.Wrapf(ErrDuplicate, "postgres: insert lead %s|%s|%s", row.Email, row.Project, row.Variant)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert lead")
	}
	return &row, nil
}

func (s *PostgresStore) Update(ctx context.Context, row model.LeadRow) (*model.LeadRow, error) {
	row.UpdatedAt = time.Now().UTC()
	if row.ActionTags == nil {
		row.ActionTags = []string{}
	}

	utmsJSON, rawJSON, err := marshalJSONColumns(row.Lead)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: update lead")
	}

	tag, err := s.pool.Exec(ctx, pgUpdateLead,
		row.Name, row.Product, row.Gross, row.Net, row.ActionTags, row.Phone, utmsJSON,
		row.ExternalID, row.ExternalCreatedAt, row.Origin, rawJSON, row.PlaceholderEmail,
		row.UpdatedAt, row.ID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update lead %s", row.ID)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrNotFound, "postgres: update lead %s", row.ID)
	}
	return &row, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.LeadRow, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE 1=1`, db.QuoteAndJoin(leadColumns), db.SanitizeTable(LeadsTable))
	var args []any

	if filter.Project != "" {
		args = append(args, filter.Project)
		query += fmt.Sprintf(` AND project = $%d`, len(args))
	}
	if filter.Tag != "" {
		args = append(args, filter.Tag)
		query += fmt.Sprintf(` AND $%d = ANY(action_tags)`, len(args))
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var out []model.LeadRow
	for rows.Next() {
		r, err := scanPostgresLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func scanPostgresLead(row pgx.Row) (*model.LeadRow, error) {
	var r model.LeadRow
	var utmsJSON, rawJSON []byte
	err := row.Scan(
		&r.ID, &r.Email, &r.Project, &r.Variant, &r.Product, &r.Name, &r.Gross, &r.Net,
		&r.ActionTags, &r.Phone, &utmsJSON, &r.ExternalID, &r.ExternalCreatedAt,
		&r.Origin, &rawJSON, &r.PlaceholderEmail, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSONColumns(&r.Lead, utmsJSON, rawJSON); err != nil {
		return nil, err
	}
	return &r, nil
}

// prepareForInsert fills the id, timestamps and non-null defaults.
func prepareForInsert(row *model.LeadRow) {
	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	if row.Project == "" {
		row.Project = model.DefaultProject
	}
	if row.ActionTags == nil {
		row.ActionTags = []string{}
	}
}

func marshalJSONColumns(l model.Lead) (utms, raw []byte, err error) {
	if !l.UTMs.Empty() {
		if utms, err = json.Marshal(l.UTMs); err != nil {
			return nil, nil, eris.Wrap(err, "marshal utms")
		}
	}
	if l.Raw != nil {
		if raw, err = json.Marshal(l.Raw); err != nil {
			return nil, nil, eris.Wrap(err, "marshal raw payload")
		}
	}
	return utms, raw, nil
}

func unmarshalJSONColumns(l *model.Lead, utms, raw []byte) error {
	if len(utms) > 0 && string(utms) != "null" {
		var u model.UTMs
		if err := json.Unmarshal(utms, &u); err != nil {
			return eris.Wrap(err, "unmarshal utms")
		}
		l.UTMs = &u
	}
	if len(raw) > 0 && string(raw) != "null" {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return eris.Wrap(err, "unmarshal raw payload")
		}
		l.Raw = v
	}
	return nil
}
