package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/recovery-sync/internal/identity"
	"github.com/sells-group/recovery-sync/internal/model"
)

// SQLiteStore implements LeadStore using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS recovery_leads (
	id                  TEXT PRIMARY KEY,
	email               TEXT NOT NULL,
	project             TEXT NOT NULL DEFAULT 'default',
	variant             TEXT NOT NULL DEFAULT '',
	product             TEXT NOT NULL DEFAULT '',
	name                TEXT NOT NULL DEFAULT '',
	gross               REAL NOT NULL DEFAULT 0,
	net                 REAL NOT NULL DEFAULT 0,
	action_tags         TEXT NOT NULL DEFAULT '[]',
	phone               TEXT NOT NULL DEFAULT '',
	utms                TEXT,
	external_id         TEXT NOT NULL DEFAULT '',
	external_created_at TEXT NOT NULL DEFAULT '',
	origin              TEXT NOT NULL DEFAULT '',
	raw                 TEXT,
	placeholder_email   INTEGER NOT NULL DEFAULT 0,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (email, project, variant)
);

CREATE INDEX IF NOT EXISTS idx_recovery_leads_project ON recovery_leads(project);
CREATE INDEX IF NOT EXISTS idx_recovery_leads_updated_at ON recovery_leads(updated_at);
`

var (
	sqliteSelectColumns = strings.Join(leadColumns, ", ")
	sqliteInsertLead    = fmt.Sprintf(
		`INSERT INTO recovery_leads (%s) VALUES (%s)`,
		sqliteSelectColumns, strings.TrimSuffix(strings.Repeat("?, ", len(leadColumns)), ", "),
	)
)

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindByIdentity(ctx context.Context, key identity.Key) (*model.LeadRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteSelectColumns+` FROM recovery_leads WHERE email = ? AND project = ? AND variant = ?`,
		key.Email, key.Project, key.Variant,
	)
	r, err := scanSQLiteLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find lead %s", key)
	}
	return r, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, row model.LeadRow) (*model.LeadRow, error) {
	prepareForInsert(&row)

	tagsJSON, utmsJSON, rawJSON, err := sqliteJSONColumns(row.Lead)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert lead")
	}

	_, err = s.db.ExecContext(ctx, sqliteInsertLead,
		row.ID, row.Email, row.Project, row.Variant, row.Product, row.Name, row.Gross, row.Net,
		tagsJSON, row.Phone, utmsJSON, row.ExternalID, row.ExternalCreatedAt,
		row.Origin, rawJSON, row.PlaceholderEmail, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return nil, eris.Wrapf(ErrDuplicate, "sqlite: insert lead %s|%s|%s", row.Email, row.Project, row.Variant)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert lead")
	}
	return &row, nil
}

func (s *SQLiteStore) Update(ctx context.Context, row model.LeadRow) (*model.LeadRow, error) {
	row.UpdatedAt = time.Now().UTC()
	if row.ActionTags == nil {
		row.ActionTags = []string{}
	}

	tagsJSON, utmsJSON, rawJSON, err := sqliteJSONColumns(row.Lead)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: update lead")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE recovery_leads SET name = ?, product = ?, gross = ?, net = ?, action_tags = ?, phone = ?, utms = ?,
			external_id = ?, external_created_at = ?, origin = ?, raw = ?, placeholder_email = ?, updated_at = ?
		WHERE id = ?`,
		row.Name, row.Product, row.Gross, row.Net, tagsJSON, row.Phone, utmsJSON,
		row.ExternalID, row.ExternalCreatedAt, row.Origin, rawJSON, row.PlaceholderEmail, row.UpdatedAt,
		row.ID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update lead %s", row.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update lead %s rows affected", row.ID)
	}
	if n == 0 {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: update lead %s", row.ID)
	}
	return &row, nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.LeadRow, error) {
	query := `SELECT ` + sqliteSelectColumns + ` FROM recovery_leads WHERE 1=1`
	var args []any

	if filter.Project != "" {
		query += ` AND project = ?`
		args = append(args, filter.Project)
	}
	if filter.Tag != "" {
		query += ` AND EXISTS (SELECT 1 FROM json_each(action_tags) WHERE json_each.value = ?)`
		args = append(args, filter.Tag)
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var out []model.LeadRow
	for rows.Next() {
		r, err := scanSQLiteLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

type sqliteScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteLead(row sqliteScanner) (*model.LeadRow, error) {
	var r model.LeadRow
	var tagsJSON string
	var utmsJSON, rawJSON sql.NullString
	err := row.Scan(
		&r.ID, &r.Email, &r.Project, &r.Variant, &r.Product, &r.Name, &r.Gross, &r.Net,
		&tagsJSON, &r.Phone, &utmsJSON, &r.ExternalID, &r.ExternalCreatedAt,
		&r.Origin, &rawJSON, &r.PlaceholderEmail, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &r.ActionTags); err != nil {
		return nil, eris.Wrap(err, "unmarshal action tags")
	}
	if r.ActionTags == nil {
		r.ActionTags = []string{}
	}
	if err := unmarshalJSONColumns(&r.Lead, []byte(utmsJSON.String), []byte(rawJSON.String)); err != nil {
		return nil, err
	}
	return &r, nil
}

func sqliteJSONColumns(l model.Lead) (tags string, utms, raw sql.NullString, err error) {
	tagsJSON, err := json.Marshal(l.ActionTags)
	if err != nil {
		return "", utms, raw, eris.Wrap(err, "marshal action tags")
	}
	u, r, err := marshalJSONColumns(l)
	if err != nil {
		return "", utms, raw, err
	}
	if u != nil {
		utms = sql.NullString{String: string(u), Valid: true}
	}
	if r != nil {
		raw = sql.NullString{String: string(r), Valid: true}
	}
	return string(tagsJSON), utms, raw, nil
}
