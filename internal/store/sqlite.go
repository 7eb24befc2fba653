package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/verdantly/proposal-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
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
CREATE TABLE IF NOT EXISTS catalog_items (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	category       TEXT NOT NULL,
	unit_price     REAL NOT NULL,
	plastic_saved  REAL NOT NULL DEFAULT 0,
	carbon_avoided REAL NOT NULL DEFAULT 0,
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS interactions (
	id             TEXT PRIMARY KEY,
	system_prompt  TEXT NOT NULL,
	user_prompt    TEXT NOT NULL,
	raw_response   TEXT NOT NULL,
	model          TEXT NOT NULL,
	module_version TEXT NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS proposals (
	id               TEXT PRIMARY KEY,
	client_name      TEXT NOT NULL DEFAULT '',
	budget_limit     REAL NOT NULL,
	proposal         TEXT NOT NULL,
	impact           TEXT NOT NULL,
	remaining_budget REAL NOT NULL,
	provenance       TEXT NOT NULL,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_catalog_items_category ON catalog_items(category);
CREATE INDEX IF NOT EXISTS idx_proposals_client ON proposals(client_name);
CREATE INDEX IF NOT EXISTS idx_proposals_created ON proposals(created_at);
CREATE INDEX IF NOT EXISTS idx_interactions_created ON interactions(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListCatalogItems(ctx context.Context) ([]model.CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, category, unit_price, plastic_saved, carbon_avoided FROM catalog_items ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list catalog items")
	}
	defer rows.Close()

	var items []model.CatalogItem
	for rows.Next() {
		var item model.CatalogItem
		if err := rows.Scan(&item.ID, &item.Name, &item.Category, &item.UnitPrice, &item.PlasticSavedPerUnit, &item.CarbonAvoidedPerUnit); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan catalog item")
		}
		items = append(items, item)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: iterate catalog items")
}

func (s *SQLiteStore) GetCatalogItem(ctx context.Context, id string) (*model.CatalogItem, error) {
	var item model.CatalogItem
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, category, unit_price, plastic_saved, carbon_avoided FROM catalog_items WHERE id = ?`,
		id,
	).Scan(&item.ID, &item.Name, &item.Category, &item.UnitPrice, &item.PlasticSavedPerUnit, &item.CarbonAvoidedPerUnit)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get catalog item %s", id)
	}
	return &item, nil
}

func (s *SQLiteStore) UpsertCatalogItems(ctx context.Context, items []model.CatalogItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, item := range items {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO catalog_items (id, name, category, unit_price, plastic_saved, carbon_avoided, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				category = excluded.category,
				unit_price = excluded.unit_price,
				plastic_saved = excluded.plastic_saved,
				carbon_avoided = excluded.carbon_avoided,
				updated_at = excluded.updated_at`,
			item.ID, item.Name, item.Category, item.UnitPrice, item.PlasticSavedPerUnit, item.CarbonAvoidedPerUnit, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert catalog item %s", item.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert")
	}
	return len(items), nil
}

func (s *SQLiteStore) RecordInteraction(ctx context.Context, entry model.InteractionLogEntry) error {
	id := entry.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (id, system_prompt, user_prompt, raw_response, model, module_version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, entry.SystemPrompt, entry.UserPrompt, entry.RawResponse, entry.Model, entry.ModuleVersion, createdAt,
	)
	return eris.Wrap(err, "sqlite: record interaction")
}

func (s *SQLiteStore) ListInteractions(ctx context.Context, limit int) ([]model.InteractionLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, system_prompt, user_prompt, raw_response, model, module_version, created_at
		 FROM interactions ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list interactions")
	}
	defer rows.Close()

	var entries []model.InteractionLogEntry
	for rows.Next() {
		var e model.InteractionLogEntry
		if err := rows.Scan(&e.ID, &e.SystemPrompt, &e.UserPrompt, &e.RawResponse, &e.Model, &e.ModuleVersion, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan interaction")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: iterate interactions")
}

func (s *SQLiteStore) CreateProposal(ctx context.Context, p model.PersistedProposal) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	proposalJSON, err := json.Marshal(p.Proposal)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal proposal")
	}
	impactJSON, err := json.Marshal(p.Impact)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal impact")
	}
	provenanceJSON, err := json.Marshal(p.Provenance)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal provenance")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO proposals (id, client_name, budget_limit, proposal, impact, remaining_budget, provenance, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.ClientName, p.BudgetLimit, string(proposalJSON), string(impactJSON), p.RemainingBudget, string(provenanceJSON), now,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert proposal")
	}
	return id, nil
}

func (s *SQLiteStore) GetProposal(ctx context.Context, id string) (*model.PersistedProposal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, client_name, budget_limit, proposal, impact, remaining_budget, provenance, created_at
		 FROM proposals WHERE id = ?`,
		id,
	)
	p, err := scanProposal(row.Scan)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get proposal %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get proposal %s", id)
	}
	return p, nil
}

func (s *SQLiteStore) ListProposals(ctx context.Context, filter ProposalFilter) ([]model.PersistedProposal, error) {
	query := `SELECT id, client_name, budget_limit, proposal, impact, remaining_budget, provenance, created_at FROM proposals WHERE 1=1`
	var args []any

	if filter.Client != "" {
		query += ` AND client_name = ?`
		args = append(args, filter.Client)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list proposals")
	}
	defer rows.Close()

	var proposals []model.PersistedProposal
	for rows.Next() {
		p, err := scanProposal(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan proposal")
		}
		proposals = append(proposals, *p)
	}
	return proposals, eris.Wrap(rows.Err(), "sqlite: iterate proposals")
}

// scanProposal decodes one proposal row from any Scan-shaped source.
func scanProposal(scan func(dest ...any) error) (*model.PersistedProposal, error) {
	var p model.PersistedProposal
	var proposalJSON, impactJSON, provenanceJSON string

	if err := scan(&p.ID, &p.ClientName, &p.BudgetLimit, &proposalJSON, &impactJSON, &p.RemainingBudget, &provenanceJSON, &p.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(proposalJSON), &p.Proposal); err != nil {
		return nil, eris.Wrap(err, "unmarshal proposal")
	}
	if err := json.Unmarshal([]byte(impactJSON), &p.Impact); err != nil {
		return nil, eris.Wrap(err, "unmarshal impact")
	}
	if err := json.Unmarshal([]byte(provenanceJSON), &p.Provenance); err != nil {
		return nil, eris.Wrap(err, "unmarshal provenance")
	}
	return &p, nil
}
