package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/verdantly/proposal-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
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
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS catalog_items (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	category       TEXT NOT NULL,
	unit_price     DOUBLE PRECISION NOT NULL,
	plastic_saved  DOUBLE PRECISION NOT NULL DEFAULT 0,
	carbon_avoided DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS interactions (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	system_prompt  TEXT NOT NULL,
	user_prompt    TEXT NOT NULL,
	raw_response   TEXT NOT NULL,
	model          TEXT NOT NULL,
	module_version TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS proposals (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	client_name      TEXT NOT NULL DEFAULT '',
	budget_limit     DOUBLE PRECISION NOT NULL,
	proposal         JSONB NOT NULL,
	impact           JSONB NOT NULL,
	remaining_budget DOUBLE PRECISION NOT NULL,
	provenance       JSONB NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_catalog_items_category ON catalog_items(category);
CREATE INDEX IF NOT EXISTS idx_proposals_client ON proposals(client_name);
CREATE INDEX IF NOT EXISTS idx_proposals_created ON proposals(created_at);
CREATE INDEX IF NOT EXISTS idx_interactions_created ON interactions(created_at);
`

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

func (s *PostgresStore) ListCatalogItems(ctx context.Context) ([]model.CatalogItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, category, unit_price, plastic_saved, carbon_avoided FROM catalog_items ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list catalog items")
	}
	defer rows.Close()

	var items []model.CatalogItem
	for rows.Next() {
		var item model.CatalogItem
		if err := rows.Scan(&item.ID, &item.Name, &item.Category, &item.UnitPrice, &item.PlasticSavedPerUnit, &item.CarbonAvoidedPerUnit); err != nil {
			return nil, eris.Wrap(err, "postgres: scan catalog item")
		}
		items = append(items, item)
	}
	return items, eris.Wrap(rows.Err(), "postgres: iterate catalog items")
}

func (s *PostgresStore) GetCatalogItem(ctx context.Context, id string) (*model.CatalogItem, error) {
	var item model.CatalogItem
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, category, unit_price, plastic_saved, carbon_avoided FROM catalog_items WHERE id = $1`,
		id,
	).Scan(&item.ID, &item.Name, &item.Category, &item.UnitPrice, &item.PlasticSavedPerUnit, &item.CarbonAvoidedPerUnit)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get catalog item %s", id)
	}
	return &item, nil
}

func (s *PostgresStore) UpsertCatalogItems(ctx context.Context, items []model.CatalogItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	for _, item := range items {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO catalog_items (id, name, category, unit_price, plastic_saved, carbon_avoided, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				category = EXCLUDED.category,
				unit_price = EXCLUDED.unit_price,
				plastic_saved = EXCLUDED.plastic_saved,
				carbon_avoided = EXCLUDED.carbon_avoided,
				updated_at = EXCLUDED.updated_at`,
			item.ID, item.Name, item.Category, item.UnitPrice, item.PlasticSavedPerUnit, item.CarbonAvoidedPerUnit, now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert catalog item %s", item.ID)
		}
	}
	return len(items), nil
}

func (s *PostgresStore) RecordInteraction(ctx context.Context, entry model.InteractionLogEntry) error {
	id := entry.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO interactions (id, system_prompt, user_prompt, raw_response, model, module_version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, entry.SystemPrompt, entry.UserPrompt, entry.RawResponse, entry.Model, entry.ModuleVersion, createdAt,
	)
	return eris.Wrap(err, "postgres: record interaction")
}

func (s *PostgresStore) ListInteractions(ctx context.Context, limit int) ([]model.InteractionLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, system_prompt, user_prompt, raw_response, model, module_version, created_at
		 FROM interactions ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list interactions")
	}
	defer rows.Close()

	var entries []model.InteractionLogEntry
	for rows.Next() {
		var e model.InteractionLogEntry
		if err := rows.Scan(&e.ID, &e.SystemPrompt, &e.UserPrompt, &e.RawResponse, &e.Model, &e.ModuleVersion, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan interaction")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: iterate interactions")
}

func (s *PostgresStore) CreateProposal(ctx context.Context, p model.PersistedProposal) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	proposalJSON, impactJSON, provenanceJSON, err := marshalProposal(p)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal proposal")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO proposals (id, client_name, budget_limit, proposal, impact, remaining_budget, provenance, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, p.ClientName, p.BudgetLimit, proposalJSON, impactJSON, p.RemainingBudget, provenanceJSON, now,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert proposal")
	}
	return id, nil
}

func (s *PostgresStore) GetProposal(ctx context.Context, id string) (*model.PersistedProposal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, client_name, budget_limit, proposal, impact, remaining_budget, provenance, created_at
		 FROM proposals WHERE id = $1`,
		id,
	)
	p, err := scanProposal(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get proposal %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get proposal %s", id)
	}
	return p, nil
}

func (s *PostgresStore) ListProposals(ctx context.Context, filter ProposalFilter) ([]model.PersistedProposal, error) {
	query := `SELECT id, client_name, budget_limit, proposal, impact, remaining_budget, provenance, created_at FROM proposals`
	var args []any
	argn := 1

	if filter.Client != "" {
		query += ` WHERE client_name = $1`
		args = append(args, filter.Client)
		argn++
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT $` + itoa(argn)
		args = append(args, filter.Limit)
		argn++
	}
	if filter.Offset > 0 {
		query += ` OFFSET $` + itoa(argn)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list proposals")
	}
	defer rows.Close()

	var proposals []model.PersistedProposal
	for rows.Next() {
		p, err := scanProposal(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan proposal")
		}
		proposals = append(proposals, *p)
	}
	return proposals, eris.Wrap(rows.Err(), "postgres: iterate proposals")
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

// marshalProposal encodes the JSON document columns of a proposal row.
func marshalProposal(p model.PersistedProposal) (proposal, impact, provenance []byte, err error) {
	if proposal, err = json.Marshal(p.Proposal); err != nil {
		return nil, nil, nil, err
	}
	if impact, err = json.Marshal(p.Impact); err != nil {
		return nil, nil, nil, err
	}
	if provenance, err = json.Marshal(p.Provenance); err != nil {
		return nil, nil, nil, err
	}
	return proposal, impact, provenance, nil
}
