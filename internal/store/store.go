// Package store persists the catalog, the interaction audit log, and
// generated proposals.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/verdantly/proposal-cli/internal/model"
)

// ErrNotFound marks a lookup for a row that does not exist. Callers check it
// with errors.Is to distinguish a miss from an infrastructure failure.
var ErrNotFound = eris.New("store: not found")

// ProposalFilter specifies criteria for listing proposals.
type ProposalFilter struct {
	Client string `json:"client,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the proposal pipeline.
type Store interface {
	// Catalog
	ListCatalogItems(ctx context.Context) ([]model.CatalogItem, error)
	GetCatalogItem(ctx context.Context, id string) (*model.CatalogItem, error)
	UpsertCatalogItems(ctx context.Context, items []model.CatalogItem) (int, error)

	// Interaction audit log
	RecordInteraction(ctx context.Context, entry model.InteractionLogEntry) error
	ListInteractions(ctx context.Context, limit int) ([]model.InteractionLogEntry, error)

	// Proposals
	CreateProposal(ctx context.Context, p model.PersistedProposal) (string, error)
	GetProposal(ctx context.Context, id string) (*model.PersistedProposal, error)
	ListProposals(ctx context.Context, filter ProposalFilter) ([]model.PersistedProposal, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
