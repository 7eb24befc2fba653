// Package pipeline orchestrates proposal generation: prompt the provider,
// record the exchange, verify the output against the catalog, and feed
// rejection reasons back into bounded retry rounds.
package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/verdantly/proposal-cli/internal/fault"
	"github.com/verdantly/proposal-cli/internal/impact"
	"github.com/verdantly/proposal-cli/internal/model"
	"github.com/verdantly/proposal-cli/internal/prompt"
	"github.com/verdantly/proposal-cli/internal/provider"
	"github.com/verdantly/proposal-cli/internal/store"
	"github.com/verdantly/proposal-cli/internal/verify"
)

// Completer is the provider-client surface the pipeline depends on.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (*provider.Completion, error)
}

// Config controls the feedback retry loop.
type Config struct {
	// MaxRounds bounds the verification retry loop. This recovers from
	// model mistakes, not infrastructure failures; keep it small.
	// Default: 3.
	MaxRounds int

	// ModuleVersion is stamped onto every interaction log entry.
	ModuleVersion string
}

// Pipeline is the single entry point the boundary layer consumes.
type Pipeline struct {
	store store.Store
	ai    Completer
	cfg   Config
}

// New creates a Pipeline.
func New(st store.Store, ai Completer, cfg Config) *Pipeline {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 3
	}
	return &Pipeline{store: st, ai: ai, cfg: cfg}
}

// Generate runs one full proposal generation: catalog read, up to MaxRounds
// provider rounds with verification feedback, impact computation, and a
// single persistence write. Every failure carries a fault.Kind.
func (p *Pipeline) Generate(ctx context.Context, req model.ProposalRequest) (*model.PersistedProposal, error) {
	if err := req.Validate(); err != nil {
		return nil, fault.Wrap(fault.KindPrecondition, err, "invalid proposal request")
	}

	items, err := p.store.ListCatalogItems(ctx)
	if err != nil {
		return nil, fault.Wrap(fault.KindPrecondition, err, "catalog read failed")
	}
	if len(items) == 0 {
		return nil, fault.New(fault.KindPrecondition, "catalog is empty")
	}
	catalog := model.BuildIndex(items)

	systemPrompt := prompt.BuildSystemPrompt(items, req.BudgetLimit)
	userPrompt := prompt.BuildUserPrompt(req)

	var lastRejection error
	for round := 1; round <= p.cfg.MaxRounds; round++ {
		comp, err := p.ai.Complete(ctx, systemPrompt, userPrompt)
		if err != nil {
			// Provider failures are the client's retry domain, not ours.
			return nil, err
		}

		// The exchange must be durably recorded before any parsing; a
		// failed write aborts the whole attempt.
		entry := model.InteractionLogEntry{
			SystemPrompt:  systemPrompt,
			UserPrompt:    userPrompt,
			RawResponse:   comp.Text,
			Model:         comp.Model,
			ModuleVersion: p.cfg.ModuleVersion,
		}
		if err := p.store.RecordInteraction(ctx, entry); err != nil {
			return nil, fault.Wrap(fault.KindLogging, err, "interaction log write failed")
		}

		verified, err := verify.Verify(comp.Text, catalog, req.BudgetLimit)
		if err != nil {
			f, ok := fault.As(err)
			if !ok || f.Kind != fault.KindRejection {
				return nil, err
			}
			lastRejection = err
			zap.L().Warn("pipeline: proposal rejected",
				zap.Int("round", round),
				zap.Int("max_rounds", p.cfg.MaxRounds),
				zap.String("reason", f.Reason),
			)
			if round < p.cfg.MaxRounds {
				userPrompt = prompt.AppendFeedback(userPrompt, f.Reason, req.BudgetLimit)
			}
			continue
		}

		computed, err := impact.Compute(verified.LineItems, catalog)
		if err != nil {
			return nil, err
		}

		persisted := assemble(req, *verified, *computed, model.Provenance{
			SystemPrompt: systemPrompt,
			UserPrompt:   userPrompt,
			RawResponse:  comp.Text,
			Model:        comp.Model,
		})
		id, err := p.store.CreateProposal(ctx, persisted)
		if err != nil {
			return nil, fault.Wrap(fault.KindPersistence, err, "proposal write failed")
		}
		persisted.ID = id

		zap.L().Info("pipeline: proposal accepted",
			zap.String("proposal_id", id),
			zap.Int("round", round),
			zap.Int("line_items", len(verified.LineItems)),
			zap.Float64("allocated", verified.Allocated),
			zap.Float64("remaining_budget", persisted.RemainingBudget),
		)
		return &persisted, nil
	}

	return nil, lastRejection
}
