package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/verdantly/proposal-cli/internal/model"
)

var (
	generateClient   string
	generateBudget   float64
	generateFocus    []string
	generatePriority string
	generateInput    string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a verified proposal for one client, or a batch from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if generateInput != "" {
			reqs, err := loadRequests(generateInput)
			if err != nil {
				return err
			}
			return processBatch(ctx, reqs, cfg.Pipeline.BatchConcurrency, env)
		}

		req := model.ProposalRequest{
			ClientName:    generateClient,
			BudgetLimit:   generateBudget,
			CategoryFocus: generateFocus,
			Priority:      generatePriority,
		}
		proposal, err := env.Pipeline.Generate(ctx, req)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(proposal), "encode proposal")
	},
}

// loadRequests reads a YAML batch file: a list of proposal requests.
func loadRequests(path string) ([]model.ProposalRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read batch file")
	}

	var doc struct {
		Requests []model.ProposalRequest `yaml:"requests"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "parse batch file")
	}
	if len(doc.Requests) == 0 {
		return nil, eris.New("batch file contains no requests")
	}
	return doc.Requests, nil
}

// processBatch generates proposals concurrently. Individual failures are
// logged and counted, not fatal to the batch.
func processBatch(ctx context.Context, reqs []model.ProposalRequest, concurrency int, env *pipelineEnv) error {
	if concurrency <= 0 {
		concurrency = 4
	}

	zap.L().Info("processing batch",
		zap.Int("requests", len(reqs)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, req := range reqs {
		req := req
		g.Go(func() error {
			log := zap.L().With(zap.String("client", req.ClientName))

			proposal, err := env.Pipeline.Generate(gctx, req)
			if err != nil {
				failed.Add(1)
				log.Error("generation failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			log.Info("proposal generated",
				zap.String("proposal_id", proposal.ID),
				zap.Float64("allocated", proposal.Proposal.Allocated),
				zap.Float64("remaining_budget", proposal.RemainingBudget),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}

func init() {
	generateCmd.Flags().StringVar(&generateClient, "client", "", "client name")
	generateCmd.Flags().Float64Var(&generateBudget, "budget", 0, "budget limit")
	generateCmd.Flags().StringSliceVar(&generateFocus, "focus", nil, "category focus (repeatable)")
	generateCmd.Flags().StringVar(&generatePriority, "priority", "", "priority hint (e.g. plastic, carbon)")
	generateCmd.Flags().StringVar(&generateInput, "input", "", "YAML file of proposal requests for batch mode")
	rootCmd.AddCommand(generateCmd)
}
