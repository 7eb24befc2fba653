package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/verdantly/proposal-cli/internal/store"
)

var (
	proposalsClient string
	proposalsLimit  int
)

// currency renders dollar amounts with thousands separators for terminal
// output.
var currency = message.NewPrinter(language.English)

var proposalsCmd = &cobra.Command{
	Use:   "proposals",
	Short: "Inspect persisted proposals",
}

var proposalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted proposals",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		proposals, err := st.ListProposals(ctx, store.ProposalFilter{
			Client: proposalsClient,
			Limit:  proposalsLimit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCLIENT\tBUDGET\tALLOCATED\tREMAINING\tITEMS\tCREATED")
		for _, p := range proposals {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
				p.ID, p.ClientName,
				currency.Sprintf("$%.2f", p.BudgetLimit),
				currency.Sprintf("$%.2f", p.Proposal.Allocated),
				currency.Sprintf("$%.2f", p.RemainingBudget),
				len(p.Proposal.LineItems),
				p.CreatedAt.Format("2006-01-02 15:04"),
			)
		}
		return w.Flush()
	},
}

var proposalsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one proposal in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		p, err := st.GetProposal(ctx, args[0])
		if err != nil {
			return err
		}

		currency.Printf("Client:    %s\n", p.ClientName)
		currency.Printf("Budget:    $%.2f\n", p.BudgetLimit)
		currency.Printf("Allocated: $%.2f\n", p.Proposal.Allocated)
		currency.Printf("Remaining: $%.2f\n", p.RemainingBudget)
		currency.Printf("Plastic saved:  %.2f g\n", p.Impact.TotalPlasticSaved)
		currency.Printf("Carbon avoided: %.3f kg CO2e\n", p.Impact.TotalCarbonAvoided)
		fmt.Println()

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ITEM\tNAME\tQTY\tUNIT PRICE\tTOTAL")
		for _, li := range p.Proposal.LineItems {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				li.ItemID, li.Name, li.Quantity,
				currency.Sprintf("$%.2f", li.UnitPrice),
				currency.Sprintf("$%.2f", li.TotalCost),
			)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Println()
		fmt.Println("Summary:", p.Proposal.Summary)
		fmt.Println("Impact:", p.Proposal.ImpactNarrative)
		return nil
	},
}

var proposalsJSON bool

var interactionsCmd = &cobra.Command{
	Use:   "interactions",
	Short: "List recorded AI exchanges",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.ListInteractions(ctx, proposalsLimit)
		if err != nil {
			return err
		}

		if proposalsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tMODEL\tVERSION\tCREATED")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				e.ID, e.Model, e.ModuleVersion, e.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

func init() {
	proposalsCmd.PersistentFlags().StringVar(&proposalsClient, "filter-client", "", "filter by client name")
	proposalsCmd.PersistentFlags().IntVar(&proposalsLimit, "limit", 50, "max rows")
	proposalsCmd.AddCommand(proposalsListCmd)
	proposalsCmd.AddCommand(proposalsShowCmd)

	interactionsCmd.Flags().BoolVar(&proposalsJSON, "json", false, "emit raw JSON including prompts and responses")
	interactionsCmd.Flags().IntVar(&proposalsLimit, "limit", 50, "max rows")

	rootCmd.AddCommand(proposalsCmd)
	rootCmd.AddCommand(interactionsCmd)
}
