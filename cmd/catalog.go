package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/verdantly/proposal-cli/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the product catalog",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import catalog items from a YAML seed or XLSX price sheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		items, err := catalog.LoadFile(args[0])
		if err != nil {
			return err
		}

		n, err := st.UpsertCatalogItems(ctx, items)
		if err != nil {
			return err
		}

		zap.L().Info("catalog import complete",
			zap.String("file", args[0]),
			zap.Int("items", n),
		)
		fmt.Printf("imported %d catalog items\n", n)
		return nil
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog items",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		items, err := st.ListCatalogItems(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tUNIT PRICE\tPLASTIC g/unit\tCO2e kg/unit")
		for _, item := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.2f\t%.3f\n",
				item.ID, item.Name, item.Category, item.UnitPrice,
				item.PlasticSavedPerUnit, item.CarbonAvoidedPerUnit)
		}
		return w.Flush()
	},
}

func init() {
	catalogCmd.AddCommand(catalogImportCmd)
	catalogCmd.AddCommand(catalogListCmd)
	rootCmd.AddCommand(catalogCmd)
}
