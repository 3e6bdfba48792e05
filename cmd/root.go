// Package cmd wires the command line surface: run a batch, inspect a
// template's fields, or list the images embedded in a workbook.
package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exceltopdf",
		Short: "Fill PDF form templates from Excel worksheet rows",
		Long: `exceltopdf turns each data row of an Excel worksheet into a filled
PDF document. Text fields come from column values or expressions,
image fields from pictures embedded in the worksheet, whether anchored
over a cell or referenced by a DISPIMG formula.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newFieldsCmd())
	cmd.AddCommand(newImagesCmd())

	return cmd
}
