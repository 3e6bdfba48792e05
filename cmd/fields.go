package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yincangshiwei/ExcelToPDFTemplate/pdffill"
)

func newFieldsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fields TEMPLATE",
		Short: "List a template's form fields",
		Long: `Prints the form-field names declared by a PDF template descriptor,
one per line, with the field kind. Use it to write a preset's field
mapping against the right names.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tpl, err := pdffill.LoadTemplate(args[0])
			if err != nil {
				return err
			}
			for _, f := range tpl.Fields {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tpage %d\n", f.Name, f.Kind, f.Page)
			}
			return nil
		},
	}
	return cmd
}
