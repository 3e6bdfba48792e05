package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yincangshiwei/ExcelToPDFTemplate/xlimg"
)

func newImagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images WORKBOOK",
		Short: "List the images embedded in a workbook",
		Long: `Indexes a workbook's embedded images and prints what was found:
DISPIMG image IDs with their sizes, and cell-anchored pictures with
the cell each one covers.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := xlimg.BuildIndex(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, id := range idx.IDs() {
				rec, _ := idx.ByID(id)
				fmt.Fprintf(out, "id\t%s\t%s\t%d bytes\n", id, rec.Ext, len(rec.Bytes))
			}
			for _, ref := range idx.Anchors() {
				rec, _ := idx.AtAnchor(ref)
				fmt.Fprintf(out, "anchor\t%s\t%s\t%d bytes\n", ref, rec.Ext, len(rec.Bytes))
			}
			return nil
		},
	}
	return cmd
}
