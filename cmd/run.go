package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	exceltopdf "github.com/yincangshiwei/ExcelToPDFTemplate"
	"github.com/yincangshiwei/ExcelToPDFTemplate/convert"
)

func newRunCmd() *cobra.Command {
	var (
		presetPath   string
		excelPath    string
		templatePath string
		outputDir    string
		sheetName    string
		outputPNG    bool
		outputPPT    bool
		convTimeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fill one document per worksheet row",
		Long: `Runs a batch: opens the workbook, maps each data row through the
preset's field mapping, and writes one filled PDF per row. Row
failures are reported at the end and never stop the remaining rows.`,
		Example: `  # Run a saved preset
  exceltopdf run --preset orders.json

  # Override the preset's paths
  exceltopdf run --preset orders.json --excel new.xlsx --out ./out

  # Also rasterize each PDF to PNG
  exceltopdf run --preset orders.json --png`,
		RunE: func(cmd *cobra.Command, args []string) error {
			preset := exceltopdf.DefaultPreset()
			if presetPath != "" {
				p, err := exceltopdf.LoadPreset(presetPath)
				if err != nil {
					return err
				}
				preset = p
			}
			if excelPath != "" {
				preset.ExcelPath = excelPath
			}
			if templatePath != "" {
				preset.TemplatePath = templatePath
			}
			if outputDir != "" {
				preset.OutputDir = outputDir
			}
			if sheetName != "" {
				preset.SheetName = sheetName
			}
			if preset.ExcelPath == "" || preset.TemplatePath == "" {
				return fmt.Errorf("an excel file and a template are required, via --preset or flags")
			}
			if preset.OutputDir == "" {
				preset.OutputDir = "output"
			}

			var convs []convert.Converter
			if outputPNG || preset.OutputPNG {
				convs = append(convs, convert.NewPNGConverter())
			}
			if outputPPT || preset.OutputPPT {
				convs = append(convs, convert.NewSlideConverter())
			}

			opts := []exceltopdf.Option{exceltopdf.WithPreset(preset)}
			if len(convs) > 0 {
				opts = append(opts, exceltopdf.WithConverter(
					convert.WithTimeout(convert.Multi(convs...), convTimeout)))
			}

			batch := exceltopdf.NewBatch(opts...)
			report, err := batch.Run(cmd.Context(), preset.ExcelPath, preset.TemplatePath, preset.OutputDir)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), report.Summary())
			for _, re := range report.Errors {
				fmt.Fprintln(cmd.ErrOrStderr(), re.Error())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&presetPath, "preset", "c", "", "Preset file (JSON or YAML)")
	cmd.Flags().StringVar(&excelPath, "excel", "", "Excel workbook (overrides preset)")
	cmd.Flags().StringVar(&templatePath, "template", "", "PDF template descriptor (overrides preset)")
	cmd.Flags().StringVarP(&outputDir, "out", "o", "", "Output directory (overrides preset)")
	cmd.Flags().StringVar(&sheetName, "sheet", "", "Sheet name (overrides preset)")
	cmd.Flags().BoolVar(&outputPNG, "png", false, "Also convert each PDF to PNG")
	cmd.Flags().BoolVar(&outputPPT, "ppt", false, "Also convert each PDF to PPTX")
	cmd.Flags().DurationVar(&convTimeout, "convert-timeout", time.Minute, "Per-document conversion timeout")

	return cmd
}
