package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/flemzord/llmrelay/internal/model"
	"github.com/flemzord/llmrelay/pkg/app"
	"github.com/spf13/cobra"
)

func modelsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List known models with their limits and prices",
		Long: "List known models with their limits and prices.\n" +
			"Configured models and pricing are included when a configuration file is found.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := model.NewRegistry()
			cfg, _, err := app.LoadConfig(flags.configPath)
			switch {
			case err == nil:
				reg = app.NewRegistry(cfg)
			case flags.configPath != "":
				return err
			}
			return printModels(cmd.OutOrStdout(), reg.List())
		},
	}
}

// printModels renders descriptors as a table with per-million prices.
func printModels(w io.Writer, models []model.Descriptor) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCONTEXT\tMAX OUTPUT\tINPUT $/M\tOUTPUT $/M\tCACHE W $/M\tCACHE R $/M\tFLAGS")
	for _, d := range models {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%.2f\t%.2f\t%.2f\t%.2f\t%s\n",
			d.ID,
			d.ContextWindow,
			maxOutput(d.MaxOutputTokens),
			perMillion(d.InputPrice),
			perMillion(d.OutputPrice),
			perMillion(d.CacheWritePrice),
			perMillion(d.CacheReadPrice),
			modelFlags(d),
		)
	}
	return tw.Flush()
}

func maxOutput(n int) string {
	if n < 0 {
		return "unbounded"
	}
	return fmt.Sprint(n)
}

func perMillion(p float64) float64 { return p * 1_000_000 }

func modelFlags(d model.Descriptor) string {
	var flags []string
	if d.SupportsImages {
		flags = append(flags, "images")
	}
	if d.SupportsPromptCache {
		flags = append(flags, "cache")
	}
	if d.RequiresAlternateRoleFormat {
		flags = append(flags, "alternate-roles")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}
