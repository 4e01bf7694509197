package main

import (
	"context"
	"fmt"
	"io"

	"github.com/flemzord/llmrelay/internal/config"
	"github.com/flemzord/llmrelay/pkg/app"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func configCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	var printConfig bool
	check := &cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and load every module",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := flags.params(cmd)
			if len(args) == 1 {
				params.ConfigPath = args[0]
			}
			rt, err := app.Bootstrap(cmd.Context(), params)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(context.Background()) }()

			out := cmd.OutOrStdout()
			ids := config.Resolve(rt.Config)
			fmt.Fprintf(out, "Configuration OK (%d modules)\n", len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			fmt.Fprintln(out, "\nProvider chain:")
			for _, st := range rt.Chain.Status() {
				fmt.Fprintf(out, "  %s (%s)\n", st.Name, st.Role)
			}
			if printConfig {
				fmt.Fprintln(out)
				return printRedacted(out, rt.Config)
			}
			return nil
		},
	}
	check.Flags().BoolVar(&printConfig, "print", false, "Print the resolved configuration with secrets redacted")

	cmd.AddCommand(check)
	return cmd
}

// printRedacted writes cfg as YAML after environment expansion, with
// every secret replaced by the redaction placeholder.
func printRedacted(w io.Writer, cfg *config.Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: encoding: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("config: decoding: %w", err)
	}
	app.NewRedactor(cfg).RedactMap(tree)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(tree); err != nil {
		return err
	}
	return enc.Close()
}
