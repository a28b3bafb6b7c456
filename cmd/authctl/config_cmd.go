package main

import (
	"encoding/json"
	"fmt"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/teeline/authcore"
)

// NewConfigCmd creates the config command group.
func NewConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	var failOn string
	check := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and report weak settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fc, err := loadConfig(opts)
			if err != nil {
				return err
			}
			cfg, err := fc.engineConfig()
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(cfg.SecurityReport()); err != nil {
				return err
			}

			lint := cfg.Lint()
			for _, w := range lint {
				cmd.Printf("%-5s %s: %s\n", w.Severity, w.Code, w.Message)
			}

			threshold, err := parseSeverity(failOn)
			if err != nil {
				return err
			}
			return lint.AsError(threshold)
		},
	}
	check.Flags().StringVar(&failOn, "fail-on", "high", "lowest lint severity that fails the check: info, warn or high")
	cmd.AddCommand(check)

	return cmd
}

func parseSeverity(s string) (authcore.LintSeverity, error) {
	switch s {
	case "info":
		return authcore.LintInfo, nil
	case "warn":
		return authcore.LintWarn, nil
	case "high":
		return authcore.LintHigh, nil
	default:
		return 0, oops.Code("CONFIG_INVALID").Wrap(fmt.Errorf("unknown severity %q", s))
	}
}
