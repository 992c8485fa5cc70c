package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/upb/permission-engine/config"
)

func newPolicyCmd(opts *globalOptions) *cobra.Command {
	policyCmd := &cobra.Command{
		Use:   "policy",
		Short: "Show and validate environment policies",
	}

	policyCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective policy for --env",
		Long: `Print the effective policy for --env. The YAML form is keyed by
environment and can be used directly as a policy file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := config.LoadPolicy(opts.env, opts.policyFile)
			if err != nil {
				return err
			}
			if opts.outputFormat == "yaml" {
				return writeOutput(cmd.OutOrStdout(), "yaml", map[string]*config.PolicyConfig{
					string(policy.Environment): policy,
				})
			}
			return writeOutput(cmd.OutOrStdout(), opts.outputFormat, policy)
		},
	})

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a policy file block for --env",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.policyFile == "" {
				return fmt.Errorf("--policy-file is required")
			}
			policy, err := config.LoadPolicy(opts.env, opts.policyFile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s policy in %s\n",
				color.New(color.FgGreen, color.Bold).Sprint("VALID"), policy.Environment, opts.policyFile)
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&opts.policyFile, "file", "f", "", "Policy file to validate")
	policyCmd.AddCommand(validateCmd)

	return policyCmd
}
