// Package cmd implements the permctl CLI commands.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/upb/permission-engine/config"
	"gopkg.in/yaml.v3"
)

// Version is set at build time
var Version = "0.1.0"

// globalOptions are the persistent flags shared by every command
type globalOptions struct {
	outputFormat string
	env          string
	policyFile   string
}

// NewRootCmd builds the permctl command tree
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "permctl",
		Short: "Inspect permission policies and evaluate requests offline",
		Long: `permctl works with the permission engine's policies and profiles.

It prints and validates per-environment policies, evaluates a permission
request locally against a policy, and imports provisioned user profiles
into the configured profile store.`,
		Version:      Version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&opts.outputFormat, "output", "o", "yaml", "Output format: yaml, json")
	root.PersistentFlags().StringVar(&opts.env, "env", string(config.EnvDevelopment), "Policy environment: "+environmentNames())
	root.PersistentFlags().StringVar(&opts.policyFile, "policy-file", "", "Policy file replacing the built-in policy")

	root.AddCommand(newPolicyCmd(opts))
	root.AddCommand(newCheckCmd(opts))
	root.AddCommand(newProfilesCmd(opts))

	return root
}

// writeOutput encodes data in the selected format
func writeOutput(w io.Writer, format string, data interface{}) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	case "yaml":
		out, err := yaml.Marshal(data)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	default:
		return fmt.Errorf("unsupported output format %q: use yaml or json", format)
	}
}

func environmentNames() string {
	envs := config.AllEnvironments()
	names := make([]string, len(envs))
	for i, env := range envs {
		names[i] = string(env)
	}
	return strings.Join(names, ", ")
}
