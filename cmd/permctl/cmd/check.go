package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/upb/permission-engine/config"
	"github.com/upb/permission-engine/models"
	"github.com/upb/permission-engine/repositories"
	"github.com/upb/permission-engine/services/audit"
	"github.com/upb/permission-engine/services/evaluator"
	"github.com/upb/permission-engine/services/permission"
	"go.uber.org/zap"
)

// errDenied makes a denied verdict exit non-zero
var errDenied = errors.New("access denied")

// staticProfiles serves profiles loaded from a file
type staticProfiles map[string]*models.UserPermissionProfile

func (s staticProfiles) GetProfile(_ context.Context, userID string) (*models.UserPermissionProfile, error) {
	p, ok := s[userID]
	if !ok || !p.IsActive {
		return nil, nil
	}
	return p.Clone(), nil
}

// storeProfiles adapts a ProfileRepository to the service's lookup contract
type storeProfiles struct {
	repo repositories.ProfileRepository
}

func (s storeProfiles) GetProfile(ctx context.Context, userID string) (*models.UserPermissionProfile, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) || (err == nil && !p.IsActive) {
		return nil, nil
	}
	return p, err
}

// capturedAudit keeps the record a local evaluation would have written
type capturedAudit struct {
	record *audit.Record
}

func (c *capturedAudit) Submit(_ context.Context, rec audit.Record) error {
	c.record = &rec
	return nil
}

type checkOptions struct {
	requestFile  string
	profilesFile string
	at           string
	showAudit    bool
}

func newCheckCmd(opts *globalOptions) *cobra.Command {
	co := &checkOptions{}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate a permission request locally",
		Long: `Evaluate a permission request against the --env policy without the server.

Profiles come from --profiles when given, otherwise from the configured profile
store. Nothing is written to the audit store; --audit prints the entry that
would have been written. A denied verdict exits non-zero.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts, co)
		},
	}

	checkCmd.Flags().StringVarP(&co.requestFile, "file", "f", "-", "Request JSON file, - for stdin")
	checkCmd.Flags().StringVar(&co.profilesFile, "profiles", "", "Profiles YAML file")
	checkCmd.Flags().StringVar(&co.at, "at", "", "Evaluation time (RFC3339), default now")
	checkCmd.Flags().BoolVar(&co.showAudit, "audit", false, "Print the audit entry the evaluation would produce")

	return checkCmd
}

func runCheck(cmd *cobra.Command, opts *globalOptions, co *checkOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	raw, err := readRequest(cmd.InOrStdin(), co.requestFile)
	if err != nil {
		return err
	}

	now := time.Now
	if co.at != "" {
		at, err := time.Parse(time.RFC3339, co.at)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		now = func() time.Time { return at }
	}

	policy, err := config.LoadPolicy(opts.env, opts.policyFile)
	if err != nil {
		return err
	}
	eval, err := evaluator.New(policy)
	if err != nil {
		return err
	}

	var source permission.ProfileSource
	if co.profilesFile != "" {
		profiles, err := loadProfiles(co.profilesFile)
		if err != nil {
			return err
		}
		static := make(staticProfiles, len(profiles))
		for _, p := range profiles {
			static[p.UserID] = p
		}
		source = static
	} else {
		repos, err := openStores(ctx)
		if err != nil {
			return err
		}
		defer repos.Close()
		source = storeProfiles{repo: repos.Profiles}
	}

	captured := &capturedAudit{}
	svc := permission.NewService(source, eval, captured, now, zap.NewNop())

	result, err := svc.Check(ctx, raw)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printVerdict(out, result.Response)

	if err := writeOutput(out, opts.outputFormat, result.Response); err != nil {
		return err
	}

	if co.showAudit && captured.record != nil {
		auditLogger := audit.NewLogger(nil, policy, config.AuditConfig{}, zap.NewNop())
		if err := writeOutput(out, opts.outputFormat, auditLogger.BuildEntry(*captured.record)); err != nil {
			return err
		}
	}

	if !result.Response.Allowed {
		return errDenied
	}
	return nil
}

func readRequest(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request file: %w", err)
	}
	return raw, nil
}

func printVerdict(w io.Writer, resp models.PermissionResponse) {
	if resp.Allowed {
		fmt.Fprintln(w, color.New(color.FgGreen, color.Bold).Sprint("ALLOWED"))
		return
	}
	fmt.Fprintf(w, "%s %s\n", color.New(color.FgRed, color.Bold).Sprint("DENIED"), resp.Reason)
}
