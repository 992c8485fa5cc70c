package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/upb/permission-engine/app"
	"github.com/upb/permission-engine/config"
	"github.com/upb/permission-engine/models"
	"github.com/upb/permission-engine/repositories"
	"github.com/upb/permission-engine/utils"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// profileDocument is one profile as written in a profiles file
type profileDocument struct {
	UserID          string   `yaml:"userId"`
	PermissionLevel string   `yaml:"permissionLevel"`
	Permissions     []string `yaml:"permissions"`
	DisplayName     string   `yaml:"displayName"`
	Department      string   `yaml:"department"`
	Role            string   `yaml:"role"`
	IsActive        *bool    `yaml:"isActive"`
}

type profilesFile struct {
	Profiles []profileDocument `yaml:"profiles"`
}

// loadProfiles reads and validates a profiles file. isActive defaults to true.
func loadProfiles(path string) ([]*models.UserPermissionProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}

	var doc profilesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse profiles file %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(doc.Profiles))
	profiles := make([]*models.UserPermissionProfile, 0, len(doc.Profiles))
	for i, p := range doc.Profiles {
		if !utils.IsValidUserID(p.UserID) {
			return nil, fmt.Errorf("profile %d: invalid userId %q", i, p.UserID)
		}
		if _, dup := seen[p.UserID]; dup {
			return nil, fmt.Errorf("profile %d: duplicate userId %q", i, p.UserID)
		}
		seen[p.UserID] = struct{}{}

		level, err := models.ParsePermissionLevel(p.PermissionLevel)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", p.UserID, err)
		}

		active := true
		if p.IsActive != nil {
			active = *p.IsActive
		}

		profiles = append(profiles, &models.UserPermissionProfile{
			UserID:          p.UserID,
			PermissionLevel: level,
			Permissions:     append([]string(nil), p.Permissions...),
			DisplayName:     p.DisplayName,
			Department:      p.Department,
			Role:            p.Role,
			IsActive:        active,
		})
	}
	return profiles, nil
}

// openStores connects to the stores selected by the process environment
func openStores(ctx context.Context) (*repositories.Repositories, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, err
	}
	return app.OpenRepositories(ctx, cfg, zap.NewNop())
}

func newProfilesCmd(_ *globalOptions) *cobra.Command {
	profilesCmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage provisioned user profiles",
	}

	var file string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Create or replace profiles in the configured profile store",
		Long: `Create or replace profiles in the profile store selected by PROFILE_STORE.
Connection settings are read from the environment the same way the server reads them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := loadProfiles(file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			repos, err := openStores(ctx)
			if err != nil {
				return err
			}
			defer repos.Close()

			if err := repos.Profiles.ImportProfiles(ctx, profiles); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %d profiles\n",
				color.New(color.FgGreen, color.Bold).Sprint("IMPORTED"), len(profiles))
			return nil
		},
	}
	importCmd.Flags().StringVarP(&file, "file", "f", "", "Profiles YAML file")
	_ = importCmd.MarkFlagRequired("file")

	profilesCmd.AddCommand(importCmd)
	return profilesCmd
}
