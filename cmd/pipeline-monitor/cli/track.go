package cli

import (
	"fmt"

	"github.com/davarch/pipeline-monitor/internal/application"
	"github.com/davarch/pipeline-monitor/internal/domain"
	"github.com/davarch/pipeline-monitor/internal/infrastructure/config"
	"github.com/davarch/pipeline-monitor/internal/infrastructure/credentials_fs"
	"github.com/davarch/pipeline-monitor/internal/infrastructure/gitlab_http"
	"github.com/davarch/pipeline-monitor/internal/infrastructure/logging"
	"github.com/spf13/cobra"
)

var (
	trackHost        string
	trackProjectPath string
	trackToken       string
	trackTokenKind   string
)

var trackCmd = &cobra.Command{
	Use:   "track <remote_url>",
	Short: "Create a mapping for a remote and start monitoring it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		remote := args[0]
		path := configPath()

		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		log := logging.New(cfg.Log.Path)
		defer func() { _ = log.Sync() }()

		store := config.NewStore(log, path, cfg)
		if _, ok := store.MappingByRemote(remote); ok {
			fmt.Printf("already tracked: %s\n", remote)
			return nil
		}

		gl := gitlab_http.New(log, store.ConnectTimeout())

		guess := domain.HostAndProjectPath{Host: trackHost, ProjectPath: trackProjectPath}
		if guess.Host == "" || guess.ProjectPath == "" {
			resolver := application.NewResolver(log, gl)
			resolved, ok := resolver.Resolve(cmd.Context(), remote, store.Mappings())
			if !ok {
				return fmt.Errorf("cannot resolve %q; pass --host and --project-path", remote)
			}
			if guess.Host == "" {
				guess.Host = resolved.Host
			}
			if guess.ProjectPath == "" {
				guess.ProjectPath = resolved.ProjectPath
			}
		}

		kind := domain.TokenPersonal
		if trackTokenKind == "project" {
			kind = domain.TokenProject
		}

		info, err := gl.ProjectInfo(cmd.Context(), guess.Host, guess.ProjectPath, trackToken)
		if err != nil {
			return fmt.Errorf("looking up %s on %s: %w", guess.ProjectPath, guess.Host, err)
		}
		if !info.JobsEnabled {
			fmt.Printf("note: gitlab CI appears to be disabled for %s\n", guess.ProjectPath)
		}

		if trackToken != "" {
			creds := credentials_fs.New(cfg.Credentials.Path)
			if err := creds.SetToken(remote, trackToken, kind); err != nil {
				return err
			}
		}

		if err := store.AddMapping(domain.Mapping{
			Remote:      remote,
			Host:        guess.Host,
			ProjectPath: guess.ProjectPath,
			ProjectID:   info.ID,
			ProjectName: info.Name,
		}); err != nil {
			return err
		}

		fmt.Printf("tracking %s (%s on %s)\n", remote, info.Name, guess.Host)
		return nil
	},
}

func init() {
	trackCmd.Flags().StringVar(&trackHost, "host", "", "gitlab host, e.g. https://gitlab.example.com")
	trackCmd.Flags().StringVar(&trackProjectPath, "project-path", "", "full project path, e.g. group/project")
	trackCmd.Flags().StringVar(&trackToken, "token", "", "access token for the project")
	trackCmd.Flags().StringVar(&trackTokenKind, "token-kind", "personal", "token kind: personal or project")

	trackCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if trackTokenKind != "personal" && trackTokenKind != "project" {
			return fmt.Errorf("invalid --token-kind %q", trackTokenKind)
		}
		return nil
	}

	rootCmd.AddCommand(trackCmd)
}
