package cli

import (
	"fmt"

	"github.com/davarch/pipeline-monitor/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

var ignoreCmd = &cobra.Command{
	Use:   "ignore <remote_url>",
	Short: "Stop asking about a remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := args[0]
		path := configPath()

		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		for _, r := range cfg.IgnoredRemotes {
			if r == url {
				fmt.Printf("no change (%s already ignored)\n", url)
				return nil
			}
		}

		cfg.IgnoredRemotes = append(cfg.IgnoredRemotes, url)
		if err := config.Save(path, cfg); err != nil {
			return err
		}

		fmt.Printf("ignored: %s\n", url)
		return nil
	},
}

var unignoreCmd = &cobra.Command{
	Use:   "unignore <remote_url>",
	Short: "Ask about a previously ignored remote again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		url := args[0]
		path := configPath()

		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		kept := cfg.IgnoredRemotes[:0]
		removed := false
		for _, r := range cfg.IgnoredRemotes {
			if r == url {
				removed = true
				continue
			}
			kept = append(kept, r)
		}

		if !removed {
			fmt.Printf("no change (%s was not ignored)\n", url)
			return nil
		}

		cfg.IgnoredRemotes = kept
		if err := config.Save(path, cfg); err != nil {
			return err
		}

		fmt.Printf("unignored: %s\n", url)
		return nil
	},
}

func init() {
	unignoreCmd.ValidArgsFunction = func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg, err := config.Load(configPath())
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return cfg.IgnoredRemotes, cobra.ShellCompDirectiveNoFileComp
	}

	rootCmd.AddCommand(ignoreCmd)
	rootCmd.AddCommand(unignoreCmd)
}
