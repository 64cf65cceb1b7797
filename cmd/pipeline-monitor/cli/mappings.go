package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/davarch/pipeline-monitor/internal/infrastructure/config"
	"github.com/spf13/cobra"
)

var mappingsJSON bool

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "List remote-to-project mappings from the config",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath())
		if err != nil {
			return err
		}

		if mappingsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(cfg.Mappings)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "REMOTE\tHOST\tPROJECT_PATH\tPROJECT_ID\tNAME")
		for _, m := range cfg.Mappings {
			name := m.ProjectName
			if name == "" {
				name = "(unnamed)"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.Remote, m.Host, m.ProjectPath, m.ProjectID, name)
		}
		_ = w.Flush()
		return nil
	},
}

func init() {
	mappingsCmd.Flags().BoolVar(&mappingsJSON, "json", false, "print JSON")

	rootCmd.AddCommand(mappingsCmd)
}
