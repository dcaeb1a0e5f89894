package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/epilink/epilink/internal/app"
	"github.com/epilink/epilink/internal/config"
	"github.com/epilink/epilink/internal/rules"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("epilink-admin", version)
	},
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the guild and rule configuration",
	Long: `check-config loads the guilds YAML file, builds the rule registry from
its declarative rule specs, and verifies that every rule name required
by a monitored guild resolves. Run it before deploying a configuration
change; an unresolvable rule name is a fatal deployment error.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		path := flagGuildsFile
		if path == "" {
			path = cfg.App.GuildsFile
		}

		gf, err := config.LoadGuildsFile(path)
		if err != nil {
			return err
		}

		mapping, err := gf.Mapping()
		if err != nil {
			return err
		}

		registry, err := rules.Build(gf.Rules)
		if err != nil {
			return err
		}

		if err := app.ValidateConfig(mapping, registry); err != nil {
			return err
		}

		fmt.Printf("OK: %d guild(s), %d rule(s)\n", len(mapping.GuildIDs()), registry.Len())
		if flagVerbose {
			for _, gid := range mapping.GuildIDs() {
				g, _ := mapping.Guild(gid)
				fmt.Printf("  guild %s: %d role mapping(s), rules: %v\n", gid, len(g.Roles), g.Rules)
			}
		}
		return nil
	},
}
