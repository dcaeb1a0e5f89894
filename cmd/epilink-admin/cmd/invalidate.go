package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/epilink/epilink/internal/app"
	"github.com/epilink/epilink/internal/config"
	"github.com/epilink/epilink/internal/infra/jobs"
	"github.com/epilink/epilink/internal/infra/redis"
	"github.com/epilink/epilink/pkg/logger"
)

var (
	flagResync bool
	flagNotify bool
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate <discord-id>",
	Short: "Drop a user's cached rule results",
	Long: `invalidate removes every cached rule result for the given user, forcing
the next role computation to re-run all rules. With --resync, a durable
resync task is also enqueued so the running engine recomputes and
reapplies the user's roles on every monitored guild.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		discordID := args[0]

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logCfg := logger.DefaultConfig()
		if !flagVerbose {
			logCfg.Level = "warn"
		}
		log := logger.New(logCfg)

		client, err := redis.New(&cfg.Redis, log)
		if err != nil {
			return err
		}
		defer client.Close()

		cache, err := redis.NewCache[[]string](client, app.RuleCachePrefix)
		if err != nil {
			return err
		}

		if err := cache.DeletePattern(cmd.Context(), discordID+":*"); err != nil {
			return fmt.Errorf("invalidate cache: %w", err)
		}
		fmt.Printf("cached rule results dropped for %s\n", discordID)

		if !flagResync {
			return nil
		}

		jobClient := jobs.NewClient(jobs.ClientConfig{
			RedisAddr:     cfg.Redis.Addr(),
			RedisPassword: cfg.Redis.Password,
			RedisDB:       cfg.Redis.DB,
		}, log)
		defer jobClient.Close()

		err = jobClient.EnqueueRoleResync(cmd.Context(), jobs.RoleResyncPayload{
			DiscordID:       discordID,
			NotifyOnFailure: flagNotify,
		})
		if err != nil {
			return err
		}
		fmt.Printf("resync queued for %s\n", discordID)
		return nil
	},
}

func init() {
	invalidateCmd.Flags().BoolVar(&flagResync, "resync", false, "Also enqueue a full role resync")
	invalidateCmd.Flags().BoolVar(&flagNotify, "notify", false, "Notify the user if the resync finds them ineligible")
}
