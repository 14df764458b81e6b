package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/intellivoid/coffeehouse-api/internal"
	"github.com/intellivoid/coffeehouse-api/internal/repository"
)

var subscriptionID int64

var rootCmd = &cobra.Command{
	Use:   "accesskey",
	Short: "Manage CoffeeHouse API access keys",
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue a new access key",
	Long:  `Creates an active access record and prints its key. The key is shown once; only its hash is stored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return createKey(cmd.Context(), subscriptionID)
	},
}

func init() {
	createCmd.Flags().Int64Var(&subscriptionID, "subscription", 0, "subscription ID to link the new key to")
	rootCmd.AddCommand(createCmd)
}

func createKey(ctx context.Context, subscriptionID int64) error {
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}
	logger := internal.NewLogger(os.Stderr, cfg.Env, cfg.LogLevel)

	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := internal.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	key, err := repository.GenerateAccessKey()
	if err != nil {
		return err
	}

	records := repository.NewAccessRecords(db)
	rec, err := records.CreateAccessRecord(ctx, key, nil)
	if err != nil {
		return err
	}
	if subscriptionID > 0 {
		if err := records.LinkSubscription(ctx, rec.ID, subscriptionID); err != nil {
			return err
		}
	}

	logger.Info("Access key created",
		"access_record_id", rec.ID,
		"public_id", rec.PublicID,
		"subscription_id", subscriptionID,
	)
	fmt.Println(key)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
