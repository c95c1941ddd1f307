package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"lifedash-backend/config"
	"lifedash-backend/logger"
	"lifedash-backend/models"
	"lifedash-backend/repository"
	"lifedash-backend/service"
	"lifedash-backend/storage"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "lifedash-admin",
	Short:         "Administrative tasks for the life dashboard backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := godotenv.Load(); err != nil {
		_ = godotenv.Load("../../.env")
	}

	rootCmd.AddCommand(createSchemaCmd(), seedUserCmd(), exportCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func createSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-schema",
		Short: "Create the document and chat tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			stores, err := repository.OpenStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer stores.Close()

			if err := stores.CreateSchema(ctx); err != nil {
				return err
			}
			fmt.Printf("✓ Schema ready (%s: %s)\n", cfg.StoreType, cfg.DocumentStoreID())
			return nil
		},
	}
}

func seedUserCmd() *cobra.Command {
	var userIDFlag, values string

	cmd := &cobra.Command{
		Use:   "seed-user",
		Short: "Write an onboarded dashboard with default scores",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := uuid.New()
			if userIDFlag != "" {
				parsed, err := uuid.Parse(userIDFlag)
				if err != nil {
					return fmt.Errorf("invalid --user-id: %w", err)
				}
				userID = parsed
			}

			return withDashboardRepository(cmd.Context(), func(ctx context.Context, repo *repository.DashboardRepository, lg *logger.Logger) error {
				dashboard := service.NewDashboardService(
					service.DashboardWithPersistence(repo),
					service.DashboardWithLogger(lg),
				)
				defer dashboard.Close()

				result, err := dashboard.CompleteOnboarding(ctx, userID, values, service.OnboardingResult{
					Scores:               models.DefaultScores(),
					DashboardDescription: "Seeded dashboard",
				})
				if err != nil {
					return err
				}
				fmt.Printf("✓ Seeded user %s (version %d)\n", userID, result.State.Version)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userIDFlag, "user-id", "", "User ID (random when empty)")
	cmd.Flags().StringVar(&values, "values", "Health, friendships and meaningful work", "Values and aspirations to record")
	return cmd
}

func exportCmd() *cobra.Command {
	var userIDFlag string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a user's dashboard to the configured storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(userIDFlag)
			if err != nil {
				return fmt.Errorf("invalid --user-id: %w", err)
			}

			exportStorage, err := storage.NewStorageFromEnv()
			if err != nil {
				return err
			}

			return withDashboardRepository(cmd.Context(), func(ctx context.Context, repo *repository.DashboardRepository, lg *logger.Logger) error {
				exports := service.NewExportService(
					service.ExportWithSource(repo),
					service.ExportWithStorage(exportStorage),
					service.ExportWithLogger(lg),
				)
				result, err := exports.Export(ctx, userID)
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userIDFlag, "user-id", "", "User ID (required)")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

// withDashboardRepository opens the configured store and change feed for the
// duration of fn
func withDashboardRepository(parent context.Context, fn func(ctx context.Context, repo *repository.DashboardRepository, lg *logger.Logger) error) error {
	cfg := config.Load()
	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer lg.Sync()

	ctx, cancel := context.WithTimeout(parent, time.Minute)
	defer cancel()

	stores, err := repository.OpenStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	notifier, err := repository.OpenNotifier(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer notifier.Close()

	return fn(ctx, repository.NewDashboardRepository(stores.Documents, stores.Chats, notifier, lg), lg)
}
