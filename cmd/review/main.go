// Command review runs one sync and classification pass and prints every
// record it labelled.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"basegraph.app/tally/common/id"
	"basegraph.app/tally/common/logger"
	"basegraph.app/tally/common/otel"
	"basegraph.app/tally/core/config"
	"basegraph.app/tally/internal/model"
	"basegraph.app/tally/internal/service"
)

var fetchOnly bool

var rootCmd = &cobra.Command{
	Use:   "review",
	Short: "Sync change requests and classify the uncategorized ones",
	Long: `review runs one incremental sync against GitLab, asks the classifier
LLM to label every change request without a category and prints the records
it updated. With --fetch-only it prints the synced set and stops there.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), fetchOnly)
	},
}

func init() {
	rootCmd.Flags().BoolVar(&fetchOnly, "fetch-only", false, "sync and print change requests without classifying")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.ErrorContext(ctx, "review failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, fetchOnly bool) error {
	cfg, err := config.Load(config.ServiceTypeReview)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		return fmt.Errorf("initializing otel: %w", err)
	}
	defer telemetry.Shutdown(context.Background()) //nolint:errcheck

	logger.Setup(cfg)

	if err := id.Init(3); err != nil {
		return fmt.Errorf("initializing id generator: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Cache.Backend == config.CacheBackendRedis {
		opts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
		if err != nil {
			return fmt.Errorf("parsing redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	services, err := service.New(ctx, cfg, redisClient)
	if err != nil {
		return err
	}
	defer services.Close()

	if fetchOnly {
		crs, err := services.Engine().Fetch(ctx)
		if err != nil {
			return err
		}
		for _, cr := range crs {
			printRecord("FETCHED", cr)
		}
		return nil
	}

	reviewer, err := services.Reviewer()
	if err != nil {
		return err
	}

	report, err := reviewer.Review(ctx)
	for _, cr := range report.Updated {
		printRecord("UPDATED", cr)
	}
	fmt.Printf("examined=%d classified=%d failed=%d written_back=%d write_back_failed=%d\n",
		report.Examined, report.Classified, report.Failed, report.WrittenBack, report.WriteBackFailed)
	return err
}

func printRecord(prefix string, cr model.ChangeRequest) {
	fmt.Printf("%s: id=%d mr=%d author=%s category=%s sub_category=%s url=%s\n",
		prefix, cr.ID, cr.MergeRequestID, cr.Author, cr.CategoryOrEmpty(), cr.SubCategoryOrEmpty(), cr.URL)
}
