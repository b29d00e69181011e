package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"document-intelligence/internal/domain/model"
	pg "document-intelligence/internal/infra/db/postgres"
	"document-intelligence/internal/infra/web"
	"document-intelligence/internal/infra/worker"
)

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Lease and process at most one job, then exit",
	RunE:  runRunOnce,
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Submit a job to the queue",
}

var enqueueIngestCmd = &cobra.Command{
	Use:   "ingest <document-id>",
	Short: "Queue extraction of an uploaded document",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnqueueIngest,
}

var enqueueExplainCmd = &cobra.Command{
	Use:   "explain <document-id>",
	Short: "Queue a Deep Explain generation for an output row",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnqueueExplain,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded postgres schema",
	RunE:  runMigrate,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the job API",
	RunE:  runToken,
}

var (
	explainOutputID  string
	explainRequestID string
	explainUserID    string
	tokenSubject     string
)

func init() {
	enqueueExplainCmd.Flags().StringVar(&explainOutputID, "output", "", "output row id (required)")
	enqueueExplainCmd.Flags().StringVar(&explainRequestID, "request", "", "request id stamped on the output row (required)")
	enqueueExplainCmd.Flags().StringVar(&explainUserID, "user", "", "requesting user id")
	if err := enqueueExplainCmd.MarkFlagRequired("output"); err != nil {
		panic(fmt.Sprintf("failed to mark output flag as required: %v", err))
	}
	if err := enqueueExplainCmd.MarkFlagRequired("request"); err != nil {
		panic(fmt.Sprintf("failed to mark request flag as required: %v", err))
	}
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "token subject")

	enqueueCmd.AddCommand(enqueueIngestCmd, enqueueExplainCmd)
	rootCmd.AddCommand(runOnceCmd, enqueueCmd, migrateCmd, tokenCmd)
}

func runRunOnce(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := connectStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.wirePipelines(ctx); err != nil {
		return err
	}

	proc := worker.NewJobProcessor(a.jobs, a.orch, a.events,
		time.Duration(cfg.Queue.LeaseSeconds)*time.Second, cfg.Queue.PollInterval, logger)
	claimed, err := proc.RunOnce(ctx)
	if err != nil {
		return err
	}
	if !claimed {
		logger.Info().Msg("no job available")
	}
	return nil
}

func runEnqueueIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := connectStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	job, err := a.enqueue.EnqueueIngest(ctx, args[0])
	if err != nil {
		return err
	}
	return printJob(job)
}

func runEnqueueExplain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := connectStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	job, err := a.enqueue.EnqueueExplain(ctx, model.ExplainPayload{
		DocumentID: args[0],
		OutputID:   explainOutputID,
		RequestID:  explainRequestID,
		UserID:     explainUserID,
	})
	if err != nil {
		return err
	}
	return printJob(job)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	logger.Info().Msg("schema applied")
	return nil
}

func runToken(_ *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.HTTP.AdminSecret == "" {
		return fmt.Errorf("http.admin_secret is not set")
	}
	tok, err := web.NewAuthManager(cfg.HTTP.AdminSecret, cfg.HTTP.TokenTTL).Mint(tokenSubject)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}

func printJob(job *model.ProcessingJob) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"id":          job.ID,
		"type":        job.Type,
		"document_id": job.DocumentID,
		"status":      job.Status,
	})
}
