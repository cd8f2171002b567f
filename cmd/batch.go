package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/talentops/cdd-analyzer/internal/batchio"
	"github.com/talentops/cdd-analyzer/internal/logger"
	"github.com/talentops/cdd-analyzer/internal/scoring"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var batchCmd = &cobra.Command{
	Use:   "batch <links-file>",
	Short: "Score a CSV of paper links and write the results as CSV",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		batch(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringP("output", "o", "results.csv", "file to write the scored rows to")
	batchCmd.Flags().BoolP("auto-aprove", "y", false, "do not ask for confirmation before scoring")
}

func batch(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	zlog, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		zlog.Fatal("getting a config", zap.Error(err))
	}

	zlog.Info("starting the cdd-analyzer", zap.String("version", version))

	linksFile, err := os.Open(args[0])
	if err != nil {
		zlog.Fatal("opening links file", zap.Error(err))
	}

	items, err := batchio.ReadLinks(linksFile)
	linksFile.Close()
	if err != nil {
		zlog.Fatal("reading links file", zap.Error(err))
	}

	zlog.Info("loaded batch input", zap.Int("links", len(items)))

	if cmd.Flag("auto-aprove").Value.String() == "false" {
		prompt := promptui.Select{
			Label: fmt.Sprintf("Score %d links?", len(items)),
			Items: []string{PromptYes, PromptNo},
		}

		_, action, err := prompt.Run()
		if err != nil {
			zlog.Fatal("exiting", zap.Error(err))
		}

		if action == PromptNo {
			zlog.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
	}

	svc, err := buildServices(ctx, config, zlog)
	if err != nil {
		zlog.Fatal("building services", zap.Error(err))
	}

	svc.scheduler.Start(ctx)
	defer svc.scheduler.Stop()

	concurrency := 0
	if config.Batch != nil {
		concurrency = config.Batch.Concurrency
	}

	scorer := scoring.NewBatchScorer(svc.generator, svc.compiler, concurrency, zlog)

	results := scorer.Run(ctx, items)

	failed := 0
	for _, result := range results {
		if result.Summary == scoring.PlaceholderSummary {
			failed++
		}
	}

	outputFile := cmd.Flag("output").Value.String()

	out, err := os.Create(outputFile)
	if err != nil {
		zlog.Fatal("creating output file", zap.Error(err))
	}
	defer out.Close()

	if err := batchio.WriteResults(out, results); err != nil {
		zlog.Fatal("writing results", zap.Error(err))
	}

	zlog.Info("results written",
		zap.String("filename", outputFile),
		zap.Int("scored", len(results)-failed),
		zap.Int("needs_manual_review", failed),
	)
}
