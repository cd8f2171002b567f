package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/talentops/cdd-analyzer/internal/llm"
	"github.com/talentops/cdd-analyzer/internal/logger"
	"github.com/talentops/cdd-analyzer/internal/scoring"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <resume-file>",
	Short: "Score a single candidate resume, with optional paper links",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		analyze(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringArrayP("paper-url", "p", nil, "link to a representative paper, repeatable")
}

func analyze(cmd *cobra.Command, args []string) {
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

	resume, err := os.ReadFile(args[0])
	if err != nil {
		zlog.Fatal("reading resume file", zap.Error(err))
	}

	paperURLs, err := cmd.Flags().GetStringArray("paper-url")
	if err != nil {
		zlog.Fatal("reading paper-url flags", zap.Error(err))
	}

	svc, err := buildServices(ctx, config, zlog)
	if err != nil {
		zlog.Fatal("building services", zap.Error(err))
	}

	svc.scheduler.Start(ctx)
	defer svc.scheduler.Stop()

	maxLogLength := 0
	if config.LLM != nil {
		maxLogLength = config.LLM.MaxLogLength
	}

	analyzer := scoring.NewAnalyzer(svc.generator, svc.compiler, maxLogLength, zlog)

	verdict, err := analyzer.Analyze(ctx, string(resume), paperURLs)
	if err != nil {
		fatalScoringError(zlog, err)
	}

	pretty, err := json.MarshalIndent(verdict, "", "  ")
	if err != nil {
		zlog.Fatal("serializing verdict", zap.Error(err))
	}

	fmt.Println(string(pretty))
}

// fatalScoringError turns the typed scoring failures into actionable exit
// messages.
func fatalScoringError(zlog *zap.Logger, err error) {
	var malformed *llm.MalformedOutputError

	switch {
	case errors.Is(err, scoring.ErrNotReady):
		zlog.Fatal("reference documents are not loaded yet",
			zap.Error(err),
			zap.String("hint", "check feishu credentials and document tokens, then retry"),
		)
	case errors.As(err, &malformed):
		zlog.Fatal("the model reply could not be parsed, a fresh run may succeed",
			zap.Error(err),
			zap.String("snippet", malformed.Snippet),
		)
	case llm.Unavailable(err):
		zlog.Fatal("the scoring backend is unavailable", zap.Error(err))
	default:
		zlog.Fatal("scoring failed", zap.Error(err))
	}
}
