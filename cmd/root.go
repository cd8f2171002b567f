package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/talentops/cdd-analyzer/internal/lark"
	"github.com/talentops/cdd-analyzer/internal/llm"
	"github.com/talentops/cdd-analyzer/internal/logger"
	"github.com/talentops/cdd-analyzer/internal/refcache"
	"github.com/talentops/cdd-analyzer/internal/secrets"
)

const (
	app = "cdd-analyzer"

	llmProvider = "gemini"
)

type Config struct {
	Feishu  *FeishuConfig  `mapstructure:"feishu"`
	LLM     *LLMConfig     `mapstructure:"llm"`
	Refresh *RefreshConfig `mapstructure:"refresh"`
	Batch   *BatchConfig   `mapstructure:"batch"`
}

type FeishuConfig struct {
	BaseURL          string `mapstructure:"base-url"`
	AppID            string `mapstructure:"app-id"`
	AppSecretFile    string `mapstructure:"app-secret-file"`
	RubricToken      string `mapstructure:"rubric-token"`
	PaperPolicyToken string `mapstructure:"paper-policy-token"`
	TagCatalogToken  string `mapstructure:"tag-catalog-token"`
}

type LLMConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type RefreshConfig struct {
	TokenInterval    time.Duration `mapstructure:"token-interval"`
	DocumentInterval time.Duration `mapstructure:"document-interval"`
	PromptInterval   time.Duration `mapstructure:"prompt-interval"`
	WarmupTimeout    time.Duration `mapstructure:"warmup-timeout"`
}

type BatchConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "cdd-analyzer scores candidates against externally maintained review rubrics",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("feishu.app-secret-file", "FEISHU_APP_SECRET_FILE"); err != nil {
		log.Fatalf("binding FEISHU_APP_SECRET_FILE environment variable: %v", err)
	}
	if err := viper.BindEnv("llm.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is cdd-analyzer.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Config needed only for the scoring commands. If there is no config, we can skip initialization
	if analyzeCmd.CalledAs() == "" && batchCmd.CalledAs() == "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}

// services bundles the wired reference cache and model client shared by the
// analyze and batch commands.
type services struct {
	scheduler *refcache.Scheduler
	compiler  *refcache.Compiler
	generator *llm.Generator
}

func buildServices(ctx context.Context, config *Config, zlog *zap.Logger) (*services, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.Feishu == nil {
		return nil, fmt.Errorf("feishu section is required in the configuration file")
	}
	if config.LLM == nil {
		return nil, fmt.Errorf("llm section is required in the configuration file")
	}

	appSecret, err := secrets.Load(secrets.Source{
		Name: "feishu app secret",
		File: config.Feishu.AppSecretFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set feishu.app-secret-file or FEISHU_APP_SECRET_FILE)", err)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: config.LLM.APIKeyFile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set llm.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	larkClient := lark.New(config.Feishu.AppID, appSecret, zlog)
	if config.Feishu.BaseURL != "" {
		larkClient.APIURL = config.Feishu.BaseURL
	}

	docTokens := map[refcache.DocName]string{
		refcache.DocRubric:      config.Feishu.RubricToken,
		refcache.DocPaperPolicy: config.Feishu.PaperPolicyToken,
		refcache.DocTagCatalog:  config.Feishu.TagCatalogToken,
	}
	for name, token := range docTokens {
		if token == "" {
			return nil, fmt.Errorf("feishu document token for %s is required", name)
		}
	}

	keeper := refcache.NewTokenKeeper(larkClient, zlog)
	store := refcache.NewStore(larkClient, keeper, docTokens, zlog)
	compiler := refcache.NewCompiler(store, zlog)

	opts := refcache.Options{}
	if config.Refresh != nil {
		opts.TokenInterval = config.Refresh.TokenInterval
		opts.DocumentInterval = config.Refresh.DocumentInterval
		opts.PromptInterval = config.Refresh.PromptInterval
		opts.WarmupTimeout = config.Refresh.WarmupTimeout
	}

	scheduler := refcache.NewScheduler(keeper, store, compiler, zlog, opts)

	genLogger := logger.WithModelFields(zlog, llmProvider, config.LLM.Model)

	generator, err := llm.NewGenerator(ctx, apiKey, config.LLM.Model, config.LLM.MaxRetries, genLogger)
	if err != nil {
		return nil, fmt.Errorf("building model client: %w", err)
	}

	return &services{
		scheduler: scheduler,
		compiler:  compiler,
		generator: generator,
	}, nil
}
