package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/vulnvalid/pkg/config"
	"github.com/user/vulnvalid/pkg/llm"
	"github.com/user/vulnvalid/pkg/logging"
	"github.com/user/vulnvalid/pkg/report"
	"github.com/user/vulnvalid/pkg/stages"
	"github.com/user/vulnvalid/pkg/store"
	"github.com/user/vulnvalid/pkg/triage"
)

var validateFlags struct {
	report     string
	source     string
	url        string
	model      string
	onlyRead   bool
	onlyStatic bool
	onlyDyn    bool
	output     string
	lang       string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a vulnerability report against source code and a live target",
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := resolveMode()
		if err != nil {
			return err
		}

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		log := logging.New(cfg.Logging, DebugMode)
		defer logging.Sync(log)

		ctx := cmd.Context()

		provider, modelName, err := buildProvider(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeProvider(provider)

		outputs, err := runStages(ctx, cfg, log, provider, mode)
		if err != nil {
			return err
		}

		orch := triage.NewOrchestrator(triage.Options{
			SimilarityThreshold: cfg.Triage.SimilarityThreshold,
		}, log)

		result, err := orch.Run(outputs)
		if errors.Is(err, triage.ErrNoInput) {
			return fmt.Errorf("no usable evidence was produced by any stage; nothing to triage")
		}
		if err != nil {
			return fmt.Errorf("triage failed: %w", err)
		}

		final := report.Build(result, report.Metadata{
			ReportPath: validateFlags.report,
			TargetURL:  validateFlags.url,
			SourcePath: validateFlags.source,
			Mode:       mode,
			Model:      modelName,
		}, validateFlags.lang)

		final.Render()

		if validateFlags.output != "" {
			if err := final.Save(validateFlags.output); err != nil {
				return err
			}
			log.Info("Report written", zap.String("path", validateFlags.output))
		}

		persistRun(ctx, cfg, log, final)
		return nil
	},
}

// resolveMode validates the flag combination and names the run mode.
func resolveMode() (string, error) {
	exclusive := 0
	for _, f := range []bool{validateFlags.onlyRead, validateFlags.onlyStatic, validateFlags.onlyDyn} {
		if f {
			exclusive++
		}
	}
	if exclusive > 1 {
		return "", fmt.Errorf("--only-read, --only-static and --only-dynamic are mutually exclusive")
	}

	switch {
	case validateFlags.onlyRead:
		return "read", nil
	case validateFlags.onlyStatic:
		if validateFlags.source == "" {
			return "", fmt.Errorf("--only-static requires --source")
		}
		return "static", nil
	case validateFlags.onlyDyn:
		if validateFlags.url == "" {
			return "", fmt.Errorf("--only-dynamic requires --url")
		}
		return "dynamic", nil
	default:
		if validateFlags.source == "" && validateFlags.url == "" {
			return "read", nil
		}
		return "full", nil
	}
}

func buildProvider(ctx context.Context, cfg *config.Config) (llm.Provider, string, error) {
	providerName := cfg.SelectedProvider
	modelName := cfg.SelectedModel
	if validateFlags.model != "" {
		modelName = validateFlags.model
		providerName = llm.ProviderForModel(modelName)
	}
	if providerName == "" {
		return nil, "", fmt.Errorf("no provider configured; run 'vulnvalid config setup' first")
	}

	apiKey := cfg.GetAPIKey(providerName)
	if apiKey == "" {
		return nil, "", fmt.Errorf("no API key for provider %s; run 'vulnvalid config set-key' or set the environment variable", providerName)
	}

	provider, err := llm.NewProvider(ctx, providerName, apiKey, modelName)
	if err != nil {
		return nil, "", fmt.Errorf("failed to initialize provider %s: %w", providerName, err)
	}
	return provider, modelName, nil
}

func closeProvider(p llm.Provider) {
	if closer, ok := p.(interface{ Close() }); ok {
		closer.Close()
	}
}

// runStages executes the pipeline stages the mode calls for and returns the
// raw outputs for triage.
func runStages(ctx context.Context, cfg *config.Config, log *zap.Logger, provider llm.Provider, mode string) (triage.StageOutputs, error) {
	var outputs triage.StageOutputs

	reader := stages.NewReader(provider, log)
	doc, err := reader.Read(ctx, validateFlags.report)
	if err != nil {
		return outputs, fmt.Errorf("report reading failed: %w", err)
	}
	outputs.Document = doc

	if (mode == "static" || mode == "full") && validateFlags.source != "" {
		dir, cleanup, err := stages.PrepareSource(validateFlags.source)
		if err != nil {
			return outputs, err
		}
		defer cleanup()

		static := stages.NewStatic(log, time.Duration(cfg.Stages.SemgrepTimeoutSec)*time.Second)
		matches, err := static.Scan(ctx, dir, doc.Findings)
		if err != nil {
			// Static failure degrades the run, it does not abort it.
			log.Warn("Static stage failed", zap.Error(err))
		} else {
			outputs.Static = matches
		}
	}

	if (mode == "dynamic" || mode == "full") && validateFlags.url != "" {
		dynamic := stages.NewDynamic(provider, log, time.Duration(cfg.Stages.ProbeTimeoutSec)*time.Second)
		outputs.Dynamic = dynamic.Probe(ctx, validateFlags.url, doc.Findings)
	}

	return outputs, nil
}

// persistRun saves the report to PostgreSQL when a DSN is configured.
// Persistence failures are logged, never fatal.
func persistRun(ctx context.Context, cfg *config.Config, log *zap.Logger, final *report.FinalReport) {
	if cfg.PostgresDSN == "" {
		return
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Warn("Failed to connect to database; run not persisted", zap.Error(err))
		return
	}
	defer pool.Close()

	s, err := store.New(ctx, pool, log)
	if err != nil {
		log.Warn("Database unavailable; run not persisted", zap.Error(err))
		return
	}
	if err := s.EnsureSchema(ctx); err != nil {
		log.Warn("Failed to ensure schema; run not persisted", zap.Error(err))
		return
	}
	if err := s.SaveRun(ctx, final); err != nil {
		log.Warn("Failed to persist run", zap.Error(err))
	}
}

func init() {
	validateCmd.Flags().StringVarP(&validateFlags.report, "report", "r", "", "Path to the vulnerability report (pdf, txt or md)")
	validateCmd.Flags().StringVarP(&validateFlags.source, "source", "s", "", "Path to the application source (directory or zip)")
	validateCmd.Flags().StringVarP(&validateFlags.url, "url", "u", "", "Base URL of the running target")
	validateCmd.Flags().StringVarP(&validateFlags.model, "model", "m", "", "Model name override (provider inferred from the name)")
	validateCmd.Flags().BoolVar(&validateFlags.onlyRead, "only-read", false, "Run only the report reading stage")
	validateCmd.Flags().BoolVar(&validateFlags.onlyStatic, "only-static", false, "Run only reading and static analysis")
	validateCmd.Flags().BoolVar(&validateFlags.onlyDyn, "only-dynamic", false, "Run only reading and dynamic probing")
	validateCmd.Flags().StringVarP(&validateFlags.output, "output", "o", "", "Write the final report as JSON to this path")
	validateCmd.Flags().StringVarP(&validateFlags.lang, "lang", "l", "en", "Report language (en or es)")
	_ = validateCmd.MarkFlagRequired("report")

	rootCmd.AddCommand(validateCmd)
}
