package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/reconlab/recon-engine/pkg/config"
	"github.com/reconlab/recon-engine/pkg/executor"
	"github.com/reconlab/recon-engine/pkg/kg"
	"github.com/reconlab/recon-engine/pkg/kpi"
	"github.com/reconlab/recon-engine/pkg/llm"
	"github.com/reconlab/recon-engine/pkg/logging"
	"github.com/reconlab/recon-engine/pkg/retry"
	"github.com/reconlab/recon-engine/pkg/schemastore"
	"github.com/reconlab/recon-engine/pkg/services"
	"github.com/reconlab/recon-engine/pkg/storage"
	"github.com/reconlab/recon-engine/pkg/workqueue"
)

// Version is set at build time via ldflags
var Version = "dev"

const defaultResultLimit = 1000

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Bool("llm_enabled", cfg.LLM.Enabled),
		zap.Int("worker_pool_size", cfg.WorkerPoolSize))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("engine run failed", zap.Error(err))
	}
}

// run wires the engine and drives one reconciliation pass: build the merged
// KG from every schema descriptor on disk, generate rules, and (when backend
// connections are configured) execute them and persist results with KPIs.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	fileStore := storage.NewFileStore(storage.Layout{
		KGDir:        cfg.Storage.KGDir,
		RulesDir:     cfg.Storage.RulesDir,
		ResultsDir:   cfg.Storage.ResultsDir,
		KPIConfigDir: cfg.Storage.KPIConfigDir,
		KPIResultDir: cfg.Storage.KPIResultDir,
		EvidenceDir:  cfg.Storage.EvidenceDir,
	}, logger)

	names, err := schemaNames(cfg.Storage.SchemaDir)
	if err != nil {
		return err
	}

	var llmClient llm.Client
	if cfg.LLM.Enabled {
		client, err := llm.NewClient(cfg.LLM.Provider, &llm.Config{
			Endpoint:    cfg.LLM.Endpoint,
			Model:       cfg.LLM.Model,
			APIKey:      cfg.LLM.APIKey,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		}, logger)
		if err != nil {
			return err
		}
		retryCfg := retry.DefaultConfig()
		retryCfg.MaxRetries = cfg.LLM.MaxRetries
		llmClient = llm.WithRetry(
			llm.WithTimeout(client, time.Duration(cfg.LLM.TimeoutSeconds)*time.Second),
			retryCfg)
	}

	kgStore := kg.NewStore(fileStore, logger)
	pool := workqueue.NewPool(cfg.WorkerPoolSize, logger)
	exec := executor.New(pool, logger)

	svc := services.NewReconciliationService(
		cfg,
		schemastore.NewFromDir(cfg.Storage.SchemaDir, logger),
		kgStore,
		kg.NewAssembler(kg.NewAliasLearner(llmClient, logger), logger),
		kg.NewIntegrator(kgStore, logger),
		kg.NewAliasLearner(llmClient, logger),
		services.NewRelationshipParser(llmClient, logger),
		services.NewRuleGenerator(kgStore, llmClient, logger),
		services.NewNLQueryService(kgStore, services.NewQueryParser(services.NewQueryClassifier(), llmClient, logger), exec, pool, logger),
		exec,
		fileStore,
		kpi.NewWriter(fileStore, logger),
		services.OpenBackend(logger),
		logger,
	)

	graph, err := svc.CreateKnowledgeGraph(ctx, services.CreateKGRequest{
		SchemaNames: names,
		UseLLM:      cfg.LLM.Enabled,
	})
	if err != nil {
		return err
	}

	ruleset, err := svc.GenerateRules(ctx, services.GenerateRulesRequest{
		KGName: graph.Metadata.Name,
		UseLLM: cfg.LLM.Enabled,
	})
	if err != nil {
		return err
	}

	if !cfg.UseEnvDBConfigs {
		logger.Info("no backend connections configured, stopping after rule generation",
			zap.String("ruleset_id", ruleset.RulesetID),
			zap.Int("rules", len(ruleset.Rules)))
		return nil
	}

	report, err := svc.ExecuteRuleset(ctx, services.ExecuteRulesetRequest{
		RulesetID: ruleset.RulesetID,
		Limit:     defaultResultLimit,
	})
	if err != nil {
		return err
	}

	logger.Info("reconciliation pass complete",
		zap.String("execution_id", report.ExecutionID),
		zap.Int("matched", report.Outcome.MatchedCount),
		zap.Int("unmatched_source", report.Outcome.UnmatchedSourceCount),
		zap.Int("unmatched_target", report.Outcome.UnmatchedTargetCount),
		zap.Float64("coverage_rate", report.Report.RCR.CoverageRate),
		zap.String("result_path", report.ResultPath))
	return nil
}

// schemaNames lists the schema descriptors in dir, one name per file with the
// extension stripped.
func schemaNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	seen := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		for _, ext := range []string{".json", ".yaml", ".yml"} {
			if len(name) > len(ext) && name[len(name)-len(ext):] == ext {
				name = name[:len(name)-len(ext)]
				break
			}
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}
