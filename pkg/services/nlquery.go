package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/reconlab/recon-engine/pkg/executor"
	"github.com/reconlab/recon-engine/pkg/kg"
	"github.com/reconlab/recon-engine/pkg/models"
	"github.com/reconlab/recon-engine/pkg/workqueue"
)

// NLQueryService runs the full NL definition pipeline: classify, parse,
// resolve, plan, generate, execute. Definitions in a batch run concurrently;
// results come back in input order.
type NLQueryService interface {
	ExecuteDefinitions(ctx context.Context, definitions []string, kgName string, backend executor.Backend, useLLM bool, limit int) ([]models.QueryResult, error)
}

type nlQueryService struct {
	kgStore *kg.Store
	parser  QueryParser
	exec    *executor.Executor
	pool    *workqueue.Pool
	logger  *zap.Logger
}

var _ NLQueryService = (*nlQueryService)(nil)

// NewNLQueryService wires the pipeline stages together.
func NewNLQueryService(kgStore *kg.Store, parser QueryParser, exec *executor.Executor, pool *workqueue.Pool, logger *zap.Logger) NLQueryService {
	return &nlQueryService{
		kgStore: kgStore,
		parser:  parser,
		exec:    exec,
		pool:    pool,
		logger:  logger.Named("nlquery"),
	}
}

func (s *nlQueryService) ExecuteDefinitions(ctx context.Context, definitions []string, kgName string, backend executor.Backend, useLLM bool, limit int) ([]models.QueryResult, error) {
	graph, err := s.kgStore.Snapshot(kgName)
	if err != nil {
		return nil, err
	}
	planner := kg.NewJoinPlanner(graph)

	items := make([]workqueue.Item[models.QueryResult], len(definitions))
	for i, definition := range definitions {
		definition := definition
		items[i] = workqueue.Item[models.QueryResult]{
			ID: definition,
			Execute: func(ctx context.Context) (models.QueryResult, error) {
				return s.runDefinition(ctx, definition, graph, planner, backend, useLLM, limit), nil
			},
		}
	}

	results, err := workqueue.Run(ctx, s.pool, items)
	if err != nil {
		return nil, err
	}

	out := make([]models.QueryResult, len(results))
	for i, res := range results {
		if res.Err != nil {
			out[i] = models.QueryResult{Definition: definitions[i], Error: res.Err.Error()}
			continue
		}
		out[i] = res.Value
	}
	return out, nil
}

// runDefinition is strictly sequential for one definition. Errors attach to
// the result; the rest of the batch proceeds.
func (s *nlQueryService) runDefinition(ctx context.Context, definition string, graph *models.KnowledgeGraph, planner *kg.JoinPlanner, backend executor.Backend, useLLM bool, limit int) models.QueryResult {
	intent, err := s.parser.Parse(ctx, definition, graph, useLLM)
	if err != nil {
		return models.QueryResult{Definition: definition, Error: err.Error()}
	}
	if limit > 0 && intent.Limit == 0 {
		intent.Limit = limit
	}

	sqlText, err := backend.Gen.Generate(*intent, planner)
	if err != nil {
		return models.QueryResult{
			Definition:  definition,
			QueryType:   intent.QueryType,
			Operation:   intent.Operation,
			SourceTable: intent.SourceTable,
			TargetTable: intent.TargetTable,
			Confidence:  intent.Confidence,
			Error:       err.Error(),
		}
	}

	return *s.exec.ExecuteQuery(ctx, *intent, sqlText, backend, limit)
}
