package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reconlab/recon-engine/pkg/llm"
	"github.com/reconlab/recon-engine/pkg/models"
)

func parserSchemas() []*models.Schema {
	return []*models.Schema{
		{
			Name: "shop",
			Tables: []models.Table{
				{
					Name: "orders",
					Columns: []models.Column{
						{Name: "id", PrimaryKey: true},
						{Name: "customer_id"},
						{Name: "Product_Line"},
					},
				},
				{
					Name: "customers",
					Columns: []models.Column{
						{Name: "cust_id", PrimaryKey: true},
						{Name: "name"},
					},
				},
				{
					Name:    "shipments",
					Columns: []models.Column{{Name: "order_ref"}},
				},
			},
		},
	}
}

func TestParseHeuristicExplicitColumns(t *testing.T) {
	parser := NewRelationshipParser(nil, zap.NewNop())

	edges, err := parser.Parse(context.Background(),
		"orders.customer_id matches customers.cust_id", parserSchemas(), false, 0.5)
	require.NoError(t, err)
	require.Len(t, edges, 1)

	edge := edges[0]
	assert.Equal(t, models.TableNodeID("orders"), edge.SourceID)
	assert.Equal(t, models.TableNodeID("customers"), edge.TargetID)
	assert.Equal(t, "customer_id", edge.SourceColumn)
	assert.Equal(t, "cust_id", edge.TargetColumn)
	assert.Equal(t, models.RelTypeReferences, edge.RelationshipType)
	assert.Equal(t, heuristicConfidenceCap, edge.Confidence)
	assert.Equal(t, models.OriginNaturalLanguage, edge.Origin)
}

func TestParseHeuristicCoMentionedTables(t *testing.T) {
	parser := NewRelationshipParser(nil, zap.NewNop())

	edges, err := parser.Parse(context.Background(),
		"every shipment in shipments belongs to a row in orders", parserSchemas(), false, 0.5)
	require.NoError(t, err)
	require.Len(t, edges, 1)

	edge := edges[0]
	assert.Equal(t, models.TableNodeID("shipments"), edge.SourceID)
	assert.Equal(t, models.TableNodeID("orders"), edge.TargetID)
	assert.Equal(t, models.RelTypeRelatedTo, edge.RelationshipType)
	assert.Equal(t, 0.6, edge.Confidence)
}

func TestParseHeuristicMultipleClauses(t *testing.T) {
	parser := NewRelationshipParser(nil, zap.NewNop())

	edges, err := parser.Parse(context.Background(),
		"orders.customer_id matches customers.cust_id, and shipments relate to orders",
		parserSchemas(), false, 0.5)
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestParseHeuristicCardinality(t *testing.T) {
	parser := NewRelationshipParser(nil, zap.NewNop())

	edges, err := parser.Parse(context.Background(),
		"orders.customer_id matches customers.cust_id with many-to-one cardinality",
		parserSchemas(), false, 0.5)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, models.CardinalityNTo1, edges[0].Cardinality)
}

func TestParseFiltersByMinConfidence(t *testing.T) {
	parser := NewRelationshipParser(nil, zap.NewNop())

	// Co-mention confidence is 0.6, below the 0.7 floor.
	edges, err := parser.Parse(context.Background(),
		"shipments relate to orders", parserSchemas(), false, 0.7)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestParseDropsExcludedColumns(t *testing.T) {
	parser := NewRelationshipParser(nil, zap.NewNop())

	edges, err := parser.Parse(context.Background(),
		"orders.Product_Line matches customers.cust_id", parserSchemas(), false, 0.5)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestParseWithLLM(t *testing.T) {
	client := llm.NewMockClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string) (string, error) {
		return `{"relationships": [{
			"source_table": "ORDERS",
			"source_column": "customer_id",
			"target_table": "customers",
			"target_column": "cust_id",
			"cardinality": "many-to-one",
			"confidence": 0.92,
			"reasoning": "customer reference"
		}]}`, nil
	}
	parser := NewRelationshipParser(client, zap.NewNop())

	edges, err := parser.Parse(context.Background(),
		"orders reference customers", parserSchemas(), true, 0.5)
	require.NoError(t, err)
	require.Len(t, edges, 1)

	edge := edges[0]
	// Table labels are canonicalized against the schema.
	assert.Equal(t, models.TableNodeID("orders"), edge.SourceID)
	assert.Equal(t, 0.92, edge.Confidence)
	assert.Equal(t, models.CardinalityNTo1, edge.Cardinality)
	assert.Equal(t, "customer reference", edge.Reasoning)
	assert.Equal(t, 1, client.GenerateResponseCalls)
}

func TestParseLLMDropsUnknownTable(t *testing.T) {
	client := llm.NewMockClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string) (string, error) {
		return `{"relationships": [{
			"source_table": "warehouse",
			"target_table": "customers",
			"confidence": 0.9
		}]}`, nil
	}
	parser := NewRelationshipParser(client, zap.NewNop())

	edges, err := parser.Parse(context.Background(),
		"warehouse links to customers", parserSchemas(), true, 0.5)
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestParseMalformedLLMFallsBackToHeuristic(t *testing.T) {
	client := llm.NewMockClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string) (string, error) {
		return "I'm not sure about the relationships here.", nil
	}
	parser := NewRelationshipParser(client, zap.NewNop())

	edges, err := parser.Parse(context.Background(),
		"orders.customer_id matches customers.cust_id", parserSchemas(), true, 0.5)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, heuristicConfidenceCap, edges[0].Confidence)
}

func TestParseLLMErrorFallsBackToHeuristic(t *testing.T) {
	client := llm.NewMockClient()
	client.GenerateResponseFunc = func(ctx context.Context, prompt, system string) (string, error) {
		return "", errors.New("model overloaded")
	}
	parser := NewRelationshipParser(client, zap.NewNop())

	edges, err := parser.Parse(context.Background(),
		"orders.customer_id matches customers.cust_id", parserSchemas(), true, 0.5)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}
