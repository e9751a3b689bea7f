package kg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reconlab/recon-engine/pkg/models"
)

func catalogVendorSchemas() []*models.Schema {
	return []*models.Schema{
		{
			Name: "a",
			Tables: []models.Table{
				{
					Name: "catalog",
					Columns: []models.Column{
						{Name: "id", DataType: "int", PrimaryKey: true},
						{Name: "product_name", DataType: "text"},
						{Name: "vendor_uid", DataType: "text"},
					},
				},
			},
		},
		{
			Name: "b",
			Tables: []models.Table{
				{
					Name: "vendor",
					Columns: []models.Column{
						{Name: "uid", DataType: "text", PrimaryKey: true},
						{Name: "vendor_name", DataType: "text"},
					},
				},
			},
		},
	}
}

func TestBuildMergedInfersCrossSchemaReference(t *testing.T) {
	assembler := NewAssembler(nil, zap.NewNop())

	kg, err := assembler.BuildMerged(context.Background(), catalogVendorSchemas(), "test", false)
	require.NoError(t, err)

	assert.Len(t, kg.Nodes, 2)
	require.Len(t, kg.Relationships, 1)

	edge := kg.Relationships[0]
	assert.Equal(t, models.TableNodeID("catalog"), edge.SourceID)
	assert.Equal(t, models.TableNodeID("vendor"), edge.TargetID)
	assert.Equal(t, models.RelTypeCrossSchemaReference, edge.RelationshipType)
	assert.Equal(t, "vendor_uid", edge.SourceColumn)
	assert.Equal(t, "uid", edge.TargetColumn)
	assert.GreaterOrEqual(t, edge.Confidence, 0.6)
	assert.LessOrEqual(t, edge.Confidence, 0.85)
	assert.Equal(t, models.OriginAutoDetected, edge.Origin)
}

func TestBuildMergedEmitsForeignKeyEdges(t *testing.T) {
	schemas := []*models.Schema{
		{
			Name: "shop",
			Tables: []models.Table{
				{
					Name: "orders",
					Columns: []models.Column{
						{Name: "id", PrimaryKey: true},
						{Name: "customer_id", ForeignKey: &models.ForeignKey{TargetTable: "customers", TargetColumn: "id"}},
					},
				},
				{
					Name:    "customers",
					Columns: []models.Column{{Name: "id", PrimaryKey: true}},
				},
			},
		},
	}

	assembler := NewAssembler(nil, zap.NewNop())
	kg, err := assembler.BuildMerged(context.Background(), schemas, "shop", false)
	require.NoError(t, err)

	require.Len(t, kg.Relationships, 1)
	edge := kg.Relationships[0]
	assert.Equal(t, models.RelTypeReferences, edge.RelationshipType)
	assert.Equal(t, 1.0, edge.Confidence)
	assert.Equal(t, "customer_id", edge.SourceColumn)
}

func TestBuildMergedSuffixConfidenceTiers(t *testing.T) {
	schemas := []*models.Schema{
		{
			Name: "src",
			Tables: []models.Table{
				{
					Name: "facts",
					Columns: []models.Column{
						{Name: "vendor_id"},
						{Name: "plant_uid"},
						{Name: "material_code"},
						{Name: "region"},
						{Name: "dept"},
						{Name: "site"},
					},
				},
				{Name: "dept", Columns: []models.Column{{Name: "dept_no"}}},
			},
		},
		{
			Name: "ref",
			Tables: []models.Table{
				{Name: "vendor", Columns: []models.Column{{Name: "id", PrimaryKey: true}}},
				{Name: "plant", Columns: []models.Column{{Name: "uid", PrimaryKey: true}}},
				{Name: "material", Columns: []models.Column{{Name: "code"}, {Name: "name"}}},
				{Name: "region", Columns: []models.Column{{Name: "region_key", PrimaryKey: true}}},
				{Name: "site", Columns: []models.Column{{Name: "location"}}},
			},
		},
	}

	assembler := NewAssembler(nil, zap.NewNop())
	kg, err := assembler.BuildMerged(context.Background(), schemas, "tiers", false)
	require.NoError(t, err)

	// "dept" stays in-schema and "site" has neither an id column nor a primary
	// key, so neither produces an edge.
	require.Len(t, kg.Relationships, 4)

	expected := []struct {
		sourceColumn string
		targetTable  string
		targetColumn string
		confidence   float64
	}{
		{"vendor_id", "vendor", "id", 0.85},
		{"plant_uid", "plant", "uid", 0.80},
		{"material_code", "material", "code", 0.70},
		{"region", "region", "region_key", 0.60},
	}
	for i, want := range expected {
		edge := kg.Relationships[i]
		assert.Equal(t, models.TableNodeID("facts"), edge.SourceID, want.sourceColumn)
		assert.Equal(t, models.TableNodeID(want.targetTable), edge.TargetID, want.sourceColumn)
		assert.Equal(t, want.sourceColumn, edge.SourceColumn)
		assert.Equal(t, want.targetColumn, edge.TargetColumn, want.sourceColumn)
		assert.Equal(t, want.confidence, edge.Confidence, want.sourceColumn)
	}
}

func TestBuildMergedDropsExcludedFieldEdges(t *testing.T) {
	schemas := []*models.Schema{
		{
			Name: "shop",
			Tables: []models.Table{
				{
					Name: "orders",
					Columns: []models.Column{
						{Name: "Product_Line", ForeignKey: &models.ForeignKey{TargetTable: "products", TargetColumn: "line"}},
					},
				},
				{
					Name:    "products",
					Columns: []models.Column{{Name: "line", PrimaryKey: true}},
				},
			},
		},
	}

	assembler := NewAssembler(nil, zap.NewNop())
	kg, err := assembler.BuildMerged(context.Background(), schemas, "shop", false)
	require.NoError(t, err)

	assert.Empty(t, kg.Relationships)
}

func TestBuildMergedIsDeterministicWithoutLLM(t *testing.T) {
	assembler := NewAssembler(nil, zap.NewNop())
	ctx := context.Background()

	first, err := assembler.BuildMerged(ctx, catalogVendorSchemas(), "det", false)
	require.NoError(t, err)
	second, err := assembler.BuildMerged(ctx, catalogVendorSchemas(), "det", false)
	require.NoError(t, err)

	require.Equal(t, len(first.Nodes), len(second.Nodes))
	for i := range first.Nodes {
		assert.Equal(t, first.Nodes[i].ID, second.Nodes[i].ID)
	}
	assert.Equal(t, first.Relationships, second.Relationships)
}

func TestBuildMergedDedupsNodesAcrossSchemas(t *testing.T) {
	schemas := []*models.Schema{
		{Name: "a", Tables: []models.Table{{Name: "Shared", Columns: []models.Column{{Name: "id"}}}}},
		{Name: "b", Tables: []models.Table{{Name: "shared", Columns: []models.Column{{Name: "id"}}}}},
	}

	assembler := NewAssembler(nil, zap.NewNop())
	kg, err := assembler.BuildMerged(context.Background(), schemas, "dup", false)
	require.NoError(t, err)

	assert.Len(t, kg.Nodes, 1)
	assert.Equal(t, []string{"a", "b"}, kg.Metadata.SchemasMerged)
}
