package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reconlab/recon-engine/pkg/models"
)

func TestClassifyComparison(t *testing.T) {
	c := NewQueryClassifier()

	tests := []struct {
		text      string
		operation string
	}{
		{"Show me all records in brz_lnd_RBP_GPU that are not in hana_material_master", models.OperationNotIn},
		{"Find materials missing from the demand plan", models.OperationNotIn},
		{"List GPU records that are in the material master", models.OperationIn},
		{"Show mismatch between orders and shipments", models.OperationNotIn},
		{"unmatched vendor rows", models.OperationNotIn},
	}
	for _, tt := range tests {
		queryType, operation := c.Classify(tt.text)
		assert.Equal(t, models.QueryTypeComparison, queryType, "text %q", tt.text)
		assert.Equal(t, tt.operation, operation, "text %q", tt.text)
	}
}

func TestClassifyInactiveIsNotComparison(t *testing.T) {
	c := NewQueryClassifier()

	queryType, operation := c.Classify("Show inactive vendors")
	assert.Equal(t, models.QueryTypeFilter, queryType)
	assert.Equal(t, models.OperationEquals, operation)
}

func TestClassifyAggregation(t *testing.T) {
	c := NewQueryClassifier()

	tests := []struct {
		text      string
		operation string
	}{
		{"Count records per vendor", models.OperationCount},
		{"What is the average quantity", models.OperationAvg},
		{"Sum of order amounts", models.OperationSum},
		{"Total quantity by region", models.OperationSum},
		{"Show statistics for the demand plan", models.OperationAggregate},
	}
	for _, tt := range tests {
		queryType, operation := c.Classify(tt.text)
		assert.Equal(t, models.QueryTypeAggregation, queryType, "text %q", tt.text)
		assert.Equal(t, tt.operation, operation, "text %q", tt.text)
	}
}

func TestClassifyFilter(t *testing.T) {
	c := NewQueryClassifier()

	queryType, operation := c.Classify("Show active materials where status is current")
	assert.Equal(t, models.QueryTypeFilter, queryType)
	assert.Equal(t, models.OperationEquals, operation)
}

func TestClassifyFilterContains(t *testing.T) {
	c := NewQueryClassifier()

	queryType, operation := c.Classify("Show materials whose description contains 'GPU'")
	assert.Equal(t, models.QueryTypeFilter, queryType)
	assert.Equal(t, models.OperationContains, operation)
}

func TestClassifyFilterWith(t *testing.T) {
	c := NewQueryClassifier()

	queryType, operation := c.Classify("Show vendors with open balances")
	assert.Equal(t, models.QueryTypeFilter, queryType)
	assert.Equal(t, models.OperationEquals, operation)
}

func TestClassifyDefaultDataQuery(t *testing.T) {
	c := NewQueryClassifier()

	queryType, operation := c.Classify("Show me the GPU list")
	assert.Equal(t, models.QueryTypeData, queryType)
	assert.Equal(t, "", operation)
}

func TestClassifyComparisonBeatsAggregation(t *testing.T) {
	c := NewQueryClassifier()

	queryType, operation := c.Classify("Count records not in the master")
	assert.Equal(t, models.QueryTypeComparison, queryType)
	assert.Equal(t, models.OperationNotIn, operation)
}
