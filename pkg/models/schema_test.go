package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func descriptorSchema() *Schema {
	return &Schema{
		Name: "bronze",
		Tables: []Table{
			{
				Name: "brz_lnd_RBP_GPU",
				Columns: []Column{
					{Name: "Material", DataType: "varchar", PrimaryKey: true},
					{Name: "Region", DataType: "varchar", Nullable: true},
					{Name: "plant_id", DataType: "varchar", ForeignKey: &ForeignKey{
						TargetTable:  "plants",
						TargetColumn: "id",
					}},
				},
			},
		},
	}
}

func TestFindTableIsCaseInsensitive(t *testing.T) {
	schema := descriptorSchema()

	table := schema.FindTable("BRZ_LND_RBP_GPU")
	require.NotNil(t, table)
	assert.Equal(t, "brz_lnd_RBP_GPU", table.Name)

	assert.Nil(t, schema.FindTable("missing"))
}

func TestFindColumnIsCaseInsensitive(t *testing.T) {
	table := descriptorSchema().FindTable("brz_lnd_RBP_GPU")
	require.NotNil(t, table)

	col := table.FindColumn("material")
	require.NotNil(t, col)
	assert.Equal(t, "Material", col.Name)
	assert.True(t, col.PrimaryKey)

	fk := table.FindColumn("plant_id")
	require.NotNil(t, fk)
	require.NotNil(t, fk.ForeignKey)
	assert.Equal(t, "plants", fk.ForeignKey.TargetTable)

	assert.Nil(t, table.FindColumn("ghost"))
}

func TestColumnNamesPreserveOrder(t *testing.T) {
	table := descriptorSchema().FindTable("brz_lnd_RBP_GPU")
	require.NotNil(t, table)

	assert.Equal(t, []string{"Material", "Region", "plant_id"}, table.ColumnNames())
}
