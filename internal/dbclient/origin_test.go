package dbclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTableName(t *testing.T) {
	tests := []struct {
		query string
		want  origin
	}{
		{"SELECT * FROM Pet", origin{table: "Pet"}},
		{"select * from pet p where p.id = 1", origin{table: "pet"}},
		{"SELECT * FROM shop.pet WHERE id IN (1)", origin{schema: "shop", table: "pet"}},
		{"SELECT * FROM `shop`.`pet`", origin{schema: "shop", table: "pet"}},
		{`SELECT * FROM "public"."Pet"`, origin{schema: "public", table: "Pet"}},
		{"SELECT * FROM [dbo].[Pet]", origin{schema: "dbo", table: "Pet"}},
		{"SELECT * FROM pet;", origin{table: "pet"}},
		{"SELECT * FROM (SELECT * FROM pet) t", origin{}},
		{"SELECT 1", origin{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, extractTableName(tt.query))
		})
	}
}

func TestPlanColumns_SingleTable(t *testing.T) {
	plan, err := planColumns("SELECT * FROM pet", []string{"id", "name"}, nil, "shop")
	require.NoError(t, err)
	assert.Equal(t, []origin{{schema: "shop", table: "pet"}}, plan.slots)

	recs := plan.split([]any{int64(1), "rex"})
	require.Len(t, recs, 1)
	assert.Equal(t, "shop", recs[0].Schema)
	assert.Equal(t, "pet", recs[0].Table)
	assert.Equal(t, []string{"id", "name"}, recs[0].Columns)
}

func TestPlanColumns_Labels(t *testing.T) {
	plan, err := planColumns(
		"SELECT p.*, o.id AS `owner.id` FROM pet p JOIN owner o ON o.id = p.owner_id",
		[]string{"id", "owner_id", "owner.id", "hr.staff.id"}, nil, "")
	require.NoError(t, err)
	assert.Equal(t, []origin{
		{table: "pet"},
		{table: "owner"},
		{schema: "hr", table: "staff"},
	}, plan.slots)
	assert.Equal(t, []string{"id", "owner_id", "id", "id"}, plan.names)
}

func TestPlanColumns_RepeatedNameStartsNewRecord(t *testing.T) {
	plan, err := planColumns(
		"SELECT a.id, a.parent_id, b.id, b.parent_id FROM person a JOIN person b ON b.id = a.parent_id",
		[]string{"id", "parent_id", "id", "parent_id"}, nil, "")
	require.NoError(t, err)
	require.Len(t, plan.slots, 2)

	recs := plan.split([]any{int64(1), int64(2), int64(2), nil})
	require.Len(t, recs, 2)
	assert.Equal(t, int64(1), recs[0].Data["id"])
	assert.Equal(t, int64(2), recs[1].Data["id"])
}

func TestPlanColumns_KnownOrigins(t *testing.T) {
	known := []origin{
		{schema: "public", table: "pet"},
		{schema: "public", table: "owner"},
		{},
	}
	plan, err := planColumns("SELECT p.id, o.id, 1 AS one FROM pet p JOIN owner o ON true",
		[]string{"id", "id", "one"}, known, "public")
	require.NoError(t, err)
	assert.Equal(t, []origin{
		{schema: "public", table: "pet"},
		{schema: "public", table: "owner"},
	}, plan.slots)
	assert.Equal(t, []int{0, 1, 0}, plan.slotOf)
}

func TestPlanColumns_Unresolvable(t *testing.T) {
	_, err := planColumns("SELECT 1 AS x", []string{"x"}, nil, "")
	assert.Error(t, err)

	_, err = planColumns("SELECT * FROM (SELECT 1 AS x) t", []string{"x"}, nil, "")
	assert.Error(t, err)
}

func TestColumnPlan_SplitDropsOuterJoinMisses(t *testing.T) {
	plan, err := planColumns("SELECT * FROM pet", []string{"id", "owner.id", "owner.name"}, nil, "")
	require.NoError(t, err)

	recs := plan.split([]any{int64(5), nil, nil})
	require.Len(t, recs, 1)
	assert.Equal(t, "pet", recs[0].Table)
}

func TestParseFrom(t *testing.T) {
	tests := []struct {
		query  string
		tables []origin
		star   bool
	}{
		{"SELECT * FROM pet", []origin{{table: "pet"}}, true},
		{"SELECT * FROM Pet JOIN Owner ON Owner.id = Pet.ownerId", []origin{{table: "Pet"}, {table: "Owner"}}, true},
		{"SELECT p.* FROM pet p LEFT JOIN shop.owner o ON o.id = p.owner_id WHERE o.id > 1",
			[]origin{{table: "pet"}, {schema: "shop", table: "owner"}}, false},
		{"SELECT * FROM pet, owner WHERE owner.id = pet.owner_id", []origin{{table: "pet"}, {table: "owner"}}, true},
		{"SELECT COUNT(*), (SELECT max(id) FROM visit) FROM pet", []origin{{table: "pet"}}, false},
		{"SELECT * FROM pet WHERE owner_id IN (SELECT id FROM owner, visit)", []origin{{table: "pet"}}, true},
		{"SELECT * FROM (SELECT * FROM pet) t JOIN owner o ON true", []origin{{}, {table: "owner"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := parseFrom(tt.query)
			assert.Equal(t, tt.tables, got.tables)
			assert.Equal(t, tt.star, got.star)
		})
	}
}

func TestPlanColumns_UnlabelledJoinIsRejected(t *testing.T) {
	_, err := planColumns("SELECT * FROM Pet JOIN Owner ON Owner.id = Pet.ownerId",
		[]string{"id", "ownerId", "id", "name"}, nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Pet, Owner")
	assert.Contains(t, err.Error(), "table.column")

	_, err = planColumns("SELECT p.id, p.ownerId, o.id FROM Pet p JOIN Owner o ON o.id = p.ownerId",
		[]string{"id", "ownerId", "id"}, nil, "")
	assert.Error(t, err)

	_, err = planColumns("SELECT * FROM pet, owner WHERE owner.id = pet.owner_id",
		[]string{"id", "owner_id", "name"}, nil, "")
	assert.Error(t, err)
}

func TestPlanColumns_LabelledJoinSplitsByTable(t *testing.T) {
	plan, err := planColumns(`SELECT Pet.*, Owner.id AS "Owner.id", Owner.name AS "Owner.name" FROM Pet JOIN Owner ON Owner.id = Pet.ownerId`,
		[]string{"id", "ownerId", "Owner.id", "Owner.name"}, nil, "")
	require.NoError(t, err)

	recs := plan.split([]any{int64(10), int64(5), int64(5), "ann"})
	require.Len(t, recs, 2)
	assert.Equal(t, "Pet", recs[0].Table)
	assert.Equal(t, map[string]any{"id": int64(10), "ownerId": int64(5)}, recs[0].Data)
	assert.Equal(t, "Owner", recs[1].Table)
	assert.Equal(t, map[string]any{"id": int64(5), "name": "ann"}, recs[1].Data)
}

func TestPlanColumns_KnownOriginsAllowJoinStar(t *testing.T) {
	known := []origin{{table: "Pet"}, {table: "Pet"}, {table: "Owner"}, {table: "Owner"}}
	plan, err := planColumns("SELECT * FROM Pet JOIN Owner ON Owner.id = Pet.ownerId",
		[]string{"id", "ownerId", "id", "name"}, known, "")
	require.NoError(t, err)
	assert.Equal(t, []origin{{table: "Pet"}, {table: "Owner"}}, plan.slots)
}
