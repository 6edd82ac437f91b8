package dump_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partialdump/internal/dump"
)

func TestParseTemplate(t *testing.T) {
	tmpl, err := dump.ParseTemplate("SELECT * FROM Owner WHERE id IN ({{*Pet.ownerId}})")
	require.NoError(t, err)
	assert.Equal(t, "Pet", tmpl.Table)
	assert.Empty(t, tmpl.Schema)
	require.Len(t, tmpl.Placeholders, 1)
	assert.True(t, tmpl.Placeholders[0].Multi)
	assert.Equal(t, "ownerId", tmpl.Placeholders[0].Column)
}

func TestParseTemplate_Schema(t *testing.T) {
	tmpl, err := dump.ParseTemplate("SELECT * FROM a WHERE x = {{shop.Pet.x}} AND y = {{ shop.Pet.y }}")
	require.NoError(t, err)
	assert.Equal(t, "shop", tmpl.Schema)
	assert.Equal(t, "Pet", tmpl.Table)
	assert.Len(t, tmpl.Placeholders, 2)
}

func TestParseTemplate_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no placeholder", "SELECT * FROM Owner"},
		{"two tables", "SELECT * FROM x WHERE a = {{Pet.a}} AND b = {{Owner.b}}"},
		{"two schemas", "SELECT * FROM x WHERE a = {{s1.Pet.a}} AND b = {{s2.Pet.b}}"},
		{"bare column", "SELECT * FROM x WHERE a = {{a}}"},
		{"too many parts", "SELECT * FROM x WHERE a = {{a.b.c.d}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dump.ParseTemplate(tt.raw)
			var tfe *dump.TemplateFormatError
			require.True(t, errors.As(err, &tfe), "got %v", err)
			assert.Equal(t, tt.raw, tfe.Template)
		})
	}
}

func TestTemplate_Matches(t *testing.T) {
	plain, err := dump.ParseTemplate("SELECT 1 WHERE {{Pet.id}}")
	require.NoError(t, err)
	assert.True(t, plain.Matches("", "Pet"))
	assert.True(t, plain.Matches("shop", "pet"))
	assert.False(t, plain.Matches("", "Owner"))

	scoped, err := dump.ParseTemplate("SELECT 1 WHERE {{shop.Pet.id}}")
	require.NoError(t, err)
	assert.True(t, scoped.Matches("SHOP", "Pet"))
	assert.False(t, scoped.Matches("other", "Pet"))
	assert.False(t, scoped.Matches("", "Pet"))
}

func TestTemplate_ResolveBatchForm(t *testing.T) {
	tmpl, err := dump.ParseTemplate("SELECT * FROM Owner WHERE id IN ({{*Pet.ownerId}})")
	require.NoError(t, err)

	batch := []dump.Record{
		rec("Pet", "id", 1, "ownerId", 7),
		rec("Pet", "id", 2, "ownerId", 7),
		rec("Pet", "id", 3, "ownerId", 9),
	}
	got := tmpl.Resolve(batch, newFakeSource())
	assert.Equal(t, []string{"SELECT * FROM Owner WHERE id IN (7, 9)"}, got)
}

func TestTemplate_ResolveSingleForm(t *testing.T) {
	tmpl, err := dump.ParseTemplate("SELECT * FROM Owner WHERE name = {{Pet.owner}}")
	require.NoError(t, err)

	batch := []dump.Record{
		rec("Pet", "id", 1, "owner", "ann"),
		rec("Pet", "id", 2, "owner", "o'neil"),
		rec("Pet", "id", 3, "owner", "ann"),
	}
	got := tmpl.Resolve(batch, newFakeSource())
	assert.Equal(t, []string{
		"SELECT * FROM Owner WHERE name = 'ann'",
		"SELECT * FROM Owner WHERE name = 'o''neil'",
	}, got)
}

func TestTemplate_ResolveCaseInsensitiveColumn(t *testing.T) {
	tmpl, err := dump.ParseTemplate("SELECT * FROM Owner WHERE id IN ({{*pet.OWNERID}})")
	require.NoError(t, err)

	got := tmpl.Resolve([]dump.Record{rec("Pet", "ownerId", 5)}, newFakeSource())
	assert.Equal(t, []string{"SELECT * FROM Owner WHERE id IN (5)"}, got)
}

func TestTemplate_ResolveSkipsNull(t *testing.T) {
	multi, err := dump.ParseTemplate("SELECT * FROM Owner WHERE id IN ({{*Pet.ownerId}})")
	require.NoError(t, err)
	single, err := dump.ParseTemplate("SELECT * FROM Owner WHERE id = {{Pet.ownerId}}")
	require.NoError(t, err)

	batch := []dump.Record{
		rec("Pet", "id", 1, "ownerId", nil),
		rec("Pet", "id", 2),
	}
	assert.Empty(t, multi.Resolve(batch, newFakeSource()))
	assert.Empty(t, single.Resolve(batch, newFakeSource()))

	batch = append(batch, rec("Pet", "id", 3, "ownerId", 4))
	assert.Equal(t, []string{"SELECT * FROM Owner WHERE id IN (4)"}, multi.Resolve(batch, newFakeSource()))
	assert.Equal(t, []string{"SELECT * FROM Owner WHERE id = 4"}, single.Resolve(batch, newFakeSource()))
}

func TestTemplate_ResolveMixedForms(t *testing.T) {
	tmpl, err := dump.ParseTemplate("SELECT * FROM Visit WHERE vet = {{Pet.vet}} AND pet IN ({{*Pet.id}})")
	require.NoError(t, err)

	batch := []dump.Record{
		rec("Pet", "id", 1, "vet", "a"),
		rec("Pet", "id", 2, "vet", "b"),
	}
	got := tmpl.Resolve(batch, newFakeSource())
	assert.Equal(t, []string{
		"SELECT * FROM Visit WHERE vet = 'a' AND pet IN (1, 2)",
		"SELECT * FROM Visit WHERE vet = 'b' AND pet IN (1, 2)",
	}, got)
}

func TestParseRelations(t *testing.T) {
	rel, err := dump.ParseRelations(
		[]string{"SELECT * FROM Owner WHERE id IN ({{*Pet.ownerId}})"},
		[]string{"SELECT * FROM Pet WHERE ownerId IN ({{*Owner.id}})"},
	)
	require.NoError(t, err)
	assert.Len(t, rel.PreFor("", "Pet"), 1)
	assert.Empty(t, rel.PostFor("", "Pet"))
	assert.Len(t, rel.PostFor("", "owner"), 1)

	var nilRel *dump.Relations
	assert.Nil(t, nilRel.PreFor("", "Pet"))

	_, err = dump.ParseRelations(nil, []string{"SELECT 1"})
	var tfe *dump.TemplateFormatError
	assert.ErrorAs(t, err, &tfe)
}
