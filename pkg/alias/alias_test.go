package alias

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileAndLookup(t *testing.T) {
	entries := []Entry{
		{Sid: 1, Label: "Gregor the Bartender", ArchetypeLabel: "Actor"},
		{Sid: 2, Label: "Straw Hat Pirates", ArchetypeLabel: "Faction"},
	}
	dict, err := Compile(entries)
	require.NoError(t, err)

	assert.Equal(t, []uint64{1}, dict.Lookup("Gregor the Bartender"))
	assert.Equal(t, []uint64{1}, dict.Lookup("Bartender"), "surname auto-alias")
	assert.Equal(t, []uint64{2}, dict.Lookup("shp"), "acronym auto-alias")
}

func TestScan(t *testing.T) {
	entries := []Entry{
		{Sid: 1, Label: "Gandalf", ArchetypeLabel: "Actor"},
		{Sid: 2, Label: "The Shire", ArchetypeLabel: "Location"},
	}
	dict, err := Compile(entries)
	require.NoError(t, err)

	matches := dict.Scan("Gandalf walked into the Shire.")
	assert.GreaterOrEqual(t, len(matches), 2)
}

func TestIsKnown(t *testing.T) {
	dict, err := Compile([]Entry{{Sid: 1, Label: "Gandalf", ArchetypeLabel: "Actor"}})
	require.NoError(t, err)
	assert.True(t, dict.IsKnown("Gandalf"))
	assert.False(t, dict.IsKnown("Saruman"))
}

func TestPrefixLabels(t *testing.T) {
	dict, err := Compile([]Entry{
		{Sid: 1, Label: "Gandalf the Grey", ArchetypeLabel: "Actor"},
		{Sid: 2, Label: "Gandalf the White", ArchetypeLabel: "Actor"},
	})
	require.NoError(t, err)
	assert.Len(t, dict.PrefixLabels("gandalf"), 2)
}

func TestExplicitAliasesAreIndexed(t *testing.T) {
	dict, err := Compile([]Entry{
		{Sid: 7, Label: "The Rusty Anchor", ArchetypeLabel: "Location", Aliases: []string{"the anchor"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{7}, dict.Lookup("the anchor"))
	assert.Equal(t, []uint64{7}, dict.Lookup("rusty"), "place-like first-token auto-alias")
}
