package eval

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeQuerySet(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queries.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadQuerySet(t *testing.T) {
	path := writeQuerySet(t, `
queries:
  - id: nmn_nad
    type: factual
    query: "Does NMN supplementation raise NAD levels?"
  - id: off_corpus
    type: negative
    query: "How do I weld zirconium?"
    expected_no_evidence: true
`)

	set, err := LoadQuerySet(path)
	require.NoError(t, err)
	require.Len(t, set.Queries, 2)
	assert.Equal(t, "nmn_nad", set.Queries[0].ID)
	assert.False(t, set.Queries[0].ExpectNoEvidence)
	assert.True(t, set.Queries[1].ExpectNoEvidence)
}

func TestLoadQuerySetRejectsDuplicateIDs(t *testing.T) {
	path := writeQuerySet(t, `
queries:
  - id: dup
    query: "one"
  - id: dup
    query: "two"
`)

	_, err := LoadQuerySet(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLoadQuerySetRejectsEmpty(t *testing.T) {
	path := writeQuerySet(t, "queries: []\n")
	_, err := LoadQuerySet(path)
	assert.Error(t, err)

	_, err = LoadQuerySet(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadQuerySetRejectsBlankFields(t *testing.T) {
	path := writeQuerySet(t, `
queries:
  - id: ""
    query: "text"
`)
	_, err := LoadQuerySet(path)
	assert.Error(t, err)

	path = writeQuerySet(t, `
queries:
  - id: ok
    query: "   "
`)
	_, err = LoadQuerySet(path)
	assert.Error(t, err)
}
