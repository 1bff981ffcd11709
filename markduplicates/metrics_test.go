package markduplicates

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollectionGetIsLazy(t *testing.T) {
	mc := newMetricsCollection()
	assert.Empty(t, mc.ByLibrary())

	m := mc.get("libA")
	m.UnpairedReads = 5
	assert.Same(t, m, mc.get("libA"))
	assert.Len(t, mc.ByLibrary(), 1)
}

func TestMetricsStringFormatsFields(t *testing.T) {
	m := &Metrics{
		UnpairedReads:          2,
		ReadPairsExamined:      20,
		SecondarySupplementary: 1,
		UnmappedReads:          3,
		UnpairedDups:           1,
		ReadPairDups:           4,
	}
	s := m.String()
	assert.Contains(t, s, "2\t10\t1\t3\t1\t2\t")
}

func TestWriteMetricsProducesTabSeparatedFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "markdup-metrics-test-")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	mc := newMetricsCollection()
	mc.get("libA").ReadPairsExamined = 10
	mc.get(emptyLibraryName).ReadPairsExamined = 4

	path := filepath.Join(dir, "metrics.txt")
	require.NoError(t, writeMetrics(path, mc))

	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "LIBRARY\tUNPAIRED_READS_EXAMINED")
	assert.Contains(t, content, "libA\t")
	assert.Contains(t, content, "Unknown Library\t")
}
