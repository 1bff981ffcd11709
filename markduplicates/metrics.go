package markduplicates

import (
	"fmt"
	"os"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Metrics reports the per-library duplication summary, adapted from
// grailbio/bio's Picard-style Metrics (metrics.go). Optical-duplicate
// fields are dropped: optical-duplicate detection is an explicit
// non-goal.
type Metrics struct {
	UnpairedReads          int64
	ReadPairsExamined      int64
	SecondarySupplementary int64
	UnmappedReads          int64
	UnpairedDups           int64
	ReadPairDups           int64
}

// String renders m in grailbio/bio's tab-separated metrics-line
// format, with an estimated library size computed via the
// Lander-Waterman equation (library_size.go).
func (m *Metrics) String() string {
	librarySizeStr := "0"
	pairs := uint64(m.ReadPairsExamined / 2)
	dups := uint64(m.ReadPairDups / 2)
	if pairs > dups {
		librarySize, err := estimateLibrarySize(pairs, pairs-dups)
		if err == nil {
			librarySizeStr = fmt.Sprintf("%v", librarySize)
		} else {
			log.Error.Printf("error in estimateLibrarySize(%v, %v): %v", pairs, pairs-dups, err)
		}
	}
	total := m.UnpairedReads + m.ReadPairsExamined
	pct := 0.0
	if total > 0 {
		pct = 100 * (float64(m.UnpairedDups+m.ReadPairDups) / float64(total))
	}
	return fmt.Sprintf("%d\t%d\t%d\t%d\t%d\t%d\t%0.6f\t%v",
		m.UnpairedReads, m.ReadPairsExamined/2, m.SecondarySupplementary,
		m.UnmappedReads, m.UnpairedDups, m.ReadPairDups/2, pct, librarySizeStr)
}

// MetricsCollection accumulates per-library Metrics as the pipeline
// scans fingerprints and classifies groups.
type MetricsCollection struct {
	byLibrary map[string]*Metrics
}

func newMetricsCollection() *MetricsCollection {
	return &MetricsCollection{byLibrary: make(map[string]*Metrics)}
}

func (mc *MetricsCollection) get(library string) *Metrics {
	m, ok := mc.byLibrary[library]
	if !ok {
		m = &Metrics{}
		mc.byLibrary[library] = m
	}
	return m
}

// ByLibrary returns the per-library metrics collected during a run.
func (mc *MetricsCollection) ByLibrary() map[string]*Metrics {
	return mc.byLibrary
}

// writeMetrics writes mc in grailbio/bio's tab-separated metrics-file
// format to path.
func writeMetrics(path string, mc *MetricsCollection) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.E(err, "couldn't create metrics file", path)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	libraries := make([]string, 0, len(mc.byLibrary))
	for lib := range mc.byLibrary {
		libraries = append(libraries, lib)
	}
	sort.Strings(libraries)

	header := "# bio-mark-duplicates\n" +
		"LIBRARY\tUNPAIRED_READS_EXAMINED\tREAD_PAIRS_EXAMINED\t" +
		"SECONDARY_OR_SUPPLEMENTARY_RDS\tUNMAPPED_READS\tUNPAIRED_READ_DUPLICATES\t" +
		"READ_PAIR_DUPLICATES\tPERCENT_DUPLICATION\tESTIMATED_LIBRARY_SIZE\n"
	if _, err = f.WriteString(header); err != nil {
		return errors.E(err, "error writing to metrics file", path)
	}
	for _, lib := range libraries {
		name := lib
		if name == emptyLibraryName {
			name = "Unknown Library"
		}
		if _, err = fmt.Fprintf(f, "%s\t%s\n", name, mc.byLibrary[lib].String()); err != nil {
			return errors.E(err, "error writing to metrics file", path)
		}
	}
	return nil
}
