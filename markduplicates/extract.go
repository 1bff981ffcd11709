package markduplicates

import (
	"io"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
)

// extractor implements the Fingerprint Extractor: a single pass over
// the input BAM that emits one Fingerprint per record, in file order,
// and hands paired-and-mapped-mate records to a pairJoiner so the
// Pair Joiner (pairjoin.go) can resolve mates.
type extractor struct {
	libs    *libraryTable
	joiner  *pairJoiner
	emit    func(*Fingerprint)
	metrics *MetricsCollection
	nextIdx int64
}

func newExtractor(libs *libraryTable, mc *MetricsCollection, emit func(*Fingerprint)) *extractor {
	return &extractor{
		libs:    libs,
		joiner:  newPairJoiner(),
		emit:    emit,
		metrics: mc,
	}
}

// checkCoordinateSorted fails fast on non-coordinate-sorted input,
// since the whole pipeline relies on coordinate order for the
// pair-join table to stay bounded in size.
func checkCoordinateSorted(h *sam.Header) error {
	if h.SortOrder != sam.Coordinate {
		return &usageError{msg: "input BAM must be coordinate-sorted (found sort order: " + h.SortOrder.String() + ")"}
	}
	return nil
}

// run scans every record from r, in order, calling ex.emit for each
// resulting Fingerprint. Returns the total number of records seen
// (N, the exclusive upper bound of valid bitmap indices).
func (ex *extractor) run(r *bam.Reader) (int64, error) {
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, &inputError{msg: "reading BAM record", cause: err}
		}
		if err := ex.process(rec); err != nil {
			return 0, err
		}
	}
	if remaining := ex.joiner.pendingCount(); remaining > 0 {
		return 0, &internalError{msg: "pipeline ended with unmatched paired-end mates: mate never arrived for " +
			itoa(remaining) + " read(s); is the input actually coordinate-sorted with both mates present?"}
	}
	return ex.nextIdx, nil
}

func (ex *extractor) process(r *sam.Record) error {
	idx := ex.nextIdx
	ex.nextIdx++

	libForMetrics := ex.libs.name(ex.libs.libraryID(r))

	if r.Flags&sam.Unmapped != 0 {
		ex.metrics.get(libForMetrics).UnmappedReads++
		ex.emit(&Fingerprint{LibID: -1, Ref1: -1, Pos1: -1, Ref2: -1, Pos2: -1, Idx1: idx, Idx2: -1})
		return nil
	}
	if r.Flags&(sam.Secondary|sam.Supplementary) != 0 {
		ex.metrics.get(libForMetrics).SecondarySupplementary++
		ex.emit(&Fingerprint{LibID: -1, Ref1: -1, Pos1: -1, Ref2: -1, Pos2: -1, Idx1: idx, Idx2: -1})
		return nil
	}

	libID := ex.libs.libraryID(r)
	score := qualityScore(r)
	pos := unclippedFivePrime(r)
	rev := r.Flags&sam.Reverse != 0

	if r.Flags&sam.Paired == 0 || r.Flags&sam.MateUnmapped != 0 {
		// Orphan: mapped read with no mapped mate.
		ex.metrics.get(libForMetrics).UnpairedReads++
		ex.emit(&Fingerprint{
			LibID: libID,
			Ref1:  int32(r.Ref.ID()),
			Pos1:  pos,
			Rev1:  rev,
			Ref2:  -1,
			Pos2:  -1,
			Score: score,
			Idx1:  idx,
			Idx2:  -1,
		})
		return nil
	}

	ex.metrics.get(libForMetrics).ReadPairsExamined++
	partial := &partialFingerprint{
		libID: libID,
		ref1:  int32(r.Ref.ID()),
		pos1:  pos,
		rev1:  rev,
		score: score,
		idx:   idx,
	}
	if a, b, ok := ex.joiner.join(r.Name, partial); ok {
		ex.emit(a)
		ex.emit(b)
	}
	return nil
}
