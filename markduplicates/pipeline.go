package markduplicates

import (
	"os"
	"runtime"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/bgzf"
	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/log"
)

// Run executes the full pipeline against opts: it extracts
// fingerprints, sorts and merges them, classifies duplicate groups,
// and writes the marked (or filtered) output BAM. It returns
// aggregate per-library metrics, and an error of one of the kinds
// documented in errors.go on failure.
//
// Grounded on grailbio/bio's MarkDuplicates.Mark (mark_duplicates.go)
// for the overall open-scan-write shape, generalized from a
// sharded/parallel-bag pipeline to a single-pass
// extract/sort/merge/classify/mark pipeline.
func Run(opts Opts) (*MetricsCollection, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	header, mc, bitmap, shardPaths, err := runExtractSortClassify(opts)
	if shardPaths != nil {
		defer removeShards(shardPaths)
	}
	if err != nil {
		return nil, err
	}

	if err := writeMarkedOutput(opts, header, bitmap); err != nil {
		return nil, err
	}
	if opts.MetricsFile != "" {
		if err := writeMetrics(opts.MetricsFile, mc); err != nil {
			return nil, &outputError{msg: "writing metrics file", cause: err}
		}
	}
	return mc, nil
}

func runExtractSortClassify(opts Opts) (*sam.Header, *MetricsCollection, *duplicateBitmap, []string, error) {
	in, err := os.Open(opts.InputPath)
	if err != nil {
		return nil, nil, nil, nil, &inputError{msg: "opening input BAM", cause: err}
	}
	defer in.Close()

	bamR, err := bam.NewReader(in, runtime.NumCPU())
	if err != nil {
		return nil, nil, nil, nil, &inputError{msg: "parsing BAM header", cause: err}
	}
	defer bamR.Close()

	header := bamR.Header()
	if err := checkCoordinateSorted(header); err != nil {
		return header, nil, nil, nil, err
	}

	libs := newLibraryTable(header)
	sorter := newExternalSorter(opts.BatchSize, opts.sortParallelism(), opts.TmpDir)
	mc := newMetricsCollection()

	ex := newExtractor(libs, mc, func(f *Fingerprint) {
		sorter.add(f)
	})

	n, err := ex.run(bamR)
	if err != nil {
		shardPaths, _ := sorter.close() // best-effort: discard any shards already written
		return header, nil, nil, shardPaths, err
	}
	log.Debug.Printf("extracted %d fingerprints", n)

	shardPaths, err := sorter.close()
	if err != nil {
		return header, nil, nil, shardPaths, &tempError{msg: "sorting fingerprints", cause: err}
	}

	bitmap, stats, err := classifyShards(shardPaths, mc, libs)
	if err != nil {
		return header, nil, nil, shardPaths, err
	}
	log.Debug.Printf("classification: %+v", stats)

	return header, mc, bitmap, shardPaths, nil
}

// classifyShards merges the sorted shard files and classifies each
// grouping-key group as it is buffered.
func classifyShards(shardPaths []string, mc *MetricsCollection, libs *libraryTable) (*duplicateBitmap, classifyStats, error) {
	merger, err := newKwayMerger(shardPaths)
	if err != nil {
		return nil, classifyStats{}, &tempError{msg: "opening sort shards for merge", cause: err}
	}

	cl := newClassifier(mc, libs)
	var buffer []*Fingerprint
	var bufferKey groupKey
	haveKey := false

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		if bufferKey.LibID >= 0 {
			cl.classifyGroup(bufferKey, buffer)
		}
		buffer = buffer[:0]
	}

	for {
		f, ok, err := merger.next()
		if err != nil {
			return nil, classifyStats{}, &tempError{msg: "merging sort shards", cause: err}
		}
		if !ok {
			break
		}
		if f.excluded() {
			continue
		}
		k := f.groupKey()
		if !haveKey {
			bufferKey = k
			haveKey = true
		} else if k != bufferKey {
			flush()
			bufferKey = k
		}
		buffer = append(buffer, f)
	}
	flush()

	return cl.bitmap, cl.stats, nil
}

func writeMarkedOutput(opts Opts, header *sam.Header, bitmap *duplicateBitmap) (err error) {
	in, err := os.Open(opts.InputPath)
	if err != nil {
		return &inputError{msg: "reopening input BAM for mark pass", cause: err}
	}
	defer in.Close()

	out, err := os.Create(opts.OutputPath)
	if err != nil {
		return &outputError{msg: "creating output BAM", cause: err}
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = &outputError{msg: "closing output BAM", cause: cerr}
		}
	}()

	bgzfR, err := bgzf.NewReader(in, runtime.NumCPU())
	if err != nil {
		return &inputError{msg: "opening bgzf input for mark pass", cause: err}
	}
	defer bgzfR.Close()

	reopenedHeader, err := sam.NewHeader(nil, nil)
	if err != nil {
		return &internalError{msg: "allocating header: " + err.Error()}
	}
	if err := reopenedHeader.DecodeBinary(bgzfR); err != nil {
		return &inputError{msg: "re-decoding BAM header for mark pass", cause: err}
	}

	bgzfW := bgzf.NewWriterLevel(out, -1, runtime.NumCPU())
	defer bgzfW.Close()

	if err := header.EncodeBinary(bgzfW); err != nil {
		return &outputError{msg: "writing output BAM header", cause: err}
	}

	mw := newMarkWriter(bitmap, opts.RemoveDuplicates, opts.ClearExisting)
	if err := mw.run(bgzfR, bgzfW); err != nil {
		return err
	}
	return nil
}
