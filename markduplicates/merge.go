package markduplicates

import (
	"container/heap"
	"io"
	"os"

	"github.com/grailbio/base/errors"
)

// kwayMerger streams Fingerprints out of a set of sorted shard files
// in global order, via a min-heap keyed on the same order the
// External Sorter used. This generalizes grailbio/bio's
// internalMergeShards (cmd/bio-bam-sort/sorter/sort.go),
// which uses a left-leaning red-black tree (github.com/biogo/store/llrb)
// instead; a binary heap is used here since Fingerprint shards are
// far more numerous and shorter-lived than BAM sortshards, and
// container/heap avoids pulling in biogo/store for a workload that
// doesn't need llrb's range-query capabilities (see DESIGN.md).
type kwayMerger struct {
	readers []*shardReader
	paths   []string
	h       mergeHeap
	err     errors.Once
}

type mergeHeap []*shardReader

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	return sortLess(h[i].value(), h[j].value())
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x interface{}) {
	*h = append(*h, x.(*shardReader))
}
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func newKwayMerger(paths []string) (*kwayMerger, error) {
	m := &kwayMerger{paths: paths}
	for _, p := range paths {
		r, err := openShardReader(p)
		if err != nil {
			m.closeReaders()
			return nil, err
		}
		if r.next() {
			m.h = append(m.h, r)
		} else if r.err != nil && r.err != io.EOF {
			m.closeReaders()
			return nil, errors.E(r.err, "reading initial shard record")
		} else {
			r.closeErr()
		}
	}
	heap.Init(&m.h)
	return m, nil
}

// next returns the next Fingerprint in global sort order, or ok=false
// at end of stream.
func (m *kwayMerger) next() (*Fingerprint, bool, error) {
	if m.h.Len() == 0 {
		return nil, false, nil
	}
	top := m.h[0]
	f := *top.value()
	if top.next() {
		heap.Fix(&m.h, 0)
	} else {
		if top.err != nil && top.err != io.EOF {
			err := top.err
			heap.Pop(&m.h)
			top.closeErr()
			return nil, false, errors.E(err, "reading shard during merge")
		}
		heap.Pop(&m.h)
		if err := top.closeErr(); err != nil {
			return nil, false, errors.E(err, "closing shard after merge")
		}
	}
	return &f, true, nil
}

func (m *kwayMerger) closeReaders() {
	for _, r := range m.h {
		r.closeErr()
	}
}

// removeShards deletes the temp shard files the External Sorter
// produced, once the merge has fully consumed them.
func removeShards(paths []string) {
	for _, p := range paths {
		os.Remove(p)
	}
}
