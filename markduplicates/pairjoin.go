package markduplicates

import (
	"math"

	"github.com/dgryski/go-farm"
)

// partialFingerprint holds the fields the Extractor can compute from
// a single paired-end record, before its mate has been seen.
type partialFingerprint struct {
	libID int32
	ref1  int32
	pos1  int32
	rev1  bool
	score int32
	idx   int64
}

// pairJoiner resolves paired-end records against their mates using a
// read-name-keyed table. Grounded on grailbio/bio's read_pair.go
// pairing table, generalized from its shard-local bucket-by-name map
// to a single whole-file table keyed
// by a farm hash of the read name (github.com/dgryski/go-farm, which
// grailbio/base itself prefers over the built-in map hash for
// read-name-keyed lookups).
//
// Because the pipeline requires coordinate-sorted input, mates of a
// properly paired read are almost always within a small window of
// each other, so this table stays small in practice even though
// nothing here bounds it structurally.
type pairJoiner struct {
	pending map[uint64][]pendingMate
}

type pendingMate struct {
	name string
	fp   *partialFingerprint
}

func newPairJoiner() *pairJoiner {
	return &pairJoiner{pending: make(map[uint64][]pendingMate)}
}

func nameHash(name string) uint64 {
	return farm.Hash64([]byte(name))
}

// join registers the current record's partial fingerprint under its
// read name. If the mate was already seen, join cross-links both ends
// into full Fingerprints and returns them with ok=true; otherwise it
// stashes the current record and returns ok=false.
func (j *pairJoiner) join(name string, fp *partialFingerprint) (a, b *Fingerprint, ok bool) {
	h := nameHash(name)
	bucket := j.pending[h]
	for i, m := range bucket {
		if m.name != name {
			continue
		}
		// Found the mate: remove it from the bucket and build both ends.
		bucket = append(bucket[:i], bucket[i+1:]...)
		if len(bucket) == 0 {
			delete(j.pending, h)
		} else {
			j.pending[h] = bucket
		}
		first := buildPairedFingerprint(m.fp, fp)
		second := buildPairedFingerprint(fp, m.fp)
		return first, second, true
	}
	j.pending[h] = append(bucket, pendingMate{name: name, fp: fp})
	return nil, nil, false
}

// buildPairedFingerprint constructs the Fingerprint for "this" end of
// a pair, cross-linking in "mate" end's coordinates. The pair score
// saturates at math.MaxInt32.
func buildPairedFingerprint(this, mate *partialFingerprint) *Fingerprint {
	score := int64(this.score) + int64(mate.score)
	if score > math.MaxInt32 {
		score = math.MaxInt32
	}
	return &Fingerprint{
		LibID:  this.libID,
		Ref1:   this.ref1,
		Pos1:   this.pos1,
		Rev1:   this.rev1,
		Rev2:   mate.rev1,
		Ref2:   mate.ref1,
		Pos2:   mate.pos1,
		Score:  int32(score),
		Idx1:   this.idx,
		Idx2:   mate.idx,
		Paired: true,
	}
}

// pendingCount returns the number of records still awaiting a mate.
// A non-zero value after the input is fully consumed indicates a
// malformed or non-coordinate-sorted input (a mate that never
// arrives).
func (j *pairJoiner) pendingCount() int {
	n := 0
	for _, bucket := range j.pending {
		n += len(bucket)
	}
	return n
}
