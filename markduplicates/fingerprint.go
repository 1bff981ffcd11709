package markduplicates

import (
	"encoding/binary"
	"math"

	"github.com/biogo/hts/sam"
)

// fingerprintSize is the on-disk/in-memory serialized size of a
// Fingerprint.
const fingerprintSize = 43

// Fingerprint is the fixed-width record the pipeline sorts and
// classifies. One Fingerprint is produced per input BAM record by the
// Extractor; the Pair Joiner then turns each paired-end record's
// Fingerprint into a fully cross-linked pair (both ends carrying both
// ends' coordinates).
type Fingerprint struct {
	LibID  int32 // index into the library table, -1 if absent/excluded
	Ref1   int32 // reference id of this end's 5' position, -1 if unmapped
	Pos1   int32 // 5' coordinate of this end, -1 if unmapped
	Rev1   bool  // this end is reverse-strand
	Rev2   bool  // mate is reverse-strand (false for orphans)
	Ref2   int32 // reference id of mate's 5' position, -1 if orphan
	Pos2   int32 // 5' coordinate of mate, -1 if orphan
	Score  int32 // sum of base qualities >= 15, saturating
	Idx1   int64 // index of this end in input BAM order
	Idx2   int64 // index of mate in input BAM order, -1 if orphan
	Paired bool  // true iff this is a properly paired record with mapped mate
}

// excluded reports whether f belongs to the sentinel bucket (unmapped,
// secondary or supplementary records) that is never classified.
func (f *Fingerprint) excluded() bool {
	return f.LibID < 0
}

// groupKey is the tuple fingerprints are sorted and grouped by:
// (lib_id, ref1, pos1, rev1).
type groupKey struct {
	LibID int32
	Ref1  int32
	Pos1  int32
	Rev1  bool
}

func (f *Fingerprint) groupKey() groupKey {
	return groupKey{f.LibID, f.Ref1, f.Pos1, f.Rev1}
}

// less orders groupKeys for the external sort / k-way merge.
func (k groupKey) less(o groupKey) bool {
	if k.LibID != o.LibID {
		return k.LibID < o.LibID
	}
	if k.Ref1 != o.Ref1 {
		return k.Ref1 < o.Ref1
	}
	if k.Pos1 != o.Pos1 {
		return k.Pos1 < o.Pos1
	}
	return !k.Rev1 && o.Rev1
}

func (k groupKey) equal(o groupKey) bool {
	return k == o
}

// mateKey is the second sort/cluster dimension within a group:
// (ref2, pos2, rev2).
type mateKey struct {
	Ref2 int32
	Pos2 int32
	Rev2 bool
}

func (f *Fingerprint) mateKey() mateKey {
	return mateKey{f.Ref2, f.Pos2, f.Rev2}
}

// sortLess implements the full external-sort order for a batch:
// grouping key, then mate key, then score descending, then idx1
// ascending.
func sortLess(a, b *Fingerprint) bool {
	ak, bk := a.groupKey(), b.groupKey()
	if ak != bk {
		return ak.less(bk)
	}
	am, bm := a.mateKey(), b.mateKey()
	if am != bm {
		if am.Ref2 != bm.Ref2 {
			return am.Ref2 < bm.Ref2
		}
		if am.Pos2 != bm.Pos2 {
			return am.Pos2 < bm.Pos2
		}
		return !am.Rev2 && bm.Rev2
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Idx1 < b.Idx1
}

// pairIdentity returns the canonical (min, max) index pair the Pair
// Joiner cross-links.
func pairIdentity(idx1, idx2 int64) (lo, hi int64) {
	if idx1 <= idx2 {
		return idx1, idx2
	}
	return idx2, idx1
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// marshal serializes f into the fixed 43-byte little-endian layout.
func (f *Fingerprint) marshal(buf []byte) {
	_ = buf[fingerprintSize-1]
	binary.LittleEndian.PutUint32(buf[0:4], uint32(f.LibID))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(f.Ref1))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(f.Pos1))
	buf[12] = boolByte(f.Rev1)
	buf[13] = boolByte(f.Rev2)
	binary.LittleEndian.PutUint32(buf[14:18], uint32(f.Ref2))
	binary.LittleEndian.PutUint32(buf[18:22], uint32(f.Pos2))
	binary.LittleEndian.PutUint32(buf[22:26], uint32(f.Score))
	binary.LittleEndian.PutUint64(buf[26:34], uint64(f.Idx1))
	binary.LittleEndian.PutUint64(buf[34:42], uint64(f.Idx2))
	buf[42] = boolByte(f.Paired)
}

// unmarshal populates f from a 43-byte buffer written by marshal.
func (f *Fingerprint) unmarshal(buf []byte) {
	_ = buf[fingerprintSize-1]
	f.LibID = int32(binary.LittleEndian.Uint32(buf[0:4]))
	f.Ref1 = int32(binary.LittleEndian.Uint32(buf[4:8]))
	f.Pos1 = int32(binary.LittleEndian.Uint32(buf[8:12]))
	f.Rev1 = buf[12] != 0
	f.Rev2 = buf[13] != 0
	f.Ref2 = int32(binary.LittleEndian.Uint32(buf[14:18]))
	f.Pos2 = int32(binary.LittleEndian.Uint32(buf[18:22]))
	f.Score = int32(binary.LittleEndian.Uint32(buf[22:26]))
	f.Idx1 = int64(binary.LittleEndian.Uint64(buf[26:34]))
	f.Idx2 = int64(binary.LittleEndian.Uint64(buf[34:42]))
	f.Paired = buf[42] != 0
}

// qualityScore sums base qualities >= 15 over the full read sequence,
// including soft-clipped bases. This mirrors grailbio/bio's
// baseQScore (helpers.go in the original markduplicates package),
// which sums qualities > 14 over the whole Qual slice. The sum
// saturates at math.MaxInt32.
func qualityScore(r *sam.Record) int32 {
	var sum int64
	for _, q := range r.Qual {
		if q >= 15 {
			sum += int64(q)
			if sum > math.MaxInt32 {
				return math.MaxInt32
			}
		}
	}
	return int32(sum)
}

// unclippedFivePrime computes the 5' coordinate that survives
// PCR-duplicate trimming differences: forward reads subtract the
// leading soft-clip, reverse reads add the trailing soft-clip to the
// inclusive alignment end.
func unclippedFivePrime(r *sam.Record) int32 {
	if r.Flags&sam.Reverse != 0 {
		return int32(r.End()-1) + int32(trailingSoftClip(r.Cigar))
	}
	return int32(r.Pos) - int32(leadingSoftClip(r.Cigar))
}

func leadingSoftClip(c sam.Cigar) int {
	if len(c) == 0 || c[0].Type() != sam.CigarSoftClipped {
		return 0
	}
	return c[0].Len()
}

func trailingSoftClip(c sam.Cigar) int {
	if len(c) == 0 || c[len(c)-1].Type() != sam.CigarSoftClipped {
		return 0
	}
	return c[len(c)-1].Len()
}
