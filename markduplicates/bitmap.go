package markduplicates

// duplicateBitmap records which input record indices the Group
// Classifier decided are duplicates. It is sparse (map-backed) rather
// than a dense bit array because only a small fraction of records in
// a typical library are actually flagged duplicate, and because N
// (the number of records) is only known once the Extractor has
// finished its pass. This deliberately does not reuse grailbio/bio's
// dense biosimd-backed bitmaps (encoding/bam and biosimd use flat byte
// slices sized to the whole shard) since those assume a known, small
// shard size; our whole-file index range can be far larger, and
// membership testing here is a flat, unordered set, which is exactly
// what a map already provides without pulling in an interval
// library built for range queries (see DESIGN.md on biogo/store).
type duplicateBitmap struct {
	set map[int64]struct{}
}

func newDuplicateBitmap() *duplicateBitmap {
	return &duplicateBitmap{set: make(map[int64]struct{})}
}

func (b *duplicateBitmap) mark(idx int64) {
	b.set[idx] = struct{}{}
}

func (b *duplicateBitmap) isDuplicate(idx int64) bool {
	_, ok := b.set[idx]
	return ok
}

func (b *duplicateBitmap) len() int {
	return len(b.set)
}

// secondEndSet records group keys that have already appeared as the
// "second end" of some pair cluster in an earlier (lower-coordinate)
// group, so an orphan sharing that position can be recognized as
// redundant with a mate end seen elsewhere. Like duplicateBitmap, this
// is a plain map: the only operation needed is membership testing as
// groups stream by in sorted order.
type secondEndSet struct {
	set map[groupKey]struct{}
}

func newSecondEndSet() *secondEndSet {
	return &secondEndSet{set: make(map[groupKey]struct{})}
}

func (s *secondEndSet) add(k groupKey) {
	s.set[k] = struct{}{}
}

func (s *secondEndSet) contains(k groupKey) bool {
	_, ok := s.set[k]
	return ok
}
