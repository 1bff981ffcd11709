package markduplicates

import (
	"encoding/binary"
	"io"

	"github.com/biogo/hts/bgzf"
	"github.com/biogo/hts/sam"
)

// flagByteOffset is the offset of the 2-byte FLAG field within a BAM
// record's payload (the bytes following the record's own 4-byte
// block_size). Per the published BAM binary layout:
//
//	refID(4) pos(4) l_read_name(1) mapq(1) bin(2) n_cigar_op(2) flag(2) ...
//
// flag therefore begins at byte 14, not 12: offset 12-13 is
// n_cigar_op (see DESIGN.md for the derivation); github.com/biogo/hts/bam's
// own Reader.Read (reader.go) decodes the fields in exactly this
// order, confirming the layout.
const flagByteOffset = 14

const dupFlagBit = uint16(sam.Duplicate) // 0x400

// fixedFieldsSize is the size, in bytes, of a BAM record's
// fixed-width field block: everything between block_size and
// read_name (refID, pos, l_read_name, mapq, bin, n_cigar_op, flag,
// l_seq, next_refID, next_pos, tlen).
const fixedFieldsSize = 32

// clearedTags are the duplicate-run-specific aux tags --clear-existing
// strips from retained records in the output pass, matching grailbio/bio's
// clearDupFlagTags (helpers.go): DI (duplicate-set index), DL
// (library-duplicate count), DS (duplicate-set size), DT
// (duplicate type), DU (optical/library duplicate flag). All five are
// stamped by a prior Picard/Sambamba/grailbio-bio run and would
// otherwise linger, stale, in the output of a second run.
var clearedTags = [][2]byte{{'D', 'I'}, {'D', 'L'}, {'D', 'S'}, {'D', 'T'}, {'D', 'U'}}

// markWriter implements the Mark Writer: a second pass over the
// input BAM that patches only the two FLAG bytes of each record (or
// skips the record entirely in remove mode) and forwards every other
// byte unchanged. It deliberately reads and writes raw record
// payloads via bgzf directly rather than through bam.Reader/
// bam.Writer, since re-serializing through a sam.Record would violate
// the "forward bytes, patch two" contract. When clearExisting is set,
// it also strips clearedTags and the incoming duplicate flag bit from
// every retained record before applying this run's own classification
// result, so re-running the tool on an already-marked file doesn't
// leave stale duplicate metadata behind.
type markWriter struct {
	bitmap        *duplicateBitmap
	remove        bool
	clearExisting bool
	nextIdx       int64
}

func newMarkWriter(bitmap *duplicateBitmap, remove, clearExisting bool) *markWriter {
	return &markWriter{bitmap: bitmap, remove: remove, clearExisting: clearExisting}
}

// auxRegionStart locates the byte offset, within payload, where the
// variable-length aux (tag-value) fields begin: immediately after
// read_name, cigar, seq and qual. Returns ok=false if payload is too
// short to contain a well-formed fixed field block.
func auxRegionStart(payload []byte) (int, bool) {
	if len(payload) < fixedFieldsSize {
		return 0, false
	}
	lReadName := int(payload[8])
	nCigarOp := int(binary.LittleEndian.Uint16(payload[12:14]))
	lSeq := int(binary.LittleEndian.Uint32(payload[16:20]))
	start := fixedFieldsSize + lReadName + nCigarOp*4 + (lSeq+1)/2 + lSeq
	if start > len(payload) {
		return 0, false
	}
	return start, true
}

// auxFieldSize returns the total encoded size (2-byte tag + 1-byte
// type + value) of the aux field starting at payload[off], or -1 if
// its type byte isn't one this package knows how to size, in which
// case the caller must stop parsing and keep the remainder verbatim
// rather than risk miscounting into the middle of a field.
func auxFieldSize(payload []byte, off int) int {
	switch payload[off+2] {
	case 'A', 'c', 'C':
		return 4
	case 's', 'S':
		return 5
	case 'i', 'I', 'f':
		return 7
	case 'Z', 'H':
		end := off + 3
		for end < len(payload) && payload[end] != 0 {
			end++
		}
		if end >= len(payload) {
			return -1
		}
		return end - off + 1
	case 'B':
		if off+8 > len(payload) {
			return -1
		}
		n := int(binary.LittleEndian.Uint32(payload[off+4 : off+8]))
		var elemSize int
		switch payload[off+3] {
		case 'c', 'C':
			elemSize = 1
		case 's', 'S':
			elemSize = 2
		case 'i', 'I', 'f':
			elemSize = 4
		default:
			return -1
		}
		return 8 + n*elemSize
	default:
		return -1
	}
}

// stripTags returns payload with every aux field whose tag appears in
// clearedTags removed, leaving everything else (including field
// order) unchanged. If an unrecognized aux type is encountered the
// remainder of the aux region is kept as-is rather than risk
// corrupting it.
func stripTags(payload []byte, auxStart int) []byte {
	out := make([]byte, auxStart, len(payload))
	copy(out, payload[:auxStart])
	i := auxStart
	for i+3 <= len(payload) {
		sz := auxFieldSize(payload, i)
		if sz < 0 || i+sz > len(payload) {
			out = append(out, payload[i:]...)
			return out
		}
		cleared := false
		for _, t := range clearedTags {
			if payload[i] == t[0] && payload[i+1] == t[1] {
				cleared = true
				break
			}
		}
		if !cleared {
			out = append(out, payload[i:i+sz]...)
		}
		i += sz
	}
	return out
}

// run reads raw records from bgzfR (positioned just after the BAM
// header) and writes the marked/filtered stream to bgzfW. It does not
// read or write the header; callers are expected to have already
// consumed the input header and written the output header.
func (m *markWriter) run(bgzfR *bgzf.Reader, bgzfW *bgzf.Writer) error {
	var sizeBuf [4]byte
	for {
		if _, err := io.ReadFull(bgzfR, sizeBuf[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			return &inputError{msg: "reading record block_size", cause: err}
		}
		blockSize := binary.LittleEndian.Uint32(sizeBuf[:])
		payload := make([]byte, blockSize)
		if _, err := io.ReadFull(bgzfR, payload); err != nil {
			return &inputError{msg: "reading record payload", cause: err}
		}

		idx := m.nextIdx
		m.nextIdx++

		isDup := m.bitmap.isDuplicate(idx)
		if m.remove {
			if isDup {
				continue
			}
			// Retained records in remove mode are forwarded byte-for-byte:
			// remove mode drops duplicates outright, it does not also take
			// over mark mode's job of setting/clearing the flag bit on
			// every other record. The exception is clearExisting, which
			// also clears a stale duplicate bit left by a prior run.
			if m.clearExisting && len(payload) >= flagByteOffset+2 {
				flags := binary.LittleEndian.Uint16(payload[flagByteOffset : flagByteOffset+2])
				binary.LittleEndian.PutUint16(payload[flagByteOffset:flagByteOffset+2], flags&^dupFlagBit)
			}
		} else if len(payload) >= flagByteOffset+2 {
			flags := binary.LittleEndian.Uint16(payload[flagByteOffset : flagByteOffset+2])
			if isDup {
				flags |= dupFlagBit
			} else {
				flags &^= dupFlagBit
			}
			binary.LittleEndian.PutUint16(payload[flagByteOffset:flagByteOffset+2], flags)
		}

		if m.clearExisting {
			if start, ok := auxRegionStart(payload); ok {
				payload = stripTags(payload, start)
			}
			binary.LittleEndian.PutUint32(sizeBuf[:], uint32(len(payload)))
		}

		if _, err := bgzfW.Write(sizeBuf[:]); err != nil {
			return &outputError{msg: "writing record block_size", cause: err}
		}
		if _, err := bgzfW.Write(payload); err != nil {
			return &outputError{msg: "writing record payload", cause: err}
		}
	}
}
