package markduplicates

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/biogo/hts/bgzf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildRawRecord constructs a minimal synthetic BAM record payload: a
// 4-byte block_size followed by enough bytes to reach past the FLAG
// field, with flags placed at the real flagByteOffset. The fields
// before and after FLAG are arbitrary filler; markWriter must forward
// them unchanged.
func buildRawRecord(flags uint16) []byte {
	payload := make([]byte, 20)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	binary.LittleEndian.PutUint16(payload[flagByteOffset:flagByteOffset+2], flags)

	buf := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(payload)))
	copy(buf[4:], payload)
	return buf
}

func bgzfCompress(t *testing.T, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := bgzf.NewWriterLevel(&buf, -1, 1)
	_, err := w.Write(raw)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func bgzfDecompress(t *testing.T, compressed []byte) []byte {
	t.Helper()
	r, err := bgzf.NewReader(bytes.NewReader(compressed), 1)
	require.NoError(t, err)
	var out bytes.Buffer
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		out.Write(buf[:n])
		if err != nil {
			break
		}
	}
	return out.Bytes()
}

func runMarkWriter(t *testing.T, bitmap *duplicateBitmap, remove bool, records ...[]byte) []byte {
	t.Helper()
	return runMarkWriterOpts(t, bitmap, remove, false, records...)
}

func runMarkWriterOpts(t *testing.T, bitmap *duplicateBitmap, remove, clearExisting bool, records ...[]byte) []byte {
	t.Helper()
	var raw bytes.Buffer
	for _, rec := range records {
		raw.Write(rec)
	}
	compressed := bgzfCompress(t, raw.Bytes())

	bgzfR, err := bgzf.NewReader(bytes.NewReader(compressed), 1)
	require.NoError(t, err)

	var outBuf bytes.Buffer
	bgzfW := bgzf.NewWriterLevel(&outBuf, -1, 1)

	mw := newMarkWriter(bitmap, remove, clearExisting)
	require.NoError(t, mw.run(bgzfR, bgzfW))
	require.NoError(t, bgzfW.Close())

	return bgzfDecompress(t, outBuf.Bytes())
}

// buildRawRecordWithAux constructs a synthetic record with an empty
// read name, no cigar ops and no sequence (so the aux region starts
// immediately at fixedFieldsSize), followed by the given aux TLV
// bytes verbatim.
func buildRawRecordWithAux(flags uint16, aux []byte) []byte {
	fixed := make([]byte, fixedFieldsSize)
	binary.LittleEndian.PutUint16(fixed[flagByteOffset:flagByteOffset+2], flags)

	payload := append(fixed, aux...)
	buf := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(payload)))
	copy(buf[4:], payload)
	return buf
}

// auxZField encodes a 'Z' (null-terminated string) aux field with the
// given 2-character tag.
func auxZField(tag, value string) []byte {
	b := append([]byte{tag[0], tag[1], 'Z'}, []byte(value)...)
	return append(b, 0)
}

func TestMarkWriterSetsDuplicateFlagBit(t *testing.T) {
	bitmap := newDuplicateBitmap()
	bitmap.mark(0)
	rec := buildRawRecord(0)

	out := runMarkWriter(t, bitmap, false, rec)
	require.Equal(t, len(rec), len(out))

	flags := binary.LittleEndian.Uint16(out[4+flagByteOffset : 4+flagByteOffset+2])
	assert.Equal(t, uint16(dupFlagBit), flags&dupFlagBit)
}

func TestMarkWriterClearsDuplicateFlagBit(t *testing.T) {
	bitmap := newDuplicateBitmap()
	rec := buildRawRecord(dupFlagBit | 0x1)

	out := runMarkWriter(t, bitmap, false, rec)
	flags := binary.LittleEndian.Uint16(out[4+flagByteOffset : 4+flagByteOffset+2])
	assert.Equal(t, uint16(0), flags&dupFlagBit)
	assert.Equal(t, uint16(0x1), flags&0x1)
}

func TestMarkWriterForwardsNonFlagBytesUnchanged(t *testing.T) {
	bitmap := newDuplicateBitmap()
	bitmap.mark(0)
	rec := buildRawRecord(0)

	out := runMarkWriter(t, bitmap, false, rec)
	for i := range rec {
		if i >= 4+flagByteOffset && i < 4+flagByteOffset+2 {
			continue
		}
		if rec[i] != out[i] {
			t.Fatalf("byte %d changed: %d != %d", i, rec[i], out[i])
		}
	}
}

func TestMarkWriterRemoveModeDropsDuplicateRecords(t *testing.T) {
	bitmap := newDuplicateBitmap()
	bitmap.mark(0)
	rec0 := buildRawRecord(0)
	rec1 := buildRawRecord(0)

	out := runMarkWriter(t, bitmap, true, rec0, rec1)
	assert.Equal(t, len(rec1), len(out))
}

// TestMarkWriterRemoveModeLeavesRetainedFlagsUntouched checks that a
// retained (non-duplicate) record's pre-existing flag bits, including
// a stale 0x400 left over from a prior run, survive remove mode byte
// for byte: remove mode's job is dropping duplicates, not also
// clearing or setting the duplicate bit on everything it keeps.
func TestMarkWriterRemoveModeLeavesRetainedFlagsUntouched(t *testing.T) {
	bitmap := newDuplicateBitmap() // idx 0 is not a duplicate in this run
	rec := buildRawRecord(dupFlagBit | 0x1)

	out := runMarkWriter(t, bitmap, true, rec)
	require.Equal(t, rec, out)

	flags := binary.LittleEndian.Uint16(out[4+flagByteOffset : 4+flagByteOffset+2])
	assert.Equal(t, dupFlagBit, flags&dupFlagBit, "stale duplicate bit must not be cleared in remove mode")
}

func TestMarkWriterClearExistingStripsDuplicateAuxTags(t *testing.T) {
	var aux []byte
	aux = append(aux, auxZField("DI", "0")...)
	aux = append(aux, auxZField("RG", "sample1")...)
	aux = append(aux, auxZField("DS", "4")...)
	rec := buildRawRecordWithAux(0, aux)

	bitmap := newDuplicateBitmap()
	out := runMarkWriterOpts(t, bitmap, false, true, rec)

	gotAux := out[4+fixedFieldsSize:]
	assert.NotContains(t, string(gotAux), "DI")
	assert.NotContains(t, string(gotAux), "DS")
	require.Contains(t, string(gotAux), "RG")
	assert.Equal(t, string(auxZField("RG", "sample1")), string(gotAux))
}

func TestMarkWriterWithoutClearExistingKeepsAuxTags(t *testing.T) {
	aux := auxZField("DI", "0")
	rec := buildRawRecordWithAux(0, aux)

	bitmap := newDuplicateBitmap()
	out := runMarkWriterOpts(t, bitmap, false, false, rec)
	assert.Equal(t, rec, out)
}
