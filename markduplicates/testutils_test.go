package markduplicates

import (
	"testing"
	"time"

	"github.com/biogo/hts/sam"
	"github.com/stretchr/testify/require"
)

// newTestHeader builds a coordinate-sorted header with nRefs references
// and, for each library name lib in libs, a read group named "rg-"+lib
// whose LB is lib.
func newTestHeader(t *testing.T, nRefs int, libs ...string) (*sam.Header, []*sam.Reference) {
	t.Helper()
	refs := make([]*sam.Reference, nRefs)
	for i := 0; i < nRefs; i++ {
		r, err := sam.NewReference(refName(i), "", "", 1<<30, nil, nil)
		require.NoError(t, err)
		refs[i] = r
	}
	h, err := sam.NewHeader(nil, refs)
	require.NoError(t, err)
	h.SortOrder = sam.Coordinate
	for _, lib := range libs {
		rg, err := sam.NewReadGroup("rg-"+lib, "", "", lib, "", "", "", "", "", "", time.Time{}, 0)
		require.NoError(t, err)
		require.NoError(t, h.AddReadGroup(rg))
	}
	return h, refs
}

func refName(i int) string {
	return string(rune('A' + i))
}

// newTestRecord builds a minimal, well-formed *sam.Record for use in
// fingerprint/pairing/classification tests. qual sets every base's
// quality to the same value; pass readLen 0 for an empty read.
func newTestRecord(t *testing.T, name string, ref *sam.Reference, pos int, flags sam.Flags, mateRef *sam.Reference, matePos int, cigar sam.Cigar, readLen int, qual byte) *sam.Record {
	t.Helper()
	seq := make([]byte, readLen)
	for i := range seq {
		seq[i] = 'A'
	}
	quals := make([]byte, readLen)
	for i := range quals {
		quals[i] = qual
	}
	r, err := sam.NewRecord(name, ref, mateRef, pos, matePos, 0, 0, cigar, seq, quals, nil)
	require.NoError(t, err)
	r.Flags = flags
	return r
}

func withReadGroup(r *sam.Record, rgName string) *sam.Record {
	aux, err := sam.NewAux(rgTag, rgName)
	if err != nil {
		panic(err)
	}
	r.AuxFields = append(r.AuxFields, aux)
	return r
}
