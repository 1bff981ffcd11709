package markduplicates

import (
	"testing"

	"github.com/biogo/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibraryTableAssignsStableIDs(t *testing.T) {
	h, refs := newTestHeader(t, 1, "libA", "libB")
	libs := newLibraryTable(h)

	r := withReadGroup(newTestRecord(t, "r1", refs[0], 0, 0, nil, -1, nil, 10, 30), "rg-libA")
	idA := libs.libraryID(r)
	assert.NotEqual(t, int32(0), idA)
	assert.Equal(t, "libA", libs.name(idA))

	r2 := withReadGroup(newTestRecord(t, "r2", refs[0], 0, 0, nil, -1, nil, 10, 30), "rg-libB")
	idB := libs.libraryID(r2)
	assert.NotEqual(t, idA, idB)
	assert.Equal(t, "libB", libs.name(idB))
}

func TestLibraryTableMissingReadGroupCollapsesToZero(t *testing.T) {
	h, refs := newTestHeader(t, 1, "libA")
	libs := newLibraryTable(h)

	r := newTestRecord(t, "r1", refs[0], 0, 0, nil, -1, nil, 10, 30)
	assert.Equal(t, int32(0), libs.libraryID(r))
	assert.Equal(t, emptyLibraryName, libs.name(0))
}

func TestLibraryTableUnknownReadGroupCollapsesToZero(t *testing.T) {
	h, refs := newTestHeader(t, 1, "libA")
	libs := newLibraryTable(h)

	r := withReadGroup(newTestRecord(t, "r1", refs[0], 0, 0, nil, -1, nil, 10, 30), "rg-does-not-exist")
	assert.Equal(t, int32(0), libs.libraryID(r))
}

func TestLibraryTableNameOutOfRange(t *testing.T) {
	h, _ := newTestHeader(t, 1, "libA")
	libs := newLibraryTable(h)
	assert.Equal(t, "", libs.name(-1))
	assert.Equal(t, "", libs.name(int32(len(libs.names))))
}

func TestCheckCoordinateSortedRejectsUnsorted(t *testing.T) {
	h, _ := newTestHeader(t, 1)
	h.SortOrder = sam.Unsorted
	err := checkCoordinateSorted(h)
	require.Error(t, err)
	_, ok := err.(*usageError)
	assert.True(t, ok)
}

func TestCheckCoordinateSortedAcceptsCoordinate(t *testing.T) {
	h, _ := newTestHeader(t, 1)
	assert.NoError(t, checkCoordinateSorted(h))
}
