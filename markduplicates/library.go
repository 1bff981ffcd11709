package markduplicates

import "github.com/biogo/hts/sam"

var rgTag = sam.Tag{'R', 'G'}

// libraryTable assigns a stable integer id to each distinct LB value
// found in the header's read groups. Reads lacking a read group or
// whose read group lacks an LB tag collapse to library 0, the
// "empty-library" sentinel, so such reads are never silently split
// into per-read-group libraries (DESIGN.md, grounded on grailbio/bio's
// helpers.go GetLibrary).
type libraryTable struct {
	idByReadGroup map[string]int32
	names         []string // names[id] is the library name for id
}

const emptyLibraryName = ""

func newLibraryTable(h *sam.Header) *libraryTable {
	t := &libraryTable{
		idByReadGroup: make(map[string]int32),
		names:         []string{emptyLibraryName},
	}
	libIDByName := map[string]int32{emptyLibraryName: 0}
	for _, rg := range h.RGs() {
		lib := rg.Library()
		id, ok := libIDByName[lib]
		if !ok {
			id = int32(len(t.names))
			libIDByName[lib] = id
			t.names = append(t.names, lib)
		}
		t.idByReadGroup[rg.Name()] = id
	}
	return t
}

// libraryID returns the library id for a mapped, non-secondary,
// non-supplementary record. Records with no RG tag, or an RG tag not
// present in the header, collapse to library 0.
func (t *libraryTable) libraryID(r *sam.Record) int32 {
	aux := r.AuxFields.Get(rgTag)
	if aux == nil {
		return 0
	}
	name, ok := aux.Value().(string)
	if !ok {
		return 0
	}
	id, ok := t.idByReadGroup[name]
	if !ok {
		return 0
	}
	return id
}

// name returns the library name for id, or "" if id is out of range.
func (t *libraryTable) name(id int32) string {
	if id < 0 || int(id) >= len(t.names) {
		return ""
	}
	return t.names[id]
}
