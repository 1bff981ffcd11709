package markduplicates

// classifyStats tallies how many duplicates each rule produced, so
// the pipeline can emit aggregate statistics without rescanning the
// bitmap.
type classifyStats struct {
	peDuplicates     int64 // duplicates from paired-end mate-key clusters
	orphanDuplicates int64 // duplicates from orphan rules (a) and (b)
	seOnlyDuplicates int64 // duplicates from single-end-only groups
}

// classifier buffers one grouping-key's worth of fingerprints at a
// time and applies Sambamba's duplicate rules. Grounded on
// grailbio/bio's duplicate_key.go / duplicate_index.go clustering
// logic (its original markduplicates package), rewritten around the
// external-sort pipeline's Fingerprint rather than grailbio/bio's
// in-memory ReadEndsForMarkDuplicates map.
type classifier struct {
	bitmap     *duplicateBitmap
	secondEnds *secondEndSet
	stats      classifyStats
	metrics    *MetricsCollection
	libs       *libraryTable
}

func newClassifier(mc *MetricsCollection, libs *libraryTable) *classifier {
	return &classifier{
		bitmap:     newDuplicateBitmap(),
		secondEnds: newSecondEndSet(),
		metrics:    mc,
		libs:       libs,
	}
}

// classifyGroup applies the duplicate rules to one group (all
// fingerprints sharing the same groupKey). The group's own key, not
// derivable from an empty slice, is passed explicitly since
// single-fingerprint groups still need it for the orphan/SE rules.
func (c *classifier) classifyGroup(key groupKey, group []*Fingerprint) {
	var paired, orphans []*Fingerprint
	for _, f := range group {
		if f.Paired {
			paired = append(paired, f)
		} else {
			orphans = append(orphans, f)
		}
	}

	clusters := clusterByMateKey(paired)
	for _, cluster := range clusters {
		c.classifyPairCluster(key.LibID, cluster)
		c.secondEnds.add(groupKey{
			LibID: key.LibID,
			Ref1:  cluster[0].Ref2,
			Pos1:  cluster[0].Pos2,
			Rev1:  cluster[0].Rev2,
		})
	}

	if len(orphans) == 0 {
		return
	}

	redundant := len(paired) > 0 || c.secondEnds.contains(key)
	if redundant {
		for _, o := range orphans {
			if c.bitmap.isDuplicate(o.Idx1) {
				continue
			}
			c.bitmap.mark(o.Idx1)
			c.stats.orphanDuplicates++
			c.metrics.get(c.libs.name(key.LibID)).UnpairedDups++
		}
		return
	}

	// Single-end-only (or orphan-only) group: keep the single
	// highest-scoring orphan, mark the rest. Ties broken by smallest idx1.
	best := orphans[0]
	for _, o := range orphans[1:] {
		if o.Score > best.Score || (o.Score == best.Score && o.Idx1 < best.Idx1) {
			best = o
		}
	}
	for _, o := range orphans {
		if o == best {
			continue
		}
		if c.bitmap.isDuplicate(o.Idx1) {
			continue
		}
		c.bitmap.mark(o.Idx1)
		c.stats.seOnlyDuplicates++
		c.metrics.get(c.libs.name(key.LibID)).UnpairedDups++
	}
}

// clusterByMateKey groups paired fingerprints sharing a mate key. The
// merged stream already sorts by mate key within a grouping key (see
// sortLess), so this is a single linear pass rather than a map.
func clusterByMateKey(paired []*Fingerprint) [][]*Fingerprint {
	if len(paired) == 0 {
		return nil
	}
	var clusters [][]*Fingerprint
	start := 0
	cur := paired[0].mateKey()
	for i := 1; i < len(paired); i++ {
		k := paired[i].mateKey()
		if k != cur {
			clusters = append(clusters, paired[start:i])
			start = i
			cur = k
		}
	}
	clusters = append(clusters, paired[start:])
	return clusters
}

// classifyPairCluster picks the representative (highest score, ties
// by smallest (min(idx1,idx2), max(idx1,idx2))) and marks every other
// fingerprint's both ends as duplicates.
func (c *classifier) classifyPairCluster(libID int32, cluster []*Fingerprint) {
	if len(cluster) <= 1 {
		return
	}
	best := cluster[0]
	bestLo, bestHi := pairIdentity(best.Idx1, best.Idx2)
	for _, f := range cluster[1:] {
		lo, hi := pairIdentity(f.Idx1, f.Idx2)
		if f.Score > best.Score ||
			(f.Score == best.Score && (lo < bestLo || (lo == bestLo && hi < bestHi))) {
			best, bestLo, bestHi = f, lo, hi
		}
	}
	name := c.libs.name(libID)
	for _, f := range cluster {
		if f == best {
			continue
		}
		marked := false
		if !c.bitmap.isDuplicate(f.Idx1) {
			c.bitmap.mark(f.Idx1)
			c.stats.peDuplicates++
			marked = true
		}
		if !c.bitmap.isDuplicate(f.Idx2) {
			c.bitmap.mark(f.Idx2)
			c.stats.peDuplicates++
			marked = true
		}
		if marked {
			c.metrics.get(name).ReadPairDups += 2
		}
	}
}
