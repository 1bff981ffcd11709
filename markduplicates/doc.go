/*Package markduplicates marks or removes PCR and optical duplicate
  reads in a coordinate-sorted BAM file.

  It reimplements the Sambamba markdup algorithm: output is
  byte-compatible with Sambamba's MarkDuplicates in the sense that
  every record's FLAG carries the same 0x400 bit Sambamba would set,
  and, unless --clear-existing is requested, no other byte of any
  record is touched.

  Duplicate marking concepts:

  Two mapped reads A and B are candidate duplicates of each other if
  their:
    1) reference
    2) unclipped 5' position
    3) strand (forward/reverse)
  are all identical. A read's unclipped 5' position corrects for
  soft-clipping so that reads trimmed differently by the aligner still
  line up: see unclippedFivePrime.

  Two pairs are duplicates of each other if both ends independently
  satisfy the rule above against the other pair's corresponding ends.
  A mapped read whose mate is unmapped (an "orphan") is handled
  specially: an orphan is a duplicate of anything sharing its 5'
  position, whether that's a pair or another orphan, but a pair is
  never a duplicate of an orphan, because the orphan carries no
  information about where its mate would have landed.

  After duplicates are identified, one representative per group is
  kept: the one with the highest per-read (or per-pair) base quality
  score, ties broken in favor of the read that appears earliest in
  the input file.

  Implementation:

  The implementation is a two-pass, external-memory pipeline rather
  than an in-memory one, so inputs much larger than available RAM can
  still be processed:

    1. Fingerprint Extractor (extract.go) makes one pass over the
       input BAM and emits one fixed-size Fingerprint per record.
    2. Pair Joiner (pairjoin.go) resolves each paired-end fingerprint
       against its mate using a read-name-keyed table, which stays
       small as long as the input is coordinate-sorted (mates are
       usually close together).
    3. External Sorter (sorter.go) batches fingerprints, sorts each
       batch in memory, and spills it compressed to a temp file.
    4. K-way Merger (merge.go) streams the sorted batches back in
       global order through a min-heap.
    5. Group Classifier (classify.go) buffers each run of
       equal-grouping-key fingerprints and applies the duplicate rules
       above, writing duplicate record indices into a bitmap.
    6. Mark Writer (markwriter.go) makes a second pass over the input
       BAM, patching only the two FLAG bytes of each record (or
       omitting the record entirely, in remove mode) and forwarding
       everything else unchanged.

  Because the sort and classification stages observe every
  equal-grouping-key fingerprint before producing any output for that
  group, the result is deterministic regardless of how many sort-stage
  workers are used.
*/
package markduplicates
