package markduplicates

import (
	"bufio"
	"io"
	"io/ioutil"
	"os"
	"sort"
	"sync"

	"github.com/golang/snappy"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// DefaultSortBatchSize is the number of fingerprints kept in memory
// before a batch is sorted and spilled to a temp file.
const DefaultSortBatchSize = 1 << 20

// DefaultSortParallelism bounds how many batches may be sorted and
// written to disk concurrently.
const DefaultSortParallelism = 4

// externalSorter batches, sorts, and spills Fingerprints to
// snappy-framed temp files, generalizing grailbio/bio's
// cmd/bio-bam-sort/sorter.Sorter from whole sam.Record-at-a-time
// sortshards to fixed-width Fingerprint batches. It keeps
// grailbio/bio's background-worker-pool shape (a bounded channel of
// in-memory batches drained by a fixed pool of goroutines) but drops
// grailbio/bio's recordio/biopb block format in favor of one flat
// snappy-framed stream per temp file, since Fingerprints have no need
// for grailbio/bio's seekable block index.
type externalSorter struct {
	batchSize   int
	tmpDir      string
	pending     []*Fingerprint
	batchCh     chan []*Fingerprint
	wg          sync.WaitGroup
	mu          sync.Mutex
	shardPaths  []string
	err         errors.Once
	nextTieBrk  uint64
	closeCalled bool
}

func newExternalSorter(batchSize, parallelism int, tmpDir string) *externalSorter {
	if batchSize <= 0 {
		batchSize = DefaultSortBatchSize
	}
	if parallelism <= 0 {
		parallelism = DefaultSortParallelism
	}
	s := &externalSorter{
		batchSize: batchSize,
		tmpDir:    tmpDir,
		batchCh:   make(chan []*Fingerprint, parallelism),
	}
	for i := 0; i < parallelism; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for batch := range s.batchCh {
				path := s.sortAndSpill(batch)
				if path == "" {
					continue
				}
				s.mu.Lock()
				s.shardPaths = append(s.shardPaths, path)
				s.mu.Unlock()
			}
		}()
	}
	return s
}

// add appends a Fingerprint to the current in-memory batch, spilling
// the batch to disk once it reaches batchSize.
func (s *externalSorter) add(f *Fingerprint) {
	s.pending = append(s.pending, f)
	if len(s.pending) >= s.batchSize {
		s.flushBatch()
	}
}

func (s *externalSorter) flushBatch() {
	if len(s.pending) == 0 {
		return
	}
	s.batchCh <- s.pending
	s.pending = nil
}

// close flushes any remaining batch, waits for all background sorts
// to finish, and returns the list of sorted shard paths in no
// particular order. The caller is responsible for removing the shard
// files once merging is complete.
func (s *externalSorter) close() ([]string, error) {
	if s.closeCalled {
		return s.shardPaths, s.err.Err()
	}
	s.closeCalled = true
	s.flushBatch()
	close(s.batchCh)
	s.wg.Wait()
	return s.shardPaths, s.err.Err()
}

func (s *externalSorter) sortAndSpill(batch []*Fingerprint) string {
	sort.Slice(batch, func(i, j int) bool { return sortLess(batch[i], batch[j]) })

	tmp, err := ioutil.TempFile(s.tmpDir, "markdup-sort-")
	if err != nil {
		s.err.Set(errors.E(err, "creating sort temp file"))
		return ""
	}
	defer tmp.Close()
	// A spill that fails part-way removes its temp file.
	spilled := false
	defer func() {
		if !spilled {
			os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	sw := snappy.NewBufferedWriter(bw)
	raw := make([]byte, fingerprintSize)
	for _, f := range batch {
		f.marshal(raw)
		if _, err := sw.Write(raw); err != nil {
			s.err.Set(errors.E(err, "writing sort shard"))
			return ""
		}
	}
	if err := sw.Close(); err != nil {
		s.err.Set(errors.E(err, "closing snappy writer"))
		return ""
	}
	if err := bw.Flush(); err != nil {
		s.err.Set(errors.E(err, "flushing sort shard"))
		return ""
	}
	log.Debug.Printf("wrote sort shard %s: %d fingerprints", tmp.Name(), len(batch))
	spilled = true
	return tmp.Name()
}

// shardReader streams Fingerprints back out of a shard file written
// by sortAndSpill, in the order they were written (already globally
// sorted within the shard).
type shardReader struct {
	f   *os.File
	sr  *snappy.Reader
	buf []byte
	cur Fingerprint
	err error
}

func openShardReader(path string) (*shardReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.E(err, "opening sort shard")
	}
	return &shardReader{
		f:   f,
		sr:  snappy.NewReader(f),
		buf: make([]byte, fingerprintSize),
	}, nil
}

// next advances to the next Fingerprint in the shard. Returns false
// at end of stream or on error (check err()).
func (r *shardReader) next() bool {
	if r.err != nil {
		return false
	}
	if _, err := io.ReadFull(r.sr, r.buf); err != nil {
		r.err = err
		return false
	}
	r.cur.unmarshal(r.buf)
	return true
}

func (r *shardReader) value() *Fingerprint { return &r.cur }

func (r *shardReader) closeErr() error {
	cerr := r.f.Close()
	if r.err != nil && r.err != io.EOF {
		return r.err
	}
	return cerr
}

