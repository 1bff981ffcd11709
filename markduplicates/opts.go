package markduplicates

import "runtime"

// Opts configures a pipeline run, mirroring the package's CLI
// surface. Grounded on grailbio/bio's markduplicates.Opts
// (mark_duplicates.go), trimmed to a narrower scope: no sharding,
// UMI, optical-duplicate, or PAM-output options survive, since those
// are out of scope here.
type Opts struct {
	InputPath  string
	OutputPath string

	// Threads bounds the sort-stage worker pool width.
	Threads int

	// RemoveDuplicates, if true, omits duplicate records from the
	// output instead of marking their flag bit.
	RemoveDuplicates bool

	// BatchSize is the number of fingerprints accumulated in memory
	// before a batch is sorted and spilled to a temp file.
	BatchSize int

	// TmpDir is the directory used for sort-batch temp files; "" means
	// the system default.
	TmpDir string

	// SingleThreaded forces the sort stage to width 1, overriding
	// Threads.
	SingleThreaded bool

	// MetricsFile, if non-empty, receives a Picard/Sambamba-style
	// metrics summary after the run completes.
	MetricsFile string

	// ClearExisting, if true, strips any pre-existing duplicate flag
	// bit and DI/DL/DS/DT/DU aux tags from every retained record
	// before this run's own classification result is applied, so
	// re-running the tool on an already-marked file doesn't leave
	// stale duplicate metadata behind.
	ClearExisting bool

	// Verbose raises the pipeline's logging to debug level.
	Verbose bool
}

// DefaultBatchSize is the default sort-batch size in fingerprints.
const DefaultBatchSize = 2000000

// DefaultOpts returns an Opts with every field at its recommended
// default.
func DefaultOpts() Opts {
	return Opts{
		Threads:   runtime.NumCPU(),
		BatchSize: DefaultBatchSize,
	}
}

// validate checks the invariants that must hold before any I/O
// begins, reporting violations as usage errors.
func (o *Opts) validate() error {
	if o.InputPath == "" {
		return &usageError{msg: "input path is required"}
	}
	if o.OutputPath == "" {
		return &usageError{msg: "output path is required"}
	}
	if o.BatchSize <= 0 {
		return &usageError{msg: "batch-size must be > 0"}
	}
	if o.Threads <= 0 && !o.SingleThreaded {
		return &usageError{msg: "threads must be >= 1"}
	}
	return nil
}

// sortParallelism resolves the effective sort-stage worker count.
func (o *Opts) sortParallelism() int {
	if o.SingleThreaded {
		return 1
	}
	if o.Threads > 0 {
		return o.Threads
	}
	return runtime.NumCPU()
}
