// Command bio-mark-duplicates marks or removes PCR and optical
// duplicate reads in a coordinate-sorted BAM file. See
// github.com/grailbio/markdup/markduplicates/doc.go for the algorithm.
package main

import (
	"flag"
	"os"
	"runtime"

	"github.com/grailbio/base/log"
	md "github.com/grailbio/markdup/markduplicates"
	"github.com/pkg/errors"
)

func main() {
	opts := md.DefaultOpts()

	// Each flag is registered under both its short and long name,
	// bound to the same variable; the stdlib flag package already
	// treats "-i" and "--i" identically, so only the name differs.
	flag.StringVar(&opts.InputPath, "i", "", "input BAM (required)")
	flag.StringVar(&opts.InputPath, "input", "", "input BAM (required)")
	flag.StringVar(&opts.OutputPath, "o", "", "output BAM (required)")
	flag.StringVar(&opts.OutputPath, "output", "", "output BAM (required)")
	flag.IntVar(&opts.Threads, "t", runtime.NumCPU(), "sort-stage worker count")
	flag.IntVar(&opts.Threads, "threads", runtime.NumCPU(), "sort-stage worker count")
	flag.BoolVar(&opts.RemoveDuplicates, "r", false, "omit duplicates instead of marking them")
	flag.BoolVar(&opts.RemoveDuplicates, "remove-duplicates", false, "omit duplicates instead of marking them")
	flag.IntVar(&opts.BatchSize, "batch-size", md.DefaultBatchSize, "fingerprints per sort batch")
	flag.StringVar(&opts.TmpDir, "tmp-dir", "", "directory for batch temp files (default: system temp)")
	flag.BoolVar(&opts.SingleThreaded, "single-threaded", false, "force sort-stage width to 1")
	flag.StringVar(&opts.MetricsFile, "metrics", "", "output metrics file")
	flag.BoolVar(&opts.ClearExisting, "clear-existing", false, "clear existing duplicate flag and DI/DL/DS/DT/DU tags before marking")
	flag.BoolVar(&opts.Verbose, "v", false, "enable debug-level logging")
	flag.BoolVar(&opts.Verbose, "verbose", false, "enable debug-level logging")
	flag.Parse()

	if opts.Verbose {
		log.Level = log.Debug
	}

	if flag.NArg() > 0 {
		log.Error.Printf("unrecognized arguments: %v", flag.Args())
		os.Exit(3)
	}

	mc, err := md.Run(opts)
	if err != nil {
		log.Error.Printf("%v", errors.WithMessage(err, "bio-mark-duplicates"))
		os.Exit(md.ExitCode(err))
	}
	log.Debug.Printf("done: %d librar(y/ies) tallied", len(mc.ByLibrary()))
}
