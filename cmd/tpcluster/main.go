// Command tpcluster reconstructs clusters from trigger-primitive ROOT files.
//
// Each input file becomes one run in the results database: events are read,
// backtracked against truth, clustered per plane, matched across planes and
// written out as cluster records.
//
// Usage:
//
//	tpcluster [flags] input.root [input2.root ...]
//
// Flags:
//
//	-config   Tuning config JSON (default: built-in defaults)
//	-db       Results database (default: tpc_results.db)
//	-root-out Also write cluster records to this ROOT file (single input only)
//	-plots    Directory for diagnostic histograms
//	-map      HTML file for the cluster map
//	-no-truth Skip backtracking (data without Monte-Carlo streams)
//	-version  Print the version and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/config"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/diagnostics"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/geometry"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/ingest"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/pipeline"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/record"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/rootio"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/storage/sqlite"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/version"
)

type options struct {
	configPath  string
	dbPath      string
	rootOut     string
	plotsDir    string
	mapPath     string
	noTruth     bool
	showVersion bool
	inputs      []string
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("tpcluster", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "Tuning config JSON (default: built-in defaults)")
	fs.StringVar(&o.dbPath, "db", "tpc_results.db", "Results database")
	fs.StringVar(&o.rootOut, "root-out", "", "Also write cluster records to this ROOT file")
	fs.StringVar(&o.plotsDir, "plots", "", "Directory for diagnostic histograms")
	fs.StringVar(&o.mapPath, "map", "", "HTML file for the cluster map")
	fs.BoolVar(&o.noTruth, "no-truth", false, "Skip backtracking")
	fs.BoolVar(&o.showVersion, "version", false, "Print the version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	o.inputs = fs.Args()
	if o.showVersion {
		return o, nil
	}
	if len(o.inputs) == 0 {
		return o, errors.New("at least one input file is required")
	}
	if o.rootOut != "" && len(o.inputs) > 1 {
		return o, errors.New("-root-out takes a single input file")
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("tpcluster: %v", err)
	}
	if opts.showVersion {
		fmt.Printf("tpcluster %s\n", version.String())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		log.Fatalf("tpcluster: %v", err)
	}
}

func loadConfig(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

// run processes every input into the results database.
func run(ctx context.Context, opts options, out io.Writer) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	pcfg := pipeline.ConfigFromTuning(cfg)
	pcfg.SkipBacktrack = opts.noTruth
	names := rootio.TreeNamesFromConfig(cfg)

	store, err := sqlite.Open(opts.dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	collector := diagnostics.NewCollector()
	for _, input := range opts.inputs {
		if err := processFile(ctx, store, cfg, pcfg, names, input, opts.rootOut, collector, out); err != nil {
			return err
		}
	}

	if opts.plotsDir != "" {
		files, err := collector.SaveHistograms(opts.plotsDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %d histograms to %s\n", len(files), opts.plotsDir)
	}
	if opts.mapPath != "" {
		f, err := os.Create(opts.mapPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", opts.mapPath, err)
		}
		if err := diagnostics.RenderClusterMap(f, "Reconstructed clusters", collector.Points()); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote cluster map to %s\n", opts.mapPath)
	}
	return nil
}

func processFile(ctx context.Context, store *sqlite.Store, cfg *config.TuningConfig, pcfg pipeline.Config,
	names rootio.TreeNames, input, rootOut string, collector *diagnostics.Collector, out io.Writer) error {
	reader, err := rootio.Open(ctx, input, names)
	if err != nil {
		return err
	}
	defer reader.Close()

	stored, err := store.CreateRun(ctx, input, cfg)
	if err != nil {
		return err
	}
	dbSink := store.NewRunSink(stored.RunID)
	sink := multiSink{dbSink}

	var rootSink *rootio.ClusterWriter
	if rootOut != "" {
		rootSink, err = rootio.Create(rootOut, rootio.DefaultClusterTree)
		if err != nil {
			return err
		}
		sink = append(sink, rootSink)
	}

	builder := ingest.NewBuilder(pcfg.Geometry, cfg)
	if pcfg.SkipBacktrack {
		builder.SetRequired(ingest.StreamTPs)
	}
	runner := &pipeline.Runner{
		Source:   reader,
		Builder:  builder,
		Pipeline: pipeline.New(pcfg),
		Sink:     sink,
		Observe:  collector.Observe,
	}
	sum, runErr := runner.Run(ctx)
	if rootSink != nil {
		if err := rootSink.Close(); err != nil && runErr == nil {
			runErr = err
		}
	}
	if runErr != nil {
		return fmt.Errorf("%s: %w", input, runErr)
	}
	if err := store.FinishRun(ctx, stored.RunID, sum.Events, sum.Skipped, dbSink.Records()); err != nil {
		return err
	}
	printSummary(out, input, stored.RunID, sum)
	return nil
}

func printSummary(out io.Writer, input, runID string, sum pipeline.Summary) {
	fmt.Fprintf(out, "Run %s (%s)\n", runID, input)
	fmt.Fprintf(out, "  events:    %d processed, %d skipped\n", sum.Events, sum.Skipped)
	for reason, n := range sum.SkipReasons {
		fmt.Fprintf(out, "    %-22s %d\n", reason, n)
	}
	fmt.Fprintf(out, "  TPs:       %d (%d truth-matched, %d below ToT cut)\n", sum.TPs, sum.MatchedTPs, sum.FilteredTPs)
	fmt.Fprintf(out, "  clusters:  U %d, V %d, X %d\n",
		sum.Clusters[geometry.ViewU], sum.Clusters[geometry.ViewV], sum.Clusters[geometry.ViewX])
	fmt.Fprintf(out, "  matches:   %d, volumes: %d\n", sum.Matches, sum.Volumes)
	fmt.Fprintf(out, "  records:   %d\n", sum.Records)
	fmt.Fprintf(out, "  offsets:   %d events\n", sum.OffsetsApplied)
	if sum.FieldWarnings > 0 {
		fmt.Fprintf(out, "  warnings:  %d input fields\n", sum.FieldWarnings)
	}
}

// multiSink fans records out to several sinks. Matches go only to sinks
// that store them.
type multiSink []pipeline.Sink

func (m multiSink) WriteClusters(ctx context.Context, event int64, recs []record.ClusterRecord) error {
	for _, s := range m {
		if err := s.WriteClusters(ctx, event, recs); err != nil {
			return err
		}
	}
	return nil
}

func (m multiSink) WriteMatches(ctx context.Context, event int64, matches []record.MatchRecord) error {
	for _, s := range m {
		if ms, ok := s.(pipeline.MatchSink); ok {
			if err := ms.WriteMatches(ctx, event, matches); err != nil {
				return err
			}
		}
	}
	return nil
}
