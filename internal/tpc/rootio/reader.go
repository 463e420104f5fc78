// Package rootio reads the upstream ROOT trees into ingest records and
// writes cluster records back out as a flat TTree.
//
// Reading is eager: Open loads every configured tree, groups the rows by
// event and serves them through the ingest.Source interface. A tree that is
// missing from the file marks its stream absent instead of failing the open;
// the Builder decides whether that is fatal for an event.
package rootio

import (
	"context"
	"fmt"
	"io"
	"reflect"
	"strings"

	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/riofs"
	"go-hep.org/x/hep/groot/root"
	"go-hep.org/x/hep/groot/rtree"

	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/config"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/monitoring"
	"github.com/dune-sn-online-pointing/online-pointing-utils-sub001/internal/tpc/ingest"
)

// ctxCheckEvery is how many entries are read between context checks.
const ctxCheckEvery = 4096

// TreeNames locates the four input trees inside a file.
type TreeNames struct {
	TPs       string
	Particles string
	Truth     string
	Deposits  string
}

// TreeNamesFromConfig reads the tree paths from the tuning config.
func TreeNamesFromConfig(cfg *config.TuningConfig) TreeNames {
	return TreeNames{
		TPs:       cfg.GetTPTree(),
		Particles: cfg.GetParticleTree(),
		Truth:     cfg.GetMCTruthTree(),
		Deposits:  cfg.GetSimIDETree(),
	}
}

// Reader serves the events of one ROOT file.
type Reader struct {
	path    string
	present ingest.Stream
	events  []*ingest.EventRecords
	pos     int
	res     *ingest.Resolver
}

var _ ingest.Source = (*Reader)(nil)

// Open reads every configured tree of path.
func Open(ctx context.Context, path string, names TreeNames) (*Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := groot.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := &Reader{path: path, res: ingest.NewResolver(path)}
	dir := riofs.Dir(f)

	var (
		tps       []ingest.TPRecord
		particles []ingest.ParticleRecord
		truths    []ingest.TruthRecord
		deposits  []ingest.DepositRecord
	)
	streams := []struct {
		bit  ingest.Stream
		name string
		row  func(ingest.Row)
	}{
		{ingest.StreamTPs, names.TPs, func(row ingest.Row) { tps = append(tps, r.res.TP(row)) }},
		{ingest.StreamParticles, names.Particles, func(row ingest.Row) { particles = append(particles, r.res.Particle(row)) }},
		{ingest.StreamTruth, names.Truth, func(row ingest.Row) { truths = append(truths, r.res.Truth(row)) }},
		{ingest.StreamDeposits, names.Deposits, func(row ingest.Row) { deposits = append(deposits, r.res.Deposit(row)) }},
	}
	for _, s := range streams {
		if s.name == "" {
			continue
		}
		found, err := readTree(ctx, dir, s.name, s.row)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if !found {
			monitoring.Logf("[RootIO] %s: tree %q not found, %s stream absent", path, s.name, s.bit)
			continue
		}
		r.present |= s.bit
	}

	r.events = ingest.Group(r.present, tps, particles, truths, deposits)
	monitoring.Logf("[RootIO] %s: %d events, %d TPs, %d particles, %d truths, %d deposits (streams: %s)",
		path, len(r.events), len(tps), len(particles), len(truths), len(deposits), r.present)
	return r, nil
}

// Present reports which streams the file carried.
func (r *Reader) Present() ingest.Stream {
	return r.present
}

// Len returns the number of events in the file.
func (r *Reader) Len() int {
	return len(r.events)
}

// Warnings returns the number of field warnings raised while decoding.
func (r *Reader) Warnings() int {
	return r.res.Warnings()
}

// Next returns the next event or io.EOF.
func (r *Reader) Next(ctx context.Context) (*ingest.EventRecords, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.pos >= len(r.events) {
		return nil, io.EOF
	}
	ev := r.events[r.pos]
	r.pos++
	return ev, nil
}

// Close releases the buffered events.
func (r *Reader) Close() error {
	r.events = nil
	return nil
}

// readTree calls fn once per entry of the named tree. It reports false when
// the tree does not exist; a tree that exists but cannot be decoded is an
// error.
func readTree(ctx context.Context, dir riofs.Directory, name string, fn func(ingest.Row)) (bool, error) {
	obj, err := lookup(dir, name)
	if err != nil {
		return true, err
	}
	if obj == nil {
		return false, nil
	}
	tree, ok := obj.(rtree.Tree)
	if !ok {
		return true, fmt.Errorf("%s is a %T, not a tree", name, obj)
	}

	rvars := rtree.NewReadVars(tree)
	rd, err := rtree.NewReader(tree, rvars)
	if err != nil {
		return true, fmt.Errorf("reader for %s: %w", name, err)
	}
	defer rd.Close()

	err = rd.Read(func(rctx rtree.RCtx) error {
		if rctx.Entry%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		row := make(ingest.Row, len(rvars))
		for _, rv := range rvars {
			row[rv.Name] = deref(rv.Value)
		}
		fn(row)
		return nil
	})
	if err != nil {
		return true, fmt.Errorf("read %s: %w", name, err)
	}
	return true, nil
}

// lookup resolves a slash-separated path below dir. It returns a nil object
// when any path element is missing.
func lookup(dir riofs.Directory, name string) (root.Object, error) {
	parts := strings.Split(strings.Trim(name, "/"), "/")
	for i, part := range parts {
		if !hasKey(dir, part) {
			return nil, nil
		}
		at := strings.Join(parts[:i+1], "/")
		obj, err := dir.Get(part)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", at, err)
		}
		if i == len(parts)-1 {
			return obj, nil
		}
		sub, ok := obj.(riofs.Directory)
		if !ok {
			return nil, fmt.Errorf("%s is a %T, not a directory", at, obj)
		}
		dir = sub
	}
	return nil, nil
}

func hasKey(dir riofs.Directory, name string) bool {
	name, _, _ = strings.Cut(name, ";")
	for _, k := range dir.Keys() {
		if k.Name() == name {
			return true
		}
	}
	return false
}

// deref copies the value behind a read-var pointer. Slices are copied
// because the reader reuses their backing arrays between entries.
func deref(v any) any {
	switch p := v.(type) {
	case *int32:
		return *p
	case *int64:
		return *p
	case *uint32:
		return *p
	case *uint64:
		return *p
	case *float32:
		return *p
	case *float64:
		return *p
	case *string:
		return *p
	case *bool:
		return *p
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return v
	}
	elem := rv.Elem()
	if elem.Kind() == reflect.Slice {
		cp := reflect.MakeSlice(elem.Type(), elem.Len(), elem.Len())
		reflect.Copy(cp, elem)
		return cp.Interface()
	}
	return elem.Interface()
}
