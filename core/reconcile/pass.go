package reconcile

import (
	"context"
	"fmt"
	"math"

	"databinding/core/flush"
	"databinding/core/keymapper"
	"databinding/core/pager"
	"databinding/core/query"
	"databinding/core/ranges"

	"go.uber.org/zap"
)

// snapshot is the reconciler state read by the fetch stage.
type snapshot[T any] struct {
	source      query.DataSource[T]
	params      query.Params[T]
	pager       *pager.Pager
	viewport    ranges.Range
	active      ranges.Range
	assumedSize int
	estimate    int
	increment   int
	generation  uint64

	sized     bool
	defined   bool
	frozen    bool
	reset     bool
	resendAll bool
	// corrective passes keep the size found by the pass before them.
	corrective bool
}

// fetchResult is everything the apply stage needs. Keys are not assigned yet.
type fetchResult[T any] struct {
	assumedSize int
	frozen      bool
	viewport    ranges.Range
	effective   ranges.Range

	full bool
	// items holds the effective range of a full resend.
	items []T
	// before and after hold the new rows around the reused overlap of an
	// incremental pass.
	before  []T
	overlap ranges.Range
	after   []T

	// correct asks for one more pass over the rewound viewport.
	correct bool
}

// pass is one reconciliation pass. It implements flush.Task.
type pass[T any] struct {
	r    *Reconciler[T]
	snap snapshot[T]
	res  fetchResult[T]
}

func (r *Reconciler[T]) begin(corrective bool) *pass[T] {
	return &pass[T]{
		r: r,
		snap: snapshot[T]{
			source:      r.source,
			params:      r.params(),
			pager:       r.pager,
			viewport:    r.viewport,
			active:      r.active,
			assumedSize: r.assumedSize,
			estimate:    r.estimate,
			increment:   r.increment,
			generation:  r.generation,
			sized:       r.sized,
			defined:     r.definedSize,
			frozen:      r.frozen,
			reset:       r.resetPending,
			resendAll:   r.resendAll,
			corrective:  corrective,
		},
	}
}

// Fetch resolves the size and materializes the rows that become active. It
// never mutates the reconciler.
func (p *pass[T]) Fetch(ctx context.Context) error {
	s := &p.snap
	res := fetchResult[T]{
		assumedSize: s.assumedSize,
		frozen:      s.frozen,
		viewport:    s.viewport,
	}

	if !s.corrective {
		if err := p.resolveSize(ctx, &res); err != nil {
			return err
		}
	}

	res.effective = s.viewport.Restrict(ranges.Between(0, res.assumedSize))
	res.full = s.reset || s.resendAll || !s.active.Intersects(res.effective)

	var (
		short    bool
		segStart int
		returned int
	)
	if res.full {
		items, err := p.fetchRange(ctx, res.effective)
		if err != nil {
			return err
		}
		res.items = items
		if len(items) < res.effective.Len() {
			short, segStart, returned = true, res.effective.Start, len(items)
		}
	} else {
		part := res.effective.PartitionWith(s.active)
		res.overlap = part.Overlap

		before, err := p.fetchRange(ctx, part.Before)
		if err != nil {
			return err
		}
		res.before = before
		if len(before) < part.Before.Len() {
			short, segStart, returned = true, part.Before.Start, len(before)
		}

		if !short {
			after, err := p.fetchRange(ctx, part.After)
			if err != nil {
				return err
			}
			res.after = after
			if len(after) < part.After.Len() {
				short, segStart, returned = true, part.After.Start, len(after)
			}
		}
	}

	if short {
		if err := p.recheck(ctx, &res, segStart, returned); err != nil {
			return err
		}
	}

	p.res = res
	return nil
}

// resolveSize computes the size advertised before fetching.
func (p *pass[T]) resolveSize(ctx context.Context, res *fetchResult[T]) error {
	s := &p.snap
	if s.defined {
		if !s.sized || s.reset || s.resendAll {
			n, err := p.r.cache.getOrCount(ctx, s.generation, p.r.counter(s.source, s.params))
			if err != nil {
				return err
			}
			res.assumedSize = n
		}
		return nil
	}

	if !s.sized || s.reset {
		res.assumedSize = s.estimate
		res.frozen = false
	}
	if !res.frozen {
		// keep at least one page of room past the viewport
		res.assumedSize = grow(res.assumedSize, s.viewport.End, s.pager.PageSize(), s.increment)
	}
	return nil
}

// grow raises size in whole increments until it covers end plus one page,
// saturating at math.MaxInt.
func grow(size, end, page, increment int) int {
	want := math.MaxInt
	if end <= math.MaxInt-page {
		want = end + page
	}
	if want <= size {
		return size
	}
	need := want - size
	steps := need / increment
	if need%increment != 0 {
		steps++
	}
	if steps > (math.MaxInt-size)/increment {
		return math.MaxInt
	}
	return size + steps*increment
}

// recheck handles a segment that came back shorter than requested. The pass
// becomes a full resend of the corrected effective range, or a corrective
// pass when an estimate overshot the data entirely.
func (p *pass[T]) recheck(ctx context.Context, res *fetchResult[T], segStart, returned int) error {
	s := &p.snap
	if s.defined {
		n, err := p.r.counter(s.source, s.params)(ctx)
		if err != nil {
			return err
		}
		p.r.cache.store(s.generation, n)
		res.assumedSize = n
	} else {
		overshoot := returned == 0 && res.full && res.assumedSize > 0 && !s.corrective
		res.assumedSize = segStart + returned
		res.frozen = true

		if overshoot {
			bounds := ranges.Between(0, res.assumedSize)
			start := max(0, s.viewport.Start-s.viewport.Len())
			res.viewport = ranges.WithLength(start, s.viewport.Len()).Restrict(bounds)
			res.correct = true
			return nil
		}
	}

	effective := s.viewport.Restrict(ranges.Between(0, res.assumedSize))
	if res.full && effective.Start == res.effective.Start {
		res.items = res.items[:min(len(res.items), effective.Len())]
	} else {
		items, err := p.fetchRange(ctx, effective)
		if err != nil {
			return err
		}
		res.items = items
	}

	res.effective = effective
	res.full = true
	res.before, res.after = nil, nil
	res.overlap = ranges.Empty()
	return nil
}

// fetchRange materializes rg through the pager. Pages are rounded up, so the
// result is cut back to the requested length.
func (p *pass[T]) fetchRange(ctx context.Context, rg ranges.Range) ([]T, error) {
	if rg.IsEmpty() {
		return nil, nil
	}
	s := &p.snap
	items, err := pager.Fetch(ctx, s.pager, s.source, s.params, rg.Start, rg.Len())
	if err != nil {
		p.r.observeError(err)
		return nil, fmt.Errorf("fetch %s: %w", rg, err)
	}
	if len(items) > rg.Len() {
		items = items[:rg.Len()]
	}
	return items, nil
}

// Apply assigns keys, emits the delta, passivates dropped keys and notifies
// count listeners. It must run on the owner.
func (p *pass[T]) Apply(_ context.Context) (flush.Task, error) {
	r, s, res := p.r, &p.snap, &p.res

	if r.generation != s.generation || !r.active.Equal(s.active) {
		return nil, flush.ErrDiscarded
	}

	if res.correct {
		r.assumedSize = res.assumedSize
		r.frozen = res.frozen
		r.sized = true
		r.viewport = res.viewport
		r.log.Debug("Estimate overshot the data, rewinding viewport",
			zap.Int("assumed_size", res.assumedSize),
			zap.Stringer("viewport", res.viewport))
		return r.begin(true), nil
	}

	prevActive, prevKeys := r.active, r.activeKeys

	var keys []string
	if res.full {
		keys = r.keysFor(res.items)
	} else {
		keys = make([]string, 0, res.effective.Len())
		keys = append(keys, r.keysFor(res.before)...)
		offset := res.overlap.Start - prevActive.Start
		keys = append(keys, prevKeys[offset:offset+res.overlap.Len()]...)
		keys = append(keys, r.keysFor(res.after)...)
	}
	active := ranges.WithLength(res.effective.Start, len(keys))

	activeSet := make(map[string]int, len(keys))
	for i, key := range keys {
		activeSet[key] = i
	}

	emitted := false
	var sets []ranges.Range
	set := func(rg ranges.Range) {
		if rg.IsEmpty() {
			return
		}
		from := rg.Start - active.Start
		r.sink.Set(rg.Start, r.entries(keys[from:from+rg.Len()]))
		sets = append(sets, rg)
		emitted = true
	}
	clearRange := func(rg ranges.Range) {
		if rg.IsEmpty() {
			return
		}
		r.sink.Clear(rg.Start, rg.Len())
		emitted = true
	}

	if res.full {
		clearRange(prevActive)
		set(active)
	} else {
		gone := prevActive.PartitionWith(active)
		clearRange(gone.Before)
		clearRange(gone.After)
		added := active.PartitionWith(prevActive)
		set(added.Before)
		set(added.After)
	}

	for key := range r.refreshKeys {
		i, ok := activeSet[key]
		if !ok || covered(sets, active.Start+i) {
			continue
		}
		r.sink.Set(active.Start+i, r.entries(keys[i:i+1]))
		emitted = true
	}
	clear(r.refreshKeys)

	var dropped []string
	for _, key := range prevKeys {
		if _, still := activeSet[key]; !still && key != keymapper.NullKey {
			dropped = append(dropped, key)
		}
	}
	// reactivated keys leave the ledger
	for key := range activeSet {
		if id, ok := r.passivatedAt[key]; ok {
			delete(r.ledger[id], key)
			if len(r.ledger[id]) == 0 {
				delete(r.ledger, id)
			}
			delete(r.passivatedAt, key)
		}
	}

	if emitted {
		r.updateID++
		if len(dropped) > 0 {
			entry := make(map[string]struct{}, len(dropped))
			for _, key := range dropped {
				entry[key] = struct{}{}
				r.passivatedAt[key] = r.updateID
			}
			r.ledger[r.updateID] = entry
			r.metrics.Passivated(len(entry))
		}
		r.sink.Commit(r.updateID)
	}

	r.active = active
	r.activeKeys = keys
	r.activeSet = activeSet
	r.assumedSize = res.assumedSize
	r.frozen = res.frozen
	r.sized = true
	r.resetPending = false
	if s.resendAll {
		r.resendAll = false
	}

	r.metrics.Flush()
	r.metrics.AssumedSize(r.assumedSize)
	r.log.Debug("Reconciled active range",
		zap.Stringer("active", active),
		zap.Int("assumed_size", r.assumedSize),
		zap.Bool("full", res.full),
		zap.Bool("emitted", emitted),
		zap.Int("passivated", len(dropped)),
		zap.Uint64("update_id", r.updateID))

	if r.notifyCount && r.assumedSize != r.lastCount {
		r.lastCount = r.assumedSize
		change := CountChange{Count: r.assumedSize, Estimated: !s.defined && !r.frozen}
		for _, l := range r.listeners {
			l(change)
		}
	}
	return nil, nil
}

func (r *Reconciler[T]) keysFor(items []T) []string {
	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = r.mapper.Key(item)
		_ = r.mapper.Refresh(item)
	}
	return keys
}

func (r *Reconciler[T]) entries(keys []string) []Entry[T] {
	out := make([]Entry[T], len(keys))
	for i, key := range keys {
		item, _ := r.mapper.Get(key)
		out[i] = Entry[T]{Key: key, Item: item}
	}
	return out
}

func covered(sets []ranges.Range, index int) bool {
	for _, rg := range sets {
		if rg.Contains(index) {
			return true
		}
	}
	return false
}
