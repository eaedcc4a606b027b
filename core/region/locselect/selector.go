// Package locselect implements the cascading province → regency → district → village selector
// shared by the admin member edit flow and the member self-service biodata flow.
package locselect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/pgri-okutimur/anggota/core"
	"github.com/pgri-okutimur/anggota/core/region"
)

// NumTiers is the depth of the hierarchy.
const NumTiers = int(region.TierVillage) + 1

const defaultFetchTimeout = 15 * time.Second

var (
	// ErrNotAnOption is returned by the setters when the id is not offered at that tier.
	ErrNotAnOption = errors.New("id is not one of the available options")
	// ErrSuperseded is returned by InitializeFromExisting when the selection changed while it ran.
	ErrSuperseded = errors.New("selection changed during initialization")
)

// TierState is the lifecycle of a single tier's option list.
type TierState int

const (
	Empty TierState = iota
	Loading
	Populated
)

func (ts TierState) String() string {
	switch ts {
	case Loading:
		return "loading"
	case Populated:
		return "populated"
	default:
		return "empty"
	}
}

type NoticeKind string

const (
	NetworkFailure NoticeKind = "network_failure"
	EmptyResult    NoticeKind = "empty_result"
	StaleSelection NoticeKind = "stale_selection"
)

// Notice is a non-fatal problem to show next to a tier.
type Notice struct {
	Tier     region.Tier `json:"tier"`
	Kind     NoticeKind  `json:"kind"`
	ParentID int         `json:"parent_id,omitempty"`
	Message  string      `json:"message"`
}

// State is a snapshot of the selector for rendering.
type State struct {
	Selection region.Selection
	Options   [NumTiers][]region.Unit
	Loading   [NumTiers]bool
	Tiers     [NumTiers]TierState
	Notices   []Notice
}

func (st State) OptionList(t region.Tier) []region.Unit { return st.Options[t] }

func (st State) IsLoading(t region.Tier) bool { return st.Loading[t] }

type tierSlot struct {
	options []region.Unit
	state   TierState
	scope   int // parent id the options or the in-flight fetch belong to
	gen     uint64
	cancel  context.CancelFunc
	notice  *Notice
}

func (slot *tierSlot) has(id int) bool {
	if slot.state != Populated {
		return false
	}
	for _, u := range slot.options {
		if u.ID == id {
			return true
		}
	}
	return false
}

type Option func(*Selector)

// WithTimeout bounds every fetch issued by the selector.
func WithTimeout(d time.Duration) Option {
	return func(s *Selector) { s.timeout = d }
}

// WithLogger logs discarded and failed fetches.
func WithLogger(logger core.Logger) Option {
	return func(s *Selector) { s.logger = logger }
}

// Selector holds one form's location selection. It is safe for concurrent use.
type Selector struct {
	fetcher Fetcher
	timeout time.Duration
	logger  core.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	idle      *sync.Cond // signaled when inflight drops to zero
	inflight  int
	sel       region.Selection
	tiers     [NumTiers]tierSlot
	mutations uint64
	initMark  uint64 // mutation count of the InitializeFromExisting in progress
}

func New(fetcher Fetcher, opts ...Option) *Selector {
	vala.BeginValidation().Validate(
		vala.IsNotNil(fetcher, "fetcher"),
	).CheckAndPanic()

	ctx, cancel := context.WithCancel(context.Background())
	s := &Selector{
		fetcher: fetcher,
		timeout: defaultFetchTimeout,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.idle = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// bind returns a context canceled when either ctx or the selector is done.
func (s *Selector) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-s.ctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// beginLocked registers a fetch in flight. Each call is paired with done.
func (s *Selector) beginLocked() { s.inflight++ }

func (s *Selector) done() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	if s.inflight == 0 {
		s.idle.Broadcast()
	}
}

// LoadProvinces (re)loads the root option list and clears the whole selection.
func (s *Selector) LoadProvinces(ctx context.Context) error {
	s.mu.Lock()
	s.mutations++
	s.sel = region.Selection{}
	for _, t := range region.Tiers {
		s.resetLocked(t)
	}
	ctx, unbind := s.bind(ctx)
	defer unbind()
	ctx, cancel, gen := s.startLocked(ctx, region.TierProvince, 0)
	s.beginLocked()
	s.mu.Unlock()
	defer s.done()
	defer cancel()

	units, err := s.fetcher.Provinces(ctx)
	s.apply(region.TierProvince, gen, 0, units, err)
	return err
}

func (s *Selector) SetProvince(id int) error { return s.set(region.TierProvince, id) }

func (s *Selector) SetRegency(id int) error { return s.set(region.TierRegency, id) }

func (s *Selector) SetDistrict(id int) error { return s.set(region.TierDistrict, id) }

// SetVillage selects the terminal tier; nothing cascades from it.
func (s *Selector) SetVillage(id int) error { return s.set(region.TierVillage, id) }

// Set selects id at tier t, or clears the tier when id is 0. Every tier below t is reset and,
// when id is set, the next tier's options are fetched in the background.
func (s *Selector) Set(t region.Tier, id int) error { return s.set(t, id) }

func (s *Selector) set(t region.Tier, id int) error {
	if int(t) < 0 || int(t) >= NumTiers {
		return errors.Errorf("unknown tier %d", int(t))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id != 0 && !s.tiers[t].has(id) {
		return ErrNotAnOption
	}

	s.mutations++
	s.sel = s.sel.With(t, id)
	for child := t + 1; int(child) < NumTiers; child++ {
		s.resetLocked(child)
	}
	if id != 0 && t < region.TierVillage {
		ctx, cancel, gen := s.startLocked(s.ctx, t+1, id)
		s.beginLocked()
		go func(child region.Tier) {
			defer s.done()
			defer cancel()
			units, err := s.fetch(ctx, child, id)
			s.apply(child, gen, id, units, err)
		}(t + 1)
	}
	return nil
}

// InitializeFromExisting loads the option lists of a saved selection parent first and
// publishes the result at once. Saved ids missing from their tier's options are dropped
// together with their descendants and reported as a StaleSelection notice.
func (s *Selector) InitializeFromExisting(ctx context.Context, saved region.Selection) error {
	s.mu.Lock()
	s.mutations++
	mark := s.mutations
	s.sel = region.Selection{}
	for _, t := range region.Tiers {
		s.resetLocked(t)
	}
	s.tiers[region.TierProvince].state = Loading
	s.initMark = mark
	s.beginLocked()
	s.mu.Unlock()
	defer s.done()

	ctx, unbind := s.bind(ctx)
	defer unbind()

	var (
		options [NumTiers][]region.Unit
		states  [NumTiers]TierState
		notices [NumTiers]*Notice
		sel     region.Selection
	)
	parentID := 0
	for _, t := range region.Tiers {
		if t != region.TierProvince && parentID == 0 {
			break
		}

		fctx, cancel := context.WithTimeout(ctx, s.timeout)
		units, err := s.fetch(fctx, t, parentID)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				s.abortInit(mark)
				return errors.Wrap(ctx.Err(), "initializing location")
			}
			notices[t] = failureNotice(t, parentID, err)
			s.logErr(t, parentID, err)
			break
		}

		options[t], states[t] = units, Populated
		id := saved.ID(t)
		switch {
		case id != 0 && !contains(units, id):
			notices[t] = &Notice{
				Tier:     t,
				Kind:     StaleSelection,
				ParentID: parentID,
				Message:  fmt.Sprintf("the saved %s is no longer available, please choose again", t),
			}
			id = 0
		case len(units) == 0:
			notices[t] = emptyNotice(t, parentID)
		}
		if id == 0 {
			break
		}
		sel = sel.With(t, id)
		parentID = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mutations != mark {
		s.endInitLocked(mark)
		return ErrSuperseded
	}
	s.initMark = 0
	s.sel = sel
	for _, t := range region.Tiers {
		slot := &s.tiers[t]
		slot.options = options[t]
		slot.state = states[t]
		slot.notice = notices[t]
		slot.scope = 0
		if p, ok := t.Parent(); ok {
			slot.scope = sel.ID(p)
		}
	}
	return nil
}

func (s *Selector) abortInit(mark uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endInitLocked(mark)
}

// endInitLocked drops the loading state left by an initialization that did not publish.
func (s *Selector) endInitLocked(mark uint64) {
	if s.initMark != mark {
		return
	}
	s.initMark = 0
	if slot := &s.tiers[region.TierProvince]; slot.state == Loading && slot.cancel == nil {
		slot.state = Empty
	}
}

// State returns a snapshot of the selection, option lists and notices.
func (s *Selector) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{Selection: s.sel}
	for _, t := range region.Tiers {
		slot := s.tiers[t]
		st.Options[t] = slot.options
		st.Tiers[t] = slot.state
		st.Loading[t] = slot.state == Loading
		if slot.notice != nil {
			st.Notices = append(st.Notices, *slot.notice)
		}
	}
	return st
}

// Selection returns the current selection.
func (s *Selector) Selection() region.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel
}

// Wait blocks until no fetch is in flight, initializations included.
func (s *Selector) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.inflight > 0 {
		s.idle.Wait()
	}
}

// Close cancels in-flight fetches and initializations and waits for them to return.
func (s *Selector) Close() {
	s.cancel()
	s.Wait()
}

// resetLocked empties tier t and invalidates any fetch in flight for it.
func (s *Selector) resetLocked(t region.Tier) {
	slot := &s.tiers[t]
	if slot.cancel != nil {
		slot.cancel()
	}
	*slot = tierSlot{gen: slot.gen + 1}
}

func (s *Selector) startLocked(parent context.Context, t region.Tier, parentID int) (context.Context, context.CancelFunc, uint64) {
	slot := &s.tiers[t]
	if slot.cancel != nil {
		slot.cancel()
	}
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	slot.gen++
	slot.cancel = cancel
	slot.state = Loading
	slot.scope = parentID
	slot.options = nil
	slot.notice = nil
	return ctx, cancel, slot.gen
}

// apply publishes a fetch result unless the tier moved on since the fetch started.
func (s *Selector) apply(t region.Tier, gen uint64, parentID int, units []region.Unit, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := &s.tiers[t]
	if slot.gen != gen || s.scopeLocked(t) != parentID {
		if s.logger != nil {
			s.logger.Debug(fmt.Sprintf("locselect: discarding stale %s options for parent %d", t, parentID))
		}
		return
	}

	slot.cancel = nil
	if err != nil {
		slot.options = nil
		slot.state = Empty
		slot.notice = failureNotice(t, parentID, err)
		s.logErr(t, parentID, err)
		return
	}
	slot.options = units
	slot.state = Populated
	if len(units) == 0 {
		slot.notice = emptyNotice(t, parentID)
	}
}

func (s *Selector) scopeLocked(t region.Tier) int {
	p, ok := t.Parent()
	if !ok {
		return 0
	}
	return s.sel.ID(p)
}

func (s *Selector) fetch(ctx context.Context, t region.Tier, parentID int) ([]region.Unit, error) {
	switch t {
	case region.TierProvince:
		return s.fetcher.Provinces(ctx)
	case region.TierRegency:
		return s.fetcher.Regencies(ctx, parentID)
	case region.TierDistrict:
		return s.fetcher.Districts(ctx, parentID)
	case region.TierVillage:
		return s.fetcher.Villages(ctx, parentID)
	}
	return nil, errors.Errorf("unknown tier %d", int(t))
}

func (s *Selector) logErr(t region.Tier, parentID int, err error) {
	if s.logger != nil {
		s.logger.Warn(fmt.Sprintf("locselect: fetching %s options for parent %d: %v", t, parentID, err), err)
	}
}

func failureNotice(t region.Tier, parentID int, err error) *Notice {
	return &Notice{
		Tier:     t,
		Kind:     NetworkFailure,
		ParentID: parentID,
		Message:  fmt.Sprintf("could not load the %s options: %v", t, err),
	}
}

func emptyNotice(t region.Tier, parentID int) *Notice {
	return &Notice{
		Tier:     t,
		Kind:     EmptyResult,
		ParentID: parentID,
		Message:  fmt.Sprintf("no %s options available", t),
	}
}

func contains(units []region.Unit, id int) bool {
	for _, u := range units {
		if u.ID == id {
			return true
		}
	}
	return false
}
