// Package revwalk walks the commit graph of a repository. Commits reachable
// from pushed tips and not reachable from hidden tips are produced one at a
// time in the configured order.
package revwalk

import (
	"container/heap"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"go.uber.org/zap"

	"github.com/odvcencio/revlist/pkg/object"
	"github.com/odvcencio/revlist/pkg/repo"
)

var (
	// ErrDone is returned by Next once every commit has been produced.
	ErrDone = errors.New("revwalk: iteration over")
	// ErrClosed is returned by operations on a closed walker.
	ErrClosed = errors.New("revwalk: walker closed")
	// ErrNotCommit is returned when a pushed or hidden object does not peel
	// to a commit.
	ErrNotCommit = errors.New("object is not a commit")
)

// slop is how many extra commits the limiting pass takes from the queue
// after only hidden commits remain, to absorb skewed commit dates.
const slop = 5

// Order selects the output order of a walk.
type Order int

const (
	// OrderNone produces commits in discovery order: newest commit time
	// first as the graph is explored.
	OrderNone Order = iota
	// OrderTopological never shows a parent before all of its children.
	OrderTopological
	// OrderTime sorts by commit time, newest first.
	OrderTime
)

func (o Order) String() string {
	switch o {
	case OrderNone:
		return "none"
	case OrderTopological:
		return "topological"
	case OrderTime:
		return "time"
	default:
		return fmt.Sprintf("Order(%d)", int(o))
	}
}

// Sorting is the full ordering configuration. Reverse flips whichever order
// is active.
type Sorting struct {
	Order   Order
	Reverse bool
}

type tip struct {
	hash object.Hash
	hide bool
}

// Walker is a single-use commit iterator. It is not safe for concurrent
// use.
type Walker struct {
	repo *repo.Repo
	log  *zap.Logger

	sorting     Sorting
	firstParent bool

	tips    []tip
	tipSeen map[tip]bool
	cache   *commitCache

	prepared bool
	out      []object.Hash
	pos      int
	closed   bool
}

// Option configures a Walker.
type Option func(*Walker)

// WithLogger sets the logger used for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(w *Walker) {
		if l != nil {
			w.log = l
		}
	}
}

// WithSorting sets the initial ordering.
func WithSorting(s Sorting) Option {
	return func(w *Walker) {
		w.sorting = s
	}
}

// New creates a walker over r with no tips and OrderNone.
func New(r *repo.Repo, opts ...Option) (*Walker, error) {
	if r == nil || r.Store == nil {
		return nil, errors.New("revwalk: repository has no object store")
	}
	w := &Walker{
		repo:    r,
		log:     zap.NewNop(),
		tipSeen: make(map[tip]bool),
		cache:   newCommitCache(r.Store),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Sorting replaces the ordering configuration. Changes after the first
// call to Next apply from the next Reset.
func (w *Walker) Sorting(s Sorting) error {
	if w.closed {
		return ErrClosed
	}
	w.sorting = s
	return nil
}

// CurrentSorting returns the ordering configuration.
func (w *Walker) CurrentSorting() Sorting {
	return w.sorting
}

// SimplifyFirstParent makes the walk follow only the first parent of each
// shown commit.
func (w *Walker) SimplifyFirstParent() error {
	if w.closed {
		return ErrClosed
	}
	w.firstParent = true
	return nil
}

// Push adds h as a starting point. Annotated tags are peeled to their
// commit; other non-commits are rejected with ErrNotCommit. Pushing the
// same commit twice has no further effect.
func (w *Walker) Push(h object.Hash) error {
	return w.addTip(h, false)
}

// Hide marks h and all of its ancestors as excluded from the output.
func (w *Walker) Hide(h object.Hash) error {
	return w.addTip(h, true)
}

// PushRef pushes the commit a ref points at.
func (w *Walker) PushRef(name string) error {
	return w.addRef(name, false)
}

// HideRef hides the commit a ref points at.
func (w *Walker) HideRef(name string) error {
	return w.addRef(name, true)
}

// PushHead pushes HEAD.
func (w *Walker) PushHead() error {
	return w.addRef("HEAD", false)
}

// PushGlob pushes every ref matching glob. The glob is relative to refs/
// unless it starts with "refs/", and a glob without wildcards matches the
// refs below it as if it ended in "/*". Matching refs that do not point at
// commits are skipped.
func (w *Walker) PushGlob(pattern string) error {
	return w.addGlob(pattern, false)
}

// HideGlob hides every ref matching glob, as PushGlob.
func (w *Walker) HideGlob(pattern string) error {
	return w.addGlob(pattern, true)
}

func (w *Walker) addTip(h object.Hash, hide bool) error {
	if w.closed {
		return ErrClosed
	}
	peeled, err := w.repo.Store.Peel(h, object.TypeCommit)
	if err != nil {
		if errors.Is(err, object.ErrTypeMismatch) {
			return fmt.Errorf("revwalk: %s: %w", h, ErrNotCommit)
		}
		return fmt.Errorf("revwalk: %w", err)
	}
	t := tip{hash: peeled, hide: hide}
	if w.tipSeen[t] {
		return nil
	}
	w.tipSeen[t] = true
	w.tips = append(w.tips, t)
	return nil
}

func (w *Walker) addRef(name string, hide bool) error {
	if w.closed {
		return ErrClosed
	}
	h, err := w.repo.ResolveRef(name)
	if err != nil {
		return fmt.Errorf("revwalk: %w", err)
	}
	return w.addTip(h, hide)
}

func (w *Walker) addGlob(pattern string, hide bool) error {
	if w.closed {
		return ErrClosed
	}
	pattern = strings.TrimPrefix(pattern, "refs/")
	if !strings.ContainsAny(pattern, "?*[") {
		pattern = strings.TrimSuffix(pattern, "/") + "/*"
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return fmt.Errorf("revwalk: glob %q: %w", pattern, err)
	}

	refs, err := w.repo.ListRefs("")
	if err != nil {
		return fmt.Errorf("revwalk: %w", err)
	}
	names := make([]string, 0, len(refs))
	for name := range refs {
		if g.Match(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		err := w.addTip(refs[name], hide)
		if errors.Is(err, ErrNotCommit) {
			w.log.Debug("glob skipped non-commit ref", zap.String("ref", "refs/"+name))
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Next returns the next commit id. It returns ErrDone once the walk is
// exhausted, and keeps returning ErrDone on later calls.
func (w *Walker) Next() (object.Hash, error) {
	if w.closed {
		return "", ErrClosed
	}
	if !w.prepared {
		if err := w.prepare(); err != nil {
			return "", err
		}
	}
	if w.pos >= len(w.out) {
		return "", ErrDone
	}
	h := w.out[w.pos]
	w.pos++
	return h, nil
}

// Reset clears the tips and the iteration state so that the walker can be
// configured again. Sorting and first-parent simplification are kept.
func (w *Walker) Reset() error {
	if w.closed {
		return ErrClosed
	}
	w.tips = nil
	w.tipSeen = make(map[tip]bool)
	w.cache.reset()
	w.prepared = false
	w.out = nil
	w.pos = 0
	return nil
}

// Close releases the walker. Later calls return ErrClosed; Close itself
// may be called any number of times.
func (w *Walker) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.tips = nil
	w.tipSeen = nil
	w.cache = nil
	w.out = nil
	return nil
}

func (w *Walker) prepare() error {
	selected, err := w.limit()
	if err != nil {
		return err
	}

	switch w.sorting.Order {
	case OrderTime:
		sortByTime(selected)
	case OrderTopological:
		selected = w.sortTopological(selected)
	}

	out := make([]object.Hash, len(selected))
	for i, n := range selected {
		out[i] = n.hash
	}
	if w.sorting.Reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}

	w.log.Debug("prepared walk",
		zap.Int("tips", len(w.tips)),
		zap.Int("commits", len(out)),
		zap.Int("loaded", w.cache.size()),
		zap.Stringer("order", w.sorting.Order),
		zap.Bool("reverse", w.sorting.Reverse))

	w.out = out
	w.pos = 0
	w.prepared = true
	return nil
}

// limit explores the graph from the tips newest first. Hidden tips spread
// their mark to every ancestor reached, and exploration stops once the
// queue has held only hidden commits for slop rounds. Commits still
// unmarked at the end are returned in discovery order.
func (w *Walker) limit() ([]*commitNode, error) {
	queue := &commitMaxHeap{}
	enqueue := func(n *commitNode) {
		if n.queued {
			return
		}
		n.queued = true
		heap.Push(queue, commitQueueItem{hash: n.hash, time: n.time})
	}

	for _, t := range w.tips {
		n, err := w.cache.load(t.hash)
		if err != nil {
			return nil, err
		}
		if t.hide {
			w.markUninteresting(n)
		}
		enqueue(n)
	}

	var discovered []*commitNode
	remaining := slop
	for queue.Len() > 0 {
		item := heap.Pop(queue).(commitQueueItem)
		n, _ := w.cache.lookup(item.hash)
		n.processed = true

		parents := n.parents
		if w.firstParent && !n.uninteresting && len(parents) > 1 {
			parents = parents[:1]
		}
		for _, p := range parents {
			pn, err := w.cache.load(p)
			if err != nil {
				return nil, err
			}
			if n.uninteresting {
				w.markUninteresting(pn)
			}
			enqueue(pn)
		}

		if !n.uninteresting {
			discovered = append(discovered, n)
		}

		if w.onlyUninteresting(*queue) {
			remaining--
			if remaining == 0 {
				break
			}
		} else {
			remaining = slop
		}
	}

	selected := discovered[:0]
	for _, n := range discovered {
		if !n.uninteresting {
			selected = append(selected, n)
		}
	}
	return selected, nil
}

// markUninteresting marks n and every already processed ancestor.
// Unprocessed commits pass the mark on when they are popped.
func (w *Walker) markUninteresting(n *commitNode) {
	stack := []*commitNode{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur.uninteresting {
			continue
		}
		cur.uninteresting = true
		if !cur.processed {
			continue
		}
		for _, p := range cur.parents {
			if pn, ok := w.cache.lookup(p); ok && !pn.uninteresting {
				stack = append(stack, pn)
			}
		}
	}
}

func (w *Walker) onlyUninteresting(queue commitMaxHeap) bool {
	for _, item := range queue {
		if n, ok := w.cache.lookup(item.hash); ok && !n.uninteresting {
			return false
		}
	}
	return true
}

func sortByTime(nodes []*commitNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].time > nodes[j].time
	})
}

// sortTopological orders nodes so that every commit precedes its parents,
// taking the newest ready commit first.
func (w *Walker) sortTopological(nodes []*commitNode) []*commitNode {
	inSet := make(map[object.Hash]*commitNode, len(nodes))
	for _, n := range nodes {
		inSet[n.hash] = n
	}

	indegree := make(map[object.Hash]int, len(nodes))
	for _, n := range nodes {
		for _, p := range w.followedParents(n) {
			if _, ok := inSet[p]; ok {
				indegree[p]++
			}
		}
	}

	ready := &commitMaxHeap{}
	for _, n := range nodes {
		if indegree[n.hash] == 0 {
			heap.Push(ready, commitQueueItem{hash: n.hash, time: n.time})
		}
	}

	sorted := make([]*commitNode, 0, len(nodes))
	for ready.Len() > 0 {
		item := heap.Pop(ready).(commitQueueItem)
		n := inSet[item.hash]
		sorted = append(sorted, n)
		for _, p := range w.followedParents(n) {
			pn, ok := inSet[p]
			if !ok {
				continue
			}
			indegree[p]--
			if indegree[p] == 0 {
				heap.Push(ready, commitQueueItem{hash: pn.hash, time: pn.time})
			}
		}
	}
	return sorted
}

func (w *Walker) followedParents(n *commitNode) []object.Hash {
	if w.firstParent && len(n.parents) > 1 {
		return n.parents[:1]
	}
	return n.parents
}
