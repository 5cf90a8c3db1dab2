package revwalk

import (
	"fmt"

	"github.com/odvcencio/revlist/pkg/object"
)

// commitNode is the per-walk state of one commit.
type commitNode struct {
	hash    object.Hash
	time    int64
	parents []object.Hash

	uninteresting bool
	queued        bool // pushed on the time queue at least once
	processed     bool // popped and parents enqueued
}

// commitCache decodes each commit at most once per walker.
type commitCache struct {
	store *object.Store
	nodes map[object.Hash]*commitNode
}

func newCommitCache(store *object.Store) *commitCache {
	return &commitCache{
		store: store,
		nodes: make(map[object.Hash]*commitNode),
	}
}

func (c *commitCache) lookup(h object.Hash) (*commitNode, bool) {
	n, ok := c.nodes[h]
	return n, ok
}

func (c *commitCache) load(h object.Hash) (*commitNode, error) {
	if n, ok := c.nodes[h]; ok {
		return n, nil
	}

	commit, err := c.store.ReadCommit(h)
	if err != nil {
		return nil, fmt.Errorf("revwalk: read commit %s: %w", h, err)
	}
	n := &commitNode{
		hash:    h,
		time:    commit.CommitTime(),
		parents: commit.Parents,
	}
	c.nodes[h] = n
	return n, nil
}

func (c *commitCache) size() int {
	return len(c.nodes)
}

// reset drops per-walk marks but keeps decoded commits.
func (c *commitCache) reset() {
	for _, n := range c.nodes {
		n.uninteresting = false
		n.queued = false
		n.processed = false
	}
}
