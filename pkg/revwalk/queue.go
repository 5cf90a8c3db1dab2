package revwalk

import "github.com/odvcencio/revlist/pkg/object"

type commitQueueItem struct {
	hash object.Hash
	time int64
}

// commitMaxHeap orders commits newest first; equal times fall back to the
// id so that the order does not depend on insertion order.
type commitMaxHeap []commitQueueItem

func (h commitMaxHeap) Len() int { return len(h) }

func (h commitMaxHeap) Less(i, j int) bool {
	if h[i].time == h[j].time {
		return h[i].hash < h[j].hash
	}
	return h[i].time > h[j].time
}

func (h commitMaxHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *commitMaxHeap) Push(x any) {
	*h = append(*h, x.(commitQueueItem))
}

func (h *commitMaxHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
