package aggregate

import "github.com/reddwatch/reddwatch/internal/model"

// ring is a bounded buffer of priority items. When full, the oldest
// entry is overwritten. Not safe for concurrent use; the aggregator's
// mutex covers it.
type ring struct {
	buf   []model.ProcessedItem
	start int
	count int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]model.ProcessedItem, capacity)}
}

func (r *ring) push(item model.ProcessedItem) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = item
		r.count++
		return
	}
	r.buf[r.start] = item
	r.start = (r.start + 1) % len(r.buf)
}

// drop removes the entry with the given ID, compacting in place.
func (r *ring) drop(id string) {
	kept := 0
	for i := 0; i < r.count; i++ {
		item := r.buf[(r.start+i)%len(r.buf)]
		if item.ID == id {
			continue
		}
		r.buf[(r.start+kept)%len(r.buf)] = item
		kept++
	}
	r.count = kept
}

// newestFirst copies the contents out, most recent insertion first.
func (r *ring) newestFirst() []model.ProcessedItem {
	out := make([]model.ProcessedItem, 0, r.count)
	for i := r.count - 1; i >= 0; i-- {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}
