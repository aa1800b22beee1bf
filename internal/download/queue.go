package download

import (
	"github.com/rtm0/aodmatch/internal/plan"
)

// Queue is the ordered list of timestamps of one year for one stream,
// consumed from a durable cursor.
type Queue struct {
	Year     int
	Stream   Stream
	entries  []string
	progress *Progress
}

// NewQueue selects the entries of year from list.
func NewQueue(list []string, year int, s Stream, p *Progress) *Queue {
	return &Queue{
		Year:     year,
		Stream:   s,
		entries:  plan.ByYear(list, year),
		progress: p,
	}
}

// Len returns the number of timestamps of the year.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Cursor returns the index of the next untried timestamp.
func (q *Queue) Cursor() int {
	return q.progress.Get(q.Year, q.Stream)
}

// Pending returns the untried timestamps in order.
func (q *Queue) Pending() []string {
	c := q.Cursor()
	if c >= len(q.entries) {
		return nil
	}
	if c < 0 {
		c = 0
	}
	return q.entries[c:]
}

// Advance marks the head of the queue done and persists the cursor.
func (q *Queue) Advance() error {
	q.progress.Set(q.Year, q.Stream, q.Cursor()+1)
	return q.progress.Save()
}
