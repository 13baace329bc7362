// Package progress renders comparison progress for terminal users and
// bridges it to channels for programmatic consumers.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Bar prints a single self-overwriting status line.
type Bar struct {
	w        io.Writer
	interval time.Duration

	mu      sync.Mutex
	last    time.Time
	maxDone int
	printed bool
}

// NewBar writes to w at most once per interval, plus the final update.
func NewBar(w io.Writer, interval time.Duration) *Bar {
	return &Bar{w: w, interval: interval}
}

// Progress implements dedupe.Reporter. Write errors are ignored.
func (b *Bar) Progress(done, total int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if done < b.maxDone {
		return
	}
	b.maxDone = done
	final := done >= total
	now := time.Now()
	if !final && b.printed && now.Sub(b.last) < b.interval {
		return
	}
	b.last = now
	b.printed = true
	fmt.Fprintf(b.w, "\rProcessed %s of %s comparisons (%.1f%%)", humanize.Comma(int64(done)), humanize.Comma(int64(total)), Percent(done, total))
}

// Done terminates the status line.
func (b *Bar) Done() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.printed {
		fmt.Fprintln(b.w)
	}
	fmt.Fprintln(b.w, "Duplicate detection complete!")
}

// Percent is done/total as a percentage capped at 100; an empty run is complete.
func Percent(done, total int) float64 {
	if total <= 0 {
		return 100
	}
	p := float64(done) * 100 / float64(total)
	if p > 100 {
		p = 100
	}
	return p
}

// Update is one progress sample.
type Update struct {
	Done  int
	Total int
}

// Chan sends updates to ch without blocking; samples are dropped when the
// consumer falls behind. The final update is sent blocking so a consumer
// always observes completion, unless it stops reading entirely, in which
// case it is dropped after timeout.
type Chan struct {
	ch      chan<- Update
	timeout time.Duration
}

func NewChan(ch chan<- Update, timeout time.Duration) *Chan {
	return &Chan{ch: ch, timeout: timeout}
}

func (c *Chan) Progress(done, total int) {
	u := Update{Done: done, Total: total}
	if done < total {
		select {
		case c.ch <- u:
		default:
		}
		return
	}
	t := time.NewTimer(c.timeout)
	defer t.Stop()
	select {
	case c.ch <- u:
	case <-t.C:
	}
}
