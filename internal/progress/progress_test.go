package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestBarFormatsAndThrottles(t *testing.T) {
	var buf bytes.Buffer
	b := NewBar(&buf, time.Hour)
	b.Progress(1200, 4950)
	b.Progress(1300, 4950) // throttled
	b.Progress(4950, 4950) // final always printed
	b.Done()
	out := buf.String()
	if !strings.Contains(out, "\rProcessed 1,200 of 4,950 comparisons (24.2%)") {
		t.Fatalf("missing first update: %q", out)
	}
	if strings.Contains(out, "1,300") {
		t.Fatalf("update inside the interval should be throttled: %q", out)
	}
	if !strings.Contains(out, "Processed 4,950 of 4,950 comparisons (100.0%)") {
		t.Fatalf("missing final update: %q", out)
	}
	if !strings.HasSuffix(out, "\nDuplicate detection complete!\n") {
		t.Fatalf("missing completion line: %q", out)
	}
}

func TestBarIgnoresStaleUpdates(t *testing.T) {
	var buf bytes.Buffer
	b := NewBar(&buf, 0)
	b.Progress(50, 100)
	b.Progress(40, 100)
	if strings.Contains(buf.String(), "Processed 40") {
		t.Fatalf("progress went backwards: %q", buf.String())
	}
}

func TestBarEmptyRun(t *testing.T) {
	var buf bytes.Buffer
	b := NewBar(&buf, time.Second)
	b.Progress(0, 0)
	if !strings.Contains(buf.String(), "Processed 0 of 0 comparisons (100.0%)") {
		t.Fatalf("empty run should report completion: %q", buf.String())
	}
}

func TestPercent(t *testing.T) {
	cases := []struct {
		done, total int
		want        float64
	}{
		{0, 0, 100},
		{0, 10, 0},
		{5, 10, 50},
		{12, 10, 100},
	}
	for _, tc := range cases {
		if got := Percent(tc.done, tc.total); got != tc.want {
			t.Errorf("Percent(%d,%d) = %v, want %v", tc.done, tc.total, got, tc.want)
		}
	}
}

func TestChanDropsWhenFullButDeliversCompletion(t *testing.T) {
	ch := make(chan Update, 1)
	c := NewChan(ch, time.Second)
	c.Progress(1, 10)
	c.Progress(2, 10) // buffer full, dropped
	if u := <-ch; u != (Update{Done: 1, Total: 10}) {
		t.Fatalf("got %+v", u)
	}
	done := make(chan struct{})
	go func() {
		c.Progress(10, 10)
		close(done)
	}()
	if u := <-ch; u != (Update{Done: 10, Total: 10}) {
		t.Fatalf("got %+v", u)
	}
	<-done
}

func TestChanFinalGivesUp(t *testing.T) {
	ch := make(chan Update)
	c := NewChan(ch, 10*time.Millisecond)
	start := time.Now()
	c.Progress(3, 3)
	if time.Since(start) > time.Second {
		t.Fatalf("final send should time out when nobody reads")
	}
}
