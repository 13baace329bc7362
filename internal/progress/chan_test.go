package progress_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/KaramelBytes/dedupe-cli/internal/dedupe"
	"github.com/KaramelBytes/dedupe-cli/internal/progress"
	"github.com/KaramelBytes/dedupe-cli/internal/table"
)

func records(texts ...string) []table.Record {
	out := make([]table.Record, len(texts))
	for i, s := range texts {
		out[i] = table.Record{Index: i, Fields: []table.Value{table.TextValue(s)}}
	}
	return out
}

func ExampleNewChan() {
	ch := make(chan progress.Update, 16)
	opt := dedupe.DefaultOptions()
	opt.ProgressEvery = 1
	opt.Progress = progress.NewChan(ch, time.Second)

	res, err := dedupe.FindDuplicates(context.Background(), records("Acme Corp", "Acme Corp.", "Acme Inc", "Beta LLC"), opt)
	if err != nil {
		fmt.Println(err)
		return
	}
	close(ch)
	var last progress.Update
	for u := range ch {
		last = u
	}
	fmt.Printf("%d/%d comparisons, %d group(s)\n", last.Done, last.Total, len(res.Clusters))
	// Output: 3/3 comparisons, 1 group(s)
}

func TestChanReceivesFindDuplicatesProgress(t *testing.T) {
	ch := make(chan progress.Update, 64)
	opt := dedupe.DefaultOptions()
	opt.ProgressEvery = 1
	opt.Progress = progress.NewChan(ch, time.Second)

	recs := records("Acme Corp", "Acme Corp.", "Acme Inc", "Beta LLC", "Beta L.L.C.", "Gamma")
	res, err := dedupe.FindDuplicates(context.Background(), recs, opt)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	close(ch)
	var got []progress.Update
	for u := range ch {
		got = append(got, u)
	}
	if len(got) == 0 {
		t.Fatalf("no updates delivered")
	}
	for i := 1; i < len(got); i++ {
		if got[i].Done < got[i-1].Done {
			t.Fatalf("updates out of order: %+v", got)
		}
	}
	want := progress.Update{Done: res.TotalComparisons, Total: res.TotalComparisons}
	if last := got[len(got)-1]; last != want {
		t.Fatalf("last update = %+v, want %+v", last, want)
	}
}
