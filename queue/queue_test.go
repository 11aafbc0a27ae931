package queue

import (
	"testing"
	"time"

	"github.com/lukemcguire/retriever/urlutil"
)

func mustJob(t *testing.T, raw string) *Job {
	t.Helper()
	c, err := urlutil.Parse(raw)
	if err != nil {
		t.Fatalf("urlutil.Parse(%q): %v", raw, err)
	}
	return &Job{URL: c}
}

func TestQueueAddGetFIFO(t *testing.T) {
	q := New()
	j1 := mustJob(t, "https://example.com/a")
	j2 := mustJob(t, "https://example.com/b")
	q.Add(j1)
	q.Add(j2)

	got1, ok := q.Get()
	if !ok || got1 != j1 {
		t.Fatalf("first Get = %v, %v", got1, ok)
	}
	got2, ok := q.Get()
	if !ok || got2 != j2 {
		t.Fatalf("second Get = %v, %v", got2, ok)
	}
	if !q.Empty() {
		t.Error("expected queue to be empty")
	}
}

func TestQueueGetBlocksUntilAdd(t *testing.T) {
	q := New()
	done := make(chan *Job, 1)
	go func() {
		j, ok := q.Get()
		if !ok {
			done <- nil
			return
		}
		done <- j
	}()

	time.Sleep(20 * time.Millisecond)
	j := mustJob(t, "https://example.com/x")
	q.Add(j)

	select {
	case got := <-done:
		if got != j {
			t.Errorf("got %v, want %v", got, j)
		}
	case <-time.After(time.Second):
		t.Fatal("Get never returned after Add")
	}
}

func TestQueueDoneProducingReleasesWaiters(t *testing.T) {
	q := New()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Get()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.DoneProducing()

	select {
	case ok := <-done:
		if ok {
			t.Error("expected Get to report no more work")
		}
	case <-time.After(time.Second):
		t.Fatal("Get never returned after DoneProducing")
	}
}

func TestQueueTerminate(t *testing.T) {
	q := New()
	q.Add(mustJob(t, "https://example.com/a"))
	q.Terminate()

	if _, ok := q.Get(); ok {
		t.Error("expected Get to fail after Terminate")
	}
}

func TestQueueRemoveSignalsProgress(t *testing.T) {
	q := New()
	j := mustJob(t, "https://example.com/a")
	q.Add(j)
	got, _ := q.Get()

	done := make(chan int, 1)
	go func() {
		n, _ := q.WaitForProgress(0)
		done <- n
	}()

	time.Sleep(20 * time.Millisecond)
	q.Remove(got)

	select {
	case n := <-done:
		if n != 1 {
			t.Errorf("completed = %d, want 1", n)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitForProgress never returned after Remove")
	}
}

func TestWaitForProgressEndsWhenDrained(t *testing.T) {
	q := New()
	q.DoneProducing()
	_, ok := q.WaitForProgress(0)
	if ok {
		t.Error("expected WaitForProgress to report completion when drained")
	}
}

func TestClaimAndCompletePart(t *testing.T) {
	j := mustJob(t, "https://example.com/big.bin")
	j.Metalink = &Metalink{Parts: []*Part{
		{ID: 0, Offset: 0, Length: 100},
		{ID: 1, Offset: 100, Length: 100},
	}}
	q := New()

	p1, ok := q.ClaimPart(j)
	if !ok || p1.ID != 0 {
		t.Fatalf("ClaimPart = %v, %v", p1, ok)
	}
	p2, ok := q.ClaimPart(j)
	if !ok || p2.ID != 1 {
		t.Fatalf("ClaimPart (second) = %v, %v", p2, ok)
	}
	if _, ok := q.ClaimPart(j); ok {
		t.Error("expected no more claimable parts")
	}

	if allDone := q.CompletePart(j, p1); allDone {
		t.Error("expected allDone=false with one part still pending")
	}
	if allDone := q.CompletePart(j, p2); !allDone {
		t.Error("expected allDone=true once both parts complete")
	}
}

func TestReleasePart(t *testing.T) {
	j := mustJob(t, "https://example.com/big.bin")
	j.Metalink = &Metalink{Parts: []*Part{{ID: 0}}}
	q := New()

	p, _ := q.ClaimPart(j)
	q.ReleasePart(p)
	p2, ok := q.ClaimPart(j)
	if !ok || p2 != p {
		t.Error("expected released part to be claimable again")
	}
}
