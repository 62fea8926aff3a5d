package device

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestFor1CoversEveryIndexOnce(t *testing.T) {
	d := New(4)
	defer d.Close()

	const n = 10000
	counts := make([]int32, n)
	d.For1(n, func(i int) {
		atomic.AddInt32(&counts[i], 1)
	})

	for i, c := range counts {
		if c != 1 {
			t.Fatalf("index %d visited %d times", i, c)
		}
	}
}

func TestDispatchSpansPartition(t *testing.T) {
	d := New(4)
	defer d.Close()

	const n = 5000
	var mu sync.Mutex
	var spans [][2]int
	d.Dispatch(n, func(start, end, _ int) {
		mu.Lock()
		spans = append(spans, [2]int{start, end})
		mu.Unlock()
	})

	covered := make([]bool, n)
	for _, sp := range spans {
		if sp[0] >= sp[1] {
			t.Fatalf("empty or inverted span %v", sp)
		}
		for i := sp[0]; i < sp[1]; i++ {
			if covered[i] {
				t.Fatalf("index %d covered twice", i)
			}
			covered[i] = true
		}
	}
	for i, ok := range covered {
		if !ok {
			t.Fatalf("index %d not covered", i)
		}
	}
}

func TestSmallDispatchRunsSerial(t *testing.T) {
	d := New(4)
	defer d.Close()

	var calls int
	d.Dispatch(10, func(start, end, worker int) {
		calls++
		if start != 0 || end != 10 || worker != 0 {
			t.Errorf("serial span = [%d,%d) worker %d, want [0,10) worker 0", start, end, worker)
		}
	})
	if calls != 1 {
		t.Errorf("serial dispatch made %d calls, want 1", calls)
	}
}

func TestDispatchAfterClose(t *testing.T) {
	d := New(2)

	var total int64
	d.For1(1000, func(i int) { atomic.AddInt64(&total, 1) })
	d.Close()

	// Workers restart on demand after Close
	d.For1(1000, func(i int) { atomic.AddInt64(&total, 1) })
	d.Close()

	if total != 2000 {
		t.Errorf("total = %d, want 2000", total)
	}
}

func TestZeroAndNegativeCounts(t *testing.T) {
	d := New(2)
	defer d.Close()

	called := false
	d.Dispatch(0, func(start, end, worker int) { called = true })
	d.Dispatch(-5, func(start, end, worker int) { called = true })
	if called {
		t.Error("kernel invoked for empty dispatch")
	}
}
