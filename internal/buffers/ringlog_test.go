package buffers

import (
	"sync"
	"testing"
)

func entryWithSeq(i int) Entry {
	return Entry{"seq": i}
}

func TestRingLogEviction(t *testing.T) {
	log := NewRingLog(5)

	for i := 0; i < 12; i++ {
		log.Append(entryWithSeq(i))
	}

	if log.Len() != 5 {
		t.Fatalf("Len = %d, want 5", log.Len())
	}

	latest := log.Latest(5)
	if len(latest) != 5 {
		t.Fatalf("Latest(5) returned %d entries", len(latest))
	}
	for i, e := range latest {
		want := 7 + i // last 5 appended, insertion order
		if e["seq"] != want {
			t.Errorf("entry %d: seq = %v, want %d", i, e["seq"], want)
		}
	}
}

func TestRingLogLatestBounds(t *testing.T) {
	log := NewRingLog(10)
	for i := 0; i < 4; i++ {
		log.Append(entryWithSeq(i))
	}

	if got := log.Latest(0); len(got) != 0 {
		t.Errorf("Latest(0) returned %d entries, want 0", len(got))
	}
	if got := log.Latest(-3); len(got) != 0 {
		t.Errorf("Latest(-3) returned %d entries, want 0", len(got))
	}

	// limit smaller than size returns the most recent entries
	got := log.Latest(2)
	if len(got) != 2 || got[0]["seq"] != 2 || got[1]["seq"] != 3 {
		t.Errorf("Latest(2) = %v, want seq 2 then 3", got)
	}

	// limit larger than size is clamped
	if got := log.Latest(100); len(got) != 4 {
		t.Errorf("Latest(100) returned %d entries, want 4", len(got))
	}
}

func TestRingLogCapacity(t *testing.T) {
	log := NewRingLog(3)
	if log.Capacity() != 3 {
		t.Errorf("Capacity = %d, want 3", log.Capacity())
	}

	// A non-positive capacity still yields a usable log
	tiny := NewRingLog(0)
	tiny.Append(entryWithSeq(1))
	tiny.Append(entryWithSeq(2))
	if tiny.Len() != 1 {
		t.Errorf("Len = %d, want 1", tiny.Len())
	}
}

func TestRingLogConcurrentAppends(t *testing.T) {
	log := NewRingLog(64)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				log.Append(entryWithSeq(i))
			}
		}()
	}
	wg.Wait()

	if log.Len() != 64 {
		t.Errorf("Len = %d, want 64 after saturation", log.Len())
	}
}

func TestNewLogs(t *testing.T) {
	logs := NewLogs(7)
	for _, l := range []*RingLog{logs.ClientChunks, logs.UpstreamChunks, logs.UpstreamText, logs.ClientText} {
		if l == nil {
			t.Fatal("expected all four logs to be created")
		}
		if l.Capacity() != 7 {
			t.Errorf("Capacity = %d, want 7", l.Capacity())
		}
	}
	if logs.ClientChunks == logs.UpstreamChunks {
		t.Error("logs must be independent instances")
	}
}
