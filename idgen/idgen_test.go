package idgen

import (
	"strings"
	"sync"
	"testing"
)

func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	if parts := strings.Split(id, "-"); len(parts) != 5 || len(id) != 36 {
		t.Fatalf("UUIDv7: malformed %q", id)
	}
	if id[14] != '7' {
		t.Fatalf("UUIDv7: version nibble = %q, want 7", id[14])
	}
}

func TestCompact(t *testing.T) {
	// WHAT: Compact handles are 32 hex chars with no separators.
	// WHY: They are embedded as a single path segment under /media/local/.
	id := Compact()()
	if len(id) != 32 || strings.ContainsAny(id, "-/") {
		t.Fatalf("Compact: got %q", id)
	}
}

func TestCompact_Unique(t *testing.T) {
	gen := Compact()
	seen := make(map[string]struct{}, 200)
	for i := 0; i < 200; i++ {
		id := gen()
		if _, ok := seen[id]; ok {
			t.Fatalf("Compact: duplicate %q at iteration %d", id, i)
		}
		seen[id] = struct{}{}
	}
}

func TestSequence(t *testing.T) {
	gen := Sequence("h")
	if a, b := gen(), gen(); a != "h1" || b != "h2" {
		t.Fatalf("Sequence: got %q, %q", a, b)
	}
}

func TestSequence_Concurrent(t *testing.T) {
	gen := Sequence("h")
	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		wg   sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := gen()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != 50 {
		t.Fatalf("Sequence: %d distinct ids, want 50", len(seen))
	}
}
