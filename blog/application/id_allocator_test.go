package application

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
)

var idPattern = regexp.MustCompile(`^[0-9a-f]{6}$`)

func TestIDAllocator_NeverCollides(t *testing.T) {
	allocator := NewIDAllocator()

	existing := make(map[string]struct{}, 500)
	for i := 0; i < 500; i++ {
		existing[fmt.Sprintf("%06x", i)] = struct{}{}
	}

	for i := 0; i < 10000; i++ {
		id := allocator.Generate(existing)
		if !idPattern.MatchString(id) {
			t.Fatalf("Generate() = %q, want six lowercase hex characters", id)
		}
		if _, taken := existing[id]; taken {
			t.Fatalf("Generate() returned existing id %q", id)
		}
	}
}

func TestIDAllocator_RedrawsOnCollision(t *testing.T) {
	source := bytes.NewReader([]byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x01, 0xab, 0xcd, 0xef})
	allocator := NewIDAllocatorWithSource(source)

	existing := map[string]struct{}{"000001": {}}
	if got := allocator.Generate(existing); got != "abcdef" {
		t.Errorf("Generate() = %q, want %q", got, "abcdef")
	}
}

func TestIDAllocator_ExhaustedSourceFallsBack(t *testing.T) {
	allocator := NewIDAllocatorWithSource(bytes.NewReader([]byte{0x01}))

	id := allocator.Generate(map[string]struct{}{})
	if !idPattern.MatchString(id) {
		t.Errorf("Generate() = %q, want six lowercase hex characters", id)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy unavailable")
}

func TestIDAllocator_ConcurrentFallback(t *testing.T) {
	allocator := NewIDAllocatorWithSource(failingReader{})
	existing := map[string]struct{}{}

	var wg sync.WaitGroup
	ids := make([]string, 32)
	for i := range ids {
		wg.Go(func() {
			ids[i] = allocator.Generate(existing)
		})
	}
	wg.Wait()

	for _, id := range ids {
		if !idPattern.MatchString(id) {
			t.Errorf("Generate() = %q, want six lowercase hex characters", id)
		}
	}
	if _, ok := allocator.random.(failingReader); !ok {
		t.Errorf("random source = %T, want it left as failingReader", allocator.random)
	}
}
