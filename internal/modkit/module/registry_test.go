package module

import (
	"sync"
	"testing"

	"otprelay/internal/platform/testkit"
)

func TestRegistry(t *testing.T) {
	testkit.Serial(t)
	Reset()
	t.Cleanup(Reset)

	Register("relay", statsImpl{n: 2})

	got, ok := PortsAs[statsImpl]("relay")
	if !ok || got.n != 2 {
		t.Fatalf("PortsAs = %+v ok=%v", got, ok)
	}
	if _, ok := PortsAs[statsImpl]("meta"); ok {
		t.Fatalf("missing name should report false")
	}
	if _, ok := PortsAs[string]("relay"); ok {
		t.Fatalf("type mismatch should report false")
	}

	Register("relay", statsImpl{n: 3})
	if got, _ := PortsAs[statsImpl]("relay"); got.n != 3 {
		t.Fatalf("overwrite lost: %+v", got)
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	testkit.Serial(t)
	Reset()
	t.Cleanup(Reset)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			Register("relay", statsImpl{n: i})
			_, _ = PortsAs[statsImpl]("relay")
		}(i)
	}
	wg.Wait()
	if _, ok := PortsAs[statsImpl]("relay"); !ok {
		t.Fatalf("expected a registered value")
	}
}
