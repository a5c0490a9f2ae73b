package resource

import (
	"errors"
	"sync"
	"testing"
)

type dropCounter struct {
	drops int
}

func (d *dropCounter) Drop() { d.drops++ }

func TestTable_Basic(t *testing.T) {
	table := NewTable[string]()

	h, err := table.Insert("test")
	if err != nil {
		t.Fatal(err)
	}
	if h == 0 {
		t.Fatal("Expected non-zero handle")
	}

	val, ok := table.Get(h)
	if !ok || val != "test" {
		t.Fatalf("Get() = %q, %v", val, ok)
	}

	val, ok = table.Remove(h)
	if !ok || val != "test" {
		t.Fatalf("Remove() = %q, %v", val, ok)
	}

	if table.Len() != 0 {
		t.Fatal("Expected Len() == 0 after Remove")
	}
	if _, ok := table.Get(h); ok {
		t.Error("Get after Remove should fail")
	}
	if _, ok := table.Remove(h); ok {
		t.Error("second Remove should fail")
	}
}

func TestTable_InvalidHandles(t *testing.T) {
	table := NewTable[int]()

	for _, h := range []Handle{0, 1, 99} {
		if _, ok := table.Get(h); ok {
			t.Errorf("Get(%d) succeeded on empty table", h)
		}
		if _, ok := table.Remove(h); ok {
			t.Errorf("Remove(%d) succeeded on empty table", h)
		}
	}
}

func TestTable_HandleReuse(t *testing.T) {
	table := NewTable[int]()

	h1, _ := table.Insert(1)
	h2, _ := table.Insert(2)
	table.Remove(h1)

	h3, _ := table.Insert(3)
	if h3 != h1 {
		t.Errorf("expected reuse of handle %d, got %d", h1, h3)
	}
	if v, _ := table.Get(h2); v != 2 {
		t.Errorf("Get(h2) = %d", v)
	}
	if table.Len() != 2 {
		t.Errorf("Len() = %d", table.Len())
	}
}

func TestTable_Dropper(t *testing.T) {
	table := NewTable[*dropCounter]()
	d := &dropCounter{}

	h, _ := table.Insert(d)
	table.Remove(h)
	table.Remove(h)

	if d.drops != 1 {
		t.Errorf("Drop called %d times, want 1", d.drops)
	}
}

func TestTable_Observer(t *testing.T) {
	table := NewTable[string]()
	var events []EventType
	table.Observe(func(typ EventType, _ Handle, _ string) {
		events = append(events, typ)
	})

	h, _ := table.Insert("a")
	table.Remove(h)

	if len(events) != 2 || events[0] != EventCreated || events[1] != EventDropped {
		t.Errorf("events = %v", events)
	}
}

func TestTable_Each(t *testing.T) {
	table := NewTable[int]()
	for i := range 4 {
		table.Insert(i)
	}
	h, _ := table.Insert(99)
	table.Remove(h)

	sum, visits := 0, 0
	table.Each(func(_ Handle, v int) bool {
		sum += v
		visits++
		return true
	})
	if sum != 6 || visits != 4 {
		t.Errorf("Each visited %d values summing %d", visits, sum)
	}

	visits = 0
	table.Each(func(Handle, int) bool {
		visits++
		return false
	})
	if visits != 1 {
		t.Errorf("Each should stop early, visited %d", visits)
	}
}

func TestTable_Close(t *testing.T) {
	table := NewTable[*dropCounter]()
	ds := []*dropCounter{{}, {}, {}}
	for _, d := range ds {
		table.Insert(d)
	}

	if err := table.Close(); err != nil {
		t.Fatal(err)
	}
	for i, d := range ds {
		if d.drops != 1 {
			t.Errorf("value %d dropped %d times", i, d.drops)
		}
	}
	if table.Len() != 0 {
		t.Errorf("Len() = %d after Close", table.Len())
	}
	if _, err := table.Insert(&dropCounter{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Insert after Close = %v", err)
	}
}

func TestTable_Concurrent(t *testing.T) {
	table := NewTable[int]()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			for j := range 100 {
				h, err := table.Insert(i*100 + j)
				if err != nil {
					t.Error(err)
					return
				}
				if v, ok := table.Get(h); !ok || v != i*100+j {
					t.Errorf("Get(%d) = %d, %v", h, v, ok)
				}
				table.Remove(h)
			}
		})
	}
	wg.Wait()

	if table.Len() != 0 {
		t.Errorf("Len() = %d", table.Len())
	}
}
