package cache

import (
	"errors"
	"slices"
	"testing"
)

func TestLRUEvictsOldest(t *testing.T) {
	var released []string
	c := New[string, int](2, func(k string, _ int) { released = append(released, k) })

	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("Get(a) missing")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("Get(b) found, want evicted")
	}
	if !slices.Equal(released, []string{"b"}) {
		t.Errorf("released = %v, want [b]", released)
	}
	if got := c.Stats(); got.Len != 2 || got.Evictions != 1 || got.Capacity != 2 {
		t.Errorf("Stats() = %+v, want Len 2 Evictions 1 Capacity 2", got)
	}
}

func TestLRUReplaceReleasesOld(t *testing.T) {
	var released []int
	c := New[string, int](0, func(_ string, v int) { released = append(released, v) })
	c.Set("a", 1)
	c.Set("a", 2)

	if v, _ := c.Get("a"); v != 2 {
		t.Errorf("Get(a) = %d, want 2", v)
	}
	if !slices.Equal(released, []int{1}) {
		t.Errorf("released = %v, want [1]", released)
	}
}

func TestLRUGetOrCreate(t *testing.T) {
	c := New[int, string](4, nil)
	calls := 0
	create := func() (string, error) {
		calls++
		return "v", nil
	}
	for range 3 {
		if v, err := c.GetOrCreate(1, create); err != nil || v != "v" {
			t.Fatalf("GetOrCreate() = %q, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("create called %d times, want 1", calls)
	}

	boom := errors.New("boom")
	if _, err := c.GetOrCreate(2, func() (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Errorf("GetOrCreate() error = %v, want %v", err, boom)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after failed create", c.Len())
	}
}

func TestLRUDeleteAndClear(t *testing.T) {
	var released []int
	c := New[int, int](0, func(k, _ int) { released = append(released, k) })
	for i := range 4 {
		c.Set(i, i)
	}
	if !c.Delete(2) {
		t.Error("Delete(2) = false, want true")
	}
	if c.Delete(2) {
		t.Error("second Delete(2) = true, want false")
	}
	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", c.Len())
	}
	if want := []int{2, 0, 1, 3}; !slices.Equal(released, want) {
		t.Errorf("released = %v, want %v", released, want)
	}
}
