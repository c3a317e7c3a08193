package event

import (
	"reflect"
	"testing"

	"github.com/gogpu/spheray/prim"
)

func TestPublishOrder(t *testing.T) {
	var c Channel[int]
	var got []string
	c.Subscribe(Func(func(v int) { got = append(got, "a") }))
	c.Subscribe(Func(func(v int) { got = append(got, "b") }))
	c.Subscribe(Func(func(v int) { got = append(got, "c") }))

	c.Publish(1)

	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("delivery order = %v, want %v", got, want)
	}
}

func TestSubscribeIdempotent(t *testing.T) {
	var c Channel[Signal]
	calls := 0
	h := Func(func(Signal) { calls++ })

	if !c.Subscribe(h) {
		t.Fatal("first Subscribe() = false, want true")
	}
	if c.Subscribe(h) {
		t.Error("second Subscribe() = true, want false")
	}
	c.Publish(Signal{})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}

	if !c.Unsubscribe(h) {
		t.Error("Unsubscribe() = false, want true")
	}
	if c.Unsubscribe(h) {
		t.Error("second Unsubscribe() = true, want false")
	}
	c.Publish(Signal{})
	if calls != 1 {
		t.Errorf("calls after unsubscribe = %d, want 1", calls)
	}
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	var c Channel[int]
	var got []string
	var second *Handler[int]

	first := Func(func(int) {
		got = append(got, "first")
		c.Unsubscribe(second)
	})
	second = Func(func(int) { got = append(got, "second") })
	self := Func[int](nil)
	*self = Handler[int]{fn: func(int) {
		got = append(got, "self")
		c.Unsubscribe(self)
	}}

	c.Subscribe(self)
	c.Subscribe(first)
	c.Subscribe(second)

	c.Publish(1)
	if want := []string{"self", "first"}; !reflect.DeepEqual(got, want) {
		t.Errorf("first publish = %v, want %v", got, want)
	}

	got = nil
	c.Publish(2)
	if want := []string{"first"}; !reflect.DeepEqual(got, want) {
		t.Errorf("second publish = %v, want %v", got, want)
	}
}

func TestSubscribeDuringPublish(t *testing.T) {
	var c Channel[int]
	lateCalls := 0
	late := Func(func(int) { lateCalls++ })
	c.Subscribe(Func(func(int) { c.Subscribe(late) }))

	c.Publish(1)
	if lateCalls != 0 {
		t.Errorf("late listener saw in-flight value, calls = %d", lateCalls)
	}
	c.Publish(2)
	if lateCalls != 1 {
		t.Errorf("late listener calls = %d, want 1", lateCalls)
	}
}

func TestNoRetention(t *testing.T) {
	bus := NewBus()
	bus.BufferUpdated.Publish(prim.NewBuffer([]prim.Primitive{{Parent: -1}}))

	var seen int
	bus.BufferUpdated.Subscribe(Func(func(prim.Buffer) { seen++ }))
	if seen != 0 {
		t.Errorf("late subscriber received %d retained values", seen)
	}
	if got := bus.BufferUpdated.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
}

func TestChannelsAreIndependent(t *testing.T) {
	bus := NewBus()
	var hierarchy, value, light int
	bus.HierarchyChanged.Subscribe(Func(func(Signal) { hierarchy++ }))
	bus.PrimitiveValueChanged.Subscribe(Func(func(Signal) { value++ }))
	bus.LightChanged.Subscribe(Func(func(prim.Light) { light++ }))

	bus.HierarchyChanged.Publish(Signal{})
	bus.LightChanged.Publish(prim.DefaultLight())

	if hierarchy != 1 || value != 0 || light != 1 {
		t.Errorf("hierarchy=%d value=%d light=%d, want 1 0 1", hierarchy, value, light)
	}
}
