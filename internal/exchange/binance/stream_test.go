package binance

import (
	"errors"
	"testing"
)

func TestHubFailBeforeStopAssigned(t *testing.T) {
	h := newHub()
	h.fail(errors.New("upstream gone"))

	// The serve call can hand back its stop channel after the error
	// handler already fired; the hub must still shut the upstream down.
	stopC := make(chan struct{})
	h.setStop(stopC)

	select {
	case <-stopC:
	default:
		t.Fatal("stop channel must be closed when the hub is already dead")
	}
}

func TestHubFailClosesStop(t *testing.T) {
	h := newHub()
	stopC := make(chan struct{})
	h.setStop(stopC)
	h.fail(errors.New("upstream gone"))

	select {
	case <-stopC:
	default:
		t.Fatal("fail must close the stop channel")
	}
	if h.alive() {
		t.Fatal("failed hub must report dead")
	}
}

func TestHubDeadRejectsSubscribers(t *testing.T) {
	h := newHub()
	ch, err := h.subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	cause := errors.New("upstream gone")
	h.fail(cause)

	if _, ok := <-ch; ok {
		t.Fatal("fail must close subscriber channels")
	}
	if _, err := h.subscribe(); !errors.Is(err, cause) {
		t.Fatalf("dead hub must surface the upstream error, got %v", err)
	}

	// Publishing after death is a no-op, not a panic.
	h.publish("late")
}

func TestHubSlowSubscriberDropsSnapshot(t *testing.T) {
	h := newHub()
	ch, err := h.subscribe()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	h.publish("a")
	h.publish("b") // buffer of one, dropped

	if got := <-ch; got != "a" {
		t.Fatalf("expected first snapshot, got %v", got)
	}
	select {
	case v := <-ch:
		t.Fatalf("second snapshot should have been dropped, got %v", v)
	default:
	}
}
