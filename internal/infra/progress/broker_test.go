package progress

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"youtube-outlier-discovery/internal/domain/model"
)

func newTestBroker() *Broker {
	l := zerolog.Nop()
	return NewBroker(&l)
}

func TestBroker_FanOut(t *testing.T) {
	t.Parallel()

	b := newTestBroker()
	ch1, cancel1 := b.Subscribe("run-1")
	ch2, cancel2 := b.Subscribe("run-1")
	defer cancel1()
	defer cancel2()

	ev := model.ProgressEvent{RunID: "run-1", Stage: model.StageRanking, Percent: 90, Message: "ranking"}
	b.Publish(ev)

	for _, ch := range []<-chan model.ProgressEvent{ch1, ch2} {
		select {
		case got := <-ch:
			if got.Percent != 90 || got.Stage != model.StageRanking {
				t.Fatalf("unexpected event: %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber did not receive event")
		}
	}
}

func TestBroker_NoCrossRunDelivery(t *testing.T) {
	t.Parallel()

	b := newTestBroker()
	ch, cancel := b.Subscribe("run-a")
	defer cancel()

	b.Publish(model.ProgressEvent{RunID: "run-b", Percent: 50})
	select {
	case ev := <-ch:
		t.Fatalf("unexpected cross-run event: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBroker_SlowSubscriberDoesNotBlock(t *testing.T) {
	t.Parallel()

	b := newTestBroker()
	_, cancel := b.Subscribe("run-1") // never drained
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			b.Publish(model.ProgressEvent{RunID: "run-1", Percent: i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a slow subscriber")
	}
}

func TestBroker_CloseEndsSubscribers(t *testing.T) {
	t.Parallel()

	b := newTestBroker()
	ch, cancel := b.Subscribe("run-1")
	defer cancel()

	b.Close("run-1")
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed")
	}

	// publishing after close must be a harmless no-op
	b.Publish(model.ProgressEvent{RunID: "run-1", Percent: 100})
}

func TestBroker_LateSubscriberSeesOnlyFutureEvents(t *testing.T) {
	t.Parallel()

	b := newTestBroker()
	b.Publish(model.ProgressEvent{RunID: "run-1", Percent: 10})

	ch, cancel := b.Subscribe("run-1")
	defer cancel()

	b.Publish(model.ProgressEvent{RunID: "run-1", Percent: 20})
	got := <-ch
	if got.Percent != 20 {
		t.Fatalf("late subscriber must not replay, got percent %d", got.Percent)
	}
}
