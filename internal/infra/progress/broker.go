package progress

import (
	"sync"

	"github.com/rs/zerolog"

	"youtube-outlier-discovery/internal/domain/model"
	"youtube-outlier-discovery/internal/domain/ports/adapter"
)

var _ adapter.ProgressPublisher = (*Broker)(nil)

const subscriberBuffer = 16

// Broker fans progress events out to per-run subscribers. Delivery is
// best-effort and at-most-once: a subscriber whose buffer is full loses the
// event, and late subscribers only see future events. Channels for a run are
// torn down when the run reaches a terminal state.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan model.ProgressEvent]struct{} // by run id
	log  *zerolog.Logger
}

func NewBroker(logger *zerolog.Logger) *Broker {
	compLog := logger.With().Str("component", "progress").Logger()
	return &Broker{
		subs: make(map[string]map[chan model.ProgressEvent]struct{}),
		log:  &compLog,
	}
}

// Subscribe joins a run's channel. The returned cancel function must be
// called when the caller stops listening; the channel is closed either by
// cancel or by the broker on run termination.
func (b *Broker) Subscribe(runID string) (<-chan model.ProgressEvent, func()) {
	ch := make(chan model.ProgressEvent, subscriberBuffer)

	b.mu.Lock()
	set, ok := b.subs[runID]
	if !ok {
		set = make(map[chan model.ProgressEvent]struct{})
		b.subs[runID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[runID]; ok {
			if _, present := set[ch]; present {
				delete(set, ch)
				close(ch)
				if len(set) == 0 {
					delete(b.subs, runID)
				}
			}
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of the run without blocking.
func (b *Broker) Publish(event model.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[event.RunID] {
		select {
		case ch <- event:
		default:
			// slow subscriber; dropping is allowed by contract
			b.log.Debug().Str("run_id", event.RunID).Int("percent", event.Percent).
				Msg("dropped progress event for slow subscriber")
		}
	}
}

// Close tears down a run's channel, closing all subscriber channels.
func (b *Broker) Close(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[runID] {
		close(ch)
	}
	delete(b.subs, runID)
}
