package stub

import (
	"log"
	"sync"
	"time"

	"github.com/overseasops/claimgrid/api"
	"github.com/overseasops/claimgrid/internal/remote"
)

// PollingSource implements remote.RealtimeSource against a local Store by
// polling its change journal. The hosted service pushes; the stub polls.
// Subscribers only see events recorded after they subscribe.
type PollingSource struct {
	store    *Store
	interval time.Duration

	mu   sync.Mutex
	subs map[int]chan api.ChangeEvent
	next int

	stop     chan struct{}
	pollOnce sync.Once
	stopOnce sync.Once
}

var _ remote.RealtimeSource = (*PollingSource)(nil)

// NewPollingSource polls store every interval (default 500ms).
func NewPollingSource(store *Store, interval time.Duration) *PollingSource {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &PollingSource{
		store:    store,
		interval: interval,
		subs:     make(map[int]chan api.ChangeEvent),
		stop:     make(chan struct{}),
	}
}

// Subscribe registers a listener. The table argument is accepted for
// interface parity; the stub serves a single table.
func (p *PollingSource) Subscribe(table string) (<-chan api.ChangeEvent, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.next
	p.next++
	ch := make(chan api.ChangeEvent, 32)
	p.subs[id] = ch
	// capture the baseline before returning so events recorded right
	// after Subscribe are never missed
	p.pollOnce.Do(func() {
		since := p.store.Version()
		go p.poll(since)
	})
	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if c, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(c)
		}
	}
	return ch, cancel, nil
}

func (p *PollingSource) poll(last uint64) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}
		events, current, ok := p.store.EventsSince(last)
		if !ok {
			// journal ran ahead of us, skip to now and let the next real
			// event trigger a refetch
			log.Printf("stub: change journal overflow, resyncing at version %d", current)
			last = current
			continue
		}
		last = current
		if len(events) == 0 {
			continue
		}
		p.mu.Lock()
		for _, ch := range p.subs {
			for _, ev := range events {
				select {
				case ch <- ev:
				default: // slow subscriber, drop rather than block the poller
				}
			}
		}
		p.mu.Unlock()
	}
}

// Close stops the poll loop and drops all subscribers.
func (p *PollingSource) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, ch := range p.subs {
		delete(p.subs, id)
		close(ch)
	}
}
