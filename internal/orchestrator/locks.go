package orchestrator

import "sync"

// paneLocks grants one mutex per pane ID so a sendKeys/sendEnter pair is
// indivisible from the point of view of other producers for that pane
// (spec §5 "Per pane").
type paneLocks struct {
	mu   sync.Mutex
	byID map[string]*sync.Mutex
}

func newPaneLocks() *paneLocks {
	return &paneLocks{byID: make(map[string]*sync.Mutex)}
}

// Lock acquires the lock for paneID, creating it on first use, and
// returns a function to release it.
func (p *paneLocks) Lock(paneID string) func() {
	p.mu.Lock()
	l, ok := p.byID[paneID]
	if !ok {
		l = &sync.Mutex{}
		p.byID[paneID] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l.Unlock
}
