package gateway

import "sync"

// CallLog records the order of gateway calls across mocks, so tests can
// assert sequencing (a rejected charge must mean zero reservation calls).
type CallLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *CallLog) Record(name string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

func (l *CallLog) Calls() []string {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}
