package llm

import (
	"sync"
	"time"
)

// ThinkingEvent is a single unit of thought, streamed to observers so the
// organism's reasoning is visible token by token.
type ThinkingEvent struct {
	Organ     string         `json:"organ"`
	Phase     string         `json:"phase"`
	Token     string         `json:"token"`
	Content   string         `json:"content"`
	Timestamp float64        `json:"timestamp"`
	Meta      map[string]any `json:"meta"`
}

// ThinkingListener receives thinking events. Listeners must not block;
// the cortex drops nothing and waits for no one.
type ThinkingListener func(ThinkingEvent)

var (
	listenerMu sync.RWMutex
	listeners  []ThinkingListener
	nextID     int
	listenerID = map[int]int{} // id -> slice index rebuilt on removal
)

// OnThinking registers a listener and returns a removal function.
func OnThinking(fn ThinkingListener) (remove func()) {
	listenerMu.Lock()
	defer listenerMu.Unlock()
	id := nextID
	nextID++
	listeners = append(listeners, fn)
	listenerID[id] = len(listeners) - 1
	return func() { removeListener(id) }
}

func removeListener(id int) {
	listenerMu.Lock()
	defer listenerMu.Unlock()
	idx, ok := listenerID[id]
	if !ok {
		return
	}
	listeners = append(listeners[:idx], listeners[idx+1:]...)
	delete(listenerID, id)
	for other, i := range listenerID {
		if i > idx {
			listenerID[other] = i - 1
		}
	}
}

func emitThinking(ev ThinkingEvent) {
	if ev.Timestamp == 0 {
		ev.Timestamp = float64(time.Now().UnixNano()) / 1e9
	}
	if ev.Meta == nil {
		ev.Meta = map[string]any{}
	}
	listenerMu.RLock()
	snapshot := make([]ThinkingListener, len(listeners))
	copy(snapshot, listeners)
	listenerMu.RUnlock()
	for _, fn := range snapshot {
		func() {
			defer func() { _ = recover() }()
			fn(ev)
		}()
	}
}
