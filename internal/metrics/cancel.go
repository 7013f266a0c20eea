package metrics

import "sync"

// cancelSet is the process-wide cooperative cancellation flag per document.
// The admin surface sets a flag; workers poll it at each loop head and
// before each outbound call.
var cancelSet = struct {
	mu   sync.RWMutex
	docs map[string]bool
}{docs: make(map[string]bool)}

// SetCancel flags a document run for cancellation.
func SetCancel(docID string) {
	cancelSet.mu.Lock()
	defer cancelSet.mu.Unlock()
	cancelSet.docs[docID] = true
}

// IsCancelled reports whether a document run has been flagged.
func IsCancelled(docID string) bool {
	cancelSet.mu.RLock()
	defer cancelSet.mu.RUnlock()
	return cancelSet.docs[docID]
}

// ClearCancel removes the flag, typically at the start of a fresh run.
func ClearCancel(docID string) {
	cancelSet.mu.Lock()
	defer cancelSet.mu.Unlock()
	delete(cancelSet.docs, docID)
}
