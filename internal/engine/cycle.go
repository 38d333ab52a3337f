package engine

import "sync"

// CycleDetector remembers, per flow, which outputs have been written for
// which target documents.
//
// A recompute within a flow that would write an output hash already written
// for the same (definition, document) means something in the flow changed the
// target back in between. Example:
//
//	posts update -> postsView write (hash A)
//	postsView hook updates posts -> postsView write (hash B)
//	posts hook reverts -> postsView write (hash A again) <- CYCLE DETECTED
//
// Unchanged targets never reach the detector: a recompute whose output equals
// the stored document is suppressed before any write.
type CycleDetector struct {
	mu      sync.Mutex
	history map[string]map[string]bool // map[flow_token]map[cycle_key]bool
}

// NewCycleDetector creates a new cycle detector.
func NewCycleDetector() *CycleDetector {
	return &CycleDetector{
		history: make(map[string]map[string]bool),
	}
}

// WouldCycle reports whether (definitionID, documentID, outputHash) was
// already recorded in this flow.
func (c *CycleDetector) WouldCycle(flowToken, definitionID, documentID, outputHash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.history[flowToken] == nil {
		return false
	}
	return c.history[flowToken][cycleKey(definitionID, documentID, outputHash)]
}

// Record marks that this output has been written in this flow.
// Call it right after WouldCycle returns false, before the write.
func (c *CycleDetector) Record(flowToken, definitionID, documentID, outputHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.history[flowToken] == nil {
		c.history[flowToken] = make(map[string]bool)
	}
	c.history[flowToken][cycleKey(definitionID, documentID, outputHash)] = true
}

// Clear removes all history for a flow token. Flows call it when they end.
func (c *CycleDetector) Clear(flowToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.history, flowToken)
}

// historySize returns the number of flows with tracked history.
func (c *CycleDetector) historySize() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.history)
}

// flowHistorySize returns the number of outputs tracked for a flow.
func (c *CycleDetector) flowHistorySize(flowToken string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.history[flowToken])
}

func cycleKey(definitionID, documentID, outputHash string) string {
	return definitionID + "\x00" + documentID + "\x00" + outputHash
}
