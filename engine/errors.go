package engine

import "fmt"

// FlowCycleExceededError aborts a traversal whose visit count passed the
// ceiling. Flow graphs are author-controlled and may contain cycles; the
// walker bounds total node visits per invocation instead of looping forever.
type FlowCycleExceededError struct {
	FlowId string
	Limit  int
}

func (e FlowCycleExceededError) Error() string {
	return fmt.Sprintf("flow %s exceeded cycle limit of %d node visits", e.FlowId, e.Limit)
}

// DanglingEdgeError marks an edge whose target node does not exist in the
// flow definition.
type DanglingEdgeError struct {
	EdgeId string
	Target string
}

func (e DanglingEdgeError) Error() string {
	return fmt.Sprintf("edge %s targets unknown node %s", e.EdgeId, e.Target)
}
