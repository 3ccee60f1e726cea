package model

type TriggerType string

const TRIGGER_MESSAGE TriggerType = "MESSAGE"
const TRIGGER_BUTTON TriggerType = "BUTTON"
const TRIGGER_RESUME TriggerType = "RESUME"
const TRIGGER_SCHEDULE TriggerType = "SCHEDULE"
const TRIGGER_WEBHOOK TriggerType = "WEBHOOK"

// TriggerEvent is the canonical inbound event produced by ingress
// normalization. NodeId is set only for the push-style triggers (resume,
// schedule, webhook) that enter the graph at a specific node.
type TriggerEvent struct {
	Type       TriggerType
	Text       string
	ButtonId   string
	ButtonText string
	NodeId     string
	Variables  map[string]any
}
