package engine

import (
	"encoding/json"
	"strings"

	"github.com/zapflow/zapflow/model"
)

const defaultStartCommand = "/start"
const defaultInputVariable = "user_response"

type entryPoint struct {
	// nodes to process, in order
	nodes []string
	drop  bool
	// clearSession discards the pending state even though the turn is dropped
	clearSession bool
}

// resolveEntry decides where the traversal enters the graph for a trigger.
// Push-style triggers (resume, schedule, webhook) bypass reply resolution
// and enter at the named node's successors; chat triggers resolve against
// the session's pending node.
func resolveEntry(req Request, session *model.Session) entryPoint {
	flow := req.Flow
	trigger := req.Trigger

	switch trigger.Type {
	case model.TRIGGER_RESUME, model.TRIGGER_SCHEDULE:
		return entryPoint{nodes: edgeTargets(flow.EdgesFrom(trigger.NodeId))}

	case model.TRIGGER_WEBHOOK:
		for k, v := range trigger.Variables {
			session.SetVariable(k, v)
		}
		return entryPoint{nodes: edgeTargets(flow.EdgesFrom(trigger.NodeId))}

	case model.TRIGGER_BUTTON:
		return resolveButton(flow, session, trigger)

	case model.TRIGGER_MESSAGE:
		return resolveMessage(req, session)
	}
	return entryPoint{drop: true}
}

func resolveButton(flow *model.FlowDefinition, session *model.Session, trigger model.TriggerEvent) entryPoint {
	if !session.Pending() {
		return entryPoint{drop: true}
	}
	pending := flow.NodeById(session.CurrentNodeId)
	if pending == nil || pending.Type != model.NODE_TYPE_BUTTON_REPLY {
		return entryPoint{drop: true}
	}

	edges := flow.EdgesFromHandle(pending.Id, model.HANDLE_BUTTON_PREFIX+trigger.ButtonId)
	if len(edges) == 0 {
		edges = flow.EdgesFromHandle(pending.Id, model.HANDLE_DEFAULT)
	}
	if len(edges) == 0 {
		// no matching button edge and no default: the turn is silently
		// dropped and the pending state discarded
		return entryPoint{drop: true, clearSession: true}
	}

	buttonText := trigger.ButtonText
	if buttonText == "" {
		// telegram callbacks carry only the id; recover the label from the node
		if data, ok := pending.Data.(*model.ButtonReplyData); ok {
			for _, btn := range data.Buttons {
				if btn.Id == trigger.ButtonId {
					buttonText = btn.Text
					break
				}
			}
		}
	}
	session.SetVariable("last_button", trigger.ButtonId)
	session.SetVariable("last_button_text", buttonText)
	session.CurrentNodeId = ""
	return entryPoint{nodes: edgeTargets(edges)}
}

func resolveMessage(req Request, session *model.Session) entryPoint {
	flow := req.Flow
	trigger := req.Trigger

	if session.Pending() {
		pending := flow.NodeById(session.CurrentNodeId)
		if pending == nil {
			return entryPoint{drop: true, clearSession: true}
		}
		if pending.Type == model.NODE_TYPE_USER_INPUT {
			data := pending.Data.(*model.UserInputData)
			varName := data.VariableName
			if varName == "" {
				varName = defaultInputVariable
			}
			session.SetVariable(varName, trigger.Text)
			session.CurrentNodeId = ""
			return entryPoint{nodes: edgeTargets(flow.EdgesFrom(pending.Id))}
		}
		// a text while awaiting a button click (or a delay resume) is ignored
		return entryPoint{drop: true}
	}

	start := flow.StartNode()
	if start == nil {
		return entryPoint{drop: true}
	}
	if !matchesStartTrigger(start, trigger.Text, req.Greetings) {
		return entryPoint{drop: true}
	}
	// a new start trigger resets whatever was accumulated before
	session.Variables = make(map[string]any)
	return entryPoint{nodes: []string{start.Id}}
}

func matchesStartTrigger(start *model.Node, text string, greetings []string) bool {
	command := defaultStartCommand
	if data, ok := start.Data.(*model.StartData); ok && data.Content != "" {
		command = data.Content
	}
	if text == command || text == defaultStartCommand {
		return true
	}
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, g := range greetings {
		if lower == strings.ToLower(g) {
			return true
		}
	}
	return false
}

func edgeTargets(edges []model.Edge) []string {
	targets := make([]string, 0, len(edges))
	for _, e := range edges {
		targets = append(targets, e.Target)
	}
	return targets
}

func unmarshalLenient(s string, v any) error {
	return json.Unmarshal([]byte(s), v)
}
