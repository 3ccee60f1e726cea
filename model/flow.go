package model

type Platform string

const PLATFORM_TELEGRAM Platform = "telegram"
const PLATFORM_WHATSAPP Platform = "whatsapp"
const PLATFORM_DISCORD Platform = "discord"

type NodeType string

const (
	NODE_TYPE_START          NodeType = "start"
	NODE_TYPE_MESSAGE        NodeType = "message"
	NODE_TYPE_IMAGE          NodeType = "image"
	NODE_TYPE_VIDEO          NodeType = "video"
	NODE_TYPE_AUDIO          NodeType = "audio"
	NODE_TYPE_DOCUMENT       NodeType = "document"
	NODE_TYPE_ANIMATION      NodeType = "animation"
	NODE_TYPE_STICKER        NodeType = "sticker"
	NODE_TYPE_BUTTON_REPLY   NodeType = "buttonReply"
	NODE_TYPE_USER_INPUT     NodeType = "userInput"
	NODE_TYPE_CONDITION      NodeType = "condition"
	NODE_TYPE_POLL           NodeType = "poll"
	NODE_TYPE_CONTACT        NodeType = "contact"
	NODE_TYPE_VENUE          NodeType = "venue"
	NODE_TYPE_LOCATION       NodeType = "location"
	NODE_TYPE_DICE           NodeType = "dice"
	NODE_TYPE_INVOICE        NodeType = "invoice"
	NODE_TYPE_EDIT_MESSAGE   NodeType = "editMessage"
	NODE_TYPE_DELETE_MESSAGE NodeType = "deleteMessage"
	NODE_TYPE_MEDIA_GROUP    NodeType = "mediaGroup"
	NODE_TYPE_ACTION         NodeType = "action"
	NODE_TYPE_HTTP_REQUEST   NodeType = "httpRequest"
	NODE_TYPE_DELAY          NodeType = "delay"
	NODE_TYPE_OPENAI         NodeType = "openai"
	NODE_TYPE_ANTHROPIC      NodeType = "anthropic"
	NODE_TYPE_GEMINI         NodeType = "gemini"
	NODE_TYPE_SCHEDULE       NodeType = "schedule"
	NODE_TYPE_WEBHOOK        NodeType = "webhook"
)

// Edge handles used by branching nodes. Condition nodes emit "yes"/"no",
// buttonReply nodes emit "btn-<buttonId>" plus an optional "default".
const HANDLE_YES = "yes"
const HANDLE_NO = "no"
const HANDLE_DEFAULT = "default"
const HANDLE_BUTTON_PREFIX = "btn-"

type Edge struct {
	Id           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// FlowDefinition is the immutable node/edge graph of one bot version.
// At most one definition is active per bot at a time.
type FlowDefinition struct {
	Id     string `json:"id"`
	BotId  string `json:"botId"`
	Nodes  []Node `json:"nodes"`
	Edges  []Edge `json:"edges"`
	Active bool   `json:"active"`
}

func (f *FlowDefinition) NodeById(id string) *Node {
	for i := range f.Nodes {
		if f.Nodes[i].Id == id {
			return &f.Nodes[i]
		}
	}
	return nil
}

func (f *FlowDefinition) StartNode() *Node {
	for i := range f.Nodes {
		if f.Nodes[i].Type == NODE_TYPE_START {
			return &f.Nodes[i]
		}
	}
	return nil
}

// EdgesFrom returns the outgoing edges of a node in declaration order.
// Declaration order matters: condition nodes without yes/no handles fall
// back to first-edge-true, second-edge-false.
func (f *FlowDefinition) EdgesFrom(source string) []Edge {
	var out []Edge
	for _, e := range f.Edges {
		if e.Source == source {
			out = append(out, e)
		}
	}
	return out
}

func (f *FlowDefinition) EdgesFromHandle(source string, handle string) []Edge {
	var out []Edge
	for _, e := range f.Edges {
		if e.Source == source && e.SourceHandle == handle {
			out = append(out, e)
		}
	}
	return out
}

func (f *FlowDefinition) NodesOfType(t NodeType) []*Node {
	var out []*Node
	for i := range f.Nodes {
		if f.Nodes[i].Type == t {
			out = append(out, &f.Nodes[i])
		}
	}
	return out
}
