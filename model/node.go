package model

import (
	"encoding/json"
	"fmt"
)

// Node is one unit of flow behavior. Data is a tagged union: its concrete
// type is fully determined by Type, so handlers never probe optional fields.
type Node struct {
	Id   string
	Type NodeType
	Data NodeData
}

type NodeData interface {
	nodeData()
}

type StartData struct {
	// Content holds the trigger command, "/start" when empty.
	Content string `json:"content"`
}

type MessageData struct {
	Content string `json:"content"`
}

type ImageData struct {
	ImageUrl string `json:"imageUrl"`
	Caption  string `json:"caption"`
}

type VideoData struct {
	VideoUrl string `json:"videoUrl"`
	Caption  string `json:"caption"`
}

type AudioData struct {
	AudioUrl string `json:"audioUrl"`
	Caption  string `json:"caption"`
}

type AnimationData struct {
	AnimationUrl string `json:"animationUrl"`
	Caption      string `json:"caption"`
}

type DocumentData struct {
	DocumentUrl      string `json:"documentUrl"`
	DocumentFilename string `json:"documentFilename"`
}

type StickerData struct {
	StickerFileId string `json:"stickerFileId"`
}

type Button struct {
	Id   string `json:"id"`
	Text string `json:"text"`
}

type ButtonReplyData struct {
	Content string   `json:"content"`
	Buttons []Button `json:"buttons"`
}

type UserInputData struct {
	PromptText   string `json:"promptText"`
	VariableName string `json:"variableName"`
}

type ConditionData struct {
	Condition string `json:"condition"`
}

type PollData struct {
	PollQuestion string   `json:"pollQuestion"`
	PollOptions  []string `json:"pollOptions"`
	PollType     string   `json:"pollType"`
}

type ContactData struct {
	ContactPhone     string `json:"contactPhone"`
	ContactFirstName string `json:"contactFirstName"`
}

type VenueData struct {
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	LocationTitle string  `json:"locationTitle"`
	VenueAddress  string  `json:"venueAddress"`
}

type LocationData struct {
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	LocationTitle string  `json:"locationTitle"`
}

type DiceData struct {
	DiceEmoji string `json:"diceEmoji"`
}

type InvoiceData struct {
	InvoiceTitle    string  `json:"invoiceTitle"`
	InvoicePrice    float64 `json:"invoicePrice"`
	InvoiceCurrency string  `json:"invoiceCurrency"`
}

type EditMessageData struct {
	EditText string `json:"editText"`
}

type DeleteMessageData struct{}

type MediaGroupItem struct {
	Type string `json:"type"`
	Url  string `json:"url"`
}

type MediaGroupData struct {
	MediaGroupItems []MediaGroupItem `json:"mediaGroupItems"`
}

type ActionData struct {
	Action string `json:"action"`
}

type HttpRequestData struct {
	HttpUrl     string `json:"httpUrl"`
	HttpMethod  string `json:"httpMethod"`
	HttpHeaders string `json:"httpHeaders"`
	HttpBody    string `json:"httpBody"`
}

type DelayData struct {
	Delay     int    `json:"delay"`
	DelayUnit string `json:"delayUnit"`
}

// CompletionData is shared by the openai, anthropic and gemini node types.
type CompletionData struct {
	AiModel        string `json:"aiModel"`
	AiPrompt       string `json:"aiPrompt"`
	AiSystemPrompt string `json:"aiSystemPrompt"`
	AiSaveVariable string `json:"aiSaveVariable"`
}

type ScheduleData struct {
	ScheduleInterval     int      `json:"scheduleInterval"`
	ScheduleIntervalUnit string   `json:"scheduleIntervalUnit"`
	ScheduleTime         string   `json:"scheduleTime"`
	ScheduleDays         []string `json:"scheduleDays"`
}

type WebhookData struct {
	WebhookMethod       string `json:"webhookMethod"`
	WebhookSaveVariable string `json:"webhookSaveVariable"`
	WebhookUrl          string `json:"webhookUrl"`
}

func (StartData) nodeData()         {}
func (MessageData) nodeData()       {}
func (ImageData) nodeData()         {}
func (VideoData) nodeData()         {}
func (AudioData) nodeData()         {}
func (AnimationData) nodeData()     {}
func (DocumentData) nodeData()      {}
func (StickerData) nodeData()       {}
func (ButtonReplyData) nodeData()   {}
func (UserInputData) nodeData()     {}
func (ConditionData) nodeData()     {}
func (PollData) nodeData()          {}
func (ContactData) nodeData()       {}
func (VenueData) nodeData()         {}
func (LocationData) nodeData()      {}
func (DiceData) nodeData()          {}
func (InvoiceData) nodeData()       {}
func (EditMessageData) nodeData()   {}
func (DeleteMessageData) nodeData() {}
func (MediaGroupData) nodeData()    {}
func (ActionData) nodeData()        {}
func (HttpRequestData) nodeData()   {}
func (DelayData) nodeData()         {}
func (CompletionData) nodeData()    {}
func (ScheduleData) nodeData()      {}
func (WebhookData) nodeData()       {}

type nodeEnvelope struct {
	Id   string          `json:"id"`
	Type NodeType        `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (n *Node) UnmarshalJSON(b []byte) error {
	var env nodeEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	data, err := decodeNodeData(env.Type, env.Data)
	if err != nil {
		return err
	}
	n.Id = env.Id
	n.Type = env.Type
	n.Data = data
	return nil
}

func (n Node) MarshalJSON() ([]byte, error) {
	data := n.Data
	if data == nil {
		data = DeleteMessageData{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nodeEnvelope{Id: n.Id, Type: n.Type, Data: raw})
}

func decodeNodeData(t NodeType, raw json.RawMessage) (NodeData, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	unmarshal := func(v NodeData) (NodeData, error) {
		err := json.Unmarshal(raw, v)
		return v, err
	}
	switch t {
	case NODE_TYPE_START:
		return unmarshal(&StartData{})
	case NODE_TYPE_MESSAGE:
		return unmarshal(&MessageData{})
	case NODE_TYPE_IMAGE:
		return unmarshal(&ImageData{})
	case NODE_TYPE_VIDEO:
		return unmarshal(&VideoData{})
	case NODE_TYPE_AUDIO:
		return unmarshal(&AudioData{})
	case NODE_TYPE_ANIMATION:
		return unmarshal(&AnimationData{})
	case NODE_TYPE_DOCUMENT:
		return unmarshal(&DocumentData{})
	case NODE_TYPE_STICKER:
		return unmarshal(&StickerData{})
	case NODE_TYPE_BUTTON_REPLY:
		return unmarshal(&ButtonReplyData{})
	case NODE_TYPE_USER_INPUT:
		return unmarshal(&UserInputData{})
	case NODE_TYPE_CONDITION:
		return unmarshal(&ConditionData{})
	case NODE_TYPE_POLL:
		return unmarshal(&PollData{})
	case NODE_TYPE_CONTACT:
		return unmarshal(&ContactData{})
	case NODE_TYPE_VENUE:
		return unmarshal(&VenueData{})
	case NODE_TYPE_LOCATION:
		return unmarshal(&LocationData{})
	case NODE_TYPE_DICE:
		return unmarshal(&DiceData{})
	case NODE_TYPE_INVOICE:
		return unmarshal(&InvoiceData{})
	case NODE_TYPE_EDIT_MESSAGE:
		return unmarshal(&EditMessageData{})
	case NODE_TYPE_DELETE_MESSAGE:
		return unmarshal(&DeleteMessageData{})
	case NODE_TYPE_MEDIA_GROUP:
		return unmarshal(&MediaGroupData{})
	case NODE_TYPE_ACTION:
		return unmarshal(&ActionData{})
	case NODE_TYPE_HTTP_REQUEST:
		return unmarshal(&HttpRequestData{})
	case NODE_TYPE_DELAY:
		return unmarshal(&DelayData{})
	case NODE_TYPE_OPENAI, NODE_TYPE_ANTHROPIC, NODE_TYPE_GEMINI:
		return unmarshal(&CompletionData{})
	case NODE_TYPE_SCHEDULE:
		return unmarshal(&ScheduleData{})
	case NODE_TYPE_WEBHOOK:
		return unmarshal(&WebhookData{})
	}
	return nil, fmt.Errorf("unknown node type %q", t)
}
