package model

// Action is the walker's output unit: a platform-agnostic send intent.
// Only the channel adapters know how to realize an Action on a concrete
// chat API; side-effect nodes (httpRequest, completions) never produce one.
type Action interface {
	isAction()
}

type MediaKind string

const (
	MEDIA_IMAGE     MediaKind = "image"
	MEDIA_VIDEO     MediaKind = "video"
	MEDIA_AUDIO     MediaKind = "audio"
	MEDIA_ANIMATION MediaKind = "animation"
	MEDIA_DOCUMENT  MediaKind = "document"
	MEDIA_STICKER   MediaKind = "sticker"
)

type SendText struct {
	Text string
}

type SendButtons struct {
	Text    string
	Buttons []Button
}

type SendMedia struct {
	Kind     MediaKind
	Url      string
	Caption  string
	Filename string
}

type SendMediaGroup struct {
	Items []MediaGroupItem
}

type SendPoll struct {
	Question string
	Options  []string
	PollType string
}

type SendContact struct {
	Phone     string
	FirstName string
}

type SendVenue struct {
	Latitude  float64
	Longitude float64
	Title     string
	Address   string
}

type SendLocation struct {
	Latitude  float64
	Longitude float64
	Title     string
}

type SendDice struct {
	Emoji string
}

type SendInvoice struct {
	Title    string
	Price    float64
	Currency string
}

type EditMessage struct {
	Text string
}

type DeleteMessage struct{}

type Noop struct{}

func (SendText) isAction()       {}
func (SendButtons) isAction()    {}
func (SendMedia) isAction()      {}
func (SendMediaGroup) isAction() {}
func (SendPoll) isAction()       {}
func (SendContact) isAction()    {}
func (SendVenue) isAction()      {}
func (SendLocation) isAction()   {}
func (SendDice) isAction()       {}
func (SendInvoice) isAction()    {}
func (EditMessage) isAction()    {}
func (DeleteMessage) isAction()  {}
func (Noop) isAction()           {}
