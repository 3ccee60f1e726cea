package engine

import (
	"context"
	"time"

	"github.com/zapflow/zapflow/logger"
	"github.com/zapflow/zapflow/model"
	"go.uber.org/zap"
)

// MaxNodeVisits bounds one traversal. Flow graphs may contain cycles.
const MaxNodeVisits = 512

// Sink receives actions in emission order. The execution service backs it
// with the conversation's channel adapter; tests back it with a recorder.
// A send failure must not stall the state machine, so Send errors are
// logged by the sink owner and never propagated into the walker.
type Sink interface {
	Send(ctx context.Context, action model.Action)
}

// HttpClient performs httpRequest node calls.
type HttpClient interface {
	Do(ctx context.Context, method string, url string, headers map[string]string, body string) (status int, responseBody string, err error)
}

// CompletionProvider answers one prompt for an AI completion node.
type CompletionProvider interface {
	Complete(ctx context.Context, modelName string, systemPrompt string, prompt string) (string, error)
}

// Request is one trigger event to process against a flow.
type Request struct {
	Flow           *model.FlowDefinition
	ConversationId string
	Session        *model.Session // nil for a fresh conversation
	Trigger        model.TriggerEvent
	// Greetings are extra texts accepted as a start trigger besides the
	// start node's own command (e.g. the WhatsApp greeting set).
	Greetings []string
}

// Suspension parks a conversation on a delay node. The timer service
// re-enters the walker at the node once ResumeAt passes.
type Suspension struct {
	NodeId   string
	ResumeAt time.Time
}

// Result carries the updated session, the emitted actions in order, and an
// optional delay suspension. Dropped is set when entry resolution decided
// the event is a no-op (idle chatter, unmatched button, stale reply).
type Result struct {
	Session    *model.Session
	Actions    []model.Action
	Suspension *Suspension
	Dropped    bool
	// ClearSession is set when the conversation terminated cleanly (or the
	// turn was dropped in a way that must discard the pending state).
	ClearSession bool
}

// Executor walks a flow graph for one trigger event. It is stateless and
// safe for concurrent use; all mutable state lives in the Session.
type Executor struct {
	http        HttpClient
	completions map[model.NodeType]CompletionProvider
}

func NewExecutor(http HttpClient, completions map[model.NodeType]CompletionProvider) *Executor {
	return &Executor{
		http:        http,
		completions: completions,
	}
}

// walk holds the per-invocation traversal state.
type walk struct {
	executor *Executor
	flow     *model.FlowDefinition
	session  *model.Session
	trigger  model.TriggerEvent
	sink     Sink
	actions  []model.Action
	visits   int
	// pendingNode is the last buttonReply/userInput node reached; it becomes
	// the session's CurrentNodeId when traversal finishes.
	pendingNode string
	suspension  *Suspension
}

// Execute processes one trigger event to completion: resolve the entry
// node(s), run node handlers depth-first, and return the updated session
// plus the ordered actions. Node execution is sequential; later nodes may
// depend on variables set by earlier ones.
func (e *Executor) Execute(ctx context.Context, req Request, sink Sink) (*Result, error) {
	session := req.Session
	if session == nil {
		session = model.NewSession(req.Flow.Id, req.ConversationId)
	}
	entry := resolveEntry(req, session)
	if entry.drop {
		return &Result{Session: session, Dropped: true, ClearSession: entry.clearSession}, nil
	}

	w := &walk{
		executor: e,
		flow:     req.Flow,
		session:  session,
		trigger:  req.Trigger,
		sink:     sink,
	}
	for _, nodeId := range entry.nodes {
		node := req.Flow.NodeById(nodeId)
		if node == nil {
			return nil, DanglingEdgeError{Target: nodeId}
		}
		if err := w.process(ctx, node); err != nil {
			return nil, err
		}
		if w.suspension != nil {
			break
		}
	}

	session.CurrentNodeId = w.pendingNode
	session.ResumeAt = nil
	if w.suspension != nil {
		session.CurrentNodeId = w.suspension.NodeId
		resumeAt := w.suspension.ResumeAt
		session.ResumeAt = &resumeAt
	}
	return &Result{
		Session:      session,
		Actions:      w.actions,
		Suspension:   w.suspension,
		ClearSession: session.CurrentNodeId == "",
	}, nil
}

func (w *walk) emit(ctx context.Context, action model.Action) {
	w.actions = append(w.actions, action)
	if w.sink != nil {
		w.sink.Send(ctx, action)
	}
}

// continueFrom follows every outgoing edge of the node in declaration order.
func (w *walk) continueFrom(ctx context.Context, nodeId string) error {
	for _, edge := range w.flow.EdgesFrom(nodeId) {
		if err := w.processTarget(ctx, edge); err != nil {
			return err
		}
		if w.suspension != nil {
			return nil
		}
	}
	return nil
}

func (w *walk) processTarget(ctx context.Context, edge model.Edge) error {
	next := w.flow.NodeById(edge.Target)
	if next == nil {
		return DanglingEdgeError{EdgeId: edge.Id, Target: edge.Target}
	}
	return w.process(ctx, next)
}

func (w *walk) process(ctx context.Context, node *model.Node) error {
	w.visits++
	if w.visits > MaxNodeVisits {
		return FlowCycleExceededError{FlowId: w.flow.Id, Limit: MaxNodeVisits}
	}

	vars := w.session.Variables
	switch data := node.Data.(type) {
	case *model.StartData:
		return w.continueFrom(ctx, node.Id)

	case *model.MessageData:
		if data.Content != "" {
			w.emit(ctx, model.SendText{Text: Interpolate(data.Content, vars)})
		}
		return w.continueFrom(ctx, node.Id)

	case *model.ImageData:
		if data.ImageUrl != "" {
			w.emit(ctx, model.SendMedia{Kind: model.MEDIA_IMAGE, Url: data.ImageUrl, Caption: Interpolate(data.Caption, vars)})
		}
		return w.continueFrom(ctx, node.Id)

	case *model.VideoData:
		if data.VideoUrl != "" {
			w.emit(ctx, model.SendMedia{Kind: model.MEDIA_VIDEO, Url: data.VideoUrl, Caption: Interpolate(data.Caption, vars)})
		}
		return w.continueFrom(ctx, node.Id)

	case *model.AudioData:
		if data.AudioUrl != "" {
			w.emit(ctx, model.SendMedia{Kind: model.MEDIA_AUDIO, Url: data.AudioUrl, Caption: Interpolate(data.Caption, vars)})
		}
		return w.continueFrom(ctx, node.Id)

	case *model.AnimationData:
		if data.AnimationUrl != "" {
			w.emit(ctx, model.SendMedia{Kind: model.MEDIA_ANIMATION, Url: data.AnimationUrl, Caption: Interpolate(data.Caption, vars)})
		}
		return w.continueFrom(ctx, node.Id)

	case *model.DocumentData:
		if data.DocumentUrl != "" {
			w.emit(ctx, model.SendMedia{Kind: model.MEDIA_DOCUMENT, Url: data.DocumentUrl, Filename: data.DocumentFilename})
		}
		return w.continueFrom(ctx, node.Id)

	case *model.StickerData:
		if data.StickerFileId != "" {
			w.emit(ctx, model.SendMedia{Kind: model.MEDIA_STICKER, Url: data.StickerFileId})
		}
		return w.continueFrom(ctx, node.Id)

	case *model.ButtonReplyData:
		if len(data.Buttons) == 0 {
			// nothing to offer, the branch halts silently
			return nil
		}
		text := data.Content
		if text == "" {
			text = "Escolha uma opção:"
		}
		w.emit(ctx, model.SendButtons{Text: Interpolate(text, vars), Buttons: data.Buttons})
		w.pendingNode = node.Id
		return nil

	case *model.UserInputData:
		if data.PromptText != "" {
			w.emit(ctx, model.SendText{Text: Interpolate(data.PromptText, vars)})
		}
		w.pendingNode = node.Id
		return nil

	case *model.ConditionData:
		return w.processCondition(ctx, node, data)

	case *model.PollData:
		if data.PollQuestion != "" {
			w.emit(ctx, model.SendPoll{Question: Interpolate(data.PollQuestion, vars), Options: data.PollOptions, PollType: data.PollType})
		}
		return w.continueFrom(ctx, node.Id)

	case *model.ContactData:
		if data.ContactPhone != "" {
			w.emit(ctx, model.SendContact{Phone: data.ContactPhone, FirstName: data.ContactFirstName})
		}
		return w.continueFrom(ctx, node.Id)

	case *model.VenueData:
		if data.Latitude != 0 && data.Longitude != 0 {
			w.emit(ctx, model.SendVenue{Latitude: data.Latitude, Longitude: data.Longitude, Title: data.LocationTitle, Address: data.VenueAddress})
		}
		return w.continueFrom(ctx, node.Id)

	case *model.LocationData:
		if data.Latitude != 0 && data.Longitude != 0 {
			w.emit(ctx, model.SendLocation{Latitude: data.Latitude, Longitude: data.Longitude, Title: data.LocationTitle})
		}
		return w.continueFrom(ctx, node.Id)

	case *model.DiceData:
		w.emit(ctx, model.SendDice{Emoji: data.DiceEmoji})
		return w.continueFrom(ctx, node.Id)

	case *model.InvoiceData:
		if data.InvoiceTitle != "" {
			w.emit(ctx, model.SendInvoice{Title: Interpolate(data.InvoiceTitle, vars), Price: data.InvoicePrice, Currency: data.InvoiceCurrency})
		}
		return w.continueFrom(ctx, node.Id)

	case *model.EditMessageData:
		w.emit(ctx, model.EditMessage{Text: Interpolate(data.EditText, vars)})
		return w.continueFrom(ctx, node.Id)

	case *model.DeleteMessageData:
		w.emit(ctx, model.DeleteMessage{})
		return w.continueFrom(ctx, node.Id)

	case *model.MediaGroupData:
		if len(data.MediaGroupItems) > 0 {
			w.emit(ctx, model.SendMediaGroup{Items: data.MediaGroupItems})
		}
		return w.continueFrom(ctx, node.Id)

	case *model.ActionData:
		logger.Info("action node executed", zap.String("flowId", w.flow.Id), zap.String("nodeId", node.Id), zap.String("action", data.Action))
		return w.continueFrom(ctx, node.Id)

	case *model.HttpRequestData:
		w.processHttpRequest(ctx, node, data)
		return w.continueFrom(ctx, node.Id)

	case *model.CompletionData:
		w.processCompletion(ctx, node, data)
		return w.continueFrom(ctx, node.Id)

	case *model.DelayData:
		w.suspension = &Suspension{
			NodeId:   node.Id,
			ResumeAt: time.Now().Add(delayDuration(data)),
		}
		return nil

	case *model.ScheduleData, *model.WebhookData:
		// push-style entry points; when reached mid-traversal they pass through
		return w.continueFrom(ctx, node.Id)
	}
	logger.Warn("node type without handler skipped", zap.String("flowId", w.flow.Id), zap.String("nodeId", node.Id), zap.String("type", string(node.Type)))
	return w.continueFrom(ctx, node.Id)
}

// processCondition branches to exactly one edge. The yes/no handles win;
// without them the first declared edge is the true branch and the second
// the false branch. The positional fallback is kept for compatibility with
// flows emitted by older editors.
func (w *walk) processCondition(ctx context.Context, node *model.Node, data *model.ConditionData) error {
	result := Evaluate(data.Condition, w.trigger.Text, w.session.Variables)
	outEdges := w.flow.EdgesFrom(node.Id)

	var chosen *model.Edge
	if result {
		if yes := w.flow.EdgesFromHandle(node.Id, model.HANDLE_YES); len(yes) > 0 {
			chosen = &yes[0]
		} else if len(outEdges) > 0 {
			chosen = &outEdges[0]
		}
	} else {
		if no := w.flow.EdgesFromHandle(node.Id, model.HANDLE_NO); len(no) > 0 {
			chosen = &no[0]
		} else if len(outEdges) > 1 {
			chosen = &outEdges[1]
		}
	}
	if chosen == nil {
		return nil
	}
	return w.processTarget(ctx, *chosen)
}

// processHttpRequest performs the call and records the outcome into
// variables. A failed call must not kill the turn: the error lands in
// http_error and traversal continues.
func (w *walk) processHttpRequest(ctx context.Context, node *model.Node, data *model.HttpRequestData) {
	if data.HttpUrl == "" || w.executor.http == nil {
		return
	}
	vars := w.session.Variables
	url := Interpolate(data.HttpUrl, vars)
	method := data.HttpMethod
	if method == "" {
		method = "GET"
	}
	headers := map[string]string{"Content-Type": "application/json"}
	if data.HttpHeaders != "" {
		var custom map[string]string
		if err := unmarshalLenient(Interpolate(data.HttpHeaders, vars), &custom); err == nil {
			for k, v := range custom {
				headers[k] = v
			}
		}
	}
	var body string
	if (method == "POST" || method == "PUT") && data.HttpBody != "" {
		body = Interpolate(data.HttpBody, vars)
	}

	status, responseBody, err := w.executor.http.Do(ctx, method, url, headers, body)
	if err != nil {
		logger.Error("http request node failed", zap.String("flowId", w.flow.Id), zap.String("nodeId", node.Id), zap.Error(err))
		w.session.SetVariable("http_error", err.Error())
		return
	}
	w.session.SetVariable("http_response", responseBody)
	w.session.SetVariable("http_status", status)
	var parsed any
	if err := unmarshalLenient(responseBody, &parsed); err == nil {
		w.session.SetVariable("http_json", parsed)
	}
	logger.Info("http request node", zap.String("method", method), zap.String("url", url), zap.Int("status", status))
}

func (w *walk) processCompletion(ctx context.Context, node *model.Node, data *model.CompletionData) {
	provider := w.executor.completions[node.Type]
	saveVar := data.AiSaveVariable
	if saveVar == "" {
		saveVar = "ai_response"
	}
	if provider == nil {
		logger.Warn("no completion provider configured", zap.String("type", string(node.Type)), zap.String("nodeId", node.Id))
		w.session.SetVariable("ai_error", "provider not configured")
		return
	}
	vars := w.session.Variables
	answer, err := provider.Complete(ctx, data.AiModel, Interpolate(data.AiSystemPrompt, vars), Interpolate(data.AiPrompt, vars))
	if err != nil {
		logger.Error("completion node failed", zap.String("flowId", w.flow.Id), zap.String("nodeId", node.Id), zap.Error(err))
		w.session.SetVariable("ai_error", err.Error())
		return
	}
	w.session.SetVariable(saveVar, answer)
}

func delayDuration(data *model.DelayData) time.Duration {
	amount := data.Delay
	if amount <= 0 {
		amount = 1
	}
	switch data.DelayUnit {
	case "minutes":
		return time.Duration(amount) * time.Minute
	case "hours":
		return time.Duration(amount) * time.Hour
	default:
		return time.Duration(amount) * time.Second
	}
}
