package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zapflow/zapflow/model"
)

type recordingSink struct {
	actions []model.Action
}

func (r *recordingSink) Send(_ context.Context, action model.Action) {
	r.actions = append(r.actions, action)
}

type fakeHttpClient struct {
	status int
	body   string
	err    error

	gotMethod string
	gotUrl    string
	gotBody   string
}

func (f *fakeHttpClient) Do(_ context.Context, method string, url string, headers map[string]string, body string) (int, string, error) {
	f.gotMethod = method
	f.gotUrl = url
	f.gotBody = body
	return f.status, f.body, f.err
}

type fakeProvider struct {
	answer    string
	err       error
	gotPrompt string
}

func (f *fakeProvider) Complete(_ context.Context, modelName string, systemPrompt string, prompt string) (string, error) {
	f.gotPrompt = prompt
	return f.answer, f.err
}

func node(id string, nodeType model.NodeType, data model.NodeData) model.Node {
	return model.Node{Id: id, Type: nodeType, Data: data}
}

func edge(source string, target string) model.Edge {
	return model.Edge{Id: source + "-" + target, Source: source, Target: target}
}

func handleEdge(source string, target string, handle string) model.Edge {
	return model.Edge{Id: source + "-" + target, Source: source, Target: target, SourceHandle: handle}
}

func buildFlow(nodes []model.Node, edges []model.Edge) *model.FlowDefinition {
	return &model.FlowDefinition{Id: "flow-1", BotId: "bot-1", Nodes: nodes, Edges: edges, Active: true}
}

func TestWalker(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"start trigger sends greeting":            testStartGreeting,
		"idle chatter is dropped":                 testIdleChatterDropped,
		"user input round trip":                   testUserInputRoundTrip,
		"condition branches on reply":             testConditionBranch,
		"condition falls back to edge order":      testConditionPositionalFallback,
		"button falls back to default edge":       testButtonDefaultFallback,
		"button without edges clears session":     testButtonNoEdgesClears,
		"button text recovered from node":         testButtonTextFromNode,
		"cycle aborts at visit ceiling":           testCycleCeiling,
		"delay suspends and resume continues":     testDelaySuspendResume,
		"http request feeds variables":            testHttpRequestVariables,
		"completion saves answer":                 testCompletionSavesAnswer,
		"completion failure records error":        testCompletionFailure,
		"webhook trigger merges variables":        testWebhookTrigger,
		"button reply without buttons halts":      testButtonReplyWithoutButtons,
		"sibling branch keeps last pending":       testSiblingBranchPending,
	} {
		t.Run(scenario, fn)
	}
}

func testStartGreeting(t *testing.T) {
	flow := buildFlow(
		[]model.Node{
			node("start", model.NODE_TYPE_START, &model.StartData{}),
			node("msg", model.NODE_TYPE_MESSAGE, &model.MessageData{Content: "Olá {{name}}"}),
		},
		[]model.Edge{edge("start", "msg")},
	)
	executor := NewExecutor(nil, nil)
	sink := &recordingSink{}
	result, err := executor.Execute(context.Background(), Request{
		Flow:           flow,
		ConversationId: "42",
		Trigger:        model.TriggerEvent{Type: model.TRIGGER_MESSAGE, Text: "/start"},
	}, sink)
	require.NoError(t, err)
	require.False(t, result.Dropped)
	require.Len(t, result.Actions, 1)
	// name was never set, the token stays verbatim
	require.Equal(t, model.SendText{Text: "Olá {{name}}"}, result.Actions[0])
	require.Equal(t, result.Actions, sink.actions)
	require.True(t, result.ClearSession)
}

func testIdleChatterDropped(t *testing.T) {
	flow := buildFlow(
		[]model.Node{
			node("start", model.NODE_TYPE_START, &model.StartData{Content: "/menu"}),
			node("msg", model.NODE_TYPE_MESSAGE, &model.MessageData{Content: "hi"}),
		},
		[]model.Edge{edge("start", "msg")},
	)
	executor := NewExecutor(nil, nil)
	result, err := executor.Execute(context.Background(), Request{
		Flow:           flow,
		ConversationId: "42",
		Trigger:        model.TriggerEvent{Type: model.TRIGGER_MESSAGE, Text: "bom dia"},
	}, nil)
	require.NoError(t, err)
	require.True(t, result.Dropped)
	require.Empty(t, result.Actions)
}

func testUserInputRoundTrip(t *testing.T) {
	flow := buildFlow(
		[]model.Node{
			node("start", model.NODE_TYPE_START, &model.StartData{}),
			node("ask", model.NODE_TYPE_USER_INPUT, &model.UserInputData{PromptText: "Qual seu nome?", VariableName: "name"}),
			node("greet", model.NODE_TYPE_MESSAGE, &model.MessageData{Content: "Olá {{name}}"}),
		},
		[]model.Edge{edge("start", "ask"), edge("ask", "greet")},
	)
	executor := NewExecutor(nil, nil)

	first, err := executor.Execute(context.Background(), Request{
		Flow:           flow,
		ConversationId: "42",
		Trigger:        model.TriggerEvent{Type: model.TRIGGER_MESSAGE, Text: "/start"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, []model.Action{model.SendText{Text: "Qual seu nome?"}}, first.Actions)
	require.Equal(t, "ask", first.Session.CurrentNodeId)
	require.False(t, first.ClearSession)

	second, err := executor.Execute(context.Background(), Request{
		Flow:           flow,
		ConversationId: "42",
		Session:        first.Session,
		Trigger:        model.TriggerEvent{Type: model.TRIGGER_MESSAGE, Text: "Alice"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, []model.Action{model.SendText{Text: "Olá Alice"}}, second.Actions)
	require.Equal(t, "Alice", second.Session.Variables["name"])
	require.True(t, second.ClearSession)
}

func testConditionBranch(t *testing.T) {
	flow := buildFlow(
		[]model.Node{
			node("start", model.NODE_TYPE_START, &model.StartData{}),
			node("ask", model.NODE_TYPE_USER_INPUT, &model.UserInputData{PromptText: "Confirma?", VariableName: "answer"}),
			node("cond", model.NODE_TYPE_CONDITION, &model.ConditionData{Condition: `message == "sim"`}),
			node("yes", model.NODE_TYPE_MESSAGE, &model.MessageData{Content: "Confirmado!"}),
			node("no", model.NODE_TYPE_MESSAGE, &model.MessageData{Content: "Cancelado."}),
		},
		[]model.Edge{
			edge("start", "ask"),
			edge("ask", "cond"),
			handleEdge("cond", "yes", model.HANDLE_YES),
			handleEdge("cond", "no", model.HANDLE_NO),
		},
	)
	executor := NewExecutor(nil, nil)
	session := model.NewSession("flow-1", "42")
	session.CurrentNodeId = "ask"

	result, err := executor.Execute(context.Background(), Request{
		Flow:           flow,
		ConversationId: "42",
		Session:        session,
		Trigger:        model.TriggerEvent{Type: model.TRIGGER_MESSAGE, Text: "sim"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, []model.Action{model.SendText{Text: "Confirmado!"}}, result.Actions)

	session = model.NewSession("flow-1", "42")
	session.CurrentNodeId = "ask"
	result, err = executor.Execute(context.Background(), Request{
		Flow:           flow,
		ConversationId: "42",
		Session:        session,
		Trigger:        model.TriggerEvent{Type: model.TRIGGER_MESSAGE, Text: "não"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, []model.Action{model.SendText{Text: "Cancelado."}}, result.Actions)
}

func testConditionPositionalFallback(t *testing.T) {
	// no yes/no handles: first edge is the true branch, second the false one
	flow := buildFlow(
		[]model.Node{
			node("start", model.NODE_TYPE_START, &model.StartData{}),
			node("ask", model.NODE_TYPE_USER_INPUT, &model.UserInputData{}),
			node("cond", model.NODE_TYPE_CONDITION, &model.ConditionData{Condition: `message == "ok"`}),
			node("first", model.NODE_TYPE_MESSAGE, &model.MessageData{Content: "first"}),
			node("second", model.NODE_TYPE_MESSAGE, &model.MessageData{Content: "second"}),
		},
		[]model.Edge{
			edge("start", "ask"),
			edge("ask", "cond"),
			edge("cond", "first"),
			edge("cond", "second"),
		},
	)
	executor := NewExecutor(nil, nil)
	session := model.NewSession("flow-1", "42")
	session.CurrentNodeId = "ask"

	result, err := executor.Execute(context.Background(), Request{
		Flow:           flow,
		ConversationId: "42",
		Session:        session,
		Trigger:        model.TriggerEvent{Type: model.TRIGGER_MESSAGE, Text: "nope"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, []model.Action{model.SendText{Text: "second"}}, result.Actions)
}

func buttonFlow(edges []model.Edge) *model.FlowDefinition {
	nodes := []model.Node{
		node("start", model.NODE_TYPE_START, &model.StartData{}),
		node("buttons", model.NODE_TYPE_BUTTON_REPLY, &model.ButtonReplyData{
			Content: "Escolha:",
			Buttons: []model.Button{{Id: "a", Text: "Opção A"}, {Id: "b", Text: "Opção B"}},
		}),
		node("picked-a", model.NODE_TYPE_MESSAGE, &model.MessageData{Content: "A!"}),
		node("fallback", model.NODE_TYPE_MESSAGE, &model.MessageData{Content: "fallback"}),
	}
	return buildFlow(nodes, append([]model.Edge{edge("start", "buttons")}, edges...))
}

func testButtonDefaultFallback(t *testing.T) {
	flow := buttonFlow([]model.Edge{
		handleEdge("buttons", "picked-a", model.HANDLE_BUTTON_PREFIX+"a"),
		handleEdge("buttons", "fallback", model.HANDLE_DEFAULT),
	})
	executor := NewExecutor(nil, nil)
	session := model.NewSession("flow-1", "42")
	session.CurrentNodeId = "buttons"

	result, err := executor.Execute(context.Background(), Request{
		Flow:           flow,
		ConversationId: "42",
		Session:        session,
		Trigger:        model.TriggerEvent{Type: model.TRIGGER_BUTTON, ButtonId: "unknown"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, []model.Action{model.SendText{Text: "fallback"}}, result.Actions)
	require.Equal(t, "unknown", result.Session.Variables["last_button"])
}

func testButtonNoEdgesClears(t *testing.T) {
	flow := buttonFlow(nil)
	executor := NewExecutor(nil, nil)
	session := model.NewSession("flow-1", "42")
	session.CurrentNodeId = "buttons"

	result, err := executor.Execute(context.Background(), Request{
		Flow:           flow,
		ConversationId: "42",
		Session:        session,
		Trigger:        model.TriggerEvent{Type: model.TRIGGER_BUTTON, ButtonId: "a"},
	}, nil)
	require.NoError(t, err)
	require.True(t, result.Dropped)
	require.True(t, result.ClearSession)
	require.Empty(t, result.Actions)
}

func testButtonTextFromNode(t *testing.T) {
	flow := buttonFlow([]model.Edge{
		handleEdge("buttons", "picked-a", model.HANDLE_BUTTON_PREFIX+"a"),
	})
	executor := NewExecutor(nil, nil)
	session := model.NewSession("flow-1", "42")
	session.CurrentNodeId = "buttons"

	result, err := executor.Execute(context.Background(), Request{
		Flow:           flow,
		ConversationId: "42",
		Session:        session,
		Trigger:        model.TriggerEvent{Type: model.TRIGGER_BUTTON, ButtonId: "a"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "a", result.Session.Variables["last_button"])
	require.Equal(t, "Opção A", result.Session.Variables["last_button_text"])
}

func testCycleCeiling(t *testing.T) {
	flow := buildFlow(
		[]model.Node{
			node("start", model.NODE_TYPE_START, &model.StartData{}),
			node("loop", model.NODE_TYPE_MESSAGE, &model.MessageData{Content: "again"}),
		},
		[]model.Edge{edge("start", "loop"), edge("loop", "loop")},
	)
	executor := NewExecutor(nil, nil)
	_, err := executor.Execute(context.Background(), Request{
		Flow:           flow,
		ConversationId: "42",
		Trigger:        model.TriggerEvent{Type: model.TRIGGER_MESSAGE, Text: "/start"},
	}, nil)
	require.Error(t, err)
	var cycleErr FlowCycleExceededError
	require.True(t, errors.As(err, &cycleErr))
	require.Equal(t, MaxNodeVisits, cycleErr.Limit)
}

func testDelaySuspendResume(t *testing.T) {
	flow := buildFlow(
		[]model.Node{
			node("start", model.NODE_TYPE_START, &model.StartData{}),
			node("before", model.NODE_TYPE_MESSAGE, &model.MessageData{Content: "before"}),
			node("wait", model.NODE_TYPE_DELAY, &model.DelayData{Delay: 5, DelayUnit: "minutes"}),
			node("after", model.NODE_TYPE_MESSAGE, &model.MessageData{Content: "after"}),
		},
		[]model.Edge{edge("start", "before"), edge("before", "wait"), edge("wait", "after")},
	)
	executor := NewExecutor(nil, nil)

	result, err := executor.Execute(context.Background(), Request{
		Flow:           flow,
		ConversationId: "42",
		Trigger:        model.TriggerEvent{Type: model.TRIGGER_MESSAGE, Text: "/start"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, []model.Action{model.SendText{Text: "before"}}, result.Actions)
	require.NotNil(t, result.Suspension)
	require.Equal(t, "wait", result.Suspension.NodeId)
	require.WithinDuration(t, time.Now().Add(5*time.Minute), result.Suspension.ResumeAt, 5*time.Second)
	require.Equal(t, "wait", result.Session.CurrentNodeId)
	require.NotNil(t, result.Session.ResumeAt)

	resumed, err := executor.Execute(context.Background(), Request{
		Flow:           flow,
		ConversationId: "42",
		Session:        result.Session,
		Trigger:        model.TriggerEvent{Type: model.TRIGGER_RESUME, NodeId: "wait"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, []model.Action{model.SendText{Text: "after"}}, resumed.Actions)
	require.True(t, resumed.ClearSession)
}

func testHttpRequestVariables(t *testing.T) {
	http := &fakeHttpClient{status: 200, body: `{"city":"Lisboa"}`}
	flow := buildFlow(
		[]model.Node{
			node("start", model.NODE_TYPE_START, &model.StartData{}),
			node("ask", model.NODE_TYPE_USER_INPUT, &model.UserInputData{PromptText: "Qual o id?"}),
			node("call", model.NODE_TYPE_HTTP_REQUEST, &model.HttpRequestData{
				HttpUrl:    "https://api.example.com/users/{{user_response}}",
				HttpMethod: "GET",
			}),
			node("msg", model.NODE_TYPE_MESSAGE, &model.MessageData{Content: "Status {{http_status}}"}),
		},
		[]model.Edge{edge("start", "ask"), edge("ask", "call"), edge("call", "msg")},
	)
	executor := NewExecutor(http, nil)
	// the reply to the pending input carries the id the url interpolates
	session := model.NewSession("flow-1", "42")
	session.CurrentNodeId = "ask"

	result, err := executor.Execute(context.Background(), Request{
		Flow:           flow,
		ConversationId: "42",
		Session:        session,
		Trigger:        model.TriggerEvent{Type: model.TRIGGER_MESSAGE, Text: "7"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "7", result.Session.Variables["user_response"])
	require.Equal(t, "https://api.example.com/users/7", http.gotUrl)
	require.Equal(t, []model.Action{model.SendText{Text: "Status 200"}}, result.Actions)
	require.Equal(t, `{"city":"Lisboa"}`, result.Session.Variables["http_response"])
	require.Equal(t, map[string]any{"city": "Lisboa"}, result.Session.Variables["http_json"])
}

func testCompletionSavesAnswer(t *testing.T) {
	provider := &fakeProvider{answer: "uma resposta"}
	flow := buildFlow(
		[]model.Node{
			node("start", model.NODE_TYPE_START, &model.StartData{}),
			node("ask", model.NODE_TYPE_USER_INPUT, &model.UserInputData{PromptText: "Diga algo"}),
			node("ai", model.NODE_TYPE_OPENAI, &model.CompletionData{AiPrompt: "responda {{user_response}}", AiSaveVariable: "reply"}),
			node("msg", model.NODE_TYPE_MESSAGE, &model.MessageData{Content: "{{reply}}"}),
		},
		[]model.Edge{edge("start", "ask"), edge("ask", "ai"), edge("ai", "msg")},
	)
	executor := NewExecutor(nil, map[model.NodeType]CompletionProvider{model.NODE_TYPE_OPENAI: provider})
	session := model.NewSession("flow-1", "42")
	session.CurrentNodeId = "ask"

	result, err := executor.Execute(context.Background(), Request{
		Flow:           flow,
		ConversationId: "42",
		Session:        session,
		Trigger:        model.TriggerEvent{Type: model.TRIGGER_MESSAGE, Text: "oi"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "responda oi", provider.gotPrompt)
	require.Equal(t, "uma resposta", result.Session.Variables["reply"])
	require.Equal(t, []model.Action{model.SendText{Text: "uma resposta"}}, result.Actions)
}

func testCompletionFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("quota exceeded")}
	flow := buildFlow(
		[]model.Node{
			node("start", model.NODE_TYPE_START, &model.StartData{}),
			node("ai", model.NODE_TYPE_OPENAI, &model.CompletionData{AiPrompt: "oi"}),
			node("msg", model.NODE_TYPE_MESSAGE, &model.MessageData{Content: "{{ai_error}}"}),
		},
		[]model.Edge{edge("start", "ai"), edge("ai", "msg")},
	)
	executor := NewExecutor(nil, map[model.NodeType]CompletionProvider{model.NODE_TYPE_OPENAI: provider})

	result, err := executor.Execute(context.Background(), Request{
		Flow:           flow,
		ConversationId: "42",
		Trigger:        model.TriggerEvent{Type: model.TRIGGER_MESSAGE, Text: "/start"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, []model.Action{model.SendText{Text: "quota exceeded"}}, result.Actions)
}

func testWebhookTrigger(t *testing.T) {
	flow := buildFlow(
		[]model.Node{
			node("start", model.NODE_TYPE_START, &model.StartData{}),
			node("hook", model.NODE_TYPE_WEBHOOK, &model.WebhookData{WebhookSaveVariable: "order"}),
			node("msg", model.NODE_TYPE_MESSAGE, &model.MessageData{Content: "Pedido {{order_id}}"}),
		},
		[]model.Edge{edge("hook", "msg")},
	)
	executor := NewExecutor(nil, nil)
	result, err := executor.Execute(context.Background(), Request{
		Flow:           flow,
		ConversationId: "0",
		Trigger: model.TriggerEvent{
			Type:      model.TRIGGER_WEBHOOK,
			NodeId:    "hook",
			Variables: map[string]any{"order_id": "123"},
		},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, []model.Action{model.SendText{Text: "Pedido 123"}}, result.Actions)
}

func testButtonReplyWithoutButtons(t *testing.T) {
	flow := buildFlow(
		[]model.Node{
			node("start", model.NODE_TYPE_START, &model.StartData{}),
			node("empty", model.NODE_TYPE_BUTTON_REPLY, &model.ButtonReplyData{Content: "?"}),
		},
		[]model.Edge{edge("start", "empty")},
	)
	executor := NewExecutor(nil, nil)
	result, err := executor.Execute(context.Background(), Request{
		Flow:           flow,
		ConversationId: "42",
		Trigger:        model.TriggerEvent{Type: model.TRIGGER_MESSAGE, Text: "/start"},
	}, nil)
	require.NoError(t, err)
	require.Empty(t, result.Actions)
	require.True(t, result.ClearSession)
}

func testSiblingBranchPending(t *testing.T) {
	// two branches off start; the second ends in a userInput that must
	// survive as the pending node even though the first branch finished
	flow := buildFlow(
		[]model.Node{
			node("start", model.NODE_TYPE_START, &model.StartData{}),
			node("info", model.NODE_TYPE_MESSAGE, &model.MessageData{Content: "info"}),
			node("ask", model.NODE_TYPE_USER_INPUT, &model.UserInputData{PromptText: "e aí?"}),
		},
		[]model.Edge{edge("start", "info"), edge("start", "ask")},
	)
	executor := NewExecutor(nil, nil)
	result, err := executor.Execute(context.Background(), Request{
		Flow:           flow,
		ConversationId: "42",
		Trigger:        model.TriggerEvent{Type: model.TRIGGER_MESSAGE, Text: "/start"},
	}, nil)
	require.NoError(t, err)
	require.Len(t, result.Actions, 2)
	require.Equal(t, "ask", result.Session.CurrentNodeId)
	require.False(t, result.ClearSession)
}
