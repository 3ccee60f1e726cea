package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zapflow/zapflow/analytics"
	"github.com/zapflow/zapflow/config"
	"github.com/zapflow/zapflow/engine"
	"github.com/zapflow/zapflow/model"
	"github.com/zapflow/zapflow/persistence/inmem"
	"github.com/zapflow/zapflow/service"
)

type recordingAdapter struct {
	mu       sync.Mutex
	platform model.Platform
	sends    []model.Action
}

func (r *recordingAdapter) Platform() model.Platform {
	return r.platform
}

func (r *recordingAdapter) Send(_ context.Context, action model.Action, destination string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends = append(r.sends, action)
	return "1", nil
}

func (r *recordingAdapter) recorded() []model.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Action, len(r.sends))
	copy(out, r.sends)
	return out
}

type restFixture struct {
	server  *httptest.Server
	store   *inmem.Store
	adapter *recordingAdapter
}

func newRestFixture(t *testing.T, platform model.Platform) *restFixture {
	t.Helper()
	store := inmem.NewStore()
	bot := &model.Bot{Id: "bot-1", Name: "test bot", Platform: platform, TelegramToken: "token", WaPhoneNumberId: "pn", WaAccessToken: "at", DiscordToken: "dt"}
	require.NoError(t, store.SaveBot(bot))

	flow := &model.FlowDefinition{
		Id:    "flow-1",
		BotId: "bot-1",
		Nodes: []model.Node{
			{Id: "start", Type: model.NODE_TYPE_START, Data: &model.StartData{}},
			{Id: "msg", Type: model.NODE_TYPE_MESSAGE, Data: &model.MessageData{Content: "bem-vindo"}},
			{Id: "hook", Type: model.NODE_TYPE_WEBHOOK, Data: &model.WebhookData{WebhookSaveVariable: "order"}},
			{Id: "hooked", Type: model.NODE_TYPE_MESSAGE, Data: &model.MessageData{Content: "Pedido {{order.id}}"}},
		},
		Edges: []model.Edge{
			{Id: "e1", Source: "start", Target: "msg"},
			{Id: "e2", Source: "hook", Target: "hooked"},
		},
	}
	require.NoError(t, store.SaveFlow(flow))
	require.NoError(t, store.ActivateFlow(bot.Id, flow.Id))

	var wg sync.WaitGroup
	messageLog, err := analytics.NewMessageLog(filepath.Join(t.TempDir(), "messages.log"), 16, &wg)
	require.NoError(t, err)
	t.Cleanup(messageLog.Stop)

	executor := engine.NewExecutor(nil, nil)
	svc := service.NewExecutionService(config.Config{}, store, store, store, executor, messageLog)
	adapter := &recordingAdapter{platform: platform}
	svc.RegisterAdapter(bot.Id, adapter)

	server, err := NewServer(0, store, svc)
	require.NoError(t, err)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	return &restFixture{server: ts, store: store, adapter: adapter}
}

func postJSON(t *testing.T, url string, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func TestTelegramWebhook(t *testing.T) {
	f := newRestFixture(t, model.PLATFORM_TELEGRAM)

	update := `{"message": {"text": "/start", "chat": {"id": 42}}}`
	resp, body := postJSON(t, f.server.URL+"/webhook/telegram?botId=bot-1", update)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["ok"])

	sends := f.adapter.recorded()
	require.Len(t, sends, 1)
	require.Equal(t, model.SendText{Text: "bem-vindo"}, sends[0])
}

func TestTelegramWebhookRequiresBotId(t *testing.T) {
	f := newRestFixture(t, model.PLATFORM_TELEGRAM)

	resp, _ := postJSON(t, f.server.URL+"/webhook/telegram", `{}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTelegramWebhookEmptyUpdate(t *testing.T) {
	f := newRestFixture(t, model.PLATFORM_TELEGRAM)

	// an update without message or callback is acknowledged and ignored
	resp, body := postJSON(t, f.server.URL+"/webhook/telegram?botId=bot-1", `{"edited_message": {}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["ok"])
	require.Empty(t, f.adapter.recorded())
}

func TestWhatsAppWebhook(t *testing.T) {
	f := newRestFixture(t, model.PLATFORM_WHATSAPP)

	update := `{
		"entry": [{"changes": [{"value": {"messages": [
			{"from": "5511999999999", "type": "text", "text": {"body": "oi"}}
		]}}]}]
	}`
	resp, body := postJSON(t, f.server.URL+"/webhook/whatsapp?botId=bot-1", update)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["ok"])

	// "oi" counts as a start trigger on whatsapp
	sends := f.adapter.recorded()
	require.Len(t, sends, 1)
	require.Equal(t, model.SendText{Text: "bem-vindo"}, sends[0])
}

func TestWhatsAppVerifyChallenge(t *testing.T) {
	f := newRestFixture(t, model.PLATFORM_WHATSAPP)

	resp, err := http.Get(f.server.URL + "/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=tok&hub.challenge=12345")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "12345", string(raw))
}

func TestWhatsAppVerifyTokenMismatch(t *testing.T) {
	f := newRestFixture(t, model.PLATFORM_WHATSAPP)

	bot, err := f.store.GetBot("bot-1")
	require.NoError(t, err)
	bot.WaVerifyToken = "secret"
	require.NoError(t, f.store.SaveBot(bot))

	resp, err := http.Get(f.server.URL + "/webhook/whatsapp?botId=bot-1&hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = http.Get(f.server.URL + "/webhook/whatsapp?botId=bot-1&hub.mode=subscribe&hub.verify_token=secret&hub.challenge=12345")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDiscordPing(t *testing.T) {
	f := newRestFixture(t, model.PLATFORM_DISCORD)

	resp, body := postJSON(t, f.server.URL+"/webhook/discord?botId=bot-1", `{"type": 1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(1), body["type"])
}

func TestWebhookNodeEndpoint(t *testing.T) {
	f := newRestFixture(t, model.PLATFORM_TELEGRAM)

	resp, body := postJSON(t, f.server.URL+"/webhook-node?flowId=flow-1&nodeId=hook", `{"id": "A-1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["ok"])
	require.Contains(t, body["variables"], "order.id")

	sends := f.adapter.recorded()
	require.Len(t, sends, 1)
	require.Equal(t, model.SendText{Text: "Pedido A-1"}, sends[0])
}

func TestWebhookNodeEndpointRequiresParams(t *testing.T) {
	f := newRestFixture(t, model.PLATFORM_TELEGRAM)

	resp, _ := postJSON(t, f.server.URL+"/webhook-node?flowId=flow-1", `{}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = postJSON(t, f.server.URL+"/webhook-node?nodeId=hook", `{}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFlowLifecycle(t *testing.T) {
	f := newRestFixture(t, model.PLATFORM_TELEGRAM)

	flowJSON := `{
		"botId": "bot-1",
		"nodes": [
			{"id": "start", "type": "start", "data": {"content": "/start"}},
			{"id": "msg", "type": "message", "data": {"content": "novo fluxo"}}
		],
		"edges": [{"id": "e1", "source": "start", "target": "msg"}]
	}`
	resp, body := postJSON(t, f.server.URL+"/flows", flowJSON)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	flowId, ok := body["flowId"].(string)
	require.True(t, ok)
	require.NotEmpty(t, flowId)

	getResp, err := http.Get(f.server.URL + "/flows/" + flowId)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	var fetched model.FlowDefinition
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&fetched))
	require.Equal(t, flowId, fetched.Id)
	require.False(t, fetched.Active)

	resp, body = postJSON(t, f.server.URL+"/flows/"+flowId+"/activate", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["active"])

	active, err := f.store.GetActiveFlow("bot-1")
	require.NoError(t, err)
	require.Equal(t, flowId, active.Id)
}

func TestSaveBotValidatesPlatform(t *testing.T) {
	f := newRestFixture(t, model.PLATFORM_TELEGRAM)

	resp, _ := postJSON(t, f.server.URL+"/bots", `{"name": "x", "platform": "icq"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := postJSON(t, f.server.URL+"/bots", `{"name": "x", "platform": "telegram", "telegramToken": "t"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, body["botId"])
}
