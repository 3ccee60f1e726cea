package rest

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/zapflow/zapflow/logger"
	"github.com/zapflow/zapflow/model"
	"go.uber.org/zap"
)

// Ingress always answers 200 once the request shape is recognized, even
// when processing fails internally. Chat platforms retry deliveries on
// non-200 responses, and a retry of a failed turn only duplicates work.

func (s *Server) HandlePlatformWebhook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	platform := model.Platform(vars["platform"])
	botId := r.URL.Query().Get("botId")
	if botId == "" {
		respondWithError(w, http.StatusBadRequest, "botId query parameter is required")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "could not read body")
		return
	}
	defer r.Body.Close()

	switch platform {
	case model.PLATFORM_TELEGRAM:
		s.handleTelegramUpdate(w, r, botId, body)
	case model.PLATFORM_WHATSAPP:
		s.handleWhatsAppUpdate(w, r, botId, body)
	case model.PLATFORM_DISCORD:
		s.handleDiscordInteraction(w, r, botId, body)
	default:
		respondWithError(w, http.StatusBadRequest, "unknown platform")
	}
}

type telegramUpdate struct {
	Message *struct {
		Text string `json:"text"`
		Chat struct {
			Id int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
	CallbackQuery *struct {
		Id      string `json:"id"`
		Data    string `json:"data"`
		Message struct {
			Chat struct {
				Id int64 `json:"id"`
			} `json:"chat"`
		} `json:"message"`
	} `json:"callback_query"`
}

func (s *Server) handleTelegramUpdate(w http.ResponseWriter, r *http.Request, botId string, body []byte) {
	var update telegramUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed update")
		return
	}

	switch {
	case update.CallbackQuery != nil:
		conversationId := strconv.FormatInt(update.CallbackQuery.Message.Chat.Id, 10)
		s.executorService.AnswerTelegramCallback(r.Context(), botId, update.CallbackQuery.Id)
		s.executorService.ProcessTrigger(r.Context(), botId, conversationId, model.TriggerEvent{
			Type:     model.TRIGGER_BUTTON,
			ButtonId: update.CallbackQuery.Data,
		})
	case update.Message != nil && update.Message.Text != "":
		conversationId := strconv.FormatInt(update.Message.Chat.Id, 10)
		s.executorService.ProcessTrigger(r.Context(), botId, conversationId, model.TriggerEvent{
			Type: model.TRIGGER_MESSAGE,
			Text: update.Message.Text,
		})
	default:
		logger.Debug("telegram update carries nothing to process", zap.String("botId", botId))
	}
	respondOK(w, map[string]any{"ok": true})
}

type whatsAppUpdate struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From string `json:"from"`
					Type string `json:"type"`
					Text *struct {
						Body string `json:"body"`
					} `json:"text"`
					Interactive *struct {
						ButtonReply *struct {
							Id    string `json:"id"`
							Title string `json:"title"`
						} `json:"button_reply"`
					} `json:"interactive"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

func (s *Server) handleWhatsAppUpdate(w http.ResponseWriter, r *http.Request, botId string, body []byte) {
	var update whatsAppUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed update")
		return
	}

	for _, entry := range update.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				switch {
				case msg.Interactive != nil && msg.Interactive.ButtonReply != nil:
					s.executorService.ProcessTrigger(r.Context(), botId, msg.From, model.TriggerEvent{
						Type:       model.TRIGGER_BUTTON,
						ButtonId:   msg.Interactive.ButtonReply.Id,
						ButtonText: msg.Interactive.ButtonReply.Title,
					})
				case msg.Text != nil:
					s.executorService.ProcessTrigger(r.Context(), botId, msg.From, model.TriggerEvent{
						Type: model.TRIGGER_MESSAGE,
						Text: msg.Text.Body,
					})
				}
			}
		}
	}
	respondOK(w, map[string]any{"ok": true})
}

// HandleWhatsAppVerify answers Meta's webhook subscription handshake. When
// the subscription URL carries a botId the verify token is checked against
// the bot's configured one.
func (s *Server) HandleWhatsAppVerify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("hub.mode") != "subscribe" {
		respondWithError(w, http.StatusBadRequest, "unexpected hub.mode")
		return
	}
	if botId := query.Get("botId"); botId != "" {
		bot, err := s.flows.GetBot(botId)
		if err != nil || (bot.WaVerifyToken != "" && bot.WaVerifyToken != query.Get("hub.verify_token")) {
			respondWithError(w, http.StatusForbidden, "verify token mismatch")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(query.Get("hub.challenge")))
}

const (
	discordInteractionPing      = 1
	discordInteractionCommand   = 2
	discordInteractionComponent = 3
)

type discordInteraction struct {
	Type      int    `json:"type"`
	ChannelId string `json:"channel_id"`
	Data      struct {
		Name     string `json:"name"`
		CustomId string `json:"custom_id"`
	} `json:"data"`
	Message struct {
		ChannelId string `json:"channel_id"`
	} `json:"message"`
}

func (s *Server) handleDiscordInteraction(w http.ResponseWriter, r *http.Request, botId string, body []byte) {
	var interaction discordInteraction
	if err := json.Unmarshal(body, &interaction); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed interaction")
		return
	}

	switch interaction.Type {
	case discordInteractionPing:
		respondWithJSON(w, http.StatusOK, map[string]int{"type": discordInteractionPing})
		return
	case discordInteractionCommand:
		s.executorService.ProcessTrigger(r.Context(), botId, interaction.ChannelId, model.TriggerEvent{
			Type: model.TRIGGER_MESSAGE,
			Text: "/" + interaction.Data.Name,
		})
		// type 5: deferred reply, the flow's own messages follow over the API
		respondWithJSON(w, http.StatusOK, map[string]int{"type": 5})
		return
	case discordInteractionComponent:
		conversationId := interaction.Message.ChannelId
		if conversationId == "" {
			conversationId = interaction.ChannelId
		}
		s.executorService.ProcessTrigger(r.Context(), botId, conversationId, model.TriggerEvent{
			Type:     model.TRIGGER_BUTTON,
			ButtonId: interaction.Data.CustomId,
		})
		// type 6: deferred update, acknowledges the click without a reply
		respondWithJSON(w, http.StatusOK, map[string]int{"type": 6})
		return
	}
	respondOK(w, map[string]any{"ok": true})
}

// HandleWebhookNode enters a flow at one of its webhook nodes with an
// arbitrary JSON payload flattened into session variables.
func (s *Server) HandleWebhookNode(w http.ResponseWriter, r *http.Request) {
	flowId := r.URL.Query().Get("flowId")
	nodeId := r.URL.Query().Get("nodeId")
	if flowId == "" || nodeId == "" {
		respondWithError(w, http.StatusBadRequest, "flowId and nodeId query parameters are required")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "could not read body")
		return
	}
	defer r.Body.Close()

	keys, err := s.executorService.TriggerWebhookNode(r.Context(), flowId, nodeId, body)
	if err != nil {
		logger.Error("error triggering webhook node", zap.String("flowId", flowId), zap.String("nodeId", nodeId), zap.Error(err))
		respondWithError(w, http.StatusBadRequest, "error triggering webhook node")
		return
	}
	respondOK(w, map[string]any{"ok": true, "variables": keys})
}
