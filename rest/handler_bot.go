package rest

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/zapflow/zapflow/logger"
	"github.com/zapflow/zapflow/model"
	"go.uber.org/zap"
)

func (s *Server) HandleSaveBot(w http.ResponseWriter, r *http.Request) {
	var bot model.Bot
	if err := json.NewDecoder(r.Body).Decode(&bot); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed bot")
		return
	}
	defer r.Body.Close()
	switch bot.Platform {
	case model.PLATFORM_TELEGRAM, model.PLATFORM_WHATSAPP, model.PLATFORM_DISCORD:
	default:
		respondWithError(w, http.StatusBadRequest, "unknown platform")
		return
	}
	if bot.Id == "" {
		bot.Id = uuid.NewString()
	}
	if err := s.flows.SaveBot(&bot); err != nil {
		logger.Error("error saving bot", zap.String("botId", bot.Id), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error saving bot")
		return
	}
	respondOK(w, map[string]any{"botId": bot.Id})
}

func (s *Server) HandleGetBot(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	botId := vars["id"]
	bot, err := s.flows.GetBot(botId)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "bot not found")
		return
	}
	// tokens stay server side
	respondWithJSON(w, http.StatusOK, map[string]any{
		"id":       bot.Id,
		"name":     bot.Name,
		"platform": bot.Platform,
	})
}

func (s *Server) HandleRegisterTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	botId := vars["id"]
	var req struct {
		Url string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Url == "" {
		respondWithError(w, http.StatusBadRequest, "url is required")
		return
	}
	defer r.Body.Close()
	if err := s.executorService.RegisterTelegramWebhook(r.Context(), botId, req.Url); err != nil {
		logger.Error("error registering telegram webhook", zap.String("botId", botId), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error registering telegram webhook")
		return
	}
	respondOK(w, map[string]any{"ok": true})
}
