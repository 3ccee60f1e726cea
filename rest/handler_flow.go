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

func (s *Server) HandleSaveFlow(w http.ResponseWriter, r *http.Request) {
	var flow model.FlowDefinition
	if err := json.NewDecoder(r.Body).Decode(&flow); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed flow definition")
		return
	}
	defer r.Body.Close()
	if flow.BotId == "" {
		respondWithError(w, http.StatusBadRequest, "botId is required")
		return
	}
	if flow.Id == "" {
		flow.Id = uuid.NewString()
	}
	// a saved definition never flips the active pointer on its own
	flow.Active = false
	if err := s.flows.SaveFlow(&flow); err != nil {
		logger.Error("error saving flow", zap.String("flowId", flow.Id), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error saving flow")
		return
	}
	respondOK(w, map[string]any{"flowId": flow.Id})
}

func (s *Server) HandleGetFlow(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	flowId := vars["id"]
	flow, err := s.flows.GetFlow(flowId)
	if err != nil {
		logger.Error("error getting flow", zap.String("flowId", flowId), zap.Error(err))
		respondWithError(w, http.StatusNotFound, "flow not found")
		return
	}
	respondWithJSON(w, http.StatusOK, flow)
}

func (s *Server) HandleActivateFlow(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	flowId := vars["id"]
	flow, err := s.flows.GetFlow(flowId)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "flow not found")
		return
	}
	if flow.Active {
		// re-activating the active flow would double its schedule chain
		respondOK(w, map[string]any{"flowId": flow.Id, "active": true})
		return
	}
	if err := s.flows.ActivateFlow(flow.BotId, flow.Id); err != nil {
		logger.Error("error activating flow", zap.String("flowId", flowId), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error activating flow")
		return
	}
	s.executorService.InvalidateFlow(flow.BotId)
	if err := s.executorService.SeedSchedules(flow.Id); err != nil {
		logger.Error("error seeding schedules", zap.String("flowId", flowId), zap.Error(err))
	}
	respondOK(w, map[string]any{"flowId": flow.Id, "active": true})
}
