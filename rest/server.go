package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/zapflow/zapflow/logger"
	"github.com/zapflow/zapflow/persistence"
	"github.com/zapflow/zapflow/service"
	"go.uber.org/zap"
)

type Server struct {
	http.Server
	Port            int
	flows           persistence.FlowRepository
	executorService *service.ExecutionService
}

func NewServer(httpPort int, flows persistence.FlowRepository, executorService *service.ExecutionService) (*Server, error) {

	s := &Server{
		Server: http.Server{
			Addr:        fmt.Sprintf(":%d", httpPort),
			IdleTimeout: 2 * time.Second,
		},
		flows:           flows,
		executorService: executorService,
		Port:            httpPort,
	}

	router := mux.NewRouter()
	router.HandleFunc("/webhook/{platform}", s.HandlePlatformWebhook).Methods(http.MethodPost)
	router.HandleFunc("/webhook/whatsapp", s.HandleWhatsAppVerify).Methods(http.MethodGet)
	router.HandleFunc("/webhook-node", s.HandleWebhookNode).Methods(http.MethodPost)

	router.HandleFunc("/flows", s.HandleSaveFlow).Methods(http.MethodPost)
	router.HandleFunc("/flows/{id}", s.HandleGetFlow).Methods(http.MethodGet)
	router.HandleFunc("/flows/{id}/activate", s.HandleActivateFlow).Methods(http.MethodPost)

	router.HandleFunc("/bots", s.HandleSaveBot).Methods(http.MethodPost)
	router.HandleFunc("/bots/{id}", s.HandleGetBot).Methods(http.MethodGet)
	router.HandleFunc("/bots/{id}/telegram-webhook", s.HandleRegisterTelegramWebhook).Methods(http.MethodPost)

	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.Shutdown(ctx)
	if err != nil {
		logger.Error("error shutting down http server")
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info(r.RequestURI)
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondOK(w http.ResponseWriter, message map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(200)
	res, _ := json.Marshal(message)
	w.Write(res)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
