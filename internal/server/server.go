// Package server exposes the inference path over HTTP: prediction,
// health and readiness probes, model metadata endpoints and the
// prediction stream. Handlers translate the core error taxonomy onto
// status codes and never crash the process on a bad request.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"signalml/internal/ml"
	"signalml/internal/storage"

	"github.com/rs/zerolog/log"
)

// Server is the signal service HTTP API. The registry, predictor and
// bundle path are fixed at construction; store, hub and metrics are
// optional side channels and may be nil.
type Server struct {
	registry   *ml.Registry
	predictor  *ml.Predictor
	bundlePath string
	metrics    ml.MetricsInterface
	store      *storage.Store
	hub        *Hub
	server     *http.Server
}

// New wires the API onto a ServeMux and prepares the HTTP server with
// read/write timeouts.
func New(port int, bundlePath string, registry *ml.Registry, predictor *ml.Predictor, store *storage.Store, hub *Hub, m ml.MetricsInterface) *Server {
	s := &Server{
		registry:   registry,
		predictor:  predictor,
		bundlePath: bundlePath,
		metrics:    m,
		store:      store,
		hub:        hub,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/predict", s.handlePredict)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/model/metrics", s.handleModelMetrics)
	mux.HandleFunc("/model/info", s.handleModelInfo)
	if hub != nil {
		mux.HandleFunc("/ws", hub.Handle)
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("Starting signal server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server and the stream hub.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// PredictRequest is the inference input consumed from callers.
type PredictRequest struct {
	Features     []float64 `json:"features"`
	FeatureNames []string  `json:"featureNames,omitempty"`
}

// ShapPayload carries the raw per-feature attribution for the selected
// class alongside the explainer's base value.
type ShapPayload struct {
	FeatureNames []string  `json:"featureNames"`
	Values       []float64 `json:"values"`
	BaseValue    float64   `json:"baseValue"`
}

// PredictResponse is the inference output. Probabilities always carries
// the BUY/SELL/HOLD keys, null for untrained labels; Shap is null when
// no explainer is available.
type PredictResponse struct {
	Signal        string              `json:"signal"`
	Probability   float64             `json:"probability"`
	Confidence    int                 `json:"confidence"`
	AccuracyRange string              `json:"accuracyRange"`
	Explanations  []string            `json:"explanations"`
	Probabilities map[string]*float64 `json:"probabilities"`
	Shap          *ShapPayload        `json:"shap"`
	ModelVersion  string              `json:"modelVersion"`
	Symbol        string              `json:"symbol"`
	Timeframe     string              `json:"timeframe"`
	Horizon       string              `json:"horizon"`
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	bundle, err := s.registry.GetBundle(s.bundlePath)
	if err != nil {
		log.Error().Err(err).Str("path", s.bundlePath).Msg("Bundle load failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if bundle == nil {
		writeError(w, http.StatusServiceUnavailable, ml.ErrNotReady.Error())
		return
	}
	if len(req.Features) == 0 {
		writeError(w, http.StatusBadRequest, ml.ErrNoFeatures.Error())
		return
	}

	vector, err := ml.Align(req.Features, req.FeatureNames, bundle.FeatureNames)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pred, err := s.predictor.Predict(bundle, vector)
	if err != nil {
		s.writePredictError(w, err)
		return
	}

	resp := PredictResponse{
		Signal:        pred.Signal,
		Probability:   pred.Probability,
		Confidence:    pred.Confidence,
		AccuracyRange: bundle.Metadata.AccuracyRange,
		Explanations:  []string{},
		Probabilities: pred.Probabilities,
		ModelVersion:  bundle.Metadata.ModelVersion,
		Symbol:        bundle.Metadata.Symbol,
		Timeframe:     bundle.Metadata.Timeframe,
		Horizon:       bundle.Metadata.Horizon,
	}

	// Explanation is soft: absence degrades the response, never fails it
	if explainer := s.registry.Explainer(s.bundlePath); explainer != nil {
		if contribs, base, err := explainer.Contributions(pred.Scaled, pred.ClassIndex); err == nil {
			for _, e := range ml.RankContributions(bundle.FeatureNames, contribs) {
				resp.Explanations = append(resp.Explanations, e.Text)
			}
			resp.Shap = &ShapPayload{FeatureNames: bundle.FeatureNames, Values: contribs, BaseValue: base}
		} else {
			log.Warn().Err(err).Msg("Contribution attribution failed")
		}
	} else if s.metrics != nil {
		s.metrics.ExplainerMissesInc()
	}

	anomalyScore := s.observeAnomaly(pred)
	s.audit(bundle, pred, anomalyScore)
	if s.hub != nil {
		s.hub.Publish(StreamEvent{
			Timestamp:    time.Now(),
			Signal:       pred.Signal,
			Probability:  pred.Probability,
			Confidence:   pred.Confidence,
			ModelVersion: bundle.Metadata.ModelVersion,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// writePredictError maps the core error taxonomy onto status codes.
// Unexpected errors become a generic 500 with the original message so a
// single bad request never crash-loops the service.
func (s *Server) writePredictError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ml.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case ml.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("Prediction failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) observeAnomaly(pred *ml.Prediction) float64 {
	monitor := s.registry.Monitor(s.bundlePath)
	if monitor == nil {
		return 0
	}
	score := monitor.Score(pred.Scaled)
	if monitor.Anomalous(score) {
		if s.metrics != nil {
			s.metrics.AnomalousInputsInc()
		}
		log.Warn().Float64("score", score).Str("signal", pred.Signal).Msg("Anomalous inference input")
	}
	return score
}

func (s *Server) audit(bundle *ml.Bundle, pred *ml.Prediction, anomalyScore float64) {
	err := s.store.StorePrediction(storage.PredictionRecord{
		Timestamp:    time.Now(),
		ModelVersion: bundle.Metadata.ModelVersion,
		Symbol:       bundle.Metadata.Symbol,
		Signal:       pred.Signal,
		Probability:  pred.Probability,
		Confidence:   pred.Confidence,
		AnomalyScore: anomalyScore,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to audit prediction")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	bundle, _ := s.registry.GetBundle(s.bundlePath)

	status := "unavailable"
	version := ""
	if bundle != nil {
		status = "ready"
		version = bundle.Metadata.ModelVersion
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       status,
		"modelsLoaded": s.registry.Loaded(),
		"modelVersion": version,
		"timestamp":    time.Now().UTC(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	bundle, _ := s.registry.GetBundle(s.bundlePath)
	if bundle == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (s *Server) handleModelMetrics(w http.ResponseWriter, r *http.Request) {
	bundle, _ := s.registry.GetBundle(s.bundlePath)
	if bundle == nil {
		writeError(w, http.StatusServiceUnavailable, ml.ErrNotReady.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"modelVersion":  bundle.Metadata.ModelVersion,
		"symbol":        bundle.Metadata.Symbol,
		"timeframe":     bundle.Metadata.Timeframe,
		"horizon":       bundle.Metadata.Horizon,
		"accuracyRange": bundle.Metadata.AccuracyRange,
		"metrics":       bundle.Metadata.Metrics,
		"trainedAt":     bundle.Metadata.TrainedAt,
		"lastUpdated":   time.Now().UTC(),
	})
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	bundle, _ := s.registry.GetBundle(s.bundlePath)
	if bundle == nil {
		writeError(w, http.StatusServiceUnavailable, ml.ErrNotReady.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"modelVersion":  bundle.Metadata.ModelVersion,
		"symbol":        bundle.Metadata.Symbol,
		"timeframe":     bundle.Metadata.Timeframe,
		"horizon":       bundle.Metadata.Horizon,
		"accuracyRange": bundle.Metadata.AccuracyRange,
		"featureCount":  len(bundle.FeatureNames),
		"classes":       bundle.Classes,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
