package serving

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"daily-feature-store/internal/observability"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every 4xx/5xx reply.
type ErrorResponse struct {
	Error            string             `json:"error"`
	Type             string             `json:"type,omitempty"`
	RequiredFeatures []string           `json:"required_features,omitempty"`
	Example          map[string]float64 `json:"example,omitempty"`
}

// PredictResponse is the body of a successful /predict reply.
type PredictResponse struct {
	Prediction      int     `json:"prediction"`
	PredictionLabel string  `json:"prediction_label"`
	ProbabilityUp   float64 `json:"probability_up"`
	ProbabilityDown float64 `json:"probability_down"`
	Confidence      string  `json:"confidence"`
	Recommendation  string  `json:"recommendation"`
	Timestamp       string  `json:"timestamp"`
	Model           string  `json:"model"`
	Ticker          string  `json:"ticker"`
}

// Server serves predictions from a single loaded model.
type Server struct {
	model   *Model
	logger  *zap.Logger
	clock   func() time.Time
	timeout time.Duration
}

// NewServer creates a new Server.
func NewServer(model *Model, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		model:   model,
		logger:  logger,
		clock:   func() time.Time { return time.Now().UTC() },
		timeout: 30 * time.Second,
	}
}

// WithClock sets a custom clock function for response timestamps.
func (s *Server) WithClock(clock func() time.Time) *Server {
	s.clock = clock
	return s
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(Logger(s.logger))
	r.Use(Recoverer(s.logger))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", observability.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))
		r.Get("/", s.handleHome)
		r.Get("/model_info", s.handleModelInfo)
		r.Post("/predict", s.handlePredict)
	})
	return r
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	a := s.model.Artifact()
	render.JSON(w, r, map[string]any{
		"status":       "online",
		"model":        a.ModelName,
		"ticker":       a.Ticker,
		"features":     a.Features,
		"test_metrics": a.TestMetrics,
		"trained_at":   a.TrainedAt,
		"endpoints": map[string]string{
			"predict":    "/predict (POST)",
			"health":     "/health (GET)",
			"model_info": "/model_info (GET)",
			"metrics":    "/metrics (GET)",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"status":    "healthy",
		"timestamp": s.clock().Format(time.RFC3339),
	})
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.model.Artifact())
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	input, err := decodeInput(r)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, "bad_json", ErrorResponse{
			Error: fmt.Sprintf("invalid JSON body: %v", err),
			Type:  "BadRequest",
		})
		return
	}

	if len(input) == 0 {
		example := make(map[string]float64, len(s.model.artifact.Features))
		for _, f := range s.model.artifact.Features {
			example[f] = 0
		}
		s.fail(w, r, http.StatusBadRequest, "empty_body", ErrorResponse{
			Error:   "no input provided",
			Example: example,
		})
		return
	}

	if missing := s.model.Missing(input); len(missing) > 0 {
		s.fail(w, r, http.StatusBadRequest, "missing_features", ErrorResponse{
			Error:            fmt.Sprintf("missing features: %v", missing),
			RequiredFeatures: s.model.Features(),
		})
		return
	}

	p, err := s.model.Predict(input)
	if err != nil {
		status, reason, typ := http.StatusInternalServerError, "internal", "InternalError"
		if errors.Is(err, ErrInvalidFeature) {
			status, reason, typ = http.StatusBadRequest, "invalid_feature", "InvalidFeature"
		}
		s.fail(w, r, status, reason, ErrorResponse{Error: err.Error(), Type: typ})
		return
	}

	observability.RecordPrediction(p.Label, p.Confidence)
	render.JSON(w, r, PredictResponse{
		Prediction:      p.Class,
		PredictionLabel: p.Label,
		ProbabilityUp:   p.ProbUp,
		ProbabilityDown: p.ProbDown,
		Confidence:      p.Confidence,
		Recommendation:  p.Recommended,
		Timestamp:       s.clock().Format(time.RFC3339),
		Model:           s.model.Name(),
		Ticker:          s.model.Ticker(),
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, reason string, body ErrorResponse) {
	observability.RecordPredictionFailed(reason)
	s.logger.Warn("prediction rejected",
		zap.String("request_id", GetRequestID(r.Context())),
		zap.Int("status", status),
		zap.String("reason", reason),
		zap.String("error", body.Error),
	)
	render.Status(r, status)
	render.JSON(w, r, body)
}

// decodeInput reads a JSON object. An empty body or JSON null yields an empty map.
func decodeInput(r *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return map[string]any{}, nil
	}

	var input map[string]any
	if err := json.Unmarshal(body, &input); err != nil {
		return nil, err
	}
	if input == nil {
		input = map[string]any{}
	}
	return input, nil
}
