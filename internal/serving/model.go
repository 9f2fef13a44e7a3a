// Package serving exposes a trained daily direction classifier over HTTP.
package serving

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// Confidence tiers.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

var (
	// ErrInvalidArtifact is returned when a model artifact fails validation.
	ErrInvalidArtifact = errors.New("invalid model artifact")

	// ErrInvalidFeature is returned when an input value cannot be used as a number.
	ErrInvalidFeature = errors.New("invalid feature value")
)

// Artifact is the on-disk model description: preprocessing statistics and
// logistic regression weights, all indexed by Features.
type Artifact struct {
	ModelName   string             `yaml:"model_name" json:"model_name" validate:"required"`
	Ticker      string             `yaml:"ticker" json:"ticker" validate:"required"`
	TrainedAt   string             `yaml:"trained_at" json:"trained_at"`
	TestMetrics map[string]float64 `yaml:"test_metrics" json:"test_metrics"`
	Features    []string           `yaml:"features" json:"features" validate:"required,min=1,unique,dive,required"`
	Imputer     Imputer            `yaml:"imputer" json:"imputer"`
	Scaler      Scaler             `yaml:"scaler" json:"scaler"`
	Classifier  Classifier         `yaml:"classifier" json:"classifier"`
}

// Imputer replaces missing inputs with per-feature statistics.
type Imputer struct {
	Strategy   string    `yaml:"strategy" json:"strategy" validate:"omitempty,oneof=median mean most_frequent constant"`
	Statistics []float64 `yaml:"statistics" json:"statistics" validate:"required"`
}

// Scaler standardizes inputs as (x - mean) / scale.
type Scaler struct {
	Mean  []float64 `yaml:"mean" json:"mean" validate:"required"`
	Scale []float64 `yaml:"scale" json:"scale" validate:"required"`
}

// Classifier is a binary logistic regression.
type Classifier struct {
	Coef      []float64 `yaml:"coef" json:"coef" validate:"required"`
	Intercept float64   `yaml:"intercept" json:"intercept"`
}

// Prediction is the outcome for one input record.
type Prediction struct {
	Class       int
	Label       string
	ProbUp      float64
	ProbDown    float64
	Confidence  string
	Recommended string
}

// Model is a loaded artifact. It is read-only after construction and safe
// for concurrent use.
type Model struct {
	artifact Artifact
	index    map[string]int
}

// LoadModel reads and validates a YAML artifact from path.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact: %w", err)
	}
	return ParseModel(data)
}

// ParseModel decodes and validates a YAML artifact.
func ParseModel(data []byte) (*Model, error) {
	var a Artifact
	if err := yaml.UnmarshalStrict(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	return NewModel(a)
}

// NewModel validates a and returns a Model holding its own copy.
func NewModel(a Artifact) (*Model, error) {
	if err := artifactValidator().Struct(a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}

	n := len(a.Features)
	for name, got := range map[string]int{
		"imputer.statistics": len(a.Imputer.Statistics),
		"scaler.mean":        len(a.Scaler.Mean),
		"scaler.scale":       len(a.Scaler.Scale),
		"classifier.coef":    len(a.Classifier.Coef),
	} {
		if got != n {
			return nil, fmt.Errorf("%w: %s has %d values, want %d", ErrInvalidArtifact, name, got, n)
		}
	}

	m := &Model{artifact: cloneArtifact(a), index: make(map[string]int, n)}
	for i, f := range m.artifact.Features {
		m.index[f] = i
	}
	return m, nil
}

func artifactValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func cloneArtifact(a Artifact) Artifact {
	out := a
	out.Features = append([]string(nil), a.Features...)
	out.Imputer.Statistics = append([]float64(nil), a.Imputer.Statistics...)
	out.Scaler.Mean = append([]float64(nil), a.Scaler.Mean...)
	out.Scaler.Scale = append([]float64(nil), a.Scaler.Scale...)
	out.Classifier.Coef = append([]float64(nil), a.Classifier.Coef...)
	if a.TestMetrics != nil {
		out.TestMetrics = make(map[string]float64, len(a.TestMetrics))
		for k, v := range a.TestMetrics {
			out.TestMetrics[k] = v
		}
	}
	return out
}

// Name returns the model name.
func (m *Model) Name() string { return m.artifact.ModelName }

// Ticker returns the symbol the model was trained on.
func (m *Model) Ticker() string { return m.artifact.Ticker }

// Features returns the required input keys in model order.
func (m *Model) Features() []string {
	return append([]string(nil), m.artifact.Features...)
}

// Artifact returns a copy of the loaded artifact.
func (m *Model) Artifact() Artifact {
	return cloneArtifact(m.artifact)
}

// Missing returns the required keys absent from input, in model order.
func (m *Model) Missing(input map[string]any) []string {
	var missing []string
	for _, f := range m.artifact.Features {
		if _, ok := input[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// Predict classifies one record. Keys outside the model's features are ignored.
// Null values are imputed. Callers should check Missing first; an absent key is
// treated as null.
func (m *Model) Predict(input map[string]any) (Prediction, error) {
	x := make([]float64, len(m.artifact.Features))
	for i, f := range m.artifact.Features {
		v, err := toFloat(input[f])
		if err != nil {
			return Prediction{}, fmt.Errorf("%w: %s: %v", ErrInvalidFeature, f, err)
		}
		x[i] = v
	}

	m.impute(x)
	m.scale(x)

	z := m.artifact.Classifier.Intercept
	for i, c := range m.artifact.Classifier.Coef {
		z += c * x[i]
	}
	probUp := 1 / (1 + math.Exp(-z))
	return newPrediction(probUp), nil
}

func (m *Model) impute(x []float64) {
	for i := range x {
		if math.IsNaN(x[i]) {
			x[i] = m.artifact.Imputer.Statistics[i]
		}
	}
}

func (m *Model) scale(x []float64) {
	for i := range x {
		s := m.artifact.Scaler.Scale[i]
		if s == 0 {
			s = 1
		}
		x[i] = (x[i] - m.artifact.Scaler.Mean[i]) / s
	}
}

func newPrediction(probUp float64) Prediction {
	probDown := 1 - probUp
	p := Prediction{
		ProbUp:     round4(probUp),
		ProbDown:   round4(probDown),
		Confidence: confidence(math.Max(probUp, probDown)),
	}
	if probUp > 0.5 {
		p.Class, p.Label, p.Recommended = 1, "UP", "BUY at open, SELL at close"
	} else {
		p.Class, p.Label, p.Recommended = 0, "DOWN", "HOLD (stay in cash)"
	}
	return p
}

func confidence(p float64) string {
	switch {
	case p > 0.7:
		return ConfidenceHigh
	case p > 0.55:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func round4(v float64) float64 {
	return decimal.NewFromFloat(v).Round(4).InexactFloat64()
}

// toFloat converts a decoded JSON value (or a domain.FeatureRow.ModelInput
// value) to float64. nil becomes NaN.
func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
