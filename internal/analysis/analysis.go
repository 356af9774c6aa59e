// Package analysis talks to the generative text collaborator.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/casewatch/config"
	"github.com/mohammad-safakhou/casewatch/internal/httpclient"
	"github.com/mohammad-safakhou/casewatch/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer = otel.Tracer("casewatch/internal/analysis")

// Model is one completion backend.
type Model interface {
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
}

// Request is one analysis of a subject within a region. Context carries gathered background text.
type Request struct {
	Subject string
	Region  string
	Context string
}

// Service wraps a Model with prompt construction, tracing and error classification. A Service
// without a model reports models.ErrCollaboratorDisabled.
type Service struct {
	model  Model
	logger *log.Logger
}

// New builds the configured backend. Provider "none" yields a disabled service.
func New(cfg config.AnalysisConfig, logger *log.Logger) (*Service, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[ANALYSIS] ", log.LstdFlags)
	}
	hc := httpclient.New(cfg.Timeout, cfg.MaxRetries, 500*time.Millisecond, cfg.RequestsPerSecond)
	var m Model
	switch cfg.Provider {
	case "", "none":
	case "openai":
		m = NewOpenAI(cfg, hc)
	case "gemini":
		m = NewGemini(cfg, hc)
	default:
		return nil, fmt.Errorf("unknown analysis provider %q", cfg.Provider)
	}
	return NewService(m, logger), nil
}

func NewService(m Model, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(log.Writer(), "[ANALYSIS] ", log.LstdFlags)
	}
	return &Service{model: m, logger: logger}
}

// Enabled reports whether a backend is configured.
func (s *Service) Enabled() bool { return s != nil && s.model != nil }

// Analyze produces the analysis text for req.
func (s *Service) Analyze(ctx context.Context, req Request) (string, error) {
	return s.run(ctx, "analysis.analyze", analysisSystemPrompt, buildAnalysisPrompt(req),
		attribute.String("analysis.region", req.Region))
}

// Generate runs a free-form prompt, used by generated feeds.
func (s *Service) Generate(ctx context.Context, prompt string) (string, error) {
	return s.run(ctx, "analysis.generate", generateSystemPrompt, prompt)
}

func (s *Service) run(ctx context.Context, spanName, system, user string, attrs ...attribute.KeyValue) (string, error) {
	if !s.Enabled() {
		return "", models.ErrCollaboratorDisabled
	}
	ctx, span := tracer.Start(ctx, spanName, trace.WithAttributes(append(attrs, attribute.String("analysis.model", s.model.Name()))...))
	defer span.End()

	start := time.Now()
	out, err := s.model.Complete(ctx, system, user)
	if err != nil {
		err = classify(ctx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Printf("%s failed after %s: %v", spanName, time.Since(start).Round(time.Millisecond), err)
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		err := &models.CollaboratorError{Collaborator: "analysis", Transient: true, Err: errors.New("empty completion")}
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetStatus(codes.Ok, "completed")
	return out, nil
}

// classify maps transport failures onto the error kinds callers switch on.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrCollaboratorTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &models.CollaboratorError{Collaborator: "analysis", Transient: httpclient.IsTransient(err), Err: err}
}
