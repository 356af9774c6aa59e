package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/casewatch/config"
	"github.com/mohammad-safakhou/casewatch/models"
)

var quiet = log.New(io.Discard, "", 0)

func TestOpenAIAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("unexpected request %s %v", r.URL.Path, r.Header)
		}
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 2 || !strings.Contains(req.Messages[1].Content, "Oak School") || !strings.Contains(req.Messages[1].Content, "Tokyo") {
			t.Errorf("prompt missing query: %+v", req.Messages)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" {\"risk_score\":12} "}}]}`))
	}))
	defer srv.Close()

	svc, err := New(config.AnalysisConfig{Provider: "openai", APIKey: "k", BaseURL: srv.URL, Timeout: time.Second}, quiet)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := svc.Analyze(context.Background(), Request{Subject: "Oak School", Region: "Tokyo"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out != `{"risk_score":12}` {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestGeminiGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-1.5-flash:generateContent" || r.Header.Get("x-goog-api-key") != "k" {
			t.Errorf("unexpected request %s", r.URL.Path)
		}
		var req geminiRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.SystemInstruction == nil || req.Contents[0].Parts[0].Text != "list cases" {
			t.Errorf("unexpected body %+v", req)
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"[{\"url\":"},{"text":"\"u\"}]"}]}}]}`))
	}))
	defer srv.Close()

	svc, _ := New(config.AnalysisConfig{Provider: "gemini", APIKey: "k", BaseURL: srv.URL, Timeout: time.Second}, quiet)
	out, err := svc.Generate(context.Background(), "list cases")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != `[{"url":"u"}]` {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestDisabledService(t *testing.T) {
	svc, err := New(config.AnalysisConfig{Provider: "none"}, quiet)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if svc.Enabled() {
		t.Fatalf("expected disabled")
	}
	if _, err := svc.Analyze(context.Background(), Request{Subject: "x"}); !errors.Is(err, models.ErrCollaboratorDisabled) {
		t.Fatalf("expected ErrCollaboratorDisabled, got %v", err)
	}
}

type slowModel struct{}

func (slowModel) Name() string { return "slow" }
func (slowModel) Complete(ctx context.Context, _, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestAnalyzeTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := NewService(slowModel{}, quiet).Analyze(ctx, Request{Subject: "x"})
	if !errors.Is(err, models.ErrCollaboratorTimeout) {
		t.Fatalf("expected ErrCollaboratorTimeout, got %v", err)
	}
}

func TestAnalyzeCollaboratorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	svc, _ := New(config.AnalysisConfig{Provider: "openai", APIKey: "k", BaseURL: srv.URL, Timeout: time.Second, MaxRetries: 0}, quiet)
	_, err := svc.Analyze(context.Background(), Request{Subject: "x"})
	var ce *models.CollaboratorError
	if !errors.As(err, &ce) || !ce.Transient {
		t.Fatalf("expected transient collaborator error, got %v", err)
	}
}

func TestBuildAnalysisPromptWithoutRegion(t *testing.T) {
	p := buildAnalysisPrompt(Request{Subject: "〇〇小学校", Context: "- 記事A"})
	if !strings.Contains(p, "指定なし") || !strings.Contains(p, "記事A") {
		t.Fatalf("unexpected prompt %q", p)
	}
}
