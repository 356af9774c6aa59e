// Package query serves analysis requests through the fingerprint cache under a session quota.
package query

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/casewatch/internal/analysis"
	"github.com/mohammad-safakhou/casewatch/internal/cache"
	"github.com/mohammad-safakhou/casewatch/internal/quota"
	"github.com/mohammad-safakhou/casewatch/internal/search"
	"github.com/mohammad-safakhou/casewatch/models"
)

// ErrEmptySubject rejects a query without a subject.
var ErrEmptySubject = errors.New("subject is required")

// Analyzer is the expensive collaborator behind a cache miss.
type Analyzer interface {
	Enabled() bool
	Analyze(ctx context.Context, req analysis.Request) (string, error)
}

// Searcher gathers background context. It never fails.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) []search.Result
}

// Answer is the outcome of one query.
type Answer struct {
	Fingerprint string `json:"fingerprint"`
	Result      string `json:"result"`
	Cached      bool   `json:"cached"`
	AccessCount int64  `json:"access_count"`
	Remaining   int    `json:"remaining"`
}

// Options tune the miss path.
type Options struct {
	AnalysisTimeout time.Duration
	SearchLimit     int
}

type Service struct {
	cache    *cache.Cache
	analyzer Analyzer
	searcher Searcher
	opts     Options
	logger   *log.Logger
}

// New wires the query path. searcher may be nil.
func New(c *cache.Cache, a Analyzer, s Searcher, opts Options, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(log.Writer(), "[QUERY] ", log.LstdFlags)
	}
	if opts.AnalysisTimeout <= 0 {
		opts.AnalysisTimeout = 60 * time.Second
	}
	return &Service{cache: c, analyzer: a, searcher: s, opts: opts, logger: logger}
}

// Ask answers subject within region for sess. Cache hits are free; a miss consumes one unit of
// quota whether or not the analysis succeeds, and only a successful analysis is cached.
func (s *Service) Ask(ctx context.Context, sess *quota.Session, subject, region string) (Answer, error) {
	subject = strings.TrimSpace(subject)
	region = strings.TrimSpace(region)
	if subject == "" {
		return Answer{}, ErrEmptySubject
	}
	if !sess.Admit() {
		return Answer{Remaining: 0}, models.ErrQuotaExceeded
	}

	fp := cache.FingerprintOf(subject, region)
	if entry, ok := s.cache.Lookup(ctx, fp); ok {
		return Answer{
			Fingerprint: fp,
			Result:      entry.Result,
			Cached:      true,
			AccessCount: entry.AccessCount,
			Remaining:   sess.Remaining(),
		}, nil
	}

	if s.analyzer == nil || !s.analyzer.Enabled() {
		return Answer{Fingerprint: fp, Remaining: sess.Remaining()}, models.ErrCollaboratorDisabled
	}
	if !sess.Reserve(ctx) {
		return Answer{Fingerprint: fp}, models.ErrQuotaExceeded
	}

	req := analysis.Request{Subject: subject, Region: region, Context: s.gather(ctx, subject, region)}
	actx, cancel := context.WithTimeout(ctx, s.opts.AnalysisTimeout)
	result, err := s.analyzer.Analyze(actx, req)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, models.ErrCollaboratorTimeout) {
			err = models.ErrCollaboratorTimeout
		}
		s.logger.Printf("session %s: analysis of %q failed: %v", sess.ID(), subject, err)
		return Answer{Fingerprint: fp, Remaining: sess.Remaining()}, err
	}

	s.cache.Store(ctx, subject, region, fp, result)
	return Answer{Fingerprint: fp, Result: result, Remaining: sess.Remaining()}, nil
}

func (s *Service) gather(ctx context.Context, subject, region string) string {
	if s.searcher == nil {
		return ""
	}
	return search.FormatContext(s.searcher.Search(ctx, strings.TrimSpace(subject+" "+region), s.opts.SearchLimit))
}
