package decision

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"shelfcast/internal/cache"
	"shelfcast/internal/domain"
)

type Decider interface {
	Decide(ctx context.Context, req Request) (domain.Decision, error)
}

type Cache interface {
	Get(ctx context.Context, key string) (*domain.DecisionRecord, error)
	Set(ctx context.Context, key string, rec domain.DecisionRecord) error
}

type Publisher interface {
	PublishDecision(ctx context.Context, rec domain.DecisionRecord) error
}

type Recorder interface {
	RecordDecision(outcome, horizon string, cached bool, d time.Duration)
	RecordPublishFailure()
}

// Service serves decisions to the API: it caches records per ensemble
// version, publishes fresh decisions and records metrics. Cache, publisher
// and recorder are optional.
type Service struct {
	tracer    trace.Tracer
	decider   Decider
	version   func() int
	cache     Cache
	publisher Publisher
	recorder  Recorder
	logger    zerolog.Logger
}

func NewService(
	tracer trace.Tracer,
	decider Decider,
	version func() int,
	decisionCache Cache,
	publisher Publisher,
	recorder Recorder,
	logger zerolog.Logger,
) *Service {
	if version == nil {
		version = func() int { return 0 }
	}
	return &Service{
		tracer:    tracer,
		decider:   decider,
		version:   version,
		cache:     decisionCache,
		publisher: publisher,
		recorder:  recorder,
		logger:    logger.With().Str("component", "decision-service").Logger(),
	}
}

func (s *Service) Decide(ctx context.Context, req Request) (domain.DecisionRecord, error) {
	ctx, span := s.tracer.Start(ctx, "decision-service.decide")
	defer span.End()

	start := time.Now()
	if req.Horizon == "" {
		req.Horizon = domain.HorizonWeek
	}
	span.SetAttributes(
		attribute.Int("store", req.Features.Store),
		attribute.Int("dept", req.Features.Dept),
		attribute.String("horizon", string(req.Horizon)),
	)

	var key string
	if s.cache != nil {
		k, err := cache.Key(s.version(), req)
		if err != nil {
			s.logger.Warn().Err(err).Msg("decision cache key")
		} else {
			key = k
			cached, err := s.cache.Get(ctx, key)
			if err != nil {
				s.logger.Warn().Err(err).Msg("decision cache read error")
			}
			if cached != nil {
				span.SetAttributes(attribute.Bool("cached", true))
				s.record(string(cached.StockStatus), req.Horizon, true, start)
				return *cached, nil
			}
		}
	}

	d, err := s.decider.Decide(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		outcome := domain.ErrorCode(err)
		if outcome == "" {
			outcome = "ERROR"
		}
		s.record(outcome, req.Horizon, false, start)
		return domain.DecisionRecord{}, err
	}

	rec := d.Record()
	rec.Store = req.Features.Store
	rec.Dept = req.Features.Dept

	if s.cache != nil && key != "" {
		if err := s.cache.Set(ctx, key, rec); err != nil {
			s.logger.Warn().Err(err).Msg("decision cache write error")
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishDecision(ctx, rec); err != nil {
			s.logger.Error().Err(err).Int("store", rec.Store).Int("dept", rec.Dept).Msg("publish decision")
			if s.recorder != nil {
				s.recorder.RecordPublishFailure()
			}
		}
	}

	s.record(string(rec.StockStatus), req.Horizon, false, start)
	return rec, nil
}

func (s *Service) record(outcome string, horizon domain.Horizon, cached bool, start time.Time) {
	if s.recorder == nil {
		return
	}
	s.recorder.RecordDecision(outcome, string(horizon), cached, time.Since(start))
}
