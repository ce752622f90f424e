package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/open-feature/flagx/core/pkg/engine"
	"github.com/open-feature/flagx/core/pkg/logger"
	"github.com/open-feature/flagx/core/pkg/model"
	"github.com/open-feature/flagx/pkg/provider"
	"github.com/open-feature/flagx/pkg/service"
	"github.com/robfig/cron"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultReportSchedule = "@every 1h"

// Runtime wires an engine to its flag source and its service.
type Runtime struct {
	Engine         *engine.Engine
	Service        service.IService
	Provider       provider.IProvider
	ReportSchedule string
	Logger         *logger.Logger

	mu     sync.Mutex
	loaded map[string]struct{} // ids last received from the provider
}

// Start loads the provider's flags, starts the engine and blocks until ctx is
// cancelled or a component fails.
func (r *Runtime) Start(ctx context.Context) error {
	if r.Logger == nil {
		r.Logger = logger.NewLogger(nil)
	}
	log := r.Logger.Component("runtime")

	if r.Provider != nil {
		flags, err := r.Provider.Fetch(ctx)
		if err != nil {
			return fmt.Errorf("unable to load flags: %w", err)
		}
		r.sync(flags)
	}

	reports := cron.New()
	if r.ReportSchedule != "" {
		if err := reports.AddFunc(r.ReportSchedule, r.report); err != nil {
			return fmt.Errorf("invalid report schedule %q: %w", r.ReportSchedule, err)
		}
	}

	g, gCtx := errgroup.WithContext(ctx)
	if err := r.Engine.Start(gCtx); err != nil {
		return fmt.Errorf("unable to start engine: %w", err)
	}
	reports.Start()

	if r.Service != nil {
		g.Go(func() error {
			return r.Service.Serve(gCtx, r.Engine)
		})
	}
	if r.Provider != nil {
		g.Go(func() error {
			return r.Provider.Watch(gCtx, r.sync)
		})
	}
	g.Go(func() error {
		<-gCtx.Done()
		reports.Stop()
		r.Engine.Stop()
		log.Info("runtime stopped")
		return nil
	})

	return g.Wait()
}

// sync applies a full set of provider flags. Flags the provider dropped since
// the previous set are deleted; flags created through the API are left alone.
func (r *Runtime) sync(flags []model.Flag) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := make(map[string]struct{}, len(flags))
	for _, flag := range flags {
		if _, err := r.Engine.CreateOrUpdateFlag(flag); err != nil {
			r.Logger.Error("unable to apply flag", zap.String(logger.FlagIDField, flag.ID), zap.Error(err))
			continue
		}
		current[flag.ID] = struct{}{}
	}
	for id := range r.loaded {
		if _, ok := current[id]; !ok {
			r.Engine.DeleteFlag(id)
		}
	}
	r.loaded = current
}

// report logs a daily summary and the experiment recommendation of every flag
// that declares variants.
func (r *Runtime) report() {
	stats := r.Engine.GetAnalytics("", 24)
	r.Logger.Info("evaluation report",
		zap.Int("evaluations", stats.TotalEvaluations),
		zap.Int("unique_users", stats.UniqueUsers),
		zap.Any("reasons", stats.Reasons))

	for _, flag := range r.Engine.GetAllFlags() {
		if len(flag.Variants) < 2 {
			continue
		}
		if _, err := r.Engine.RunExperimentAnalysis(flag.ID); err != nil {
			r.Logger.Warn("experiment analysis failed", zap.String(logger.FlagIDField, flag.ID), zap.Error(err))
			continue
		}
		rec, err := r.Engine.GetRecommendation(flag.ID)
		if err != nil {
			continue
		}
		r.Logger.Info("experiment recommendation",
			zap.String(logger.FlagIDField, flag.ID),
			zap.String("action", string(rec.Action)),
			zap.String("variant", rec.Variant),
			zap.Float64("confidence", rec.Confidence))
	}
}
