package engine

import (
	"github.com/open-feature/flagx/core/pkg/flagsync"
	"github.com/open-feature/flagx/core/pkg/logger"
	"github.com/open-feature/flagx/core/pkg/model"
	"github.com/rs/xid"
	"go.uber.org/zap"
)

// CreateOrUpdateFlag stores a definition. The creation time of an existing flag
// is kept; the update time is always stamped.
func (e *Engine) CreateOrUpdateFlag(flag model.Flag) (model.Flag, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createOrUpdate(flag)
}

func (e *Engine) createOrUpdate(flag model.Flag) (model.Flag, error) {
	if flag.ID == "" {
		return model.Flag{}, &model.ConfigurationError{Err: model.ErrInvalidFlag}
	}

	flag = flag.Clone()
	now := e.clock.Now()
	flag.Rollout.Config.Percentage = model.ClampPercentage(flag.Rollout.Config.Percentage)
	for i := range flag.Rules {
		if flag.Rules[i].ID == "" {
			flag.Rules[i].ID = xid.New().String()
		}
	}
	flag.Metadata.UpdatedAt = now
	flag.Metadata.CreatedAt = now

	previous, existed := e.flags.Get(flag.ID)
	if existed {
		flag.Metadata.CreatedAt = previous.Metadata.CreatedAt
	}
	if _, _, err := e.flags.Set(flag); err != nil {
		return model.Flag{}, err
	}

	e.invalidate(flag.ID)
	e.rollout.Register(flag)
	e.metrics.RolloutPct.WithLabelValues(flag.ID).Set(float64(flag.Rollout.Config.Percentage))

	kind := model.NotificationCreate
	if existed {
		kind = model.NotificationUpdate
	}
	e.publish(kind, flag.ID)
	e.logger.Debug("flag stored", zap.String(logger.FlagIDField, flag.ID), zap.Bool("update", existed))
	return flag, nil
}

// DeleteFlag removes a flag, cancels its rollout timer and forgets its samples
// and analysis results.
func (e *Engine) DeleteFlag(flagID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.flags.Delete(flagID) {
		return false
	}
	e.rollout.Cancel(flagID)
	e.invalidate(flagID)
	e.recorder.Forget(flagID)
	e.analyzer.Forget(flagID)
	e.metrics.RolloutPct.DeleteLabelValues(flagID)
	e.publish(model.NotificationDelete, flagID)
	return true
}

// SetEnabled switches a flag on or off. Enabling clears any safety marker.
func (e *Engine) SetEnabled(flagID string, enabled bool) error {
	_, err := e.update(flagID, func(f *model.Flag) {
		f.Enabled = enabled
		if enabled {
			f.Metadata.SafetyAction = ""
			f.Metadata.SafetyReason = ""
		}
	})
	return err
}

// SetRolloutPercentage sets the rollout percentage, clamped to [0,100].
func (e *Engine) SetRolloutPercentage(flagID string, pct int) error {
	pct = model.ClampPercentage(pct)
	_, err := e.update(flagID, func(f *model.Flag) {
		f.Rollout.Config.Percentage = pct
	})
	return err
}

// EmergencyRollback disables a flag and drops its rollout to 0, recording reason.
func (e *Engine) EmergencyRollback(flagID, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, _, err := e.mutate(flagID, func(f *model.Flag) bool {
		f.Enabled = false
		f.Rollout.Config.Percentage = 0
		f.Metadata.SafetyAction = model.RollbackAction
		f.Metadata.SafetyReason = reason
		return true
	})
	if err != nil {
		return err
	}
	e.rollout.Cancel(flagID)
	e.logger.Warn("emergency rollback", zap.String(logger.FlagIDField, flagID), zap.String("reason", reason))
	return nil
}

// EmergencyDisable switches a flag off on behalf of the safety layer.
func (e *Engine) EmergencyDisable(flagID, reason string) error {
	_, err := e.update(flagID, func(f *model.Flag) {
		f.Enabled = false
		f.Metadata.SafetyAction = model.DisableAction
		f.Metadata.SafetyReason = reason
	})
	if err != nil {
		return err
	}
	e.logger.Warn("emergency disable", zap.String(logger.FlagIDField, flagID), zap.String("reason", reason))
	return nil
}

func (e *Engine) GetFlag(flagID string) (model.Flag, bool) {
	return e.flags.Get(flagID)
}

// GetAllFlags returns every flag ordered by id.
func (e *Engine) GetAllFlags() []model.Flag {
	return e.flags.GetAll()
}

// Subscribe registers ch for change notifications of every flag, or of the
// flag named by selector, and returns the current snapshot.
func (e *Engine) Subscribe(id interface{}, ch chan flagsync.Payload, selector string) (flagsync.Payload, error) {
	return e.mux.Register(id, ch, selector)
}

func (e *Engine) Unsubscribe(id interface{}, selector string) {
	e.mux.Unregister(id, selector)
}

// MutateFlag applies fn to the current definition of a flag under the engine
// lock. fn reports whether it changed the flag; when it did, the change is
// stamped, stored and published.
func (e *Engine) MutateFlag(flagID string, fn func(*model.Flag) bool) (model.Flag, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mutate(flagID, fn)
}

func (e *Engine) update(flagID string, fn func(*model.Flag)) (model.Flag, error) {
	flag, _, err := e.MutateFlag(flagID, func(f *model.Flag) bool {
		fn(f)
		return true
	})
	return flag, err
}

// mutate must be called with e.mu held.
func (e *Engine) mutate(flagID string, fn func(*model.Flag) bool) (model.Flag, bool, error) {
	flag, ok := e.flags.Get(flagID)
	if !ok {
		return model.Flag{}, false, model.NewFlagNotFound(flagID)
	}
	if !fn(&flag) {
		return flag, false, nil
	}
	flag.Rollout.Config.Percentage = model.ClampPercentage(flag.Rollout.Config.Percentage)
	flag.Metadata.UpdatedAt = e.clock.Now()
	if _, _, err := e.flags.Set(flag); err != nil {
		return model.Flag{}, false, err
	}

	e.invalidate(flagID)
	e.metrics.RolloutPct.WithLabelValues(flagID).Set(float64(flag.Rollout.Config.Percentage))
	e.publish(model.NotificationUpdate, flagID)
	return flag, true, nil
}

// invalidate runs after a change is stored. Bumping the generation before the
// cache is cleared keeps an evaluation that read the previous definition from
// caching its result.
func (e *Engine) invalidate(flagID string) {
	e.generation.Add(1)
	e.cache.InvalidateFlag(flagID)
}

func (e *Engine) publish(kind model.NotificationType, flagID string) {
	n := model.Notification{Type: kind, FlagID: flagID, Timestamp: e.clock.Now()}
	if err := e.mux.Publish(n); err != nil {
		e.logger.Error("unable to publish notification", zap.String(logger.FlagIDField, flagID), zap.Error(err))
	}
}
