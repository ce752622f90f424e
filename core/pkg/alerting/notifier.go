package alerting

import (
	"github.com/open-feature/flagx/core/pkg/logger"
	"github.com/open-feature/flagx/core/pkg/model"
	"go.uber.org/zap"
)

// Alert describes a breached threshold.
type Alert struct {
	FlagID    string
	Threshold model.AlertThreshold
	Value     float64
	Reason    string
}

// Notifier is the hook for notify actions. It must not block.
type Notifier interface {
	Notify(alert Alert)
}

type NotifierFunc func(alert Alert)

func (fn NotifierFunc) Notify(alert Alert) { fn(alert) }

// LogNotifier writes alerts to the log.
type LogNotifier struct {
	Logger *logger.Logger
}

func (n LogNotifier) Notify(alert Alert) {
	n.Logger.Warn("flag alert",
		zap.String(logger.FlagIDField, alert.FlagID),
		zap.String("reason", alert.Reason))
}
