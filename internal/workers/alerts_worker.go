package workers

import (
	"context"

	"go.uber.org/zap"

	"cryptofolio/internal/alerts"
	"cryptofolio/pkg/logger"
)

// AlertsWorker evaluates active price alerts against current quotes
type AlertsWorker struct {
	checker *alerts.Checker
}

// NewAlertsWorker creates new alert checking worker
func NewAlertsWorker(checker *alerts.Checker) *AlertsWorker {
	return &AlertsWorker{checker: checker}
}

func (w *AlertsWorker) Name() string {
	return "price_alerts"
}

// Run checks all active alerts once
func (w *AlertsWorker) Run(ctx context.Context) error {
	triggered, err := w.checker.CheckAll(ctx)
	if err != nil {
		return err
	}

	if triggered > 0 {
		logger.Info("price alerts triggered",
			zap.Int("count", triggered),
		)
	}

	return nil
}
