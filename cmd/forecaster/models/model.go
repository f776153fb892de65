// Package models builds the forecaster's trend model and anomaly detector
// from its configuration.
package models

import (
	"log/slog"

	"github.com/HatiCode/foresight/cmd/forecaster/config"
	"github.com/HatiCode/foresight/pkg/models"
)

// NewTrend creates the capacity trend model.
func NewTrend(cfg *config.Config, logger *slog.Logger) *models.TrendModel {
	m := models.NewTrendModel(cfg.MinPoints)
	logger.Info("initializing trend model", "model", m.Name(), "min_points", cfg.MinPoints)
	return m
}

// NewDetector creates the activity anomaly detector.
func NewDetector(cfg *config.Config, logger *slog.Logger) *models.Detector {
	d := models.NewDetector()
	d.Window = cfg.WindowDays
	d.WarningSigma = cfg.WarningSigma
	d.CriticalSigma = cfg.CriticalSigma
	d.MinStdDevFraction = cfg.MinStdDevFraction
	logger.Info("initializing anomaly detector",
		"model", d.Name(),
		"window_days", d.Window,
		"warning_sigma", d.WarningSigma,
		"critical_sigma", d.CriticalSigma,
		"min_stddev_fraction", d.MinStdDevFraction,
	)
	return d
}
