package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/stemsi/cefr-exam-engine/internal/config"
	"github.com/stemsi/cefr-exam-engine/internal/model"
)

// SettingService resolves the exam configuration from app_settings over env defaults.
type SettingService struct {
	store    SettingStore
	defaults model.SystemConfig
	log      zerolog.Logger
}

func NewSettingService(store SettingStore, defaults model.SystemConfig, log zerolog.Logger) *SettingService {
	return &SettingService{
		store:    store,
		defaults: defaults,
		log:      log.With().Str("component", "setting_service").Logger(),
	}
}

// DefaultSystemConfig builds the fallback configuration from env.
func DefaultSystemConfig(cfg *config.Config) model.SystemConfig {
	sc := model.SystemConfig{
		TimePerQuestionSec: cfg.TimePerQuestionSec,
		ProctoringMode:     model.ProctoringMode(cfg.ProctoringMode),
	}
	if !sc.ProctoringMode.Valid() {
		sc.ProctoringMode = model.ProctoringWarn
	}
	if sc.TimePerQuestionSec <= 0 {
		sc.TimePerQuestionSec = 60
	}
	return sc
}

// SystemConfig returns stored values, ignoring malformed or out-of-range rows.
func (s *SettingService) SystemConfig(ctx context.Context) (model.SystemConfig, error) {
	rows, err := s.store.GetAll(ctx)
	if err != nil {
		return s.defaults, fmt.Errorf("load settings: %w", err)
	}

	sc := s.defaults
	for _, row := range rows {
		switch row.Key {
		case config.SettingKey.TimePerQuestionSec:
			n, err := strconv.Atoi(row.Value)
			if err != nil || n < model.MinTimePerQuestionSec || n > model.MaxTimePerQuestionSec {
				s.log.Warn().Str("key", row.Key).Str("value", row.Value).Msg("ignoring invalid setting")
				continue
			}
			sc.TimePerQuestionSec = n
		case config.SettingKey.ProctoringMode:
			mode := model.ProctoringMode(row.Value)
			if !mode.Valid() {
				s.log.Warn().Str("key", row.Key).Str("value", row.Value).Msg("ignoring invalid setting")
				continue
			}
			sc.ProctoringMode = mode
		}
	}
	return sc, nil
}

// UpdateSystemConfig applies the non-nil fields of req and returns the new configuration.
func (s *SettingService) UpdateSystemConfig(ctx context.Context, req model.UpdateSettingsRequest) (model.SystemConfig, error) {
	values := make(map[string]string, 2)
	if req.TimePerQuestionSec != nil {
		n := *req.TimePerQuestionSec
		if n < model.MinTimePerQuestionSec || n > model.MaxTimePerQuestionSec {
			return model.SystemConfig{}, fmt.Errorf("%w: time_per_question_sec must be between %d and %d",
				ErrValidation, model.MinTimePerQuestionSec, model.MaxTimePerQuestionSec)
		}
		values[config.SettingKey.TimePerQuestionSec] = strconv.Itoa(n)
	}
	if req.ProctoringMode != nil {
		mode := model.ProctoringMode(*req.ProctoringMode)
		if !mode.Valid() {
			return model.SystemConfig{}, fmt.Errorf("%w: unknown proctoring mode", ErrValidation)
		}
		values[config.SettingKey.ProctoringMode] = string(mode)
	}

	if len(values) > 0 {
		if err := s.store.UpsertMany(ctx, values); err != nil {
			s.log.Error().Err(err).Msg("failed to update settings")
			return model.SystemConfig{}, fmt.Errorf("update settings: %w", err)
		}
	}
	return s.SystemConfig(ctx)
}
