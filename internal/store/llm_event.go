package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type eventRepo struct {
	db *gorm.DB
}

func (r *eventRepo) AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error {
	e := LLMEvent{
		Timestamp:    time.Now().UTC(),
		Provider:     data.Provider,
		Model:        data.Model,
		Purpose:      data.Purpose,
		SessionID:    data.SessionID,
		InputTokens:  data.InputTokens,
		OutputTokens: data.OutputTokens,
		LatencyMs:    data.LatencyMs,
		Success:      data.Success,
		Streamed:     data.Streamed,
		ErrorMessage: data.ErrorMessage,
		RequestBody:  data.RequestBody,
		ResponseBody: data.ResponseBody,
	}
	if err := r.db.WithContext(ctx).Create(&e).Error; err != nil {
		return fmt.Errorf("save LLM request event: %w", err)
	}
	return nil
}

func (r *eventRepo) QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMEvent, error) {
	q := r.db.WithContext(ctx).Order("id DESC")
	if opts.Purpose != "" {
		q = q.Where("purpose = ?", opts.Purpose)
	}
	if opts.SessionID != "" {
		q = q.Where("session_id = ?", opts.SessionID)
	}
	if !opts.From.IsZero() {
		q = q.Where("timestamp >= ?", opts.From)
	}
	if !opts.To.IsZero() {
		q = q.Where("timestamp <= ?", opts.To)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}

	var out []LLMEvent
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query LLM events: %w", err)
	}
	return out, nil
}

func (r *eventRepo) GetLLMEvent(ctx context.Context, id int) (*LLMEvent, error) {
	var e LLMEvent
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get LLM event: %w", err)
	}
	return &e, nil
}

func (r *eventRepo) LLMUsageByPurpose(ctx context.Context) ([]PurposeUsage, error) {
	var out []PurposeUsage
	err := r.db.WithContext(ctx).Model(&LLMEvent{}).
		Select(`purpose,
			COUNT(*) AS calls,
			COALESCE(SUM(input_tokens), 0) AS input_tokens,
			COALESCE(SUM(output_tokens), 0) AS output_tokens,
			CAST(COALESCE(AVG(latency_ms), 0) AS INTEGER) AS avg_latency_ms`).
		Group("purpose").
		Order("purpose").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("usage by purpose: %w", err)
	}
	return out, nil
}

func (r *eventRepo) LLMUsageByModel(ctx context.Context) ([]ModelUsage, error) {
	var out []ModelUsage
	err := r.db.WithContext(ctx).Model(&LLMEvent{}).
		Select(`model,
			COUNT(*) AS calls,
			COALESCE(SUM(input_tokens), 0) AS input_tokens,
			COALESCE(SUM(output_tokens), 0) AS output_tokens`).
		Where("success = ?", true).
		Group("model").
		Order("model").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("usage by model: %w", err)
	}
	return out, nil
}
