package activity

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Multi fans an entry out to several recorders. A failing recorder is
// logged and never stops the others.
type Multi struct {
	recorders []Recorder
	logger    *zap.Logger
}

// NewMulti creates a fan-out over the non-nil recorders.
func NewMulti(logger *zap.Logger, recorders ...Recorder) *Multi {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Multi{logger: logger}
	for _, r := range recorders {
		if r != nil {
			m.recorders = append(m.recorders, r)
		}
	}
	return m
}

// Record implements Recorder. The returned error combines every failure.
func (m *Multi) Record(ctx context.Context, entry Entry) error {
	var errs error
	for _, r := range m.recorders {
		if err := r.Record(ctx, entry); err != nil {
			m.logger.Warn("Failed to record activity",
				zap.String("entry_id", entry.ID),
				zap.String("type", string(entry.Type)),
				zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// RecordAll records each entry in order.
func (m *Multi) RecordAll(ctx context.Context, entries []Entry) error {
	var errs error
	for _, e := range entries {
		errs = multierr.Append(errs, m.Record(ctx, e))
	}
	return errs
}
