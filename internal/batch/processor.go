// Package batch runs stored payload datasets through the rewriting
// pipeline offline and writes one JSONL result per record.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/raaihank/pii-sentinel/internal/adapter"
	"github.com/raaihank/pii-sentinel/internal/pipeline"
	"go.uber.org/zap"
)

// Processor reads a dataset, fans records out to workers and writes the
// results in input order.
type Processor struct {
	orch   *pipeline.Orchestrator
	config *Config
	logger *zap.Logger
}

type job struct {
	line   int64
	record Record
}

// NewProcessor creates a processor. Zero config values get defaults.
func NewProcessor(orch *pipeline.Orchestrator, config *Config, logger *zap.Logger) *Processor {
	if config == nil {
		config = &Config{}
	}
	cfg := *config
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 16
	}
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{orch: orch, config: &cfg, logger: logger.With(zap.String("component", "batch"))}
}

// ProcessFile processes a dataset file (CSV, Parquet or JSONL) and writes
// results to out.
func (p *Processor) ProcessFile(ctx context.Context, filePath string, out io.Writer) (*Result, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	format := DetectFileFormat(filePath)
	p.logger.Info("Starting batch run",
		zap.String("file", filePath),
		zap.String("format", string(format)),
		zap.Int("workers", p.config.Workers))

	read := func(emit emitFunc) error {
		switch format {
		case FormatParquet:
			return readParquet(file, emit)
		case FormatJSONL:
			return readJSONL(file, emit)
		default:
			return readCSV(file, emit)
		}
	}
	return p.run(ctx, read, out)
}

// Process runs records already in memory.
func (p *Processor) Process(ctx context.Context, records []Record, out io.Writer) (*Result, error) {
	read := func(emit emitFunc) error {
		for _, rec := range records {
			if err := emit(rec); err != nil {
				return err
			}
		}
		return nil
	}
	return p.run(ctx, read, out)
}

func (p *Processor) run(ctx context.Context, read func(emitFunc) error, out io.Writer) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	result := &Result{}

	jobs := make(chan job, p.config.QueueSize)
	outputs := make(chan Output, p.config.QueueSize)

	var wg sync.WaitGroup
	for i := 0; i < p.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				select {
				case outputs <- p.processRecord(j):
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	readErr := make(chan error, 1)
	go func() {
		defer close(jobs)
		var line int64
		readErr <- read(func(rec Record) error {
			line++
			select {
			case jobs <- job{line: line, record: rec}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	go func() {
		wg.Wait()
		close(outputs)
	}()

	writeErr := p.writeOrdered(ctx, outputs, out, result)
	if writeErr != nil {
		cancel()
		for range outputs {
		}
	}

	err := <-readErr
	result.Duration = time.Since(start)

	if writeErr != nil {
		return result, fmt.Errorf("failed to write results: %w", writeErr)
	}
	if err != nil {
		return result, err
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	p.logger.Info("Batch run completed",
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("substitutions", result.Substitutions),
		zap.Int64("keys_found", result.KeysFound),
		zap.Duration("total_duration", result.Duration))

	return result, nil
}

// writeOrdered buffers out-of-order outputs until the next expected line
// arrives.
func (p *Processor) writeOrdered(ctx context.Context, outputs <-chan Output, out io.Writer, result *Result) error {
	encoder := json.NewEncoder(out)
	encoder.SetEscapeHTML(false)

	pending := make(map[int64]Output)
	next := int64(1)

	for o := range outputs {
		pending[o.Line] = o
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++

			p.tally(result, ready)
			if err := encoder.Encode(ready); err != nil {
				return err
			}
			if p.config.ProgressReport > 0 && result.TotalRecords%p.config.ProgressReport == 0 {
				p.logger.Info("Batch progress",
					zap.Int64("records", result.TotalRecords),
					zap.Int64("failed", result.ProcessedFailed))
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

func (p *Processor) tally(result *Result, o Output) {
	result.TotalRecords++
	if !o.Success {
		result.ProcessedFailed++
		if len(result.Errors) < p.config.MaxErrors {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %s", o.Line, o.Error))
		}
		return
	}
	result.ProcessedOK++
	result.Substitutions += int64(o.Substitutions)
	result.Redactions += int64(o.Redactions)
	result.KeysFound += int64(o.KeysFound)
	if o.NeedsConfirmation {
		result.Held++
	}
}

func (p *Processor) processRecord(j job) Output {
	rec := j.record
	out := Output{
		Line:      j.line,
		ID:        rec.ID,
		Direction: rec.Direction,
		Body:      rec.Body,
		Kind:      adapter.KindNone.String(),
	}

	service := resolveService(rec.Service)
	out.Service = string(service)

	direction, ok := ParseDirection(rec.Direction)
	if !ok {
		out.Error = fmt.Sprintf("unknown direction %q", rec.Direction)
		return out
	}
	out.Direction = string(direction)

	if direction == DirectionResponse {
		res := p.orch.ProcessResponse(pipeline.ResponseRequest{Payload: []byte(rec.Body), Service: service})
		out.Success = res.Success
		out.Error = res.Error
		out.Kind = res.Kind.String()
		out.Body = string(res.Payload)
		out.Substitutions = len(res.Substitutions)
		return out
	}

	res := p.orch.ProcessRequest(pipeline.Request{
		Payload:  []byte(rec.Body),
		Service:  service,
		Decision: pipeline.Decision(p.config.Decision),
	})
	out.Success = res.Success
	out.Error = res.Error
	out.Kind = res.Kind.String()
	out.Body = string(res.Payload)
	out.Substitutions = len(res.Substitutions)
	out.Redactions = len(res.Redactions)
	out.KeysFound = res.KeyCount()
	out.KeysRedacted = res.KeysRedacted
	out.NeedsConfirmation = res.NeedsConfirmation
	return out
}

// resolveService accepts a service name or a URL.
func resolveService(s string) adapter.Service {
	if service := adapter.ParseService(s); service != adapter.ServiceUnknown {
		return service
	}
	return adapter.DetectService(s)
}
