// Package ingest consumes IR streams shipped by remote producers over
// JetStream and writes them into archives.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gftdcojp/logvault/internal/archive"
	"github.com/gftdcojp/logvault/internal/config"
	"github.com/gftdcojp/logvault/internal/irstream"
	"github.com/gftdcojp/logvault/internal/metrics"
	"github.com/gftdcojp/logvault/internal/tspattern"
	"github.com/gftdcojp/logvault/internal/types"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// origPathHeader names the producer's original log path in message
// headers; the subject is used when absent.
const origPathHeader = "Logvault-Orig-Path"

// PipelineConfig holds dependencies for the ingest pipeline.
type PipelineConfig struct {
	JS         jetstream.JetStream
	Stream     config.StreamConfig
	ArchiveCfg config.ArchiveConfig
	// NewWriter opens the pipeline's next archive. Each pipeline owns its
	// writer exclusively; archives are single-writer.
	NewWriter func() (*archive.Writer, error)
	Logger    *zap.Logger
}

// Pipeline pulls IR payloads from one JetStream stream into an archive.
// Each message payload carries a complete IR stream; its events become one
// archive file. When the archive's stable uncompressed size crosses the
// configured target the archive is closed and a fresh one opened, so
// sealed archives become searchable while ingestion continues.
type Pipeline struct {
	js         jetstream.JetStream
	streamCfg  config.StreamConfig
	archiveCfg config.ArchiveConfig
	newWriter  func() (*archive.Writer, error)
	writer     *archive.Writer
	logger     *zap.Logger
}

// NewPipeline creates a new ingest pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		js:         cfg.JS,
		streamCfg:  cfg.Stream,
		archiveCfg: cfg.ArchiveCfg,
		newWriter:  cfg.NewWriter,
		logger:     cfg.Logger,
	}
}

// Run starts the ingest loop, consuming from JetStream until the context
// ends.
func (p *Pipeline) Run(ctx context.Context) error {
	consumerCfg := jetstream.ConsumerConfig{
		Durable:       p.streamCfg.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	}
	if len(p.streamCfg.Subjects) > 0 {
		consumerCfg.FilterSubjects = p.streamCfg.Subjects
	}

	cons, err := p.js.CreateOrUpdateConsumer(ctx, p.streamCfg.Name, consumerCfg)
	if err != nil {
		return fmt.Errorf("creating consumer %s on stream %s: %w", p.streamCfg.ConsumerName, p.streamCfg.Name, err)
	}

	if p.writer, err = p.newWriter(); err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer func() {
		if p.writer != nil {
			if err := p.writer.Close(); err != nil {
				p.logger.Error("closing archive", zap.Error(err))
			}
		}
	}()

	fetchTimeout := p.streamCfg.FetchTimeout.Duration()
	if fetchTimeout == 0 {
		fetchTimeout = 5 * time.Second
	}
	batchSize := p.streamCfg.FetchBatch
	if batchSize == 0 {
		batchSize = 64
	}

	p.logger.Info("ingest pipeline started",
		zap.String("stream", p.streamCfg.Name),
		zap.String("consumer", p.streamCfg.ConsumerName),
		zap.Int("fetch_batch", batchSize),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := cons.Fetch(batchSize, jetstream.FetchMaxWait(fetchTimeout))
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			p.logger.Warn("fetch error, retrying", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for msg := range msgs.Messages() {
			if err := p.maybeRotate(); err != nil {
				return err
			}
			if err := p.ingestIRPayload(msg); err != nil {
				p.logger.Error("dropping undecodable IR payload",
					zap.String("subject", msg.Subject()),
					zap.Error(err),
				)
				// Poison payloads are terminated rather than redelivered
				// forever
				msg.Term()
				continue
			}
			if err := msg.Ack(); err != nil {
				p.logger.Warn("failed to ack message", zap.Error(err))
			}
		}
		if err := msgs.Error(); err != nil && !errors.Is(err, jetstream.ErrNoMessages) {
			p.logger.Warn("batch error", zap.Error(err))
		}
	}
}

// maybeRotate closes the current archive and opens a fresh one once the
// stable uncompressed size crosses the configured target.
func (p *Pipeline) maybeRotate() error {
	target := uint64(p.archiveCfg.TargetArchiveSize)
	if target == 0 || p.writer.StableUncompressedSize() < target {
		return nil
	}
	old := p.writer.ID()
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("closing archive %s: %w", old, err)
	}
	w, err := p.newWriter()
	if err != nil {
		return fmt.Errorf("opening next archive: %w", err)
	}
	p.writer = w
	p.logger.Info("archive rotated",
		zap.String("closed", old),
		zap.String("opened", w.ID()),
	)
	return nil
}

// ingestIRPayload decodes one IR stream payload into a new archive file.
func (p *Pipeline) ingestIRPayload(msg jetstream.Msg) error {
	dec := irstream.NewDecoder()
	dec.Feed(msg.Data())

	if _, err := dec.DecodeEncodingType(); err != nil {
		return err
	}
	info, _, err := dec.DecodePreamble()
	if err != nil {
		return err
	}

	origPath := msg.Subject()
	if hdrs := msg.Headers(); hdrs != nil {
		if v := hdrs.Get(origPathHeader); v != "" {
			origPath = v
		}
	}

	if err := p.writer.CreateAndOpenFile(origPath, types.GroupID(p.streamCfg.GroupID), uuid.New(), 0); err != nil {
		return err
	}
	if err := p.decodeIntoFile(dec, info); err != nil {
		// The partially-built file is unusable; drop it so the next
		// payload can open a fresh one
		p.writer.AbandonFile()
		return err
	}
	return nil
}

// decodeIntoFile drains the decoder's events into the writer's open file
// and appends the file to a segment.
func (p *Pipeline) decodeIntoFile(dec *irstream.Decoder, info irstream.TimestampInfo) error {
	pattern, err := patternFromIRInfo(info)
	if err == nil {
		if err := p.writer.ChangeTsPattern(pattern); err != nil {
			return err
		}
	}

	numEvents := 0
	for {
		text, ts, err := dec.DecodeNextMessage()
		if errors.Is(err, types.ErrEndOfFile) {
			break
		}
		if errors.Is(err, types.ErrIncompleteIR) {
			// The payload is one self-contained stream; running out of
			// bytes mid-event means it was truncated in flight.
			return fmt.Errorf("%w: truncated IR payload", types.ErrIncompleteIR)
		}
		if err != nil {
			return err
		}
		if err := p.writer.WriteMsg(ts, text, uint64(len(text))+1); err != nil {
			return err
		}
		numEvents++
		metrics.IREventsDecoded.WithLabelValues(p.streamCfg.Name).Inc()
	}

	if err := p.writer.AppendFileToSegment(); err != nil {
		return err
	}
	metrics.MessagesIngested.WithLabelValues(p.writer.ID()).Add(float64(numEvents))
	return nil
}

// patternFromIRInfo maps the IR preamble's timestamp metadata onto a
// pattern usable at decompression time.
func patternFromIRInfo(info irstream.TimestampInfo) (tspattern.Pattern, error) {
	if info.TimestampPattern == "" {
		return tspattern.Pattern{}, fmt.Errorf("no timestamp pattern in IR metadata")
	}
	return tspattern.Pattern{Format: info.TimestampPattern}, nil
}
