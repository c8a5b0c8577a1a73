package usecase

import (
	"context"

	"DigitFlow/internal/domain/models"
	drepo "DigitFlow/internal/domain/repository"
	mid "DigitFlow/internal/middleware"
)

// TickHandler is the trading side of the tick fan-out. The controller
// implements it.
type TickHandler interface {
	HandleTick(ctx context.Context, t *models.Tick)
}

// TickCollector reads the market stream and fans each tick out to the
// trading handler and, through the pipeline, to the journaling processor.
// The trading path is never blocked by journaling failures.
type TickCollector struct {
	stream  drepo.MarketStream
	proc    *TickProcessor
	handler TickHandler
	metrics drepo.Metrics
	pipe    *mid.TickPipeline
}

// NewTickCollector creates a new TickCollector instance.
func NewTickCollector(
	stream drepo.MarketStream,
	proc *TickProcessor,
	handler TickHandler,
	metrics drepo.Metrics,
	pipe *mid.TickPipeline,
) *TickCollector {
	return &TickCollector{stream: stream, proc: proc, handler: handler, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the market stream is connected.
func (c *TickCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *TickCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	tickCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, tickCh, errCh)
	return nil
}

func (c *TickCollector) consume(ctx context.Context, tickCh <-chan *models.Tick, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				// Stream channels close together when the socket drops.
				// Reconnect and resume on fresh channels.
				if ctx.Err() != nil {
					return
				}
				c.metrics.RecordError("stream")
				for c.stream.Reconnect(ctx) != nil {
					if ctx.Err() != nil {
						return
					}
					c.metrics.RecordError("stream_reconnect")
				}
				tickCh, errCh = c.stream.Read(ctx)
				continue
			}
			if err != nil {
				c.metrics.RecordError("stream")
			}
		case t, ok := <-tickCh:
			if !ok {
				tickCh = nil // errCh drives the reconnect
				continue
			}
			if t == nil {
				continue
			}
			// Trading first: the prediction pass must see the tick even
			// when the journal backend is down.
			if c.handler != nil {
				c.handler.HandleTick(ctx, t)
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, t)
			} else {
				_ = c.proc.Process(ctx, t)
			}
		}
	}
}

// Processor returns the underlying TickProcessor for lifecycle management.
func (c *TickCollector) Processor() *TickProcessor { return c.proc }

// Shutdown stops the pipeline and closes the stream.
func (c *TickCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
