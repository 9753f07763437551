package ptz

import (
	"context"
	"errors"
	"time"

	"github.com/skyspot/skyspot/internal/tracker"
	"github.com/skyspot/skyspot/pkg/logger"
)

// Commander drains the aim queue and drives the pointer. Moves can block for
// seconds, which is why it runs apart from ingestion: the queue hands it the
// latest aim point only, never a backlog.
type Commander struct {
	pointer Pointer
	queue   *tracker.Queue
	logger  *logger.Logger
	backoff time.Duration
}

func NewCommander(pointer Pointer, queue *tracker.Queue, backoff time.Duration, log *logger.Logger) *Commander {
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	return &Commander{
		pointer: pointer,
		queue:   queue,
		logger:  log.Named("commander"),
		backoff: backoff,
	}
}

// Run consumes aim points until the context is cancelled. Device-reported
// command failures are logged and skipped; transport failures pause
// consumption briefly before trying the next aim point.
func (c *Commander) Run(ctx context.Context) {
	for {
		aim, err := c.queue.Get(ctx)
		if err != nil {
			return
		}

		// Degenerate geometry has no pose to command.
		if aim.AzimuthDeg == nil || aim.AltitudeDeg == nil {
			c.logger.Debug("Skipping aim point without a defined pose",
				logger.String("hex", aim.Hex))
			continue
		}

		az, alt, err := c.pointer.MoveTo(ctx, *aim.AzimuthDeg, *aim.AltitudeDeg)
		if err != nil {
			var cmdErr *CommandError
			if errors.As(err, &cmdErr) {
				c.logger.Warn("Mount rejected aim point",
					logger.String("hex", aim.Hex),
					logger.Error(err))
				continue
			}
			c.logger.Error("Mount unreachable",
				logger.String("hex", aim.Hex),
				logger.Error(err))
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		c.logger.Debug("Pointed at target",
			logger.String("hex", aim.Hex),
			logger.Float("azimuth", az),
			logger.Float("altitude", alt),
			logger.Float("distance_m", aim.DistanceM))
	}
}
