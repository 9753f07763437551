package adsb

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/skyspot/skyspot/pkg/logger"
)

// SourceType selects which dump1090 output feed a Client reads.
type SourceType string

const (
	// SourceRaw is the "TCP raw output" feed of hex frames (port 30002).
	SourceRaw SourceType = "raw"
	// SourceSBS is the BaseStation CSV feed of decoded fields (port 30003).
	SourceSBS SourceType = "sbs"
)

// ClientConfig holds the connection settings for a receiver feed.
type ClientConfig struct {
	Host              string
	Port              int
	Source            SourceType
	DialTimeout       time.Duration
	ReconnectInterval time.Duration
}

// Client reads a receiver feed over TCP and turns its lines into reports.
// It reconnects on failure, pacing attempts with a rate limiter. Malformed
// lines are dropped at this boundary.
type Client struct {
	cfg     ClientConfig
	decoder Decoder
	logger  *logger.Logger
	limiter *rate.Limiter
	reports chan *Report
}

func NewClient(cfg ClientConfig, decoder Decoder, log *logger.Logger) (*Client, error) {
	switch cfg.Source {
	case SourceRaw:
		if decoder == nil {
			return nil, fmt.Errorf("adsb: raw source requires a decoder")
		}
	case SourceSBS:
	default:
		return nil, fmt.Errorf("adsb: unknown source type %q", cfg.Source)
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	return &Client{
		cfg:     cfg,
		decoder: decoder,
		logger:  log.Named("adsb-client"),
		limiter: rate.NewLimiter(rate.Every(cfg.ReconnectInterval), 1),
		reports: make(chan *Report, 64),
	}, nil
}

// Reports returns the stream of decoded reports. The channel is closed when
// Run returns.
func (c *Client) Reports() <-chan *Report {
	return c.reports
}

// Run connects to the feed and delivers reports until the context is
// cancelled. Connection failures are logged and retried.
func (c *Client) Run(ctx context.Context) {
	defer close(c.reports)

	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}

		conn, err := net.DialTimeout("tcp", addr, c.cfg.DialTimeout)
		if err != nil {
			c.logger.Warn("Failed to connect to receiver",
				logger.String("address", addr),
				logger.Error(err))
			continue
		}

		c.logger.Info("Connected to receiver",
			logger.String("address", addr),
			logger.String("source", string(c.cfg.Source)))

		err = c.consume(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("Receiver connection lost",
			logger.String("address", addr),
			logger.Error(err))
	}
}

func (c *Client) consume(ctx context.Context, conn net.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		rep, err := c.parseLine(line)
		if err != nil {
			c.logger.Debug("Dropping malformed line", logger.Error(err))
			continue
		}
		if rep == nil {
			continue
		}
		rep.Time = time.Now().UTC()

		select {
		case c.reports <- rep:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("adsb: receiver closed the connection")
}

func (c *Client) parseLine(line []byte) (*Report, error) {
	if c.cfg.Source == SourceSBS {
		return parseSBSLine(string(line), time.Now().UTC())
	}
	payload, err := UnwrapFrame(line)
	if err != nil {
		return nil, err
	}
	return c.decoder.Decode(payload)
}

// UnwrapFrame strips the '*<hex>;' framing of the raw output feed and
// returns the hex payload.
func UnwrapFrame(line []byte) ([]byte, error) {
	if len(line) < 15 {
		return nil, fmt.Errorf("adsb: frame too short (%d bytes)", len(line))
	}
	if line[0] != '*' || line[len(line)-1] != ';' {
		return nil, fmt.Errorf("adsb: missing frame markers")
	}
	return line[1 : len(line)-1], nil
}
