package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/marmos91/gfapi/internal/logger"
	"github.com/marmos91/gfapi/pkg/gfapi"
	"github.com/marmos91/gfapi/pkg/metrics"
	"github.com/marmos91/gfapi/pkg/native"
)

// metricsShutdownTimeout bounds the metrics server shutdown in Close.
const metricsShutdownTimeout = 5 * time.Second

// Connection is a client built from a Config together with the resources
// it was built on.
type Connection struct {
	Client *gfapi.Client

	// Metrics is nil when metrics are disabled
	Metrics *metrics.Server

	driver      native.Driver
	stopMetrics context.CancelFunc
	metricsDone chan error
}

// Connect applies the logging settings, builds the driver and the metrics
// stack from cfg and connects a client to the configured volume.
//
// ctx bounds driver construction (opening stores) only. The metrics server,
// when enabled, runs until Close.
func Connect(ctx context.Context, cfg *Config) (*Connection, error) {
	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}

	// Metrics first: store collectors register against the registry.
	m := InitializeMetrics(cfg)

	driver, err := CreateDriver(ctx, &cfg.Driver)
	if err != nil {
		return nil, err
	}

	opts := []gfapi.Option{
		gfapi.WithDriver(driver),
		gfapi.WithMetrics(m.ClientMetrics),
	}
	if cfg.Volume.SerializeCalls {
		opts = append(opts, gfapi.WithSerializedCalls())
	}
	if cfg.Throttle.OpsPerSecond > 0 {
		opts = append(opts, gfapi.WithThrottle(cfg.Throttle.OpsPerSecond, cfg.Throttle.Burst))
	}
	if cfg.Probe.Enabled {
		opts = append(opts, gfapi.WithProbe(cfg.Probe.Timeout))
	}
	if cfg.Volume.LogFile != "" {
		opts = append(opts, gfapi.WithVolfileLog(cfg.Volume.LogFile, cfg.Volume.LogLevel))
	}

	client, err := gfapi.Connect(cfg.Volume.Name, cfg.Volume.Server, cfg.Volume.Port, opts...)
	if err != nil {
		return nil, errors.Join(err, closeDriver(driver))
	}

	conn := &Connection{
		Client:  client,
		Metrics: m.Server,
		driver:  driver,
	}

	if m.Server != nil {
		mctx, cancel := context.WithCancel(context.Background())
		conn.stopMetrics = cancel
		conn.metricsDone = make(chan error, 1)
		go func() {
			conn.metricsDone <- m.Server.Start(mctx)
		}()
	}

	return conn, nil
}

// Close closes the client, stops the metrics server and releases the
// driver's resources. Open handles are released with the client.
func (c *Connection) Close() error {
	errs := []error{c.Client.Close()}

	// Cancelling the server context shuts the server down gracefully.
	if c.Metrics != nil {
		c.stopMetrics()
		select {
		case err := <-c.metricsDone:
			errs = append(errs, err)
		case <-time.After(metricsShutdownTimeout):
			errs = append(errs, fmt.Errorf("metrics server did not stop within %s", metricsShutdownTimeout))
		}
	}

	errs = append(errs, closeDriver(c.driver))
	return errors.Join(errs...)
}

func closeDriver(d native.Driver) error {
	if closer, ok := d.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
