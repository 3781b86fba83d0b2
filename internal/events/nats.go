// Package events publishes store lifecycle events to NATS JetStream for
// external observers. The bridge is optional; the store's in-process
// subscriptions work without it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/lumenote-ai/notebook-platform/internal/model"
	"github.com/lumenote-ai/notebook-platform/internal/store"
	"github.com/lumenote-ai/notebook-platform/pkg/logger"
)

const (
	// StreamName is the name of the space lifecycle stream.
	StreamName = "SPACES"

	// SubjectPrefix is the prefix for all space event subjects.
	SubjectPrefix = "space"
)

// Config holds NATS connection configuration.
type Config struct {
	URL   string
	Token string
}

// Bridge forwards store events to JetStream.
type Bridge struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	store  *store.Store
	logger *logger.Logger
}

// Connect establishes the NATS connection and ensures the stream exists.
func Connect(ctx context.Context, cfg Config, st *store.Store, log *logger.Logger) (*Bridge, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	b := &Bridge{conn: nc, js: js, store: st, logger: log}
	if err := b.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bridge) ensureStream(ctx context.Context) error {
	if _, err := b.js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := b.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Space lifecycle events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// EventSubject returns the subject for a store event.
func EventSubject(evt model.StoreEvent) string {
	notebook := evt.NotebookID
	if notebook == "" {
		notebook = "_"
	}
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, notebook, evt.Type)
}

// Run drains store events into JetStream until the context is done or the
// store closes. Publish failures are logged and skipped; eventing is not on
// the store's critical path.
func (b *Bridge) Run(ctx context.Context) {
	events := b.store.Subscribe(64)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				b.logger.Error("failed to marshal store event", zap.Error(err))
				continue
			}
			if _, err := b.js.Publish(ctx, EventSubject(evt), data); err != nil {
				b.logger.Warn("failed to publish store event",
					zap.String("type", string(evt.Type)), zap.Error(err))
			}
		}
	}
}

// IsConnected reports connection health for readiness checks.
func (b *Bridge) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

// Close closes the NATS connection.
func (b *Bridge) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}
