package invalidation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kbukum/flowgate/component"
	"github.com/kbukum/flowgate/logger"
)

// Event describes a finished execution.
type Event struct {
	WorkflowID  string    `json:"workflowId"`
	UserID      string    `json:"userId"`
	ExecutionID string    `json:"executionId"`
	Status      string    `json:"status"`
	At          time.Time `json:"at"`
}

// Notifier is the cache-invalidation collaborator.
type Notifier interface {
	Invalidate(ctx context.Context, e Event) error
}

// Nop discards events.
type Nop struct{}

// Invalidate implements Notifier.
func (Nop) Invalidate(context.Context, Event) error { return nil }

// Publisher is the subset of *nats.Conn used by NATSNotifier.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Config configures the NATS connection.
type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	Name          string        `mapstructure:"name"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Token         string        `mapstructure:"token"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.Name == "" {
		c.Name = "flowgate"
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "flowgate"
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 10
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
}

// NATSNotifier publishes events over NATS.
type NATSNotifier struct {
	pub    Publisher
	prefix string
	log    *logger.Logger
}

// NewNATSNotifier creates a notifier on pub.
func NewNATSNotifier(pub Publisher, prefix string, log *logger.Logger) *NATSNotifier {
	if log == nil {
		log = logger.NewNop()
	}
	return &NATSNotifier{pub: pub, prefix: prefix, log: log.WithComponent("invalidation")}
}

// Subject returns the subject for a workflow.
func (n *NATSNotifier) Subject(workflowID string) string {
	return fmt.Sprintf("%s.workflow.%s", n.prefix, workflowID)
}

// Invalidate implements Notifier.
func (n *NATSNotifier) Invalidate(_ context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("invalidation: encode: %w", err)
	}
	if err := n.pub.Publish(n.Subject(e.WorkflowID), data); err != nil {
		return fmt.Errorf("invalidation: publish: %w", err)
	}
	return nil
}

// Component owns the NATS connection and exposes a Notifier.
type Component struct {
	cfg Config
	log *logger.Logger

	mu   sync.Mutex
	conn *nats.Conn
}

var (
	_ component.Component = (*Component)(nil)
	_ Notifier            = (*Component)(nil)
)

// NewComponent creates a NATS component.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	cfg.ApplyDefaults()
	return &Component{cfg: cfg, log: log.WithComponent("nats")}
}

// Name returns the component name.
func (c *Component) Name() string { return "nats" }

// Start connects to NATS.
func (c *Component) Start(_ context.Context) error {
	opts := []nats.Option{
		nats.Name(c.cfg.Name),
		nats.MaxReconnects(c.cfg.MaxReconnects),
		nats.ReconnectWait(c.cfg.ReconnectWait),
		nats.Timeout(c.cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.log.Warn("NATS disconnected", logger.ErrorFields("disconnect", err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.log.Info("NATS reconnected", map[string]interface{}{"url": nc.ConnectedUrl()})
		}),
	}
	if c.cfg.Token != "" {
		opts = append(opts, nats.Token(c.cfg.Token))
	}

	conn, err := nats.Connect(c.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Stop drains and closes the connection.
func (c *Component) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Drain()
	c.conn = nil
	return err
}

// Health reports the connection status.
func (c *Component) Health(_ context.Context) component.Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.conn.IsConnected() {
		return component.Health{Name: c.Name(), Status: component.StatusDegraded, Message: "not connected"}
	}
	return component.Health{Name: c.Name(), Status: component.StatusHealthy}
}

// Describe returns a startup summary.
func (c *Component) Describe() component.Description {
	return component.Description{Name: "NATS", Type: "nats", Details: c.cfg.URL + " subject=" + c.cfg.SubjectPrefix + ".workflow.*"}
}

// Invalidate publishes through the live connection; before Start it is a no-op.
func (c *Component) Invalidate(ctx context.Context, e Event) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return NewNATSNotifier(conn, c.cfg.SubjectPrefix, c.log).Invalidate(ctx, e)
}
