package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is the subject root events are published under.
const DefaultSubjectPrefix = "uirun.runs"

// NATSConfig configures a NATS event sink.
type NATSConfig struct {
	URL           string
	Name          string
	SubjectPrefix string
	Timeout       time.Duration
}

// Publisher is the subset of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes each event as JSON on <prefix>.<runId>.<type>.
type NATSSink struct {
	pub    Publisher
	conn   *nats.Conn
	prefix string
	closed atomic.Bool
}

// NewNATSSink connects to NATS and returns a sink.
func NewNATSSink(cfg NATSConfig) (*NATSSink, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "uirun"
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	s := NewNATSSinkFromPublisher(conn, cfg.SubjectPrefix)
	s.conn = conn
	return s, nil
}

// NewNATSSinkFromPublisher wraps an existing connection or test double.
func NewNATSSinkFromPublisher(pub Publisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{pub: pub, prefix: strings.TrimSuffix(prefix, ".")}
}

// Subject returns the subject an event is published on. The run id becomes
// a single token: characters NATS treats specially are replaced with '_'.
func (s *NATSSink) Subject(ev Event) string {
	return fmt.Sprintf("%s.%s.%s", s.prefix, subjectToken(ev.RunID), ev.Type)
}

func subjectToken(id string) string {
	if id == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}

func (s *NATSSink) Emit(ev Event) error {
	if s.closed.Load() {
		return fmt.Errorf("nats sink closed")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.pub.Publish(s.Subject(ev), data); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Close drains the connection when the sink owns it.
func (s *NATSSink) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.conn != nil {
		return s.conn.Drain()
	}
	return nil
}
