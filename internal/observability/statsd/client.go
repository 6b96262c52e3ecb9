// Package statsd emits StatsD line-protocol metrics with DogStatsD-style tags.
package statsd

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultFlushInterval = time.Second
	// Fits a single Ethernet frame after IP and UDP headers.
	defaultMaxPacketSize = 1432
	defaultQueueSize     = 4096
)

// Sink describes the minimal interface required to emit StatsD-style metrics.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// Config describes how to connect to a StatsD-compatible sink.
type Config struct {
	Enabled       bool
	Address       string
	Prefix        string
	Logger        *slog.Logger
	GlobalTags    map[string]string
	FlushInterval time.Duration
	MaxPacketSize int
	QueueSize     int
}

// Client queues metric lines and a background loop packs them into
// newline-separated UDP packets. Emitting never blocks: when the queue is full
// the line is dropped and counted. A nil or disabled client drops everything.
type Client struct {
	prefix     string
	globalTags map[string]string
	logger     *slog.Logger
	maxPacket  int

	mu      sync.RWMutex
	closed  bool
	lines   chan string
	done    chan struct{}
	dropped atomic.Int64
}

var _ Sink = (*Client)(nil)

// NewClient dials the configured StatsD endpoint and starts the flush loop unless disabled.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := &Client{
		prefix:     sanitizePrefix(cfg.Prefix),
		globalTags: cleanTags(cfg.GlobalTags),
		logger:     logger.With("component", "statsd"),
		maxPacket:  positiveOr(cfg.MaxPacketSize, defaultMaxPacketSize),
	}

	address := strings.TrimSpace(cfg.Address)
	if !cfg.Enabled || address == "" {
		return client, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("statsd dial %s: %w", address, err)
	}

	client.lines = make(chan string, positiveOr(cfg.QueueSize, defaultQueueSize))
	client.done = make(chan struct{})
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	go client.loop(conn, interval)
	return client, nil
}

// Enabled reports whether the client actively emits metrics.
func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lines != nil && !c.closed
}

// Dropped returns how many lines were discarded because the queue was full.
func (c *Client) Dropped() int64 {
	if c == nil {
		return 0
	}
	return c.dropped.Load()
}

// Count increments a counter metric.
func (c *Client) Count(name string, value int64, tags map[string]string) {
	c.enqueue(name, strconv.FormatInt(value, 10)+"|c", tags)
}

// Gauge records the current value for a gauge metric.
func (c *Client) Gauge(name string, value float64, tags map[string]string) {
	c.enqueue(name, formatFloat(value)+"|g", tags)
}

// Timing records a timing metric in milliseconds.
func (c *Client) Timing(name string, value time.Duration, tags map[string]string) {
	c.enqueue(name, formatFloat(float64(value)/float64(time.Millisecond))+"|ms", tags)
}

// Close flushes queued lines and releases the UDP connection. It is idempotent.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	if c.closed || c.lines == nil {
		c.closed = true
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.lines)
	c.mu.Unlock()

	<-c.done
	return nil
}

func (c *Client) enqueue(name, payload string, tags map[string]string) {
	if c == nil {
		return
	}
	metric := c.metricName(name)
	if metric == "" {
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || c.lines == nil {
		return
	}
	select {
	case c.lines <- metric + ":" + payload + formatTags(c.globalTags, tags):
	default:
		c.dropped.Add(1)
	}
}

func (c *Client) loop(conn net.Conn, interval time.Duration) {
	defer close(c.done)
	defer func() {
		if err := conn.Close(); err != nil {
			c.logger.Debug("statsd close failed", "error", err)
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var buf bytes.Buffer
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		if _, err := conn.Write(buf.Bytes()); err != nil {
			c.logger.Debug("statsd write failed", "error", err)
		}
		buf.Reset()
	}

	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				flush()
				return
			}
			if buf.Len() > 0 && buf.Len()+1+len(line) > c.maxPacket {
				flush()
			}
			if buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(line)
		case <-ticker.C:
			flush()
		}
	}
}

func (c *Client) metricName(name string) string {
	normalized := normalizeMetricName(name)
	switch {
	case normalized == "":
		return ""
	case c.prefix == "":
		return normalized
	default:
		return c.prefix + "." + normalized
	}
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func sanitizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), ".")
}

// normalizeMetricName replaces spaces and slashes with underscores and collapses repeated dots.
func normalizeMetricName(name string) string {
	n := strings.NewReplacer(" ", "_", "/", "_").Replace(strings.TrimSpace(name))
	for strings.Contains(n, "..") {
		n = strings.ReplaceAll(n, "..", ".")
	}
	return strings.Trim(n, ".")
}

// formatTags merges global and local tags (local wins) into a sorted "|#k:v,..." suffix.
func formatTags(global, local map[string]string) string {
	merged := cleanTags(global)
	for k, v := range cleanTags(local) {
		merged[k] = v
	}
	if len(merged) == 0 {
		return ""
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("|#")
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(merged[k])
	}
	return b.String()
}

func cleanTags(tags map[string]string) map[string]string {
	cp := make(map[string]string, len(tags))
	for k, v := range tags {
		if key := strings.TrimSpace(k); key != "" {
			cp[key] = strings.TrimSpace(v)
		}
	}
	return cp
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
