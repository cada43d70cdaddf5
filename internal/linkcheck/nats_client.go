package linkcheck

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/docpublisher/internal/config"
	"git.home.luguber.info/inful/docpublisher/internal/logfields"
)

// NATSClient stores link results in a JetStream KV bucket and publishes
// broken link events to a JetStream subject.
type NATSClient struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	kv      jetstream.KeyValue
	subject string
	ttl     time.Duration
}

// NewNATSClient connects and ensures the KV bucket and event stream exist.
func NewNATSClient(ctx context.Context, cfg config.NATSConfig) (*NATSClient, error) {
	conn, err := nats.Connect(cfg.URL, nats.Name("docpublisher-linkcheck"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	client := &NATSClient{conn: conn, js: js, subject: cfg.Subject, ttl: cfg.TTLDuration()}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.initKVBucket(initCtx, cfg.Bucket); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize KV bucket: %w", err)
	}
	if err := client.initStream(initCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize event stream: %w", err)
	}

	slog.Info("NATS client initialized for link checking",
		logfields.URL(cfg.URL),
		slog.String("subject", cfg.Subject),
		slog.String("kv_bucket", cfg.Bucket))
	return client, nil
}

func (c *NATSClient) initKVBucket(ctx context.Context, bucket string) error {
	kv, err := c.js.KeyValue(ctx, bucket)
	if err == nil {
		c.kv = kv
		return nil
	}

	kv, err = c.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "Link check cache for docpublisher",
		MaxBytes:    100 * 1024 * 1024,
		History:     1,
		TTL:         c.ttl,
	})
	if err != nil {
		return fmt.Errorf("failed to create KV bucket: %w", err)
	}
	c.kv = kv
	slog.Info("Created KV bucket for link cache", slog.String("bucket", bucket))
	return nil
}

func (c *NATSClient) initStream(ctx context.Context) error {
	_, err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName(c.subject),
		Subjects: []string{c.subject},
		MaxAge:   7 * 24 * time.Hour,
	})
	return err
}

// streamName derives a valid stream name from the subject.
func streamName(subject string) string {
	r := strings.NewReplacer(".", "_", "*", "ALL", ">", "REST")
	return strings.ToUpper(r.Replace(subject))
}

// cacheKey hashes the URL; KV keys cannot hold ':' or '?'.
func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Get implements Cache.
func (c *NATSClient) Get(ctx context.Context, url string) (*CacheEntry, error) {
	entry, err := c.kv.Get(ctx, cacheKey(url))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	var cached CacheEntry
	if err := json.Unmarshal(entry.Value(), &cached); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	if c.ttl > 0 && time.Since(cached.LastChecked) >= c.ttl {
		return nil, nil
	}
	return &cached, nil
}

// Put implements Cache.
func (c *NATSClient) Put(ctx context.Context, entry *CacheEntry) error {
	if entry.LastChecked.IsZero() {
		entry.LastChecked = time.Now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if _, err := c.kv.Put(ctx, cacheKey(entry.URL), data); err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}
	return nil
}

// PublishBrokenLink implements EventPublisher.
func (c *NATSClient) PublishBrokenLink(ctx context.Context, event *BrokenLinkEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := c.js.Publish(ctx, c.subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	slog.Debug("Published broken link event", logfields.URL(event.URL), slog.String("page", event.Page))
	return nil
}

// Close drains and closes the connection.
func (c *NATSClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Drain()
}
