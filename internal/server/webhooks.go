package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dawin/internal/config"
	"dawin/internal/domain"
	"dawin/internal/engine"
)

const (
	defaultWebhookInterval = 5 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
)

// webhookForwarder tails the audit log of every tenant and posts new entries
// to the webhooks declared in that tenant's config. Cursors start at the
// latest entry so only activity after startup is forwarded.
type webhookForwarder struct {
	engine  engine.Engine
	client  *http.Client
	log     zerolog.Logger
	mu      sync.Mutex
	cursors map[string]int64
}

// StartWebhookForwarder runs the forwarder loop until the returned stop
// function is called.
func StartWebhookForwarder(e engine.Engine, interval time.Duration, log zerolog.Logger) func() {
	if interval <= 0 {
		interval = defaultWebhookInterval
	}
	f := &webhookForwarder{
		engine:  e,
		client:  &http.Client{Timeout: defaultWebhookTimeout},
		log:     log,
		cursors: make(map[string]int64),
	}
	done := make(chan struct{})
	go f.run(interval, done)
	return func() { close(done) }
}

func (f *webhookForwarder) run(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		f.dispatchAll()
		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
}

func (f *webhookForwarder) dispatchAll() {
	ctx := context.Background()
	tenants, err := f.engine.Repo.ListTenants(ctx)
	if err != nil {
		f.log.Warn().Err(err).Msg("webhook: list tenants failed")
		return
	}
	for _, tenant := range tenants {
		cfg, err := f.engine.Repo.GetTenantConfig(ctx, tenant.ID)
		if err != nil {
			f.log.Warn().Err(err).Str("tenant", tenant.ID).Msg("webhook: load config failed")
			continue
		}
		for i, hook := range cfg.Webhooks {
			if strings.TrimSpace(hook.URL) == "" {
				continue
			}
			f.dispatchHook(ctx, tenant.ID, i, hook)
		}
	}
}

func (f *webhookForwarder) dispatchHook(ctx context.Context, tenantID string, idx int, hook config.Webhook) {
	key := tenantID + "#" + strconv.Itoa(idx)
	cursor := f.cursorFor(ctx, key, tenantID)
	entries, err := f.engine.Repo.AuditAfter(ctx, tenantID, cursor, defaultWebhookBatch)
	if err != nil {
		f.log.Warn().Err(err).Str("tenant", tenantID).Msg("webhook: fetch audit entries failed")
		return
	}
	if len(entries) == 0 {
		return
	}
	filter := newAuditFilter(hook.Events)
	for _, entry := range entries {
		if !filter.match(entry.Type) {
			f.setCursor(key, entry.ID)
			continue
		}
		if err := f.postEntry(ctx, tenantID, hook, entry); err != nil {
			f.log.Warn().Err(err).
				Str("tenant", tenantID).
				Str("webhook", hook.Name).
				Str("url", hook.URL).
				Msg("webhook: delivery failed")
			f.engine.Metrics.IncWebhookDelivery("error")
			return
		}
		f.setCursor(key, entry.ID)
		f.engine.Metrics.IncWebhookDelivery("ok")
	}
}

func (f *webhookForwarder) cursorFor(ctx context.Context, key, tenantID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.cursors[key]; ok {
		return cur
	}
	cur, err := f.engine.Repo.LatestAuditID(ctx, tenantID)
	if err != nil {
		f.log.Warn().Err(err).Str("tenant", tenantID).Msg("webhook: init cursor failed")
		cur = 0
	}
	f.cursors[key] = cur
	return cur
}

func (f *webhookForwarder) setCursor(key string, value int64) {
	f.mu.Lock()
	f.cursors[key] = value
	f.mu.Unlock()
}

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	TenantID   string          `json:"tenant_id"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func (f *webhookForwarder) postEntry(ctx context.Context, tenantID string, hook config.Webhook, entry domain.AuditEntry) error {
	payload := json.RawMessage([]byte("{}"))
	if entry.Payload != "" && json.Valid([]byte(entry.Payload)) {
		payload = json.RawMessage([]byte(entry.Payload))
	}
	body := webhookEvent{
		ID:         entry.ID,
		Type:       entry.Type,
		TenantID:   tenantID,
		EntityKind: entry.EntityKind,
		EntityID:   entry.EntityID,
		ActorID:    entry.ActorID,
		TS:         entry.TS,
		Payload:    payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Dawin-Event", entry.Type)
	req.Header.Set("X-Dawin-Delivery", fmt.Sprintf("%d", entry.ID))
	req.Header.Set("X-Dawin-Tenant", tenantID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Dawin-Secret", hook.Secret)
	}
	res, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(errBody)))
	}
	return nil
}

// auditFilter matches audit entry types. Empty or containing "all" forwards
// every entry.
type auditFilter struct {
	all bool
	set map[string]struct{}
}

func newAuditFilter(events []string) auditFilter {
	if len(events) == 0 {
		return auditFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		if key == "all" {
			return auditFilter{all: true}
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return auditFilter{all: true}
	}
	return auditFilter{set: set}
}

func (f auditFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
