// Package cxdb provides a sink that persists crash reports to cxdb as
// SystemMessage items.
package cxdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	cxdbclient "github.com/strongdm/ai-cxdb/clients/go"
	cxdtypes "github.com/strongdm/ai-cxdb/clients/go/types"

	"github.com/strongdm/crashkit/pkg/crashkit/report"
)

// CXDBClient is the subset of the cxdb client the sink uses.
// *cxdbclient.Client satisfies it.
type CXDBClient interface {
	CreateContext(ctx context.Context, baseTurnID uint64) (*cxdbclient.ContextHead, error)
	AppendTurn(ctx context.Context, req *cxdbclient.AppendRequest) (*cxdbclient.AppendResult, error)
}

// DefaultClientTag tags contexts the sink creates.
const DefaultClientTag = "crashkit"

// DefaultLabels label contexts the sink creates.
var DefaultLabels = []string{"crash", "unlinked"}

const (
	maxTitleLen        = 100
	maxTitleMessageLen = 80
)

// CXDBSinkOption configures the cxdb sink.
type CXDBSinkOption func(*cxdbSinkConfig)

type cxdbSinkConfig struct {
	labels    []string
	clientTag string
	contextID *uint64
}

// WithLabels sets the labels of contexts the sink creates.
func WithLabels(labels []string) CXDBSinkOption {
	return func(c *cxdbSinkConfig) {
		c.labels = labels
	}
}

// WithClientTag sets the client tag of contexts the sink creates.
func WithClientTag(tag string) CXDBSinkOption {
	return func(c *cxdbSinkConfig) {
		if tag != "" {
			c.clientTag = tag
		}
	}
}

// WithContextID appends reports without their own context ID to an existing
// context instead of creating one per report.
func WithContextID(id uint64) CXDBSinkOption {
	return func(c *cxdbSinkConfig) {
		c.contextID = &id
	}
}

type cxdbSink struct {
	client    CXDBClient
	labels    []string
	clientTag string
	contextID *uint64
}

// NewCXDBSink creates a sink that writes to cxdb.
func NewCXDBSink(client CXDBClient, opts ...CXDBSinkOption) report.Sink {
	cfg := &cxdbSinkConfig{
		labels:    append([]string(nil), DefaultLabels...),
		clientTag: DefaultClientTag,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &cxdbSink{
		client:    client,
		labels:    cfg.labels,
		clientTag: cfg.clientTag,
		contextID: cfg.contextID,
	}
}

// Write appends r as one turn. The target context is the report's own, then
// the sink's configured one; otherwise a new labelled context is created.
func (s *cxdbSink) Write(ctx context.Context, r report.Report) error {
	var contextID uint64
	created := false

	switch {
	case r.ContextID != nil:
		contextID = *r.ContextID
	case s.contextID != nil:
		contextID = *s.contextID
	default:
		head, err := s.client.CreateContext(ctx, 0)
		if err != nil {
			return fmt.Errorf("create context: %w", err)
		}
		contextID = head.ContextID
		created = true
	}

	item := s.buildConversationItem(r, created)

	payload, err := cxdbclient.EncodeMsgpack(item)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req := &cxdbclient.AppendRequest{
		ContextID:      contextID,
		ParentTurnID:   0,
		TypeID:         cxdtypes.TypeIDConversationItem,
		TypeVersion:    cxdtypes.TypeVersionConversationItem,
		Payload:        payload,
		IdempotencyKey: r.EventID,
	}
	if _, err := s.client.AppendTurn(ctx, req); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (s *cxdbSink) buildConversationItem(r report.Report, created bool) *cxdtypes.ConversationItem {
	item := &cxdtypes.ConversationItem{
		ItemType:  cxdtypes.ItemTypeSystem,
		Status:    cxdtypes.ItemStatusComplete,
		Timestamp: r.Timestamp.UnixMilli(),
		ID:        r.EventID,
		System: &cxdtypes.SystemMessage{
			Kind:    cxdtypes.SystemKindError,
			Title:   title(r),
			Content: buildDetails(r),
		},
	}

	// cxdb reads context metadata from the first turn only.
	if created {
		item.ContextMetadata = &cxdtypes.ContextMetadata{
			Labels:    s.labels,
			ClientTag: s.clientTag,
		}
	}
	return item
}

// title renders "<severity> <error type>: <message>", truncated.
func title(r report.Report) string {
	msg := r.Message
	if r.ErrorType != "" {
		msg = strings.TrimPrefix(msg, r.ErrorType+": ")
	}
	if len(msg) > maxTitleMessageLen {
		msg = report.Truncate(msg, maxTitleMessageLen) + "..."
	}

	t := string(r.Severity)
	if r.ErrorType != "" {
		t += " " + r.ErrorType
	}
	if msg != "" {
		t += ": " + msg
	}
	if len(t) > maxTitleLen {
		t = report.Truncate(t, maxTitleLen-3) + "..."
	}
	return t
}

type frameDetails struct {
	Class  string `json:"class"`
	Method string `json:"method"`
	File   string `json:"file"`
	Line   int    `json:"line"`
}

type throwableDetails struct {
	Message string         `json:"message"`
	Frames  []frameDetails `json:"frames,omitempty"`
}

type breadcrumbDetails struct {
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

type systemDetails struct {
	MemoryBytes    int64  `json:"memory_bytes"`
	GoroutineCount int    `json:"goroutine_count"`
	UptimeMs       int64  `json:"uptime_ms"`
	HostName       string `json:"host_name"`
	GoVersion      string `json:"go_version,omitempty"`
	Platform       string `json:"platform,omitempty"`
	MaxProcs       int    `json:"gomaxprocs,omitempty"`
	CPUs           int    `json:"cpus,omitempty"`
	PID            int    `json:"pid,omitempty"`
	SysBytes       uint64 `json:"sys_bytes,omitempty"`
	GCCycles       uint32 `json:"gc_cycles,omitempty"`
}

type userDetails struct {
	Identifier string `json:"identifier,omitempty"`
	Email      string `json:"email,omitempty"`
	Name       string `json:"name,omitempty"`
}

type details struct {
	EventID     string              `json:"event_id"`
	Severity    string              `json:"severity"`
	ErrorType   string              `json:"error_type"`
	Message     string              `json:"message"`
	Fingerprint string              `json:"fingerprint"`
	SDKVersion  string              `json:"sdk_version,omitempty"`
	StackTrace  string              `json:"stack_trace,omitempty"`
	Chain       []throwableDetails  `json:"chain,omitempty"`
	Keys        map[string]string   `json:"keys,omitempty"`
	User        *userDetails        `json:"user,omitempty"`
	Breadcrumbs []breadcrumbDetails `json:"breadcrumbs,omitempty"`
	ContextID   *uint64             `json:"context_id,omitempty"`
	SystemState *systemDetails      `json:"system_state,omitempty"`
}

// buildDetails encodes the report as JSON for SystemMessage.Content.
func buildDetails(r report.Report) string {
	d := details{
		EventID:     r.EventID,
		Severity:    string(r.Severity),
		ErrorType:   r.ErrorType,
		Message:     r.Message,
		Fingerprint: r.Fingerprint,
		SDKVersion:  r.SDKVersion,
		StackTrace:  r.StackTrace,
		ContextID:   r.ContextID,
	}
	if len(r.Keys) > 0 {
		d.Keys = r.Keys
	}
	if !r.User.IsZero() {
		d.User = &userDetails{Identifier: r.User.Identifier, Email: r.User.Email, Name: r.User.Name}
	}
	if r.Throwable != nil {
		for _, t := range r.Throwable.Chain() {
			td := throwableDetails{Message: t.Message}
			for _, f := range t.Frames {
				td.Frames = append(td.Frames, frameDetails{
					Class:  f.ClassName,
					Method: f.MethodSignature,
					File:   f.FileLabel,
					Line:   f.LineNumber,
				})
			}
			d.Chain = append(d.Chain, td)
		}
	}
	for _, c := range r.Breadcrumbs {
		d.Breadcrumbs = append(d.Breadcrumbs, breadcrumbDetails{Timestamp: c.Timestamp.UnixMilli(), Message: c.Message})
	}
	if r.SystemState != nil {
		d.SystemState = &systemDetails{
			MemoryBytes:    r.SystemState.MemoryBytes,
			GoroutineCount: r.SystemState.GoroutineCount,
			UptimeMs:       r.SystemState.UptimeMs,
			HostName:       r.SystemState.HostName,
			GoVersion:      r.SystemState.GoVersion,
			MaxProcs:       r.SystemState.MaxProcs,
			CPUs:           r.SystemState.CPUs,
			PID:            r.SystemState.PID,
			SysBytes:       r.SystemState.SysBytes,
			GCCycles:       r.SystemState.GCCycles,
		}
		if r.SystemState.OS != "" {
			d.SystemState.Platform = r.SystemState.OS + "/" + r.SystemState.Arch
		}
	}

	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to encode details: %s"}`, err)
	}
	return string(b)
}

// Flush is a no-op; writes are synchronous.
func (s *cxdbSink) Flush(ctx context.Context) error {
	return nil
}

// Close is a no-op; the sink does not own the client.
func (s *cxdbSink) Close() error {
	return nil
}
