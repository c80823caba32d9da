package cxdb

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	cxdbclient "github.com/strongdm/ai-cxdb/clients/go"
	cxdtypes "github.com/strongdm/ai-cxdb/clients/go/types"

	"github.com/strongdm/crashkit/pkg/crashkit"
	"github.com/strongdm/crashkit/pkg/crashkit/report"
)

// mockCXDBClient is a test double for the cxdb client.
type mockCXDBClient struct {
	mu             sync.Mutex
	createContexts []uint64
	appendRequests []*cxdbclient.AppendRequest
	nextContextID  uint64
	createErr      error
	appendErr      error
}

func (m *mockCXDBClient) CreateContext(ctx context.Context, baseTurnID uint64) (*cxdbclient.ContextHead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.createContexts = append(m.createContexts, baseTurnID)
	m.nextContextID++
	return &cxdbclient.ContextHead{ContextID: m.nextContextID}, nil
}

func (m *mockCXDBClient) AppendTurn(ctx context.Context, req *cxdbclient.AppendRequest) (*cxdbclient.AppendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return nil, m.appendErr
	}
	m.appendRequests = append(m.appendRequests, req)
	return &cxdbclient.AppendResult{ContextID: req.ContextID, TurnID: 1, Depth: 1}, nil
}

func (m *mockCXDBClient) getAppendRequests() []*cxdbclient.AppendRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*cxdbclient.AppendRequest, len(m.appendRequests))
	copy(result, m.appendRequests)
	return result
}

func (m *mockCXDBClient) getCreateContextCalls() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]uint64, len(m.createContexts))
	copy(result, m.createContexts)
	return result
}

func decodeConversationItem(t *testing.T, payload []byte) cxdtypes.ConversationItem {
	t.Helper()
	var item cxdtypes.ConversationItem
	if err := cxdbclient.DecodeMsgpackInto(payload, &item); err != nil {
		t.Fatalf("DecodeMsgpackInto failed: %v", err)
	}
	return item
}

func decodeDetailsJSON(t *testing.T, content string) map[string]any {
	t.Helper()
	var details map[string]any
	if err := json.Unmarshal([]byte(content), &details); err != nil {
		t.Fatalf("details JSON unmarshal failed: %v", err)
	}
	return details
}

func sampleReport() report.Report {
	return report.Report{
		EventID:     "evt-456",
		Timestamp:   time.Date(2026, 1, 26, 12, 0, 0, 0, time.UTC),
		Fingerprint: "fp123",
		Severity:    report.SeverityFatal,
		ErrorType:   "System.NullReferenceException",
		Message:     "System.NullReferenceException: Object reference not set",
		StackTrace:  "System.NullReferenceException: Object reference not set\n",
		Throwable: &crashkit.Throwable{
			Message: "System.NullReferenceException: Object reference not set",
			Frames: []crashkit.StackFrame{
				{ClassName: "Foo", MethodSignature: "Bar (System.String)", FileLabel: "Foo.Bar..cs", LineNumber: 42},
			},
			Cause: &crashkit.Throwable{Message: "System.Exception: inner"},
		},
		Keys:        map[string]string{"screen": "checkout"},
		User:        report.User{Identifier: "u-1"},
		Breadcrumbs: []report.Breadcrumb{{Timestamp: time.Date(2026, 1, 26, 11, 59, 0, 0, time.UTC), Message: "opened cart"}},
		SystemState: &report.SystemState{GoroutineCount: 3, HostName: "host-a", GoVersion: "go1.25.4", OS: "linux", Arch: "arm64", MaxProcs: 4},
		SDKVersion:  "0.1.0",
	}
}

func TestCXDBSink_ImplementsSinkInterface(t *testing.T) {
	var _ report.Sink = NewCXDBSink(&mockCXDBClient{})
}

func TestCXDBSink_Write_WithReportContextID_AppendsTurn(t *testing.T) {
	client := &mockCXDBClient{}
	sink := NewCXDBSink(client, WithContextID(7))

	r := sampleReport()
	contextID := uint64(12345)
	r.ContextID = &contextID

	if err := sink.Write(context.Background(), r); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	if calls := client.getCreateContextCalls(); len(calls) != 0 {
		t.Errorf("should not create a context when the report has one, got %d calls", len(calls))
	}

	reqs := client.getAppendRequests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 append request, got %d", len(reqs))
	}
	req := reqs[0]
	if req.ContextID != 12345 {
		t.Errorf("ContextID = %d, want 12345", req.ContextID)
	}
	if req.TypeID != cxdtypes.TypeIDConversationItem {
		t.Errorf("TypeID = %q, want %q", req.TypeID, cxdtypes.TypeIDConversationItem)
	}
	if req.TypeVersion != cxdtypes.TypeVersionConversationItem {
		t.Errorf("TypeVersion = %d, want %d", req.TypeVersion, cxdtypes.TypeVersionConversationItem)
	}
	if req.IdempotencyKey != "evt-456" {
		t.Errorf("IdempotencyKey = %q, want evt-456", req.IdempotencyKey)
	}
}

func TestCXDBSink_Write_ConfiguredContextID(t *testing.T) {
	client := &mockCXDBClient{}
	sink := NewCXDBSink(client, WithContextID(7))

	if err := sink.Write(context.Background(), sampleReport()); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	if calls := client.getCreateContextCalls(); len(calls) != 0 {
		t.Errorf("should append to the configured context, got %d create calls", len(calls))
	}
	reqs := client.getAppendRequests()
	if len(reqs) != 1 || reqs[0].ContextID != 7 {
		t.Fatalf("expected one append to context 7, got %+v", reqs)
	}
	item := decodeConversationItem(t, reqs[0].Payload)
	if item.ContextMetadata != nil {
		t.Error("ContextMetadata should be nil for existing contexts")
	}
}

func TestCXDBSink_Write_CreatesLabelledContext(t *testing.T) {
	client := &mockCXDBClient{}
	sink := NewCXDBSink(client, WithLabels([]string{"crash", "mobile"}), WithClientTag("crashkit-e2e"))

	if err := sink.Write(context.Background(), sampleReport()); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	if calls := client.getCreateContextCalls(); len(calls) != 1 {
		t.Fatalf("expected 1 create context call, got %d", len(calls))
	}
	reqs := client.getAppendRequests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 append request, got %d", len(reqs))
	}
	if reqs[0].ContextID != 1 {
		t.Errorf("ContextID = %d, want the created context 1", reqs[0].ContextID)
	}

	item := decodeConversationItem(t, reqs[0].Payload)
	if item.ContextMetadata == nil {
		t.Fatal("ContextMetadata should be set for created contexts")
	}
	if item.ContextMetadata.ClientTag != "crashkit-e2e" {
		t.Errorf("ClientTag = %q, want crashkit-e2e", item.ContextMetadata.ClientTag)
	}
	if len(item.ContextMetadata.Labels) != 2 || item.ContextMetadata.Labels[1] != "mobile" {
		t.Errorf("Labels = %v", item.ContextMetadata.Labels)
	}
}

func TestCXDBSink_Write_DefaultTagAndLabels(t *testing.T) {
	client := &mockCXDBClient{}
	sink := NewCXDBSink(client)

	if err := sink.Write(context.Background(), sampleReport()); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	item := decodeConversationItem(t, client.getAppendRequests()[0].Payload)
	if item.ContextMetadata.ClientTag != DefaultClientTag {
		t.Errorf("ClientTag = %q, want %q", item.ContextMetadata.ClientTag, DefaultClientTag)
	}
	if len(item.ContextMetadata.Labels) == 0 {
		t.Error("Labels should default to a non-empty set")
	}
}

func TestCXDBSink_Write_PayloadFormat(t *testing.T) {
	client := &mockCXDBClient{}
	sink := NewCXDBSink(client, WithContextID(99))

	if err := sink.Write(context.Background(), sampleReport()); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	item := decodeConversationItem(t, client.getAppendRequests()[0].Payload)
	if item.ItemType != cxdtypes.ItemTypeSystem {
		t.Errorf("ItemType = %q, want %q", item.ItemType, cxdtypes.ItemTypeSystem)
	}
	if item.Status != cxdtypes.ItemStatusComplete {
		t.Errorf("Status = %q, want %q", item.Status, cxdtypes.ItemStatusComplete)
	}
	if item.ID != "evt-456" {
		t.Errorf("ID = %q, want evt-456", item.ID)
	}
	if item.System == nil {
		t.Fatal("System message should be present")
	}
	if item.System.Kind != cxdtypes.SystemKindError {
		t.Errorf("System.Kind = %q, want %q", item.System.Kind, cxdtypes.SystemKindError)
	}
	wantTitle := "fatal System.NullReferenceException: Object reference not set"
	if item.System.Title != wantTitle {
		t.Errorf("Title = %q, want %q", item.System.Title, wantTitle)
	}

	details := decodeDetailsJSON(t, item.System.Content)
	for key, want := range map[string]any{
		"event_id":    "evt-456",
		"severity":    "fatal",
		"error_type":  "System.NullReferenceException",
		"fingerprint": "fp123",
		"sdk_version": "0.1.0",
	} {
		if details[key] != want {
			t.Errorf("%s = %v, want %v", key, details[key], want)
		}
	}

	chain, ok := details["chain"].([]any)
	if !ok || len(chain) != 2 {
		t.Fatalf("chain = %v, want 2 links", details["chain"])
	}
	top := chain[0].(map[string]any)
	frames := top["frames"].([]any)
	frame := frames[0].(map[string]any)
	if frame["file"] != "Foo.Bar..cs" || frame["line"] != float64(42) {
		t.Errorf("frame = %v", frame)
	}

	keys := details["keys"].(map[string]any)
	if keys["screen"] != "checkout" {
		t.Errorf("keys = %v", keys)
	}
	if details["user"].(map[string]any)["identifier"] != "u-1" {
		t.Errorf("user = %v", details["user"])
	}
	state := details["system_state"].(map[string]any)
	if state["host_name"] != "host-a" || state["platform"] != "linux/arm64" || state["go_version"] != "go1.25.4" {
		t.Errorf("system_state = %v", details["system_state"])
	}
	if state["gomaxprocs"] != float64(4) {
		t.Errorf("gomaxprocs = %v, want 4", state["gomaxprocs"])
	}
	if _, ok := details["context_id"]; ok {
		t.Error("context_id should be omitted when the report has none")
	}
}

func TestTitle_Truncates(t *testing.T) {
	r := report.Report{
		Severity:  report.SeverityNonFatal,
		ErrorType: "T",
		Message:   "T: " + strings.Repeat("m", 200),
	}
	got := title(r)
	if len(got) > maxTitleLen {
		t.Errorf("title length = %d, want <= %d", len(got), maxTitleLen)
	}
	if !strings.HasPrefix(got, "non-fatal T: mmm") || !strings.HasSuffix(got, "...") {
		t.Errorf("title = %q", got)
	}
}

func TestTitle_TruncatesOnRuneBoundary(t *testing.T) {
	r := report.Report{
		Severity:  report.SeverityFatal,
		ErrorType: "T",
		Message:   "T: " + strings.Repeat("é", 100),
	}
	got := title(r)
	if !utf8.ValidString(got) {
		t.Errorf("title is not valid UTF-8: %q", got)
	}
	if len(got) > maxTitleLen {
		t.Errorf("title length = %d, want <= %d", len(got), maxTitleLen)
	}
	if !strings.HasSuffix(got, "é...") {
		t.Errorf("title = %q", got)
	}
}

func TestCXDBSink_Write_Errors(t *testing.T) {
	createErr := errors.New("cxdb unavailable")
	sink := NewCXDBSink(&mockCXDBClient{createErr: createErr})
	err := sink.Write(context.Background(), sampleReport())
	if !errors.Is(err, createErr) || !strings.Contains(err.Error(), "create context") {
		t.Errorf("Write error = %v, want wrapped create error", err)
	}

	appendErr := errors.New("append rejected")
	sink = NewCXDBSink(&mockCXDBClient{appendErr: appendErr}, WithContextID(1))
	err = sink.Write(context.Background(), sampleReport())
	if !errors.Is(err, appendErr) || !strings.Contains(err.Error(), "append turn") {
		t.Errorf("Write error = %v, want wrapped append error", err)
	}
}

func TestCXDBSink_FlushAndClose(t *testing.T) {
	sink := NewCXDBSink(&mockCXDBClient{})
	if err := sink.Flush(context.Background()); err != nil {
		t.Errorf("Flush returned error: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
}
