package session

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestSession(opts ...Option) *Session {
	n := 0
	base := time.Date(2024, 10, 22, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	ids := 0
	all := append([]Option{
		WithClock(clock),
		WithIDs(func() string { ids++; return fmt.Sprintf("id-%d", ids) }),
	}, opts...)
	return New(SystemConfig{Model: "claude"}, all...)
}

func knownModel(m string) bool { return m == "claude" || m == "gemini" }

func TestAppendKeepsOrderAndMonotonicTime(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 10, 0, time.UTC)
	s := New(SystemConfig{}, WithClock(func() time.Time { return now }))

	a := s.AppendUserMessage("first")
	now = now.Add(-5 * time.Second) // clock moved backwards
	b := s.AppendAssistantMessage("second")

	if b.Timestamp < a.Timestamp {
		t.Fatalf("timestamps went backwards: %d then %d", a.Timestamp, b.Timestamp)
	}
	if a.ID == b.ID || a.ID == "" {
		t.Fatalf("expected distinct non-empty ids, got %q %q", a.ID, b.ID)
	}

	msgs := s.Messages()
	if len(msgs) != 2 || msgs[0].Content != "first" || msgs[1].Role != RoleAssistant {
		t.Fatalf("unexpected history: %+v", msgs)
	}

	// callers get a copy
	msgs[0].Content = "mutated"
	if s.Messages()[0].Content != "first" {
		t.Fatal("history was mutated through the returned slice")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestSession()
	s.AppendUserMessage("What time is it?")
	s.AppendAssistantMessage("It is noon.")
	if err := s.CommitConfig(SystemConfig{Content: "be brief", Enabled: true, Model: "gemini"}); err != nil {
		t.Fatal(err)
	}
	before := s.ExportSnapshot()

	var buf bytes.Buffer
	if err := Encode(&buf, before); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	other := newTestSession()
	if err := other.ImportSnapshot(decoded); err != nil {
		t.Fatalf("ImportSnapshot failed: %v", err)
	}
	if after := other.ExportSnapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("round trip changed the session:\nbefore: %+v\nafter:  %+v", before, after)
	}
}

func TestEmptySnapshotRoundTrip(t *testing.T) {
	s := newTestSession()
	before := s.ExportSnapshot()

	var buf bytes.Buffer
	if err := Encode(&buf, before); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"messages": []`) {
		t.Fatalf("expected pretty-printed empty list, got %s", buf.String())
	}
	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(before, decoded) {
		t.Fatalf("expected %+v, got %+v", before, decoded)
	}
}

func TestInvalidUTF8SurvivesRoundTrip(t *testing.T) {
	s := newTestSession()
	s.AppendUserMessage("stray \xff\xfe bytes")
	s.AppendAssistantMessage("fine")
	before := s.ExportSnapshot()

	if got := before.Messages[0].Content; got != "stray \uFFFD bytes" {
		t.Fatalf("expected normalized content, got %q", got)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, before); err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	other := newTestSession()
	if err := other.ImportSnapshot(decoded); err != nil {
		t.Fatal(err)
	}
	if after := other.ExportSnapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("round trip changed the session:\nbefore: %+v\nafter:  %+v", before, after)
	}
}

func TestDecodeRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"not json":          `{{{`,
		"missing config":    `{"messages":[]}`,
		"missing messages":  `{"systemConfig":{"content":"","enabled":false,"model":"claude"}}`,
		"unknown field":     `{"messages":[],"systemConfig":{"content":"","enabled":false,"model":"claude"},"extra":1}`,
		"missing msg field": `{"messages":[{"id":"a","role":"user","content":"x"}],"systemConfig":{"content":"","enabled":false,"model":"claude"}}`,
		"bad role":          `{"messages":[{"id":"a","role":"system","content":"x","timestamp":1}],"systemConfig":{"content":"","enabled":false,"model":"claude"}}`,
		"duplicate ids":     `{"messages":[{"id":"a","role":"user","content":"x","timestamp":1},{"id":"a","role":"assistant","content":"y","timestamp":2}],"systemConfig":{"content":"","enabled":false,"model":"claude"}}`,
		"reordered":         `{"messages":[{"id":"a","role":"user","content":"x","timestamp":5},{"id":"b","role":"assistant","content":"y","timestamp":2}],"systemConfig":{"content":"","enabled":false,"model":"claude"}}`,
		"trailing data":     `{"messages":[],"systemConfig":{"content":"","enabled":false,"model":"claude"}} {}`,
	}
	for name, doc := range cases {
		if _, err := Decode(strings.NewReader(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestImportFailureLeavesSessionUntouched(t *testing.T) {
	s := newTestSession(WithModelValidator(knownModel))
	s.AppendUserMessage("keep me")
	before := s.ExportSnapshot()

	bad := Snapshot{
		Messages:     []Message{{ID: "x", Role: RoleUser, Content: "new", Timestamp: 1}},
		SystemConfig: SystemConfig{Model: "unknown-model"},
	}
	if err := s.ImportSnapshot(bad); err == nil {
		t.Fatal("expected unknown model to be rejected")
	}
	if !reflect.DeepEqual(before, s.ExportSnapshot()) {
		t.Fatal("failed import modified the session")
	}
}

func TestDraftCommitAndCancel(t *testing.T) {
	s := newTestSession(WithModelValidator(knownModel))

	s.EditDraft(func(c *SystemConfig) { c.Content = "pirate"; c.Enabled = true })
	if s.Config().Enabled {
		t.Fatal("editing the draft must not change the committed config")
	}
	s.CancelDraft()
	if s.HasDraft() || s.Draft().Content != "" {
		t.Fatal("cancel should discard the draft")
	}

	s.EditDraft(func(c *SystemConfig) { c.Model = "gemini" })
	s.EditDraft(func(c *SystemConfig) { c.Content = "be kind"; c.Enabled = true })
	if err := s.SaveDraft(); err != nil {
		t.Fatal(err)
	}
	want := SystemConfig{Content: "be kind", Enabled: true, Model: "gemini"}
	if s.Config() != want {
		t.Fatalf("expected %+v, got %+v", want, s.Config())
	}

	s.EditDraft(func(c *SystemConfig) { c.Model = "nope" })
	if err := s.SaveDraft(); err == nil {
		t.Fatal("expected invalid model to be rejected on save")
	}
	if s.Config() != want {
		t.Fatal("rejected save changed the committed config")
	}
}

func TestInstruction(t *testing.T) {
	if (SystemConfig{Content: "x", Enabled: false}).Instruction() != "" {
		t.Fatal("disabled config must not produce an instruction")
	}
	if (SystemConfig{Content: " x ", Enabled: true}).Instruction() != "x" {
		t.Fatal("expected trimmed instruction")
	}
}

func TestSendGuard(t *testing.T) {
	s := newTestSession()

	if _, _, err := s.BeginSend("   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if _, _, err := s.BeginSend("one"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.BeginSend("two"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if err := s.ImportSnapshot(Snapshot{Messages: []Message{}}); !errors.Is(err, ErrBusy) {
		t.Fatalf("import during send should fail with ErrBusy, got %v", err)
	}
	if err := s.Reset(); !errors.Is(err, ErrBusy) {
		t.Fatalf("reset during send should fail with ErrBusy, got %v", err)
	}
	if _, err := s.CompleteSend("reply one"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CompleteSend("stray"); !errors.Is(err, ErrNotSending) {
		t.Fatalf("expected ErrNotSending, got %v", err)
	}

	if _, _, err := s.BeginSend("two"); err != nil {
		t.Fatal(err)
	}
	s.FailSend()
	if s.Busy() {
		t.Fatal("FailSend should release the guard")
	}

	var got []string
	for _, m := range s.Messages() {
		got = append(got, m.Content)
	}
	want := []string{"one", "reply one", "two"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestConcurrentSendsAreSerialized(t *testing.T) {
	s := New(SystemConfig{Model: "claude"})

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			if _, _, err := s.BeginSend(fmt.Sprintf("msg %d", i)); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if accepted != 1 {
		t.Fatalf("expected exactly one accepted send, got %d", accepted)
	}
	if n := len(s.Messages()); n != 1 {
		t.Fatalf("expected one message in history, got %d", n)
	}
}

func TestExportFileName(t *testing.T) {
	ts := time.Date(2024, 10, 22, 14, 5, 9, 0, time.FixedZone("X", 3600))
	if got := ExportFileName(ts); got != "chat-export-20241022T130509Z.json" {
		t.Fatalf("unexpected name %q", got)
	}
}
