package events

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ormasoftchile/uirun/pkg/schema"
)

func TestEmitter_JSONL(t *testing.T) {
	var buf bytes.Buffer
	em := NewEmitter(NewJSONLWriter(&buf), "run-1", nil)

	em.TestStarted("log in")
	em.Log("navigating")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	var ev Event
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("JSON unmarshal: %v (raw: %s)", err, lines[0])
	}
	if ev.Type != TestStarted {
		t.Errorf("type = %q, want test_started", ev.Type)
	}
	if ev.RunID != "run-1" {
		t.Errorf("runId = %q", ev.RunID)
	}
	if ev.Data["prompt"] != "log in" {
		t.Errorf("prompt = %v", ev.Data["prompt"])
	}
	if !strings.Contains(lines[0], `"runId":"run-1"`) {
		t.Errorf("wire field name missing: %s", lines[0])
	}
}

func TestEmitter_RedactsSecrets(t *testing.T) {
	rec := NewRecorder()
	em := NewEmitter(rec, "run-1", NewRedactor([]string{"hunter2"}))

	step := schema.StepResult{
		ID:          "s1",
		Action:      schema.ActionFill,
		Target:      "Password",
		Value:       "hunter2",
		Description: "type hunter2 into the password field",
		Assertion:   &schema.AssertionResult{Type: schema.AssertText, Expected: "hunter2", Actual: "x hunter2 x"},
	}
	em.StepFailed(step, "fill failed for value hunter2")
	em.Log("using hunter2")

	for _, ev := range rec.Events() {
		raw, _ := json.Marshal(ev)
		if bytes.Contains(raw, []byte("hunter2")) {
			t.Errorf("secret leaked in %s event: %s", ev.Type, raw)
		}
	}
	got := rec.Events()[0].Data["step"].(schema.StepResult)
	if got.Value != Redacted {
		t.Errorf("value = %q, want %q", got.Value, Redacted)
	}
	if step.Value != "hunter2" {
		t.Error("caller's step mutated")
	}
}

func TestEmitter_Screenshot(t *testing.T) {
	rec := NewRecorder()
	em := NewEmitter(rec, "run-1", NewRedactor([]string{"A"}))
	png := []byte{0x89, 'P', 'N', 'G'}
	em.Screenshot("s1", png)

	ev := rec.Events()[0]
	if ev.Data["stepId"] != "s1" {
		t.Errorf("stepId = %v", ev.Data["stepId"])
	}
	enc, _ := ev.Data["screenshot"].(string)
	got, err := base64.StdEncoding.DecodeString(enc)
	if err != nil || !bytes.Equal(got, png) {
		t.Errorf("screenshot = %q (err %v)", enc, err)
	}
}

func TestEmitter_OnError(t *testing.T) {
	failing := SinkFunc(func(Event) error { return errors.New("down") })
	em := NewEmitter(failing, "run-1", nil)
	var got []Type
	em.OnError = func(ev Event, err error) { got = append(got, ev.Type) }

	em.TestCompleted()
	if len(got) != 1 || got[0] != TestCompleted {
		t.Errorf("OnError calls = %v", got)
	}
}

func TestEmitter_NilSink(t *testing.T) {
	em := NewEmitter(nil, "run-1", nil)
	em.TestStarted("x")
}

func TestRedactor_LongestFirst(t *testing.T) {
	r := NewRedactor([]string{"pw", "pw-long", ""})
	if got := r.String("a pw-long b pw"); got != "a <REDACTED> b <REDACTED>" {
		t.Errorf("String = %q", got)
	}
	if got := r.String("nothing here"); got != "nothing here" {
		t.Errorf("String = %q", got)
	}
}

func TestMulti_FanOutJoinsErrors(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	bad := SinkFunc(func(Event) error { return errors.New("bad sink") })
	m := Multi{a, bad, nil, b}

	err := m.Emit(Event{Type: Log, RunID: "r"})
	if err == nil || !strings.Contains(err.Error(), "bad sink") {
		t.Errorf("err = %v", err)
	}
	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Errorf("fan-out: a=%d b=%d", len(a.Events()), len(b.Events()))
	}
}

func TestChan_ContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan Event)
	s := NewChan(ctx, ch)
	cancel()
	if err := s.Emit(Event{Type: Log}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}

	buffered := make(chan Event, 1)
	if err := NewChan(context.Background(), buffered).Emit(Event{Type: Log}); err != nil {
		t.Fatal(err)
	}
	if ev := <-buffered; ev.Type != Log {
		t.Errorf("type = %q", ev.Type)
	}
}

type fakePublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func TestNATSSink_Subject(t *testing.T) {
	pub := &fakePublisher{}
	s := NewNATSSinkFromPublisher(pub, "")
	if err := s.Emit(Event{Type: StepStarted, RunID: "abc"}); err != nil {
		t.Fatal(err)
	}
	if len(pub.subjects) != 1 || pub.subjects[0] != "uirun.runs.abc.step_started" {
		t.Errorf("subjects = %v", pub.subjects)
	}
	var ev Event
	if err := json.Unmarshal(pub.payloads[0], &ev); err != nil || ev.RunID != "abc" {
		t.Errorf("payload = %s (err %v)", pub.payloads[0], err)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Emit(Event{Type: Log, RunID: "abc"}); err == nil {
		t.Error("expected error after Close")
	}
}

func TestNATSSink_SubjectEscapesRunID(t *testing.T) {
	s := NewNATSSinkFromPublisher(&fakePublisher{}, "")
	tests := []struct {
		runID string
		want  string
	}{
		{"run-1_a", "uirun.runs.run-1_a.step_started"},
		{"a.b", "uirun.runs.a_b.step_started"},
		{"my run", "uirun.runs.my_run.step_started"},
		{"*", "uirun.runs._.step_started"},
		{"x>", "uirun.runs.x_.step_started"},
		{"", "uirun.runs._.step_started"},
	}
	for _, tt := range tests {
		if got := s.Subject(Event{Type: StepStarted, RunID: tt.runID}); got != tt.want {
			t.Errorf("Subject(%q) = %q, want %q", tt.runID, got, tt.want)
		}
	}
}

func TestNATSSink_PublishError(t *testing.T) {
	s := NewNATSSinkFromPublisher(&fakePublisher{err: errors.New("no responders")}, "custom.")
	if got := s.Subject(Event{Type: Log, RunID: "r"}); got != "custom.r.log" {
		t.Errorf("Subject = %q", got)
	}
	if err := s.Emit(Event{Type: Log, RunID: "r"}); err == nil || !strings.Contains(err.Error(), "publish log") {
		t.Errorf("err = %v", err)
	}
}
