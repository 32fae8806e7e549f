package datastream

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriterEncodesProtocolLines(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)

	steps := []func() error{
		func() error { return w.StartStep("msg-1") },
		func() error { return w.Reasoning("think") },
		func() error { return w.Text("Hello \"kid\"\n") },
		func() error { return w.Source(Source{ID: "src-1", URL: "https://example.org", Title: "Nelson"}) },
		func() error { return w.FinishStep("stop", Usage{PromptTokens: 3, CompletionTokens: 2}, false) },
		func() error { return w.FinishMessage("stop", Usage{PromptTokens: 3, CompletionTokens: 2}) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	want := strings.Join([]string{
		`f:{"messageId":"msg-1"}`,
		`g:"think"`,
		`0:"Hello \"kid\"\n"`,
		`h:{"sourceType":"url","id":"src-1","url":"https://example.org","title":"Nelson"}`,
		`e:{"finishReason":"stop","usage":{"promptTokens":3,"completionTokens":2},"isContinued":false}`,
		`d:{"finishReason":"stop","usage":{"promptTokens":3,"completionTokens":2}}`,
	}, "\n") + "\n"

	if got := rec.Body.String(); got != want {
		t.Fatalf("unexpected stream:\n%s\nwant:\n%s", got, want)
	}
	if !rec.Flushed {
		t.Fatal("expected writer to flush")
	}
}

func TestWriterErrorPart(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := NewWriter(rec).Error("Rate limit exceeded."); err != nil {
		t.Fatalf("write error part: %v", err)
	}
	if got := rec.Body.String(); got != "3:\"Rate limit exceeded.\"\n" {
		t.Fatalf("unexpected error part: %q", got)
	}
}

func TestSetHeaders(t *testing.T) {
	header := http.Header{}
	SetHeaders(header)
	if header.Get(HeaderName) != "v1" {
		t.Fatalf("missing data stream header: %v", header)
	}
}

type failingWriter struct{ calls int }

func (f *failingWriter) Write(_ []byte) (int, error) {
	f.calls++
	return 0, errors.New("broken pipe")
}

func TestWriterFailureIsSticky(t *testing.T) {
	sink := &failingWriter{}
	w := NewWriter(sink)

	if err := w.Text("a"); err == nil {
		t.Fatal("expected write failure")
	}
	if err := w.Text("b"); err == nil {
		t.Fatal("expected sticky failure")
	}
	if sink.calls != 1 {
		t.Fatalf("expected a single write attempt, got %d", sink.calls)
	}
	if w.Err() == nil {
		t.Fatal("expected Err to report failure")
	}
}
