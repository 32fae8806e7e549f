// Package datastream encodes chat events in the AI SDK data stream protocol
// (v1): one "<type>:<json>\n" line per event.
package datastream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	HeaderName    = "X-Vercel-AI-Data-Stream"
	HeaderVersion = "v1"
)

const (
	typeText          = "0"
	typeError         = "3"
	typeFinishMessage = "d"
	typeFinishStep    = "e"
	typeStartStep     = "f"
	typeReasoning     = "g"
	typeSource        = "h"
)

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

type Source struct {
	SourceType string `json:"sourceType"`
	ID         string `json:"id"`
	URL        string `json:"url"`
	Title      string `json:"title,omitempty"`
}

type startStep struct {
	MessageID string `json:"messageId"`
}

type finishStep struct {
	FinishReason string `json:"finishReason"`
	Usage        Usage  `json:"usage"`
	IsContinued  bool   `json:"isContinued"`
}

type finishMessage struct {
	FinishReason string `json:"finishReason"`
	Usage        Usage  `json:"usage"`
}

// Writer is single-pass and not safe for concurrent use. The first write
// failure is sticky: later events are dropped and Err reports it.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
	err     error
}

func NewWriter(w io.Writer) *Writer {
	flusher, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: flusher}
}

// SetHeaders marks an HTTP response as a data stream.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set(HeaderName, HeaderVersion)
}

func (w *Writer) StartStep(messageID string) error {
	return w.write(typeStartStep, startStep{MessageID: messageID})
}

func (w *Writer) Text(delta string) error {
	return w.write(typeText, delta)
}

func (w *Writer) Reasoning(delta string) error {
	return w.write(typeReasoning, delta)
}

func (w *Writer) Source(source Source) error {
	if source.SourceType == "" {
		source.SourceType = "url"
	}
	return w.write(typeSource, source)
}

func (w *Writer) Error(message string) error {
	return w.write(typeError, message)
}

func (w *Writer) FinishStep(reason string, usage Usage, isContinued bool) error {
	return w.write(typeFinishStep, finishStep{FinishReason: reason, Usage: usage, IsContinued: isContinued})
}

func (w *Writer) FinishMessage(reason string, usage Usage) error {
	return w.write(typeFinishMessage, finishMessage{FinishReason: reason, Usage: usage})
}

func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) write(code string, payload any) error {
	if w.err != nil {
		return w.err
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		w.err = fmt.Errorf("encode %s part: %w", code, err)
		return w.err
	}
	if _, err := fmt.Fprintf(w.w, "%s:%s\n", code, encoded); err != nil {
		w.err = fmt.Errorf("write %s part: %w", code, err)
		return w.err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}
