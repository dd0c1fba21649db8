package streamjson

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/docexplain/docexplain/internal/assistant"
	"github.com/docexplain/docexplain/internal/llm/openai"
	"github.com/docexplain/docexplain/internal/testutil"
)

type scriptedTransport struct {
	body string
	err  error
}

func (s scriptedTransport) OpenStream(context.Context, *openai.ChatRequest) (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(strings.NewReader(s.body)), nil
}

func runSession(testingHandle *testing.T, transport assistant.Transport, writer *Writer) *assistant.Session {
	testingHandle.Helper()
	controller, err := assistant.NewController(assistant.Options{
		Transport: transport,
		Model:     "model-x",
		Callbacks: writer.Callbacks("model-x"),
	})
	testutil.RequireNoError(testingHandle, err, "new controller")

	session, err := controller.Open(context.Background(), "Sunlight")
	testutil.RequireNoError(testingHandle, err, "open")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	testutil.RequireNoError(testingHandle, session.Wait(ctx), "wait")
	return session
}

func decodeLines(testingHandle *testing.T, raw []byte) []map[string]any {
	testingHandle.Helper()
	var lines []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		var line map[string]any
		testutil.RequireNoError(testingHandle, json.Unmarshal(scanner.Bytes(), &line), "decode line")
		lines = append(lines, line)
	}
	return lines
}

func TestWriterMirrorsSessionEvents(testingHandle *testing.T) {
	// Arrange a two-delta answer.
	var buffer bytes.Buffer
	writer := NewWriter(&buffer)
	body := "data: {\"choices\":[{\"delta\":{\"reasoning_content\":\"think\",\"content\":\"Sun\"}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"light\"}}]}\n\ndata: [DONE]\n"

	// Act.
	session := runSession(testingHandle, scriptedTransport{body: body}, writer)

	// Assert.
	testutil.RequireNoError(testingHandle, writer.Err(), "callback writes")
	var types []string
	for _, line := range decodeLines(testingHandle, buffer.Bytes()) {
		testutil.RequireEqual(testingHandle, line["session_id"], session.ID, "session id")
		testutil.RequireTrue(testingHandle, line["uuid"] != "", "uuid present")
		kind := line["type"].(string)
		if kind == TypeState {
			kind += ":" + line["state"].(string)
		}
		types = append(types, kind)
	}
	testutil.RequireEqual(testingHandle, types, []string{
		"system",
		"state:awaiting",
		"state:streaming",
		"reasoning_delta",
		"content_delta",
		"content_delta",
		"done",
		"state:idle",
	}, "event order")
}

func TestBuildResultEvent(testingHandle *testing.T) {
	var buffer bytes.Buffer
	writer := NewWriter(&buffer)

	finished := runSession(testingHandle, scriptedTransport{body: "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n"}, writer)
	result := BuildResultEvent(finished, 1500*time.Millisecond)
	testutil.RequireEqual(testingHandle, result.Subtype, "success", "subtype")
	testutil.RequireEqual(testingHandle, result.Result, "ok", "result text")
	testutil.RequireEqual(testingHandle, result.DurationMS, int64(1500), "duration")
	testutil.RequireTrue(testingHandle, !result.IsError, "not an error")

	failed := runSession(testingHandle, scriptedTransport{err: errors.New("connection refused")}, writer)
	result = BuildResultEvent(failed, time.Second)
	testutil.RequireEqual(testingHandle, result.Subtype, "error", "subtype")
	testutil.RequireTrue(testingHandle, result.IsError, "is error")
	testutil.RequireEqual(testingHandle, len(result.Errors), 1, "one error")
	testutil.RequireStringContains(testingHandle, result.Errors[0], "connection refused", "error text")
}

func TestBuildSystemEvent(testingHandle *testing.T) {
	var buffer bytes.Buffer
	session := runSession(testingHandle, scriptedTransport{body: "data: [DONE]\n"}, NewWriter(&buffer))

	event := BuildSystemEvent(session, "model-x")

	testutil.RequireEqual(testingHandle, event.Type, TypeSystem, "type")
	testutil.RequireEqual(testingHandle, event.Subtype, "init", "subtype")
	testutil.RequireEqual(testingHandle, event.Selection, "Sunlight", "selection")
	testutil.RequireEqual(testingHandle, event.SessionID, session.ID, "session id")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriterKeepsFirstCallbackError(testingHandle *testing.T) {
	writer := NewWriter(failingWriter{})

	runSession(testingHandle, scriptedTransport{body: "data: [DONE]\n"}, writer)

	testutil.RequireError(testingHandle, writer.Err(), "write failure recorded")
	testutil.RequireStringContains(testingHandle, writer.Err().Error(), "disk full", "cause")
}
