package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/docexplain/docexplain/internal/assistant"
	"github.com/docexplain/docexplain/internal/config"
	"github.com/docexplain/docexplain/internal/llm/openai"
	"github.com/docexplain/docexplain/internal/testutil"
)

// newSSEServer streams the given content deltas and records the last request.
func newSSEServer(testingHandle *testing.T, deltas []string, received *openai.ChatRequest) *httptest.Server {
	testingHandle.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		if received != nil {
			if err := json.NewDecoder(request.Body).Decode(received); err != nil {
				http.Error(responseWriter, err.Error(), http.StatusBadRequest)
				return
			}
		}
		responseWriter.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := responseWriter.(http.Flusher)
		if !ok {
			http.Error(responseWriter, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		for _, delta := range deltas {
			payload, _ := json.Marshal(map[string]any{
				"choices": []any{map[string]any{"index": 0, "delta": map[string]string{"content": delta}}},
			})
			_, _ = fmt.Fprintf(responseWriter, "data: %s\n\n", payload)
			flusher.Flush()
		}
		_, _ = fmt.Fprint(responseWriter, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	testingHandle.Cleanup(server.Close)
	return server
}

func newTestRuntime(baseURL string) *runtime {
	return &runtime{
		cfg:    &config.ProviderConfig{APIBaseURL: baseURL, DefaultModel: "model-x"},
		model:  "model-x",
		client: openai.NewClient(baseURL, "", 5*time.Second),
		logger: zap.NewNop(),
	}
}

// TestRunAskStreamsPlainText verifies text output and the outline sent with the prompt.
func TestRunAskStreamsPlainText(testingHandle *testing.T) {
	// Arrange a document with two chapters and a streaming server.
	var received openai.ChatRequest
	server := newSSEServer(testingHandle, []string{"Sun", "light"}, &received)
	docPath := filepath.Join(testingHandle.TempDir(), "book.md")
	testutil.RequireNoError(testingHandle, os.WriteFile(docPath, []byte("# Plants\ntext\n# Animals\n"), 0o600), "write doc")
	opts := &options{OutputFormat: "text", File: docPath}
	var out bytes.Buffer

	// Act.
	err := runAsk(context.Background(), newTestRuntime(server.URL), opts, "Chlorophyll", &out)

	// Assert.
	testutil.RequireNoError(testingHandle, err, "run ask")
	testutil.RequireEqual(testingHandle, out.String(), "Sunlight\n", "plain output")
	testutil.RequireTrue(testingHandle, received.Stream, "streaming request")
	testutil.RequireStringContains(testingHandle, received.Messages[0].Content, "Chlorophyll", "selection in prompt")
	testutil.RequireStringContains(testingHandle, received.Messages[0].Content, `["Plants","Animals"]`, "outline in prompt")
}

// TestRunAskRendersHTML verifies re-rendered formats print the final markup once.
func TestRunAskRendersHTML(testingHandle *testing.T) {
	server := newSSEServer(testingHandle, []string{"**bold** <script>x</script>", " text"}, nil)
	var out bytes.Buffer

	err := runAsk(context.Background(), newTestRuntime(server.URL), &options{OutputFormat: "html"}, "passage", &out)

	testutil.RequireNoError(testingHandle, err, "run ask")
	testutil.RequireStringContains(testingHandle, out.String(), "<strong>bold</strong>", "markdown rendered")
	testutil.RequireStringNotContains(testingHandle, out.String(), "<script>", "html sanitized")
	testutil.RequireEqual(testingHandle, strings.Count(out.String(), "<strong>"), 1, "printed once")
}

// TestRunAskStreamJSON verifies JSON lines from init to result.
func TestRunAskStreamJSON(testingHandle *testing.T) {
	server := newSSEServer(testingHandle, []string{"Sun", "light"}, nil)
	var out bytes.Buffer

	err := runAsk(context.Background(), newTestRuntime(server.URL), &options{OutputFormat: "stream-json"}, "passage", &out)
	testutil.RequireNoError(testingHandle, err, "run ask")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	var first, last map[string]any
	testutil.RequireNoError(testingHandle, json.Unmarshal([]byte(lines[0]), &first), "decode first")
	testutil.RequireNoError(testingHandle, json.Unmarshal([]byte(lines[len(lines)-1]), &last), "decode last")
	testutil.RequireEqual(testingHandle, first["type"], "system", "first line")
	testutil.RequireEqual(testingHandle, last["type"], "result", "last line")
	testutil.RequireEqual(testingHandle, last["result"], "Sunlight", "result text")
	testutil.RequireEqual(testingHandle, last["subtype"], "success", "result subtype")
}

// TestRunAskReturnsTransportError verifies failures surface as the exit error.
func TestRunAskReturnsTransportError(testingHandle *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, _ *http.Request) {
		http.Error(responseWriter, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()
	var out bytes.Buffer

	err := runAsk(context.Background(), newTestRuntime(server.URL), &options{OutputFormat: "text"}, "passage", &out)

	testutil.RequireErrorIs(testingHandle, err, assistant.ErrTransport, "transport error")
	testutil.RequireStringContains(testingHandle, err.Error(), "429", "status code in message")
}

// TestRunAskRejectsEmptySelection verifies blank input issues no request.
func TestRunAskRejectsEmptySelection(testingHandle *testing.T) {
	var out bytes.Buffer

	err := runAsk(context.Background(), newTestRuntime("http://127.0.0.1:1"), &options{OutputFormat: "text"}, "  \n", &out)

	testutil.RequireErrorIs(testingHandle, err, assistant.ErrEmptySelection, "empty selection")
}

// TestReadSelection covers args, stdin and the interactive guard.
func TestReadSelection(testingHandle *testing.T) {
	text, err := readSelection([]string{"light", "reactions"}, strings.NewReader("ignored"), false)
	testutil.RequireNoError(testingHandle, err, "args")
	testutil.RequireEqual(testingHandle, text, "light reactions", "joined args")

	text, err = readSelection(nil, strings.NewReader("from stdin\n"), false)
	testutil.RequireNoError(testingHandle, err, "stdin")
	testutil.RequireEqual(testingHandle, text, "from stdin", "trimmed stdin")

	_, err = readSelection(nil, strings.NewReader(""), true)
	testutil.RequireError(testingHandle, err, "terminal stdin without args")
}

// TestValidateOutputFormat accepts known formats only.
func TestValidateOutputFormat(testingHandle *testing.T) {
	for _, format := range []string{"text", "markdown", "html", "stream-json"} {
		testutil.RequireNoError(testingHandle, validateOutputFormat(format), format)
	}
	testutil.RequireError(testingHandle, validateOutputFormat("json"), "json is not supported")
}

// TestPrintPanelStreamsSuffixes verifies plain output is written incrementally.
func TestPrintPanelStreamsSuffixes(testingHandle *testing.T) {
	var out bytes.Buffer
	panel := newPrintPanel(&out, true)

	panel.SetAnswerMarkup("")
	panel.SetAnswerMarkup("Sun")
	testutil.RequireEqual(testingHandle, out.String(), "Sun", "first suffix")
	panel.SetAnswerMarkup("Sunlight")
	panel.Finish()

	testutil.RequireEqual(testingHandle, out.String(), "Sunlight\n", "full output")
}

// TestLoggerConfig verifies the TUI never logs to the terminal.
func TestLoggerConfig(testingHandle *testing.T) {
	cfg := &config.ProviderConfig{LogLevel: "warn"}

	interactive := loggerConfig(cfg, &options{Debug: true}, true)
	testutil.RequireEqual(testingHandle, len(interactive.OutputPaths), 0, "no terminal logging in the TUI")
	testutil.RequireEqual(testingHandle, interactive.Level, "debug", "debug level")

	oneShot := loggerConfig(cfg, &options{Debug: true}, false)
	testutil.RequireEqual(testingHandle, oneShot.OutputPaths, []string{"stderr"}, "stderr in one-shot debug")

	toFile := loggerConfig(&config.ProviderConfig{LogFile: "/tmp/explain.log"}, &options{}, true)
	testutil.RequireEqual(testingHandle, toFile.OutputPaths, []string{"/tmp/explain.log"}, "config log file")
}

// TestOutlineCommand verifies the outline subcommand prints top-level titles.
func TestOutlineCommand(testingHandle *testing.T) {
	docPath := filepath.Join(testingHandle.TempDir(), "guide.md")
	testutil.RequireNoError(testingHandle, os.WriteFile(docPath, []byte("# Intro\n## Detail\n# Usage\n"), 0o600), "write doc")
	root := newRootCommand(&options{})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"outline", docPath})

	testutil.RequireNoError(testingHandle, root.Execute(), "execute")

	testutil.RequireEqual(testingHandle, out.String(), "Intro\nUsage\n", "outline output")
}

// TestVersionFlag verifies --version prints the build version.
func TestVersionFlag(testingHandle *testing.T) {
	root := newRootCommand(&options{})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})

	testutil.RequireNoError(testingHandle, root.Execute(), "execute")

	testutil.RequireEqual(testingHandle, strings.TrimSpace(out.String()), version, "version output")
}

// TestDoctorPing verifies doctor loads config and pings the provider.
func TestDoctorPing(testingHandle *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, _ *http.Request) {
		responseWriter.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(responseWriter, `{"id":"1","model":"model-x","choices":[{"index":0,"message":{"role":"assistant","content":"pong"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()
	configPath := filepath.Join(testingHandle.TempDir(), "config.json")
	body := fmt.Sprintf(`{"api_base_url":%q,"default_model":"model-x"}`, server.URL)
	testutil.RequireNoError(testingHandle, os.WriteFile(configPath, []byte(body), 0o600), "write config")

	root := newRootCommand(&options{})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"doctor", "--ping", "--config", configPath})

	testutil.RequireNoError(testingHandle, root.Execute(), "execute")

	testutil.RequireStringContains(testingHandle, out.String(), "OK: provider config", "config check")
	testutil.RequireStringContains(testingHandle, out.String(), `answered "pong"`, "ping reply")
}
