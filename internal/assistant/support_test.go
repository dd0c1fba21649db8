package assistant

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/docexplain/docexplain/internal/testutil"
)

func TestChunkDecoderHoldsSplitRunes(testingHandle *testing.T) {
	raw := []byte("héllo 日本語 ok")

	for split := 0; split <= len(raw); split++ {
		decoder := &chunkDecoder{}
		text := decoder.Decode(raw[:split]) + decoder.Decode(raw[split:]) + decoder.Flush()
		testutil.RequireEqual(testingHandle, text, string(raw), "split decode")
	}

	decoder := &chunkDecoder{}
	var builder strings.Builder
	for index := range raw {
		builder.WriteString(decoder.Decode(raw[index : index+1]))
	}
	builder.WriteString(decoder.Flush())
	testutil.RequireEqual(testingHandle, builder.String(), string(raw), "byte-wise decode")
}

func TestChunkDecoderFlushesTruncatedRune(testingHandle *testing.T) {
	decoder := &chunkDecoder{}
	head := decoder.Decode([]byte{'a', 0xE6, 0x97})

	testutil.RequireEqual(testingHandle, head, "a", "incomplete rune held back")
	testutil.RequireEqual(testingHandle, decoder.Flush(), string([]byte{0xE6, 0x97}), "held bytes flushed")
	testutil.RequireEqual(testingHandle, decoder.Flush(), "", "flush empties the decoder")
}

func TestBuildPromptFillsPlaceholders(testingHandle *testing.T) {
	prompt, err := BuildPrompt("", "Chlorophyll absorbs light.", []string{"Cells", "Energy \"flow\""})
	testutil.RequireNoError(testingHandle, err, "build prompt")

	testutil.RequireTrue(testingHandle, strings.HasPrefix(prompt, "Chlorophyll absorbs light.\n"), "selection leads the prompt")
	testutil.RequireStringContains(testingHandle, prompt, `["Cells","Energy \"flow\""]`, "outline encoded as JSON")
	testutil.RequireStringNotContains(testingHandle, prompt, selectionPlaceholder, "selection placeholder replaced")
	testutil.RequireStringNotContains(testingHandle, prompt, outlinePlaceholder, "outline placeholder replaced")
}

func TestBuildPromptCustomTemplateAndEmptyOutline(testingHandle *testing.T) {
	prompt, err := BuildPrompt("Explain {{selection}} within {{outline}}", "{{outline}}", nil)
	testutil.RequireNoError(testingHandle, err, "build prompt")

	// Placeholders inside the selection are not expanded a second time.
	testutil.RequireEqual(testingHandle, prompt, "Explain {{outline}} within []", "custom template")
}

func TestRendererReRendersAccumulatedText(testingHandle *testing.T) {
	calls := 0
	renderer := NewRenderer(func(text string) string {
		calls++
		return strings.ToUpper(text)
	})

	testutil.RequireEqual(testingHandle, renderer.Apply("sun"), "SUN", "first delta")
	testutil.RequireEqual(testingHandle, renderer.Apply("light"), "SUNLIGHT", "second delta")
	testutil.RequireEqual(testingHandle, renderer.Text(), "sunlight", "raw text")
	testutil.RequireEqual(testingHandle, renderer.Markup(), "SUNLIGHT", "markup")
	testutil.RequireEqual(testingHandle, calls, 2, "one render per delta")

	renderer.Reset()
	testutil.RequireEqual(testingHandle, renderer.Text(), "", "reset text")
	testutil.RequireEqual(testingHandle, renderer.Markup(), "", "reset markup")
	testutil.RequireEqual(testingHandle, NewRenderer(nil).Apply("plain"), "plain", "nil markup is identity")
}

func TestStateNames(testingHandle *testing.T) {
	names := map[State]string{
		StateIdle:      "idle",
		StateAwaiting:  "awaiting",
		StateStreaming: "streaming",
		StateAborted:   "aborted",
		StateErrored:   "errored",
		StateClosed:    "closed",
	}
	for state, name := range names {
		testutil.AssertEqual(testingHandle, state.String(), name, "state name")
		testutil.AssertEqual(testingHandle, state.Active(), state == StateAwaiting || state == StateStreaming, "active "+name)
	}
}

func TestSurfaceIgnoresEmptySelection(testingHandle *testing.T) {
	transport := &fakeTransport{respond: func(context.Context, int) (io.ReadCloser, error) {
		return &chunkBody{}, nil
	}}
	controller, panel := newTestController(testingHandle, transport, nil)
	surface := Surface{Controller: controller, Selection: SelectionFunc(func() string { return "  " })}

	session, err := surface.Activate(context.Background())

	testutil.RequireNoError(testingHandle, err, "activate")
	testutil.RequireTrue(testingHandle, session == nil, "no session")
	testutil.RequireTrue(testingHandle, !surface.Enabled(), "surface disabled")
	testutil.RequireEqual(testingHandle, transport.calls(), 0, "no request")
	testutil.RequireEqual(testingHandle, panel.snapshot().shows, 0, "panel untouched")

	surface.CloseAction()
	testutil.RequireEqual(testingHandle, panel.snapshot().hides, 0, "close is a no-op")

	var unbound Surface
	session, err = unbound.Activate(context.Background())
	testutil.RequireNoError(testingHandle, err, "unbound activate")
	testutil.RequireTrue(testingHandle, session == nil, "unbound surface does nothing")
}
