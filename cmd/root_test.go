// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/polyplug/internal/observability"
)

const testPage = `<html><head></head><body><ul id="list"><li>a</li></ul><button id="b" class="btn">go</button></body></html>`

// resetForTest isolates the global logger and keeps it quiet.
func resetForTest(t *testing.T) {
	t.Helper()
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)
	t.Setenv("POLYPLUG_LOGGER_LEVEL", "fatal")
}

// syncBuffer lets a test read output a command goroutine is still writing.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func executeCommand(t *testing.T, ctx context.Context, stdin string, out io.Writer, args ...string) error {
	t.Helper()
	root := NewRootCommand()
	root.SetOut(out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := executeCommand(t, context.Background(), stdin, &out, args...)
	return out.String(), err
}

// decodeSignals parses the leading JSON lines of a command's output.
func decodeSignals(t *testing.T, output string) []signalLine {
	t.Helper()
	var got []signalLine
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if !strings.HasPrefix(line, "{") {
			break
		}
		var s signalLine
		require.NoError(t, json.UnmarshalFromString(line, &s), line)
		got = append(got, s)
	}
	return got
}

func TestRootCmd_VersionFlag(t *testing.T) {
	resetForTest(t)
	out, err := execute(t, "", "--version")
	require.NoError(t, err)
	assert.Equal(t, "polyplug version "+Version+"\n", out)
}

func TestVersionCmd(t *testing.T) {
	resetForTest(t)
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "polyplug version "+Version+"\n", out)
}

func TestRootCmd_InvalidConfigFile(t *testing.T) {
	resetForTest(t)
	cfgPath := writeFile(t, "config.yaml", "events:\n  rebind_policy: sometimes\n")

	_, err := execute(t, "", "--config", cfgPath, "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events.rebind_policy")
}

func TestRootCmd_MissingConfigFile(t *testing.T) {
	resetForTest(t)
	_, err := execute(t, "", "--config", filepath.Join(t.TempDir(), "absent.yaml"), "version")
	assert.Error(t, err)
}

func TestRunCmd_MessageDispatch(t *testing.T) {
	resetForTest(t)
	page := writeFile(t, "page.html", testPage)
	messages := writeFile(t, "messages.jsonl", strings.Join([]string{
		`{"type":"stdout","content":"hi"}`,
		`not json`,
		`{"type":"bogus"}`,
		``,
		`{"type":"updateDOM","query":{"id":"list"},"target":{"nodeType":1,"tagName":"ul","attributes":{"id":"list"},"childNodes":[` +
			`{"nodeType":1,"tagName":"li","childNodes":[{"nodeType":3,"nodeName":"#text","nodeValue":"x","childNodes":[]}]},` +
			`{"nodeType":1,"tagName":"li","childNodes":[{"nodeType":3,"nodeName":"#text","nodeValue":"y","childNodes":[]}]}]}}`,
		`{"type":"registerEvent","query":{"id":"b"},"eventType":"click","listener":"L1"}`,
	}, "\n"))

	out, err := execute(t, "", "run", "--html", page, "--messages", messages, "--fire", "#b:click", "--dump")
	require.NoError(t, err)

	got := decodeSignals(t, out)
	require.Len(t, got, 3)

	assert.Equal(t, "stdout", got[0].Kind)
	assert.Equal(t, "hi", got[0].Payload)

	assert.Equal(t, "error", got[1].Kind)
	errCtx, ok := got[1].Payload.(map[string]interface{})
	require.True(t, ok, "error payload is a JSON object")
	assert.Equal(t, "MalformedMessage", errCtx["type"])

	assert.Equal(t, "event", got[2].Kind)
	forward, ok := got[2].Payload.(string)
	require.True(t, ok, "event payload is a JSON string")
	var payload map[string]interface{}
	require.NoError(t, json.UnmarshalFromString(forward, &payload))
	assert.Equal(t, "click", payload["type"])
	assert.Equal(t, "L1", payload["listener"])

	assert.Contains(t, out, `<ul id="list"><li>x</li><li>y</li></ul>`)
}

func TestRunCmd_Stdin(t *testing.T) {
	resetForTest(t)
	page := writeFile(t, "page.html", testPage)

	out, err := execute(t, `{"type":"stderr","content":"from stdin"}`+"\n", "run", "--html", page)
	require.NoError(t, err)

	got := decodeSignals(t, out)
	require.Len(t, got, 1)
	assert.Equal(t, "stderr", got[0].Kind)
	assert.Equal(t, "from stdin", got[0].Payload)
	assert.NotEmpty(t, got[0].ID)
}

func TestRunCmd_RebindPolicyFromEnv(t *testing.T) {
	resetForTest(t)
	t.Setenv("POLYPLUG_EVENTS_REBIND_POLICY", "reject")
	page := writeFile(t, "page.html", testPage)
	register := `{"type":"registerEvent","query":{"id":"b"},"eventType":"click","listener":"L1"}`

	out, err := execute(t, register+"\n"+register+"\n", "run", "--html", page)
	require.NoError(t, err)

	got := decodeSignals(t, out)
	require.Len(t, got, 1)
	assert.Equal(t, "error", got[0].Kind)
	errCtx := got[0].Payload.(map[string]interface{})
	assert.Equal(t, "HandlerFault", errCtx["type"])
}

func TestRunCmd_RebindPolicyFlagOverridesEnv(t *testing.T) {
	resetForTest(t)
	t.Setenv("POLYPLUG_EVENTS_REBIND_POLICY", "reject")
	page := writeFile(t, "page.html", testPage)
	register := `{"type":"registerEvent","query":{"id":"b"},"eventType":"click","listener":"L1"}`

	out, err := execute(t, register+"\n"+register+"\n", "run", "--html", page, "--rebind-policy", "replace", "--fire", "button:click")
	require.NoError(t, err)

	got := decodeSignals(t, out)
	require.Len(t, got, 1, "replace leaves exactly one live forwarder")
	assert.Equal(t, "event", got[0].Kind)
}

func TestRunCmd_Validation(t *testing.T) {
	resetForTest(t)
	page := writeFile(t, "page.html", testPage)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing html", []string{"run"}, "html"},
		{"bad fire spec", []string{"run", "--html", page, "--fire", "click"}, "QUERY:EVENT"},
		{"bad fire query", []string{"run", "--html", page, "--fire", "#:click"}, "invalid --fire query"},
		{"follow needs file", []string{"run", "--html", page, "--follow"}, "--follow requires"},
		{"missing page", []string{"run", "--html", filepath.Join(t.TempDir(), "nope.html")}, "failed to open"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, "", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunCmd_Follow(t *testing.T) {
	resetForTest(t)
	page := writeFile(t, "page.html", testPage)
	messages := writeFile(t, "feed.jsonl", `{"type":"stdout","content":"first"}`+"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- executeCommand(t, ctx, "", out, "run", "--html", page, "--messages", messages, "--follow", "--poll")
	}()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), `"first"`) }, 5*time.Second, 20*time.Millisecond)

	f, err := os.OpenFile(messages, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"type":"stdout","content":"second"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool { return strings.Contains(out.String(), `"second"`) }, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run --follow did not stop after cancellation")
	}
}

func TestScriptCmd(t *testing.T) {
	resetForTest(t)
	page := writeFile(t, "page.html", testPage)
	script := writeFile(t, "app.js", `
		var clicks = 0;
		polyplug.onEvent(function (raw) {
			var ev = JSON.parse(raw);
			clicks++;
			polyplug.send({type: "stdout", content: "clicked " + ev.listener + " " + clicks});
		});
		polyplug.send({type: "registerEvent", query: polyplug.query(".btn"), eventType: "click", listener: "L1"});
		console.log("registered");
	`)

	out, err := execute(t, "", "script", script, "--html", page, "--fire", "#b:click", "--fire", "#b:click")
	require.NoError(t, err)

	var stdout []string
	for _, s := range decodeSignals(t, out) {
		if s.Kind == "stdout" {
			stdout = append(stdout, s.Payload.(string))
		}
	}
	assert.Equal(t, []string{"clicked L1 1", "clicked L1 2"}, stdout)
}

func TestScriptCmd_Failure(t *testing.T) {
	resetForTest(t)
	page := writeFile(t, "page.html", testPage)

	t.Run("exception", func(t *testing.T) {
		script := writeFile(t, "bad.js", `throw new Error("nope")`)
		_, err := execute(t, "", "script", script, "--html", page)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nope")
	})

	t.Run("timeout flag", func(t *testing.T) {
		script := writeFile(t, "spin.js", `for (;;) {}`)
		_, err := execute(t, "", "script", script, "--html", page, "--timeout", "50ms")
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestEncodeCmd(t *testing.T) {
	resetForTest(t)
	page := writeFile(t, "page.html", testPage)

	t.Run("shorthand", func(t *testing.T) {
		out, err := execute(t, "", "encode", "--html", page, "--query", "li")
		require.NoError(t, err)
		assert.Equal(t,
			`{"nodeType":1,"tagName":"li","childNodes":[{"nodeType":3,"nodeName":"#text","nodeValue":"a","childNodes":[]}]}`+"\n",
			out)
	})

	t.Run("json object", func(t *testing.T) {
		out, err := execute(t, "", "encode", "--html", page, "-q", `{"classname":"btn"}`)
		require.NoError(t, err)
		assert.Contains(t, out, `"attributes":{"id":"b","class":"btn"}`)
	})

	t.Run("no match prints nothing", func(t *testing.T) {
		out, err := execute(t, "", "encode", "--html", page, "-q", "#missing")
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("empty query object", func(t *testing.T) {
		_, err := execute(t, "", "encode", "--html", page, "-q", `{}`)
		assert.Error(t, err)
	})
}

func TestParseFireSpec(t *testing.T) {
	spec, err := parseFireSpec("div > span:mouseover")
	require.NoError(t, err)
	assert.Equal(t, "div > span", spec.query.CSS)
	assert.Equal(t, "mouseover", spec.eventType)

	for _, bad := range []string{"", "click", ":click", "#b:"} {
		_, err := parseFireSpec(bad)
		assert.Error(t, err, bad)
	}
}
