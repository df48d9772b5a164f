package jsexec_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/polyplug/internal/bridge"
	"github.com/xkilldash9x/polyplug/internal/dom/htmldom"
	"github.com/xkilldash9x/polyplug/internal/jsexec"
	"github.com/xkilldash9x/polyplug/internal/signals"
)

type env struct {
	doc  *htmldom.Document
	host *jsexec.Host
	out  *signals.Recorder
}

// newTestEnv wires a page, a bridge and a host. The host is closed in
// t.Cleanup so goleak sees the loop goroutine gone.
func newTestEnv(t *testing.T, opts ...jsexec.Option) *env {
	t.Helper()
	logger := zaptest.NewLogger(t)
	doc, err := htmldom.ParseString(`<div id="app"><button id="go">Go</button><span id="count">0</span></div>`, logger)
	require.NoError(t, err)

	br := bridge.New(doc, bridge.WithLogger(logger))
	out := &signals.Recorder{}
	br.Subscribe(out.Record, signals.Stdout, signals.Stderr, signals.Error)

	host := jsexec.NewHost(br, logger, opts...)
	t.Cleanup(host.Close)
	return &env{doc: doc, host: host, out: out}
}

func TestRun_SendsMessages(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newTestEnv(t)

	err := e.host.Run(context.Background(), `
		polyplug.send('{"type":"stdout","content":"as string"}');
		polyplug.send({type: "stderr", content: "as object"});
	`)
	require.NoError(t, err)

	got := e.out.Signals()
	require.Len(t, got, 2)
	assert.Equal(t, signals.Stdout, got[0].Kind)
	assert.Equal(t, "as string", got[0].Text())
	assert.Equal(t, signals.Stderr, got[1].Kind)
	assert.Equal(t, "as object", got[1].Text())
	e.host.Close()
}

func TestRun_UpdateDOMPreservesAttributeOrder(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newTestEnv(t)

	err := e.host.Run(context.Background(), `
		polyplug.send({
			type: "updateDOM",
			query: polyplug.query("#count"),
			target: {nodeType: 1, tagName: "span", attributes: {id: "count", "data-z": "1", "data-a": "2"},
				childNodes: [{nodeType: 3, nodeName: "#text", nodeValue: "5", childNodes: []}]}
		});
	`)
	require.NoError(t, err)

	assert.Equal(t, `<span id="count" data-z="1" data-a="2">5</span>`, e.doc.OuterHTML(e.doc.GetElementByID("count")))
	assert.Empty(t, e.out.Signals())
	e.host.Close()
}

func TestFire_DeliversEventsToScript(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, e.host.Run(ctx, `
		var clicks = 0;
		polyplug.onEvent(function (raw) {
			var ev = JSON.parse(raw);
			clicks++;
			polyplug.send({type: "stdout", content: ev.listener + ":" + ev.type + ":" + ev.target.tagName + ":" + clicks});
			polyplug.send({type: "updateDOM", query: {id: "count"},
				target: {nodeType: 1, tagName: "span", attributes: {id: "count"},
					childNodes: [{nodeType: 3, nodeName: "#text", nodeValue: String(clicks), childNodes: []}]}});
		});
		polyplug.send({type: "registerEvent", query: polyplug.query("button"), eventType: "click", listener: "L1"});
	`))

	button := e.doc.GetElementByID("go")
	for i := 0; i < 2; i++ {
		require.NoError(t, e.host.Fire(ctx, func() { e.doc.Dispatch(button, "click") }))
	}

	got := e.out.Signals()
	require.Len(t, got, 2)
	assert.Equal(t, "L1:click:button:1", got[0].Text())
	assert.Equal(t, "L1:click:button:2", got[1].Text())
	assert.Equal(t, `<span id="count">2</span>`, e.doc.OuterHTML(e.doc.GetElementByID("count")))
	e.host.Close()
}

func TestOnEvent_Unsubscribe(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, e.host.Run(ctx, `
		var off = polyplug.onEvent(function () { polyplug.send({type: "stdout", content: "seen"}); });
		polyplug.send({type: "registerEvent", query: {id: "go"}, eventType: "click", listener: "L1"});
	`))
	button := e.doc.GetElementByID("go")
	require.NoError(t, e.host.Fire(ctx, func() { e.doc.Dispatch(button, "click") }))
	require.NoError(t, e.host.Run(ctx, `off();`))
	require.NoError(t, e.host.Fire(ctx, func() { e.doc.Dispatch(button, "click") }))

	assert.Len(t, e.out.Signals(), 1)
	e.host.Close()
}

func TestRun_Exception(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newTestEnv(t)

	err := e.host.Run(context.Background(), `throw new Error("kaboom")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "javascript exception")
	assert.Contains(t, err.Error(), "kaboom")

	err = e.host.Run(context.Background(), `polyplug.onEvent(42)`)
	assert.Error(t, err)
	e.host.Close()
}

func TestRun_TimeoutInterrupts(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newTestEnv(t, jsexec.WithTimeout(50*time.Millisecond))

	err := e.host.Run(context.Background(), `for (;;) {}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The VM is usable again afterwards.
	require.NoError(t, e.host.Run(context.Background(), `polyplug.send({type: "stdout", content: "alive"})`))
	require.Len(t, e.out.Signals(), 1)
	e.host.Close()
}

func TestRun_CancelledContext(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := e.host.Run(ctx, `while (true) {}`)
	assert.ErrorIs(t, err, context.Canceled)
	e.host.Close()
}

func TestRun_MalformedSendSurfacesAsErrorSignal(t *testing.T) {
	defer goleak.VerifyNone(t)
	e := newTestEnv(t)

	require.NoError(t, e.host.Run(context.Background(), `polyplug.send("{oops")`))
	got := e.out.Signals()
	require.Len(t, got, 1)
	assert.Equal(t, signals.Error, got[0].Kind)
	assert.Contains(t, got[0].Text(), "MalformedMessage")
	e.host.Close()
}
