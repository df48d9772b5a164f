package router_test

import (
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/polyplug/api/schemas"
	"github.com/xkilldash9x/polyplug/internal/codec"
	"github.com/xkilldash9x/polyplug/internal/dom/htmldom"
	"github.com/xkilldash9x/polyplug/internal/events"
	"github.com/xkilldash9x/polyplug/internal/locator"
	"github.com/xkilldash9x/polyplug/internal/reconcile"
	"github.com/xkilldash9x/polyplug/internal/router"
	"github.com/xkilldash9x/polyplug/internal/signals"
)

const page = `<div id="app"><p class="msg">old</p><p class="msg">other</p></div><button id="go">Go</button>`

type harness struct {
	doc    *htmldom.Document
	router *router.Router
	rec    *signals.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	doc, err := htmldom.ParseString(page, logger)
	require.NoError(t, err)

	bus := signals.NewBus(logger)
	rec := &signals.Recorder{}
	bus.Subscribe(rec.Record)

	loc := locator.New(doc, logger)
	c := codec.New(doc, logger)
	ev := events.NewBridge(loc, c, events.NewRegistry(), bus, events.RebindOrphan, logger)
	return &harness{
		doc:    doc,
		router: router.New(loc, c, reconcile.New(logger), ev, bus, logger),
		rec:    rec,
	}
}

func errorContext(t *testing.T, s signals.Signal) schemas.ErrorContext {
	t.Helper()
	require.Equal(t, signals.Error, s.Kind)
	var ctx schemas.ErrorContext
	require.NoError(t, json.Unmarshal([]byte(s.Text()), &ctx))
	return ctx
}

func TestReceiveMessage_Stdout(t *testing.T) {
	h := newHarness(t)
	h.router.ReceiveMessage(`{"type":"stdout","content":"hi"}`)

	got := h.rec.Signals()
	require.Len(t, got, 1)
	assert.Equal(t, signals.Stdout, got[0].Kind)
	assert.Equal(t, "hi", got[0].Payload)
}

func TestReceiveMessage_Stderr(t *testing.T) {
	h := newHarness(t)
	h.router.ReceiveMessage(`{"type":"stderr","content":"boom\n"}`)

	got := h.rec.Signals()
	require.Len(t, got, 1)
	assert.Equal(t, signals.Stderr, got[0].Kind)
	assert.Equal(t, "boom\n", got[0].Payload)
}

func TestReceiveMessage_ErrorContextVerbatim(t *testing.T) {
	h := newHarness(t)
	h.router.ReceiveMessage(`{"type":"error","context":{"type":"ValueError","msg":"bad","extra":[1,2]}}`)
	h.router.ReceiveMessage(`{"type":"error"}`)

	got := h.rec.Signals()
	require.Len(t, got, 2)
	assert.JSONEq(t, `{"type":"ValueError","msg":"bad","extra":[1,2]}`, got[0].Text())
	assert.Equal(t, "null", got[1].Text())
}

func TestReceiveMessage_Malformed(t *testing.T) {
	h := newHarness(t)
	assert.NotPanics(t, func() { h.router.ReceiveMessage("not json") })

	got := h.rec.Signals()
	require.Len(t, got, 1)
	ctx := errorContext(t, got[0])
	assert.Equal(t, schemas.ErrorTypeMalformedMessage, ctx.Type)
	assert.NotEmpty(t, ctx.Msg)
}

func TestReceiveMessage_UnknownTypeIsDropped(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
	}{
		{"Bare", `{"type":"bogus"}`},
		{"NoType", `{}`},
		{"FieldsOfAnotherShape", `{"type":"bogus","query":"#app"}`},
		{"FutureFields", `{"type":"bogus","version":2,"listener":7}`},
		{"NonStringType", `{"type":3,"content":"hi"}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.router.ReceiveMessage(tc.raw)
			assert.Empty(t, h.rec.Signals())
		})
	}
}

func TestReceiveMessage_NonObjectValuesAreDropped(t *testing.T) {
	for _, raw := range []string{`null`, `5`, `"stdout"`, `[{"type":"stdout","content":"hi"}]`, `true`} {
		t.Run(raw, func(t *testing.T) {
			h := newHarness(t)
			assert.NotPanics(t, func() { h.router.ReceiveMessage(raw) })
			assert.Empty(t, h.rec.Signals())
		})
	}
}

func TestReceiveMessage_StdoutIgnoresUnreadFields(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
	}{
		{"NumericListener", `{"type":"stdout","content":"hi","listener":7}`},
		{"BadTarget", `{"type":"stdout","content":"hi","target":{"nodeType":"1"}}`},
		{"StringQuery", `{"type":"stdout","content":"hi","query":"#app"}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.router.ReceiveMessage(tc.raw)

			got := h.rec.Signals()
			require.Len(t, got, 1)
			assert.Equal(t, signals.Stdout, got[0].Kind)
			assert.Equal(t, "hi", got[0].Payload)
		})
	}
}

func TestReceiveMessage_UpdateDOM(t *testing.T) {
	h := newHarness(t)
	app := h.doc.GetElementByID("app")
	firstP := app.ChildNodes()[0]

	h.router.ReceiveMessage(`{"type":"updateDOM","query":{"id":"app"},"target":{"nodeType":1,"tagName":"div","attributes":{"id":"app","class":"ready"},"childNodes":[{"nodeType":1,"tagName":"p","childNodes":[{"nodeType":3,"nodeName":"#text","nodeValue":"new","childNodes":[]}]}]}}`)

	assert.Empty(t, h.rec.Signals())
	assert.Equal(t, `<div id="app" class="ready"><p>new</p></div>`, h.doc.OuterHTML(app))
	assert.True(t, firstP.IsSameNode(app.ChildNodes()[0]))
}

func TestReceiveMessage_UpdateDOMAmbiguousTargetIgnored(t *testing.T) {
	h := newHarness(t)
	before := h.doc.OuterHTML(h.doc.GetElementByID("app"))

	h.router.ReceiveMessage(`{"type":"updateDOM","query":{"classname":"msg"},"target":{"nodeType":1,"tagName":"p"}}`)
	h.router.ReceiveMessage(`{"type":"updateDOM","query":{"id":"missing"},"target":{"nodeType":1,"tagName":"p"}}`)

	assert.Empty(t, h.rec.Signals())
	assert.Equal(t, before, h.doc.OuterHTML(h.doc.GetElementByID("app")))
}

func TestReceiveMessage_HandlerFaults(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
	}{
		{"EmptyQuery", `{"type":"updateDOM","query":{},"target":{"nodeType":1,"tagName":"p"}}`},
		{"MissingQuery", `{"type":"registerEvent","eventType":"click","listener":"L"}`},
		{"BadSelector", `{"type":"removeEvent","query":{"css":"p:hover"},"eventType":"click","listener":"L"}`},
		{"MissingTarget", `{"type":"updateDOM","query":{"id":"app"}}`},
		{"BadTargetShape", `{"type":"updateDOM","query":{"id":"app"},"target":{"nodeType":"1"}}`},
		{"StringQuery", `{"type":"updateDOM","query":"#app","target":{"nodeType":1,"tagName":"p"}}`},
		{"NumericListener", `{"type":"registerEvent","query":{"id":"go"},"eventType":"click","listener":7}`},
		{"NumericEventType", `{"type":"removeEvent","query":{"id":"go"},"eventType":1,"listener":"L"}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			assert.NotPanics(t, func() { h.router.ReceiveMessage(tc.raw) })

			got := h.rec.Signals()
			require.Len(t, got, 1)
			assert.Equal(t, schemas.ErrorTypeHandlerFault, errorContext(t, got[0]).Type)
		})
	}
}

func TestReceiveMessage_PanicBecomesHandlerFault(t *testing.T) {
	logger := zaptest.NewLogger(t)
	doc, err := htmldom.ParseString(page, logger)
	require.NoError(t, err)

	bus := signals.NewBus(logger)
	rec := &signals.Recorder{}
	bus.Subscribe(rec.Record)
	bus.Subscribe(func(signals.Signal) { panic("subscriber exploded") }, signals.Stdout)

	loc := locator.New(doc, logger)
	c := codec.New(doc, logger)
	r := router.New(loc, c, reconcile.New(logger),
		events.NewBridge(loc, c, nil, bus, events.RebindOrphan, logger), bus, logger)

	assert.NotPanics(t, func() { r.ReceiveMessage(`{"type":"stdout","content":"x"}`) })

	got := rec.Signals()
	require.Len(t, got, 2)
	assert.Equal(t, signals.Stdout, got[0].Kind)
	ctx := errorContext(t, got[1])
	assert.Equal(t, schemas.ErrorTypeHandlerFault, ctx.Type)
	assert.Contains(t, ctx.Msg, "subscriber exploded")
}

func TestReceiveMessage_EventRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.router.ReceiveMessage(`{"type":"registerEvent","query":{"id":"go"},"eventType":"click","listener":"L1"}`)
	h.doc.Dispatch(h.doc.GetElementByID("go"), "click")

	got := h.rec.Signals()
	require.Len(t, got, 1)
	assert.Equal(t, signals.Event, got[0].Kind)
	assert.JSONEq(t,
		`{"type":"click","target":{"nodeType":1,"tagName":"button","attributes":{"id":"go"},"childNodes":[{"nodeType":3,"nodeName":"#text","nodeValue":"Go","childNodes":[]}]},"listener":"L1"}`,
		got[0].Text())

	h.router.ReceiveMessage(`{"type":"removeEvent","query":{"id":"go"},"eventType":"click","listener":"L1"}`)
	h.doc.Dispatch(h.doc.GetElementByID("go"), "click")
	assert.Len(t, h.rec.Signals(), 1)
}
