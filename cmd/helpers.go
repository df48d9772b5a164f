// File: cmd/helpers.go
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/polyplug/api/schemas"
	"github.com/xkilldash9x/polyplug/internal/bridge"
	"github.com/xkilldash9x/polyplug/internal/config"
	"github.com/xkilldash9x/polyplug/internal/dom/htmldom"
	"github.com/xkilldash9x/polyplug/internal/events"
	"github.com/xkilldash9x/polyplug/internal/signals"
)

// openPath opens a file, expanding a leading ~.
func openPath(path string) (*os.File, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand path %q: %w", path, err)
	}
	f, err := os.Open(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", path, err)
	}
	return f, nil
}

func readPath(path string) ([]byte, error) {
	f, err := openPath(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func loadDocument(path string, logger *zap.Logger) (*htmldom.Document, error) {
	f, err := openPath(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := htmldom.Parse(f, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", path, err)
	}
	return doc, nil
}

// newBridge builds a bridge with the configured rebind policy.
func newBridge(doc *htmldom.Document, cfg *config.Config, logger *zap.Logger) (*bridge.Bridge, error) {
	policy, err := events.ParseRebindPolicy(cfg.Events.RebindPolicy)
	if err != nil {
		return nil, err
	}
	return bridge.New(doc, bridge.WithLogger(logger), bridge.WithRebindPolicy(policy)), nil
}

// signalLine is the JSONL shape of one output signal.
type signalLine struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Kind      string      `json:"kind"`
	Payload   interface{} `json:"payload"`
}

// signalPrinter writes every signal it records as one JSON line.
type signalPrinter struct {
	mu     sync.Mutex
	enc    *json.Encoder
	logger *zap.Logger
}

func newSignalPrinter(w io.Writer, logger *zap.Logger) *signalPrinter {
	return &signalPrinter{enc: json.NewEncoder(w), logger: logger}
}

func (p *signalPrinter) Print(s signals.Signal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	line := signalLine{ID: s.ID, Timestamp: s.Timestamp, Kind: string(s.Kind), Payload: s.Payload}
	if err := p.enc.Encode(line); err != nil {
		p.logger.Error("Failed to write signal", zap.String("kind", string(s.Kind)), zap.Error(err))
	}
}

// fireSpec is a parsed QUERY:EVENT pair.
type fireSpec struct {
	query     *schemas.Query
	eventType string
}

// parseFireSpec splits on the last colon. Event names never contain one.
func parseFireSpec(s string) (fireSpec, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return fireSpec{}, fmt.Errorf("invalid --fire value %q (want QUERY:EVENT)", s)
	}
	q, err := schemas.ParseQuery(s[:i])
	if err != nil {
		return fireSpec{}, fmt.Errorf("invalid --fire query %q: %w", s[:i], err)
	}
	return fireSpec{query: q, eventType: s[i+1:]}, nil
}

func parseFireSpecs(values []string) ([]fireSpec, error) {
	specs := make([]fireSpec, 0, len(values))
	for _, v := range values {
		spec, err := parseFireSpec(v)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// fire dispatches spec's event on every node the query matches and returns
// how many listeners ran.
func fire(doc *htmldom.Document, br *bridge.Bridge, spec fireSpec, logger *zap.Logger) (int, error) {
	nodes, err := br.Locator().Resolve(spec.query)
	if err != nil {
		return 0, err
	}
	if len(nodes) == 0 {
		logger.Warn("Fire target matched nothing", zap.String("query", spec.query.String()), zap.String("event", spec.eventType))
	}
	total := 0
	for _, n := range nodes {
		total += doc.Dispatch(n, spec.eventType)
	}
	return total, nil
}
