// Command replay runs a signal fixture through the real analysis engine with
// a fixed clock, checks the results, and prints the counts that test
// assertions are written against. With -brokers it also publishes the
// fixture to the source topic so a running service can consume it.
//
// Usage:
//
//	go run ./cmd/replay \
//	  -in data/mock/signals.json \
//	  -out data/mock/assessments.json \
//	  -brokers localhost:9092 -topic disaster-signals
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	kafkaadapter "github.com/couchcryptid/disaster-alert-service/internal/adapter/kafka"
	"github.com/couchcryptid/disaster-alert-service/internal/alerting"
	"github.com/couchcryptid/disaster-alert-service/internal/analysis"
	"github.com/couchcryptid/disaster-alert-service/internal/domain"
	"github.com/couchcryptid/disaster-alert-service/internal/notify"
	"github.com/couchcryptid/disaster-alert-service/internal/observability"
	"github.com/couchcryptid/disaster-alert-service/internal/reports"
	"github.com/couchcryptid/disaster-alert-service/internal/scoring"
	"github.com/couchcryptid/disaster-alert-service/internal/store"
	"github.com/couchcryptid/disaster-alert-service/internal/weather"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/jonboulle/clockwork"
)

var replayTime = time.Date(2025, time.July, 14, 6, 0, 0, 0, time.UTC)

// phase tracks pass/fail for a check phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// outcome is one fixture entry and what the engine made of it.
type outcome struct {
	Index  int              `json:"index"`
	Result *analysis.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

func main() {
	in := flag.String("in", "data/mock/signals.json", "signal fixture to replay")
	out := flag.String("out", "", "optional output path for the analysis results")
	brokers := flag.String("brokers", "", "comma-separated Kafka brokers; publishes the fixture when set")
	topic := flag.String("topic", "disaster-signals", "source topic to publish to")
	flag.Parse()

	if code := run(*in, *out, *brokers, *topic); code != 0 {
		os.Exit(code)
	}
}

func run(in, out, brokers, topic string) int {
	clock := clockwork.NewFakeClockAt(replayTime)
	domain.SetClock(clock)
	defer domain.SetClock(nil)

	ctx := context.Background()

	raws, err := loadFixture(in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load fixture: %v\n", err)
		return 1
	}

	parsed := &phase{name: "Envelopes parse"}
	analyzed := &phase{name: "Envelopes analyze"}
	rules := &phase{name: "Alert rules hold"}

	analyzer := newEngine(clock)
	outcomes := make([]outcome, 0, len(raws))
	for i, raw := range raws {
		env, err := domain.ParseRawEvent(domain.RawEvent{Value: raw, Timestamp: replayTime})
		if err != nil {
			parsed.errorf("entry %d: %v", i, err)
			outcomes = append(outcomes, outcome{Index: i, Error: err.Error()})
			continue
		}
		res, err := analyzer.Process(ctx, env)
		if err != nil {
			analyzed.errorf("entry %d (%s %s): %v", i, env.Kind, env.City, err)
			outcomes = append(outcomes, outcome{Index: i, Error: err.Error()})
			continue
		}
		checkRules(rules, i, res)
		outcomes = append(outcomes, outcome{Index: i, Result: &res})
	}

	if out != "" {
		if err := writeJSON(out, outcomes); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: write results: %v\n", err)
			return 1
		}
		fmt.Printf("wrote results: %s\n", out)
	}

	printStats(outcomes)

	allPassed := report([]*phase{parsed, analyzed, rules})

	if brokers != "" {
		if err := publish(ctx, sharedcfg.ParseBrokers(brokers), topic, raws); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: publish: %v\n", err)
			return 1
		}
		fmt.Printf("published %d signals to %s\n", len(raws), topic)
	}

	if !allPassed {
		return 1
	}
	return 0
}

// newEngine wires the analyzer over an in-memory store. Weather lookups are
// served synthetically; fixture weather envelopes carry their own payloads.
func newEngine(clock clockwork.Clock) *analysis.Analyzer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()

	st := store.NewMemory()
	disp := notify.NewDispatcher(notify.DispatcherConfig{}, clock, logger, metrics)
	agg := alerting.NewAggregator(st, clock, logger, metrics)
	mgr := alerting.NewManager(st, disp, clock, logger, metrics)
	svc := reports.NewService(st, agg, mgr, disp, clock, logger)

	return analysis.New(analysis.Deps{
		Scorer:     scoring.New(scoring.DefaultTables()),
		Weather:    weather.NewFetcher(weather.SimulatedProvider{}, weather.Options{Attempts: 1, Simulate: true}, logger, metrics),
		Snapshots:  st,
		Aggregator: agg,
		Publisher:  disp,
		Reports:    svc,
		Clock:      clock,
		Logger:     logger,
		Metrics:    metrics,
	})
}

func checkRules(p *phase, i int, res analysis.Result) {
	level := res.Assessment.RiskLevel
	switch {
	case res.Simulated && res.Alert != nil:
		p.errorf("entry %d (%s): simulated data produced alert %s", i, res.City, res.Alert.ID)
	case res.Alert != nil && level.Alerting() < domain.RiskHigh:
		p.errorf("entry %d (%s): alert raised at %s", i, res.City, level)
	case res.Alert != nil && res.Alert.DisasterType != res.Assessment.DisasterType:
		p.errorf("entry %d (%s): alert type %s, assessment type %s", i, res.City, res.Alert.DisasterType, res.Assessment.DisasterType)
	case res.Action == alerting.ActionCreate && res.Alert == nil:
		p.errorf("entry %d (%s): created action without alert", i, res.City)
	}
}

func report(phases []*phase) bool {
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll checks passed.")
	} else {
		fmt.Println("\nReplay FAILED.")
	}
	return allPassed
}

func printStats(outcomes []outcome) {
	kinds := map[string]int{}
	levels := map[string]int{}
	actions := map[string]int{}
	alerts := 0
	for _, o := range outcomes {
		if o.Result == nil {
			continue
		}
		kinds[o.Result.Kind]++
		levels[o.Result.Assessment.RiskLevel.String()]++
		if o.Result.Action != "" {
			actions[string(o.Result.Action)]++
		}
		if o.Result.Alert != nil {
			alerts++
		}
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Total: %d\n", len(outcomes))
	fmt.Printf("By kind: %s\n", formatCounts(kinds))
	fmt.Printf("By level: %s\n", formatCounts(levels))
	fmt.Printf("By action: %s\n", formatCounts(actions))
	fmt.Printf("With alert: %d\n", alerts)
}

func formatCounts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s := ""
	for _, k := range keys {
		s += fmt.Sprintf("%s=%d ", k, m[k])
	}
	return s
}

func loadFixture(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return raws, nil
}

func publish(ctx context.Context, brokers []string, topic string, raws []json.RawMessage) error {
	w := kafkaadapter.NewWriter(brokers, topic, slog.Default())
	defer w.Close()

	events := make([]domain.OutputEvent, 0, len(raws))
	for _, raw := range raws {
		var head struct {
			City string `json:"city"`
		}
		_ = json.Unmarshal(raw, &head)
		events = append(events, domain.OutputEvent{
			Key:     []byte(domain.CityKey(head.City)),
			Value:   raw,
			Headers: map[string]string{"source": "replay"},
		})
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return w.LoadBatch(ctx, events)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
