package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/rebalance/internal/backtest"
	btengine "github.com/ajitpratap0/rebalance/pkg/backtest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

// memoryRuns implements both the service's RunRepository and RunReader
type memoryRuns struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*backtest.Run
	err  error
}

func newMemoryRuns() *memoryRuns {
	return &memoryRuns{runs: make(map[uuid.UUID]*backtest.Run)}
}

func (m *memoryRuns) CreateRun(_ context.Context, run *backtest.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ID = uuid.New()
	run.Status = backtest.RunStatusPending
	m.runs[run.ID] = run
	return nil
}

func (m *memoryRuns) UpdateStatus(_ context.Context, id uuid.UUID, status backtest.RunStatus, errorMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return backtest.ErrRunNotFound
	}
	run.Status = status
	run.ErrorMessage = errorMsg
	return nil
}

func (m *memoryRuns) SaveResults(_ context.Context, id uuid.UUID, report *btengine.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return backtest.ErrRunNotFound
	}
	run.Status = backtest.RunStatusCompleted
	run.Results = report
	return nil
}

func (m *memoryRuns) GetRun(_ context.Context, id uuid.UUID) (*backtest.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	run, ok := m.runs[id]
	if !ok {
		return nil, backtest.ErrRunNotFound
	}
	return run, nil
}

func (m *memoryRuns) ListRuns(_ context.Context, status backtest.RunStatus, limit, offset int) ([]*backtest.Run, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, 0, m.err
	}
	var matched []*backtest.Run
	for _, r := range m.runs {
		if status == "" || r.Status == status {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	total := len(matched)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)
	return matched[offset:end], total, nil
}

func (m *memoryRuns) DeleteRun(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[id]; !ok {
		return backtest.ErrRunNotFound
	}
	delete(m.runs, id)
	return nil
}

func (m *memoryRuns) add(name string, status backtest.RunStatus) *backtest.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := &backtest.Run{ID: uuid.New(), Name: name, Status: status, Tickers: []string{"SPY"}, Weights: []float64{1}}
	m.runs[run.ID] = run
	return run
}

// inlineSeries is the three-day A/B/IDX fixture
func inlineSeries() map[string][]backtest.SeriesPoint {
	points := func(prices ...float64) []backtest.SeriesPoint {
		dates := []string{"2021-01-04", "2021-01-05", "2021-01-06"}
		out := make([]backtest.SeriesPoint, len(prices))
		for i, p := range prices {
			out[i] = backtest.SeriesPoint{Date: dates[i], Price: p}
		}
		return out
	}
	return map[string][]backtest.SeriesPoint{
		"A":   points(100, 110, 121),
		"B":   points(100, 100, 100),
		"IDX": points(400, 404, 402),
	}
}

func newTestServer(t *testing.T, mutate func(cfg *Config)) *Server {
	t.Helper()
	cfg := Config{
		Host:       "127.0.0.1",
		Port:       0,
		Benchmarks: []string{"SPY", "QQQ"},
		Version:    "test",
		Service:    backtest.NewService(nil, backtest.Options{}),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewServer(cfg)
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

var errBoom = errors.New("boom")
