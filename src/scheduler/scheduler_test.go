package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apimgr/weatherdash/src/config"
	"github.com/apimgr/weatherdash/src/database"
	"github.com/apimgr/weatherdash/src/server/metrics"
	"github.com/apimgr/weatherdash/src/server/model"
	"github.com/apimgr/weatherdash/src/server/service"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAddTask_InvalidSchedule(t *testing.T) {
	s := NewScheduler(nil)
	if err := s.AddTask("bad", "not a cron", func(context.Context) error { return nil }); err == nil {
		t.Fatal("AddTask() with invalid schedule should fail")
	}
	if err := s.AddTask("ok", "@hourly", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	if err := s.AddTask("ok", "@daily", func(context.Context) error { return nil }); err == nil {
		t.Error("duplicate AddTask() should fail")
	}
}

func TestRunNow_RecordsHistory(t *testing.T) {
	s := NewScheduler(nil)
	calls := 0
	s.AddTask("flaky", "@hourly", func(context.Context) error {
		calls++
		if calls == 2 {
			return errors.New("boom")
		}
		return nil
	})

	before := testutil.ToFloat64(metrics.SchedulerTasksTotal.WithLabelValues("flaky", "error"))

	if err := s.RunNow(context.Background(), "flaky"); err != nil {
		t.Fatalf("first RunNow() error = %v", err)
	}
	if err := s.RunNow(context.Background(), "flaky"); err == nil {
		t.Fatal("second RunNow() should return the task error")
	}

	if got := testutil.ToFloat64(metrics.SchedulerTasksTotal.WithLabelValues("flaky", "error")); got != before+1 {
		t.Errorf("scheduler_tasks_total{error} = %v, want %v", got, before+1)
	}

	info := s.Tasks()
	if len(info) != 1 {
		t.Fatalf("Tasks() returned %d entries", len(info))
	}
	ti := info[0]
	if ti.RunCount != 2 || ti.SuccessCount != 1 || ti.ErrorCount != 1 {
		t.Errorf("counts = %d/%d/%d, want 2/1/1", ti.RunCount, ti.SuccessCount, ti.ErrorCount)
	}
	if ti.LastRun == nil || ti.LastRun.Status != "error" || ti.LastRun.Error != "boom" {
		t.Errorf("LastRun = %+v", ti.LastRun)
	}
	if len(ti.Recent) != 2 || ti.Recent[0].Status != "error" {
		t.Errorf("Recent = %+v, want newest first", ti.Recent)
	}

	if err := s.RunNow(context.Background(), "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("RunNow(missing) error = %v", err)
	}
}

func TestRunNow_SkipsOverlap(t *testing.T) {
	s := NewScheduler(nil)
	release := make(chan struct{})
	started := make(chan struct{})
	s.AddTask("slow", "@hourly", func(context.Context) error {
		close(started)
		<-release
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.RunNow(context.Background(), "slow")
	}()
	<-started

	if err := s.RunNow(context.Background(), "slow"); !errors.Is(err, ErrTaskRunning) {
		t.Errorf("overlapping RunNow() error = %v, want ErrTaskRunning", err)
	}
	if !s.Tasks()[0].Running {
		t.Error("Tasks() should report the task as running")
	}

	close(release)
	wg.Wait()
}

func TestEnableDisable(t *testing.T) {
	s := NewScheduler(nil)
	var runs atomic.Int32
	s.AddTask("tick", "@every 1h", func(context.Context) error {
		runs.Add(1)
		return nil
	})
	s.AddTask("manual", "", func(context.Context) error { return nil })

	if err := s.DisableTask("tick"); err != nil {
		t.Fatal(err)
	}
	task, _ := s.task("tick")
	s.executeTask(context.Background(), task)
	if runs.Load() != 0 {
		t.Error("disabled task ran from the schedule")
	}

	s.EnableTask("tick")
	s.executeTask(context.Background(), task)
	if runs.Load() != 1 {
		t.Errorf("enabled task ran %d times, want 1", runs.Load())
	}

	s.EnableTask("manual")
	for _, ti := range s.Tasks() {
		if ti.Name == "manual" && ti.Enabled {
			t.Error("a task without a schedule cannot be enabled")
		}
	}
	if err := s.RunNow(context.Background(), "manual"); err != nil {
		t.Errorf("RunNow(manual) error = %v", err)
	}
}

func TestStartStop(t *testing.T) {
	s := NewScheduler(nil)
	s.AddTask("tick", "@every 1h", func(context.Context) error { return nil })
	s.Start()

	info := s.Tasks()
	if info[0].NextRun == nil || time.Until(*info[0].NextRun) > time.Hour {
		t.Errorf("NextRun = %v", info[0].NextRun)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

type fakeWeather struct {
	maxCities int
	cities    []string
	fail      map[string]bool
	batches   [][]string
	pruned    time.Duration
}

func (f *fakeWeather) Refresh(_ context.Context, cities []string) (*service.Report, error) {
	f.batches = append(f.batches, append([]string(nil), cities...))
	report := &service.Report{Data: map[string]service.Conditions{}}
	for _, c := range cities {
		if f.fail[c] {
			report.Failed = append(report.Failed, c)
			continue
		}
		report.Data[c] = service.Conditions{Temperature: 20}
	}
	return report, nil
}

func (f *fakeWeather) Cities() []string { return f.cities }
func (f *fakeWeather) MaxCities() int   { return f.maxCities }
func (f *fakeWeather) PruneHistory(_ context.Context, retention time.Duration) (int64, error) {
	f.pruned = retention
	return 3, nil
}

type fakeSessions struct{ calls int }

func (f *fakeSessions) PurgeExpired(context.Context) (int64, error) {
	f.calls++
	return 1, nil
}

func TestRefreshWeather_Batches(t *testing.T) {
	w := &fakeWeather{maxCities: 2, cities: []string{"Default"}}
	tracked := []string{"a", "b", "c", "d", "e"}

	if err := RefreshWeather(w, func() []string { return tracked })(context.Background()); err != nil {
		t.Fatalf("refresh error = %v", err)
	}
	if got := fmt.Sprint(w.batches); got != "[[a b] [c d] [e]]" {
		t.Errorf("batches = %s", got)
	}

	w.batches = nil
	if err := RefreshWeather(w, nil)(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := fmt.Sprint(w.batches); got != "[[Default]]" {
		t.Errorf("fallback batches = %s", got)
	}

	w.fail = map[string]bool{"Default": true}
	err := RefreshWeather(w, nil)(context.Background())
	if err == nil || !strings.Contains(err.Error(), "all 1 cities failed") {
		t.Errorf("all-failed refresh error = %v", err)
	}
}

func TestRegisterTasks(t *testing.T) {
	s := NewScheduler(nil)
	w := &fakeWeather{maxCities: 10, cities: []string{"London"}}
	sessions := &fakeSessions{}

	err := s.RegisterTasks(TaskConfig{
		RefreshSchedule:        "@every 10m",
		SessionCleanupSchedule: "@hourly",
		HistoryPruneSchedule:   "0 3 * * *",
		HistoryRetention:       48 * time.Hour,
	}, w, sessions)
	if err != nil {
		t.Fatalf("RegisterTasks() error = %v", err)
	}

	var names []string
	for _, ti := range s.Tasks() {
		names = append(names, ti.Name)
	}
	if got := strings.Join(names, ","); got != "weather-refresh,session-cleanup,history-prune" {
		t.Errorf("task order = %s", got)
	}

	ctx := context.Background()
	for _, name := range names {
		if err := s.RunNow(ctx, name); err != nil {
			t.Errorf("RunNow(%s) error = %v", name, err)
		}
	}
	if len(w.batches) != 1 || sessions.calls != 1 || w.pruned != 48*time.Hour {
		t.Errorf("batches=%v sessionCalls=%d pruned=%v", w.batches, sessions.calls, w.pruned)
	}
}

func TestRefreshWeather_BypassesCache(t *testing.T) {
	var calls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"main":{"temp":11,"humidity":70,"pressure":1009},"wind":{"speed":4}}`)
	}))
	defer upstream.Close()

	db, err := database.OpenMemory(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	// defaults: cache ttl equal to the refresh interval
	cfg := config.Default().Weather
	cfg.APIKey = "k"
	cfg.BaseURL = upstream.URL
	observations := &model.ObservationModel{DB: db}
	weather := service.NewWeatherService(cfg, service.WeatherDeps{
		Provider:     service.NewOpenWeatherClient(cfg),
		Cache:        service.NewCacheManager(context.Background(), cfg.CacheTTL, config.CacheConfig{}),
		Observations: observations,
	})

	refresh := RefreshWeather(weather, func() []string { return []string{"Bergen"} })
	for i := 0; i < 2; i++ {
		if err := refresh(context.Background()); err != nil {
			t.Fatalf("refresh %d error = %v", i+1, err)
		}
	}

	if n := calls.Load(); n != 2 {
		t.Errorf("upstream called %d times, want 2", n)
	}
	hist, err := observations.History(context.Background(), "Bergen", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 {
		t.Errorf("recorded %d observations, want 2", len(hist))
	}

	// interactive reads still use the refreshed cache entry
	if _, err := weather.Current(context.Background(), []string{"Bergen"}); err != nil {
		t.Fatal(err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("Current() after refresh called upstream, calls = %d", n)
	}
}
