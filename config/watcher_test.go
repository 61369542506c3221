package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goclaw/intersection/pkg/logger"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

func TestNewWatcher(t *testing.T) {
	loader := NewLoader()

	t.Run("valid config path", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		writeConfig(t, configPath, "app:\n  name: test\n")

		watcher, err := NewWatcher(configPath, loader)
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer watcher.Stop()

		if watcher.ConfigPath() != configPath {
			t.Errorf("expected config path %s, got %s", configPath, watcher.ConfigPath())
		}
	})

	t.Run("empty config path", func(t *testing.T) {
		if _, err := NewWatcher("", loader); err == nil {
			t.Fatal("expected error for empty config path")
		}
	})

	t.Run("with debounce option", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		writeConfig(t, configPath, "app:\n  name: test\n")

		watcher, err := NewWatcher(configPath, loader, WithDebounce(100*time.Millisecond))
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer watcher.Stop()

		if watcher.debounce != 100*time.Millisecond {
			t.Errorf("expected debounce 100ms, got %v", watcher.debounce)
		}
	})
}

func TestWatcher_Watch(t *testing.T) {
	t.Run("detects file changes", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		writeConfig(t, configPath, "intersection:\n  green_seconds: 10\n")

		watcher, err := NewWatcher(configPath, NewLoader(),
			WithDebounce(50*time.Millisecond),
			WithWatcherLogger(logger.Nop()),
		)
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer watcher.Stop()

		received := make(chan *Config, 4)
		watcher.OnChange(func(cfg *Config) { received <- cfg })

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		go watcher.Watch(ctx)

		time.Sleep(100 * time.Millisecond)
		writeConfig(t, configPath, "intersection:\n  green_seconds: 30\nlog:\n  level: debug\n")

		select {
		case cfg := <-received:
			if cfg.Intersection.GreenSeconds != 30 {
				t.Errorf("expected green 30, got %d", cfg.Intersection.GreenSeconds)
			}
			if cfg.Log.Level != "debug" {
				t.Errorf("expected log level 'debug', got '%s'", cfg.Log.Level)
			}
		case <-time.After(3 * time.Second):
			t.Fatal("expected callback after config change")
		}
	})

	t.Run("invalid change keeps callbacks quiet", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		writeConfig(t, configPath, "intersection:\n  green_seconds: 10\n")

		watcher, err := NewWatcher(configPath, NewLoader(),
			WithDebounce(50*time.Millisecond),
			WithWatcherLogger(logger.Nop()),
		)
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer watcher.Stop()

		var mu sync.Mutex
		calls := 0
		watcher.OnChange(func(*Config) {
			mu.Lock()
			calls++
			mu.Unlock()
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		go watcher.Watch(ctx)

		time.Sleep(100 * time.Millisecond)
		writeConfig(t, configPath, "intersection:\n  green_seconds: 2\n")
		time.Sleep(400 * time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		if calls != 0 {
			t.Errorf("expected no callbacks for invalid config, got %d", calls)
		}
	})

	t.Run("unchanged save is ignored", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		content := "intersection:\n  green_seconds: 12\n"
		writeConfig(t, configPath, content)

		watcher, err := NewWatcher(configPath, NewLoader(),
			WithDebounce(50*time.Millisecond),
			WithWatcherLogger(logger.Nop()),
		)
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer watcher.Stop()

		received := make(chan *Config, 4)
		watcher.OnChange(func(cfg *Config) { received <- cfg })

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		go watcher.Watch(ctx)

		time.Sleep(100 * time.Millisecond)
		writeConfig(t, configPath, content)

		select {
		case <-received:
			t.Fatal("identical contents should not trigger a reload")
		case <-time.After(400 * time.Millisecond):
		}

		writeConfig(t, configPath, "intersection:\n  green_seconds: 14\n")
		select {
		case cfg := <-received:
			if cfg.Intersection.GreenSeconds != 14 {
				t.Errorf("expected green 14, got %d", cfg.Intersection.GreenSeconds)
			}
		case <-time.After(3 * time.Second):
			t.Fatal("expected callback after a real change")
		}
	})

	t.Run("stops on context cancel", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		writeConfig(t, configPath, "app:\n  name: test\n")

		watcher, err := NewWatcher(configPath, NewLoader())
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer watcher.Stop()

		ctx, cancel := context.WithCancel(context.Background())
		watchErr := make(chan error, 1)
		go func() {
			watchErr <- watcher.Watch(ctx)
		}()

		time.Sleep(100 * time.Millisecond)
		cancel()

		select {
		case err := <-watchErr:
			if err != context.Canceled {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(time.Second):
			t.Error("watcher did not stop on context cancel")
		}
	})

	t.Run("prevents double watch", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		writeConfig(t, configPath, "app:\n  name: test\n")

		watcher, err := NewWatcher(configPath, NewLoader())
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer watcher.Stop()

		go watcher.Watch(context.Background())
		time.Sleep(100 * time.Millisecond)

		if err := watcher.Watch(context.Background()); err == nil {
			t.Error("expected error when starting double watch")
		}
	})
}

func TestWatcher_Stop(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, configPath, "app:\n  name: test\n")

	watcher, err := NewWatcher(configPath, NewLoader())
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- watcher.Watch(context.Background()) }()
	time.Sleep(100 * time.Millisecond)

	if err := watcher.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := watcher.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() after Stop = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
	if watcher.IsRunning() {
		t.Error("watcher should not be running after Stop")
	}
}

func TestHotReloadableConfig(t *testing.T) {
	base := DefaultConfig()
	h1 := ExtractHotReloadable(base)

	same := DefaultConfig()
	if h1.Changed(ExtractHotReloadable(same)) {
		t.Error("identical configs should not be changed")
	}

	logOnly := DefaultConfig()
	logOnly.Log.Level = "debug"
	h2 := ExtractHotReloadable(logOnly)
	if !h1.Changed(h2) {
		t.Error("log level change should be detected")
	}
	if h1.IntersectionChanged(h2) {
		t.Error("log level change is not an intersection change")
	}

	plan := DefaultConfig()
	plan.Intersection.GreenSeconds = 20
	if !h1.IntersectionChanged(ExtractHotReloadable(plan)) {
		t.Error("green change should be an intersection change")
	}
}
