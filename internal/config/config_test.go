package config

import (
	"fmt"
	"testing"
	"time"

	"github.com/dunamismax/pixelsplit/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Services.ScaleLeft.Addr() != "localhost:1099" {
		t.Fatalf("expected left scale worker on localhost:1099, got %s", cfg.Services.ScaleLeft.Addr())
	}
	if cfg.Services.ScaleRight.Addr() != "localhost:1100" {
		t.Fatalf("expected right scale worker on localhost:1100, got %s", cfg.Services.ScaleRight.Addr())
	}
	if cfg.Services.Blur.ServiceName != domain.ServiceBlur {
		t.Fatalf("expected blur service name %s, got %s", domain.ServiceBlur, cfg.Services.Blur.ServiceName)
	}
	if cfg.Services.CallTimeout != 30*time.Second {
		t.Fatalf("expected 30s call timeout, got %s", cfg.Services.CallTimeout)
	}
	if cfg.Worker.EventSource != EventSourceAsynq {
		t.Fatalf("expected asynq event source, got %s", cfg.Worker.EventSource)
	}
	if len(cfg.Transform.Services) != 3 {
		t.Fatalf("expected all three transform services by default, got %v", cfg.Transform.Services)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RMI_SERVER_IP_ZOOM_2", "scale-b")
	t.Setenv("RMI_SERVER_PORT_ZOOM_2", "2100")
	t.Setenv("REMOTE_CALL_TIMEOUT", "1500ms")
	t.Setenv("TRANSFORM_SERVICES", " ImageBlurProcessorService , ")
	t.Setenv("EVENT_SOURCE", "AMQP")
	t.Setenv("WORKER_MAX_ACTIVE_JOBS", "not-a-number")

	cfg := Load()

	if got := cfg.Services.ScaleRight.Addr(); got != "scale-b:2100" {
		t.Fatalf("expected scale-b:2100, got %s", got)
	}
	if cfg.Services.CallTimeout != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s timeout, got %s", cfg.Services.CallTimeout)
	}
	if len(cfg.Transform.Services) != 1 || cfg.Transform.Services[0] != domain.ServiceBlur {
		t.Fatalf("expected only the blur service, got %v", cfg.Transform.Services)
	}
	if cfg.Worker.EventSource != EventSourceAMQP {
		t.Fatalf("expected amqp event source, got %s", cfg.Worker.EventSource)
	}
	if cfg.Worker.MaxActiveJobs < 1 {
		t.Fatalf("expected fallback for invalid int, got %d", cfg.Worker.MaxActiveJobs)
	}
}

func TestDefaultEndpointsAreDistinctProcesses(t *testing.T) {
	cfg := Load()

	seen := map[string]bool{}
	for _, ep := range []domain.ServiceEndpoint{cfg.Services.ScaleLeft, cfg.Services.ScaleRight, cfg.Services.Crop, cfg.Services.Blur} {
		if seen[ep.Addr()] {
			t.Fatalf("endpoint %s used by more than one role", ep.Addr())
		}
		seen[ep.Addr()] = true
	}
	if want := fmt.Sprintf(":%d", cfg.Services.ScaleLeft.Port); cfg.Transform.Addr != want {
		t.Fatalf("expected default transform addr %s to serve the left scale endpoint, got %s", want, cfg.Transform.Addr)
	}
}
