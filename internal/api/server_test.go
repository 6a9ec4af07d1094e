package api

import (
	"context"
	"testing"

	"github.com/opencadhq/cad-core/internal/infrastructure/config"
	"github.com/opencadhq/cad-core/internal/infrastructure/logging"
)

func TestNew_Validation(t *testing.T) {
	logger := logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")

	t.Run("missing logger", func(t *testing.T) {
		if _, err := New(Deps{}); err == nil {
			t.Error("New() accepted missing logger")
		}
	})

	t.Run("missing admission controller", func(t *testing.T) {
		if _, err := New(Deps{Logger: logger}); err == nil {
			t.Error("New() accepted missing admission controller")
		}
	})
}

func TestServer_HealthCheckBeforeStart(t *testing.T) {
	srv, _, _ := testServer(t)

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() passed before Start()")
	}
}

func TestServer_CloseBeforeStart(t *testing.T) {
	srv, _, _ := testServer(t)

	if err := srv.Close(); err != nil {
		t.Errorf("Close() before Start() error = %v", err)
	}
}
