package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/config"
	"github.com/krew-solutions/ascetic-saga-go/asceticsaga/observability"
)

func TestScenarios_InMemory(t *testing.T) {
	cfg := config.Default()
	cfg.Saga.Retry.InitialInterval = config.Duration(1)
	cfg.Saga.Retry.MaxInterval = config.Duration(1)
	collector := observability.NewCollector("test")

	env, err := newEnvironment(context.Background(), cfg, collector, zap.NewNop())
	require.NoError(t, err)
	defer env.Close()

	outcomes := runScenarios(context.Background(), env)
	env.host.Wait()

	require.Len(t, outcomes, 5)
	for _, o := range outcomes {
		assert.NoError(t, o.Err, o.Name)
	}
	assert.Contains(t, outcomes[0].Summary, "APPROVED by SYSTEM")
	assert.Contains(t, outcomes[1].Summary, "insufficient stock")
	assert.Contains(t, outcomes[2].Summary, "insufficient funds")
	assert.Contains(t, outcomes[3].Summary, "APPROVED by mgr-joe")
	assert.Contains(t, outcomes[4].Summary, "REJECTED by sup-ann")
	assert.Equal(t, 10000.0-50-1500-500, env.ledger.Balance(demoTenant, demoUser))
	assert.Equal(t, 20-1-2-1, env.inventory.Stock(demoTenant, demoProduct))
	assert.Equal(t, 10.0, env.ledger.Balance(demoTenant, poorUser))
}

func TestRouter(t *testing.T) {
	router := newRouter(observability.NewCollector("test"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
