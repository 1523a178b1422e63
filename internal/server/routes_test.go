package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/berfenger/speedwire2mqtt/internal/core/domain"
	"github.com/berfenger/speedwire2mqtt/internal/util"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMeter = domain.Device{
	SusyID:       349,
	SerialNumber: 1901431377,
	DeviceClass:  domain.DEVICE_CLASS_EMETER,
	IPAddress:    "192.168.1.60",
}

func newTestServer(t *testing.T, healthy bool) http.Handler {
	as := actor.NewActorSystem()
	t.Cleanup(as.Shutdown)
	pid := as.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		switch ctx.Message().(type) {
		case domain.ActorHealthRequest:
			ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_MASTER, Healthy: healthy})
		case domain.GetDevicesRequest:
			ctx.Respond(domain.GetDevicesResponse{Devices: []domain.Device{testMeter}})
		}
	}))
	return newServer(util.LoadTestConfig(), as.Root, pid).RegisterRoutes()
}

func TestHealthCheckHandler(t *testing.T) {
	assert := assert.New(t)

	rec := httptest.NewRecorder()
	newTestServer(t, true).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal("health_check: OK", rec.Body.String())

	rec = httptest.NewRecorder()
	newTestServer(t, false).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	assert.Equal(http.StatusServiceUnavailable, rec.Code)
}

func TestDevicesHandler(t *testing.T) {
	assert := assert.New(t)

	rec := httptest.NewRecorder()
	newTestServer(t, true).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/devices", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var devices []domain.Device
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &devices))
	assert.Equal([]domain.Device{testMeter}, devices)
}
