package http_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	httptransport "parcel/internal/http"
	"parcel/internal/infra"
	"parcel/internal/modules/membership"
	"parcel/internal/modules/membership/membershiptest"
	"parcel/internal/modules/order"
	"parcel/internal/modules/order/ordertest"
	"parcel/internal/modules/tracking"
)

type rejectAll struct{}

func (rejectAll) VerifyIDToken(context.Context, string) (*infra.FirebaseToken, error) {
	return nil, errors.New("rejected")
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()
	log := logrus.NewEntry(logger)

	dir := membershiptest.NewDirectory()
	svc := order.NewService(order.ServiceDeps{Store: ordertest.NewStore(), People: dir, Logger: log})
	reg := tracking.NewRegistry()
	relay := tracking.NewRelay(svc, tracking.NewLocalBus(reg), log)
	svc.SetPublisher(relay)

	return httptransport.NewRouter(httptransport.RouterDeps{
		Order:    svc,
		Admitter: tracking.NewAdmitter(svc, membership.NewGuard(dir)),
		Registry: reg,
		Relay:    relay,
		Client:   tracking.DefaultClientConfig(),
		Verifier: rejectAll{},
		Logger:   log,
	})
}

func TestHealthIsPublic(t *testing.T) {
	r := newRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestAPIRoutesRequireToken(t *testing.T) {
	r := newRouter(t)
	routes := []struct{ method, path string }{
		{http.MethodPost, "/api/orders"},
		{http.MethodGet, "/api/orders"},
		{http.MethodGet, "/api/orders/o1"},
		{http.MethodPost, "/api/orders/o1/accept"},
		{http.MethodPost, "/api/orders/o1/location"},
		{http.MethodPost, "/api/orders/o1/owner-location"},
		{http.MethodPost, "/api/orders/o1/pickup"},
		{http.MethodPost, "/api/orders/o1/transit"},
		{http.MethodPost, "/api/orders/o1/arrive"},
		{http.MethodPost, "/api/orders/o1/deliver"},
		{http.MethodPost, "/api/orders/o1/cancel"},
	}
	for _, rt := range routes {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(rt.method, rt.path, nil)
		req.Header.Set("Authorization", "Bearer nope")
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", rt.method, rt.path)
	}
}
