// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"parcel/internal/http/handlers"
	"parcel/internal/http/middleware"
	"parcel/internal/infra"
	"parcel/internal/modules/order"
	"parcel/internal/modules/tracking"
)

type RouterDeps struct {
	Order    *order.Service
	Admitter *tracking.Admitter
	Registry *tracking.Registry
	Relay    *tracking.Relay
	Client   tracking.ClientConfig
	Verifier infra.TokenVerifier
	Logger   *logrus.Entry
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Logger), middleware.Logging(deps.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	// Channel identity comes from the query string, not a bearer token.
	trackingHandler := handlers.NewTrackingHandler(deps.Admitter, deps.Registry, deps.Relay, deps.Client,
		deps.Logger.WithField("component", "tracking"))
	r.GET("/ws/track", trackingHandler.Track)

	api := r.Group("/api", middleware.Auth(deps.Verifier))
	orderHandler := handlers.NewOrderHandler(deps.Order)
	api.POST("/orders", orderHandler.Create)
	api.GET("/orders", orderHandler.List)
	api.GET("/orders/:id", orderHandler.Get)
	api.POST("/orders/:id/accept", orderHandler.Accept)
	api.POST("/orders/:id/location", orderHandler.SetLocation)
	api.POST("/orders/:id/owner-location", orderHandler.OwnerSetLocation)
	api.POST("/orders/:id/pickup", orderHandler.PickUp)
	api.POST("/orders/:id/transit", orderHandler.StartTransit)
	api.POST("/orders/:id/arrive", orderHandler.Arrive)
	api.POST("/orders/:id/deliver", orderHandler.Deliver)
	api.POST("/orders/:id/cancel", orderHandler.Cancel)

	return r
}
