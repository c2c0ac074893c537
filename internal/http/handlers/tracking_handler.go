// README: Tracking channel endpoint; upgrades, admits and attaches one websocket per order slot.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"parcel/internal/modules/tracking"
	"parcel/internal/pkg/errs"
)

type TrackingHandler struct {
	admitter *tracking.Admitter
	registry *tracking.Registry
	relay    *tracking.Relay
	cfg      tracking.ClientConfig
	log      *logrus.Entry
	upgrader websocket.Upgrader
}

func NewTrackingHandler(admitter *tracking.Admitter, registry *tracking.Registry, relay *tracking.Relay, cfg tracking.ClientConfig, log *logrus.Entry) *TrackingHandler {
	return &TrackingHandler{
		admitter: admitter,
		registry: registry,
		relay:    relay,
		cfg:      cfg,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Mobile clients connect without an Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Track upgrades first and admits afterwards so a rejected peer receives a
// proper close frame with the policy code instead of a bare HTTP error.
func (h *TrackingHandler) Track(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	req := tracking.Request{
		OrderID: c.Query("orderId"),
		UserID:  c.Query("userId"),
		Role:    c.Query("role"),
	}
	log := h.log.WithFields(logrus.Fields{"order_id": req.OrderID, "user_id": req.UserID, "role": req.Role})
	client := tracking.NewClient(ws, h.cfg, log)

	adm, err := h.admitter.Admit(c.Request.Context(), req)
	if err != nil {
		reason := errs.Message(err)
		if reason == "" {
			log.WithError(err).Error("admission failed")
			reason = "internal error"
		} else {
			log.WithError(err).Info("channel rejected")
		}
		client.Close(tracking.CloseCode(err), reason)
		return
	}

	if prev := h.registry.Attach(adm.OrderID, adm.Role, client); prev != nil {
		prev.Close(tracking.CloseNormal, "replaced by a newer connection")
	}
	defer h.registry.Detach(adm.OrderID, adm.Role, client)
	log.Info("channel attached")

	// The request context ends with the hijacked connection, so inbound work
	// runs on its own context.
	client.Run(func(msg []byte) error {
		return h.relay.HandleInbound(context.Background(), adm, msg)
	})
	log.Info("channel detached")
}
