// README: Order handlers for create, read and every lifecycle action.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"parcel/internal/http/middleware"
	"parcel/internal/modules/order"
	"parcel/internal/types"
)

type OrderHandler struct {
	order *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{order: svc}
}

type orderResponse struct {
	ID                      string     `json:"id"`
	OrderNumber             string     `json:"order_number"`
	OrgID                   string     `json:"org_id"`
	CustomerID              string     `json:"customer_id"`
	RiderID                 string     `json:"rider_id"`
	Status                  string     `json:"status"`
	PackageDescription      string     `json:"package_description"`
	RiderCurrentLocation    *string    `json:"rider_current_location"`
	CustomerLocationLabel   *string    `json:"customer_location_label"`
	CustomerLocationPrecise *string    `json:"customer_location_precise"`
	AssignedAt              time.Time  `json:"assigned_at"`
	RiderAcceptedAt         *time.Time `json:"rider_accepted_at"`
	CustomerLocationSetAt   *time.Time `json:"customer_location_set_at"`
	PackagePickedUpAt       *time.Time `json:"package_picked_up_at"`
	DeliveryStartedAt       *time.Time `json:"delivery_started_at"`
	ArrivedAtLocationAt     *time.Time `json:"arrived_at_location_at"`
	DeliveredAt             *time.Time `json:"delivered_at"`
	CancelledAt             *time.Time `json:"cancelled_at"`
	CancelledBy             *string    `json:"cancelled_by"`
	CancellationReason      *string    `json:"cancellation_reason"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

func toOrderResponse(o *order.Order) orderResponse {
	var cancelledBy *string
	if o.CancelledBy != nil {
		v := string(*o.CancelledBy)
		cancelledBy = &v
	}
	return orderResponse{
		ID:                      string(o.ID),
		OrderNumber:             o.OrderNumber,
		OrgID:                   string(o.OrgID),
		CustomerID:              string(o.CustomerID),
		RiderID:                 string(o.RiderID),
		Status:                  string(o.Status),
		PackageDescription:      o.PackageDescription,
		RiderCurrentLocation:    o.RiderCurrentLocation,
		CustomerLocationLabel:   o.CustomerLocationLabel,
		CustomerLocationPrecise: o.CustomerLocationPrecise,
		AssignedAt:              o.AssignedAt,
		RiderAcceptedAt:         o.RiderAcceptedAt,
		CustomerLocationSetAt:   o.CustomerLocationSetAt,
		PackagePickedUpAt:       o.PackagePickedUpAt,
		DeliveryStartedAt:       o.DeliveryStartedAt,
		ArrivedAtLocationAt:     o.ArrivedAtLocationAt,
		DeliveredAt:             o.DeliveredAt,
		CancelledAt:             o.CancelledAt,
		CancelledBy:             cancelledBy,
		CancellationReason:      o.CancellationReason,
		CreatedAt:               o.CreatedAt,
		UpdatedAt:               o.UpdatedAt,
	}
}

type createOrderReq struct {
	OrgID              string `json:"org_id"`
	PackageDescription string `json:"package_description"`
	CustomerID         string `json:"customer_id"`
	RiderID            string `json:"rider_id"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	actor := middleware.Caller(c)
	orgID := types.ID(req.OrgID)
	if orgID == "" {
		orgID = actor.OrgID
	}
	o, err := h.order.Create(c.Request.Context(), actor, order.CreateCommand{
		OrgID:              orgID,
		PackageDescription: req.PackageDescription,
		CustomerID:         types.ID(req.CustomerID),
		RiderID:            types.ID(req.RiderID),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toOrderResponse(o))
}

func (h *OrderHandler) Get(c *gin.Context) {
	o, err := h.order.Get(c.Request.Context(), middleware.Caller(c), types.ID(c.Param("id")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toOrderResponse(o))
}

func (h *OrderHandler) List(c *gin.Context) {
	var q order.ListQuery
	if v := c.Query("status"); v != "" {
		st, ok := order.ParseStatus(v)
		if !ok {
			writeError(c, http.StatusBadRequest, "unknown status "+strconv.Quote(v))
			return
		}
		q.Status = &st
	}
	var err error
	if q.Limit, err = queryInt(c, "limit"); err != nil {
		writeError(c, http.StatusBadRequest, "limit must be a number")
		return
	}
	if q.Offset, err = queryInt(c, "offset"); err != nil {
		writeError(c, http.StatusBadRequest, "offset must be a number")
		return
	}

	orders, err := h.order.List(c.Request.Context(), middleware.Caller(c), q)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": out, "limit": q.Limit, "offset": q.Offset})
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

type riderAction func(ctx context.Context, actor types.Actor, id types.ID) (*order.Order, error)

// riderStep adapts a rider lifecycle action to a handler.
func (h *OrderHandler) riderStep(action riderAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := action(c.Request.Context(), middleware.Caller(c), types.ID(c.Param("id")))
		if err != nil {
			writeServiceError(c, err)
			return
		}
		writeJSON(c, http.StatusOK, toOrderResponse(o))
	}
}

func (h *OrderHandler) Accept(c *gin.Context) { h.riderStep(h.order.RiderAccept)(c) }
func (h *OrderHandler) PickUp(c *gin.Context) { h.riderStep(h.order.MarkPickedUp)(c) }
func (h *OrderHandler) StartTransit(c *gin.Context) { h.riderStep(h.order.StartTransit)(c) }
func (h *OrderHandler) Arrive(c *gin.Context) { h.riderStep(h.order.MarkArrived)(c) }
func (h *OrderHandler) Deliver(c *gin.Context) { h.riderStep(h.order.ConfirmDelivery)(c) }

type setLocationReq struct {
	Label string `json:"label"`
}

func (h *OrderHandler) SetLocation(c *gin.Context) {
	var req setLocationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := h.order.SetCustomerLocation(c.Request.Context(), middleware.Caller(c), types.ID(c.Param("id")), req.Label)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toOrderResponse(o))
}

type ownerLocationReq struct {
	Label   string `json:"label"`
	Precise string `json:"precise"`
	Address string `json:"address"`
}

func (h *OrderHandler) OwnerSetLocation(c *gin.Context) {
	var req ownerLocationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := h.order.OwnerSetCustomerLocation(c.Request.Context(), middleware.Caller(c), types.ID(c.Param("id")), order.OwnerLocationCommand{
		Label:   req.Label,
		Precise: req.Precise,
		Address: req.Address,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toOrderResponse(o))
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	var req cancelReq
	// The body is optional; chunked bodies report an unknown length of -1.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	o, err := h.order.Cancel(c.Request.Context(), middleware.Caller(c), types.ID(c.Param("id")), req.Reason)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toOrderResponse(o))
}
