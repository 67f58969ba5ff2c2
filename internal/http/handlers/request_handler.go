// README: Blood request handlers: create, list, status, payment, OTP handoff.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"lifeline/internal/http/middleware"
	"lifeline/internal/modules/request"
	"lifeline/internal/types"
)

type RequestHandler struct {
	requests *request.Service
}

func NewRequestHandler(svc *request.Service) *RequestHandler {
	return &RequestHandler{requests: svc}
}

type createRequestReq struct {
	OrganizationID string `json:"organization_id"`
	PatientName    string `json:"patient_name"`
	BloodGroup     string `json:"blood_group"`
	Component      string `json:"component"`
	Quantity       int    `json:"quantity"`
	Priority       string `json:"priority"`
}

func (h *RequestHandler) Create(c *gin.Context) {
	var req createRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.OrganizationID == "" || req.BloodGroup == "" || req.Quantity <= 0 {
		writeError(c, http.StatusBadRequest, "missing fields")
		return
	}
	id, err := h.requests.Create(c.Request.Context(), request.CreateCommand{
		RequesterID:    types.ID(middleware.CallerUID(c)),
		OrganizationID: types.ID(req.OrganizationID),
		PatientName:    req.PatientName,
		BloodGroup:     req.BloodGroup,
		Component:      req.Component,
		Quantity:       req.Quantity,
		Priority:       req.Priority,
	})
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"request_id": id, "status": request.StatusPending})
}

func (h *RequestHandler) List(c *gin.Context) {
	status := request.Status(c.Query("status"))
	list, err := h.requests.List(c.Request.Context(), status)
	if err != nil {
		writeRequestError(c, err)
		return
	}
	out := make([]requestView, 0, len(list))
	for _, r := range list {
		v := toRequestView(r)
		if !isRequester(c, r) && v.Delivery != nil {
			v.Delivery.DeliveryOTP = ""
		}
		out = append(out, v)
	}
	writeJSON(c, http.StatusOK, gin.H{"requests": out})
}

func (h *RequestHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing request id")
		return
	}
	r, err := h.requests.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeRequestError(c, err)
		return
	}
	if !isRequester(c, r) && types.ID(middleware.CallerOrg(c)) != r.OrganizationID {
		writeError(c, http.StatusForbidden, "not your request")
		return
	}
	v := toRequestView(r)
	// The OTP is handed to the receiver out of band; only the requester's
	// dashboard displays it.
	if !isRequester(c, r) && v.Delivery != nil {
		v.Delivery.DeliveryOTP = ""
	}
	writeJSON(c, http.StatusOK, v)
}

func isRequester(c *gin.Context, r *request.Request) bool {
	uid := middleware.CallerUID(c)
	return uid != "" && types.ID(uid) == r.RequesterID
}

// Public serves the tracking-page projection for link holders. No auth; the
// projection never carries the OTP.
func (h *RequestHandler) Public(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing request id")
		return
	}
	v, err := h.requests.Public(c.Request.Context(), types.ID(id))
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toPublicView(v))
}

type updateStatusReq struct {
	Status          string              `json:"status"`
	DeliveryDetails *deliveryDetailsReq `json:"delivery_details"`
	PaymentUPIID    string              `json:"payment_upi_id"`
	PaymentNote     string              `json:"payment_note"`
	RejectionReason string              `json:"rejection_reason"`
}

type deliveryDetailsReq struct {
	DriverName       string    `json:"driver_name"`
	ContactNumber    string    `json:"contact_number"`
	VehicleNumber    string    `json:"vehicle_number"`
	EstimatedArrival time.Time `json:"estimated_arrival"`
	Notes            string    `json:"notes"`
}

// UpdateStatus is the receiving organization's decision: approve with
// delivery details or reject with a reason.
func (h *RequestHandler) UpdateStatus(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing request id")
		return
	}
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	actorOrg := types.ID(middleware.CallerOrg(c))

	switch request.Status(req.Status) {
	case request.StatusApproved:
		if req.DeliveryDetails == nil {
			writeError(c, http.StatusBadRequest, "delivery_details required for approval")
			return
		}
		err := h.requests.Approve(c.Request.Context(), request.ApproveCommand{
			RequestID:        types.ID(id),
			ActorOrg:         actorOrg,
			DriverName:       req.DeliveryDetails.DriverName,
			ContactNumber:    req.DeliveryDetails.ContactNumber,
			VehicleNumber:    req.DeliveryDetails.VehicleNumber,
			EstimatedArrival: req.DeliveryDetails.EstimatedArrival,
			Notes:            req.DeliveryDetails.Notes,
			UPIID:            req.PaymentUPIID,
			PaymentNote:      req.PaymentNote,
		})
		if err != nil {
			writeRequestError(c, err)
			return
		}
		writeJSON(c, http.StatusOK, gin.H{"status": request.StatusApproved})
	case request.StatusRejected:
		err := h.requests.Reject(c.Request.Context(), request.RejectCommand{
			RequestID: types.ID(id),
			ActorOrg:  actorOrg,
			Reason:    req.RejectionReason,
		})
		if err != nil {
			writeRequestError(c, err)
			return
		}
		writeJSON(c, http.StatusOK, gin.H{"status": request.StatusRejected})
	default:
		writeError(c, http.StatusBadRequest, "status must be approved or rejected")
	}
}

type paymentReq struct {
	Method        string `json:"method"`
	TransactionID string `json:"transaction_id"`
}

func (h *RequestHandler) Payment(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing request id")
		return
	}
	var req paymentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.requests.SubmitPayment(c.Request.Context(), request.PaymentCommand{
		RequestID:     types.ID(id),
		Actor:         types.ID(middleware.CallerUID(c)),
		Method:        req.Method,
		TransactionID: req.TransactionID,
	})
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "recorded"})
}

type verifyOTPReq struct {
	OTP string `json:"otp"`
}

// VerifyOTP confirms the handoff. Unauthenticated: possession of the correct
// code is the proof of delivery.
func (h *RequestHandler) VerifyOTP(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing request id")
		return
	}
	var req verifyOTPReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	completedAt, err := h.requests.VerifyOTP(c.Request.Context(), request.VerifyOTPCommand{
		RequestID: types.ID(id),
		Code:      req.OTP,
	})
	if err != nil {
		writeRequestError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"status":       request.StatusCompleted,
		"completed_at": completedAt,
	})
}

type deliveryView struct {
	DriverName       string     `json:"driver_name"`
	ContactNumber    string     `json:"contact_number"`
	VehicleNumber    string     `json:"vehicle_number"`
	EstimatedArrival time.Time  `json:"estimated_arrival"`
	Notes            string     `json:"notes,omitempty"`
	DeliveryOTP      string     `json:"delivery_otp,omitempty"`
	TrackingStarted  bool       `json:"tracking_started"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

type paymentView struct {
	Method        string `json:"method,omitempty"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	UPIID         string `json:"upi_id,omitempty"`
	Note          string `json:"note,omitempty"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
}

type requestView struct {
	ID             types.ID      `json:"request_id"`
	RequesterID    types.ID      `json:"requester_id"`
	OrganizationID types.ID      `json:"organization_id"`
	PatientName    string        `json:"patient_name"`
	BloodGroup     string        `json:"blood_group"`
	Component      string        `json:"component"`
	Quantity       int           `json:"quantity"`
	Priority       string        `json:"priority"`
	Status         string        `json:"status"`
	Delivery       *deliveryView `json:"delivery_details,omitempty"`
	Payment        paymentView   `json:"payment"`
	CreatedAt      time.Time     `json:"created_at"`
}

func toRequestView(r *request.Request) requestView {
	v := requestView{
		ID:             r.ID,
		RequesterID:    r.RequesterID,
		OrganizationID: r.OrganizationID,
		PatientName:    r.PatientName,
		BloodGroup:     r.BloodGroup,
		Component:      r.Component,
		Quantity:       r.Quantity,
		Priority:       r.Priority,
		Status:         string(r.Status),
		Payment: paymentView{
			Method:        r.Payment.Method,
			Amount:        r.Payment.Amount.Amount,
			Currency:      r.Payment.Amount.Currency,
			UPIID:         r.Payment.UPIID,
			Note:          r.Payment.Note,
			Status:        string(r.Payment.Status),
			TransactionID: r.Payment.TransactionID,
		},
		CreatedAt: r.CreatedAt,
	}
	if r.Delivery != nil {
		v.Delivery = &deliveryView{
			DriverName:       r.Delivery.DriverName,
			ContactNumber:    r.Delivery.ContactNumber,
			VehicleNumber:    r.Delivery.VehicleNumber,
			EstimatedArrival: r.Delivery.EstimatedArrival,
			Notes:            r.Delivery.Notes,
			DeliveryOTP:      r.Delivery.DeliveryOTP,
			TrackingStarted:  r.Delivery.TrackingStarted,
			CompletedAt:      r.Delivery.CompletedAt,
		}
	}
	return v
}

type publicView struct {
	ID               types.ID   `json:"request_id"`
	Status           string     `json:"status"`
	OrganizationName string     `json:"organization_name"`
	OrganizationAddr string     `json:"organization_address"`
	PatientName      string     `json:"patient_name"`
	BloodGroup       string     `json:"blood_group"`
	Quantity         int        `json:"quantity"`
	DriverName       string     `json:"driver_name,omitempty"`
	VehicleNumber    string     `json:"vehicle_number,omitempty"`
	EstimatedArrival *time.Time `json:"estimated_arrival,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	PaymentMethod    string     `json:"payment_method,omitempty"`
	PaymentAmount    int64      `json:"payment_amount"`
	PaymentCurrency  string     `json:"payment_currency"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

func toPublicView(v *request.PublicView) publicView {
	out := publicView{
		ID:               v.ID,
		Status:           string(v.Status),
		OrganizationName: v.Organization.Name,
		OrganizationAddr: v.Organization.Address,
		PatientName:      v.PatientName,
		BloodGroup:       v.BloodGroup,
		Quantity:         v.Quantity,
		DriverName:       v.DriverName,
		VehicleNumber:    v.VehicleNumber,
		Notes:            v.Notes,
		PaymentMethod:    v.PaymentMethod,
		PaymentAmount:    v.PaymentAmount.Amount,
		PaymentCurrency:  v.PaymentAmount.Currency,
		CompletedAt:      v.CompletedAt,
	}
	if !v.EstimatedArrival.IsZero() {
		arrival := v.EstimatedArrival
		out.EstimatedArrival = &arrival
	}
	return out
}
