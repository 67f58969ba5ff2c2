// README: Blood request aggregate and status definitions.
package request

import (
	"time"

	"lifeline/internal/types"
)

type Status string

const (
	StatusNone      Status = "none"
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// Payment methods accepted at handoff.
const (
	MethodOnline = "Online"
	MethodCOD    = "COD"
)

// DeliveryDetails is filled in at approval and immutable afterwards,
// except for TrackingStarted (false→true once) and CompletedAt (set once).
type DeliveryDetails struct {
	DriverName       string
	ContactNumber    string
	VehicleNumber    string
	EstimatedArrival time.Time
	Notes            string
	DeliveryOTP      string
	TrackingStarted  bool
	CompletedAt      *time.Time
}

type Payment struct {
	Method        string
	Amount        types.Money
	UPIID         string
	Note          string
	Status        PaymentStatus
	TransactionID string
}

type Request struct {
	ID             types.ID
	RequesterID    types.ID
	OrganizationID types.ID
	PatientName    string
	BloodGroup     string
	Component      string
	Quantity       int
	Priority       string
	Status         Status
	StatusVersion  int
	Delivery       *DeliveryDetails
	Payment        Payment
	CreatedAt      time.Time
}

// Organization is the read-only directory entry joined into public views.
type Organization struct {
	ID      types.ID
	Name    string
	Address string
}

// PublicView is the unauthenticated tracking-page projection. It must never
// carry the OTP or internal actor identifiers.
type PublicView struct {
	ID               types.ID
	Status           Status
	Organization     Organization
	PatientName      string
	BloodGroup       string
	Quantity         int
	DriverName       string
	VehicleNumber    string
	EstimatedArrival time.Time
	Notes            string
	PaymentMethod    string
	PaymentAmount    types.Money
	CompletedAt      *time.Time
}

type Event struct {
	ID         int64
	RequestID  types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions represents the dispatch state flow as code. Rejected and
// completed are terminal; the delivery is one-directional by design.
var AllowedTransitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}
