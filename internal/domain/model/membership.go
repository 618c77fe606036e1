package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type MembershipStatus string

const (
	MembershipStatusActive    MembershipStatus = "active"
	MembershipStatusPastDue   MembershipStatus = "past_due"
	MembershipStatusPaused    MembershipStatus = "paused"
	MembershipStatusCancelled MembershipStatus = "cancelled"
	MembershipStatusExpired   MembershipStatus = "expired"
)

// Membership is a user's subscription state against one level.
// It is keyed by (UserID, MembershipID).
type Membership struct {
	ID           int64
	UserID       int64
	MembershipID int64 // level id

	Status       MembershipStatus
	StatusReason string

	InitialPayment decimal.Decimal
	BillingAmount  decimal.Decimal
	CycleNumber    int
	CyclePeriod    string // Day | Week | Month | Year
	BillingLimit   int
	TrialAmount    decimal.Decimal
	TrialLimit     int

	StartDate time.Time
	EndDate   *time.Time
	Modified  time.Time
}

// AssignOptions is used when a payment grants (or renews) a membership.
type AssignOptions struct {
	Status         MembershipStatus
	StartDate      *time.Time
	EndDate        *time.Time
	InitialPayment *decimal.Decimal
	BillingAmount  *decimal.Decimal
	CycleNumber    *int
	CyclePeriod    *string
}

// BillingProfile is the subset of billing columns that may be synced from the gateway.
type BillingProfile struct {
	BillingAmount  *decimal.Decimal
	CycleNumber    *int
	CyclePeriod    *string
	BillingLimit   *int
	TrialAmount    *decimal.Decimal
	TrialLimit     *int
	InitialPayment *decimal.Decimal
	Status         *MembershipStatus
}

// IsEmpty reports whether no billing field is set.
func (b BillingProfile) IsEmpty() bool {
	return b == (BillingProfile{})
}

// Level is a pricing tier a membership is held against.
type Level struct {
	ID            int64
	Name          string
	Description   string
	BillingAmount decimal.Decimal
	CycleNumber   int
	CyclePeriod   string
	StripePlanID  string
	CreatedAt     time.Time
}
