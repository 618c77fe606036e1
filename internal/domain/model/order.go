package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusSuccess   OrderStatus = "success"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusRefunded  OrderStatus = "refunded"
	OrderStatusCancelled OrderStatus = "cancelled"
)

const (
	GatewayStripe = "stripe"

	GatewayEnvProduction = "production"
	GatewayEnvSandbox    = "sandbox"
)

// Order is a billing transaction tied to a membership level and a payment gateway.
type Order struct {
	ID           int64
	Code         string
	UserID       int64
	MembershipID int64 // level id

	BillingName    string
	BillingStreet  string
	BillingCity    string
	BillingState   string
	BillingZip     string
	BillingCountry string
	BillingPhone   string

	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal

	PaymentType     string
	CardType        string
	AccountNumber   string // masked, e.g. ************4242
	ExpirationMonth int
	ExpirationYear  int

	Status                    OrderStatus
	Gateway                   string
	GatewayEnvironment        string
	PaymentTransactionID      string
	SubscriptionTransactionID string

	FailureCode    string
	FailureMessage string
	FailureAt      *time.Time

	RefundAmount decimal.NullDecimal
	RefundReason string
	RefundedAt   *time.Time

	DiscountCode            string
	DiscountAmount          decimal.NullDecimal
	TrialDays               int
	TrialAmount             decimal.NullDecimal
	RecurringDiscountType   string // percent | amount
	RecurringDiscountAmount decimal.NullDecimal
	FirstPaymentOnly        bool

	Notes     string
	Timestamp time.Time
	UpdatedAt time.Time
}

// HasSubscription reports whether the order is linked to a gateway subscription.
func (o *Order) HasSubscription() bool {
	return o != nil && o.SubscriptionTransactionID != ""
}

// OrderChanges is a partial update. Nil fields are left untouched.
type OrderChanges struct {
	Code                      *string
	UserID                    *int64
	MembershipID              *int64
	BillingState              *string
	Subtotal                  *decimal.Decimal
	Tax                       *decimal.Decimal
	Total                     *decimal.Decimal
	CardType                  *string
	AccountNumber             *string
	ExpirationMonth           *int
	ExpirationYear            *int
	Status                    *OrderStatus
	Gateway                   *string
	PaymentTransactionID      *string
	SubscriptionTransactionID *string
	FailureCode               *string
	FailureMessage            *string
	FailureAt                 *time.Time
	RefundAmount              *decimal.Decimal
	RefundReason              *string
	RefundedAt                *time.Time
	DiscountCode              *string
	DiscountAmount            *decimal.Decimal
	TrialDays                 *int
	TrialAmount               *decimal.Decimal
	RecurringDiscountType     *string
	RecurringDiscountAmount   *decimal.Decimal
	FirstPaymentOnly          *bool
	Notes                     *string
}

// IsEmpty reports whether no field is set.
func (c OrderChanges) IsEmpty() bool {
	return c == (OrderChanges{})
}

// OrderFilter narrows FindByUser.
type OrderFilter struct {
	Status       OrderStatus
	Gateway      string
	MembershipID int64
	Limit        int
}

// OrderQuery drives the admin listing.
type OrderQuery struct {
	Search  string
	Status  OrderStatus
	Gateway string
	LevelID int64
	OrderBy string // code | total | status | timestamp
	Desc    bool
	PerPage int
	Page    int
}

// OrderPage is a page of orders plus the total match count.
type OrderPage struct {
	Items []*OrderWithRelations
	Total int
}

// OrderWithRelations adds the user and level display fields to an order.
type OrderWithRelations struct {
	Order
	UserLogin   string
	UserEmail   string
	DisplayName string
	LevelName   string
}

// ApplyTo copies the set fields of c onto o.
func (c OrderChanges) ApplyTo(o *Order) {
	setStr := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setDec := func(dst *decimal.Decimal, v *decimal.Decimal) {
		if v != nil {
			*dst = *v
		}
	}
	setNullDec := func(dst *decimal.NullDecimal, v *decimal.Decimal) {
		if v != nil {
			*dst = decimal.NewNullDecimal(*v)
		}
	}
	setInt := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}

	setStr(&o.Code, c.Code)
	if c.UserID != nil {
		o.UserID = *c.UserID
	}
	if c.MembershipID != nil {
		o.MembershipID = *c.MembershipID
	}
	setStr(&o.BillingState, c.BillingState)
	setDec(&o.Subtotal, c.Subtotal)
	setDec(&o.Tax, c.Tax)
	setDec(&o.Total, c.Total)
	setStr(&o.CardType, c.CardType)
	setStr(&o.AccountNumber, c.AccountNumber)
	setInt(&o.ExpirationMonth, c.ExpirationMonth)
	setInt(&o.ExpirationYear, c.ExpirationYear)
	if c.Status != nil {
		o.Status = *c.Status
	}
	setStr(&o.Gateway, c.Gateway)
	setStr(&o.PaymentTransactionID, c.PaymentTransactionID)
	setStr(&o.SubscriptionTransactionID, c.SubscriptionTransactionID)
	setStr(&o.FailureCode, c.FailureCode)
	setStr(&o.FailureMessage, c.FailureMessage)
	if c.FailureAt != nil {
		t := *c.FailureAt
		o.FailureAt = &t
	}
	setNullDec(&o.RefundAmount, c.RefundAmount)
	setStr(&o.RefundReason, c.RefundReason)
	if c.RefundedAt != nil {
		t := *c.RefundedAt
		o.RefundedAt = &t
	}
	setStr(&o.DiscountCode, c.DiscountCode)
	setNullDec(&o.DiscountAmount, c.DiscountAmount)
	setInt(&o.TrialDays, c.TrialDays)
	setNullDec(&o.TrialAmount, c.TrialAmount)
	setStr(&o.RecurringDiscountType, c.RecurringDiscountType)
	setNullDec(&o.RecurringDiscountAmount, c.RecurringDiscountAmount)
	if c.FirstPaymentOnly != nil {
		o.FirstPaymentOnly = *c.FirstPaymentOnly
	}
	setStr(&o.Notes, c.Notes)
}
