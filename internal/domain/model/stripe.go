package model

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
)

// Stripe webhook payloads. Only the fields the reconciler reads are mapped;
// everything else in the event is ignored.

type StripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// StripeID accepts either a bare id string or an expanded object carrying "id".
type StripeID string

func (s *StripeID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = StripeID(v)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*s = StripeID(obj.ID)
	return nil
}

func (s StripeID) String() string { return string(s) }

// StripeMetadata holds free-form metadata. Stripe sends strings, but numbers are tolerated.
type StripeMetadata map[string]any

// Int returns the metadata value as an integer, or 0 when absent or not numeric.
func (m StripeMetadata) Int(key string) int64 {
	v, ok := m[key]
	if !ok || v == nil {
		return 0
	}
	switch t := v.(type) {
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0
		}
		return n
	case float64:
		return int64(t)
	case json.Number:
		n, _ := t.Int64()
		return n
	}
	return 0
}

type StripeError struct {
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
}

type StripeCoupon struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	PercentOff *float64 `json:"percent_off"`
	AmountOff  *int64   `json:"amount_off"`
	Duration   string   `json:"duration"`
}

type StripeDiscount struct {
	Coupon *StripeCoupon `json:"coupon"`
}

// UnmarshalJSON tolerates an unexpanded discount id, which carries no coupon.
func (d *StripeDiscount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		*d = StripeDiscount{}
		return nil
	}
	var raw struct {
		Coupon *StripeCoupon `json:"coupon"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	d.Coupon = raw.Coupon
	return nil
}

type StripeRecurring struct {
	Interval      string `json:"interval"`
	IntervalCount int    `json:"interval_count"`
}

type StripePlan struct {
	ID            string `json:"id"`
	Amount        *int64 `json:"amount"`
	Interval      string `json:"interval"`
	IntervalCount int    `json:"interval_count"`
}

type StripePrice struct {
	ID         string           `json:"id"`
	UnitAmount *int64           `json:"unit_amount"`
	Recurring  *StripeRecurring `json:"recurring"`
}

type StripeLineItem struct {
	Plan  *StripePlan  `json:"plan"`
	Price *StripePrice `json:"price"`
}

type StripeInvoice struct {
	ID             string         `json:"id"`
	Customer       StripeID       `json:"customer"`
	CustomerEmail  string         `json:"customer_email"`
	Subscription   StripeID       `json:"subscription"`
	Charge         StripeID       `json:"charge"`
	AmountPaid     int64          `json:"amount_paid"`
	AmountDue      int64          `json:"amount_due"`
	AmountSubtotal *int64         `json:"subtotal"`
	BillingReason  string         `json:"billing_reason"`
	Metadata       StripeMetadata `json:"metadata"`
	Lines          struct {
		Data []StripeLineItem `json:"data"`
	} `json:"lines"`
	Discount             *StripeDiscount  `json:"discount"`
	Discounts            []StripeDiscount `json:"discounts"`
	TotalDiscountAmounts []struct {
		Amount int64 `json:"amount"`
	} `json:"total_discount_amounts"`
	LastPaymentError *StripeError `json:"last_payment_error"`
}

// PlanID returns the first line item's plan (or price) id.
func (in *StripeInvoice) PlanID() string {
	if len(in.Lines.Data) == 0 {
		return ""
	}
	li := in.Lines.Data[0]
	if li.Plan != nil && li.Plan.ID != "" {
		return li.Plan.ID
	}
	if li.Price != nil {
		return li.Price.ID
	}
	return ""
}

// Coupon returns the invoice coupon, falling back to discounts[0] for API
// versions that only send the list.
func (in *StripeInvoice) Coupon() *StripeCoupon {
	if in.Discount != nil && in.Discount.Coupon != nil {
		return in.Discount.Coupon
	}
	if len(in.Discounts) > 0 {
		return in.Discounts[0].Coupon
	}
	return nil
}

// TotalDiscount sums total_discount_amounts in major units. It reports false
// when there is nothing to record.
func (in *StripeInvoice) TotalDiscount() (decimal.Decimal, bool) {
	var cents int64
	for _, d := range in.TotalDiscountAmounts {
		cents += d.Amount
	}
	if cents <= 0 {
		return decimal.Zero, false
	}
	return CentsToAmount(cents), true
}

type StripeRefund struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

type StripeCharge struct {
	ID             string         `json:"id"`
	Customer       StripeID       `json:"customer"`
	Invoice        StripeID       `json:"invoice"`
	Amount         int64          `json:"amount"`
	AmountRefunded int64          `json:"amount_refunded"`
	Created        int64          `json:"created"`
	FailureCode    string         `json:"failure_code"`
	FailureMessage string         `json:"failure_message"`
	Reason         string         `json:"reason"`
	ReceiptEmail   string         `json:"receipt_email"`
	Metadata       StripeMetadata `json:"metadata"`
	Outcome        *struct {
		SellerMessage string `json:"seller_message"`
	} `json:"outcome"`
	BillingDetails *struct {
		Email string `json:"email"`
	} `json:"billing_details"`
	Refunds *struct {
		Data []StripeRefund `json:"data"`
	} `json:"refunds"`
}

// RefundReason returns the first refund's reason, falling back to the charge reason.
func (c *StripeCharge) RefundReason() string {
	if c.Refunds != nil && len(c.Refunds.Data) > 0 && c.Refunds.Data[0].Reason != "" {
		return c.Refunds.Data[0].Reason
	}
	return c.Reason
}

type StripeSubscriptionItem struct {
	Plan  *StripePlan  `json:"plan"`
	Price *StripePrice `json:"price"`
}

type StripeSubscription struct {
	ID                string          `json:"id"`
	Customer          StripeID        `json:"customer"`
	Status            string          `json:"status"`
	Metadata          StripeMetadata  `json:"metadata"`
	Plan              *StripePlan     `json:"plan"`
	Discount          *StripeDiscount `json:"discount"`
	CurrentPeriodEnd  int64           `json:"current_period_end"`
	TrialStart        int64           `json:"trial_start"`
	TrialEnd          int64           `json:"trial_end"`
	CancelAtPeriodEnd bool            `json:"cancel_at_period_end"`
	Items             struct {
		Data []StripeSubscriptionItem `json:"data"`
	} `json:"items"`
}

// BillingPlan resolves the plan used for billing: subscription.plan, else the
// first item's plan, else the first item's price.
func (s *StripeSubscription) BillingPlan() (id string, cents *int64, interval string, count int, ok bool) {
	if s.Plan != nil {
		return s.Plan.ID, s.Plan.Amount, s.Plan.Interval, s.Plan.IntervalCount, true
	}
	if len(s.Items.Data) == 0 {
		return "", nil, "", 0, false
	}
	it := s.Items.Data[0]
	if it.Plan != nil {
		return it.Plan.ID, it.Plan.Amount, it.Plan.Interval, it.Plan.IntervalCount, true
	}
	if it.Price != nil {
		var iv string
		var n int
		if it.Price.Recurring != nil {
			iv, n = it.Price.Recurring.Interval, it.Price.Recurring.IntervalCount
		}
		return it.Price.ID, it.Price.UnitAmount, iv, n, true
	}
	return "", nil, "", 0, false
}

// CentsToAmount converts Stripe's integer minor units into a two-decimal amount.
func CentsToAmount(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
