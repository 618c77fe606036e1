package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"khm-membership/internal/domain/model"
)

type orderDTO struct {
	ID                        int64           `json:"id"`
	Code                      string          `json:"code"`
	UserID                    int64           `json:"user_id"`
	MembershipID              int64           `json:"membership_id"`
	UserLogin                 string          `json:"user_login,omitempty"`
	UserEmail                 string          `json:"user_email,omitempty"`
	DisplayName               string          `json:"display_name,omitempty"`
	LevelName                 string          `json:"level_name,omitempty"`
	Subtotal                  decimal.Decimal `json:"subtotal"`
	Tax                       decimal.Decimal `json:"tax"`
	Total                     decimal.Decimal `json:"total"`
	Status                    string          `json:"status"`
	Gateway                   string          `json:"gateway"`
	GatewayEnvironment        string          `json:"gateway_environment"`
	PaymentTransactionID      string          `json:"payment_transaction_id"`
	SubscriptionTransactionID string          `json:"subscription_transaction_id"`
	CardType                  string          `json:"cardtype,omitempty"`
	AccountNumber             string          `json:"accountnumber,omitempty"`
	FailureCode               string          `json:"failure_code,omitempty"`
	FailureMessage            string          `json:"failure_message,omitempty"`
	RefundAmount              *string         `json:"refund_amount,omitempty"`
	RefundReason              string          `json:"refund_reason,omitempty"`
	Notes                     string          `json:"notes,omitempty"`
	Timestamp                 time.Time       `json:"timestamp"`
}

func toOrderDTO(o *model.OrderWithRelations) orderDTO {
	d := orderDTO{
		ID:                        o.ID,
		Code:                      o.Code,
		UserID:                    o.UserID,
		MembershipID:              o.MembershipID,
		UserLogin:                 o.UserLogin,
		UserEmail:                 o.UserEmail,
		DisplayName:               o.DisplayName,
		LevelName:                 o.LevelName,
		Subtotal:                  o.Subtotal,
		Tax:                       o.Tax,
		Total:                     o.Total,
		Status:                    string(o.Status),
		Gateway:                   o.Gateway,
		GatewayEnvironment:        o.GatewayEnvironment,
		PaymentTransactionID:      o.PaymentTransactionID,
		SubscriptionTransactionID: o.SubscriptionTransactionID,
		CardType:                  o.CardType,
		AccountNumber:             o.AccountNumber,
		FailureCode:               o.FailureCode,
		FailureMessage:            o.FailureMessage,
		RefundReason:              o.RefundReason,
		Notes:                     o.Notes,
		Timestamp:                 o.Timestamp,
	}
	if o.RefundAmount.Valid {
		v := o.RefundAmount.Decimal.StringFixed(2)
		d.RefundAmount = &v
	}
	return d
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	q := model.OrderQuery{
		Search:  qs.Get("s"),
		Status:  model.OrderStatus(qs.Get("status")),
		Gateway: qs.Get("gateway"),
		OrderBy: qs.Get("orderby"),
		Desc:    qs.Get("order") != "asc",
	}
	q.LevelID, _ = strconv.ParseInt(qs.Get("level"), 10, 64)
	q.Page, _ = strconv.Atoi(qs.Get("paged"))
	q.PerPage, _ = strconv.Atoi(qs.Get("per_page"))

	page, err := s.d.Orders.List(r.Context(), q)
	if err != nil {
		s.logFailure(r, err)
		failErr(w, err, "Unable to load orders.")
		return
	}
	items := make([]orderDTO, 0, len(page.Items))
	for _, o := range page.Items {
		items = append(items, toOrderDTO(o))
	}
	ok(w, map[string]any{"orders": items, "total": page.Total})
}

func orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		fail(w, http.StatusBadRequest, "Invalid order.")
		return 0, false
	}
	return id, true
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, good := orderID(w, r)
	if !good {
		return
	}
	o, err := s.d.Orders.Get(r.Context(), id)
	if err != nil {
		failErr(w, err, "Order not found.")
		return
	}
	ok(w, map[string]any{"order": toOrderDTO(o)})
}

type orderStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, good := orderID(w, r)
	if !good {
		return
	}
	var req orderStatusRequest
	if err := decodeBody(r, &req); err != nil || req.Status == "" {
		fail(w, http.StatusBadRequest, "Missing order status.")
		return
	}
	if err := s.d.Orders.UpdateStatus(r.Context(), id, model.OrderStatus(req.Status), req.Notes); err != nil {
		s.logFailure(r, err)
		failErr(w, err, "Failed to update order status.")
		return
	}
	ok(w, map[string]any{"message": "Order status updated."})
}

type refundRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	id, good := orderID(w, r)
	if !good {
		return
	}
	var req refundRequest
	if err := decodeBody(r, &req); err != nil || !req.Amount.IsPositive() {
		fail(w, http.StatusBadRequest, "Refund amount must be positive.")
		return
	}
	if err := s.d.Orders.Refund(r.Context(), id, req.Amount, req.Reason); err != nil {
		s.logFailure(r, err)
		failErr(w, err, "Failed to refund order.")
		return
	}
	ok(w, map[string]any{"message": "Order refunded."})
}

func (s *Server) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, good := orderID(w, r)
	if !good {
		return
	}
	if err := s.d.Orders.Delete(r.Context(), id); err != nil {
		s.logFailure(r, err)
		failErr(w, err, "Failed to delete order.")
		return
	}
	ok(w, map[string]any{"message": "Order deleted."})
}

type emailTestRequest struct {
	To string `json:"to"`
}

func (s *Server) handleEmailTest(w http.ResponseWriter, r *http.Request) {
	var req emailTestRequest
	if err := decodeBody(r, &req); err != nil || req.To == "" {
		fail(w, http.StatusBadRequest, "Recipient email is required.")
		return
	}
	if err := s.d.Email.SendTest(r.Context(), req.To); err != nil {
		s.logFailure(r, err)
		failErr(w, err, "Test email failed.")
		return
	}
	ok(w, map[string]any{"message": "Test email sent successfully!"})
}

func (s *Server) handleProcessQueue(w http.ResponseWriter, r *http.Request) {
	n, err := s.d.Email.ProcessQueue(r.Context())
	if err != nil {
		s.logFailure(r, err)
		failErr(w, err, "Queue processing failed.")
		return
	}
	ok(w, map[string]any{"processed": n})
}

func (s *Server) handleEmailStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.d.Email.Stats(r.Context())
	if err != nil {
		s.logFailure(r, err)
		failErr(w, err, "Unable to load email statistics.")
		return
	}
	ok(w, map[string]any{"stats": st})
}

func (s *Server) handleEmailCleanup(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			fail(w, http.StatusBadRequest, "Invalid retention period.")
			return
		}
		days = n
	}
	res, err := s.d.Email.Cleanup(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		s.logFailure(r, err)
		failErr(w, err, "Cleanup failed.")
		return
	}
	ok(w, map[string]any{"deleted": res})
}

func (s *Server) handleGetEmailSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.d.Email.Settings(r.Context())
	if err != nil {
		s.logFailure(r, err)
		failErr(w, err, "Unable to load email settings.")
		return
	}
	hasPassword, hasKey := st.SMTP.Password != "", st.API.APIKey != ""
	st.SMTP.Password, st.API.APIKey = "", ""
	ok(w, map[string]any{
		"settings":          st,
		"smtp_password_set": hasPassword,
		"api_key_set":       hasKey,
	})
}

func (s *Server) handlePutEmailSettings(w http.ResponseWriter, r *http.Request) {
	var st model.EmailSettings
	if err := decodeBody(r, &st); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if err := s.d.Email.SaveSettings(r.Context(), st); err != nil {
		s.logFailure(r, err)
		failErr(w, err, "Failed to save email settings.")
		return
	}
	ok(w, map[string]any{"message": "Email settings saved."})
}
