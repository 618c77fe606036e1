//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/shopspring/decimal"

	"khm-membership/internal/domain"
	"khm-membership/internal/domain/model"
	"khm-membership/internal/domain/ports/repository"
	"khm-membership/internal/usecase"
)

func TestOrderUseCase_CalculateTax(t *testing.T) {
	order := &model.Order{Subtotal: dec("100.00"), BillingState: "CA"}

	tests := []struct {
		name string
		tax  usecase.TaxSettings
		want string
	}{
		{"no tax configured", usecase.TaxSettings{}, "0"},
		{"matching state", usecase.TaxSettings{State: "CA", Rate: dec("0.0725")}, "7.25"},
		{"state match is case-sensitive", usecase.TaxSettings{State: "ca", Rate: dec("0.0725")}, "0"},
		{"other state", usecase.TaxSettings{State: "NY", Rate: dec("0.08")}, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := usecase.NewOrderUseCase(NewMockOrderRepo(), tt.tax, newTestLogger())
			if got := uc.CalculateTax(order); !got.Equal(dec(tt.want)) {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}

	t.Run("rounds to two places", func(t *testing.T) {
		uc := usecase.NewOrderUseCase(NewMockOrderRepo(), usecase.TaxSettings{State: "CA", Rate: dec("0.0725")}, newTestLogger())
		got := uc.CalculateTax(&model.Order{Subtotal: dec("49.99"), BillingState: "CA"})
		if !got.Equal(dec("3.62")) {
			t.Errorf("expected 3.62, got %s", got)
		}
	})
}

func TestOrderUseCase_Create(t *testing.T) {
	ctx := context.Background()
	codePattern := regexp.MustCompile(`^[A-Z0-9]{10}$`)

	t.Run("fills code, tax and total", func(t *testing.T) {
		repo := NewMockOrderRepo()
		uc := usecase.NewOrderUseCase(repo, usecase.TaxSettings{State: "CA", Rate: dec("0.10")}, newTestLogger())
		o := &model.Order{UserID: 1, MembershipID: 2, Subtotal: dec("20.00"), BillingState: "CA"}
		if err := uc.Create(ctx, repository.NoTX, o); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !codePattern.MatchString(o.Code) {
			t.Errorf("unexpected code %q", o.Code)
		}
		if !o.Tax.Equal(dec("2.00")) || !o.Total.Equal(dec("22.00")) {
			t.Errorf("expected tax 2.00 total 22.00, got %s %s", o.Tax, o.Total)
		}
		if o.Status != model.OrderStatusPending {
			t.Errorf("expected pending default, got %s", o.Status)
		}
	})

	t.Run("retries on a code collision at insert", func(t *testing.T) {
		repo := NewMockOrderRepo()
		attempts := 0
		repo.CreateFunc = func(ctx context.Context, tx repository.Tx, o *model.Order) error {
			attempts++
			if attempts < 3 {
				return domain.ErrAlreadyExists
			}
			o.ID = 99
			return nil
		}
		uc := usecase.NewOrderUseCase(repo, usecase.TaxSettings{}, newTestLogger())
		o := &model.Order{Total: dec("5.00")}
		if err := uc.Create(ctx, repository.NoTX, o); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if attempts != 3 || o.ID != 99 {
			t.Errorf("expected 3 attempts, got %d", attempts)
		}
	})

	t.Run("explicit code is not regenerated", func(t *testing.T) {
		repo := NewMockOrderRepo()
		repo.Seed(&model.Order{Code: "TAKEN00001"})
		uc := usecase.NewOrderUseCase(repo, usecase.TaxSettings{}, newTestLogger())
		err := uc.Create(ctx, repository.NoTX, &model.Order{Code: "TAKEN00001", Total: dec("1")})
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})
}

func TestOrderUseCase_Refund(t *testing.T) {
	ctx := context.Background()
	repo := NewMockOrderRepo()
	o := repo.Seed(&model.Order{Code: "REFUND0001", Total: dec("59.99"), Status: model.OrderStatusSuccess})
	uc := usecase.NewOrderUseCase(repo, usecase.TaxSettings{}, newTestLogger())

	for _, amount := range []decimal.Decimal{decimal.Zero, dec("-1"), dec("60.00")} {
		if err := uc.Refund(ctx, o.ID, amount, "bad"); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("amount %s: expected ErrInvalidArgument, got %v", amount, err)
		}
	}

	if err := uc.Refund(ctx, o.ID, dec("59.99"), "customer request"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := repo.FindByID(ctx, repository.NoTX, o.ID)
	if got.Status != model.OrderStatusRefunded || !got.RefundAmount.Decimal.Equal(dec("59.99")) || got.RefundedAt == nil {
		t.Errorf("refund not recorded: %+v", got)
	}
}

func TestOrderUseCase_UpdateStatusAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewMockOrderRepo()
	o := repo.Seed(&model.Order{Code: "STATUS0001"})
	uc := usecase.NewOrderUseCase(repo, usecase.TaxSettings{}, newTestLogger())

	if err := uc.UpdateStatus(ctx, o.ID, "shipped", ""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for unknown status, got %v", err)
	}
	if err := uc.UpdateStatus(ctx, o.ID, model.OrderStatusSuccess, "manual"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := uc.Get(ctx, o.ID); got.Status != model.OrderStatusSuccess || got.Notes != "manual" {
		t.Errorf("unexpected order %+v", got.Order)
	}

	if err := uc.Delete(ctx, o.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := uc.Get(ctx, o.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
