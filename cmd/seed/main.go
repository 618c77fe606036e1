package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"khm-membership/internal/config"
	"khm-membership/internal/domain/model"
	"khm-membership/internal/domain/ports/repository"
	pg "khm-membership/internal/infra/db/postgres"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	levels := pg.NewLevelRepo(pool)

	// If levels already exist, do nothing
	existing, err := levels.List(ctx, repository.NoTX)
	if err != nil {
		log.Fatalf("list levels: %v", err)
	}
	if len(existing) > 0 {
		fmt.Printf("%d membership levels already present. No changes.\n", len(existing))
		for _, l := range existing {
			fmt.Printf("  - %s (id=%d, %s every %d %s, stripe=%s)\n", l.Name, l.ID, l.BillingAmount.StringFixed(2), l.CycleNumber, l.CyclePeriod, l.StripePlanID)
		}
		return
	}

	// Sample levels for exercising the Stripe test-mode flow
	seed := []struct {
		Name   string
		Amount string
		Number int
		Period string
		Plan   string
	}{
		{"Bronze", "9.99", 1, "Month", "price_bronze_monthly"},
		{"Silver", "19.99", 1, "Month", "price_silver_monthly"},
		{"Gold", "199.00", 1, "Year", "price_gold_yearly"},
	}

	for _, s := range seed {
		l := &model.Level{
			Name:          s.Name,
			BillingAmount: decimal.RequireFromString(s.Amount),
			CycleNumber:   s.Number,
			CyclePeriod:   s.Period,
			StripePlanID:  s.Plan,
		}
		if err := levels.Save(ctx, repository.NoTX, l); err != nil {
			log.Fatalf("create level %q: %v", s.Name, err)
		}
		fmt.Printf("seeded: %s (id=%d, %s every %d %s)\n", l.Name, l.ID, s.Amount, l.CycleNumber, l.CyclePeriod)
	}

	fmt.Println("Seeding complete. Create an admin with: khmctl user create --admin")
}
