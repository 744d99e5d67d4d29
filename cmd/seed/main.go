package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kiwari-pos/floorops/internal/auth"
	"github.com/kiwari-pos/floorops/internal/billing"
	"github.com/kiwari-pos/floorops/internal/config"
	"github.com/kiwari-pos/floorops/internal/enum"
	"github.com/kiwari-pos/floorops/internal/service"
	"github.com/kiwari-pos/floorops/internal/store/driver"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	// CLI flags
	hashPIN := flag.String("hash-pin", "", "Print the bcrypt hash of a staff PIN and exit")
	tables := flag.String("tables", "", "Table capacities as number:capacity pairs, e.g. 1:4,2:4,5:6")
	vat := flag.String("vat", "", "VAT rate in percent; empty leaves VAT untouched, 0 disables it")
	flag.Parse()

	if *hashPIN != "" {
		hashed, err := auth.HashPIN(*hashPIN)
		if err != nil {
			log.Fatalf("Failed to hash PIN: %v", err)
		}
		fmt.Println(hashed)
		return
	}

	_ = godotenv.Load()

	// Fall back to environment variables
	if *tables == "" {
		*tables = os.Getenv("SEED_TABLES")
	}
	if *vat == "" {
		*vat = os.Getenv("SEED_VAT")
	}

	capacities, err := parseTables(*tables)
	if err != nil {
		log.Fatalf("Invalid -tables: %v", err)
	}

	cfg := config.Load()
	if cfg.StoreDriver == enum.StoreMemory {
		log.Fatal("STORE_DRIVER is memory; seeding needs postgres or mongo")
	}

	ctx := context.Background()
	st, err := driver.Open(ctx, cfg, zap.NewNop())
	if err != nil {
		log.Fatalf("Unable to open %s store: %v", cfg.StoreDriver, err)
	}
	defer st.Close(ctx)
	log.Printf("Connected to %s store", cfg.StoreDriver)

	svc := service.NewFloorService(st, service.Options{
		Calculator: billing.Calculator{Places: cfg.BillingRoundingPlaces},
		Policy:     cfg.CancelPolicy,
	})

	for _, tc := range capacities {
		capacity := tc.capacity
		if _, err := svc.SetTable(ctx, tc.number, service.TableUpdate{Capacity: &capacity}); err != nil {
			log.Fatalf("Failed to seed table %d: %v", tc.number, err)
		}
		log.Printf("Table %d capacity set to %d", tc.number, tc.capacity)
	}

	if *vat != "" {
		rate, err := decimal.NewFromString(*vat)
		if err != nil {
			log.Fatalf("Invalid -vat: %v", err)
		}
		v, err := svc.SetVat(ctx, rate.IsPositive(), rate)
		if err != nil {
			log.Fatalf("Failed to seed VAT: %v", err)
		}
		log.Printf("VAT enabled=%t rate=%s", v.Enabled, v.Rate)
	}

	log.Println("Seed completed successfully")
}

type tableCapacity struct {
	number   int
	capacity int
}

// parseTables reads "1:4,2:4" into table capacities.
func parseTables(s string) ([]tableCapacity, error) {
	var out []tableCapacity
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		num, capacity, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("%q: want number:capacity", pair)
		}
		n, err := strconv.Atoi(num)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%q: invalid table number", pair)
		}
		c, err := strconv.Atoi(capacity)
		if err != nil || c <= 0 {
			return nil, fmt.Errorf("%q: invalid capacity", pair)
		}
		out = append(out, tableCapacity{number: n, capacity: c})
	}
	return out, nil
}
