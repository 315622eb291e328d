package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"rps-backend/internal/app"
	"rps-backend/internal/config"
	"rps-backend/internal/db"
)

// Operator tool: re-run resolution for a wager whose payout failed.
// The decide phase replays the stored winner when one exists, so
// running this repeatedly cannot double-pay.
//
// Usage:
//
//	resolve-wager -id <wager-uuid> [-decide-only]
func main() {
	var (
		wagerID    = flag.String("id", "", "Wager ID to resolve")
		decideOnly = flag.Bool("decide-only", false, "Only report the decision, don't move funds")
		timeout    = flag.Duration("timeout", 5*time.Minute, "Overall timeout")
	)
	flag.Parse()

	if *wagerID == "" {
		log.Fatal("Usage: resolve-wager -id <wager-uuid> [-decide-only]")
	}

	if err := config.LoadConfig(""); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := config.AppConfig.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	db.InitDB()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	container, err := app.InitializeContainer(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer container.Close()

	decision, err := container.ResolverService.Decide(ctx, *wagerID)
	if err != nil {
		log.Fatalf("❌ Decide failed: %v", err)
	}
	fmt.Printf("📋 Decision: winner=%s rule=%s\n", decision.Winner, decision.Rule)

	if *decideOnly {
		return
	}

	if err := container.ResolverService.Complete(ctx, decision); err != nil {
		log.Fatalf("❌ Complete failed: %v", err)
	}

	wager, err := container.WagerService.Get(ctx, *wagerID)
	if err != nil {
		log.Fatalf("Failed to reload wager: %v", err)
	}
	payout := ""
	if wager.PayoutSignature != nil {
		payout = *wager.PayoutSignature
	}
	fmt.Printf("✅ Wager resolved: status=%s payout_signature=%s\n", wager.Status(), payout)
}
