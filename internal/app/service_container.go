package app

import (
	"context"
	"fmt"
	"log"
	"sync"

	"gorm.io/gorm"

	"rps-backend/internal/commitment"
	"rps-backend/internal/config"
	"rps-backend/internal/db"
	"rps-backend/internal/escrow"
	"rps-backend/internal/events"
	"rps-backend/internal/ledger"
	"rps-backend/internal/repository"
	"rps-backend/internal/services"
)

// Key derivation purposes. The choice codec and the escrow secret codec
// share one operator secret but never share a key.
const (
	purposeChoice = "choice-commitment"
	purposeEscrow = "escrow-secret"
)

// ServiceContainer wires the full dependency graph for the wager
// engine.
type ServiceContainer struct {
	// Database
	DB *gorm.DB

	// Repositories
	WagerRepo  repository.WagerRepository
	EscrowRepo repository.EscrowAccountRepository

	// Ledger
	Ledger ledger.Client

	// Codecs
	ChoiceCodec *commitment.Codec
	EscrowCodec *commitment.Codec

	// Core Services
	Custodian       *escrow.Custodian
	Executor        *services.DisbursementExecutor
	WagerService    *services.WagerService
	ResolverService *services.ResolverService

	// Event publisher (nil-safe, disabled without a NATS URL)
	Publisher *events.Publisher
}

// Global service container instance
var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the container once per process.
func InitializeContainer(ctx context.Context) (*ServiceContainer, error) {
	var initErr error

	containerOnce.Do(func() {
		log.Println("🚀 Initializing Service Container...")

		container := &ServiceContainer{
			DB: db.DB,
		}

		if err := container.initCodecs(); err != nil {
			initErr = fmt.Errorf("failed to initialize codecs: %w", err)
			return
		}

		if err := container.initLedger(ctx); err != nil {
			initErr = fmt.Errorf("failed to initialize ledger client: %w", err)
			return
		}

		container.initRepositories()

		if err := container.initEventPublisher(); err != nil {
			// Events are best-effort, log but don't fail
			log.Printf("⚠️ Event publisher initialization skipped or failed: %v", err)
		}

		container.initCoreServices()

		Container = container
		log.Println("✅ Service Container initialized successfully")
	})

	return Container, initErr
}

func (c *ServiceContainer) initCodecs() error {
	secret := config.AppConfig.Encryption.Key

	choiceKey, err := commitment.DeriveKey(secret, purposeChoice)
	if err != nil {
		return err
	}
	c.ChoiceCodec, err = commitment.NewCodec(choiceKey)
	if err != nil {
		return err
	}

	escrowKey, err := commitment.DeriveKey(secret, purposeEscrow)
	if err != nil {
		return err
	}
	c.EscrowCodec, err = commitment.NewCodec(escrowKey)
	if err != nil {
		return err
	}

	log.Println("🔐 Commitment and escrow codecs ready")
	return nil
}

func (c *ServiceContainer) initLedger(ctx context.Context) error {
	client, err := ledger.NewEthClient(ctx, config.AppConfig.Ledger.RPCURL)
	if err != nil {
		return err
	}
	c.Ledger = client
	log.Printf("🔗 Ledger client connected: %s", config.AppConfig.Ledger.RPCURL)
	return nil
}

func (c *ServiceContainer) initRepositories() {
	log.Println("📦 Initializing Repositories...")
	c.WagerRepo = repository.NewWagerRepository(c.DB)
	c.EscrowRepo = repository.NewEscrowAccountRepository(c.DB)
}

func (c *ServiceContainer) initEventPublisher() error {
	publisher, err := events.NewPublisher(config.AppConfig.NATS.URL)
	if err != nil {
		return err
	}
	c.Publisher = publisher
	if publisher != nil {
		log.Printf("📡 Event publisher connected: %s", config.AppConfig.NATS.URL)
	} else {
		log.Println("📡 Event publisher disabled (no NATS URL configured)")
	}
	return nil
}

func (c *ServiceContainer) initCoreServices() {
	log.Println("⚙️ Initializing Core Services...")

	cfg := config.AppConfig

	c.Custodian = escrow.NewCustodian(c.Ledger, c.EscrowRepo, c.EscrowCodec)
	c.Custodian.SetConfirmation(cfg.ConfirmInterval(), cfg.ConfirmTimeout())

	c.Executor = services.NewDisbursementExecutor(c.Custodian)
	c.Executor.SetRetryPolicy(cfg.Payout.MaxAttempts, cfg.RetryDelay())

	c.WagerService = services.NewWagerService(c.WagerRepo, c.ChoiceCodec, c.Custodian, c.Publisher)
	c.ResolverService = services.NewResolverService(c.WagerRepo, c.ChoiceCodec, c.Executor, c.Publisher)
}

// Close releases the container's external connections.
func (c *ServiceContainer) Close() {
	if c.Publisher != nil {
		c.Publisher.Close()
	}
}
