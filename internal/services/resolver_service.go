package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"rps-backend/internal/commitment"
	"rps-backend/internal/events"
	"rps-backend/internal/game"
	"rps-backend/internal/metrics"
	"rps-backend/internal/repository"
)

var (
	// ErrNotReady is returned when resolution is attempted before both
	// choices exist. Expected and frequent, not alarming.
	ErrNotReady = errors.New("wager is not ready to be resolved")

	// ErrDecisionMismatch is returned when a submitted decision does not
	// match the outcome derived from the commitments. The decision a
	// caller posts is a confirmation, never an instruction.
	ErrDecisionMismatch = errors.New("submitted decision does not match the wager outcome")
)

// Decision is the outcome of the decide phase. The rule tag, not the
// winner string, drives the payout plan; carrying both keeps game logic
// and fund movement decoupled.
type Decision struct {
	WagerID string          `json:"wager_id"`
	Winner  string          `json:"winner"`
	Rule    game.PayoutRule `json:"rule"`
}

// wagerLocks serializes completion per wager id. The map only ever
// grows by one mutex per wager resolved in this process lifetime.
type wagerLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *wagerLocks) get(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := l.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[id] = lock
	}
	return lock
}

// ResolverService implements the two-phase outcome protocol: Decide
// computes (or recalls) the winner without moving funds, Complete moves
// funds and finalizes. The split exists so a crash between "we know
// who won" and "funds moved" never forces re-deriving the winner.
type ResolverService struct {
	wagers    repository.WagerRepository
	codec     *commitment.Codec
	executor  *DisbursementExecutor
	publisher *events.Publisher

	completing wagerLocks
}

func NewResolverService(wagers repository.WagerRepository, codec *commitment.Codec, executor *DisbursementExecutor, publisher *events.Publisher) *ResolverService {
	return &ResolverService{
		wagers:    wagers,
		codec:     codec,
		executor:  executor,
		publisher: publisher,
	}
}

// Decide loads the wager, decrypts both commitments and applies the
// game rule. Calling it on an already resolved wager returns the stored
// decision without mutating anything.
func (s *ResolverService) Decide(ctx context.Context, wagerID string) (*Decision, error) {
	wager, err := s.wagers.GetByID(ctx, wagerID)
	if err != nil {
		return nil, err
	}

	// Idempotent short-circuit: a recorded winner is replayed, never
	// recomputed.
	if wager.WinnerAddress != nil {
		taker := ""
		if wager.TakerAddress != nil {
			taker = *wager.TakerAddress
		}
		rule, err := game.RuleForWinner(*wager.WinnerAddress, wager.MakerAddress, taker)
		if err != nil {
			return nil, err
		}
		return &Decision{WagerID: wager.ID, Winner: *wager.WinnerAddress, Rule: rule}, nil
	}

	if !wager.Taken() {
		return nil, ErrNotReady
	}

	makerChoice, err := s.codec.OpenChoice(wager.MakerChoiceEnc)
	if err != nil {
		s.noteDecodeError(wager.ID, "maker", err)
		return nil, err
	}
	takerChoice, err := s.codec.OpenChoice(*wager.TakerChoiceEnc)
	if err != nil {
		s.noteDecodeError(wager.ID, "taker", err)
		return nil, err
	}

	rule, err := game.Outcome(makerChoice, takerChoice)
	if err != nil {
		return nil, err
	}
	winner, err := game.WinnerForRule(rule, wager.MakerAddress, *wager.TakerAddress)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"wager_id": wager.ID,
		"rule":     rule,
		"winner":   winner,
	}).Info("Wager decided")
	return &Decision{WagerID: wager.ID, Winner: winner, Rule: rule}, nil
}

// Complete executes the payout for a previously decided wager and
// finalizes it. Completion is serialized per wager and re-checks the
// stored winner immediately before any funds move, so a concurrent or
// repeated completion becomes a no-op instead of a double payment.
func (s *ResolverService) Complete(ctx context.Context, decision *Decision) error {
	lock := s.completing.get(decision.WagerID)
	lock.Lock()
	defer lock.Unlock()

	wager, err := s.wagers.GetByID(ctx, decision.WagerID)
	if err != nil {
		return err
	}

	// Optimistic recheck right before fund movement.
	if wager.WinnerAddress != nil {
		logrus.WithField("wager_id", wager.ID).Info("Wager already finalized, skipping payout")
		return nil
	}
	// The submitted decision is only ever checked against the outcome
	// re-derived from the stored commitments. Funds move by what the
	// commitments say, not by what the caller posted.
	authoritative, err := s.Decide(ctx, wager.ID)
	if err != nil {
		return err
	}
	if authoritative.Winner != decision.Winner || authoritative.Rule != decision.Rule {
		return fmt.Errorf("%w: wager %s: submitted winner %q with rule %q", ErrDecisionMismatch, wager.ID, decision.Winner, decision.Rule)
	}

	signature, err := s.executor.Disburse(ctx, wager, decision.Rule)
	if err != nil {
		s.publisher.Publish(events.SubjectDisbursementFailed, events.WagerEvent{
			WagerID: wager.ID,
			Winner:  decision.Winner,
			Rule:    string(decision.Rule),
			Error:   err.Error(),
		})
		return err
	}

	err = s.wagers.Finalize(ctx, wager.ID, decision.Winner, signature)
	if errors.Is(err, repository.ErrAlreadyFinalized) {
		// Lost a finalize race with a concurrent completion. The payout
		// above already moved funds; the per-wager lock exists to keep
		// this branch from ever being reached in-process.
		logrus.WithField("wager_id", wager.ID).Warn("Wager finalized concurrently, discarding duplicate payout result")
		return nil
	}
	if err != nil {
		return fmt.Errorf("finalize wager %s: %w", wager.ID, err)
	}

	metrics.WagersResolved.WithLabelValues(string(decision.Rule)).Inc()
	s.publisher.Publish(events.SubjectWagerResolved, events.WagerEvent{
		WagerID: wager.ID,
		Winner:  decision.Winner,
		Rule:    string(decision.Rule),
	})
	logrus.WithFields(logrus.Fields{
		"wager_id":  wager.ID,
		"winner":    decision.Winner,
		"signature": signature,
	}).Info("Wager finalized")
	return nil
}

func (s *ResolverService) noteDecodeError(wagerID, side string, err error) {
	var decodeErr *commitment.DecodeError
	if errors.As(err, &decodeErr) {
		metrics.DecodeErrors.Inc()
		logrus.WithError(err).WithFields(logrus.Fields{
			"wager_id": wagerID,
			"side":     side,
		}).Error("Stored commitment is corrupted")
	}
}
