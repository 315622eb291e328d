package models

import (
	"time"

	"rps-backend/internal/game"
)

// AssetKind selects which payout strategy settles a wager.
type AssetKind string

const (
	AssetKindNative AssetKind = "native" // native coin of the ledger
	AssetKindToken  AssetKind = "token"  // fungible token, identified by TokenMint
)

// WagerStatus is the lifecycle state of a wager. It is derived from the
// nullable columns rather than stored, so state can never disagree with
// the data that defines it.
type WagerStatus string

const (
	WagerStatusOpen     WagerStatus = "open"     // created and funded by maker, awaiting taker
	WagerStatusTaken    WagerStatus = "taken"    // both choices present, awaiting resolution
	WagerStatusResolved WagerStatus = "resolved" // payout confirmed and recorded
)

// Wager is the central entity: one escrow-commit-reveal game between
// two parties.
type Wager struct {
	ID string `json:"id" gorm:"primaryKey"` // UUID

	// Maker side, set at creation.
	MakerAddress    string    `json:"maker_address" gorm:"not null;index"`
	MakerSignature  string    `json:"maker_signature" gorm:"not null"` // maker's funding transfer reference
	MakerChoiceEnc  string    `json:"-" gorm:"column:maker_choice_enc;type:text;not null"`
	Amount          string    `json:"amount" gorm:"not null"` // stake in principal units, decimal string
	BaseUnitsAmount string    `json:"base_units_amount"`      // stake in smallest units, token wagers only
	EscrowAddress   string    `json:"escrow_address" gorm:"not null;index"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	// Asset denomination. TokenMint and TokenDecimals are set only for
	// token wagers.
	AssetKind     AssetKind `json:"asset_kind" gorm:"not null;default:native"`
	TokenMint     string    `json:"token_mint,omitempty"`
	TokenDecimals int       `json:"token_decimals,omitempty"`

	// Taker side, nil until the wager is taken. TakerAddress being
	// unset is the conditional-write guard for Take.
	TakerAddress   *string    `json:"taker_address" gorm:"index"`
	TakerSignature *string    `json:"taker_signature"`
	TakerChoiceEnc *string    `json:"-" gorm:"column:taker_choice_enc;type:text"`
	TakenAt        *time.Time `json:"taken_at"`

	// Resolution, nil until finalized. WinnerAddress and
	// PayoutSignature are written together, exactly once.
	WinnerAddress   *string `json:"winner_address"`
	PayoutSignature *string `json:"payout_signature"`
}

func (Wager) TableName() string {
	return "rps_wagers"
}

// Status derives the lifecycle state. A wager never regresses: taker
// fields and winner fields are only ever set, never cleared.
func (w *Wager) Status() WagerStatus {
	switch {
	case w.WinnerAddress != nil:
		return WagerStatusResolved
	case w.TakerAddress != nil:
		return WagerStatusTaken
	default:
		return WagerStatusOpen
	}
}

// Taken reports whether both choices are present.
func (w *Wager) Taken() bool {
	return w.TakerAddress != nil && w.TakerChoiceEnc != nil
}

// AssetID returns the ledger asset identifier for this wager, empty for
// the native coin.
func (w *Wager) AssetID() string {
	if w.AssetKind == AssetKindToken {
		return w.TokenMint
	}
	return ""
}

// IsDraw reports whether the recorded winner is the draw sentinel.
func (w *Wager) IsDraw() bool {
	return w.WinnerAddress != nil && *w.WinnerAddress == game.DrawWinner
}

// EscrowAccount is the single-use custodial keypair backing one wager's
// escrow address. The secret is sealed with the server-held key before
// it ever reaches storage and the row is never reused across wagers.
type EscrowAccount struct {
	ID              string    `json:"id" gorm:"primaryKey"` // UUID
	Address         string    `json:"address" gorm:"uniqueIndex;not null"`
	EncryptedSecret string    `json:"-" gorm:"type:text;not null"`
	CreatedAt       time.Time `json:"created_at"`
}

func (EscrowAccount) TableName() string {
	return "escrow_accounts"
}
