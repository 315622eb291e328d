package game

import "fmt"

// Choice is one of the three playable hands.
type Choice string

const (
	ChoiceRock     Choice = "Rock"
	ChoicePaper    Choice = "Paper"
	ChoiceScissors Choice = "Scissors"
)

// DrawWinner is the sentinel winner value recorded when both sides
// played the same hand.
const DrawWinner = "DRAW"

// PayoutRule tells the disbursement layer how to split the escrowed
// balance. It is derived from the game outcome exactly once and carried
// through completion instead of the raw winner string.
type PayoutRule string

const (
	RulePayMaker PayoutRule = "pay_maker"
	RulePayTaker PayoutRule = "pay_taker"
	RuleSplit    PayoutRule = "split"
)

// ParseChoice validates a raw choice string.
func ParseChoice(s string) (Choice, error) {
	switch Choice(s) {
	case ChoiceRock, ChoicePaper, ChoiceScissors:
		return Choice(s), nil
	}
	return "", fmt.Errorf("invalid choice %q, must be one of Rock, Paper, Scissors", s)
}

// Beats reports whether c wins against other under the standard
// beats relation: Rock > Scissors, Scissors > Paper, Paper > Rock.
func (c Choice) Beats(other Choice) bool {
	switch {
	case c == ChoiceRock && other == ChoiceScissors:
		return true
	case c == ChoiceScissors && other == ChoicePaper:
		return true
	case c == ChoicePaper && other == ChoiceRock:
		return true
	}
	return false
}

// Outcome applies the game rule to a maker/taker choice pair. The rule
// is total: every ordered pair of distinct choices has exactly one
// winner, equal choices split.
func Outcome(maker, taker Choice) (PayoutRule, error) {
	if _, err := ParseChoice(string(maker)); err != nil {
		return "", fmt.Errorf("maker choice: %w", err)
	}
	if _, err := ParseChoice(string(taker)); err != nil {
		return "", fmt.Errorf("taker choice: %w", err)
	}
	switch {
	case maker == taker:
		return RuleSplit, nil
	case maker.Beats(taker):
		return RulePayMaker, nil
	default:
		return RulePayTaker, nil
	}
}

// WinnerForRule maps a payout rule back to the winner identity recorded
// on the wager.
func WinnerForRule(rule PayoutRule, makerAddress, takerAddress string) (string, error) {
	switch rule {
	case RulePayMaker:
		return makerAddress, nil
	case RulePayTaker:
		return takerAddress, nil
	case RuleSplit:
		return DrawWinner, nil
	}
	return "", fmt.Errorf("invalid payout rule %q", rule)
}

// RuleForWinner reconstructs the payout rule from an already recorded
// winner. Used by the idempotent short-circuit in Decide.
func RuleForWinner(winner, makerAddress, takerAddress string) (PayoutRule, error) {
	switch winner {
	case DrawWinner:
		return RuleSplit, nil
	case makerAddress:
		return RulePayMaker, nil
	case takerAddress:
		return RulePayTaker, nil
	}
	return "", fmt.Errorf("winner %q is neither maker, taker nor draw", winner)
}
