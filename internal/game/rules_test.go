package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcome(t *testing.T) {
	cases := []struct {
		maker Choice
		taker Choice
		want  PayoutRule
	}{
		{ChoiceRock, ChoiceScissors, RulePayMaker},
		{ChoiceScissors, ChoicePaper, RulePayMaker},
		{ChoicePaper, ChoiceRock, RulePayMaker},
		{ChoiceScissors, ChoiceRock, RulePayTaker},
		{ChoicePaper, ChoiceScissors, RulePayTaker},
		{ChoiceRock, ChoicePaper, RulePayTaker},
		{ChoiceRock, ChoiceRock, RuleSplit},
		{ChoicePaper, ChoicePaper, RuleSplit},
		{ChoiceScissors, ChoiceScissors, RuleSplit},
	}

	for _, tc := range cases {
		got, err := Outcome(tc.maker, tc.taker)
		require.NoError(t, err)
		assert.Equalf(t, tc.want, got, "%s vs %s", tc.maker, tc.taker)
	}
}

func TestOutcomeRejectsInvalidChoice(t *testing.T) {
	_, err := Outcome("Lizard", ChoiceRock)
	assert.Error(t, err)

	_, err = Outcome(ChoiceRock, "")
	assert.Error(t, err)
}

func TestParseChoice(t *testing.T) {
	for _, s := range []string{"Rock", "Paper", "Scissors"} {
		c, err := ParseChoice(s)
		require.NoError(t, err)
		assert.Equal(t, Choice(s), c)
	}

	_, err := ParseChoice("rock")
	assert.Error(t, err, "choices are case sensitive")
}

func TestRuleWinnerRoundTrip(t *testing.T) {
	const maker = "maker-addr"
	const taker = "taker-addr"

	for _, rule := range []PayoutRule{RulePayMaker, RulePayTaker, RuleSplit} {
		winner, err := WinnerForRule(rule, maker, taker)
		require.NoError(t, err)

		back, err := RuleForWinner(winner, maker, taker)
		require.NoError(t, err)
		assert.Equal(t, rule, back)
	}

	_, err := RuleForWinner("someone-else", maker, taker)
	assert.Error(t, err)
}
