package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-verifier/internal/verify"
)

func TestKeywordClassifier(t *testing.T) {
	call := CallContext{CustomerName: "Dana Whitfield", CompanyName: "Acme Utilities"}

	tests := []struct {
		name       string
		transcript string
		outcome    verify.Outcome
		state      verify.AccountState
	}{
		{
			name:       "confirmed account",
			transcript: "Let me check... yes, I can confirm we have that account on file.",
			outcome:    verify.OutcomeAccountFound,
			state:      verify.AccountExists,
		},
		{
			name:       "no account",
			transcript: "I'm sorry, I don't see that account in our system.",
			outcome:    verify.OutcomeAccountNotFound,
			state:      verify.AccountNotExists,
		},
		{
			name:       "escalation",
			transcript: "You'd have to speak to a supervisor about that.",
			outcome:    verify.OutcomeNeedsHuman,
			state:      verify.AccountUnknown,
		},
		{
			name:       "voicemail greeting",
			transcript: "You've reached Acme Utilities, please leave a message after the tone.",
			outcome:    verify.OutcomeVoicemail,
			state:      verify.AccountUnknown,
		},
		{
			name:       "inconclusive",
			transcript: "Thanks for calling, have a nice day.",
			outcome:    verify.OutcomeNeedsHuman,
			state:      verify.AccountUnknown,
		},
		{
			name:       "empty transcript",
			transcript: "",
			outcome:    verify.OutcomeNeedsHuman,
			state:      verify.AccountUnknown,
		},
	}

	c := NewKeywordClassifier()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.Classify(context.Background(), call, tc.transcript)
			require.NoError(t, err)
			assert.Equal(t, tc.outcome, got.Outcome)
			assert.Equal(t, tc.state, got.AccountExists)
			assert.NotEmpty(t, got.Summary)
		})
	}
}

func TestKeywordClassifierIsDeterministic(t *testing.T) {
	c := NewKeywordClassifier()
	call := CallContext{CustomerName: "Dana Whitfield", CompanyName: "Acme Utilities"}
	transcript := "yes, I can confirm we have that account on file"

	first, err := c.Classify(context.Background(), call, transcript)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := c.Classify(context.Background(), call, transcript)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
