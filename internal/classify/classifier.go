// Package classify turns call transcripts into verification outcomes when the
// vendor did not report one itself.
package classify

import (
	"context"
	"strings"

	"account-verifier/internal/verify"
)

// CallContext gives the classifier the facts of the verification ask.
type CallContext struct {
	CustomerName  string
	CompanyName   string
	AccountNumber string
}

// Result is the classifier's verdict for one transcript.
type Result struct {
	Outcome       verify.Outcome
	AccountExists verify.AccountState
	Summary       string
	Notes         string
}

// Classifier decides the outcome of a finished call from its transcript.
// Implementations must be deterministic for a given transcript; retries of
// the same webhook must classify the same way.
type Classifier interface {
	Classify(ctx context.Context, call CallContext, transcript string) (Result, error)
}

// KeywordClassifier is a phrase-matching classifier. It errs on the side of
// needs_human: any transcript it cannot place confidently goes to an
// operator instead of closing a job with a wrong answer.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier { return &KeywordClassifier{} }

var (
	foundPhrases = []string{
		"confirm we have that account",
		"we do have that account",
		"account is on file",
		"account is active",
		"found the account",
		"yes, we have",
	}
	notFoundPhrases = []string{
		"don't see that account",
		"do not see that account",
		"no account under that name",
		"no record of that account",
		"unable to find that account",
		"account does not exist",
	}
	humanPhrases = []string{
		"speak to a supervisor",
		"transfer you",
		"need a human",
		"call back during business hours",
		"cannot disclose",
	}
	voicemailPhrases = []string{
		"leave a message",
		"after the tone",
		"voicemail",
		"not available right now",
	}
)

func (c *KeywordClassifier) Classify(_ context.Context, call CallContext, transcript string) (Result, error) {
	t := strings.ToLower(transcript)

	if t == "" {
		return Result{
			Outcome:       verify.OutcomeNeedsHuman,
			AccountExists: verify.AccountUnknown,
			Summary:       "No transcript available for the call.",
			Notes:         "empty transcript",
		}, nil
	}

	if containsAny(t, voicemailPhrases) {
		return Result{
			Outcome:       verify.OutcomeVoicemail,
			AccountExists: verify.AccountUnknown,
			Summary:       "Call reached voicemail for " + call.CompanyName + ".",
		}, nil
	}
	if containsAny(t, foundPhrases) {
		return Result{
			Outcome:       verify.OutcomeAccountFound,
			AccountExists: verify.AccountExists,
			Summary:       "Representative confirmed an account on file for " + call.CustomerName + ".",
		}, nil
	}
	if containsAny(t, notFoundPhrases) {
		return Result{
			Outcome:       verify.OutcomeAccountNotFound,
			AccountExists: verify.AccountNotExists,
			Summary:       "Representative could not find an account for " + call.CustomerName + ".",
		}, nil
	}
	if containsAny(t, humanPhrases) {
		return Result{
			Outcome:       verify.OutcomeNeedsHuman,
			AccountExists: verify.AccountUnknown,
			Summary:       "Representative could not resolve the request over the phone.",
			Notes:         "transfer or escalation requested",
		}, nil
	}

	return Result{
		Outcome:       verify.OutcomeNeedsHuman,
		AccountExists: verify.AccountUnknown,
		Summary:       "Call completed but the result was inconclusive.",
		Notes:         "no decisive phrase in transcript",
	}, nil
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
