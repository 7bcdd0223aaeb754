package verify

import "testing"

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusAccountFound, StatusAccountNotFound} {
		if !s.Terminal() {
			t.Fatalf("%s must be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusCalling, StatusNeedsHuman, StatusVoicemail, StatusFailed} {
		if s.Terminal() {
			t.Fatalf("%s must not be terminal", s)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusCalling, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusAccountFound, false},
		{StatusCalling, StatusAccountFound, true},
		{StatusCalling, StatusPending, true},
		{StatusCalling, StatusVoicemail, true},
		{StatusFailed, StatusPending, true},
		{StatusVoicemail, StatusPending, true},
		{StatusNeedsHuman, StatusPending, true},
		{StatusNeedsHuman, StatusCalling, false},
		{StatusAccountFound, StatusPending, false},
		{StatusAccountNotFound, StatusCalling, false},
	}
	for _, tc := range tests {
		if got := CanTransition(tc.from, tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestOutcomeMapping(t *testing.T) {
	if OutcomeAccountFound.AccountState() != AccountExists {
		t.Fatalf("account_found must map to exists")
	}
	if OutcomeAccountNotFound.AccountState() != AccountNotExists {
		t.Fatalf("account_not_found must map to not_exists")
	}
	for _, o := range []Outcome{OutcomeNeedsHuman, OutcomeVoicemail, OutcomeFailed} {
		if o.AccountState() != AccountUnknown {
			t.Fatalf("%s must keep the account state unknown", o)
		}
	}

	if OutcomeVoicemail.Status() != StatusVoicemail {
		t.Fatalf("voicemail outcome must rest at voicemail status")
	}
	if OutcomeFailed.Status() != StatusFailed {
		t.Fatalf("failed outcome must rest at failed status")
	}
}
