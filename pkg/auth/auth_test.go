package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func vote(res Result) Authenticator {
	return AuthenticatorFunc(func(context.Context, *http.Request) Result { return res })
}

func TestChain(t *testing.T) {
	alice := Result{Decision: Yes, Identity: &Identity{Subject: "alice"}}
	reject := Result{Decision: No, Err: ErrUnauthenticated}
	abstain := Result{Decision: Abstain}

	tests := []struct {
		name        string
		chain       Chain
		wantDecision Decision
		wantSubject string
	}{
		{"first yes stops", Chain{Authenticators: []Authenticator{vote(alice), vote(reject)}, Default: No}, Yes, "alice"},
		{"first no stops", Chain{Authenticators: []Authenticator{vote(reject), vote(alice)}, Default: Yes}, No, ""},
		{"abstain passes on", Chain{Authenticators: []Authenticator{vote(abstain), vote(alice)}, Default: No}, Yes, "alice"},
		{"all abstain default no", Chain{Authenticators: []Authenticator{vote(abstain)}, Default: No}, No, ""},
		{"all abstain default yes", Chain{Authenticators: []Authenticator{vote(abstain)}, Default: Yes}, Yes, "anonymous"},
		{"empty chain default yes", Chain{Default: Yes}, Yes, "anonymous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			res := tt.chain.Authenticate(context.Background(), r)
			if res.Decision != tt.wantDecision {
				t.Fatalf("Decision = %v, want %v", res.Decision, tt.wantDecision)
			}
			if tt.wantSubject != "" && (res.Identity == nil || res.Identity.Subject != tt.wantSubject) {
				t.Errorf("Identity = %+v, want subject %q", res.Identity, tt.wantSubject)
			}
			if res.Decision == No && res.Err == nil {
				t.Error("No decision without error")
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header    string
		wantToken string
		wantOK    bool
	}{
		{"", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
		{"Bearer abc123", "abc123", true},
		{"bearer abc123", "abc123", true},
		{"Bearer", "", true},
		{"Bearer   ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			token, ok := BearerToken(r)
			if token != tt.wantToken || ok != tt.wantOK {
				t.Errorf("BearerToken = (%q, %v), want (%q, %v)", token, ok, tt.wantToken, tt.wantOK)
			}
		})
	}
}

func TestIdentityContext(t *testing.T) {
	if got := IdentityFromContext(context.Background()); got != nil {
		t.Errorf("empty context: got %+v", got)
	}
	id := &Identity{Subject: "alice"}
	if got := IdentityFromContext(WithIdentity(context.Background(), id)); got != id {
		t.Errorf("got %+v, want %+v", got, id)
	}
}

func TestWindowLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewWindowLimiter(2, map[string]int{"gold": 3, "free": 0})
	l.now = func() time.Time { return now }
	ctx := context.Background()

	alice := &Identity{Subject: "alice"}
	for i := range 2 {
		if err := l.Allow(ctx, alice); err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
	}
	if err := l.Allow(ctx, alice); err != ErrTooManyRequests {
		t.Errorf("third request: got %v, want ErrTooManyRequests", err)
	}

	// Other subjects have their own window.
	if err := l.Allow(ctx, &Identity{Subject: "bob"}); err != nil {
		t.Errorf("bob rejected: %v", err)
	}

	gold := &Identity{Subject: "carol", Tier: "gold"}
	for i := range 3 {
		if err := l.Allow(ctx, gold); err != nil {
			t.Fatalf("gold request %d rejected: %v", i+1, err)
		}
	}
	if err := l.Allow(ctx, gold); err == nil {
		t.Error("fourth gold request allowed")
	}

	free := &Identity{Subject: "dave", Tier: "free"}
	for range 10 {
		if err := l.Allow(ctx, free); err != nil {
			t.Fatalf("unlimited tier rejected: %v", err)
		}
	}

	now = now.Add(time.Minute)
	if err := l.Allow(ctx, alice); err != nil {
		t.Errorf("new window rejected: %v", err)
	}
}
