package authkit

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestRegisterCreatesUnconfirmedAccount(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	id, err := h.engine.Register(ctx, RegisterRequest{
		Email:    "new@example.com",
		Password: "a decent passphrase",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	account := h.directory.get(t, id)
	if account.Email != "new@example.com" {
		t.Fatalf("email = %s", account.Email)
	}
	if account.Username != "new@example.com" {
		t.Fatalf("username = %s", account.Username)
	}
	if account.EmailConfirmed {
		t.Fatal("fresh account must start unconfirmed")
	}
	if account.PasswordHash == "" {
		t.Fatal("password hash missing")
	}

	mail := h.mailer.lastConfirmation(t)
	if mail.email != "new@example.com" {
		t.Fatalf("confirmation mailed to %s", mail.email)
	}
	if err := h.engine.ConfirmEmail(ctx, id, mail.token); err != nil {
		t.Fatalf("confirm with mailed token: %v", err)
	}
	if !h.directory.get(t, id).EmailConfirmed {
		t.Fatal("email not confirmed")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	h := newTestEngine(t)
	h.addAccount(t, "alice", "correct horse battery")

	_, err := h.engine.Register(context.Background(), RegisterRequest{
		Email:    "Alice@Example.com",
		Password: "a decent passphrase",
	})
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("err = %v, want ErrAccountExists", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		req   RegisterRequest
		field string
	}{
		{"malformed email", RegisterRequest{Email: "not-an-email", Password: "a decent passphrase"}, "email"},
		{"empty email", RegisterRequest{Password: "a decent passphrase"}, "email"},
		{"short password", RegisterRequest{Email: "new@example.com", Password: "tiny"}, "password"},
		{"bad hashtag", RegisterRequest{Email: "new@example.com", Password: "a decent passphrase", Hashtags: []string{"no spaces allowed"}}, "hashtags"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.engine.Register(ctx, tc.req)
			var verr ValidationErrors
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationErrors", err)
			}
			// Dive failures carry an index suffix, e.g. hashtags[0].
			found := false
			for field := range verr {
				if strings.HasPrefix(field, tc.field) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected failure on %q, got %v", tc.field, verr)
			}
		})
	}
}

func TestRegisterNormalizesHashtags(t *testing.T) {
	h := newTestEngine(t)

	id, err := h.engine.Register(context.Background(), RegisterRequest{
		Email:    "new@example.com",
		Password: "a decent passphrase",
		Hashtags: []string{"golang", "redis", "golang", " redis ", "auth"},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	got := h.directory.get(t, id).Hashtags
	want := []string{"auth", "golang", "redis"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("hashtags = %v, want %v", got, want)
	}
}

func TestChangePassword(t *testing.T) {
	h := newTestEngine(t)
	account := h.addAccount(t, "alice", "correct horse battery")
	ctx := context.Background()

	if err := h.engine.ChangePassword(ctx, account.ID, "correct horse battery", "brand new passphrase"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	result, err := h.engine.Login(ctx, "alice", "brand new passphrase", false)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Outcome != LoginSuccess {
		t.Fatalf("outcome = %v, want success", result.Outcome)
	}
}

func TestChangePasswordWrongOld(t *testing.T) {
	h := newTestEngine(t)
	account := h.addAccount(t, "alice", "correct horse battery")

	err := h.engine.ChangePassword(context.Background(), account.ID, "wrong old pass", "brand new passphrase")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestChangePasswordReuseRejected(t *testing.T) {
	h := newTestEngine(t)
	account := h.addAccount(t, "alice", "correct horse battery")

	err := h.engine.ChangePassword(context.Background(), account.ID, "correct horse battery", "correct horse battery")
	if !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("err = %v, want ErrPasswordReuse", err)
	}
}

func TestChangePasswordPolicy(t *testing.T) {
	h := newTestEngine(t)
	account := h.addAccount(t, "alice", "correct horse battery")

	err := h.engine.ChangePassword(context.Background(), account.ID, "correct horse battery", "tiny")
	var verr ValidationErrors
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationErrors", err)
	}
}

func TestChangePasswordExternalOnlyAccount(t *testing.T) {
	h := newTestEngine(t)
	account := h.addAccount(t, "alice", "", func(a *Account) {
		a.Logins = []ProviderLink{{Provider: "google", Key: "g-1"}}
	})

	err := h.engine.ChangePassword(context.Background(), account.ID, "", "brand new passphrase")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}
