package authkit

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestAddHashtag(t *testing.T) {
	h := newTestEngine(t)
	account := h.addAccount(t, "alice", "correct horse battery")
	ctx := context.Background()

	if err := h.engine.AddHashtag(ctx, account.ID, "golang"); err != nil {
		t.Fatalf("add hashtag: %v", err)
	}
	if err := h.engine.AddHashtag(ctx, account.ID, "auth"); err != nil {
		t.Fatalf("add hashtag: %v", err)
	}

	got := h.directory.get(t, account.ID).Hashtags
	want := []string{"auth", "golang"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("hashtags = %v, want %v", got, want)
	}
}

func TestAddHashtagIdempotent(t *testing.T) {
	h := newTestEngine(t)
	account := h.addAccount(t, "alice", "correct horse battery")
	ctx := context.Background()

	if err := h.engine.AddHashtag(ctx, account.ID, "golang"); err != nil {
		t.Fatalf("add hashtag: %v", err)
	}
	if err := h.engine.AddHashtag(ctx, account.ID, "golang"); err != nil {
		t.Fatalf("re-add hashtag: %v", err)
	}
	if n := len(h.directory.get(t, account.ID).Hashtags); n != 1 {
		t.Fatalf("hashtag count = %d, want 1", n)
	}
}

func TestAddHashtagRejectsInvalid(t *testing.T) {
	h := newTestEngine(t)
	account := h.addAccount(t, "alice", "correct horse battery")
	ctx := context.Background()

	for _, tag := range []string{"", "x", "has space", "bad#char"} {
		err := h.engine.AddHashtag(ctx, account.ID, tag)
		var verr ValidationErrors
		if !errors.As(err, &verr) {
			t.Fatalf("tag %q: err = %v, want ValidationErrors", tag, err)
		}
	}
}

func TestAddHashtagLimit(t *testing.T) {
	h := newTestEngine(t, func(cfg *Config) {
		cfg.Profile.MaxHashtags = 2
	})
	account := h.addAccount(t, "alice", "correct horse battery")
	ctx := context.Background()

	if err := h.engine.AddHashtag(ctx, account.ID, "one"); err != nil {
		t.Fatalf("add hashtag: %v", err)
	}
	if err := h.engine.AddHashtag(ctx, account.ID, "two"); err != nil {
		t.Fatalf("add hashtag: %v", err)
	}

	err := h.engine.AddHashtag(ctx, account.ID, "three")
	var verr ValidationErrors
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationErrors", err)
	}
}

func TestProfileView(t *testing.T) {
	h := newTestEngine(t)
	account := h.addAccount(t, "alice", "correct horse battery", func(a *Account) {
		a.Hashtags = []string{"golang"}
		a.TwoFactorEnabled = true
	})

	view, err := h.engine.Profile(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if view.AccountID != account.ID {
		t.Fatalf("account id = %s", view.AccountID)
	}
	if view.Email != account.Email || !view.EmailConfirmed {
		t.Fatalf("email view = %s confirmed=%v", view.Email, view.EmailConfirmed)
	}
	if !view.HasPassword {
		t.Fatal("HasPassword should be true")
	}
	if !view.TwoFactorEnabled {
		t.Fatal("TwoFactorEnabled should be true")
	}
	if !reflect.DeepEqual(view.Hashtags, []string{"golang"}) {
		t.Fatalf("hashtags = %v", view.Hashtags)
	}
}

func TestProfileUnknownAccount(t *testing.T) {
	h := newTestEngine(t)

	_, err := h.engine.Profile(context.Background(), "missing")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestSetEmailResetsConfirmation(t *testing.T) {
	h := newTestEngine(t)
	account := h.addAccount(t, "alice", "correct horse battery")

	if err := h.engine.SetEmail(context.Background(), account.ID, "fresh@example.com"); err != nil {
		t.Fatalf("set email: %v", err)
	}

	got := h.directory.get(t, account.ID)
	if got.Email != "fresh@example.com" {
		t.Fatalf("email = %s", got.Email)
	}
	if got.EmailConfirmed {
		t.Fatal("changed email must start unconfirmed")
	}
}

func TestSetEmailKeepConfirmedMode(t *testing.T) {
	h := newTestEngine(t, func(cfg *Config) {
		cfg.Profile.KeepConfirmedOnEmailChange = true
	})
	account := h.addAccount(t, "alice", "correct horse battery")

	if err := h.engine.SetEmail(context.Background(), account.ID, "fresh@example.com"); err != nil {
		t.Fatalf("set email: %v", err)
	}
	if !h.directory.get(t, account.ID).EmailConfirmed {
		t.Fatal("confirmation flag should be kept in this mode")
	}
}

func TestSetEmailKeepsUsernameAligned(t *testing.T) {
	h := newTestEngine(t)

	id, err := h.engine.Register(context.Background(), RegisterRequest{
		Email:    "old@example.com",
		Password: "a decent passphrase",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := h.engine.SetEmail(context.Background(), id, "fresh@example.com"); err != nil {
		t.Fatalf("set email: %v", err)
	}
	if got := h.directory.get(t, id).Username; got != "fresh@example.com" {
		t.Fatalf("username = %s, want fresh@example.com", got)
	}
}

func TestSetEmailDuplicate(t *testing.T) {
	h := newTestEngine(t)
	account := h.addAccount(t, "alice", "correct horse battery")
	h.addAccount(t, "bob", "another passphrase")

	err := h.engine.SetEmail(context.Background(), account.ID, "bob@example.com")
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("err = %v, want ErrAccountExists", err)
	}
}

func TestSetEmailSameAddressNoop(t *testing.T) {
	h := newTestEngine(t)
	account := h.addAccount(t, "alice", "correct horse battery")

	if err := h.engine.SetEmail(context.Background(), account.ID, account.Email); err != nil {
		t.Fatalf("set email: %v", err)
	}
	got := h.directory.get(t, account.ID)
	if !got.EmailConfirmed {
		t.Fatal("no-op change must not reset confirmation")
	}
	if h.directory.updateCalls != 0 {
		t.Fatalf("update calls = %d, want 0", h.directory.updateCalls)
	}
}

func TestSetEmailInvalid(t *testing.T) {
	h := newTestEngine(t)
	account := h.addAccount(t, "alice", "correct horse battery")

	err := h.engine.SetEmail(context.Background(), account.ID, "not-an-email")
	var verr ValidationErrors
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationErrors", err)
	}
}
