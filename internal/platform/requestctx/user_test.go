package requestctx

import (
	"context"
	"testing"

	"golang.org/x/text/language"
)

func TestUserIDFromContextRoundTrip(t *testing.T) {
	ctx := WithUserID(context.Background(), "user-42")
	if got := UserIDFromContext(ctx); got != "user-42" {
		t.Fatalf("UserIDFromContext = %q, want %q", got, "user-42")
	}
}

func TestPrincipalRoundTrip(t *testing.T) {
	ctx := WithPrincipal(context.Background(), Principal{UserID: "root", SuperAdmin: true})
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		t.Fatal("expected principal")
	}
	if !principal.SuperAdmin || principal.UserID != "root" {
		t.Fatalf("principal = %+v", principal)
	}
}

func TestPrincipalMissing(t *testing.T) {
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatal("expected no principal")
	}
	if _, ok := PrincipalFromContext(WithUserID(context.Background(), "")); ok {
		t.Fatal("expected empty user id to be rejected")
	}
	if got := UserIDFromContext(nil); got != "" {
		t.Fatalf("expected empty string for nil context, got %q", got)
	}
}

func TestLocaleDefaultsToEnglish(t *testing.T) {
	if got := LocaleFromContext(context.Background()); got != language.English {
		t.Fatalf("LocaleFromContext = %v", got)
	}
	ctx := WithLocale(context.Background(), language.Dutch)
	if got := LocaleFromContext(ctx); got != language.Dutch {
		t.Fatalf("LocaleFromContext = %v", got)
	}
}
