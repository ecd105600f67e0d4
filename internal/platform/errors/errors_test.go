package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"golang.org/x/text/language"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestCodeMapping(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		code     Code
		wantGRPC codes.Code
		wantHTTP int
	}{
		{CodeInvalidIBAN, codes.InvalidArgument, http.StatusBadRequest},
		{CodeInviteExpired, codes.FailedPrecondition, http.StatusConflict},
		{CodeInvalidCredentials, codes.Unauthenticated, http.StatusUnauthorized},
		{CodePermissionDenied, codes.PermissionDenied, http.StatusForbidden},
		{CodeNotFound, codes.NotFound, http.StatusNotFound},
		{CodeMemberUnitTaken, codes.AlreadyExists, http.StatusConflict},
		{CodeUnknown, codes.Internal, http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		if got := tc.code.GRPCCode(); got != tc.wantGRPC {
			t.Fatalf("%s.GRPCCode() = %v, want %v", tc.code, got, tc.wantGRPC)
		}
		if got := tc.code.HTTPStatus(); got != tc.wantHTTP {
			t.Fatalf("%s.HTTPStatus() = %d, want %d", tc.code, got, tc.wantHTTP)
		}
	}
}

func TestCodeOfWalksWrappedChain(t *testing.T) {
	t.Parallel()

	base := New(CodeLedgerUnbalanced, "debits 10 != credits 9")
	wrapped := fmt.Errorf("post entry: %w", base)

	if got := CodeOf(wrapped); got != CodeLedgerUnbalanced {
		t.Fatalf("CodeOf = %s, want %s", got, CodeLedgerUnbalanced)
	}
	if !HasCode(wrapped, CodeLedgerUnbalanced) {
		t.Fatal("expected HasCode to match wrapped code")
	}
	if HasCode(wrapped, CodeNotFound) {
		t.Fatal("expected HasCode to reject other code")
	}
	if got := CodeOf(stderrors.New("plain")); got != CodeUnknown {
		t.Fatalf("CodeOf(plain) = %s, want UNKNOWN", got)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	t.Parallel()

	cause := stderrors.New("disk full")
	err := Wrap(CodeUnknown, "write import", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable")
	}
}

func TestToGRPCStatus(t *testing.T) {
	t.Parallel()

	st, ok := status.FromError(ToGRPCStatus(New(CodeProposalNotOpen, "closed")))
	if !ok {
		t.Fatal("expected grpc status")
	}
	if st.Code() != codes.FailedPrecondition {
		t.Fatalf("code = %v, want FailedPrecondition", st.Code())
	}
	if ToGRPCStatus(nil) != nil {
		t.Fatal("expected nil for nil error")
	}
}

func TestUserMessageLocalized(t *testing.T) {
	t.Parallel()

	if got := UserMessage(language.Dutch, CodeInviteExpired); got != "Deze uitnodiging is verlopen." {
		t.Fatalf("dutch message = %q", got)
	}
	if got := UserMessage(language.English, CodeInviteExpired); got != "This invitation has expired." {
		t.Fatalf("english message = %q", got)
	}
	if got := UserMessage(language.English, Code("NOPE")); got != "Something went wrong." {
		t.Fatalf("fallback message = %q", got)
	}
}

func TestResolveLocale(t *testing.T) {
	t.Parallel()

	if got := ResolveLocale("nl-NL,nl;q=0.9,en;q=0.5"); got != LocaleDutch {
		t.Fatalf("ResolveLocale(nl) = %v", got)
	}
	if got := ResolveLocale(""); got != LocaleEnglish {
		t.Fatalf("ResolveLocale(empty) = %v", got)
	}
	if got := ResolveLocale("fr"); got != LocaleEnglish {
		t.Fatalf("ResolveLocale(fr) = %v", got)
	}
}
