package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/louisbranch/vvebeheer/internal/platform/errors"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/account"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/banking"
)

func TestAcceptLink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		base string
		want string
	}{
		{name: "empty base", base: "", want: "tok"},
		{name: "plain base", base: "https://vve.example.nl/invite", want: "https://vve.example.nl/invite?token=tok"},
		{name: "base with query", base: "https://vve.example.nl/invite?lang=nl", want: "https://vve.example.nl/invite?lang=nl&token=tok"},
		{name: "base ending in parameter", base: "https://vve.example.nl/i?t=", want: "https://vve.example.nl/i?t=tok"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, AcceptLink(tc.base, "tok"))
		})
	}
}

type fakeUsers map[string]account.User

func (f fakeUsers) GetUser(_ context.Context, userID string) (account.User, error) {
	user, ok := f[userID]
	if !ok {
		return account.User{}, apperrors.ErrNotFound
	}
	return user, nil
}

type fakeBoard map[string][]string

func (f fakeBoard) ListBoardUserIDs(_ context.Context, associationID string) ([]string, error) {
	return f[associationID], nil
}

func TestDirectory(t *testing.T) {
	t.Parallel()

	dir := directory{
		users: fakeUsers{"u-1": {ID: "u-1", Email: "anna@example.nl", Locale: "en-GB"}},
		board: fakeBoard{"vve-1": {"u-1", "u-2"}},
	}
	recipient, err := dir.Recipient(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "anna@example.nl", recipient.Email)
	assert.Equal(t, "en-GB", recipient.Locale)

	_, err = dir.Recipient(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	ids, err := dir.BoardUserIDs(context.Background(), "vve-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u-1", "u-2"}, ids)
}

func TestNotifierWithoutDispatcher(t *testing.T) {
	t.Parallel()

	notifier := newBankingNotifier(nil)
	assert.NoError(t, notifier.Notify(context.Background(), banking.Event{Topic: banking.EventImportCompleted}))
}
