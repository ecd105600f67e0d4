package banking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/member"
)

func TestMatchMember(t *testing.T) {
	t.Parallel()

	left := day(2024, 1, 31)
	members := []member.Member{
		{ID: "m-1", Name: "J. de Vries", Unit: "12B", IBANs: []string{"NL91ABNA0417164300"}, StartDate: day(2020, 1, 1)},
		{ID: "m-2", Name: "Anna Bakker", Unit: "14", StartDate: day(2020, 1, 1)},
		{ID: "m-3", Name: "Piet Smit", Unit: "16", StartDate: day(2020, 1, 1)},
		{ID: "m-4", Name: "Piet Smit", Unit: "18", StartDate: day(2020, 1, 1)},
		{ID: "m-5", Name: "Oud Lid", Unit: "20", IBANs: []string{"DE89370400440532013000"}, StartDate: day(2020, 1, 1), EndDate: &left},
	}

	tests := []struct {
		name   string
		tx     Transaction
		want   string
		method MatchMethod
	}{
		{
			name:   "iban with spaces",
			tx:     Transaction{CounterpartyIBAN: "nl91 abna 0417 1643 00", CounterpartyName: "Iemand Anders"},
			want:   "m-1",
			method: MatchIBAN,
		},
		{
			name:   "name with title",
			tx:     Transaction{CounterpartyName: "Dhr. J. de Vries"},
			want:   "m-1",
			method: MatchName,
		},
		{
			name:   "reversed name",
			tx:     Transaction{CounterpartyName: "BAKKER ANNA"},
			want:   "m-2",
			method: MatchName,
		},
		{
			name:   "unit in description",
			tx:     Transaction{CounterpartyName: "P. Smit", Description: "Bijdrage app. 18"},
			want:   "m-4",
			method: MatchUnit,
		},
		{
			name:   "unit with letter",
			tx:     Transaction{Description: "servicekosten nr 12b"},
			want:   "m-1",
			method: MatchUnit,
		},
		{
			name: "ambiguous name",
			tx:   Transaction{CounterpartyName: "Piet Smit"},
		},
		{
			name: "archived member",
			tx:   Transaction{CounterpartyIBAN: "DE89370400440532013000", CounterpartyName: "Oud Lid"},
		},
		{
			name: "unknown",
			tx:   Transaction{CounterpartyName: "Gemeente Utrecht", Description: "teruggave"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tc.tx.BookingDate = day(2024, 3, 1)
			got, method, ok := MatchMember(tc.tx, members)
			if tc.want == "" {
				assert.False(t, ok)
				assert.Equal(t, MatchNone, method)
				return
			}
			assert.True(t, ok)
			assert.Equal(t, tc.want, got.ID)
			assert.Equal(t, tc.method, method)
		})
	}
}

func TestMatchMemberUsesBookingDate(t *testing.T) {
	t.Parallel()

	left := day(2024, 1, 31)
	members := []member.Member{
		{ID: "old", Name: "A", Unit: "1", IBANs: []string{"NL91ABNA0417164300"}, StartDate: day(2020, 1, 1), EndDate: &left},
		{ID: "new", Name: "B", Unit: "1", IBANs: []string{"NL91ABNA0417164300"}, StartDate: day(2024, 2, 1)},
	}
	tx := Transaction{CounterpartyIBAN: "NL91ABNA0417164300", BookingDate: day(2024, 1, 15)}
	got, _, ok := MatchMember(tx, members)
	assert.True(t, ok)
	assert.Equal(t, "old", got.ID)

	tx.BookingDate = day(2024, 2, 15)
	got, _, ok = MatchMember(tx, members)
	assert.True(t, ok)
	assert.Equal(t, "new", got.ID)
}
