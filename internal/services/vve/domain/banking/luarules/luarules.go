// Package luarules runs per-association categorization scripts.
//
// A script defines a global function categorize(tx) that returns a ledger
// account code, or nil to leave the transaction to the other rules. The
// tx table has the fields amount, amount_text, incoming, currency,
// description, counterparty_name, counterparty_iban and booking_date.
// Scripts may call contains(text, needle), which compares normalized text.
package luarules

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Shopify/go-lua"

	"github.com/louisbranch/vvebeheer/internal/platform/money"
	"github.com/louisbranch/vvebeheer/internal/services/vve/domain/banking"
)

const entryPoint = "categorize"

// globals removed from every script state.
var blocked = []string{"os", "io", "debug", "package", "require", "dofile", "loadfile", "load", "loadstring", "collectgarbage"}

// ErrNoEntryPoint indicates the script does not define categorize.
var ErrNoEntryPoint = errors.New("script must define function categorize(tx)")

// Script is a compiled categorization script. A lua state is not safe for
// concurrent use, so calls are serialized.
type Script struct {
	mu    sync.Mutex
	state *lua.State
}

// Compile loads a script and checks that it defines categorize.
func Compile(source string) (banking.Categorizer, error) {
	return compile(source)
}

func compile(source string) (*Script, error) {
	state := lua.NewState()
	lua.OpenLibraries(state)
	for _, name := range blocked {
		state.PushNil()
		state.SetGlobal(name)
	}
	state.PushGoFunction(containsHelper)
	state.SetGlobal("contains")

	if err := lua.LoadString(state, source); err != nil {
		return nil, fmt.Errorf("load script: %w", err)
	}
	if err := state.ProtectedCall(0, 0, 0); err != nil {
		return nil, fmt.Errorf("run script: %w", err)
	}
	state.Global(entryPoint)
	defined := state.IsFunction(-1)
	state.Pop(1)
	if !defined {
		return nil, ErrNoEntryPoint
	}
	return &Script{state: state}, nil
}

// Categorize calls categorize(tx).
func (s *Script) Categorize(ctx context.Context, tx banking.Transaction) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.state
	state.SetTop(0)
	state.Global(entryPoint)
	pushTransaction(state, tx)
	if err := state.ProtectedCall(1, 1, 0); err != nil {
		state.SetTop(0)
		return "", false, fmt.Errorf("categorize %s: %w", tx.ID, err)
	}
	defer state.SetTop(0)

	switch state.TypeOf(-1) {
	case lua.TypeNil:
		return "", false, nil
	case lua.TypeBoolean:
		if !state.ToBoolean(-1) {
			return "", false, nil
		}
	case lua.TypeString, lua.TypeNumber:
		code, _ := state.ToString(-1)
		code = strings.TrimSpace(code)
		return code, code != "", nil
	}
	return "", false, fmt.Errorf("categorize %s: result must be an account code or nil", tx.ID)
}

func pushTransaction(state *lua.State, tx banking.Transaction) {
	state.NewTable()
	setString := func(key, value string) {
		state.PushString(value)
		state.SetField(-2, key)
	}
	state.PushNumber(tx.Amount.InexactFloat64())
	state.SetField(-2, "amount")
	state.PushBoolean(tx.Incoming())
	state.SetField(-2, "incoming")
	setString("amount_text", money.FormatStored(tx.Amount))
	setString("currency", tx.Currency)
	setString("description", tx.Description)
	setString("counterparty_name", tx.CounterpartyName)
	setString("counterparty_iban", tx.CounterpartyIBAN)
	setString("booking_date", tx.BookingDate.Format("2006-01-02"))
}

func containsHelper(state *lua.State) int {
	text := lua.CheckString(state, 1)
	needle := lua.CheckString(state, 2)
	normalizedNeedle := strings.TrimSpace(banking.NormalizeText(needle))
	state.PushBoolean(normalizedNeedle != "" && strings.Contains(banking.NormalizeText(text), normalizedNeedle))
	return 1
}
