package channel

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryDispatchesToSubscribers(t *testing.T) {
	r := NewRegistry()

	var got []string
	r.Subscribe("USE_DICE", func(payload json.RawMessage) {
		got = append(got, string(payload))
	})

	r.Dispatch("USE_DICE", json.RawMessage(`{"diceNum1":3}`))
	r.Dispatch("OTHER", json.RawMessage(`{}`))

	assert.Equal(t, []string{`{"diceNum1":3}`}, got)
}

func TestRegistryUnsubscribeRemovesOnlyThatHandler(t *testing.T) {
	r := NewRegistry()

	first, second := 0, 0
	unsub := r.Subscribe("TURN_CHANGE", func(json.RawMessage) { first++ })
	r.Subscribe("TURN_CHANGE", func(json.RawMessage) { second++ })

	r.Dispatch("TURN_CHANGE", nil)
	unsub()
	r.Dispatch("TURN_CHANGE", nil)

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
	assert.Equal(t, 1, r.HandlerCount("TURN_CHANGE"))
}

func TestRegistryUnsubscribeIsIdempotent(t *testing.T) {
	r := NewRegistry()
	unsub := r.Subscribe("GAME_END", func(json.RawMessage) {})

	unsub()
	unsub()

	assert.Equal(t, 0, r.HandlerCount("GAME_END"))
}

// Why: handlers subscribe and unsubscribe from inside dispatch callbacks; the
// registry must not hold its lock across handler calls.
func TestRegistryHandlerMayUnsubscribeDuringDispatch(t *testing.T) {
	r := NewRegistry()

	var unsub func()
	calls := 0
	unsub = r.Subscribe("ONE_SHOT", func(json.RawMessage) {
		calls++
		unsub()
	})

	r.Dispatch("ONE_SHOT", nil)
	r.Dispatch("ONE_SHOT", nil)

	assert.Equal(t, 1, calls)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsub := r.Subscribe("BUSY", func(json.RawMessage) {})
			unsub()
		}()
		go func() {
			defer wg.Done()
			r.Dispatch("BUSY", nil)
		}()
	}
	wg.Wait()
}
