package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sact-io/sact/address"
)

func TestPromiseCompleteOnce(t *testing.T) {
	p := NewPromise()
	p.Complete(nil)
	p.Complete(assert.AnError) // second completion must be ignored, not block
	assert.NoError(t, p.Wait())
}

func TestPromiseWaitOnNilIsNoop(t *testing.T) {
	var p *Promise
	assert.NoError(t, p.Wait())
	p.Complete(assert.AnError) // must not panic
}

func TestUnderlyingMessageUser(t *testing.T) {
	env := NewUserEnvelope([]byte("payload"), address.Address{}, nil)
	assert.Equal(t, []byte("payload"), env.UnderlyingMessage())
}

func TestUnderlyingMessageSystem(t *testing.T) {
	msg := Watch(address.Address{}, address.Address{})
	env := NewSystemEnvelope(msg, address.Address{})
	assert.Equal(t, msg, env.UnderlyingMessage())
}

func TestCompleteResolvesPromise(t *testing.T) {
	p := NewPromise()
	env := NewUserEnvelope(nil, address.Address{}, p)
	env.Complete(assert.AnError)
	assert.ErrorIs(t, p.Wait(), assert.AnError)
}

func TestWatchAndTerminatedConstructors(t *testing.T) {
	watchee := address.NewLocal([]string{"user", "a"}, 1)
	watcher := address.NewLocal([]string{"user", "b"}, 2)
	w := Watch(watchee, watcher)
	assert.Equal(t, SystemWatch, w.Type)
	assert.True(t, w.Watchee.Equal(watchee))
	assert.True(t, w.Watcher.Equal(watcher))

	term := Terminated(watchee, true, false)
	assert.Equal(t, SystemTerminated, term.Type)
	assert.True(t, term.ExistenceConfirmed)
	assert.False(t, term.AddressTerminated)
}
