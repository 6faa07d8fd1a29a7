package keypool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{StateUnvalidated, StateValidating, true},
		{StateValidating, StateValid, true},
		{StateValidating, StateInvalid, true},
		{StateValid, StateInvalid, true},
		{StateUnvalidated, StateValid, false},
		{StateUnvalidated, StateInvalid, false},
		{StateValid, StateUnvalidated, false},
		{StateInvalid, StateValid, false},
		{StateInvalid, StateValidating, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.ok, canTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTransition_IllegalReturnsError(t *testing.T) {
	cred := &Credential{State: StateInvalid}
	err := cred.transition(StateValid)
	assert.Error(t, err)
	assert.Equal(t, StateInvalid, cred.State)
}

func TestTransition_SameStateIsNoop(t *testing.T) {
	cred := &Credential{State: StateValid}
	assert.NoError(t, cred.transition(StateValid))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "AIza…wxyz", MaskSecret("AIzaSyD-1234567890-wxyz"))
	assert.Equal(t, "****", MaskSecret("short"))
	assert.Equal(t, "****", MaskSecret(""))
}
