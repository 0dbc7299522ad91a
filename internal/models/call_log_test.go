package models_test

import (
	"testing"

	"chatcall/backend/internal/models"

	"github.com/stretchr/testify/assert"
)

// TestCallStatus_Transitions walks the full transition table.
func TestCallStatus_Transitions(t *testing.T) {
	all := []models.CallStatus{
		models.CallInitiated, models.CallOngoing,
		models.CallCompleted, models.CallMissed, models.CallDeclined,
	}
	allowed := map[models.CallStatus][]models.CallStatus{
		models.CallInitiated: {models.CallInitiated, models.CallOngoing, models.CallCompleted, models.CallMissed, models.CallDeclined},
		models.CallOngoing:   {models.CallOngoing, models.CallCompleted, models.CallMissed, models.CallDeclined},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, ok := range allowed[from] {
				if ok == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestCallStatus_Classification(t *testing.T) {
	assert.True(t, models.CallInitiated.IsInitial())
	assert.True(t, models.CallOngoing.IsInitial())
	assert.False(t, models.CallMissed.IsInitial())

	for _, s := range []models.CallStatus{models.CallCompleted, models.CallMissed, models.CallDeclined} {
		assert.True(t, s.IsTerminal(), s)
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, models.CallStatus("ringing").Valid())
	assert.False(t, models.CallStatus("ringing").CanTransitionTo(models.CallOngoing))
	assert.False(t, models.CallInitiated.CanTransitionTo("ringing"))
}
