package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeadLetter_Resolve(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	dl := DeadLetter{DeliveryID: "d-1", AttemptCount: 4, DeadLetteredAt: now.Add(-time.Hour)}

	assert.False(t, dl.IsResolved)
	assert.Nil(t, dl.ResolvedAt)

	dl.Resolve("ops@example.com", "replayed after fixing mail relay", now)

	assert.True(t, dl.IsResolved)
	if assert.NotNil(t, dl.ResolvedAt) {
		assert.Equal(t, now, *dl.ResolvedAt)
	}
	assert.Equal(t, "ops@example.com", dl.ResolvedBy)
	assert.Equal(t, "replayed after fixing mail relay", dl.ResolutionNote)
}

func TestDeadLetter_GetAgeAndIsOld(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	dl := DeadLetter{DeadLetteredAt: now.Add(-2 * time.Hour)}

	assert.Equal(t, 2*time.Hour, dl.GetAge(now))
	assert.True(t, dl.IsOld(now, time.Hour))
	assert.False(t, dl.IsOld(now, 3*time.Hour))
}
