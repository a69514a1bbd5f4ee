package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hengadev/clinicvault/internal/cverr"
	"github.com/hengadev/clinicvault/internal/store"
)

func TestApproveDelete(t *testing.T) {
	bare := &store.AppointmentRow{ID: "A1"}
	assert.True(t, CheckDeletable(bare))
	assert.NoError(t, ApproveDelete(bare))

	diagnosed := &store.AppointmentRow{ID: "A2", DiagnosisCipher: "abc"}
	assert.False(t, CheckDeletable(diagnosed))
	err := ApproveDelete(diagnosed)
	assert.ErrorIs(t, err, cverr.ErrSecurityViolation)
	assert.Contains(t, err.Error(), "A2")
}
