package mongo

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/eventdesk/registration-system/internal/core/domain"
	"github.com/eventdesk/registration-system/internal/infrastructure/pii"
)

func TestDuplicateError(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"E11000 duplicate key error collection: registrations index: uniq_email_hash dup key", domain.ErrDuplicateEmail},
		{"E11000 duplicate key error collection: registrations index: uniq_idempotency_key dup key", domain.ErrIdempotencyKeyReused},
		{"E11000 duplicate key error collection: registrations index: uniq_ticket_number dup key", domain.ErrDuplicateTicket},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, duplicateError(errors.New(tt.msg)), tt.want, tt.msg)
	}
}

func TestRegistrationDoc_ToDomain(t *testing.T) {
	secret, err := pii.GenerateIdentity()
	require.NoError(t, err)
	cipher, err := pii.NewAgeCipher(secret)
	require.NoError(t, err)
	repo := &RegistrationRepository{cipher: cipher}

	first, err := cipher.Encrypt("Ana")
	require.NoError(t, err)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	doc := &registrationDoc{
		ID:               primitive.NewObjectID(),
		TicketNumber:     "3f2b8c1e-7a4d-4e1b-9c2a-5d6e7f809a1b",
		FirstName:        first,
		RegistrationType: "onsite",
		BadgeStatus:      "printed",
		TicketStatus:     "not_printed",
		Confirmed:        true,
		ConfirmedAt:      &at,
		Version:          3,
	}

	reg, err := repo.toDomain(doc)
	require.NoError(t, err)
	assert.Equal(t, "Ana", reg.FirstName)
	assert.Equal(t, domain.StatusPrinted, reg.BadgeStatus)
	assert.Equal(t, int64(3), reg.Version)
	require.NotNil(t, reg.ConfirmedAt)
	assert.True(t, reg.ConfirmedAt.Equal(at))

	doc.FirstName = "not-ciphertext"
	_, err = repo.toDomain(doc)
	assert.Error(t, err)
}
