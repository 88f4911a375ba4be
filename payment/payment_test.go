package payment_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/reckon/id"
	"github.com/xraph/reckon/payment"
	"github.com/xraph/reckon/types"
)

func TestVoid(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &payment.Payment{
		Entity:    types.NewEntity(now),
		ID:        id.NewPaymentID(),
		InvoiceID: id.NewInvoiceID(),
		Amount:    types.MustParse("500", "USD"),
		Status:    payment.StatusCompleted,
	}
	assert.True(t, p.Counts())

	assert.ErrorIs(t, p.Void("u1", "  ", now), types.ErrValidation)
	assert.Equal(t, payment.StatusCompleted, p.Status)

	require.NoError(t, p.Void("u1", "bounced", now.Add(time.Hour)))
	assert.Equal(t, payment.StatusVoid, p.Status)
	assert.Equal(t, "u1", p.VoidedBy)
	assert.Equal(t, "bounced", p.VoidReason)
	require.NotNil(t, p.VoidedAt)
	assert.False(t, p.Counts())

	err := p.Void("u2", "again", now)
	assert.ErrorIs(t, err, types.ErrConflict)
	assert.ErrorIs(t, err, types.ErrAlreadyVoided)
	assert.Equal(t, "u1", p.VoidedBy)
}

func TestClone(t *testing.T) {
	at := time.Now()
	p := &payment.Payment{Status: payment.StatusVoid, VoidedAt: &at}
	c := p.Clone()
	*c.VoidedAt = at.Add(time.Hour)
	assert.Equal(t, at, *p.VoidedAt)

	var nilPayment *payment.Payment
	assert.Nil(t, nilPayment.Clone())
}
