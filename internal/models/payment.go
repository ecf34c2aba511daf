package models

import (
	"fmt"
	"strings"
	"time"
)

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "Pending"
	StatusConfirmed PaymentStatus = "Confirmed"
	StatusFailed    PaymentStatus = "Failed"
)

// ParseStatus maps a wire string onto the closed status set.
func ParseStatus(s string) (PaymentStatus, error) {
	switch strings.ToLower(s) {
	case "pending":
		return StatusPending, nil
	case "confirmed":
		return StatusConfirmed, nil
	case "failed":
		return StatusFailed, nil
	}
	return "", fmt.Errorf("unknown payment status %q", s)
}

// CanTransitionTo implements the one-directional state machine:
// Pending may move to Confirmed or Failed; both are terminal.
func (s PaymentStatus) CanTransitionTo(to PaymentStatus) bool {
	return s == StatusPending && (to == StatusConfirmed || to == StatusFailed)
}

// Terminal reports whether no further transition is permitted.
func (s PaymentStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

type PaymentRequest struct {
	ID             string        `json:"id"`
	Amount         uint64        `json:"amount"`
	Recipient      string        `json:"recipient"`
	Memo           string        `json:"memo,omitempty"`
	Status         PaymentStatus `json:"status"`
	Payer          string        `json:"payer"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`

	// Version counts mutations of this record. Writers doing a
	// read-modify-write must pass the version they read.
	Version uint64 `json:"version"`
}

type CreatePaymentInput struct {
	Amount    uint64 `json:"amount"`
	Recipient string `json:"recipient" binding:"required"`
	Memo      string `json:"memo"`
	Payer     string `json:"payer" binding:"required"`
}
