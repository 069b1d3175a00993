package service

import (
	"fmt"

	"innkeeper/internal/domain"
	"innkeeper/internal/models"
)

// FSM is the reservation lifecycle transition table.
type FSM struct {
	transitions map[models.ReservationStatus][]models.ReservationStatus
}

func NewFSM() *FSM {
	return &FSM{
		transitions: map[models.ReservationStatus][]models.ReservationStatus{
			models.ReservationBooked:     {models.ReservationOccupied, models.ReservationCancelled},
			models.ReservationOccupied:   {models.ReservationCheckedOut, models.ReservationCancelled},
			models.ReservationCheckedOut: {},
			models.ReservationCancelled:  {},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to models.ReservationStatus) bool {
	for _, s := range f.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Next lists the statuses reachable from s.
func (f *FSM) Next(s models.ReservationStatus) []models.ReservationStatus {
	return append([]models.ReservationStatus(nil), f.transitions[s]...)
}

// Resolve maps a requested target to a concrete status and checks the table.
// "available" means checkout from occupied and cancel from booked.
func (f *FSM) Resolve(from, target models.ReservationStatus) (models.ReservationStatus, error) {
	to := target
	if target == models.ReservationAvailable {
		switch from {
		case models.ReservationOccupied:
			to = models.ReservationCheckedOut
		case models.ReservationBooked:
			to = models.ReservationCancelled
		}
	}
	if !f.CanTransition(from, to) {
		return "", fmt.Errorf("%s -> %s: %w", from, target, domain.ErrInvalidTransition)
	}
	return to, nil
}
