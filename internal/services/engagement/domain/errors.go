package domain

import "errors"

var (
	// ErrStoreNotConfigured indicates the engine is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("engagement store is not configured")
	// ErrUserIDRequired indicates a user id is required.
	ErrUserIDRequired = errors.New("user id is required")
	// ErrUnknownAction indicates an action type outside the closed catalog.
	ErrUnknownAction = errors.New("unknown action type")
	// ErrUnknownMission indicates a mission id outside the configured catalog.
	ErrUnknownMission = errors.New("unknown mission")
	// ErrMissionNotJoined indicates no progress record exists for the mission.
	ErrMissionNotJoined = errors.New("mission not joined")
	// ErrConcurrencyConflict indicates a conditional update lost a race after
	// one internal retry.
	ErrConcurrencyConflict = errors.New("concurrent update conflict")
	// ErrInvalidConfig indicates the award configuration failed validation.
	ErrInvalidConfig = errors.New("invalid award configuration")
)
