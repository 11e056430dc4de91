package validation

import (
	"fmt"
	"regexp"
)

// IDPattern defines the accepted format for room and client ids.
// Letters, digits, underscore and hyphen; the hyphen admits UUIDs, the
// usual client id choice. Length 1-100, matching the storage column width.
var IDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,100}$`)

// MaxIDLen is the maximum length of a room or client id
const MaxIDLen = 100

// ValidateRoomID checks that a room id is usable as a storage key
func ValidateRoomID(roomID string) error {
	if roomID == "" {
		return fmt.Errorf("room id cannot be empty")
	}

	if len(roomID) > MaxIDLen {
		return fmt.Errorf("room id must not exceed %d characters", MaxIDLen)
	}

	if !IDPattern.MatchString(roomID) {
		return fmt.Errorf("room id can only contain letters, numbers, underscores and hyphens")
	}

	return nil
}

// ValidateClientID checks that a client id is usable as a storage key
func ValidateClientID(clientID string) error {
	if clientID == "" {
		return fmt.Errorf("client id cannot be empty")
	}

	if len(clientID) > MaxIDLen {
		return fmt.Errorf("client id must not exceed %d characters", MaxIDLen)
	}

	if !IDPattern.MatchString(clientID) {
		return fmt.Errorf("client id can only contain letters, numbers, underscores and hyphens")
	}

	return nil
}
