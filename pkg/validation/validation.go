package validation

import (
	"fmt"
	"regexp"
)

var (
	// RoomCodeRegex validates an already-normalized room code
	RoomCodeRegex = regexp.MustCompile(`^[0-9]{4}$`)

	// ClientIDRegex validates connection identity format
	ClientIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	digitRunRegex = regexp.MustCompile(`[0-9]+`)
)

// ExtractRoomCode reduces arbitrary input (pasted links, "room 1234", plain
// codes) to its last run of exactly 4 digits. Digit runs longer or shorter
// than 4 are ignored, so "12345" yields nothing while "call/0042?x=1" yields
// "0042".
func ExtractRoomCode(input string) (string, bool) {
	runs := digitRunRegex.FindAllString(input, -1)
	for i := len(runs) - 1; i >= 0; i-- {
		if len(runs[i]) == 4 {
			return runs[i], true
		}
	}
	return "", false
}

// ValidateRoomCode validates a normalized room code
func ValidateRoomCode(code string) error {
	if code == "" {
		return fmt.Errorf("room code is required")
	}
	if !RoomCodeRegex.MatchString(code) {
		return fmt.Errorf("room code must be exactly 4 digits")
	}
	return nil
}

// ValidateClientID validates a connection identity
func ValidateClientID(id string) error {
	if id == "" {
		return fmt.Errorf("client ID is required")
	}
	if len(id) > 64 {
		return fmt.Errorf("client ID is too long (max 64 characters)")
	}
	if !ClientIDRegex.MatchString(id) {
		return fmt.Errorf("client ID contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}
