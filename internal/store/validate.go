package store

import "fmt"

// MaxUserIDLength is the maximum allowed length for a chat identifier
// (jobs.chat_id), in bytes. The pgstore and sqlitestore schemas both
// declare that column as TEXT, so the bound is enforced here, not by the
// database.
const MaxUserIDLength = 255

// ValidateUserID guards CreateJob's chatID argument against a malformed
// TELEGRAM_CHAT_ID or other operator-configured value longer than
// MaxUserIDLength.
func ValidateUserID(id string) error {
	if len(id) > MaxUserIDLength {
		return fmt.Errorf("user identifier too long: %d chars (max %d)", len(id), MaxUserIDLength)
	}
	return nil
}
