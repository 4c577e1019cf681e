package server

import (
	"fmt"
	"strings"

	"github.com/orderdesk/remindbot/internal/reminders"
)

// pageCharacterLimit leaves headroom under the chat platform's 2000
// character message cap.
const pageCharacterLimit = 1900

// renderActive formats one active reminder for chat display.
func renderActive(normalizer *reminders.Normalizer, reminder reminders.Reminder) string {
	return fmt.Sprintf("ID: %d\nMessage: %s\nTime: %s\nUser: %s\nChannel: %s\n\n",
		reminder.ID,
		reminder.Message,
		normalizer.FormatLocal(reminder.Due()),
		reminder.RequesterName,
		reminder.ChannelName)
}

// renderArchived formats one delivered reminder for chat display.
func renderArchived(normalizer *reminders.Normalizer, reminder reminders.ArchivedReminder) string {
	return fmt.Sprintf("ID: %d\nMessage: %s\nTime: %s\nUser: %s\nChannel: %s\n\n",
		reminder.ID,
		reminder.Message,
		normalizer.FormatLocal(reminder.Due()),
		reminder.RequesterName,
		reminder.ChannelName)
}

// paginate packs rendered entries into pages that fit the chat limit. An
// entry longer than the limit still gets a page of its own.
func paginate(entries []string) []string {
	pages := []string{}
	var current strings.Builder
	for _, entry := range entries {
		if current.Len() > 0 && current.Len()+len(entry) > pageCharacterLimit {
			pages = append(pages, current.String())
			current.Reset()
		}
		current.WriteString(entry)
	}
	if current.Len() > 0 {
		pages = append(pages, current.String())
	}
	return pages
}
