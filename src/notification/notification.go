package notification

import (
	"log"
	"strings"
)

const maxMessageLen = 200

// Notify shows a short non-blocking message to the user. Long texts are
// truncated.
func Notify(title, text string) {
	text = truncate(text, maxMessageLen)
	go func() {
		if err := showPopup(title, text); err != nil {
			log.Printf("Failed to show notification: %v", err)
		}
	}()
}

func truncate(text string, n int) string {
	text = strings.TrimSpace(text)
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}
