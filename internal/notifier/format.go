package notifier

import (
	"fmt"

	"botmon/internal/presence"
	"botmon/internal/transport"
)

// PlaceholderName stands in when the subject's name cannot be looked up.
const PlaceholderName = "Placeholder Name"

// Render produces the DM text for a transition. ok is false for classes that
// never produce a message.
func Render(c presence.Class, watcherID, subjectID, subjectName string) (text string, ok bool) {
	if subjectName == "" {
		subjectName = PlaceholderName
	}
	switch c {
	case presence.WentOffline:
		return fmt.Sprintf("Hello, %s Your bot named '%s': %s has gone offline!",
			transport.Mention(watcherID), subjectName, transport.Mention(subjectID)), true
	case presence.CameOnline:
		return fmt.Sprintf("Hurray! %s, your bot '%s': %s is back online!",
			transport.Mention(watcherID), subjectName, transport.Mention(subjectID)), true
	default:
		return "", false
	}
}
