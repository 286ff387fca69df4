// Package replies builds and resolves the forward marker that lets an
// operator answer a relayed message by replying to it. Each forwarded user
// message carries an "ID: <user id>" line; when the operator replies, the
// marker in the quoted text identifies the origin user even if the dispatch
// record has been pruned.
package replies

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoMarker is returned when the quoted text carries no readable marker.
var ErrNoMarker = errors.New("no forward marker")

var markerRe = regexp.MustCompile(`ID:\s*(\d+)`)

// BuildForward formats a user message for the operator chat. The marker goes
// on the first line so truncated previews still show it.
func BuildForward(userID int64, firstName, username, agentName, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ID: %d\n", userID)
	fmt.Fprintf(&b, "To %s from %s", agentName, displayName(firstName, username))
	b.WriteString("\n\n")
	b.WriteString(text)
	return b.String()
}

func displayName(firstName, username string) string {
	switch {
	case firstName != "" && username != "":
		return fmt.Sprintf("%s (@%s)", firstName, username)
	case username != "":
		return "@" + username
	case firstName != "":
		return firstName
	default:
		return "unknown"
	}
}

// ParseForwardUserID extracts the origin user ID from the quoted forward
// text. The first marker wins, so user-authored "ID:" strings later in the
// body cannot redirect a reply.
func ParseForwardUserID(quoted string) (int64, error) {
	m := markerRe.FindStringSubmatch(quoted)
	if m == nil {
		return 0, ErrNoMarker
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoMarker, err)
	}
	if id <= 0 {
		return 0, ErrNoMarker
	}
	return id, nil
}
