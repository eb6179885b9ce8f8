package journal

import (
	"fmt"
	"sort"
	"strings"
)

var templates = map[string]string{
	TypeSessionOpened:     "Session {session_id} opened.",
	TypeSessionClosed:     "Session {session_id} closed.",
	TypeEntrantRegistered: "Patient #{entrant_id}: {name} registered in {department} with {priority} priority.",
	TypeEntrantDispatched: "Attending patient #{entrant_id}: {name} ({department}, {priority}).",
	TypeClientAdded:       "Client {client_name} added to the waitlist.",
	TypeClientSeated:      "Calling {client_name} for a table of {table_size}.",
	TypeClientCancelled:   "Reservation for {client_name} cancelled.",
	TypeTableFreed:        "Table for {table_size} freed.",
}

// Render fills the template of eventType with payload values. Unknown
// placeholders are left as they are.
func Render(eventType string, payload map[string]interface{}) string {
	template, ok := templates[eventType]
	if !ok {
		return ""
	}
	return renderTemplate(template, payload)
}

func renderTemplate(template string, payload map[string]interface{}) string {
	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys)*2)
	for _, key := range keys {
		pairs = append(pairs, "{"+key+"}", str(payload[key]))
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

func str(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
