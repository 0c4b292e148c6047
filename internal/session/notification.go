package session

import "fmt"

// notificationMessage is the decoded form of a received NOTIFICATION,
// kept only for logging (spec ยง4.5: "NOTIFICATION processing. Log and
// tear down." — the core never sends one itself, per spec ยง6).
type notificationMessage struct {
	ErrorCode    uint8
	ErrorSubcode uint8
	Data         []byte
}

func decodeNotification(data []byte) (*notificationMessage, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("session: NOTIFICATION too short (%d bytes)", len(data))
	}
	return &notificationMessage{
		ErrorCode:    data[0],
		ErrorSubcode: data[1],
		Data:         data[2:],
	}, nil
}

// notificationErrorCodes names the RFC 4271 ยง4.5 top-level error codes,
// for log messages only.
var notificationErrorCodes = map[uint8]string{
	1: "Message Header Error",
	2: "OPEN Message Error",
	3: "UPDATE Message Error",
	4: "Hold Timer Expired",
	5: "Finite State Machine Error",
	6: "Cease",
}

func (n *notificationMessage) String() string {
	name, ok := notificationErrorCodes[n.ErrorCode]
	if !ok {
		name = "Unknown"
	}
	return fmt.Sprintf("%s (code=%d subcode=%d)", name, n.ErrorCode, n.ErrorSubcode)
}
