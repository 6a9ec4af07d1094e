package mqtt

// Topic structure for CAD Core:
//
//	cadcore/system/status          — retained service online/offline status
//	cadcore/auth/registered        — account created and admitted
//	cadcore/auth/pending           — account created, awaiting whitelist approval
//	cadcore/auth/login             — successful login
//
// Event payloads are JSON and never carry credentials.

// topicPrefix is the root of all CAD Core topics.
const topicPrefix = "cadcore"

// Admission event kinds published under cadcore/auth/.
const (
	EventRegistered = "registered"
	EventPending    = "pending"
	EventLogin      = "login"
)

// Topics builds CAD Core topic strings. The zero value is ready to use.
type Topics struct{}

// SystemStatus returns the retained service status topic.
func (Topics) SystemStatus() string {
	return topicPrefix + "/system/status"
}

// AuthEvent returns the topic for an admission event kind.
func (Topics) AuthEvent(kind string) string {
	return topicPrefix + "/auth/" + kind
}
