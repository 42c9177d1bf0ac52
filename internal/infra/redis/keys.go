package redis

const keyPrefix = "lantern:"

func riddleKey(riddleID string) string {
	return keyPrefix + "riddle:" + riddleID
}

// attemptsKey holds one field per participant: HSET lantern:attempts:{riddleID} {participantID} {attempt JSON}
func attemptsKey(riddleID string) string {
	return keyPrefix + "attempts:" + riddleID
}

// historyKey orders a participant's attempts by submission time.
func historyKey(participantID string) string {
	return historyPrefix + participantID
}

func participantCacheKey(participantID string) string {
	return keyPrefix + "cache:participant:" + participantID
}

const (
	historyPrefix   = keyPrefix + "history:"
	unsolvedKey     = keyPrefix + "riddles:unsolved"
	solvedKey       = keyPrefix + "solved"
	participantsKey = keyPrefix + "participants"
	codesKey        = keyPrefix + "participant_codes"
	windowKey       = keyPrefix + "window"
)
