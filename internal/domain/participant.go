package domain

// Participant is a remote member of the call as seen by event dispatch.
// No transport or decoder state here.
type Participant struct {
	User  UserID  `json:"user_id"`
	Level float64 `json:"level"`
}

// SpeakingLevels maps each currently speaking user to a level in [0, 1].
type SpeakingLevels map[UserID]float64
