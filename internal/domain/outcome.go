package domain

import "strings"

// OutcomeKind is the business classification of a submission.
type OutcomeKind string

const (
	OutcomeWin                 OutcomeKind = "win"
	OutcomeIncorrect           OutcomeKind = "incorrect"
	OutcomeTooLate             OutcomeKind = "too_late"
	OutcomeAlreadySolved       OutcomeKind = "already_solved"
	OutcomeDuplicateAttempt    OutcomeKind = "duplicate_attempt"
	OutcomeWindowClosed        OutcomeKind = "window_closed"
	OutcomeRiddleNotFound      OutcomeKind = "riddle_not_found"
	OutcomeParticipantNotFound OutcomeKind = "participant_not_found"
)

// Outcome is returned for every submission; it is never an error.
type Outcome struct {
	Kind       OutcomeKind `json:"kind"`
	RiddleID   string      `json:"riddleId"`
	SolverID   string      `json:"solverId,omitempty"`
	SolverName string      `json:"solverName,omitempty"`
	Phase      WindowPhase `json:"phase,omitempty"`
	Message    string      `json:"message"`
}

// Success reports whether the submitter won the riddle.
func (o Outcome) Success() bool {
	return o.Kind == OutcomeWin
}

// NewOutcome builds an outcome with a user-facing message.
func NewOutcome(kind OutcomeKind, riddleID string) Outcome {
	o := Outcome{Kind: kind, RiddleID: riddleID}
	o.Message = o.describe()
	return o
}

func (o Outcome) describe() string {
	switch o.Kind {
	case OutcomeWin:
		return "Congratulations, you solved it first!"
	case OutcomeIncorrect:
		return "That's not it. Better luck on the next one!"
	case OutcomeTooLate:
		return "Right answer, but " + solverOrSomeone(o.SolverName) + " got there first."
	case OutcomeAlreadySolved:
		return "Too bad, this riddle was already solved by " + solverOrSomeone(o.SolverName) + "."
	case OutcomeDuplicateAttempt:
		return "You have already answered this riddle."
	case OutcomeWindowClosed:
		if o.Phase == PhaseNotStarted {
			return "The activity has not started yet."
		}
		return "The activity has ended."
	case OutcomeRiddleNotFound:
		return "Riddle not found."
	case OutcomeParticipantNotFound:
		return "Participant not found."
	}
	return ""
}

// WithSolver attaches solver identity and refreshes the message.
func (o Outcome) WithSolver(id, name string) Outcome {
	o.SolverID = id
	o.SolverName = name
	o.Message = o.describe()
	return o
}

// WithPhase attaches the window phase and refreshes the message.
func (o Outcome) WithPhase(p WindowPhase) Outcome {
	o.Phase = p
	o.Message = o.describe()
	return o
}

func solverOrSomeone(name string) string {
	if strings.TrimSpace(name) == "" {
		return "someone else"
	}
	return name
}
