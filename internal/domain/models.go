package domain

import "time"

// Riddle is a question with a single accepted answer and a solved flag.
// Solved and SolverID always change together.
type Riddle struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Remark    string    `json:"remark,omitempty"`
	Options   []string  `json:"options,omitempty"`
	Answer    string    `json:"-"`
	Solved    bool      `json:"solved"`
	SolverID  string    `json:"solverId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Participant is a registered player.
type Participant struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"displayName"`
	Avatar       string    `json:"avatar,omitempty"`
	Code         string    `json:"code"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Attempt is the single submission a participant may make against a riddle.
// Correct is true only for the winning attempt; Late marks a matching answer
// that arrived after someone else had already claimed the riddle.
type Attempt struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participantId"`
	RiddleID      string    `json:"riddleId"`
	Correct       bool      `json:"correct"`
	Late          bool      `json:"late"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// Submission is the validated input handed to the engine by transports.
type Submission struct {
	ParticipantID string    `json:"participantId" validate:"required,max=64"`
	RiddleID      string    `json:"riddleId" validate:"required,max=64"`
	Answer        string    `json:"answer" validate:"required,max=256"`
	At            time.Time `json:"-"`
}

// Claim is the result of the atomic transition-and-record unit.
type Claim struct {
	Won      bool
	SolverID string
	Attempt  Attempt
}

// RiddleState is the read model for rendering and polling.
type RiddleState struct {
	RiddleID     string `json:"riddleId"`
	Question     string `json:"question"`
	Solved       bool   `json:"solved"`
	SolverID     string `json:"solverId,omitempty"`
	SolverName   string `json:"solverName,omitempty"`
	SolverAvatar string `json:"solverAvatar,omitempty"`
}

// WinnerEvent is fanned out to observers when a riddle transitions to solved.
type WinnerEvent struct {
	RiddleID     string    `json:"riddleId"`
	SolverID     string    `json:"solverId"`
	SolverName   string    `json:"solverName"`
	SolverAvatar string    `json:"solverAvatar,omitempty"`
	SolvedAt     time.Time `json:"solvedAt"`
}

// Record is an attempt joined with display data for projections.
type Record struct {
	AttemptID      string    `json:"attemptId"`
	ParticipantID  string    `json:"participantId"`
	DisplayName    string    `json:"displayName"`
	RiddleID       string    `json:"riddleId"`
	RiddleQuestion string    `json:"riddleQuestion"`
	Correct        bool      `json:"correct"`
	Late           bool      `json:"late"`
	SubmittedAt    time.Time `json:"submittedAt"`
}

// RecordQuery pages over solved records, optionally filtered by name.
type RecordQuery struct {
	Page     int
	PageSize int
	Keyword  string
}

// Normalize clamps paging parameters to sane defaults.
func (q RecordQuery) Normalize() RecordQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 10
	}
	if q.PageSize > 100 {
		q.PageSize = 100
	}
	return q
}

// Offset is the number of rows to skip for the current page.
func (q RecordQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// RecordPage is one page of the leaderboard projection.
type RecordPage struct {
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	TotalPages int      `json:"totalPages"`
	List       []Record `json:"list"`
}

// NewRecordPage computes page totals for a query.
func NewRecordPage(q RecordQuery, total int, list []Record) RecordPage {
	pages := 0
	if q.PageSize > 0 {
		pages = (total + q.PageSize - 1) / q.PageSize
	}
	if list == nil {
		list = []Record{}
	}
	return RecordPage{Total: total, Page: q.Page, TotalPages: pages, List: list}
}

// UnsolvedQuery pages over riddles still open for answers.
type UnsolvedQuery struct {
	Page       int
	PageSize   int
	ExcludeIDs []string
}

// Normalize clamps paging parameters; the feed defaults to one riddle per page.
func (q UnsolvedQuery) Normalize() UnsolvedQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 1
	}
	if q.PageSize > 100 {
		q.PageSize = 100
	}
	return q
}
