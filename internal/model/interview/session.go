package interview

import (
	"errors"
	"strings"
	"time"
)

// ErrMissingRespondent is returned when any respondent parameter is absent.
var ErrMissingRespondent = errors.New("missing required respondent information")

// State is the lifecycle stage of an interview session.
type State string

const (
	StateNotStarted State = "not_started"
	StateActive     State = "active"
	StateCompleted  State = "completed"
)

// Respondent carries the identifying parameters passed on session start.
type Respondent struct {
	StudentNumber string `json:"studentNumber"`
	Name          string `json:"name"`
	Company       string `json:"company"`
}

// Validate reports ErrMissingRespondent unless all three fields are set.
func (r Respondent) Validate() error {
	if strings.TrimSpace(r.StudentNumber) == "" || strings.TrimSpace(r.Name) == "" || strings.TrimSpace(r.Company) == "" {
		return ErrMissingRespondent
	}
	return nil
}

// Session captures one respondent's interview.
type Session struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	Respondent       Respondent `json:"respondent"`
	StartTime        time.Time  `json:"startTime"`
	Messages         []Message  `json:"-"`
	State            State      `json:"state"`
	TranscriptLink   string     `json:"transcriptLink,omitempty"`
	AlreadyCompleted bool       `json:"alreadyCompleted,omitempty"`
	// Notice is shown instead of a conversation, e.g. for an already completed respondent.
	Notice string `json:"notice,omitempty"`
}

// Append adds a message to the end of the history.
func (s *Session) Append(role Role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content})
}

// Visible returns the history without the persona prompt.
func (s *Session) Visible() []Message {
	out := make([]Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		if m.Role == RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Clone returns a deep copy safe to hand out of the session store.
func (s *Session) Clone() Session {
	c := *s
	c.Messages = append([]Message(nil), s.Messages...)
	return c
}

// StartStamp formats a session start time for backup file names.
func StartStamp(start time.Time) string {
	return start.Format("2006_01_02_15_04_05")
}

// View is the client-facing representation of a session.
type View struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	State            State     `json:"state"`
	StartTime        time.Time `json:"startTime"`
	Messages         []Message `json:"messages"`
	TranscriptLink   string    `json:"transcriptLink,omitempty"`
	AlreadyCompleted bool      `json:"alreadyCompleted,omitempty"`
	Notice           string    `json:"notice,omitempty"`
}

// View hides the persona prompt from the client.
func (s *Session) View() View {
	return View{
		ID:               s.ID,
		Username:         s.Username,
		State:            s.State,
		StartTime:        s.StartTime,
		Messages:         s.Visible(),
		TranscriptLink:   s.TranscriptLink,
		AlreadyCompleted: s.AlreadyCompleted,
		Notice:           s.Notice,
	}
}
