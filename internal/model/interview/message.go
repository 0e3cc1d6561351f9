package interview

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn of the interview transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ClosingCode maps an in-text marker emitted by the interviewer to the
// statement shown to the respondent instead of the raw output.
type ClosingCode struct {
	Code    string `json:"code" yaml:"code"`
	Message string `json:"message" yaml:"message"`
}
