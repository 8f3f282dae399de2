package model

const (
	MsgUnknownCode   = "Unknown code, try again"
	MsgAlreadyPaired = "Code already paired"
	MsgCodeHeld      = "You are already paired with another code"
	MsgTryAgain      = "Code could not be claimed right now, try again"
)

// MatchAttempt is the outcome of one reconciliation. It is never persisted.
type MatchAttempt struct {
	User       *User
	Code       *Code
	Pair       []User
	UserErrors []string
	CodeErrors []string
}

func (m *MatchAttempt) AddUserError(msg string) {
	m.UserErrors = append(m.UserErrors, msg)
}

func (m *MatchAttempt) AddCodeError(msg string) {
	m.CodeErrors = append(m.CodeErrors, msg)
}

func (m *MatchAttempt) Valid() bool {
	return m.Code != nil && len(m.CodeErrors) == 0 && len(m.UserErrors) == 0
}

// Messages lists user errors first, then the unknown-code message, then code errors.
func (m *MatchAttempt) Messages() []string {
	messages := make([]string, 0, len(m.UserErrors)+len(m.CodeErrors)+1)
	messages = append(messages, m.UserErrors...)
	if m.Code == nil {
		messages = append(messages, MsgUnknownCode)
	}
	messages = append(messages, m.CodeErrors...)
	return messages
}
