package flow

import "errors"

// ErrInvalidCourse marks a course answer outside the configured enumeration.
var ErrInvalidCourse = errors.New("flow: invalid course selection")

// State identifies a step of the intake conversation.
type State string

const (
	// StateIdle is the initial, menu-driven state.
	StateIdle State = "idle"
	// StateCollectingName waits for the student's name.
	StateCollectingName State = "collecting_name"
	// StateCollectingAge waits for the student's age.
	StateCollectingAge State = "collecting_age"
	// StateCollectingCourse waits for a course from the enumeration.
	StateCollectingCourse State = "collecting_course"
	// StateCollectingPhone waits for a contact phone.
	StateCollectingPhone State = "collecting_phone"
)

// Kind classifies inbound events.
type Kind string

const (
	KindCommand  Kind = "command"
	KindCallback Kind = "callback"
	KindText     Kind = "text"
	// KindOther covers stickers, photos and anything else without text.
	KindOther Kind = "other"
)

// Field names stored in Session.Fields.
const (
	FieldName   = "name"
	FieldAge    = "age"
	FieldCourse = "course"
	FieldPhone  = "phone"
)

// Event is one inbound update from a user.
type Event struct {
	UserID  int64
	Kind    Kind
	Payload string
}

// Session is the conversation state of a single user.
type Session struct {
	UserID   int64
	State    State
	Language string
	Fields   map[string]string
}

// NewSession returns a fresh idle session with no language and no fields.
func NewSession(userID int64) Session {
	return Session{
		UserID: userID,
		State:  StateIdle,
		Fields: map[string]string{},
	}
}

// Clone returns a deep copy so callers never share the Fields map.
func (s Session) Clone() Session {
	out := s
	out.Fields = make(map[string]string, len(s.Fields))
	for k, v := range s.Fields {
		out.Fields[k] = v
	}
	return out
}

// Option is a selectable choice attached to a reply. Options with Data are
// rendered as inline buttons; options without Data become reply keyboard buttons.
type Option struct {
	Label string
	Data  string
}

// Reply is one outbound message addressed to a user.
type Reply struct {
	UserID  int64
	Text    string
	Options []Option
	// ClearOptions asks the transport to hide a previously shown keyboard.
	ClearOptions bool
}

// Submission is a completed intake produced by the state machine.
type Submission struct {
	UserID   int64
	Name     string
	Age      string
	Course   string
	Phone    string
	Language string
}

// Result is the outcome of one transition.
type Result struct {
	Next       Session
	Replies    []Reply
	Submission *Submission
	// Reason is set when the event was rejected but the conversation can continue,
	// e.g. ErrInvalidCourse or catalog.ErrUnknownLanguage.
	Reason error
}
