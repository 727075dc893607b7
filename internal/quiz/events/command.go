package events

// CommandType identifies an inbound client event.
type CommandType string

const (
	CmdCreateRoom        CommandType = "createRoom"
	CmdJoinRoom          CommandType = "joinRoom"
	CmdRejoinRoom        CommandType = "rejoinRoom"
	CmdStartQuiz         CommandType = "startQuizManually"
	CmdSubmitAnswer      CommandType = "submitAnswer"
	CmdSendMessage       CommandType = "sendMessage"
	CmdLeavePreviousRoom CommandType = "leavePreviousRoom"
)

// Command is the single inbound frame shape. Fields beyond Type are
// populated per command; unused ones stay zero.
type Command struct {
	Type        CommandType `json:"type"`
	RoomID      string      `json:"roomId,omitempty"`
	Username    string      `json:"username,omitempty"`
	Answer      string      `json:"answer,omitempty"`
	TimeTakenMs int         `json:"timeTaken,omitempty"`
	Message     string      `json:"message,omitempty"`
}
