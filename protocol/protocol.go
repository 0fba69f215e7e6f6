package protocol

import (
	"errors"
	"strings"
	"time"

	"chatrelay/models"
)

// Client commands.
const (
	TypeDirectText  = "MSG"
	TypeDirectFile  = "FILE"
	TypeGroupText   = "GROUP_MSG"
	TypeGroupFile   = "GROUP_FILE"
	TypeCreateGroup = "CREATE_GROUP"
	TypeLeaveGroup  = "LEAVE_GROUP"
	TypeUpdateGroup = "UPDATE_GROUP"
	TypeAddToGroup  = "ADD_TO_GROUP"
	TypeGroupInfo   = "GROUP_INFO"
	TypeAck         = "ACK"
)

// Server notifications.
const (
	NoticeGroupCreated = "GROUP_CREATED"
	NoticeGroupUpdate  = "GROUP_UPDATE"
	NoticeGroupInfo    = "GROUP_INFO"
	NoticeShutdown     = "SERVER_SHUTDOWN"
)

// GROUP_UPDATE events.
const (
	EventNameChanged = "NAME_CHANGED"
	EventMemberLeft  = "MEMBER_LEFT"
	EventUserAdded   = "USER_ADDED"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrTooFewFields   = errors.New("too few fields")
	ErrNotMessage     = errors.New("not a message command")
)

// splitCounts maps each command to its total part count, type included.
// Lines are split with strings.SplitN so the trailing field (content or
// base64 data) may itself contain '|'.
var splitCounts = map[string]int{
	TypeDirectText:  5,
	TypeDirectFile:  6,
	TypeGroupText:   5,
	TypeGroupFile:   6,
	TypeCreateGroup: 4,
	TypeLeaveGroup:  3,
	TypeUpdateGroup: 4,
	TypeAddToGroup:  4,
	TypeGroupInfo:   2,
	TypeAck:         3,
}

// Command is one parsed protocol line. Raw keeps the original line without
// the trailing newline, so the router can forward it verbatim.
type Command struct {
	Type string
	Args []string
	Raw  string
}

// Parse splits a single protocol line into its command and arguments.
// The line may still carry its newline terminator.
func Parse(line string) (*Command, error) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	typ, _, _ := strings.Cut(line, "|")
	count, ok := splitCounts[typ]
	if !ok {
		return nil, ErrUnknownCommand
	}

	parts := strings.SplitN(line, "|", count)
	if len(parts) < count {
		return nil, ErrTooFewFields
	}

	return &Command{
		Type: typ,
		Args: parts[1:],
		Raw:  line,
	}, nil
}

// Envelope builds the message envelope for the four message-bearing
// commands. Other commands return ErrNotMessage.
func (c *Command) Envelope() (*models.Envelope, error) {
	env := &models.Envelope{
		Status:    models.StatusPending,
		Timestamp: time.Now().UTC(),
	}

	switch c.Type {
	case TypeDirectText:
		env.Kind = models.KindDirectText
		env.ID, env.Sender, env.Recipient, env.Content = c.Args[0], c.Args[1], c.Args[2], c.Args[3]
	case TypeDirectFile:
		env.Kind = models.KindDirectFile
		env.ID, env.Sender, env.Recipient, env.Filename, env.Content = c.Args[0], c.Args[1], c.Args[2], c.Args[3], c.Args[4]
	case TypeGroupText:
		env.Kind = models.KindGroupText
		env.ID, env.Sender, env.Recipient, env.Content = c.Args[0], c.Args[1], c.Args[2], c.Args[3]
	case TypeGroupFile:
		env.Kind = models.KindGroupFile
		env.ID, env.Sender, env.Recipient, env.Filename, env.Content = c.Args[0], c.Args[1], c.Args[2], c.Args[3], c.Args[4]
	default:
		return nil, ErrNotMessage
	}

	return env, nil
}

// Ack formats an acknowledgement line correlated to a message id.
func Ack(msgID string, status models.Status) string {
	return TypeAck + "|" + msgID + "|" + string(status)
}

// GroupCreated formats the notice pushed to members of a new group and to a
// reconnecting user for each group it already belongs to.
func GroupCreated(name string, members []string) string {
	return NoticeGroupCreated + "|" + name + "|" + strings.Join(members, ",")
}

// GroupUpdate formats a membership change notice.
func GroupUpdate(name, event, arg string) string {
	return NoticeGroupUpdate + "|" + name + "|" + event + "|" + arg
}

// GroupInfo formats the reply to a GROUP_INFO request.
func GroupInfo(name string, members []string) string {
	return NoticeGroupInfo + "|" + name + "|" + strings.Join(members, ",")
}

// Shutdown formats the notice sent to every client before the server stops.
func Shutdown(reason string) string {
	return NoticeShutdown + "|" + reason
}

// SplitMembers parses a comma-separated member list, dropping empty entries.
func SplitMembers(s string) []string {
	var members []string
	for _, m := range strings.Split(s, ",") {
		if m = strings.TrimSpace(m); m != "" {
			members = append(members, m)
		}
	}
	return members
}
