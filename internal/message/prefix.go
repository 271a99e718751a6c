package message

import (
	"errors"
	"strings"
)

// ErrNoReplier is returned by Reply when the transport attached no reply capability
var ErrNoReplier = errors.New("message has no reply capability")

// Parse extracts prefix, command and arguments from the message body.
//
// Regular users must start the body with one of prefixes. Owners may also issue
// commands without a prefix, in which case the first word is the command.
func (m *Message) Parse(prefixes []string) {
	m.IsCommand = false
	m.Prefix, m.Command, m.Text = "", "", ""
	m.Args = nil

	body := m.Body
	if strings.TrimSpace(body) == "" {
		return
	}

	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(body, p) {
			m.Prefix = p
			m.IsCommand = true
			break
		}
	}

	if !m.IsCommand && !m.IsOwner {
		return
	}

	fields := strings.Fields(body[len(m.Prefix):])
	if len(fields) == 0 {
		// bare prefix, nothing to dispatch
		m.IsCommand = false
		return
	}
	m.IsCommand = true
	m.Command = strings.ToLower(fields[0])
	m.Args = fields[1:]
	m.Text = strings.Join(m.Args, " ")
}
