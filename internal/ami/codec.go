package ami

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
)

const endCommand = "--END COMMAND--"

var errBadBanner = errors.New("unexpected manager banner")

// Message is one Response or Event block read off the wire.
type Message struct {
	Headers map[string]string
	// Output holds command output, from either "Output:" headers or the
	// body of a legacy "Response: Follows" block.
	Output []string
}

// Get looks a header up case-insensitively.
func (m *Message) Get(key string) string {
	if v, ok := m.Headers[key]; ok {
		return v
	}
	for k, v := range m.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (m *Message) IsEvent() bool { return m.Get("Event") != "" }

func (m *Message) ActionID() string { return m.Get("ActionID") }

// Success reports whether a response block accepted its action.
func (m *Message) Success() bool {
	resp := m.Get("Response")
	return strings.EqualFold(resp, "Success") || strings.EqualFold(resp, "Follows")
}

func (m *Message) Text() string {
	return strings.Join(m.Output, "\n")
}

type header struct {
	key   string
	value string
}

func encodeAction(action, actionID string, fields ...header) []byte {
	var buf bytes.Buffer
	buf.WriteString("Action: ")
	buf.WriteString(action)
	buf.WriteString("\r\n")
	if actionID != "" {
		buf.WriteString("ActionID: ")
		buf.WriteString(actionID)
		buf.WriteString("\r\n")
	}
	for _, f := range fields {
		buf.WriteString(f.key)
		buf.WriteString(": ")
		// Values cannot span lines on this protocol.
		buf.WriteString(strings.NewReplacer("\r", " ", "\n", " ").Replace(f.value))
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	return buf.Bytes()
}

func readBanner(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if !strings.Contains(line, "Call Manager") {
		return line, errBadBanner
	}
	return line, nil
}

// legacyHeaders are the only keys that may precede the raw body of a
// "Response: Follows" block.
var legacyHeaders = map[string]bool{
	"response":  true,
	"privilege": true,
	"actionid":  true,
	"message":   true,
}

// readMessage reads one blank-line terminated block.
func readMessage(r *bufio.Reader) (*Message, error) {
	msg := &Message{Headers: make(map[string]string)}
	follows := false
	inBody := false

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")

		if inBody {
			if idx := strings.Index(line, endCommand); idx >= 0 {
				if rest := strings.TrimRight(line[:idx], " \r\n"); rest != "" {
					msg.Output = append(msg.Output, strings.Split(rest, "\n")...)
				}
				inBody = false
				follows = false
				continue
			}
			msg.Output = append(msg.Output, line)
			continue
		}

		if line == "" {
			if len(msg.Headers) == 0 && len(msg.Output) == 0 {
				continue
			}
			return msg, nil
		}

		key, value, ok := strings.Cut(line, ":")
		if follows && (!ok || !legacyHeaders[strings.ToLower(strings.TrimSpace(key))]) {
			inBody = true
			if strings.Contains(line, endCommand) {
				// Output and terminator on the same line.
				if rest := strings.TrimSpace(line[:strings.Index(line, endCommand)]); rest != "" {
					msg.Output = append(msg.Output, rest)
				}
				inBody = false
				follows = false
				continue
			}
			msg.Output = append(msg.Output, line)
			continue
		}
		if !ok {
			msg.Output = append(msg.Output, line)
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if strings.EqualFold(key, "Output") {
			msg.Output = append(msg.Output, value)
			continue
		}
		msg.Headers[key] = value
		if strings.EqualFold(key, "Response") && strings.EqualFold(value, "Follows") {
			follows = true
		}
	}
}
