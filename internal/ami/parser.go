package ami

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
)

type Peer struct {
	Endpoint  string `json:"endpoint"`
	Transport string `json:"transport"`
	State     string `json:"state"`
	Contact   string `json:"contact"`
}

type QueueMember struct {
	Interface string `json:"interface"`
	Status    string `json:"status"`
}

type QueueStatus struct {
	Name    string        `json:"name"`
	Callers int           `json:"callers"`
	Max     int           `json:"max"`
	Members []QueueMember `json:"members"`
}

// Parser turns CLI command output into records. Implementations are best
// effort: lines they do not understand are skipped.
type Parser interface {
	ParsePeers(output string) []Peer
	ParseQueues(output string) []QueueStatus
	ParseChannelCount(output string) int
}

var (
	queueHeaderRe  = regexp.MustCompile(`(\S+)\s+has\s+(\d+)\s+callers.*?\((\d+)\s+max\)`)
	queueMemberRe  = regexp.MustCompile(`(SIP\/\S+)\s+\((\S+)\)`)
	channelCountRe = regexp.MustCompile(`(\d+)\s+active channel`)
)

// TextParser reads the human-readable output of the Asterisk CLI.
type TextParser struct{}

// ParsePeers reads "pjsip show endpoints".
func (TextParser) ParsePeers(output string) []Peer {
	peers := []Peer{}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "/") || strings.Contains(line, "Endpoint") || strings.Contains(line, "===") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 3 {
			continue
		}

		contact := strings.Join(parts[3:], " ")
		if contact == "" {
			contact = "N/A"
		}
		peers = append(peers, Peer{
			Endpoint:  parts[0],
			Transport: parts[1],
			State:     parts[2],
			Contact:   contact,
		})
	}

	return peers
}

// ParseQueues reads "queue show".
func (TextParser) ParseQueues(output string) []QueueStatus {
	queues := []QueueStatus{}
	var current *QueueStatus

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()

		if strings.Contains(line, "has") && (strings.Contains(line, "callers") || strings.Contains(line, "members")) {
			if m := queueHeaderRe.FindStringSubmatch(line); m != nil {
				if current != nil {
					queues = append(queues, *current)
				}
				callers, _ := strconv.Atoi(m[2])
				limit, _ := strconv.Atoi(m[3])
				current = &QueueStatus{
					Name:    m[1],
					Callers: callers,
					Max:     limit,
					Members: []QueueMember{},
				}
			}
			continue
		}

		if current != nil && strings.Contains(line, "SIP/") {
			if m := queueMemberRe.FindStringSubmatch(line); m != nil {
				current.Members = append(current.Members, QueueMember{Interface: m[1], Status: m[2]})
			}
		}
	}

	if current != nil {
		queues = append(queues, *current)
	}

	return queues
}

// ParseChannelCount reads the summary line of "core show channels".
func (TextParser) ParseChannelCount(output string) int {
	m := channelCountRe.FindStringSubmatch(output)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}
