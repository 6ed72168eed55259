package monitor

import (
	"strconv"
	"strings"
	"time"
)

// Connection is one parsed session from the status feed.
type Connection struct {
	ClientName     string     `json:"client_name"`
	RealAddress    string     `json:"real_address"`
	VirtualAddress string     `json:"virtual_address,omitempty"`
	BytesReceived  int64      `json:"bytes_received"`
	BytesSent      int64      `json:"bytes_sent"`
	ConnectedSince *time.Time `json:"connected_since,omitempty"`
}

// statusTimeLayout matches the timestamps OpenVPN writes into the
// status feed, e.g. "Thu Jun 18 04:23:14 2015".
const statusTimeLayout = "Mon Jan 2 15:04:05 2006"

// ParseStatus parses the status feed text. Two historical formats are
// accepted: the marker-bounded client list (version 1) and the older
// unmarked comma form. Malformed or truncated lines are skipped, never
// fatal.
func ParseStatus(content string) []Connection {
	if strings.Contains(content, "OpenVPN CLIENT LIST") {
		return parseMarked(content)
	}
	return parseUnmarked(content)
}

// parseMarked handles the feed bounded by the CLIENT LIST and ROUTING
// TABLE markers. The routing section supplies virtual addresses.
func parseMarked(content string) []Connection {
	var conns []Connection
	virtual := make(map[string]string)

	section := ""
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "OpenVPN CLIENT LIST":
			section = "clients"
			continue
		case line == "ROUTING TABLE":
			section = "routing"
			continue
		case line == "GLOBAL STATS" || line == "END":
			section = ""
			continue
		}
		if line == "" || section == "" {
			continue
		}

		fields := strings.Split(line, ",")
		switch section {
		case "clients":
			if conn, ok := parseClientLine(fields); ok {
				conns = append(conns, conn)
			}
		case "routing":
			// Virtual Address,Common Name,Real Address,Last Ref
			if len(fields) >= 2 && fields[0] != "Virtual Address" {
				virtual[fields[1]] = fields[0]
			}
		}
	}

	for i := range conns {
		conns[i].VirtualAddress = virtual[conns[i].ClientName]
	}
	return conns
}

// parseUnmarked handles the older format: bare comma records with no
// header or marker lines.
func parseUnmarked(content string) []Connection {
	var conns []Connection
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if conn, ok := parseClientLine(strings.Split(line, ",")); ok {
			conns = append(conns, conn)
		}
	}
	return conns
}

// parseClientLine parses one
// "Common Name,Real Address,Bytes Received,Bytes Sent,Connected Since"
// record. Header rows and short or non-numeric lines are rejected.
func parseClientLine(fields []string) (Connection, bool) {
	if len(fields) < 5 {
		return Connection{}, false
	}
	name := strings.TrimSpace(fields[0])
	if name == "" || name == "Common Name" || name == "Updated" {
		return Connection{}, false
	}

	rx, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
	if err != nil {
		return Connection{}, false
	}
	tx, err := strconv.ParseInt(strings.TrimSpace(fields[3]), 10, 64)
	if err != nil {
		return Connection{}, false
	}

	conn := Connection{
		ClientName:    name,
		RealAddress:   strings.TrimSpace(fields[1]),
		BytesReceived: rx,
		BytesSent:     tx,
	}
	if ts, err := time.Parse(statusTimeLayout, strings.TrimSpace(fields[4])); err == nil {
		conn.ConnectedSince = &ts
	}
	return conn, true
}
