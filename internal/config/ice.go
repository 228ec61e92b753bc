package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

const (
	envICEServersJSON = "PEERCALL_ICE_SERVERS_JSON"

	envStunURLs       = "PEERCALL_STUN_URLS"
	envTurnURLs       = "PEERCALL_TURN_URLS"
	envTurnUsername   = "PEERCALL_TURN_USERNAME"
	envTurnCredential = "PEERCALL_TURN_CREDENTIAL"
)

// DefaultICEServers is used when nothing is configured: a public STUN server,
// so direct paths through NAT can still be found.
var DefaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

// parseICEServersFromValues prefers the JSON form over the convenience values.
func parseICEServersFromValues(iceServersJSON, stunURLs, turnURLs, turnUsername, turnCredential string) ([]webrtc.ICEServer, error) {
	if raw := strings.TrimSpace(iceServersJSON); raw != "" {
		servers, err := ParseICEServersJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envICEServersJSON, err)
		}
		return servers, nil
	}

	servers, err := ParseICEServers(stunURLs, turnURLs, turnUsername, turnCredential)
	if err != nil {
		return nil, err
	}
	if len(servers) == 0 {
		return append([]webrtc.ICEServer(nil), DefaultICEServers...), nil
	}
	return servers, nil
}

type iceServerJSON struct {
	URLs       stringOrSlice `json:"urls"`
	Username   string        `json:"username,omitempty"`
	Credential string        `json:"credential,omitempty"`
}

// stringOrSlice accepts "urls": "stun:..." as well as a list, like browsers do.
type stringOrSlice []string

func (s *stringOrSlice) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*s = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// ParseICEServersJSON parses an RTCIceServer list.
func ParseICEServersJSON(raw string) ([]webrtc.ICEServer, error) {
	var entries []iceServerJSON
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}

	out := make([]webrtc.ICEServer, 0, len(entries))
	for i, entry := range entries {
		server := webrtc.ICEServer{
			URLs:     splitURLs(entry.URLs),
			Username: strings.TrimSpace(entry.Username),
		}
		if strings.TrimSpace(entry.Credential) != "" {
			server.Credential = entry.Credential
		}
		if err := validateICEServer(server); err != nil {
			return nil, fmt.Errorf("iceServers[%d]: %w", i, err)
		}
		out = append(out, server)
	}
	return out, nil
}

// ParseICEServers builds servers from comma-separated STUN and TURN lists.
func ParseICEServers(stunURLs, turnURLs, turnUsername, turnCredential string) ([]webrtc.ICEServer, error) {
	var servers []webrtc.ICEServer
	if stun := splitURLs(strings.Split(stunURLs, ",")); len(stun) > 0 {
		server := webrtc.ICEServer{URLs: stun}
		if err := validateICEServer(server); err != nil {
			return nil, fmt.Errorf("%s: %w", envStunURLs, err)
		}
		servers = append(servers, server)
	}

	if turn := splitURLs(strings.Split(turnURLs, ",")); len(turn) > 0 {
		turnUsername = strings.TrimSpace(turnUsername)
		turnCredential = strings.TrimSpace(turnCredential)
		if turnUsername == "" || turnCredential == "" {
			return nil, fmt.Errorf("%s/%s: both must be set when %s is set", envTurnUsername, envTurnCredential, envTurnURLs)
		}
		server := webrtc.ICEServer{
			URLs:       turn,
			Username:   turnUsername,
			Credential: turnCredential,
		}
		if err := validateICEServer(server); err != nil {
			return nil, fmt.Errorf("%s: %w", envTurnURLs, err)
		}
		servers = append(servers, server)
	}
	return servers, nil
}

func splitURLs(in []string) []string {
	var out []string
	for _, u := range in {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

func validateICEServer(server webrtc.ICEServer) error {
	if len(server.URLs) == 0 {
		return errors.New("missing urls")
	}

	needsCreds := false
	for _, u := range server.URLs {
		switch {
		case strings.HasPrefix(u, "stun:"), strings.HasPrefix(u, "stuns:"):
		case strings.HasPrefix(u, "turn:"), strings.HasPrefix(u, "turns:"):
			needsCreds = true
		default:
			return fmt.Errorf("unsupported url scheme: %q", u)
		}
	}

	if needsCreds {
		if server.Username == "" {
			return errors.New("turn urls require username")
		}
		cred, ok := server.Credential.(string)
		if !ok || strings.TrimSpace(cred) == "" {
			return errors.New("turn urls require credential")
		}
	}
	return nil
}
