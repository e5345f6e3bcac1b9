package domain

import "strings"

// ICEServer describes one STUN or TURN endpoint in standard webrtc
// configuration form. TURN entries carry short-lived credentials.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// IsTURN reports whether any of the server's URLs is a relay endpoint.
func (s ICEServer) IsTURN() bool {
	for _, u := range s.URLs {
		if strings.HasPrefix(u, "turn:") || strings.HasPrefix(u, "turns:") {
			return true
		}
	}
	return false
}
