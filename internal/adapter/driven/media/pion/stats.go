package pion

import (
	"github.com/Wyydra/peercall/internal/core/domain"
	"github.com/pion/webrtc/v4"
)

// ClassifyConnection inspects the selected candidate pair. A relay candidate on
// either end means media goes through TURN.
func ClassifyConnection(report webrtc.StatsReport) domain.ConnectionKind {
	candidates := make(map[string]webrtc.ICECandidateStats)
	var pairs []webrtc.ICECandidatePairStats
	for _, s := range report {
		switch st := s.(type) {
		case webrtc.ICECandidateStats:
			candidates[st.ID] = st
		case webrtc.ICECandidatePairStats:
			pairs = append(pairs, st)
		}
	}

	var selected *webrtc.ICECandidatePairStats
	for i := range pairs {
		p := &pairs[i]
		if p.State != webrtc.StatsICECandidatePairStateSucceeded {
			continue
		}
		if selected == nil || (p.Nominated && !selected.Nominated) {
			selected = p
		}
	}
	if selected == nil {
		return domain.ConnectionUnknown
	}

	local, okLocal := candidates[selected.LocalCandidateID]
	remote, okRemote := candidates[selected.RemoteCandidateID]
	if !okLocal && !okRemote {
		return domain.ConnectionUnknown
	}
	if local.CandidateType == webrtc.ICECandidateTypeRelay || remote.CandidateType == webrtc.ICECandidateTypeRelay {
		return domain.ConnectionRelay
	}
	return domain.ConnectionDirect
}
