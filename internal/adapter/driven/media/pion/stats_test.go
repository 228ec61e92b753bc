package pion

import (
	"testing"

	"github.com/Wyydra/peercall/internal/core/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
)

func report(localType, remoteType webrtc.ICECandidateType, state webrtc.StatsICECandidatePairState) webrtc.StatsReport {
	return webrtc.StatsReport{
		"local":  webrtc.ICECandidateStats{ID: "local", CandidateType: localType},
		"remote": webrtc.ICECandidateStats{ID: "remote", CandidateType: remoteType},
		"pair": webrtc.ICECandidatePairStats{
			ID:                "pair",
			LocalCandidateID:  "local",
			RemoteCandidateID: "remote",
			State:             state,
			Nominated:         true,
		},
	}
}

func TestClassifyConnection(t *testing.T) {
	succeeded := webrtc.StatsICECandidatePairStateSucceeded

	tests := []struct {
		name   string
		report webrtc.StatsReport
		want   domain.ConnectionKind
	}{
		{"empty report", webrtc.StatsReport{}, domain.ConnectionUnknown},
		{"host to host", report(webrtc.ICECandidateTypeHost, webrtc.ICECandidateTypeHost, succeeded), domain.ConnectionDirect},
		{"reflexive", report(webrtc.ICECandidateTypeSrflx, webrtc.ICECandidateTypePrflx, succeeded), domain.ConnectionDirect},
		{"local relay", report(webrtc.ICECandidateTypeRelay, webrtc.ICECandidateTypeHost, succeeded), domain.ConnectionRelay},
		{"remote relay", report(webrtc.ICECandidateTypeSrflx, webrtc.ICECandidateTypeRelay, succeeded), domain.ConnectionRelay},
		{"pair still checking", report(webrtc.ICECandidateTypeRelay, webrtc.ICECandidateTypeHost, webrtc.StatsICECandidatePairStateInProgress), domain.ConnectionUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyConnection(tt.report))
		})
	}
}

func TestClassifyConnectionPrefersNominatedPair(t *testing.T) {
	r := report(webrtc.ICECandidateTypeRelay, webrtc.ICECandidateTypeHost, webrtc.StatsICECandidatePairStateSucceeded)
	pair := r["pair"].(webrtc.ICECandidatePairStats)
	pair.Nominated = false
	r["pair"] = pair

	r["host"] = webrtc.ICECandidateStats{ID: "host", CandidateType: webrtc.ICECandidateTypeHost}
	r["nominated"] = webrtc.ICECandidatePairStats{
		ID:                "nominated",
		LocalCandidateID:  "host",
		RemoteCandidateID: "remote",
		State:             webrtc.StatsICECandidatePairStateSucceeded,
		Nominated:         true,
	}

	assert.Equal(t, domain.ConnectionDirect, ClassifyConnection(r))
}
