package model

import "time"

// Reason names the rule that produced a verdict.
type Reason string

const (
	ReasonConsensus       Reason = "consensus"
	ReasonInstantAccept   Reason = "instant_accept"
	ReasonBlockedUnknowns Reason = "blocked_unknowns"
)

// UnknownLabel is the label reported for rejected sessions.
const UnknownLabel = "Unknown"

// Match is the matcher's answer for one embedding.
type Match struct {
	Name       string
	Similarity float64
	Found      bool
}

// Verdict is the outcome of one recognition session.
type Verdict struct {
	SessionID         string
	Accepted          bool
	Name              string // empty unless Accepted
	Reason            Reason
	MaxSimilarity     float64
	AverageSimilarity float64 // evidence average for the accepted identity
	FramesProcessed   int
	UnknownFrames     int
}

// Label returns the accepted name or UnknownLabel.
func (v Verdict) Label() string {
	if v.Accepted {
		return v.Name
	}
	return UnknownLabel
}

// AttendanceRecord is one ledger row.
type AttendanceRecord struct {
	Name       string
	Time       time.Time
	Similarity float64
}

// RecordFromVerdict builds the ledger row for an accepted verdict at t.
// ok is false for rejected verdicts.
func RecordFromVerdict(v Verdict, t time.Time) (AttendanceRecord, bool) {
	if !v.Accepted || v.Name == "" || v.Name == UnknownLabel {
		return AttendanceRecord{}, false
	}
	return AttendanceRecord{Name: v.Name, Time: t, Similarity: v.AverageSimilarity}, true
}
