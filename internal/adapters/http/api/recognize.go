package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"

	"github.com/okian/facetally/internal/domain/consensus"
	"github.com/okian/facetally/internal/domain/model"
	"github.com/okian/facetally/pkg/logger"
)

// verdictResponse is the body of POST /recognize.
type verdictResponse struct {
	Result            string  `json:"result"`
	Label             string  `json:"label"`
	Similarity        float64 `json:"similarity"`
	Reason            string  `json:"reason"`
	SessionID         string  `json:"session_id"`
	FramesProcessed   int     `json:"frames_processed"`
	UnknownFrames     int     `json:"unknown_frames"`
	AverageSimilarity float64 `json:"average_similarity"`
	Recorded          bool    `json:"recorded"`
	Error             string  `json:"error,omitempty"`
}

func newVerdictResponse(v model.Verdict, recorded bool) verdictResponse {
	return verdictResponse{
		Result:            v.Label(),
		Label:             v.Label(),
		Similarity:        round3(v.MaxSimilarity),
		Reason:            string(v.Reason),
		SessionID:         v.SessionID,
		FramesProcessed:   v.FramesProcessed,
		UnknownFrames:     v.UnknownFrames,
		AverageSimilarity: round3(v.AverageSimilarity),
		Recorded:          recorded,
	}
}

func round3(x float64) float64 { return math.Round(x*1000) / 1000 }

// HandleRecognize handles POST /recognize. The body is a JSON array of base64
// frames. A frame that does not decode is still passed on and counts as an
// unknown frame.
func (s *Server) HandleRecognize(w http.ResponseWriter, r *http.Request) {
	const op = "api.recognize"
	ctx := r.Context()

	var payload []string
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes)).Decode(&payload); err != nil {
		writeError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if len(payload) == 0 {
		writeError(w, WrapKind(op, ErrBadRequest, consensus.ErrNoFrames))
		return
	}

	frames := make([]model.Frame, len(payload))
	for i, raw := range payload {
		f, err := model.DecodeDataURL(i, raw)
		if err != nil {
			s.logger.Debug(ctx, "frame not decodable", logger.Int("frame", i), logger.Error(err))
			f = model.Frame{Index: i}
		}
		frames[i] = f
	}

	out, err := s.deps.Recognize(ctx, frames)
	if err != nil {
		wrapped := Wrap(op, err)
		if !errors.Is(wrapped, ErrNotRecorded) {
			writeError(w, wrapped)
			return
		}
		s.logger.Error(ctx, "attendance not recorded",
			logger.String("session_id", out.Verdict.SessionID),
			logger.String("name", out.Verdict.Name),
			logger.Error(err))
		resp := newVerdictResponse(out.Verdict, false)
		resp.Error = wrapped.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, newVerdictResponse(out.Verdict, out.Recorded))
}
