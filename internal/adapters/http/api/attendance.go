package api

import (
	"net/http"
	"time"
)

type attendanceRecord struct {
	Name       string  `json:"name"`
	Time       string  `json:"time"`
	Similarity float64 `json:"similarity"`
}

type attendanceResponse struct {
	Date    string             `json:"date"`
	Records []attendanceRecord `json:"records"`
}

// HandleAttendance handles GET /attendance?date=YYYY-MM-DD. Without a date
// the current day is read.
func (s *Server) HandleAttendance(w http.ResponseWriter, r *http.Request) {
	const op = "api.attendance"

	day := s.now()
	if q := r.URL.Query().Get("date"); q != "" {
		d, err := time.ParseInLocation(time.DateOnly, q, time.Local)
		if err != nil {
			writeError(w, WrapKind(op, ErrBadRequest, err))
			return
		}
		day = d
	}

	recs, err := s.deps.Attendance(r.Context(), day)
	if err != nil {
		writeError(w, Wrap(op, err))
		return
	}
	resp := attendanceResponse{
		Date:    day.Format(time.DateOnly),
		Records: make([]attendanceRecord, 0, len(recs)),
	}
	for _, rec := range recs {
		resp.Records = append(resp.Records, attendanceRecord{
			Name:       rec.Name,
			Time:       rec.Time.Format(time.TimeOnly),
			Similarity: rec.Similarity,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
