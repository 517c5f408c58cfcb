package halld

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/studyhall/studyhall/halld/database"
	"github.com/studyhall/studyhall/halld/httpapi"
	"github.com/studyhall/studyhall/halld/httpmw"
	"github.com/studyhall/studyhall/halld/sessiontrack"
	"github.com/studyhall/studyhall/hallsdk"
)

func (api *API) postSessionStart(rw http.ResponseWriter, r *http.Request) {
	var req hallsdk.StartSessionRequest
	if !httpapi.Read(rw, r, &req) {
		return
	}
	user := httpmw.AuthedUser(r)
	result, err := api.Tracker.Start(r.Context(), user, req.Tag)
	if errors.Is(err, sessiontrack.ErrEmptyTag) {
		httpapi.Write(rw, http.StatusBadRequest, httpapi.Response{
			Message: "a subject tag is required to start studying",
		})
		return
	}
	if err != nil {
		httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
			Message: fmt.Sprintf("start session: %s", err.Error()),
		})
		return
	}
	httpapi.Write(rw, http.StatusCreated, hallsdk.StartSessionResponse{
		Session:        convertActiveSession(result.Session),
		CompletedToday: result.CompletedToday,
	})
}

func (api *API) postSessionPause(rw http.ResponseWriter, r *http.Request) {
	user := httpmw.AuthedUser(r)
	result, err := api.Tracker.Pause(r.Context(), user)
	if errors.Is(err, sessiontrack.ErrNoActiveSession) {
		httpapi.Write(rw, http.StatusNotFound, httpapi.Response{
			Message: "no active session to pause",
		})
		return
	}
	if err != nil {
		httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
			Message: fmt.Sprintf("pause session: %s", err.Error()),
		})
		return
	}
	httpapi.Write(rw, http.StatusOK, hallsdk.PauseSessionResponse{
		Session:       convertActiveSession(result.Session),
		AlreadyPaused: result.AlreadyPaused,
	})
}

func (api *API) postSessionResume(rw http.ResponseWriter, r *http.Request) {
	user := httpmw.AuthedUser(r)
	result, err := api.Tracker.Resume(r.Context(), user)
	if errors.Is(err, sessiontrack.ErrNoActiveSession) {
		httpapi.Write(rw, http.StatusNotFound, httpapi.Response{
			Message: "no active session to resume",
		})
		return
	}
	if err != nil {
		httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
			Message: fmt.Sprintf("resume session: %s", err.Error()),
		})
		return
	}
	httpapi.Write(rw, http.StatusOK, hallsdk.ResumeSessionResponse{
		Session:          convertActiveSession(result.Session),
		AlreadyRunning:   result.AlreadyRunning,
		PausedDurationMs: result.PausedDuration.Milliseconds(),
	})
}

func (api *API) postSessionStop(rw http.ResponseWriter, r *http.Request) {
	user := httpmw.AuthedUser(r)
	result, err := api.Tracker.Stop(r.Context(), user)
	if errors.Is(err, sessiontrack.ErrNoActiveSession) {
		httpapi.Write(rw, http.StatusNotFound, httpapi.Response{
			Message: "no active session to stop",
		})
		return
	}
	if err != nil {
		httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
			Message: fmt.Sprintf("stop session: %s", err.Error()),
		})
		return
	}
	httpapi.Write(rw, http.StatusOK, hallsdk.StopSessionResponse{
		Completed: convertStudySession(result.Completed),
	})
}

func (api *API) putSessionHeartbeat(rw http.ResponseWriter, r *http.Request) {
	user := httpmw.AuthedUser(r)
	err := api.Tracker.Heartbeat(r.Context(), user.ID)
	if errors.Is(err, sessiontrack.ErrNoActiveSession) {
		httpapi.Write(rw, http.StatusNotFound, httpapi.Response{
			Message: "no active session to keep alive",
		})
		return
	}
	if err != nil {
		httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
			Message: fmt.Sprintf("record heartbeat: %s", err.Error()),
		})
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (api *API) activeSession(rw http.ResponseWriter, r *http.Request) {
	user := httpmw.AuthedUser(r)
	session, ok, err := api.Tracker.Active(r.Context(), user.ID)
	if err != nil {
		httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
			Message: fmt.Sprintf("get active session: %s", err.Error()),
		})
		return
	}
	var resp hallsdk.ActiveSessionResponse
	if ok {
		converted := convertActiveSession(session)
		resp.Session = &converted
	}
	httpapi.Write(rw, http.StatusOK, resp)
}

func (api *API) sessionStats(rw http.ResponseWriter, r *http.Request) {
	user := httpmw.AuthedUser(r)
	stats, err := api.Tracker.UserStats(r.Context(), user.ID)
	if err != nil {
		httpapi.Write(rw, http.StatusInternalServerError, httpapi.Response{
			Message: fmt.Sprintf("aggregate stats: %s", err.Error()),
		})
		return
	}
	httpapi.Write(rw, http.StatusOK, convertStats(stats))
}

func convertActiveSession(session database.ActiveSession) hallsdk.Session {
	converted := hallsdk.Session{
		ID:        session.ID,
		UserID:    session.UserID,
		Tag:       session.Tag,
		StartedAt: session.StartedAt,
		IsPaused:  session.IsPaused,
	}
	if session.PausedAt.Valid {
		pausedAt := session.PausedAt.Time
		converted.PausedAt = &pausedAt
	}
	return converted
}

func convertStudySession(session database.StudySession) hallsdk.StudySession {
	return hallsdk.StudySession{
		ID:        session.ID,
		UserID:    session.UserID,
		Tag:       session.Tag,
		Duration:  session.Duration,
		CreatedAt: session.CreatedAt,
	}
}

func convertStats(stats sessiontrack.Stats) hallsdk.SessionStats {
	converted := hallsdk.SessionStats{
		TodaySeconds:  stats.TodaySeconds,
		TodaySessions: stats.TodaySessions,
		WeekSeconds:   stats.WeekSeconds,
		WeekSessions:  stats.WeekSessions,
		Tags:          make([]hallsdk.TagStat, 0, len(stats.Tags)),
		Days:          make([]hallsdk.DayStat, 0, len(stats.Days)),
	}
	for _, tag := range stats.Tags {
		converted.Tags = append(converted.Tags, hallsdk.TagStat{
			Tag:      tag.Tag,
			Seconds:  tag.Seconds,
			Sessions: tag.Sessions,
		})
	}
	for _, day := range stats.Days {
		converted.Days = append(converted.Days, hallsdk.DayStat{
			Day:     day.Day,
			Seconds: day.Seconds,
		})
	}
	return converted
}
