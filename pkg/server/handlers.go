package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/elonfeng/vidpulse/internal/ingest"
	"github.com/elonfeng/vidpulse/internal/store"
	"github.com/elonfeng/vidpulse/pkg/analytics"
	"github.com/elonfeng/vidpulse/pkg/youtube"
)

var errBadRequest = errors.New("bad request")

const maxBodyBytes = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.ListVideoSummaries(r.Context(), store.VideoListOpts{ActiveOnly: true})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics.Overview(summaries))
}

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	active, err := boolParam(r, "active", false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	summaries, err := s.store.ListVideoSummaries(r.Context(), store.VideoListOpts{ActiveOnly: active})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  summaries,
		"count": len(summaries),
	})
}

type trackRequest struct {
	Input  string   `json:"input"`
	Inputs []string `json:"inputs"`
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: decode body: %v", errBadRequest, err))
		return
	}

	if len(req.Inputs) == 0 {
		if req.Input == "" {
			s.writeError(w, r, fmt.Errorf("%w: input or inputs required", errBadRequest))
			return
		}
		res, err := s.ingester.Track(r.Context(), req.Input)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
		return
	}

	results, errs := s.ingester.TrackMany(r.Context(), req.Inputs)
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	if results == nil {
		results = []ingest.TrackResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tracked": results,
		"errors":  msgs,
	})
}

func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := s.videoID(w, r)
	if !ok {
		return
	}

	video, err := s.store.GetVideo(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tags, err := s.store.ListTags(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := map[string]any{
		"video": video,
		"tags":  tags,
		"url":   youtube.WatchURL(id),
	}
	latest, err := s.store.LatestSnapshot(r.Context(), id)
	switch {
	case err == nil:
		resp["latest"] = latest
	case !errors.Is(err, store.ErrNotFound):
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUntrack(w http.ResponseWriter, r *http.Request) {
	id, ok := s.videoID(w, r)
	if !ok {
		return
	}
	if err := s.ingester.Untrack(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "untracked", "id": id})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	id, snaps, ok := s.window(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"video_id": id,
		"data":     snaps,
		"count":    len(snaps),
	})
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	id, snaps, ok := s.window(w, r)
	if !ok {
		return
	}
	a := analytics.Analyze(snaps)
	writeJSON(w, http.StatusOK, map[string]any{
		"video_id":    id,
		"analysis":    a,
		"trend_label": a.Trend.Label(),
		"history":     snaps,
	})
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	id, ok := s.videoID(w, r)
	if !ok {
		return
	}

	video, err := s.store.GetVideo(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	latest, err := s.store.LatestSnapshot(r.Context(), id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.writeError(w, r, err)
		return
	}

	suggestions := analytics.Suggest(video, latest)
	if suggestions == nil {
		suggestions = []analytics.Suggestion{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"video_id":    id,
		"suggestions": suggestions,
		"seo":         analytics.SEO(video),
	})
}

func (s *Server) handleComments(w http.ResponseWriter, r *http.Request) {
	id, ok := s.videoID(w, r)
	if !ok {
		return
	}
	limit, err := intParam(r, "limit", 100)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	comments, err := s.store.ListComments(r.Context(), id, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  comments,
		"count": len(comments),
	})
}

func (s *Server) handleCommentInsights(w http.ResponseWriter, r *http.Request) {
	id, ok := s.videoID(w, r)
	if !ok {
		return
	}
	words, err := intParam(r, "words", 50)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	top, err := intParam(r, "top", 10)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	comments, err := s.store.ListComments(r.Context(), id, 1000)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics.Insights(comments, words, top))
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	unread, err := boolParam(r, "unread", false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := intParam(r, "limit", 100)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	alerts, err := s.store.ListAlerts(r.Context(), store.AlertListOpts{
		UnreadOnly: unread,
		VideoID:    r.URL.Query().Get("video"),
		Limit:      limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  alerts,
		"count": len(alerts),
	})
}

func (s *Server) handleReadAlert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: invalid alert id %q", errBadRequest, chi.URLParam(r, "id")))
		return
	}
	if err := s.store.MarkAlertRead(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "read", "id": id})
}

func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tags, err := s.store.TopTags(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  tags,
		"count": len(tags),
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 20)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  runs,
		"count": len(runs),
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	sum, err := s.ingester.Run(r.Context(), s.now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// videoID validates the {id} path parameter, writing a 400 when it is not
// a video id.
func (s *Server) videoID(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "id")
	id, ok := youtube.ExtractVideoID(raw)
	if !ok {
		s.writeError(w, r, fmt.Errorf("%w: %q", ingest.ErrInvalidVideoID, raw))
		return "", false
	}
	return id, true
}

// window loads the snapshots of the last ?days days, 30 by default.
// ?synthetic=false drops backfilled rows.
func (s *Server) window(w http.ResponseWriter, r *http.Request) (string, []store.StatSnapshot, bool) {
	id, ok := s.videoID(w, r)
	if !ok {
		return "", nil, false
	}
	days, err := intParam(r, "days", 30)
	if err != nil {
		s.writeError(w, r, err)
		return "", nil, false
	}
	synthetic, err := boolParam(r, "synthetic", true)
	if err != nil {
		s.writeError(w, r, err)
		return "", nil, false
	}

	if _, err := s.store.GetVideo(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return "", nil, false
	}

	opts := store.SnapshotListOpts{ExcludeSynthetic: !synthetic}
	if days > 0 {
		opts.Since = s.now().In(s.loc).AddDate(0, 0, -(days - 1)).Format(store.DateLayout)
	}
	snaps, err := s.store.ListSnapshots(r.Context(), id, opts)
	if err != nil {
		s.writeError(w, r, err)
		return "", nil, false
	}
	if snaps == nil {
		snaps = []store.StatSnapshot{}
	}
	return id, snaps, true
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, name)
	}
	return n, nil
}

func boolParam(r *http.Request, name string, def bool) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be true or false", errBadRequest, name)
	}
	return b, nil
}
