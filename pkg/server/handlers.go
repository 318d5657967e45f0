package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hollowness-inside/hlsgrab/pkg/assemble"
	"github.com/hollowness-inside/hlsgrab/pkg/capture"
	"github.com/hollowness-inside/hlsgrab/pkg/grab"
	"github.com/hollowness-inside/hlsgrab/pkg/m3u8"
	"github.com/hollowness-inside/hlsgrab/pkg/progress"
)

// Update types pushed over the websocket.
const (
	UpdateProgress = "progress"
	UpdateResult   = "result"
)

// Update is a websocket message about one download job.
type Update struct {
	JobID    string          `json:"job_id"`
	Type     string          `json:"type"`
	Event    *progress.Event `json:"event,omitempty"`
	File     string          `json:"file,omitempty"`
	Strategy string          `json:"strategy,omitempty"`
	Error    string          `json:"error,omitempty"`
}

type urlRequest struct {
	URL string `json:"url" binding:"required"`
}

type parseRequest struct {
	URL       string `json:"url" binding:"required"`
	SessionID string `json:"session_id"`
}

type downloadRequest struct {
	VideoURL   string `json:"video_url"`
	AudioURL   string `json:"audio_url"`
	Strategy   string `json:"strategy"`
	ConcatMode string `json:"concat_mode"`
	Filename   string `json:"filename"`
	Limit      int    `json:"limit"`
}

func abort(c *gin.Context, code int, err error) {
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"muxer":     s.svc.MuxerAvailable(),
		"sessions":  len(s.registry.Sessions()),
		"downloads": s.slots.inUse(),
		"clients":   s.hub.Len(),
	})
}

func (s *Server) createSession(c *gin.Context) {
	id, err := uuid.NewV7()
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	s.registry.Open(id.String())
	s.log.Info().Str("session", id.String()).Msg("session opened")
	c.JSON(http.StatusCreated, gin.H{"id": id.String()})
}

func (s *Server) deleteSession(c *gin.Context) {
	id := c.Param("id")
	if !s.registry.Close(id) {
		abort(c, http.StatusNotFound, capture.ErrUnknownSession)
		return
	}
	s.log.Info().Str("session", id).Msg("session closed")
	c.Status(http.StatusNoContent)
}

// session resolves the :id parameter to an open session.
func (s *Server) session(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := s.registry.Entries(id); err != nil {
		abort(c, http.StatusNotFound, err)
		return "", false
	}
	return id, true
}

func captureReply(c *gin.Context, entry capture.Entry, recorded bool, err error) {
	switch {
	case errors.Is(err, capture.ErrUnknownSession):
		abort(c, http.StatusNotFound, err)
	case err != nil:
		abort(c, http.StatusInternalServerError, err)
	case !recorded:
		c.JSON(http.StatusOK, gin.H{"recorded": false})
	default:
		c.JSON(http.StatusOK, gin.H{"recorded": true, "entry": entry})
	}
}

func (s *Server) recordRequest(c *gin.Context) {
	id, ok := s.session(c)
	if !ok {
		return
	}
	var req urlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	entry, recorded, err := s.capturer.Observe(id, req.URL)
	captureReply(c, entry, recorded, err)
}

// recordResponse sniffs a captured response. The body is the response body
// as the browser saw it; its URL travels in the query string and its type in
// the Content-Type header.
func (s *Server) recordResponse(c *gin.Context) {
	id, ok := s.session(c)
	if !ok {
		return
	}
	url := c.Query("url")
	if url == "" {
		abort(c, http.StatusBadRequest, errors.New("url query parameter is required"))
		return
	}
	entry, recorded, err := s.capturer.ObserveResponse(id, url, c.GetHeader("Content-Type"), c.Request.Body)
	captureReply(c, entry, recorded, err)
}

func (s *Server) listMedia(c *gin.Context) {
	id := c.Param("id")
	entries, err := s.registry.Entries(id)
	if err != nil {
		abort(c, http.StatusNotFound, err)
		return
	}
	if entries == nil {
		entries = []capture.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"session": id, "entries": entries})
}

func (s *Server) parse(c *gin.Context) {
	var req parseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	if req.SessionID != "" {
		if doc, ok := s.registry.Document(req.SessionID, req.URL); ok {
			c.JSON(http.StatusOK, gin.H{"cached": true, "document": doc})
			return
		}
	}

	doc, err := s.svc.Inspect(c.Request.Context(), req.URL)
	switch {
	case errors.Is(err, m3u8.ErrUnrecognizedFormat):
		abort(c, http.StatusUnprocessableEntity, err)
		return
	case err != nil:
		abort(c, http.StatusBadGateway, err)
		return
	}

	if req.SessionID != "" {
		if err := s.registry.StoreDocument(req.SessionID, doc); err != nil {
			abort(c, http.StatusNotFound, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"cached": false, "document": doc})
}

func (s *Server) download(c *gin.Context) {
	var body downloadRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	req, err := body.toRequest()
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	if !s.slots.tryAcquire() {
		abort(c, http.StatusConflict, errors.New("a download is already running"))
		return
	}
	id, err := uuid.NewV7()
	if err != nil {
		s.slots.release()
		abort(c, http.StatusInternalServerError, err)
		return
	}

	s.jobs.Add(1)
	go s.runJob(id.String(), req)
	c.JSON(http.StatusAccepted, gin.H{"job_id": id.String()})
}

func (b downloadRequest) toRequest() (grab.Request, error) {
	if b.VideoURL == "" && b.AudioURL == "" {
		return grab.Request{}, errors.New("video_url or audio_url is required")
	}
	if b.Limit < 0 {
		return grab.Request{}, fmt.Errorf("invalid limit %d", b.Limit)
	}
	if b.Strategy != "" && b.Strategy != grab.StrategyAuto {
		if _, err := assemble.ParseStrategy(b.Strategy); err != nil {
			return grab.Request{}, err
		}
	}
	mode, err := assemble.ParseConcatMode(b.ConcatMode)
	if err != nil {
		return grab.Request{}, err
	}

	req := grab.Request{
		VideoURL:   b.VideoURL,
		AudioURL:   b.AudioURL,
		Strategy:   b.Strategy,
		ConcatMode: mode,
		Limit:      b.Limit,
	}
	if b.Filename != "" {
		req.BaseName = grab.SanitizeName(b.Filename)
	}
	return req, nil
}

func (s *Server) runJob(id string, req grab.Request) {
	defer s.jobs.Done()
	defer s.slots.release()

	log := s.log.With().Str("job", id).Logger()
	log.Info().Str("video", req.VideoURL).Str("audio", req.AudioURL).Msg("download started")

	result, err := s.svc.Download(s.ctx, req, func(ev progress.Event) {
		s.hub.Broadcast(Update{JobID: id, Type: UpdateProgress, Event: &ev})
	})
	if err != nil {
		s.hub.Broadcast(Update{JobID: id, Type: UpdateResult, Error: err.Error()})
		return
	}

	file, err := grab.Save(result, s.opts.OutputDir)
	if err != nil {
		log.Error().Err(err).Msg("save failed")
		s.hub.Broadcast(Update{JobID: id, Type: UpdateResult, Error: err.Error()})
		return
	}
	log.Info().Str("file", file).Msg("download saved")
	s.hub.Broadcast(Update{JobID: id, Type: UpdateResult, File: file, Strategy: string(result.Strategy)})
}
