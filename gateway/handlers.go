package gateway

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"kmusic-audio-api/jobs"
	"kmusic-audio-api/shared"
)

const (
	audioField       = "audio"
	multipartMemory  = 32 << 20
	errNoAudio       = "no audio file provided"
	errInvalidName   = "invalid file name"
	errUploadTooBig  = "audio file too large"
	errSubmitFailed  = "failed to submit job to processing queue"
	errStatusFailure = "failed to read task status"
)

// handleHealth: GET /
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "KMusic API running",
		"version": Version,
	})
}

// handleLyrics: POST /upload_and_process_lyrics
func (s *Server) handleLyrics(w http.ResponseWriter, r *http.Request) {
	jobID, _, ok := s.submit(w, r, shared.JobKindTranscription, nil)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "lyrics processing started",
		"task_id": jobID,
		"file_id": jobID,
	})
}

// handleChords: POST /detect_chords
func (s *Server) handleChords(w http.ResponseWriter, r *http.Request) {
	jobID, _, ok := s.submit(w, r, shared.JobKindChordDetection, nil)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": "chord detection started",
		"task_id": jobID,
	})
}

// handleStems: POST /separate_stems
func (s *Server) handleStems(w http.ResponseWriter, r *http.Request) {
	defaults := map[string]string{shared.ParamStemType: shared.DefaultStemType}
	jobID, params, ok := s.submit(w, r, shared.JobKindStemSeparation, defaults)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{
		"message": fmt.Sprintf("separation of %s started", params[shared.ParamStemType]),
		"task_id": jobID,
	})
}

// submit parses the multipart upload and hands it to the dispatcher along
// with the form fields named in defaults (falling back to their default
// values). It writes the error response itself and reports false on failure.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, kind shared.JobKind, defaults map[string]string) (string, map[string]string, bool) {
	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, http.StatusRequestEntityTooLarge, errUploadTooBig)
			return "", nil, false
		}
		s.logger.Printf("ERROR: %s upload rejected: %v", kind, err)
		writeError(w, http.StatusBadRequest, errNoAudio)
		return "", nil, false
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(audioField)
	if err != nil {
		msg := errNoAudio
		// A part sent with an empty filename is parsed as a plain value.
		if _, present := r.MultipartForm.Value[audioField]; present {
			msg = errInvalidName
		}
		s.logger.Printf("ERROR: %s upload rejected: %s", kind, msg)
		writeError(w, http.StatusBadRequest, msg)
		return "", nil, false
	}
	defer file.Close()

	sub := jobs.Submission{Kind: kind, Filename: header.Filename, Body: file}
	if defaults != nil {
		sub.Params = make(map[string]string, len(defaults))
		for name, def := range defaults {
			sub.Params[name] = def
			if v := formField(r, name); v != "" {
				sub.Params[name] = v
			}
		}
	}
	jobID, err := s.dispatcher.Submit(r.Context(), sub)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidInput) {
			s.logger.Printf("ERROR: %s upload rejected: %v", kind, err)
			writeError(w, http.StatusBadRequest, strings.TrimSuffix(err.Error(), ": "+shared.ErrInvalidInput.Error()))
			return "", nil, false
		}
		s.logger.Printf("ERROR: Failed to submit %s job: %v", kind, err)
		writeError(w, http.StatusInternalServerError, errSubmitFailed)
		return "", nil, false
	}
	s.logger.Printf("INFO: Accepted %s job %s", kind, jobID)
	return jobID, sub.Params, true
}

// formField reads a multipart body field, ignoring the URL query.
func formField(r *http.Request, name string) string {
	if r.MultipartForm == nil {
		return ""
	}
	if vs := r.MultipartForm.Value[name]; len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}

// handleTaskStatus: GET /task_status/{task_id}
func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["task_id"]
	payload, err := s.reporter.Status(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, shared.ErrUnknownJob) {
			WriteJSON(w, http.StatusNotFound, map[string]string{
				"error":   "task not found",
				"task_id": taskID,
			})
			return
		}
		s.logger.Printf("ERROR: Status lookup for %s failed: %v", taskID, err)
		writeError(w, http.StatusInternalServerError, errStatusFailure)
		return
	}
	if payload.State == shared.JobStateFailure {
		s.logger.Printf("WARN: Task %s failed: %s", taskID, payload.Status)
	}
	WriteJSON(w, http.StatusOK, payload)
}
