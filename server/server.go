// Package server exposes the slice queue to out-of-process workers
// over HTTP (TCP or unix socket). It is a thin veneer: every endpoint
// maps to one queue call, and the queue's atomicity is what makes
// concurrent workers safe. This is not a message broker; workers poll
// for claims.
package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/rahsheen/rocketjob/encoding"
	"github.com/rahsheen/rocketjob/logger"
	"github.com/rahsheen/rocketjob/sliced"
)

type Config struct {
	Debug bool
	// ClaimRPS caps claim calls per worker per second; zero disables.
	ClaimRPS   int
	ClaimBurst int
}

type Server struct {
	queue   *sliced.Queue
	limiter *claimLimiter
	debug   bool
}

func New(queue *sliced.Queue, cfg Config) *Server {
	burst := cfg.ClaimBurst
	if burst <= 0 {
		burst = cfg.ClaimRPS
	}
	return &Server{
		queue:   queue,
		limiter: newClaimLimiter(cfg.ClaimRPS, burst),
		debug:   cfg.Debug,
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/slices/next", s.handleNext)
	mux.HandleFunc("POST /v1/slices/{id}/complete", s.handleComplete)
	mux.HandleFunc("POST /v1/slices/{id}/fail", s.handleFail)
	mux.HandleFunc("POST /v1/requeue/failed", s.handleRequeueFailed)
	mux.HandleFunc("POST /v1/requeue/running", s.handleRequeueRunning)
	mux.HandleFunc("GET /v1/slices/counts", s.handleCounts)
	mux.HandleFunc("GET /v1/failures", s.handleFailures)
}

type claimRequest struct {
	WorkerID string `json:"worker_id"`
}

type finishRequest struct {
	WorkerID     string `json:"worker_id"`
	Description  string `json:"description,omitempty"`
	RecordOffset int    `json:"record_offset,omitempty"`
}

type requeueRunningRequest struct {
	WorkerPrefix string `json:"worker_prefix"`
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return encoding.JSONiter.NewDecoder(r.Body).Decode(v)
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeBody(r, &req); err != nil || req.WorkerID == "" {
		WriteError(w, http.StatusBadRequest, "worker_id is required")
		return
	}

	if !s.limiter.allow(req.WorkerID) {
		rateLimited.Inc()
		WriteError(w, http.StatusTooManyRequests, "claim rate limit exceeded")
		return
	}

	slice, err := s.queue.Next(r.Context(), req.WorkerID)
	if err != nil {
		logger.Error("Claim failed for %s: %v", req.WorkerID, err)
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if slice == nil {
		claimsTotal.WithLabelValues("empty").Inc()
		w.WriteHeader(http.StatusNoContent)
		return
	}

	claimsTotal.WithLabelValues("claimed").Inc()
	WriteJSON(w, http.StatusOK, slice)
}

func (s *Server) sliceID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		WriteError(w, http.StatusBadRequest, "invalid slice id")
		return 0, false
	}
	return id, true
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sliceID(w, r)
	if !ok {
		return
	}

	var req finishRequest
	if err := decodeBody(r, &req); err != nil || req.WorkerID == "" {
		WriteError(w, http.StatusBadRequest, "worker_id is required")
		return
	}

	err := s.queue.Complete(r.Context(), id, req.WorkerID)
	if errors.Is(err, sliced.ErrNotOwned) {
		WriteError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	slicesFinished.WithLabelValues("completed").Inc()
	WriteJSON(w, http.StatusOK, map[string]any{"id": id, "state": sliced.StateCompleted})
}

func (s *Server) handleFail(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sliceID(w, r)
	if !ok {
		return
	}

	var req finishRequest
	if err := decodeBody(r, &req); err != nil || req.WorkerID == "" {
		WriteError(w, http.StatusBadRequest, "worker_id is required")
		return
	}

	failure := sliced.Failure{
		Description:  req.Description,
		RecordOffset: req.RecordOffset,
	}
	err := s.queue.Fail(r.Context(), id, req.WorkerID, failure)
	if errors.Is(err, sliced.ErrNotOwned) {
		WriteError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	slicesFinished.WithLabelValues("failed").Inc()
	WriteJSON(w, http.StatusOK, map[string]any{"id": id, "state": sliced.StateFailed})
}

func (s *Server) handleRequeueFailed(w http.ResponseWriter, r *http.Request) {
	count, err := s.queue.RequeueFailed(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	requeuedTotal.WithLabelValues("failed").Add(float64(count))
	WriteJSON(w, http.StatusOK, map[string]int64{"requeued": count})
}

func (s *Server) handleRequeueRunning(w http.ResponseWriter, r *http.Request) {
	var req requeueRunningRequest
	if err := decodeBody(r, &req); err != nil || req.WorkerPrefix == "" {
		WriteError(w, http.StatusBadRequest, "worker_prefix is required")
		return
	}

	count, err := s.queue.RequeueRunning(r.Context(), req.WorkerPrefix)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	requeuedTotal.WithLabelValues("running").Add(float64(count))
	WriteJSON(w, http.StatusOK, map[string]int64{"requeued": count})
}

func (s *Server) handleCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.queue.Counts(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	slicesByState.WithLabelValues(string(sliced.StateQueued)).Set(float64(counts.Queued))
	slicesByState.WithLabelValues(string(sliced.StateRunning)).Set(float64(counts.Running))
	slicesByState.WithLabelValues(string(sliced.StateCompleted)).Set(float64(counts.Completed))
	slicesByState.WithLabelValues(string(sliced.StateFailed)).Set(float64(counts.Failed))

	WriteJSON(w, http.StatusOK, counts)
}

type failedRecord struct {
	SliceID      uint64        `json:"slice_id"`
	RecordOffset int           `json:"record_offset"`
	Description  string        `json:"description"`
	Record       sliced.Record `json:"record"`
}

func (s *Server) handleFailures(w http.ResponseWriter, r *http.Request) {
	results := []failedRecord{}
	err := s.queue.EachFailedRecord(r.Context(), func(rec sliced.Record, slice *sliced.Slice) error {
		results = append(results, failedRecord{
			SliceID:      slice.ID,
			RecordOffset: slice.Failure.RecordOffset,
			Description:  slice.Failure.Description,
			Record:       rec,
		})
		return nil
	})
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, results)
}
