package http

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/teemtee/tmtweb/internal/domain/metadata"
	"github.com/teemtee/tmtweb/internal/domain/task"
	"github.com/teemtee/tmtweb/internal/format"
	"github.com/teemtee/tmtweb/internal/port/messagequeue"
	"github.com/teemtee/tmtweb/internal/port/taskstore"
	"github.com/teemtee/tmtweb/internal/service"
)

// Version is the API version reported by / and /health.
const Version = "1.0.0"

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	tasks    *service.TaskService
	store    taskstore.Store
	queue    messagequeue.Queue
	hostname string
	log      *slog.Logger
	start    time.Time
}

// NewHandlers creates the handler set. hostname is the externally visible
// base URL used in status callback links; empty falls back to the request
// host.
func NewHandlers(tasks *service.TaskService, store taskstore.Store, queue messagequeue.Queue, hostname string, log *slog.Logger) *Handlers {
	return &Handlers{
		tasks:    tasks,
		store:    store,
		queue:    queue,
		hostname: hostname,
		log:      log,
		start:    time.Now(),
	}
}

// taskOut is the task response shape shared by all endpoints. Result
// carries the task error message once the task has failed.
type taskOut struct {
	ID                string  `json:"id"`
	Status            string  `json:"status"`
	Result            *string `json:"result"`
	StatusCallbackURL string  `json:"status_callback_url"`
}

func (h *Handlers) toTaskOut(r *http.Request, t *task.Task, rep format.Representation) taskOut {
	callback := h.baseURL(r) + "/status"
	if rep == format.RepHTML {
		callback += "/html"
	}
	callback += "?task-id=" + t.ID

	out := taskOut{ID: t.ID, Status: string(t.Status), StatusCallbackURL: callback}
	if t.Status == task.StatusFailure && t.Error != "" {
		msg := t.Error
		out.Result = &msg
	}
	return out
}

func (h *Handlers) baseURL(r *http.Request) string {
	if h.hostname != "" {
		return h.hostname
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

// createTaskRequest is the JSON body of POST /tasks.
type createTaskRequest struct {
	Descriptors []metadata.Descriptor `json:"descriptors"`
}

// CreateTask accepts a descriptor list and submits an asynchronous task.
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createTaskRequest](w, r)
	if !ok {
		return
	}

	t, err := h.tasks.Submit(r.Context(), req.Descriptors)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, h.toTaskOut(r, t, format.RepJSON))
}

// Root serves the original query-parameter interface: descriptors arrive as
// test-url/test-name/... pairs, an existing task is polled with task-id.
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	rep, err := format.ParseRepresentation(q.Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if len(q) == 0 {
		writeJSON(w, http.StatusOK, map[string]string{
			"service": "tmtweb",
			"version": Version,
			"usage":   "provide test-url and test-name, or plan-url and plan-name, or task-id",
		})
		return
	}

	if id := q.Get("task-id"); id != "" {
		h.respondWithTask(w, r, id, rep)
		return
	}

	descriptors, err := descriptorsFromQuery(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := h.tasks.Submit(r.Context(), descriptors)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if rep == format.RepHTML {
		h.writeStatusPage(w, r, t)
		return
	}
	writeJSON(w, http.StatusOK, h.toTaskOut(r, t, rep))
}

// respondWithTask serves a task in the requested representation: the
// rendered result once the task has succeeded, the task state otherwise.
func (h *Handlers) respondWithTask(w http.ResponseWriter, r *http.Request, id string, rep format.Representation) {
	t, err := h.tasks.Status(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if t.Status == task.StatusSuccess {
		data, err := h.tasks.Render(r.Context(), id, rep)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		w.Header().Set("Content-Type", rep.ContentType())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	if rep == format.RepHTML {
		h.writeStatusPage(w, r, t)
		return
	}
	writeJSON(w, http.StatusOK, h.toTaskOut(r, t, rep))
}

func (h *Handlers) writeStatusPage(w http.ResponseWriter, r *http.Request, t *task.Task) {
	callbackURL := h.baseURL(r) + "/status/html?task-id=" + t.ID
	resultURL := h.baseURL(r) + "/?task-id=" + t.ID + "&format=html"
	page, err := format.RenderStatusPage(t, callbackURL, resultURL)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", format.RepHTML.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

// descriptorsFromQuery maps the original parameter pairs onto descriptors.
// Both halves of a pair must be present, and at least one pair overall.
func descriptorsFromQuery(q map[string][]string) ([]metadata.Descriptor, error) {
	get := func(key string) string {
		if v, ok := q[key]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}

	var descriptors []metadata.Descriptor
	for _, kind := range []metadata.Kind{metadata.KindTest, metadata.KindPlan, metadata.KindStory} {
		prefix := string(kind) + "-"
		url, name := get(prefix+"url"), get(prefix+"name")
		if url == "" && name == "" {
			continue
		}
		if url == "" || name == "" {
			return nil, errors.New("both " + prefix + "url and " + prefix + "name must be provided together")
		}
		descriptors = append(descriptors, metadata.Descriptor{
			Kind: kind,
			URL:  url,
			Ref:  get(prefix + "ref"),
			Path: get(prefix + "path"),
			Name: name,
		})
	}
	if len(descriptors) == 0 {
		return nil, errors.New("at least one of test, plan or story parameters must be provided")
	}
	return descriptors, nil
}

// GetTask returns the task state as JSON.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.tasks.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toTaskOut(r, t, format.RepJSON))
}

// GetTaskResult returns the rendered result of a terminal task. While the
// task is still in progress the current state is returned with 202.
func (h *Handlers) GetTaskResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rep, err := format.ParseRepresentation(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := h.tasks.Render(r.Context(), id, rep)
	if err != nil {
		if errors.Is(err, service.ErrNotReady) {
			t, serr := h.tasks.Status(r.Context(), id)
			if serr != nil {
				writeDomainError(w, serr)
				return
			}
			writeJSON(w, http.StatusAccepted, h.toTaskOut(r, t, rep))
			return
		}
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", rep.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GetStatus returns the task state for the task-id query parameter.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("task-id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "task-id is required")
		return
	}

	t, err := h.tasks.Status(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toTaskOut(r, t, format.RepJSON))
}

// GetStatusHTML serves the auto-refreshing status page. Once the task has
// succeeded the client is redirected to the rendered result.
func (h *Handlers) GetStatusHTML(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("task-id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "task-id is required")
		return
	}

	t, err := h.tasks.Status(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if t.Status == task.StatusSuccess {
		http.Redirect(w, r, h.baseURL(r)+"/?task-id="+t.ID+"&format=html", http.StatusSeeOther)
		return
	}
	h.writeStatusPage(w, r, t)
}

// healthStatus is the /health response shape.
type healthStatus struct {
	Status        string            `json:"status"`
	Timestamp     time.Time         `json:"timestamp"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	Version       map[string]string `json:"version"`
	Dependencies  map[string]string `json:"dependencies"`
	System        map[string]string `json:"system"`
}

// Health reports service, dependency, and system status.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	storeStatus := "ok"
	if err := h.store.Ping(r.Context()); err != nil {
		storeStatus = "failed"
	}
	queueStatus := "ok"
	if h.queue == nil || !h.queue.IsConnected() {
		queueStatus = "failed"
	}

	status := "ok"
	if storeStatus != "ok" || queueStatus != "ok" {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, healthStatus{
		Status:        status,
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: time.Since(h.start).Seconds(),
		Version: map[string]string{
			"api": Version,
			"go":  runtime.Version(),
		},
		Dependencies: map[string]string{
			"store": storeStatus,
			"queue": queueStatus,
		},
		System: map[string]string{
			"platform": runtime.GOOS + "/" + runtime.GOARCH,
		},
	})
}
