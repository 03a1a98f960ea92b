// Package api provides HTTP handlers for the notification server REST API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog"

	"github.com/coregx/booknotify"
	"github.com/coregx/booknotify/model"
	"github.com/coregx/booknotify/retry"
)

// HealthMessage is the body of the health endpoint.
const HealthMessage = "Notification Service is running and consuming Kafka messages"

// DefaultStaleAfter is the dead-letter age the stats endpoint reports as stale.
const DefaultStaleAfter = time.Hour

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// StatusNotifier reacts to book status changes.
type StatusNotifier interface {
	BookStatusChanged(ctx context.Context, book model.Book, previous model.AvailabilityStatus) ([]*booknotify.PublishOutcome, error)
}

// PipelineInfo describes the running pipeline.
type PipelineInfo interface {
	BaseTopic() string
	Topics() []string
	Policy() retry.Policy
}

// Handler holds dependencies for API handlers.
type Handler struct {
	notifier    StatusNotifier
	publisher   booknotify.BookPublisher
	pipeline    PipelineInfo
	wishlist    booknotify.WishlistRepository
	deadLetters booknotify.DeadLetterRepository
	checks      []namedCheck
	logger      zerolog.Logger
	sendTimeout time.Duration
	now         func() time.Time
}

type namedCheck struct {
	name  string
	check HealthCheck
}

// HandlerOption configures optional Handler dependencies.
type HandlerOption func(*Handler)

// WithWishlist enables the wishlist maintenance endpoints.
func WithWishlist(repo booknotify.WishlistRepository) HandlerOption {
	return func(h *Handler) { h.wishlist = repo }
}

// WithDeadLetters enables the dead-letter inspection endpoints.
func WithDeadLetters(repo booknotify.DeadLetterRepository) HandlerOption {
	return func(h *Handler) { h.deadLetters = repo }
}

// WithHealthCheck adds a dependency check to the health endpoint.
func WithHealthCheck(name string, check HealthCheck) HandlerOption {
	return func(h *Handler) { h.checks = append(h.checks, namedCheck{name: name, check: check}) }
}

// WithSendTimeout bounds how long a request waits for broker acknowledgements.
func WithSendTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) { h.sendTimeout = d }
}

// NewHandler creates a new API handler.
func NewHandler(
	notifier StatusNotifier,
	publisher booknotify.BookPublisher,
	pipeline PipelineInfo,
	logger zerolog.Logger,
	opts ...HandlerOption,
) *Handler {
	h := &Handler{
		notifier:    notifier,
		publisher:   publisher,
		pipeline:    pipeline,
		logger:      logger,
		sendTimeout: 10 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// StatusChangeRequest reports a book status transition.
type StatusChangeRequest struct {
	Title          string                   `json:"title"`
	Status         model.AvailabilityStatus `json:"status"`
	PreviousStatus model.AvailabilityStatus `json:"previousStatus"`
}

// Validate checks that both statuses are known.
func (m StatusChangeRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Title, validation.Required),
		validation.Field(&m.Status, validation.Required, validation.By(knownStatus)),
		validation.Field(&m.PreviousStatus, validation.Required, validation.By(knownStatus)),
	)
}

func knownStatus(value any) error {
	if status, _ := value.(model.AvailabilityStatus); !status.IsValid() {
		return errors.New("must be AVAILABLE or BORROWED")
	}
	return nil
}

// NotifyRequest publishes notifications for an explicit list of users.
type NotifyRequest struct {
	Title   string  `json:"title"`
	UserIDs []int64 `json:"userIds"`
}

// WishlistRequest adds a user to a book's wishlist.
type WishlistRequest struct {
	UserID int64 `json:"userId"`
}

// Validate checks the user id.
func (m WishlistRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.UserID, validation.Required, validation.Min(int64(1))),
	)
}

// ResolveRequest marks a dead letter as handled.
type ResolveRequest struct {
	ResolvedBy string `json:"resolvedBy"`
	Note       string `json:"note"`
}

// Validate checks that the resolver is named.
func (m ResolveRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ResolvedBy, validation.Required, validation.Length(1, 255)),
	)
}

// DeadLetterView is a dead letter with its age at response time.
type DeadLetterView struct {
	model.DeadLetter
	AgeSeconds float64 `json:"ageSeconds"`
}

// DeadLetterStats summarises the unresolved dead letters.
type DeadLetterStats struct {
	Unresolved       int     `json:"unresolved"`
	OldestAgeSeconds float64 `json:"oldestAgeSeconds"`
	StaleAfter       string  `json:"staleAfter"`
	Stale            bool    `json:"stale"`
}

// PublishResponse lists the deliveries a request produced.
type PublishResponse struct {
	Published   int      `json:"published"`
	DeliveryIDs []string `json:"deliveryIds"`
}

// TopicsResponse describes the stage topics and retry schedule.
type TopicsResponse struct {
	BaseTopic       string   `json:"baseTopic"`
	Topics          []string `json:"topics"`
	DeadLetterTopic string   `json:"deadLetterTopic"`
	MaxAttempts     int      `json:"maxAttempts"`
	Schedule        []string `json:"schedule"`
	Description     string   `json:"description"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// HandleHealth handles GET /notification/health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, c := range h.checks {
		if err := c.check(r.Context()); err != nil {
			h.logger.Warn().Err(err).Str("dependency", c.name).Msg("Health check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(c.name + " unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(HealthMessage))
}

// HandleStatusChange handles POST /api/v1/books/{bookID}/status
func (h *Handler) HandleStatusChange(w http.ResponseWriter, r *http.Request) {
	bookID, ok := h.bookID(w, r)
	if !ok {
		return
	}

	var req StatusChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), booknotify.ErrCodeValidation)
		return
	}

	book := model.Book{ID: bookID, Title: req.Title, Status: req.Status}
	outcomes, err := h.notifier.BookStatusChanged(r.Context(), book, req.PreviousStatus)
	if err != nil {
		h.respondFailure(w, err)
		return
	}

	h.respondPublished(w, r, outcomes)
}

// HandleNotify handles POST /api/v1/books/{bookID}/notifications
func (h *Handler) HandleNotify(w http.ResponseWriter, r *http.Request) {
	bookID, ok := h.bookID(w, r)
	if !ok {
		return
	}

	var req NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	outcomes, err := h.publisher.Publish(r.Context(), bookID, req.Title, req.UserIDs)
	if err != nil {
		h.respondFailure(w, err)
		return
	}

	h.respondPublished(w, r, outcomes)
}

// HandleTopics handles GET /api/v1/pipeline/topics
func (h *Handler) HandleTopics(w http.ResponseWriter, r *http.Request) {
	policy := h.pipeline.Policy()

	schedule := make([]string, 0, policy.StageCount())
	for _, d := range policy.Schedule() {
		schedule = append(schedule, d.String())
	}

	h.respondSuccess(w, http.StatusOK, TopicsResponse{
		BaseTopic:       h.pipeline.BaseTopic(),
		Topics:          h.pipeline.Topics(),
		DeadLetterTopic: booknotify.DeadLetterTopic(h.pipeline.BaseTopic()),
		MaxAttempts:     policy.MaxAttempts,
		Schedule:        schedule,
		Description:     policy.String(),
	}, "")
}

// HandleListWishlist handles GET /api/v1/books/{bookID}/wishlist
func (h *Handler) HandleListWishlist(w http.ResponseWriter, r *http.Request) {
	bookID, ok := h.bookID(w, r)
	if !ok {
		return
	}

	users, err := h.wishlist.SubscribersOf(r.Context(), bookID)
	if err != nil && !booknotify.IsNoData(err) {
		h.respondFailure(w, err)
		return
	}
	if users == nil {
		users = []int64{}
	}

	h.respondSuccess(w, http.StatusOK, users, "")
}

// HandleAddWishlist handles POST /api/v1/books/{bookID}/wishlist
func (h *Handler) HandleAddWishlist(w http.ResponseWriter, r *http.Request) {
	bookID, ok := h.bookID(w, r)
	if !ok {
		return
	}

	var req WishlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), booknotify.ErrCodeValidation)
		return
	}

	if err := h.wishlist.Add(r.Context(), req.UserID, bookID); err != nil {
		h.respondFailure(w, err)
		return
	}

	h.respondSuccess(w, http.StatusCreated, nil, "Added to wishlist")
}

// HandleRemoveWishlist handles DELETE /api/v1/books/{bookID}/wishlist/{userID}
func (h *Handler) HandleRemoveWishlist(w http.ResponseWriter, r *http.Request) {
	bookID, ok := h.bookID(w, r)
	if !ok {
		return
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		h.respondError(w, http.StatusBadRequest, "Invalid user ID", booknotify.ErrCodeValidation)
		return
	}

	if err := h.wishlist.Remove(r.Context(), userID, bookID); err != nil {
		h.respondFailure(w, err)
		return
	}

	h.respondSuccess(w, http.StatusOK, nil, "Removed from wishlist")
}

// HandleListDeadLetters handles GET /api/v1/dead-letters?limit=N&olderThan=D
//
// Without olderThan it lists unresolved dead letters; with it, every dead
// letter older than D (a Go duration such as 30m or 24h).
func (h *Handler) HandleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.respondError(w, http.StatusBadRequest, "Invalid limit", booknotify.ErrCodeValidation)
			return
		}
		limit = n
	}

	var (
		letters []model.DeadLetter
		err     error
	)
	if raw := r.URL.Query().Get("olderThan"); raw != "" {
		threshold, ok := h.duration(w, "olderThan", raw)
		if !ok {
			return
		}
		letters, err = h.deadLetters.FindOlderThan(r.Context(), threshold, limit)
	} else {
		letters, err = h.deadLetters.FindUnresolved(r.Context(), limit)
	}
	if err != nil && !booknotify.IsNoData(err) {
		h.respondFailure(w, err)
		return
	}

	now := h.now()
	views := make([]DeadLetterView, 0, len(letters))
	for i := range letters {
		views = append(views, DeadLetterView{
			DeadLetter: letters[i],
			AgeSeconds: letters[i].GetAge(now).Seconds(),
		})
	}

	h.respondSuccess(w, http.StatusOK, views, "")
}

// HandleDeadLetterStats handles GET /api/v1/dead-letters/stats?staleAfter=D
func (h *Handler) HandleDeadLetterStats(w http.ResponseWriter, r *http.Request) {
	staleAfter := DefaultStaleAfter
	if raw := r.URL.Query().Get("staleAfter"); raw != "" {
		d, ok := h.duration(w, "staleAfter", raw)
		if !ok {
			return
		}
		staleAfter = d
	}

	count, err := h.deadLetters.CountUnresolved(r.Context())
	if err != nil {
		h.respondFailure(w, err)
		return
	}

	stats := DeadLetterStats{Unresolved: count, StaleAfter: staleAfter.String()}
	if count > 0 {
		oldest, err := h.deadLetters.FindUnresolved(r.Context(), 1)
		if err != nil && !booknotify.IsNoData(err) {
			h.respondFailure(w, err)
			return
		}
		if len(oldest) > 0 {
			now := h.now()
			stats.OldestAgeSeconds = oldest[0].GetAge(now).Seconds()
			stats.Stale = oldest[0].IsOld(now, staleAfter)
		}
	}

	h.respondSuccess(w, http.StatusOK, stats, "")
}

// HandleResolveDeadLetter handles POST /api/v1/dead-letters/{id}/resolve
func (h *Handler) HandleResolveDeadLetter(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, http.StatusBadRequest, "Invalid dead letter ID", booknotify.ErrCodeValidation)
		return
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error(), booknotify.ErrCodeValidation)
		return
	}

	if err := h.deadLetters.Resolve(r.Context(), id, req.ResolvedBy, req.Note); err != nil {
		h.respondFailure(w, err)
		return
	}

	h.respondSuccess(w, http.StatusOK, nil, "Dead letter resolved")
}

func (h *Handler) duration(w http.ResponseWriter, name, raw string) (time.Duration, bool) {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		h.respondError(w, http.StatusBadRequest, "Invalid "+name, booknotify.ErrCodeValidation)
		return 0, false
	}
	return d, true
}

func (h *Handler) bookID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "bookID"), 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, http.StatusBadRequest, "Invalid book ID", booknotify.ErrCodeValidation)
		return 0, false
	}
	return id, true
}

// respondPublished waits for every send to be acknowledged before answering,
// so a 202 means the events are on the topic.
func (h *Handler) respondPublished(w http.ResponseWriter, r *http.Request, outcomes []*booknotify.PublishOutcome) {
	ctx := r.Context()
	if h.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.sendTimeout)
		defer cancel()
	}

	if err := booknotify.AwaitAll(ctx, outcomes); err != nil {
		h.respondFailure(w, err)
		return
	}

	ids := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		ids = append(ids, o.DeliveryID)
	}
	h.respondSuccess(w, http.StatusAccepted, PublishResponse{Published: len(ids), DeliveryIDs: ids}, "")
}

// respondFailure maps a booknotify error to an HTTP status.
func (h *Handler) respondFailure(w http.ResponseWriter, err error) {
	var bnErr *booknotify.Error
	if !errors.As(err, &bnErr) {
		h.logger.Error().Err(err).Msg("Request failed")
		h.respondError(w, http.StatusInternalServerError, "Internal error", "")
		return
	}

	status := http.StatusInternalServerError
	switch bnErr.Code {
	case booknotify.ErrCodeValidation:
		status = http.StatusBadRequest
	case booknotify.ErrCodeNoData:
		status = http.StatusNotFound
	case booknotify.ErrCodePublish:
		status = http.StatusBadGateway
	case booknotify.ErrCodeDatabase:
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("code", bnErr.Code).Msg("Request failed")
	}

	h.respondError(w, status, bnErr.Message, bnErr.Code)
}

// respondSuccess sends a success response.
func (h *Handler) respondSuccess(w http.ResponseWriter, status int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	}); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError sends an error response.
func (h *Handler) respondError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(status),
		Code:    code,
		Message: message,
	}); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode error response")
	}
}
