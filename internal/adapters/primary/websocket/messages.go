package websocket

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/lorrc/ups-collab/internal/core/domain"
	apperrors "github.com/lorrc/ups-collab/internal/core/errors"
	"github.com/lorrc/ups-collab/internal/core/services"
)

// Client message types.
const (
	MsgCursor           = "cursor"
	MsgTyping           = "typing"
	MsgCommentList      = "comment.list"
	MsgCommentCreate    = "comment.create"
	MsgCommentUpdate    = "comment.update"
	MsgCommentDelete    = "comment.delete"
	MsgCommentResolve   = "comment.resolve"
	MsgCommentAssign    = "comment.assign"
	MsgCommentReply     = "comment.reply"
	MsgCommentReplies   = "comment.replies"
	MsgCommentReact     = "comment.react"
	MsgCommentUnreact   = "comment.unreact"
	MsgCommentAnalyze   = "comment.analyze"
	MsgCommentSuggest   = "comment.suggest"
	MsgCommentInsights  = "comment.insights"
	MsgExport           = "export"
	MsgExportSchedule   = "export.schedule"
	MsgExportHistory    = "export.history"
	MsgNotificationList = "notification.list"
	MsgNotificationRead = "notification.read"
	MsgNotificationAll  = "notification.read_all"
	MsgNotificationDrop = "notification.dismiss"
	MsgNotificationWipe = "notification.clear"
	MsgNotificationPref = "notification.preferences"
	MsgFilterList       = "filter.list"
	MsgFilterSave       = "filter.save"
	MsgFilterDelete     = "filter.delete"
	MsgFilterLoad       = "filter.load"
	MsgMonitoringStart  = "monitoring.start"
	MsgMonitoringStop   = "monitoring.stop"
	MsgPing             = "ping"
)

// ClientMessage is the structure for messages sent from the client. ID is
// echoed in the reply.
type ClientMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage answers a ClientMessage. Events are written in the event
// wire format instead.
type ServerMessage struct {
	ID     string       `json:"id,omitempty"`
	Type   string       `json:"type"`
	Result any          `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail describes a failed client message.
type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// --- payloads ---

type cursorPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type typingPayload struct {
	IsTyping  bool       `json:"isTyping"`
	CommentID *uuid.UUID `json:"commentId,omitempty"`
}

type commentRef struct {
	CommentID uuid.UUID `json:"commentId"`
}

type createCommentPayload struct {
	Content   string           `json:"content"`
	Priority  domain.Priority  `json:"priority,omitempty"`
	Assignee  *uuid.UUID       `json:"assignee,omitempty"`
	MediaType domain.MediaType `json:"mediaType,omitempty"`
	Position  *domain.Position `json:"position,omitempty"`
	Mentions  []uuid.UUID      `json:"mentions,omitempty"`
}

type replyPayload struct {
	CommentID uuid.UUID       `json:"commentId"`
	Content   string          `json:"content"`
	Priority  domain.Priority `json:"priority,omitempty"`
	Mentions  []uuid.UUID     `json:"mentions,omitempty"`
}

type reactionPayload struct {
	CommentID uuid.UUID           `json:"commentId"`
	Reaction  domain.ReactionType `json:"reaction"`
}

type updateCommentPayload struct {
	CommentID uuid.UUID           `json:"commentId"`
	Patch     domain.CommentPatch `json:"patch"`
}

type assignCommentPayload struct {
	CommentID uuid.UUID `json:"commentId"`
	Assignee  uuid.UUID `json:"assignee"`
}

type listCommentsPayload struct {
	Filter domain.FilterConfig `json:"filter"`
}

type exportPayload struct {
	Format          domain.ExportFormat `json:"format"`
	IncludeResolved bool                `json:"includeResolved"`
}

type schedulePayload struct {
	exportPayload
	RunAt time.Time `json:"runAt"`
}

type notificationRef struct {
	ID uuid.UUID `json:"id"`
}

type notificationPrefsPayload struct {
	Priorities []domain.Priority `json:"priorities,omitempty"`
	Enabled    *bool             `json:"enabled,omitempty"`
}

type filterPayload struct {
	Name   string              `json:"name"`
	Config domain.FilterConfig `json:"config"`
}

type filterLoadResult struct {
	Name     string              `json:"name"`
	Config   domain.FilterConfig `json:"config"`
	Comments []domain.Comment    `json:"comments"`
}

type monitoringResult struct {
	Running bool                    `json:"running"`
	Latest  *domain.MetricsSnapshot `json:"latest,omitempty"`
}

// --- dispatch ---

type handlerFunc func(ctx context.Context, s *services.Session, payload json.RawMessage) (any, error)

type route struct {
	handle handlerFunc
	// async routes wait on remote work and run off the read loop.
	async bool
}

var routes = map[string]route{
	MsgTyping:           {handle: handleTyping},
	MsgCommentList:      {handle: handleCommentList},
	MsgCommentCreate:    {handle: handleCommentCreate},
	MsgCommentUpdate:    {handle: handleCommentUpdate},
	MsgCommentDelete:    {handle: handleCommentDelete},
	MsgCommentResolve:   {handle: handleCommentResolve},
	MsgCommentAssign:    {handle: handleCommentAssign},
	MsgCommentReply:     {handle: handleCommentReply},
	MsgCommentReplies:   {handle: handleCommentReplies},
	MsgCommentReact:     {handle: handleCommentReact},
	MsgCommentUnreact:   {handle: handleCommentUnreact},
	MsgCommentAnalyze:   {handle: handleCommentAnalyze, async: true},
	MsgCommentSuggest:   {handle: handleCommentSuggest, async: true},
	MsgCommentInsights:  {handle: handleCommentInsights, async: true},
	MsgExport:           {handle: handleExport, async: true},
	MsgExportSchedule:   {handle: handleExportSchedule},
	MsgExportHistory:    {handle: handleExportHistory, async: true},
	MsgNotificationList: {handle: handleNotificationList},
	MsgNotificationRead: {handle: handleNotificationRead},
	MsgNotificationAll:  {handle: handleNotificationReadAll},
	MsgNotificationDrop: {handle: handleNotificationDismiss},
	MsgNotificationWipe: {handle: handleNotificationClear},
	MsgNotificationPref: {handle: handleNotificationPreferences},
	MsgFilterList:       {handle: handleFilterList},
	MsgFilterSave:       {handle: handleFilterSave},
	MsgFilterDelete:     {handle: handleFilterDelete},
	MsgFilterLoad:       {handle: handleFilterLoad},
	MsgMonitoringStart:  {handle: handleMonitoringStart},
	MsgMonitoringStop:   {handle: handleMonitoringStop},
}

// handleIncomingMessage processes messages received from the client
func (c *Client) handleIncomingMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("failed to unmarshal client message", "error", err)
		c.reply(ServerMessage{Type: "error", Error: &ErrorDetail{Code: "BAD_REQUEST", Message: "malformed message"}})
		return
	}

	switch msg.Type {
	case MsgPing:
		// Client-side keep-alive, respond with pong
		c.reply(ServerMessage{ID: msg.ID, Type: "pong"})
		return

	case MsgCursor:
		// Cursor frames are fire and forget; excess frames are dropped.
		if !c.cursorLimiter.Allow() {
			return
		}
		if _, err := handleCursor(c.ctx, c.session, msg.Payload); err != nil && msg.ID != "" {
			c.replyError(msg.ID, err)
		}
		return
	}

	r, ok := routes[msg.Type]
	if !ok {
		c.logger.Debug("received unknown message type", "type", msg.Type)
		c.reply(ServerMessage{ID: msg.ID, Type: "error", Error: &ErrorDetail{Code: "UNKNOWN_TYPE", Message: "unknown message type " + msg.Type}})
		return
	}

	run := func() {
		result, err := r.handle(c.ctx, c.session, msg.Payload)
		if err != nil {
			c.replyError(msg.ID, err)
			return
		}
		c.reply(ServerMessage{ID: msg.ID, Type: "ack", Result: result})
	}
	if r.async {
		c.goAsync(run)
		return
	}
	run()
}

func (c *Client) reply(msg ServerMessage) {
	frame, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal reply", "type", msg.Type, "error", err)
		return
	}
	c.queue(frame)
}

func (c *Client) replyError(id string, err error) {
	detail := errorDetail(err)
	if detail.Code == "INTERNAL_ERROR" {
		c.logger.Error("client message failed", "error", err)
	}
	c.reply(ServerMessage{ID: id, Type: "error", Error: detail})
}

// errorDetail maps domain errors to client-facing codes.
func errorDetail(err error) *ErrorDetail {
	var validationErrs *apperrors.ValidationErrors
	if errors.As(err, &validationErrs) {
		return &ErrorDetail{Code: "VALIDATION_ERROR", Message: "validation failed", Fields: validationErrs.Errors}
	}

	switch {
	case errors.Is(err, errBadPayload),
		errors.Is(err, apperrors.ErrCommentContentRequired),
		errors.Is(err, apperrors.ErrCommentContentTooLong),
		errors.Is(err, apperrors.ErrEmptyPatch),
		errors.Is(err, apperrors.ErrInvalidPriority),
		errors.Is(err, apperrors.ErrInvalidStatus),
		errors.Is(err, apperrors.ErrInvalidMediaType),
		errors.Is(err, apperrors.ErrInvalidPosition),
		errors.Is(err, apperrors.ErrReplyPosition),
		errors.Is(err, apperrors.ErrTooManyMentions),
		errors.Is(err, apperrors.ErrInvalidReaction),
		errors.Is(err, apperrors.ErrInvalidExportFormat),
		errors.Is(err, apperrors.ErrScheduleInPast),
		errors.Is(err, apperrors.ErrFilterNameRequired),
		errors.Is(err, apperrors.ErrInvalidCoordinates):
		return &ErrorDetail{Code: "BAD_REQUEST", Message: err.Error()}
	case errors.Is(err, apperrors.ErrFeatureDisabled):
		return &ErrorDetail{Code: "FEATURE_DISABLED", Message: err.Error()}
	case errors.Is(err, apperrors.ErrCommentNotFound),
		errors.Is(err, apperrors.ErrFilterNotFound),
		errors.Is(err, apperrors.ErrNotFound):
		return &ErrorDetail{Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, apperrors.ErrExportInProgress):
		return &ErrorDetail{Code: "CONFLICT", Message: err.Error()}
	case errors.Is(err, apperrors.ErrSessionClosed), errors.Is(err, context.Canceled):
		return &ErrorDetail{Code: "SESSION_CLOSED", Message: apperrors.ErrSessionClosed.Error()}
	case errors.Is(err, apperrors.ErrForbidden):
		return &ErrorDetail{Code: "FORBIDDEN", Message: err.Error()}
	}
	return &ErrorDetail{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}
}

var errBadPayload = errors.New("malformed payload")

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, errors.Join(errBadPayload, err)
	}
	return v, nil
}

// --- handlers ---

func handleCursor(ctx context.Context, s *services.Session, raw json.RawMessage) (any, error) {
	p, err := decode[cursorPayload](raw)
	if err != nil {
		return nil, err
	}
	return nil, s.Presence.UpdateCursor(ctx, p.X, p.Y)
}

func handleTyping(ctx context.Context, s *services.Session, raw json.RawMessage) (any, error) {
	p, err := decode[typingPayload](raw)
	if err != nil {
		return nil, err
	}
	return nil, s.Presence.SetTyping(ctx, p.IsTyping, p.CommentID)
}

func handleCommentList(_ context.Context, s *services.Session, raw json.RawMessage) (any, error) {
	p, err := decode[listCommentsPayload](raw)
	if err != nil {
		return nil, err
	}
	return s.Comments.Comments(p.Filter), nil
}

func handleCommentCreate(ctx context.Context, s *services.Session, raw json.RawMessage) (any, error) {
	p, err := decode[createCommentPayload](raw)
	if err != nil {
		return nil, err
	}
	return s.Comments.CreateComment(ctx, services.CreateCommentParams{
		Content:   p.Content,
		Priority:  p.Priority,
		Assignee:  p.Assignee,
		MediaType: p.MediaType,
		Position:  p.Position,
		Mentions:  p.Mentions,
	})
}

func handleCommentReply(ctx context.Context, s *services.Session, raw json.RawMessage) (any, error) {
	p, err := decode[replyPayload](raw)
	if err != nil {
		return nil, err
	}
	return s.Comments.ReplyToComment(ctx, p.CommentID, services.CreateCommentParams{
		Content:  p.Content,
		Priority: p.Priority,
		Mentions: p.Mentions,
	})
}

func handleCommentReplies(_ context.Context, s *services.Session, raw json.RawMessage) (any, error) {
	p, err := decode[commentRef](raw)
	if err != nil {
		return nil, err
	}
	if _, ok := s.Comments.Comment(p.CommentID); !ok {
		return nil, apperrors.ErrCommentNotFound
	}
	return s.Comments.Replies(p.CommentID), nil
}

func handleCommentReact(ctx context.Context, s *services.Session, raw json.RawMessage) (any, error) {
	p, err := decode[reactionPayload](raw)
	if err != nil {
		return nil, err
	}
	return s.Comments.AddReaction(ctx, p.CommentID, p.Reaction)
}

func handleCommentUnreact(ctx context.Context, s *services.Session, raw json.RawMessage) (any, error) {
	p, err := decode[reactionPayload](raw)
	if err != nil {
		return nil, err
	}
	return s.Comments.RemoveReaction(ctx, p.CommentID, p.Reaction)
}

func handleCommentUpdate(ctx context.Context, s *services.Session, raw json.RawMessage) (any, error) {
	p, err := decode[updateCommentPayload](raw)
	if err != nil {
		return nil, err
	}
	return s.Comments.UpdateComment(ctx, p.CommentID, p.Patch)
}

func handleCommentDelete(ctx context.Context, s *services.Session, raw json.RawMessage) (any, error) {
	p, err := decode[commentRef](raw)
	if err != nil {
		return nil, err
	}
	return nil, s.Comments.DeleteComment(ctx, p.CommentID)
}

func handleCommentResolve(ctx context.Context, s *services.Session, raw json.RawMessage) (any, error) {
	p, err := decode[commentRef](raw)
	if err != nil {
		return nil, err
	}
	return s.Comments.ResolveComment(ctx, p.CommentID)
}

func handleCommentAssign(ctx context.Context, s *services.Session, raw json.RawMessage) (any, error) {
	p, err := decode[assignCommentPayload](raw)
	if err != nil {
		return nil, err
	}
	return s.Comments.AssignComment(ctx, p.CommentID, p.Assignee)
}

func handleCommentAnalyze(ctx context.Context, s *services.Session, raw json.RawMessage) (any, error) {
	p, err := decode[commentRef](raw)
	if err != nil {
		return nil, err
	}
	return s.Comments.AnalyzeComment(ctx, p.CommentID)
}

func handleCommentSuggest(ctx context.Context, s *services.Session, raw json.RawMessage) (any, error) {
	p, err := decode[commentRef](raw)
	if err != nil {
		return nil, err
	}
	return s.Comments.GenerateSuggestions(ctx, p.CommentID)
}

func handleCommentInsights(ctx context.Context, s *services.Session, _ json.RawMessage) (any, error) {
	return s.Comments.GetAIInsights(ctx)
}

func exportOptions(s *services.Session, p exportPayload) domain.ExportOptions {
	return domain.ExportOptions{
		ResourceID:      s.ResourceID,
		Format:          p.Format,
		IncludeResolved: p.IncludeResolved,
	}
}

func handleExport(ctx context.Context, s *services.Session, raw json.RawMessage) (any, error) {
	p, err := decode[exportPayload](raw)
	if err != nil {
		return nil, err
	}
	exportID, err := s.Exports.ExportComments(ctx, exportOptions(s, p))
	if err != nil {
		return nil, err
	}
	return map[string]string{"exportId": exportID}, nil
}

func handleExportSchedule(ctx context.Context, s *services.Session, raw json.RawMessage) (any, error) {
	p, err := decode[schedulePayload](raw)
	if err != nil {
		return nil, err
	}
	return s.Exports.ScheduleExport(ctx, exportOptions(s, p.exportPayload), p.RunAt)
}

func handleExportHistory(ctx context.Context, s *services.Session, _ json.RawMessage) (any, error) {
	return s.Exports.ExportHistory(ctx)
}

func handleNotificationList(_ context.Context, s *services.Session, _ json.RawMessage) (any, error) {
	return s.Notifications.Visible(), nil
}

func handleNotificationRead(_ context.Context, s *services.Session, raw json.RawMessage) (any, error) {
	p, err := decode[notificationRef](raw)
	if err != nil {
		return nil, err
	}
	return nil, s.Notifications.MarkAsRead(p.ID)
}

func handleNotificationReadAll(_ context.Context, s *services.Session, _ json.RawMessage) (any, error) {
	s.Notifications.MarkAllAsRead()
	return nil, nil
}

func handleNotificationDismiss(_ context.Context, s *services.Session, raw json.RawMessage) (any, error) {
	p, err := decode[notificationRef](raw)
	if err != nil {
		return nil, err
	}
	return nil, s.Notifications.Dismiss(p.ID)
}

func handleNotificationClear(_ context.Context, s *services.Session, _ json.RawMessage) (any, error) {
	s.Notifications.ClearAll()
	return nil, nil
}

func handleNotificationPreferences(_ context.Context, s *services.Session, raw json.RawMessage) (any, error) {
	p, err := decode[notificationPrefsPayload](raw)
	if err != nil {
		return nil, err
	}
	if p.Priorities != nil {
		if err := s.Notifications.SetPriorityFilter(p.Priorities); err != nil {
			return nil, err
		}
	}
	if p.Enabled != nil {
		s.Notifications.SetEnabled(*p.Enabled)
	}
	return s.Notifications.Visible(), nil
}

func handleFilterList(_ context.Context, s *services.Session, _ json.RawMessage) (any, error) {
	return s.Filters.SavedFilters(), nil
}

func handleFilterSave(ctx context.Context, s *services.Session, raw json.RawMessage) (any, error) {
	p, err := decode[filterPayload](raw)
	if err != nil {
		return nil, err
	}
	if err := s.Filters.SaveFilter(ctx, p.Name, p.Config); err != nil {
		return nil, err
	}
	return s.Filters.FilterNames(), nil
}

func handleFilterDelete(ctx context.Context, s *services.Session, raw json.RawMessage) (any, error) {
	p, err := decode[filterPayload](raw)
	if err != nil {
		return nil, err
	}
	if err := s.Filters.DeleteFilter(ctx, p.Name); err != nil {
		return nil, err
	}
	return s.Filters.FilterNames(), nil
}

// handleFilterLoad returns a saved filter together with the comments it selects.
func handleFilterLoad(_ context.Context, s *services.Session, raw json.RawMessage) (any, error) {
	p, err := decode[filterPayload](raw)
	if err != nil {
		return nil, err
	}
	cfg, err := s.Filters.LoadFilter(p.Name)
	if err != nil {
		return nil, err
	}
	return filterLoadResult{Name: p.Name, Config: cfg, Comments: s.Comments.Comments(cfg)}, nil
}

func handleMonitoringStart(ctx context.Context, s *services.Session, _ json.RawMessage) (any, error) {
	s.Monitor.Start(ctx)
	return monitoringStatus(s), nil
}

func handleMonitoringStop(_ context.Context, s *services.Session, _ json.RawMessage) (any, error) {
	s.Monitor.Stop()
	return monitoringStatus(s), nil
}

func monitoringStatus(s *services.Session) monitoringResult {
	result := monitoringResult{Running: s.Monitor.Running()}
	if latest, ok := s.Monitor.Latest(); ok {
		result.Latest = &latest
	}
	return result
}
