package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Freeeeeet/class_scheduler/internal/export"
	"github.com/Freeeeeet/class_scheduler/internal/formatting"
	"github.com/Freeeeeet/class_scheduler/internal/model"
	"github.com/Freeeeeet/class_scheduler/internal/recurrence"
	"github.com/Freeeeeet/class_scheduler/internal/repository"
	"github.com/Freeeeeet/class_scheduler/internal/service"
)

// defaultWindowDays: окно расписания, если from/to не заданы
const defaultWindowDays = 28

// Handler обрабатывает HTTP-запросы к расписанию
type Handler struct {
	series          *service.SeriesService
	timelines       *service.TimelineService
	clock           service.Clock
	defaultTimezone string
	logger          *zap.Logger
}

func NewHandler(series *service.SeriesService, timelines *service.TimelineService, clock service.Clock, defaultTimezone string, logger *zap.Logger) *Handler {
	if clock == nil {
		clock = service.SystemClock{}
	}
	return &Handler{
		series:          series,
		timelines:       timelines,
		clock:           clock,
		defaultTimezone: defaultTimezone,
		logger:          logger,
	}
}

// CreateClass создаёт класс; без timezone используется зона по умолчанию
func (h *Handler) CreateClass(c *gin.Context) {
	var req CreateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid class data: "+err.Error())
		return
	}
	if req.Timezone == "" {
		req.Timezone = h.defaultTimezone
	}

	class, err := h.series.CreateClass(c.Request.Context(), req.Name, req.Timezone)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, APIResponse{Data: class})
}

func (h *Handler) ListClasses(c *gin.Context) {
	classes, err := h.timelines.ListClasses(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	if classes == nil {
		classes = []*model.Class{}
	}
	c.JSON(http.StatusOK, APIResponse{Data: classes})
}

func (h *Handler) GetClass(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	class, err := h.timelines.GetClass(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Data: class})
}

// CloseClass переводит класс в завершённый или отменённый статус
func (h *Handler) CloseClass(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req CloseClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid close request: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	if err := h.series.CloseClass(ctx, id, req.Status); err != nil {
		h.handleError(c, err)
		return
	}

	class, err := h.timelines.GetClass(ctx, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Data: class})
}

// ClassTimeline возвращает фактическое расписание класса за [from, to]
func (h *Handler) ClassTimeline(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	from, to, ok := h.window(c, func(ctx context.Context) (recurrence.Date, error) {
		return h.timelines.Today(ctx, id)
	})
	if !ok {
		return
	}

	ct, err := h.timelines.ClassTimeline(c.Request.Context(), id, from, to)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, APIResponse{Data: TimelineResponse{
		From:        from,
		To:          to,
		Occurrences: occurrences(ct.Occurrences),
		Errors:      seriesErrors(ct.Errors),
	}})
}

// NextOccurrence возвращает ближайшее занятие после after (по умолчанию после текущего момента)
func (h *Handler) NextOccurrence(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var after time.Time
	if raw := c.Query("after"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, "after must be an RFC 3339 timestamp")
			return
		}
		after = t
	}

	occ, errs, err := h.timelines.NextOccurrence(c.Request.Context(), id, after)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Data: NextResponse{Occurrence: occ, Errors: seriesErrors(errs)}})
}

// ClassCalendar отдаёт расписание класса в формате iCalendar
func (h *Handler) ClassCalendar(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	class, _, inputs, err := h.timelines.ClassInputs(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	var buf bytes.Buffer
	skipped, err := export.WriteClassCalendar(&buf, class, inputs, h.clock.Now())
	if err != nil {
		h.handleError(c, err)
		return
	}
	for _, e := range skipped {
		h.logger.Warn("Series skipped in calendar export",
			zap.Int64("class_id", id),
			zap.Int64("series_id", e.SeriesID),
			zap.Error(e.Err),
		)
	}

	c.Data(http.StatusOK, "text/calendar; charset=utf-8", buf.Bytes())
}

// ClassChanges возвращает журнал изменений расписания класса
func (h *Handler) ClassChanges(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}

	entries, err := h.timelines.ChangeLog(c.Request.Context(), id, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if entries == nil {
		entries = []*model.ChangeLogEntry{}
	}
	c.JSON(http.StatusOK, APIResponse{Data: entries})
}

// ClassOverrides возвращает переопределения класса с фильтрами kind/from/to/limit
func (h *Handler) ClassOverrides(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	filter := repository.OverrideFilter{ClassID: &id}
	if raw := c.Query("kind"); raw != "" {
		kind := model.OverrideKind(raw)
		if kind != model.OverrideCancelled && kind != model.OverrideMoved {
			badRequest(c, "kind must be cancelled or moved")
			return
		}
		filter.Kind = &kind
	}
	for key, dst := range map[string]**recurrence.Date{"from": &filter.From, "to": &filter.To} {
		if raw := c.Query(key); raw != "" {
			d, err := recurrence.ParseDate(raw)
			if err != nil {
				badRequest(c, key+" must be a YYYY-MM-DD date")
				return
			}
			*dst = &d
		}
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	filter.Limit = uint64(limit)

	ctx := c.Request.Context()
	if _, err := h.timelines.GetClass(ctx, id); err != nil {
		h.handleError(c, err)
		return
	}
	overrides, err := h.timelines.ListOverrides(ctx, filter)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if overrides == nil {
		overrides = []*model.Override{}
	}
	c.JSON(http.StatusOK, APIResponse{Data: overrides})
}

func (h *Handler) ListSeries(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	list, err := h.timelines.ListSeries(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	out := make([]SeriesResponse, 0, len(list))
	for _, s := range list {
		out = append(out, seriesResponse(s))
	}
	c.JSON(http.StatusOK, APIResponse{Data: out})
}

// CreateSeries разбирает правило в зоне класса и создаёт серию
func (h *Handler) CreateSeries(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req CreateSeriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid series data: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	rule, err := h.series.ParseRule(ctx, id, req.Rule)
	if err != nil {
		h.handleError(c, err)
		return
	}

	series, err := h.series.CreateSeries(ctx, id, rule, req.DurationMinutes, req.Room)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, APIResponse{Data: seriesResponse(series)})
}

func (h *Handler) SeriesTimeline(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	from, to, ok := h.window(c, func(ctx context.Context) (recurrence.Date, error) {
		return h.timelines.SeriesToday(ctx, id)
	})
	if !ok {
		return
	}

	tl, err := h.timelines.SeriesTimeline(c.Request.Context(), id, from, to)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Data: TimelineResponse{From: from, To: to, Occurrences: occurrences(tl)}})
}

// CancelOccurrence отменяет занятие серии на исходную дату
func (h *Handler) CancelOccurrence(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid cancel request: "+err.Error())
		return
	}
	if req.SourceDate.IsZero() {
		badRequest(c, "source_date is required")
		return
	}

	override, err := h.series.Cancel(c.Request.Context(), id, req.SourceDate, req.Reason)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, APIResponse{Data: override})
}

// RescheduleOccurrence переносит занятие серии с исходной даты на новое время
func (h *Handler) RescheduleOccurrence(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid reschedule request: "+err.Error())
		return
	}
	if req.SourceDate.IsZero() || req.NewStart.IsZero() || req.NewEnd.IsZero() {
		badRequest(c, "source_date, new_start and new_end are required")
		return
	}

	override, err := h.series.Reschedule(c.Request.Context(), id, req.SourceDate, req.NewStart, req.NewEnd, req.Room)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Data: override})
}

// SplitSeries закрывает серию накануне cutover_date и начинает новую с другим правилом
func (h *Handler) SplitSeries(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req SplitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid split request: "+err.Error())
		return
	}
	if req.CutoverDate.IsZero() {
		badRequest(c, "cutover_date is required")
		return
	}

	ctx := c.Request.Context()
	rule, err := h.series.ParseSeriesRule(ctx, id, req.Rule)
	if err != nil {
		h.handleError(c, err)
		return
	}

	next, err := h.series.SplitSeries(ctx, id, service.SplitRequest{
		Rule:             rule,
		DurationMinutes:  req.DurationMinutes,
		Room:             req.Room,
		Cutover:          req.CutoverDate,
		AllowPastCutover: req.AllowPastCutover,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, APIResponse{Data: seriesResponse(next)})
}

// RestoreOverride удаляет переопределение, возвращая занятие к правилу
func (h *Handler) RestoreOverride(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.series.Restore(c.Request.Context(), id); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// window читает from/to; без них берутся четыре недели с сегодняшнего дня в зоне класса
func (h *Handler) window(c *gin.Context, today func(ctx context.Context) (recurrence.Date, error)) (recurrence.Date, recurrence.Date, bool) {
	var from recurrence.Date
	if raw := c.Query("from"); raw != "" {
		d, err := recurrence.ParseDate(raw)
		if err != nil {
			badRequest(c, "from must be a YYYY-MM-DD date")
			return recurrence.Date{}, recurrence.Date{}, false
		}
		from = d
	} else {
		d, err := today(c.Request.Context())
		if err != nil {
			h.handleError(c, err)
			return recurrence.Date{}, recurrence.Date{}, false
		}
		from = d
	}

	to := from.AddDays(defaultWindowDays - 1)
	if raw := c.Query("to"); raw != "" {
		d, err := recurrence.ParseDate(raw)
		if err != nil {
			badRequest(c, "to must be a YYYY-MM-DD date")
			return recurrence.Date{}, recurrence.Date{}, false
		}
		to = d
	}
	return from, to, true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		badRequest(c, key+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func seriesResponse(s *model.EventSeries) SeriesResponse {
	resp := SeriesResponse{EventSeries: s}
	if s.RuleErr == nil {
		resp.Summary = formatting.DescribeRule(s.Rule, s.DurationMinutes)
	}
	return resp
}
