package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/borgmon/alarm-clock/pkg/calendar"
	"github.com/borgmon/alarm-clock/pkg/manager"
	"github.com/borgmon/alarm-clock/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maximum accepted iCalendar upload
const maxCalendarBody = 4 << 20

// Server exposes a Module over HTTP
type Server struct {
	echo     *echo.Echo
	module   *Module
	importer *calendar.Importer
}

// NewServer builds the router. A nil gatherer leaves /metrics unrouted.
func NewServer(module *Module, importer *calendar.Importer, gatherer prometheus.Gatherer) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, module: module, importer: importer}

	g := e.Group("/api/v1")
	g.GET("/state", s.getState)
	g.GET("/alarms", s.listAlarms)
	g.POST("/alarms", s.createAlarm)
	g.DELETE("/alarms", s.removeAll)
	g.GET("/alarms/:uid", s.getAlarm)
	g.PUT("/alarms/:uid", s.updateAlarm)
	g.DELETE("/alarms/:uid", s.removeAlarm)
	g.POST("/alarms/:uid/enable", s.enableAlarm)
	g.POST("/alarms/:uid/disable", s.disableAlarm)
	g.POST("/alarms/:uid/ring", s.ringAlarm)
	g.POST("/stop", s.stop)
	g.POST("/snooze", s.snooze)
	g.POST("/dismiss", s.dismiss)
	g.GET("/calendar.ics", s.exportCalendar)
	g.POST("/calendar", s.importCalendar)

	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(MetricsHandler(gatherer)))
	}
	return s
}

// MetricsHandler serves gatherer in the Prometheus exposition format
func MetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on addr until ctx is done
func (s *Server) Run(ctx context.Context, addr string) error {
	return serve(ctx, addr, s.echo)
}

func serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[API] Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Printf("[API] Server on %s stopped", addr)
		return nil
	}
}

// ServeMetrics serves only /metrics on addr until ctx is done
func ServeMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(gatherer))
	return serve(ctx, addr, mux)
}

// errorStatus maps engine error kinds to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, manager.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, manager.ErrNoActiveAlarm):
		return http.StatusConflict
	case errors.Is(err, manager.ErrInvalidAlarm):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(c echo.Context, err error) error {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("[API] Warning: %s %s: %v", c.Request().Method, c.Path(), err)
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}

func (s *Server) getState(c echo.Context) error {
	state, err := s.module.State(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, state)
}

func (s *Server) listAlarms(c echo.Context) error {
	records, err := s.module.GetAll(c.Request().Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, records)
}

// POST /api/v1/alarms
// Fields left out of the body keep the defaults of a new record.
func (s *Server) createAlarm(c echo.Context) error {
	rec := s.module.NewRecord()
	if err := c.Bind(&rec); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid alarm record"})
	}
	saved, err := s.module.Set(c.Request().Context(), rec)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, saved)
}

func (s *Server) getAlarm(c echo.Context) error {
	rec, err := s.module.Get(c.Request().Context(), c.Param("uid"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// PUT /api/v1/alarms/:uid
// The path uid wins over any uid in the body.
func (s *Server) updateAlarm(c echo.Context) error {
	var rec AlarmRecord
	if err := c.Bind(&rec); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid alarm record"})
	}
	rec.UID = c.Param("uid")
	if err := s.module.Update(c.Request().Context(), rec); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) removeAlarm(c echo.Context) error {
	if err := s.module.Remove(c.Request().Context(), c.Param("uid")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) removeAll(c echo.Context) error {
	if err := s.module.RemoveAll(c.Request().Context()); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) enableAlarm(c echo.Context) error {
	if err := s.module.Enable(c.Request().Context(), c.Param("uid")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) disableAlarm(c echo.Context) error {
	if err := s.module.Disable(c.Request().Context(), c.Param("uid")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) ringAlarm(c echo.Context) error {
	if err := s.module.Ring(c.Request().Context(), c.Param("uid")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// POST /api/v1/stop?uid=
// Without uid whatever rings is stopped.
func (s *Server) stop(c echo.Context) error {
	ctx := c.Request().Context()
	var err error
	if uid := c.QueryParam("uid"); uid != "" {
		err = s.module.engine.StopAlarm(ctx, uid)
	} else {
		err = s.module.Stop(ctx)
	}
	if err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) snooze(c echo.Context) error {
	ctx := c.Request().Context()
	var err error
	if uid := c.QueryParam("uid"); uid != "" {
		err = s.module.engine.SnoozeAlarm(ctx, uid)
	} else {
		err = s.module.Snooze(ctx)
	}
	if err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) dismiss(c echo.Context) error {
	if err := s.module.Dismiss(c.Request().Context(), c.QueryParam("uid")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) exportCalendar(c echo.Context) error {
	var buf bytes.Buffer
	if err := s.module.Export(c.Request().Context(), &buf); err != nil {
		return fail(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="alarms.ics"`)
	return c.Blob(http.StatusOK, "text/calendar; charset=utf-8", buf.Bytes())
}

// POST /api/v1/calendar?source=
// Imports from source when given, otherwise from the request body.
func (s *Server) importCalendar(c echo.Context) error {
	ctx := c.Request().Context()

	source := c.QueryParam("source")
	var (
		body []byte
		err  error
	)
	if source == "" {
		body, err = io.ReadAll(io.LimitReader(c.Request().Body, maxCalendarBody))
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		}
	}

	parsed, err := s.parseCalendar(ctx, source, body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	n, err := s.module.Import(ctx, parsed)
	resp := map[string]any{"imported": n, "found": len(parsed)}
	if err != nil {
		resp["error"] = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) parseCalendar(ctx context.Context, source string, body []byte) ([]models.Alarm, error) {
	importer := s.importer
	if importer == nil {
		importer = &calendar.Importer{}
	}
	if source != "" {
		return importer.Import(ctx, source)
	}
	return importer.Parse(string(body))
}
