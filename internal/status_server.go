package internal

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"secret-santa/contract"
	"secret-santa/repositories"
	"secret-santa/runtime/conversation"
	"secret-santa/runtime/workers"
	"secret-santa/storage"
)

//go:embed inspect.html
var templatesFS embed.FS

var _ contract.Worker = (*StatusServer)(nil)

// StatusSources are read on each request. Nil functions are skipped.
type StatusSources struct {
	Stats    func() storage.Stats
	Snapshot func() repositories.Snapshot
	Health   func() *workers.Health
	Sessions func() map[conversation.Kind]int
	Restarts func() map[string]int
}

type InspectRow struct {
	ID           string
	Title        string
	JoinCode     string
	Budget       int
	GiftDate     string
	Participants int
	Organizer    string
	Drawn        bool
	Active       bool
}

type PageData struct {
	Stats storage.Stats
	Rooms []InspectRow
}

// StatusServer exposes liveness and a read-only view of the rooms over HTTP.
// Assignments are never shown.
type StatusServer struct {
	address string
	sources StatusSources
	engine  *gin.Engine
	log     *slog.Logger
}

func NewStatusServer(address string, sources StatusSources, log *slog.Logger) *StatusServer {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.SetHTMLTemplate(template.Must(template.ParseFS(templatesFS, "inspect.html")))

	s := &StatusServer{address: address, sources: sources, engine: r, log: log}
	r.GET("/", s.index)
	r.GET("/health", s.health)
	r.GET("/inspect", s.inspect)
	return s
}

func (s *StatusServer) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done.
func (s *StatusServer) Run(ctx context.Context) error {
	server := &http.Server{Addr: s.address, Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		s.log.Info("Starting status server", "address", s.address)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *StatusServer) index(c *gin.Context) {
	c.String(http.StatusOK, "Secret Santa bot is running")
}

func (s *StatusServer) health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if s.sources.Stats != nil {
		stats := s.sources.Stats()
		body["store"] = stats
		if stats.Dirty {
			body["status"] = "degraded"
		}
	}
	if s.sources.Health != nil {
		if h := s.sources.Health(); h != nil {
			body["process"] = h
		}
	}
	if s.sources.Sessions != nil {
		body["sessions"] = s.sources.Sessions()
	}
	if s.sources.Restarts != nil {
		body["restarts"] = s.sources.Restarts()
	}
	c.JSON(http.StatusOK, body)
}

func (s *StatusServer) inspect(c *gin.Context) {
	data := PageData{}
	if s.sources.Stats != nil {
		data.Stats = s.sources.Stats()
	}
	if s.sources.Snapshot != nil {
		data.Rooms = lo.Map(s.sources.Snapshot().Rooms, func(r repositories.RoomRecord, _ int) InspectRow {
			return toInspectRow(r)
		})
	}
	c.HTML(http.StatusOK, "inspect.html", data)
}

func toInspectRow(r repositories.RoomRecord) InspectRow {
	organizer, _ := lo.Find(r.Participants, func(p repositories.ParticipantRecord) bool {
		return p.UserID == r.AdminID
	})
	return InspectRow{
		ID:           r.ID,
		Title:        r.Title,
		JoinCode:     r.JoinCode,
		Budget:       r.Budget,
		GiftDate:     r.GiftDate,
		Participants: len(r.Participants),
		Organizer:    organizer.DisplayName,
		Drawn:        r.AssignmentDone,
		Active:       r.Active,
	}
}
