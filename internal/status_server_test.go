package internal

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"secret-santa/repositories"
	"secret-santa/runtime/conversation"
	"secret-santa/storage"
)

func newTestStatusServer(dirty bool) *StatusServer {
	target := int64(2)
	return NewStatusServer(":0", StatusSources{
		Stats: func() storage.Stats { return storage.Stats{Rooms: 1, Participants: 2, Dirty: dirty} },
		Snapshot: func() repositories.Snapshot {
			return repositories.Snapshot{Rooms: []repositories.RoomRecord{{
				ID: "a1b2c3d4", Title: "Office <2024>", AdminID: 1, Budget: 1000, GiftDate: "25.12.2025",
				JoinCode: "ABC123", Active: true, AssignmentDone: true,
				Participants: []repositories.ParticipantRecord{
					{UserID: 1, DisplayName: "Alice", TargetID: &target},
					{UserID: 2, DisplayName: "Bob"},
				},
			}}}
		},
		Sessions: func() map[conversation.Kind]int { return map[conversation.Kind]int{conversation.KindCreatingRoom: 3} },
	}, nil)
}

func get(s *StatusServer, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStatusServer_Index(t *testing.T) {
	req := require.New(t)

	rec := get(newTestStatusServer(false), "/")

	req.Equal(http.StatusOK, rec.Code)
	req.Equal("Secret Santa bot is running", rec.Body.String())
}

func TestStatusServer_Health(t *testing.T) {
	req := require.New(t)

	var body map[string]any
	rec := get(newTestStatusServer(true), "/health")
	req.Equal(http.StatusOK, rec.Code)
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &body))

	// An unsaved store degrades the status
	req.Equal("degraded", body["status"])
	req.Equal(map[string]any{"creating_room": float64(3)}, body["sessions"])
	req.NotContains(body, "process")
}

func TestStatusServer_Inspect_Hides_Assignments(t *testing.T) {
	req := require.New(t)

	rec := get(newTestStatusServer(false), "/inspect")

	req.Equal(http.StatusOK, rec.Code)
	html := rec.Body.String()
	req.Contains(html, "Office &lt;2024&gt;")
	req.Contains(html, "ABC123")
	req.Contains(html, "Alice")
	req.NotContains(html, "Bob")
	req.Contains(html, "done")
}
