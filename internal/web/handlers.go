package web

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"Inkbound/server/internal/config"
	"Inkbound/server/internal/session"
)

// WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

type Handlers struct {
	config  *config.Config
	hub     *NotificationHub
	service *session.Service
}

func NewHandlers(cfg *config.Config, hub *NotificationHub, service *session.Service) *Handlers {
	return &Handlers{
		config:  cfg,
		hub:     hub,
		service: service,
	}
}

// NewRouter wires the game-session API.
func NewRouter(cfg *config.Config, service *session.Service, hub *NotificationHub) *chi.Mux {
	r := chi.NewRouter()

	// Request logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			log.Printf("REQUEST: %s %s", req.Method, req.URL.Path)
			next.ServeHTTP(w, req)
		})
	})

	// CORS middleware
	r.Use(corsMiddleware)

	handlers := NewHandlers(cfg, hub, service)

	r.Get("/health", handlers.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/session/create", handlers.CreateSession)
		r.Route("/session/{session_id}", func(r chi.Router) {
			r.Get("/", handlers.GetSession)
			r.Delete("/", handlers.EndSession)

			r.Route("/events", func(r chi.Router) {
				r.Post("/book-discovered", handlers.BookDiscovered)
				r.Post("/puzzle-solved", handlers.PuzzleSolved)
				r.Post("/category", handlers.CategoryEntered)
				r.Post("/archive-revealed", handlers.ArchiveRevealed)
			})

			r.Route("/dialogue", func(r chi.Router) {
				r.Get("/", handlers.GetDialogue)
				r.Post("/advance", handlers.AdvanceDialogue)
				r.Post("/end", handlers.EndDialogue)
			})
		})

		r.Get("/notifications/stream", handlers.NotificationStream)
	})

	return r
}

// CORS middleware
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Max-Age", "300")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "inkbound",
	})
}

// CreateSessionRequest starts or resumes a session. An empty session id
// asks the server to mint one.
type CreateSessionRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SessionID == "" {
		req.SessionID = generateSessionID()
	}

	snap, err := h.service.StartSession(r.Context(), req.SessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(chi.URLParam(r, "session_id"))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handlers) EndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.EndSession(r.Context(), chi.URLParam(r, "session_id")); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

// BookDiscoveredRequest reports a newly discovered book.
type BookDiscoveredRequest struct {
	BookID     string `json:"book_id"`
	TotalParts int    `json:"total_parts"`
}

func (h *Handlers) BookDiscovered(w http.ResponseWriter, r *http.Request) {
	var req BookDiscoveredRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	snap, err := h.service.BookDiscovered(r.Context(), chi.URLParam(r, "session_id"), req.BookID, req.TotalParts)
	if err != nil {
		writeEventError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// PuzzleSolvedRequest reports one solved puzzle (a completed book part).
type PuzzleSolvedRequest struct {
	BookID string `json:"book_id"`
	Part   int    `json:"part"`
}

func (h *Handlers) PuzzleSolved(w http.ResponseWriter, r *http.Request) {
	var req PuzzleSolvedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	snap, err := h.service.PuzzleSolved(r.Context(), chi.URLParam(r, "session_id"), req.BookID, req.Part)
	if err != nil {
		writeEventError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// CategoryEnteredRequest reports the player browsing into a category.
type CategoryEnteredRequest struct {
	Category string `json:"category"`
}

func (h *Handlers) CategoryEntered(w http.ResponseWriter, r *http.Request) {
	var req CategoryEnteredRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	snap, err := h.service.CategoryEntered(r.Context(), chi.URLParam(r, "session_id"), req.Category)
	if err != nil {
		writeEventError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handlers) ArchiveRevealed(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.ArchiveRevealed(r.Context(), chi.URLParam(r, "session_id"))
	if err != nil {
		writeEventError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handlers) GetDialogue(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(chi.URLParam(r, "session_id"))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": snap.SessionID,
		"entries":    snap.Dialogue,
	})
}

func (h *Handlers) AdvanceDialogue(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if err := h.service.AdvanceDialogue(sessionID); err != nil {
		writeSessionError(w, err)
		return
	}
	snap, err := h.service.Snapshot(sessionID)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handlers) EndDialogue(w http.ResponseWriter, r *http.Request) {
	if err := h.service.EndDialogue(chi.URLParam(r, "session_id")); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// NotificationStream upgrades the connection and subscribes the client
// to the narrative notification feed.
func (h *Handlers) NotificationStream(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "Hub not initialized")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{
		ID:   generateClientID(),
		Conn: conn,
		Send: make(chan []byte, 256),
		Hub:  h.hub,
	}

	h.hub.register <- client

	welcome, _ := json.Marshal(map[string]interface{}{
		"type": "connected",
		"id":   client.ID,
		"time": time.Now().Unix(),
	})
	select {
	case client.Send <- welcome:
	default:
	}

	go client.readPump()
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrSessionNotActive) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeEventError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrSessionNotActive) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

// generateClientID generates a unique client ID
func generateClientID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))[:16]
	}
	return hex.EncodeToString(b)
}

// generateSessionID mints a session id for clients that did not supply
// their own.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))[:32]
	}
	return hex.EncodeToString(b)
}
