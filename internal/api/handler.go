// Package api exposes the conversation agent over HTTP: the chat
// endpoint, session inspection, corpus reload, and health.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sabitax/sabitax/internal/agent"
	"github.com/sabitax/sabitax/internal/conversation"
	"github.com/sabitax/sabitax/internal/corpus"
	"github.com/sabitax/sabitax/internal/retrieval"
	"github.com/sabitax/sabitax/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

const minMessageLen = 5

// ChatAgent is the conversation core as the HTTP layer consumes it.
type ChatAgent interface {
	Chat(ctx context.Context, sessionID, message string, role agent.Role) (*agent.Result, error)
	Title(ctx context.Context, sessionID string) string
}

// Rebuilder is the corpus indexer surface used by the reload endpoint.
type Rebuilder interface {
	Build(ctx context.Context, force bool) (int, error)
	Ready() bool
}

// Deps holds the collaborators of the HTTP handler.
type Deps struct {
	Agent         ChatAgent
	Conversations *conversation.Store
	Indexer       Rebuilder
	Token         string
}

// NewHandler builds the service router. Health endpoints are open;
// everything else sits behind bearer auth when a token is configured.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/", handleHealth(deps))
	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/chat", handleChat(deps))
		r.Get("/sessions", handleListSessions(deps))
		r.Get("/sessions/{id}", handleGetSession(deps))
		r.Get("/sessions/{id}/history", handleHistory(deps))
		r.Get("/sessions/{id}/title", handleTitle(deps))
		r.Post("/reload-documents", handleReload(deps))
	})

	return r
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
}

type chatResponse struct {
	Response      string         `json:"response"`
	SessionID     string         `json:"session_id"`
	Sources       []agent.Source `json:"sources"`
	UsedRetrieval bool           `json:"used_retrieval"`
	Language      string         `json:"language"`
	Timestamp     string         `json:"timestamp"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if utf8.RuneCountInString(req.Message) < minMessageLen {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message must be at least %d characters", minMessageLen)
			return
		}

		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = uuid.New().String()
		}

		result, err := deps.Agent.Chat(r.Context(), sessionID, req.Message, agent.ParseRole(req.Role))
		if err != nil {
			switch {
			case errors.Is(err, retrieval.ErrNotReady):
				httpError(w, http.StatusServiceUnavailable, "api_error", "document index is not ready: %v", err)
			case errors.Is(err, agent.ErrGenerationFailed):
				httpError(w, http.StatusBadGateway, "api_error", "generation failed: %v", err)
			default:
				httpError(w, http.StatusInternalServerError, "api_error", "error processing chat request: %v", err)
			}
			return
		}

		if result.Sources == nil {
			result.Sources = []agent.Source{}
		}
		writeJSON(w, chatResponse{
			Response:      result.Response,
			SessionID:     sessionID,
			Sources:       result.Sources,
			UsedRetrieval: result.UsedRetrieval,
			Language:      string(result.Language),
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
		})
	}
}

type healthResponse struct {
	Status         string `json:"status"`
	Message        string `json:"message"`
	RAGInitialized bool   `json:"rag_initialized"`
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ready := deps.Indexer != nil && deps.Indexer.Ready()
		resp := healthResponse{
			Status:         "healthy",
			Message:        "All systems operational",
			RAGInitialized: ready,
		}
		if !ready {
			resp.Status = "degraded"
			resp.Message = "Document index not built; retrieval is disabled"
		}
		writeJSON(w, resp)
	}
}

type sessionInfo struct {
	SessionID    string `json:"session_id"`
	Title        string `json:"title"`
	CreatedAt    string `json:"created_at"`
	MessageCount int    `json:"message_count"`
	LastActivity string `json:"last_activity"`
}

func handleListSessions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := deps.Conversations.Sessions(100)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list sessions: %v", err)
			return
		}

		infos := make([]sessionInfo, 0, len(sessions))
		for _, s := range sessions {
			info, err := toSessionInfo(deps, s)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to list sessions: %v", err)
				return
			}
			infos = append(infos, info)
		}
		writeJSON(w, infos)
	}
}

func handleGetSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		session, err := deps.Conversations.Session(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get session: %v", err)
			return
		}

		info, err := toSessionInfo(deps, session)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get session: %v", err)
			return
		}
		writeJSON(w, info)
	}
}

func toSessionInfo(deps Deps, s storage.Session) (sessionInfo, error) {
	count, err := deps.Conversations.MessageCount(s.ID)
	if err != nil {
		return sessionInfo{}, err
	}
	return sessionInfo{
		SessionID:    s.ID,
		Title:        s.Title,
		CreatedAt:    s.CreatedAt.Format(time.RFC3339),
		MessageCount: count,
		LastActivity: s.LastActivity.Format(time.RFC3339),
	}, nil
}

type historyResponse struct {
	SessionID string              `json:"session_id"`
	Messages  []conversation.Turn `json:"messages"`
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		history, err := deps.Conversations.History(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get history: %v", err)
			return
		}
		if history == nil {
			history = []conversation.Turn{}
		}
		writeJSON(w, historyResponse{SessionID: id, Messages: history})
	}
}

func handleTitle(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		writeJSON(w, map[string]string{
			"session_id": id,
			"title":      deps.Agent.Title(r.Context(), id),
		})
	}
}

func handleReload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := deps.Indexer.Build(r.Context(), true)
		if err != nil {
			switch {
			case errors.Is(err, corpus.ErrRebuildInProgress):
				httpError(w, http.StatusConflict, "api_error", "a rebuild is already in progress")
			case errors.Is(err, corpus.ErrNoDocuments):
				httpError(w, http.StatusNotFound, "not_found", "no documents found to index: %v", err)
			default:
				httpError(w, http.StatusInternalServerError, "api_error", "error reloading documents: %v", err)
			}
			return
		}

		writeJSON(w, map[string]any{
			"message":   "Documents reloaded and vector index rebuilt successfully",
			"passages":  count,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
