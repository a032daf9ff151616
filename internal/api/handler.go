package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Tyrowin/nexus-chat-server/internal/store"
)

// Handler holds the dependencies of the history endpoints.
type Handler struct {
	messages store.MessageStore
	presence Presence
	log      *zap.Logger
}

// NewHandler creates a Handler. presence may be nil, in which case no
// contact is reported online.
func NewHandler(messages store.MessageStore, presence Presence, log *zap.Logger) *Handler {
	return &Handler{messages: messages, presence: presence, log: log.With(zap.String("component", "api"))}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Debug("write response", zap.Error(err))
	}
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

func (h *Handler) storeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		h.Error(w, http.StatusNotFound, "message not found")
		return
	}
	h.log.Error("store call failed", zap.String("op", op), zap.Error(err))
	h.Error(w, http.StatusInternalServerError, "database error")
}

func messages(list []store.Message) []store.Message {
	if list == nil {
		return []store.Message{}
	}
	return list
}

// History returns the direct conversation between user1 and user2.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	user1, user2 := q.Get("user1"), q.Get("user2")
	if user1 == "" || user2 == "" {
		h.Error(w, http.StatusBadRequest, "user1 and user2 are required")
		return
	}

	list, err := h.messages.History(r.Context(), user1, user2)
	if err != nil {
		h.storeError(w, "history", err)
		return
	}
	h.JSON(w, http.StatusOK, messages(list))
}

// GroupHistory returns the messages of a room.
func (h *Handler) GroupHistory(w http.ResponseWriter, r *http.Request) {
	list, err := h.messages.GroupHistory(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		h.storeError(w, "group_history", err)
		return
	}
	h.JSON(w, http.StatusOK, messages(list))
}

// Contacts returns the conversation partners of a user, newest first.
func (h *Handler) Contacts(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		h.Error(w, http.StatusBadRequest, "userId is required")
		return
	}

	contacts, err := h.messages.Contacts(r.Context(), userID)
	if err != nil {
		h.storeError(w, "contacts", err)
		return
	}
	if contacts == nil {
		contacts = []store.Contact{}
	}
	h.JSON(w, http.StatusOK, contacts)
}

// OnlineContacts returns the contacts of a user that are online right now.
func (h *Handler) OnlineContacts(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		h.Error(w, http.StatusBadRequest, "userId is required")
		return
	}

	contacts, err := h.messages.Contacts(r.Context(), userID)
	if err != nil {
		h.storeError(w, "contacts", err)
		return
	}

	online := map[string]bool{}
	if h.presence != nil {
		users, err := h.presence.OnlineUsers(r.Context())
		if err != nil {
			h.Error(w, http.StatusServiceUnavailable, "presence unavailable")
			return
		}
		for _, u := range users {
			online[u] = true
		}
	}

	out := make([]store.Contact, 0, len(contacts))
	for _, c := range contacts {
		if online[c.UserID] {
			out = append(out, c)
		}
	}
	h.JSON(w, http.StatusOK, out)
}

// Delete removes a message.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.messages.DeleteMessage(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.storeError(w, "delete", err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"message": "message deleted"})
}

// ToggleSaved flips whether userId has bookmarked the message.
func (h *Handler) ToggleSaved(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		h.Error(w, http.StatusBadRequest, "userId is required")
		return
	}

	saved, err := h.messages.ToggleSaved(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.storeError(w, "toggle_saved", err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]bool{"saved": saved})
}

// Saved returns the messages a user bookmarked, newest first.
func (h *Handler) Saved(w http.ResponseWriter, r *http.Request) {
	list, err := h.messages.SavedMessages(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.storeError(w, "saved", err)
		return
	}
	h.JSON(w, http.StatusOK, messages(list))
}
