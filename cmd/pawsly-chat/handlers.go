package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pawsly/pawsly-chat/auth"
	"github.com/pawsly/pawsly-chat/config"
	"github.com/pawsly/pawsly-chat/filter"
	"github.com/pawsly/pawsly-chat/globals"
	"github.com/pawsly/pawsly-chat/moderation"
	"github.com/pawsly/pawsly-chat/permissions"
	"github.com/pawsly/pawsly-chat/persistence"
	"github.com/pawsly/pawsly-chat/presence"
	"github.com/pawsly/pawsly-chat/ratelimit"
	"github.com/pawsly/pawsly-chat/types"
)

type application struct {
	cfg        *config.Config
	persister  persistence.Persister
	resolver   *permissions.Resolver
	moderation *moderation.Service
	presence   *presence.Tracker
	limiter    *ratelimit.Limiter
}

// currentUser extracts the authenticated principal's id. Primary path is an
// OIDC ID token in the Authorization header together with the provider name
// in X-Auth-Provider. Behind a trusted proxy that already terminated auth
// (no OIDC configured), the X-User-Id header is accepted instead.
func (app *application) currentUser(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") && len(app.cfg.OIDCConfigs) > 0 {
		idToken := strings.TrimPrefix(header, "Bearer ")
		provider := r.Header.Get("X-Auth-Provider")
		userId, err := auth.Authenticate(r.Context(), idToken, provider, app.cfg)
		if err != nil {
			globals.AppLogger.Debug("authentication failed", "error", err)
			return ""
		}
		return userId
	}
	return r.Header.Get("X-User-Id")
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		globals.AppLogger.Error("could not write response", "error", err)
	}
}

// writeError maps the typed error kinds onto HTTP statuses; anything
// unexpected is a generic 500 for this request only.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"
	switch e := err.(type) {
	case *types.ValidationError:
		status = http.StatusBadRequest
		message = e.Error()
	case *types.AuthorizationError:
		status = http.StatusForbidden
		message = e.Error()
	case *types.SelfActionError:
		status = http.StatusForbidden
		message = e.Error()
	case *types.NotFoundError:
		status = http.StatusNotFound
		message = e.Error()
	case *types.BannedError:
		status = http.StatusForbidden
		message = e.Error()
	case *types.RateLimitedError:
		status = http.StatusTooManyRequests
		message = e.Error()
		w.Header().Set("Retry-After", strconv.Itoa(e.RetryAfterSeconds))
	default:
		globals.AppLogger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]interface{}{"success": false, "error": message})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type issueActionRequest struct {
	ActionType   string `json:"action_type"`
	TargetUserId string `json:"target_user_id"`
	RoomSlug     string `json:"room_slug"`
	Duration     string `json:"duration"`
	Reason       string `json:"reason"`
}

func (app *application) issueActionHandler(w http.ResponseWriter, r *http.Request) {
	issuerId := app.currentUser(r)
	var req issueActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &types.ValidationError{Field: "body"})
		return
	}
	action, err := app.moderation.Issue(issuerId, req.TargetUserId, req.ActionType,
		optional(req.RoomSlug), optional(req.Duration), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, action)
}

func (app *application) revokeActionHandler(w http.ResponseWriter, r *http.Request) {
	issuerId := app.currentUser(r)
	vals := r.URL.Query()
	if actionId := vals.Get("action_id"); actionId != "" {
		if err := app.moderation.Revoke(issuerId, actionId); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
		return
	}
	revoked, err := app.moderation.RevokeAllActive(issuerId,
		vals.Get("user_id"), vals.Get("action_type"), optional(vals.Get("room_slug")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "revoked": revoked})
}

func (app *application) queryActionsHandler(w http.ResponseWriter, r *http.Request) {
	vals := r.URL.Query()
	result, err := app.moderation.QueryActive(vals.Get("user_id"), optional(vals.Get("room_slug")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (app *application) moderationLogHandler(w http.ResponseWriter, r *http.Request) {
	vals := r.URL.Query()
	actions, err := app.moderation.Log(vals.Get("user_id"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := actions
	if expression := vals.Get("filter"); expression != "" {
		prog, err := filter.Compile(expression)
		if err != nil {
			writeError(w, &types.ValidationError{Field: "filter"})
			return
		}
		now := time.Now().UTC()
		out = make([]*types.ModerationAction, 0, len(actions))
		for _, action := range actions {
			match, err := filter.Match(prog, action, action.ActiveAt(now))
			if err != nil {
				writeError(w, &types.ValidationError{Field: "filter"})
				return
			}
			if match {
				out = append(out, action)
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"actions": out})
}

type presenceRequest struct {
	RoomSlug string `json:"room_slug"`
	IsOnline bool   `json:"is_online"`
}

func (app *application) presenceHeartbeatHandler(w http.ResponseWriter, r *http.Request) {
	userId := app.currentUser(r)
	var req presenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &types.ValidationError{Field: "body"})
		return
	}
	var err error
	if req.IsOnline {
		err = app.presence.Enter(userId, req.RoomSlug)
	} else {
		err = app.presence.Leave(userId, req.RoomSlug)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (app *application) listOnlineHandler(w http.ResponseWriter, r *http.Request) {
	users, err := app.presence.ListOnline(r.URL.Query().Get("room_slug"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users, "count": len(users)})
}

type sendMessageRequest struct {
	ChannelKind string `json:"channel_kind"`
	RoomSlug    string `json:"room_slug"`
	RecipientId string `json:"recipient_id"`
	Body        string `json:"body"`
}

func (app *application) sendMessageHandler(w http.ResponseWriter, r *http.Request) {
	userId := app.currentUser(r)
	if userId == "" {
		writeError(w, &types.ValidationError{Field: "user"})
		return
	}
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &types.ValidationError{Field: "body"})
		return
	}
	if req.Body == "" {
		writeError(w, &types.ValidationError{Field: "body"})
		return
	}

	var kind types.ChannelKind
	message := types.Message{
		Id:        uuid.NewString(),
		SenderId:  userId,
		Body:      req.Body,
		CreatedAt: time.Now().UTC(),
	}
	switch types.ChannelKind(req.ChannelKind) {
	case types.ChannelRoom:
		kind = types.ChannelRoom
		if req.RoomSlug == "" {
			writeError(w, &types.ValidationError{Field: "room_slug"})
			return
		}
		status, err := app.moderation.QueryActive(userId, &req.RoomSlug)
		if err != nil {
			writeError(w, err)
			return
		}
		if status.IsSilenced {
			writeError(w, &types.AuthorizationError{Reason: "you are silenced in this room"})
			return
		}
		message.RoomSlug = optional(req.RoomSlug)
	case types.ChannelDirect:
		kind = types.ChannelDirect
		if req.RecipientId == "" {
			writeError(w, &types.ValidationError{Field: "recipient_id"})
			return
		}
		message.RecipientId = optional(req.RecipientId)
	default:
		writeError(w, &types.ValidationError{Field: "channel_kind"})
		return
	}
	message.ChannelKind = kind

	if err := app.limiter.Check(userId, kind); err != nil {
		writeError(w, err)
		return
	}
	if err := app.persister.StoreMessage(message); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, message)
}
