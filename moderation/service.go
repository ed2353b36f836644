// Package moderation owns the lifecycle of moderation actions: validation,
// the priority-comparison and self-action rules, issuance, queries and
// revocation. Expiry is lazy, an action becomes inactive by comparing its
// expires_at to the current time at read, nothing ever writes a row to flip
// it.
package moderation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pawsly/pawsly-chat/globals"
	"github.com/pawsly/pawsly-chat/permissions"
	"github.com/pawsly/pawsly-chat/persistence"
	"github.com/pawsly/pawsly-chat/types"
)

// durationPresets is the fixed advisory vocabulary mapping duration keys to
// minutes. "permanent" and any unrecognized key mean no duration.
var durationPresets = map[string]int{
	"5m":  5,
	"15m": 15,
	"30m": 30,
	"1h":  60,
	"6h":  360,
	"24h": 1440,
	"7d":  10080,
	"30d": 43200,
}

// PresetMinutes maps a duration key through the preset table. The second
// return value is false for "permanent", an empty key and unknown keys alike.
func PresetMinutes(key string) (int, bool) {
	minutes, ok := durationPresets[key]
	return minutes, ok
}

// OfflineForcer is implemented by the presence tracker. It is injected after
// construction to break the otherwise circular dependency between the two
// services, and it must never fail the originating moderation action.
type OfflineForcer interface {
	ForceOffline(userId string, roomSlug *string)
}

type Service struct {
	persister persistence.Persister
	resolver  *permissions.Resolver
	forcer    OfflineForcer

	// Now is the clock used for issuance and the lazy expiry comparison,
	// overridable in tests.
	Now func() time.Time
}

func NewService(persister persistence.Persister, resolver *permissions.Resolver) *Service {
	return &Service{
		persister: persister,
		resolver:  resolver,
		Now:       time.Now,
	}
}

// SetOfflineForcer wires in the presence tracker, called once during startup.
func (s *Service) SetOfflineForcer(forcer OfflineForcer) {
	s.forcer = forcer
}

// Issue validates and records a moderation action. The checks run in a fixed
// order and the first failing one wins. For kick and ban the target is forced
// offline in the affected scope as a side effect of the same call.
func (s *Service) Issue(issuerId, targetId, actionType string, roomSlug, durationKey *string, reason string) (*types.ModerationAction, error) {
	parsedType, ok := types.ParseActionType(actionType)
	if !ok {
		return nil, &types.ValidationError{Field: "action_type"}
	}
	if targetId == "" {
		return nil, &types.ValidationError{Field: "target_user_id"}
	}

	issuer, err := s.resolver.Resolve(issuerId)
	if err != nil {
		return nil, fmt.Errorf("could not resolve issuer: %w", err)
	}
	required := parsedType.RequiredPermission()
	if !issuer.Can(required) {
		return nil, &types.AuthorizationError{Reason: fmt.Sprintf("%s requires the %s permission", parsedType, required)}
	}

	if targetId == issuerId {
		return nil, &types.SelfActionError{}
	}

	target, err := s.resolver.Resolve(targetId)
	if err != nil {
		return nil, fmt.Errorf("could not resolve target: %w", err)
	}
	// strictly greater: equal priority is not sufficient to moderate
	if issuer.Priority <= target.Priority {
		return nil, &types.AuthorizationError{Reason: "target has equal or higher priority"}
	}

	if roomSlug != nil && *roomSlug != "" {
		room := types.Room{Slug: *roomSlug}
		err := s.persister.GetRoom(&room)
		if persistence.IsNotFound(err) {
			return nil, &types.NotFoundError{Kind: "room", Id: *roomSlug}
		}
		if err != nil {
			return nil, fmt.Errorf("could not resolve room: %w", err)
		}
	} else {
		roomSlug = nil // missing slug denotes a global, cross-room action
	}

	now := s.Now().UTC()
	action := types.ModerationAction{
		Id:           uuid.NewString(),
		TargetUserId: targetId,
		RoomSlug:     roomSlug,
		ActionType:   parsedType,
		Reason:       reason,
		IssuedBy:     issuerId,
		IssuedAt:     now,
	}
	if durationKey != nil {
		if minutes, ok := PresetMinutes(*durationKey); ok {
			expires := now.Add(time.Duration(minutes) * time.Minute)
			action.DurationMinutes = &minutes
			action.ExpiresAt = &expires
		}
		// unrecognized keys are treated as permanent, presets are advisory
	}

	if err := s.persister.StoreAction(action); err != nil {
		return nil, fmt.Errorf("could not store action: %w", err)
	}
	globals.AppLogger.Info("moderation action issued",
		"action", action.ActionType, "target", targetId, "issuer", issuerId, "room", roomSlug)

	if parsedType == types.ActionKick || parsedType == types.ActionBan {
		if s.forcer != nil {
			s.forcer.ForceOffline(targetId, roomSlug)
		}
	}
	return &action, nil
}

// Revoke closes a single action by id. Revocation requires the same
// permission class as issuing, not necessarily the original issuer: any
// sufficiently-permissioned moderator may undo another's action. Revoking an
// already-closed action is a no-op.
func (s *Service) Revoke(issuerId, actionId string) error {
	if actionId == "" {
		return &types.ValidationError{Field: "action_id"}
	}
	action := types.ModerationAction{Id: actionId}
	err := s.persister.GetAction(&action)
	if persistence.IsNotFound(err) {
		return &types.NotFoundError{Kind: "action", Id: actionId}
	}
	if err != nil {
		return fmt.Errorf("could not load action: %w", err)
	}

	issuer, err := s.resolver.Resolve(issuerId)
	if err != nil {
		return fmt.Errorf("could not resolve issuer: %w", err)
	}
	required := action.ActionType.RequiredPermission()
	if !issuer.Can(required) {
		return &types.AuthorizationError{Reason: fmt.Sprintf("revoking a %s requires the %s permission", action.ActionType, required)}
	}

	_, err = s.persister.RevokeAction(actionId, issuerId, s.Now().UTC())
	if err != nil {
		return fmt.Errorf("could not revoke action: %w", err)
	}
	return nil
}

// RevokeAllActive closes every currently-active action of the given type
// against the target. When a room is given, room-scoped actions for that room
// and global actions are both lifted; without a room, every active action of
// the type is closed. It returns the number of actions revoked.
func (s *Service) RevokeAllActive(issuerId, targetId, actionType string, roomSlug *string) (int, error) {
	parsedType, ok := types.ParseActionType(actionType)
	if !ok {
		return 0, &types.ValidationError{Field: "action_type"}
	}
	if targetId == "" {
		return 0, &types.ValidationError{Field: "user_id"}
	}

	issuer, err := s.resolver.Resolve(issuerId)
	if err != nil {
		return 0, fmt.Errorf("could not resolve issuer: %w", err)
	}
	required := parsedType.RequiredPermission()
	if !issuer.Can(required) {
		return 0, &types.AuthorizationError{Reason: fmt.Sprintf("revoking a %s requires the %s permission", parsedType, required)}
	}

	actions, err := s.persister.GetActionsByTarget(targetId)
	if err != nil {
		return 0, fmt.Errorf("could not load actions: %w", err)
	}
	now := s.Now().UTC()
	revoked := 0
	for _, action := range actions {
		if action.ActionType != parsedType || !action.ActiveAt(now) {
			continue
		}
		if roomSlug != nil && !action.AppliesToRoom(*roomSlug) {
			continue
		}
		ok, err := s.persister.RevokeAction(action.Id, issuerId, now)
		if err != nil {
			return revoked, fmt.Errorf("could not revoke action %s: %w", action.Id, err)
		}
		if ok {
			revoked++
		}
	}
	return revoked, nil
}

// QueryResult is the single source of truth consulted by the presence tracker
// on room entry and by the message send path to reject silenced users.
type QueryResult struct {
	Actions    []*types.ModerationAction `json:"actions"`
	IsBanned   bool                      `json:"is_banned"`
	IsSilenced bool                      `json:"is_silenced"`
}

// QueryActive returns the active actions against a user. With a room, only
// actions covering that room (room-scoped or global) are returned; without
// one, every active action is.
func (s *Service) QueryActive(userId string, roomSlug *string) (*QueryResult, error) {
	if userId == "" {
		return nil, &types.ValidationError{Field: "user_id"}
	}
	actions, err := s.persister.GetActionsByTarget(userId)
	if err != nil {
		return nil, fmt.Errorf("could not load actions: %w", err)
	}
	now := s.Now().UTC()
	result := QueryResult{Actions: make([]*types.ModerationAction, 0)}
	for _, action := range actions {
		if !action.ActiveAt(now) {
			continue
		}
		if roomSlug != nil && !action.AppliesToRoom(*roomSlug) {
			continue
		}
		result.Actions = append(result.Actions, action)
		switch action.ActionType {
		case types.ActionBan:
			result.IsBanned = true
		case types.ActionSilence:
			result.IsSilenced = true
		}
	}
	return &result, nil
}

// Log returns the full recorded history for a target (or for everyone with an
// empty target id), including expired and revoked rows.
func (s *Service) Log(targetUserId string) ([]*types.ModerationAction, error) {
	return s.persister.GetActionsByTarget(targetUserId)
}
