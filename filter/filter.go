// Package filter evaluates expr predicates over moderation-action records.
// It is used by the admin CLI and the audit-log endpoint to narrow down
// listings, f.e. `Action.Type == "ban" && Active`.
package filter

import (
	"fmt"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
	"github.com/pawsly/pawsly-chat/types"
)

// Env is the environment visible to filter expressions. Once this struct is
// fixed it should not be changed, otherwise stored filter expressions may not
// compile any more (f.e. if properties are renamed).
type Env struct {
	Action Action
	Active bool
}

type Action struct {
	Id       string
	Target   string
	Issuer   string
	Type     string
	Room     string // empty for global actions
	Reason   string
	IssuedAt int64 // unix seconds
	Revoked  bool
}

// Compile parses a filter expression against the fixed Env.
func Compile(expression string) (*vm.Program, error) {
	prog, err := expr.Compile(expression, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("could not compile filter: %w", err)
	}
	return prog, nil
}

// Match runs a compiled filter against an action record.
func Match(prog *vm.Program, action *types.ModerationAction, active bool) (bool, error) {
	if prog == nil {
		return true, nil
	}
	env := Env{
		Action: Action{
			Id:       action.Id,
			Target:   action.TargetUserId,
			Issuer:   action.IssuedBy,
			Type:     string(action.ActionType),
			Reason:   action.Reason,
			IssuedAt: action.IssuedAt.Unix(),
			Revoked:  action.RevokedAt != nil,
		},
		Active: active,
	}
	if action.RoomSlug != nil {
		env.Action.Room = *action.RoomSlug
	}
	res, err := expr.Run(prog, env)
	if err != nil {
		return false, fmt.Errorf("could not run filter: %w", err)
	}
	b, ok := res.(bool)
	if !ok {
		return false, fmt.Errorf("filter did not evaluate to a boolean")
	}
	return b, nil
}
