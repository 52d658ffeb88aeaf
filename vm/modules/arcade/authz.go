package arcade

import (
	"strings"

	"github.com/tolelom/tolarcade/vm"
)

const (
	RoleAdmin    = "admin"
	RoleGuardian = "guardian"
)

func knownRole(role string) bool {
	return role == RoleAdmin || role == RoleGuardian
}

// requireRole succeeds if the caller holds any of roles.
func requireRole(ctx *vm.Context, roles ...string) error {
	for _, r := range roles {
		ok, err := ctx.State.HasRole(r, ctx.Caller())
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrUnauthorized.With("need", strings.Join(roles, "|"))
}
