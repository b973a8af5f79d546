// Package staging is the local-disk write-ahead area used when the primary
// database cannot accept a write. Payloads are partitioned on disk as
//
//	<root>/<action>/<entity>/<YYYY>/<MM>/<DD>/<unix>-<uuidv7>.json
//
// and later claimed, replayed and removed by the replay engine.
package staging

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidAction = errors.New("staging: action must be create or update")
	ErrInvalidEntity = errors.New("staging: entity must be a lowercase path segment")
)

// Action is the kind of write a staged payload represents.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// Actions lists every valid action in replay order.
var Actions = []Action{ActionCreate, ActionUpdate}

// ParseAction is case-insensitive.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionCreate, ActionUpdate:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
}

func (a Action) Valid() bool {
	return a == ActionCreate || a == ActionUpdate
}

func (a Action) String() string { return string(a) }

// Partition keys for the hospital entities.
const (
	EntityUnit         = "unidade"
	EntityBed          = "leito"
	EntityPatient      = "paciente"
	EntityProfessional = "profissional"
	EntityEncounter    = "atendimento"
	EntityTransfer     = "transferencia"
	EntityDischarge    = "alta"
)

// Entities lists the known partition keys in foreign-key order.
var Entities = []string{
	EntityUnit,
	EntityBed,
	EntityPatient,
	EntityProfessional,
	EntityEncounter,
	EntityTransfer,
	EntityDischarge,
}

var entityPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

func validate(entity string, action Action) error {
	if !action.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAction, string(action))
	}
	if !entityPattern.MatchString(entity) {
		return fmt.Errorf("%w: %q", ErrInvalidEntity, entity)
	}
	return nil
}
