package engine

import (
	"context"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/wolfeidau/disciplinary/internal/store"
	"github.com/wolfeidau/disciplinary/internal/tenant"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// createRules lists the required fields per entity kind, in validator tag syntax.
// Index kinds are written by the index maintainer and carry no caller rules.
var createRules = map[tenant.Kind]map[string]any{
	tenant.KindEmployees: {
		"employeeNumber": "required",
		"firstName":      "required",
		"lastName":       "required",
	},
	tenant.KindWarnings: {
		"employeeId": "required",
		"level":      "required,oneof=counselling verbal first_written final_written",
	},
	tenant.KindMeetings: {
		"employeeId": "required",
	},
	tenant.KindAbsences: {
		"employeeId": "required",
		"days":       "omitempty,gte=0",
	},
}

// validateFields checks normalized fields against the kind's creation rules.
func validateFields(kind tenant.Kind, fields store.Fields) error {
	rules, ok := createRules[kind]
	if !ok {
		return nil
	}

	errs := validate.ValidateMapCtx(context.Background(), map[string]any(fields), rules)
	if len(errs) == 0 {
		return nil
	}

	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	slices.Sort(names)
	return store.InvalidArgumentf("%s: missing or invalid fields: %s", kind, strings.Join(names, ", "))
}
