// Package service contains the business logic layer.
//
// Services sit between the HTTP handlers and the external collaborators
// (access record store, billing provider, CoffeeHouse engine). They are
// responsible for:
// - Syncing plan entitlements onto access records
// - Billing cycle rollover
// - Quota enforcement
// - Error translation (collaborator errors -> domain errors)
package service

import (
	"errors"
	"fmt"

	"github.com/intellivoid/coffeehouse-api/internal/domain"
)

// ErrIncompleteFeatures indicates the plan is missing a required feature,
// which happens while a plan change is still propagating from billing.
var ErrIncompleteFeatures = errors.New("subscription features incomplete")

// IncompleteFeaturesError names the first required feature that was missing
// or carried a value of the wrong type.
type IncompleteFeaturesError struct {
	Key string
}

func (e *IncompleteFeaturesError) Error() string {
	return fmt.Sprintf("subscription features incomplete: missing %s", e.Key)
}

func (e *IncompleteFeaturesError) Is(target error) bool {
	return target == ErrIncompleteFeatures
}

// UpdateSubscriptionFeatures copies the plan limits in features onto the
// access record and initialises any absent usage counter to 0.
//
// Every key of domain.PlanFeatures is validated before anything is written,
// so the record is left untouched when the set is incomplete. Counters that
// already exist are never reset.
func UpdateSubscriptionFeatures(features domain.FeatureSet, rec *domain.AccessRecord) error {
	values := make(map[string]any, len(domain.PlanFeatures))
	probe := domain.Variables(features)

	for _, pf := range domain.PlanFeatures {
		switch pf.Kind {
		case domain.FeatureKindBool:
			b, ok := probe.Bool(pf.Key)
			if !ok {
				return &IncompleteFeaturesError{Key: pf.Key}
			}
			values[pf.Limit] = b
		default:
			n, ok := probe.Int(pf.Key)
			if !ok {
				return &IncompleteFeaturesError{Key: pf.Key}
			}
			values[pf.Limit] = n
		}
	}

	if rec.Variables == nil {
		rec.Variables = make(domain.Variables)
	}

	for _, pf := range domain.PlanFeatures {
		switch v := values[pf.Limit].(type) {
		case bool:
			rec.Variables.SetBool(pf.Limit, v)
		case int64:
			rec.Variables.SetInt(pf.Limit, v)
		}
		if pf.Counter != "" && !rec.Variables.Has(pf.Counter) {
			rec.Variables.SetInt(pf.Counter, 0)
		}
	}

	return nil
}
