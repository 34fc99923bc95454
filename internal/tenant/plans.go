package tenant

import "taskhub.io/internal/model"

// Limits are the quota ceilings a plan grants.
type Limits struct {
	MaxUsers    int
	MaxProjects int
}

var planLimits = map[model.Plan]Limits{
	model.PlanFree:       {MaxUsers: 5, MaxProjects: 3},
	model.PlanPro:        {MaxUsers: 25, MaxProjects: 15},
	model.PlanEnterprise: {MaxUsers: 100, MaxProjects: 50},
}

// LimitsFor returns the default ceilings of plan.
func LimitsFor(plan model.Plan) (Limits, bool) {
	l, ok := planLimits[plan]
	return l, ok
}
