package workspace

import (
	"context"

	"taskhub.io/internal/auth"
	"taskhub.io/internal/authz"
	"taskhub.io/internal/model"
	"taskhub.io/internal/store"
)

// Dashboard summarizes the principal's tenant and lists the tasks assigned to
// the principal.
func (s *Service) Dashboard(ctx context.Context, p auth.Principal) (model.Dashboard, error) {
	if err := s.authorize(p, authz.Read, authz.Resource{Type: authz.Project, TenantID: p.TenantID}); err != nil {
		return model.Dashboard{}, err
	}
	var out model.Dashboard
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if out.Stats, err = tx.DashboardStats(ctx, p.TenantID); err != nil {
			return err
		}
		if out.RecentProjects, err = tx.RecentProjects(ctx, p.TenantID, dashboardPageSize); err != nil {
			return err
		}
		out.MyTasks, err = tx.TasksAssignedTo(ctx, p.UserID, dashboardPageSize)
		return err
	})
	if err != nil {
		return model.Dashboard{}, err
	}
	if out.RecentProjects == nil {
		out.RecentProjects = []model.Project{}
	}
	if out.MyTasks == nil {
		out.MyTasks = []model.Task{}
	}
	return out, nil
}
