package auth

import (
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/ojhankit/team-collaboration-sys-backend/internal"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/core/user"
)

var _ = ginkgo.Describe("Authorize", func() {
	var (
		admin    = &User{ID: 1, Role: user.RoleAdmin}
		manager  = &User{ID: 2, Role: user.RoleManager}
		other    = &User{ID: 3, Role: user.RoleManager}
		employee = &User{ID: 4, Role: user.RoleEmployee}
		stranger = &User{ID: 5, Role: user.RoleEmployee}

		assignee = int64(4)
		task     = TaskResource{CreatorID: 2, AssigneeID: &assignee}
	)

	ginkgo.DescribeTable("decisions",
		func(actor *User, res TaskResource, action Action, allowed bool) {
			err := Authorize(actor, res, action)
			if allowed {
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
			} else {
				gomega.Expect(err).To(gomega.Equal(internal.ErrForbidden))
			}
		},
		ginkgo.Entry("admin may delete any task", admin, task, ActionDeleteTask, true),
		ginkgo.Entry("admin may override status", admin, task, ActionOverrideStatus, true),
		ginkgo.Entry("manager may create", manager, TaskResource{}, ActionCreateTask, true),
		ginkgo.Entry("manager may read a task of another manager", other, task, ActionReadTask, true),
		ginkgo.Entry("creator manager may assign", manager, task, ActionAssignTask, true),
		ginkgo.Entry("creator manager may override status", manager, task, ActionOverrideStatus, true),
		ginkgo.Entry("other manager may not update", other, task, ActionUpdateTask, false),
		ginkgo.Entry("other manager may not delete", other, task, ActionDeleteTask, false),
		ginkgo.Entry("other manager may not change status", other, task, ActionChangeStatus, false),
		ginkgo.Entry("employee may not create", employee, TaskResource{}, ActionCreateTask, false),
		ginkgo.Entry("assignee may read", employee, task, ActionReadTask, true),
		ginkgo.Entry("assignee may change status", employee, task, ActionChangeStatus, true),
		ginkgo.Entry("assignee may comment", employee, task, ActionComment, true),
		ginkgo.Entry("assignee may not override status", employee, task, ActionOverrideStatus, false),
		ginkgo.Entry("assignee may not assign", employee, task, ActionAssignTask, false),
		ginkgo.Entry("assignee may not set the deadline", employee, task, ActionSetDeadline, false),
		ginkgo.Entry("assignee may not delete", employee, task, ActionDeleteTask, false),
		ginkgo.Entry("other employee may not read", stranger, task, ActionReadTask, false),
		ginkgo.Entry("other employee may not change status", stranger, task, ActionChangeStatus, false),
		ginkgo.Entry("anonymous actor is refused", nil, task, ActionReadTask, false),
	)

	ginkgo.It("scopes listings for employees only", func() {
		gomega.Expect(CanSeeAll(admin)).To(gomega.BeTrue())
		gomega.Expect(CanSeeAll(manager)).To(gomega.BeTrue())
		gomega.Expect(CanSeeAll(employee)).To(gomega.BeFalse())
	})
})
