package task_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ojhankit/team-collaboration-sys-backend/internal"
	taskDatamodel "github.com/ojhankit/team-collaboration-sys-backend/internal/core/datamodel/task"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/core/events"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/task"
	taskPostgres "github.com/ojhankit/team-collaboration-sys-backend/internal/task/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// racingRepository runs between once, right before the next Update reaches
// storage, so a second request lands after the first one has read the task.
type racingRepository struct {
	task.Repository
	armed   atomic.Bool
	between func()
}

func (r *racingRepository) arm(between func()) {
	r.between = between
	r.armed.Store(true)
}

func (r *racingRepository) Update(ctx context.Context, id int64, p task.Patch) (*task.Task, error) {
	if r.armed.CompareAndSwap(true, false) {
		r.between()
	}
	return r.Repository.Update(ctx, id, p)
}

var _ = Describe("TaskService with interleaved writers", func() {
	var (
		repo     *racingRepository
		notifier *recordingNotifier
		service  *task.Service
		ctx      context.Context
		t        *task.Task
	)

	BeforeEach(func() {
		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(db.AutoMigrate(&taskDatamodel.Task{})).To(Succeed())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		DeferCleanup(sqlDB.Close)

		repo = &racingRepository{Repository: taskPostgres.NewTaskRepository(db)}
		notifier = &recordingNotifier{}
		service = task.NewService(repo, &mockSummaryReader{}, newUserDirectory(), notifier, &mockFileRemover{}, quietLogger())
		ctx = context.Background()

		// Given manager M created T assigned to employee E
		t, err = service.CreateTask(ctx, manager, task.CreateTaskDTO{
			Title:       "Write report",
			Description: "Quarterly numbers",
			Deadline:    time.Now().Add(72 * time.Hour),
			AssigneeID:  ptr(employee.ID),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("should complete once and emit one TaskCompleted when two completions race", func() {
		// Given T is in progress
		_, err := service.UpdateStatus(ctx, employee, t.ID, task.StatusInProgress)
		Expect(err).NotTo(HaveOccurred())

		// When a second completion lands after the first has read T
		var innerErr error
		repo.arm(func() {
			_, innerErr = service.CompleteTask(ctx, employee, t.ID)
		})
		_, outerErr := service.CompleteTask(ctx, employee, t.ID)

		// Then one wins, the other gets InvalidTransition
		Expect(innerErr).NotTo(HaveOccurred())
		Expect(errors.Is(outerErr, internal.ErrInvalidTransition)).To(BeTrue())

		// And M hears about it exactly once
		completed := notifier.ofKind(events.KindTaskCompleted)
		Expect(completed).To(HaveLen(1))
		Expect(completed[0].RecipientID).To(Equal(manager.ID))
	})

	It("should keep a status move that lands during a title edit", func() {
		// When E starts T after M's edit has read it
		var innerErr error
		repo.arm(func() {
			_, innerErr = service.UpdateStatus(ctx, employee, t.ID, task.StatusInProgress)
		})
		got, err := service.UpdateTask(ctx, manager, t.ID, task.UpdateTaskDTO{Title: ptr("renamed")})

		// Then both changes are stored
		Expect(innerErr).NotTo(HaveOccurred())
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Title).To(Equal("renamed"))
		Expect(got.Status).To(Equal(task.StatusInProgress))

		stored, err := service.GetTask(ctx, manager, t.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Status).To(Equal(task.StatusInProgress))
	})

	It("should keep a status move that lands during a deadline change", func() {
		later := time.Now().Add(96 * time.Hour).UTC().Truncate(time.Second)
		var innerErr error
		repo.arm(func() {
			_, innerErr = service.UpdateStatus(ctx, employee, t.ID, task.StatusInProgress)
		})

		got, err := service.UpdateDeadline(ctx, manager, t.ID, task.UpdateDeadlineDTO{Deadline: later})

		Expect(innerErr).NotTo(HaveOccurred())
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Deadline.Equal(later)).To(BeTrue())
		Expect(got.Status).To(Equal(task.StatusInProgress))
	})

	It("should reject a move by an assignee who was replaced in between", func() {
		// When M reassigns T to another employee after E's move has read it
		var innerErr error
		repo.arm(func() {
			_, innerErr = service.Assign(ctx, manager, t.ID, employee2.ID)
		})
		_, err := service.UpdateStatus(ctx, employee, t.ID, task.StatusInProgress)

		// Then E's move does not land
		Expect(innerErr).NotTo(HaveOccurred())
		Expect(errors.Is(err, internal.ErrInvalidTransition)).To(BeTrue())

		stored, err := service.GetTask(ctx, manager, t.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Status).To(Equal(task.StatusOpen))
		Expect(*stored.AssigneeID).To(Equal(employee2.ID))
	})
})
