package postgres_test

import (
	"context"
	"errors"
	"regexp"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	taskPostgres "github.com/ojhankit/team-collaboration-sys-backend/internal/task/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SummaryRepository", func() {
	var (
		mock sqlmock.Sqlmock
		repo *taskPostgres.SummaryRepository
		ctx  context.Context
	)

	BeforeEach(func() {
		mockDB, m, err := sqlmock.New()
		Expect(err).NotTo(HaveOccurred())
		mock = m
		repo = taskPostgres.NewSummaryRepository(sqlx.NewDb(mockDB, "sqlmock"))
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	It("should fold every status into the summary", func() {
		rows := sqlmock.NewRows([]string{"status", "count"}).
			AddRow("open", 3).
			AddRow("in_progress", 2).
			AddRow("completed", 5)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS count FROM tasks GROUP BY status")).
			WillReturnRows(rows)

		s, err := repo.StatusCounts(ctx, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(s.Open).To(Equal(int64(3)))
		Expect(s.InProgress).To(Equal(int64(2)))
		Expect(s.Completed).To(Equal(int64(5)))
		Expect(s.Total).To(Equal(int64(10)))
	})

	It("should scope the query to an assignee", func() {
		rows := sqlmock.NewRows([]string{"status", "count"}).AddRow("open", 1)
		mock.ExpectQuery(regexp.QuoteMeta("WHERE assignee_id = $1")).
			WithArgs(int64(4)).
			WillReturnRows(rows)

		assignee := int64(4)
		s, err := repo.StatusCounts(ctx, &assignee)

		Expect(err).NotTo(HaveOccurred())
		Expect(s.Open).To(Equal(int64(1)))
		Expect(s.Total).To(Equal(int64(1)))
	})

	It("should ignore unknown statuses", func() {
		rows := sqlmock.NewRows([]string{"status", "count"}).AddRow("archived", 9)
		mock.ExpectQuery("SELECT status").WillReturnRows(rows)

		s, err := repo.StatusCounts(ctx, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(s.Total).To(BeZero())
	})

	It("should wrap query failures", func() {
		mock.ExpectQuery("SELECT status").WillReturnError(errors.New("connection reset"))

		_, err := repo.StatusCounts(ctx, nil)

		Expect(err).To(MatchError(ContainSubstring("connection reset")))
	})
})
