// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Expenses Contributors

//go:build integration

package integration_test

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/shopspring/decimal"

	"github.com/tsugiyama-dev/EXPENSES/internal/expense"
)

var (
	applicant = expense.Actor{ID: 7, Roles: []expense.Role{expense.RoleApplicant}}
	approver  = expense.Actor{ID: 20, Roles: []expense.Role{expense.RoleApprover}}
)

var _ = Describe("Expense Lifecycle", func() {
	var (
		ctx context.Context
		svc *expense.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		cleanupExpenses(ctx, env.pool)
		svc = newService(nil)
	})

	Describe("Draft to approval", func() {
		It("walks the full lifecycle with one version bump per transition", func() {
			created, err := svc.Create(ctx, applicant, expense.CreateInput{
				Title:  "conference ticket",
				Amount: decimal.NewFromInt(50000),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(created.Status).To(Equal(expense.StatusDraft))
			Expect(created.Version).To(Equal(0))

			submitted, err := svc.Submit(ctx, created.ID, applicant)
			Expect(err).NotTo(HaveOccurred())
			Expect(submitted.Status).To(Equal(expense.StatusSubmitted))
			Expect(submitted.Version).To(Equal(1))
			Expect(submitted.SubmittedAt).NotTo(BeNil())

			approved, err := svc.Approve(ctx, created.ID, submitted.Version, approver)
			Expect(err).NotTo(HaveOccurred())
			Expect(approved.Status).To(Equal(expense.StatusApproved))
			Expect(approved.Version).To(Equal(2))

			// The stored row matches the returned post-image.
			stored, err := env.Expenses.FindByID(ctx, created.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(expense.StatusApproved))
			Expect(stored.Version).To(Equal(2))
		})

		It("preserves decimal amounts exactly", func() {
			amount, err := decimal.NewFromString("1234.56")
			Expect(err).NotTo(HaveOccurred())

			created, err := svc.Create(ctx, applicant, expense.CreateInput{
				Title:    "lunch meeting",
				Amount:   amount,
				Currency: "USD",
			})
			Expect(err).NotTo(HaveOccurred())

			stored, err := env.Expenses.FindByID(ctx, created.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Amount.Equal(amount)).To(BeTrue())
			Expect(stored.Currency).To(Equal("USD"))
		})
	})

	Describe("Audit trail", func() {
		It("records one immutable row per transition in order", func() {
			created, err := svc.Create(ctx, applicant, expense.CreateInput{
				Title:  "hotel",
				Amount: decimal.NewFromInt(12000),
			})
			Expect(err).NotTo(HaveOccurred())

			submitted, err := svc.Submit(ctx, created.ID, applicant)
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Reject(ctx, created.ID, submitted.Version, "missing receipt", approver)
			Expect(err).NotTo(HaveOccurred())

			entries, err := svc.GetAuditLog(ctx, created.ID, applicant)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(3))

			Expect(entries[0].Action).To(Equal(expense.ActionCreate))
			Expect(entries[0].BeforeStatus).To(BeNil())
			Expect(entries[0].AfterStatus).To(Equal(expense.StatusDraft))

			Expect(entries[1].Action).To(Equal(expense.ActionSubmit))
			Expect(*entries[1].BeforeStatus).To(Equal(expense.StatusDraft))

			Expect(entries[2].Action).To(Equal(expense.ActionReject))
			Expect(*entries[2].BeforeStatus).To(Equal(expense.StatusSubmitted))
			Expect(entries[2].Note).NotTo(BeNil())
			Expect(*entries[2].Note).To(Equal("missing receipt"))
		})

		It("leaves no audit row for a denied attempt", func() {
			created, err := svc.Create(ctx, applicant, expense.CreateInput{
				Title:  "taxi",
				Amount: decimal.NewFromInt(4200),
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Approve(ctx, created.ID, 0, applicant)
			var authzErr *expense.AuthorizationError
			Expect(errors.As(err, &authzErr)).To(BeTrue())

			entries, err := env.Audit.FindByExpense(ctx, created.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1)) // CREATE only
		})
	})

	Describe("Optimistic concurrency", func() {
		It("lets exactly one of two concurrent approvals win", func() {
			created, err := svc.Create(ctx, applicant, expense.CreateInput{
				Title:  "team offsite",
				Amount: decimal.NewFromInt(90000),
			})
			Expect(err).NotTo(HaveOccurred())

			submitted, err := svc.Submit(ctx, created.ID, applicant)
			Expect(err).NotTo(HaveOccurred())

			const attempts = 8
			errs := make([]error, attempts)
			var wg sync.WaitGroup
			wg.Add(attempts)
			for i := 0; i < attempts; i++ {
				go func(i int) {
					defer wg.Done()
					defer GinkgoRecover()
					_, errs[i] = svc.Approve(ctx, created.ID, submitted.Version, approver)
				}(i)
			}
			wg.Wait()

			var winners, conflicts, staleTransitions int
			for _, err := range errs {
				var conflictErr *expense.ConflictError
				var transitionErr *expense.InvalidTransitionError
				switch {
				case err == nil:
					winners++
				case errors.As(err, &conflictErr):
					// Lost the conditional update after reading SUBMITTED.
					conflicts++
				case errors.As(err, &transitionErr):
					// Read the row only after the winner committed.
					staleTransitions++
					Expect(transitionErr.From).To(Equal(expense.StatusApproved))
				default:
					Fail("unexpected race loser error: " + err.Error())
				}
			}
			Expect(winners).To(Equal(1))
			Expect(conflicts + staleTransitions).To(Equal(attempts - 1))
			// The pre-reads all start before the winner can commit, so at
			// least one loser must fail the conditional update itself.
			Expect(conflicts).To(BeNumerically(">=", 1))

			stored, err := env.Expenses.FindByID(ctx, created.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(expense.StatusApproved))
			// Exactly one version bump despite the contention.
			Expect(stored.Version).To(Equal(submitted.Version + 1))

			entries, err := env.Audit.FindByExpense(ctx, created.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(3)) // CREATE, SUBMIT, APPROVE
		})

		It("classifies a stale retry against a terminal row as an invalid transition", func() {
			created, err := svc.Create(ctx, applicant, expense.CreateInput{
				Title:  "printer paper",
				Amount: decimal.NewFromInt(800),
			})
			Expect(err).NotTo(HaveOccurred())

			submitted, err := svc.Submit(ctx, created.ID, applicant)
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Approve(ctx, created.ID, submitted.Version, approver)
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.Approve(ctx, created.ID, submitted.Version, approver)
			var terr *expense.InvalidTransitionError
			Expect(errors.As(err, &terr)).To(BeTrue())
			Expect(terr.From).To(Equal(expense.StatusApproved))
		})
	})

	Describe("Search", func() {
		It("filters, sorts, and pages against the live schema", func() {
			for i := 1; i <= 7; i++ {
				_, err := svc.Create(ctx, applicant, expense.CreateInput{
					Title:  "supply run",
					Amount: decimal.NewFromInt(int64(i * 100)),
				})
				Expect(err).NotTo(HaveOccurred())
			}

			res, err := svc.Search(ctx, applicant, expense.SearchCriteria{Title: "SUPPLY"},
				"amount,asc", expense.Page{Number: 1, Size: 5})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Total).To(Equal(7))
			Expect(res.TotalPages).To(Equal(2))
			Expect(res.Items).To(HaveLen(5))
			Expect(res.PageWindow).To(Equal([]int{1, 2}))
			Expect(res.Items[0].Amount.LessThan(res.Items[1].Amount)).To(BeTrue())
		})
	})
})
