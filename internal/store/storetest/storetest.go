// Package storetest provides an in-memory SQLite store and fixtures for tests.
package storetest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/aimerfeng/ContribChain/internal/database"
	"github.com/aimerfeng/ContribChain/internal/models"
	"github.com/aimerfeng/ContribChain/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var seq atomic.Int64

// New opens a fresh migrated in-memory database and closes it when the test ends
func New(tb testing.TB, opts ...store.Option) *store.SQLStore {
	tb.Helper()

	db, err := database.OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		tb.Fatalf("failed to open test database: %v", err)
	}
	tb.Cleanup(func() { _ = db.Close() })

	return store.New(db, opts...)
}

// UniqueName returns prefix followed by a process-wide counter
func UniqueName(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, seq.Add(1))
}

// User inserts an active user with a unique username and email
func User(tb testing.TB, s store.Querier) *models.User {
	tb.Helper()

	name := UniqueName("user")
	u := &models.User{
		Email:        name + "@example.com",
		Username:     name,
		PasswordHash: "not-a-real-hash",
		IsActive:     true,
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		tb.Fatalf("failed to create user: %v", err)
	}
	return u
}

// Project inserts an active project
func Project(tb testing.TB, s store.Querier) *models.Project {
	tb.Helper()

	p := &models.Project{Name: UniqueName("project"), IsActive: true}
	if err := s.CreateProject(context.Background(), p); err != nil {
		tb.Fatalf("failed to create project: %v", err)
	}
	return p
}

// Contribution inserts a pending contribution of the given value
func Contribution(tb testing.TB, s store.Querier, userID, projectID uuid.UUID, value decimal.Decimal) *models.Contribution {
	tb.Helper()

	c := &models.Contribution{
		Title:     UniqueName("contribution"),
		Type:      models.ContributionTypeCode,
		Value:     value,
		UserID:    userID,
		ProjectID: projectID,
	}
	if err := s.CreateContribution(context.Background(), c); err != nil {
		tb.Fatalf("failed to create contribution: %v", err)
	}
	return c
}

// Badge inserts a soul-bound badge
func Badge(tb testing.TB, s store.Querier) *models.Badge {
	tb.Helper()

	name := UniqueName("badge")
	b := &models.Badge{Name: name, Slug: name, IsSoulBound: true}
	if err := s.CreateBadge(context.Background(), b); err != nil {
		tb.Fatalf("failed to create badge: %v", err)
	}
	return b
}
