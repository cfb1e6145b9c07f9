package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/floodwatch/internal/audit/domain"
	"github.com/smallbiznis/floodwatch/internal/audit/repository"
	"github.com/smallbiznis/floodwatch/internal/authorization"
	"github.com/smallbiznis/floodwatch/internal/clock"
	"github.com/smallbiznis/floodwatch/internal/identity"
	obscontext "github.com/smallbiznis/floodwatch/internal/observability/context"
	"github.com/smallbiznis/floodwatch/internal/validation"
	"github.com/smallbiznis/floodwatch/pkg/db"
	"github.com/smallbiznis/floodwatch/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	member = identity.Identity{AccountID: snowflake.ID(10), Email: "member@x.com", Role: identity.RoleUser}
	admin  = identity.Identity{AccountID: snowflake.ID(20), Email: "admin@x.com", Role: identity.RoleAdmin}
)

func newTestService(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.AuditLog{}))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))
	return New(Params{
		Log:    zap.NewNop(),
		Repo:   repository.New(conn),
		GenID:  node,
		Clock:  clk,
		Policy: authorization.OwnershipPolicy{},
	}), clk
}

func TestRecordCapturesRequestContext(t *testing.T) {
	svc, _ := newTestService(t)

	ctx := identity.WithIdentity(context.Background(), member)
	ctx = obscontext.WithRequestID(ctx, "req-1")
	ctx = obscontext.WithClient(ctx, "10.0.0.1", "curl/8")

	require.NoError(t, svc.Record(ctx, domain.Entry{
		Action:     domain.ActionReportStatusChanged,
		TargetType: domain.TargetReport,
		TargetID:   "77",
		Metadata:   map[string]any{"from": "active", "to": "resolved", "email": "member@x.com"},
	}))

	res, err := svc.List(context.Background(), admin, domain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, res.AuditLogs, 1)

	entry := res.AuditLogs[0]
	assert.Equal(t, string(domain.ActorTypeAccount), entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "10", *entry.ActorID)
	require.NotNil(t, entry.TargetID)
	assert.Equal(t, "77", *entry.TargetID)
	require.NotNil(t, entry.IPAddress)
	assert.Equal(t, "10.0.0.1", *entry.IPAddress)
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
	assert.Equal(t, "resolved", entry.Metadata["to"])
	assert.Equal(t, "m****@x.com", entry.Metadata["email"])
}

func TestRecordWithoutCallerIsSystem(t *testing.T) {
	svc, _ := newTestService(t)

	require.NoError(t, svc.Record(context.Background(), domain.Entry{Action: domain.ActionAccountSignup}))

	res, err := svc.List(context.Background(), admin, domain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, res.AuditLogs, 1)
	assert.Equal(t, string(domain.ActorTypeSystem), res.AuditLogs[0].ActorType)
	assert.Nil(t, res.AuditLogs[0].ActorID)
	assert.Equal(t, "unknown", res.AuditLogs[0].TargetType)
}

func TestRecordRequiresAction(t *testing.T) {
	svc, _ := newTestService(t)
	assert.ErrorIs(t, svc.Record(context.Background(), domain.Entry{Action: "  "}), domain.ErrInvalidAction)
}

func TestListRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.List(context.Background(), member, domain.ListRequest{})
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	_, err = svc.List(context.Background(), identity.Identity{}, domain.ListRequest{})
	assert.ErrorIs(t, err, authorization.ErrForbidden)
}

func TestListFiltersAndPages(t *testing.T) {
	svc, clk := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Record(ctx, domain.Entry{
			Actor:      member.AccountID,
			Action:     domain.ActionReportStatusChanged,
			TargetType: domain.TargetReport,
			TargetID:   "1",
		}))
		clk.Advance(time.Minute)
	}
	require.NoError(t, svc.Record(ctx, domain.Entry{
		Actor:      admin.AccountID,
		Action:     domain.ActionAccountRoleChanged,
		TargetType: domain.TargetAccount,
		TargetID:   "10",
	}))

	first, err := svc.List(ctx, admin, domain.ListRequest{
		Pagination: pagination.Pagination{PageSize: 2},
		TargetType: domain.TargetReport,
		TargetID:   "1",
	})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	require.True(t, first.PageInfo.HasMore)
	assert.True(t, first.AuditLogs[0].CreatedAt.After(first.AuditLogs[1].CreatedAt))

	second, err := svc.List(ctx, admin, domain.ListRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.PageInfo.NextPageToken},
		TargetType: domain.TargetReport,
		TargetID:   "1",
	})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.False(t, second.PageInfo.HasMore)

	byActor, err := svc.List(ctx, admin, domain.ListRequest{ActorID: admin.AccountID.String()})
	require.NoError(t, err)
	require.Len(t, byActor.AuditLogs, 1)
	assert.Equal(t, domain.ActionAccountRoleChanged, byActor.AuditLogs[0].Action)
}

func TestListRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	start := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err := svc.List(ctx, admin, domain.ListRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, domain.ErrInvalidTimeRange)

	_, err = svc.List(ctx, admin, domain.ListRequest{Pagination: pagination.Pagination{PageToken: "%%%"}})
	_, isValidation := validation.As(err)
	assert.True(t, isValidation)
}
