package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/testutil"
)

func grant(t *testing.T, f *fixture, outTradeNo string) error {
	t.Helper()
	o := f.order(t, outTradeNo)
	return f.store.Transaction(context.Background(), func(tx *repository.Store) error {
		return f.entitlements.Grant(context.Background(), tx, o)
	})
}

func daysUntil(t *time.Time) float64 {
	return time.Until(*t).Hours() / 24
}

func TestEntitlement_MembershipPolicies(t *testing.T) {
	tests := []struct {
		name       string
		policy     service.RenewPolicy
		current    *time.Time // existing expiry; nil means not VIP
		lifetime   bool       // existing lifetime VIP
		planDays   int
		wantNil    bool
		wantMinDay float64
		wantMaxDay float64
	}{
		{name: "new member", policy: service.RenewOverwrite, planDays: 30, wantMinDay: 29.9, wantMaxDay: 30.1},
		{name: "overwrite discards remaining time", policy: service.RenewOverwrite, current: in(100), planDays: 30, wantMinDay: 29.9, wantMaxDay: 30.1},
		{name: "extend adds to remaining time", policy: service.RenewExtend, current: in(100), planDays: 30, wantMinDay: 129.9, wantMaxDay: 130.1},
		{name: "extend ignores expired membership", policy: service.RenewExtend, current: in(-10), planDays: 30, wantMinDay: 29.9, wantMaxDay: 30.1},
		{name: "lifetime plan", policy: service.RenewOverwrite, current: in(5), planDays: 0, wantNil: true},
		{name: "extend keeps lifetime", policy: service.RenewExtend, lifetime: true, planDays: 30, wantNil: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.policy)
			u := testutil.CreateUser(t, f.db, "member")
			plan := testutil.CreatePlan(t, f.db, "19.90", tt.planDays)
			if tt.current != nil || tt.lifetime {
				if err := f.store.Users.SetVIP(u.ID, plan.ID, tt.current); err != nil {
					t.Fatal(err)
				}
			}
			testutil.CreatePendingOrder(t, f.db, "SF1", domain.OrderTypeMember, plan.ID, u.ID, "19.90")

			if err := grant(t, f, "SF1"); err != nil {
				t.Fatalf("Grant: %v", err)
			}
			got := f.user(t, u.ID)
			if !got.IsVip || got.VipPlanID == nil || *got.VipPlanID != plan.ID {
				t.Fatalf("user = %+v, want VIP on plan %d", got, plan.ID)
			}
			if tt.wantNil {
				if got.VipExpireAt != nil {
					t.Errorf("expiry = %v, want lifetime", got.VipExpireAt)
				}
				return
			}
			if got.VipExpireAt == nil {
				t.Fatal("expiry is nil, want a date")
			}
			if d := daysUntil(got.VipExpireAt); d < tt.wantMinDay || d > tt.wantMaxDay {
				t.Errorf("expires in %.2f days, want [%.1f, %.1f]", d, tt.wantMinDay, tt.wantMaxDay)
			}
		})
	}
}

func in(days int) *time.Time {
	t := time.Now().AddDate(0, 0, days)
	return &t
}

func TestEntitlement_CourseGrantIsIdempotent(t *testing.T) {
	f := newFixture(t, service.RenewOverwrite)
	u := testutil.CreateUser(t, f.db, "student")
	testutil.CreatePendingOrder(t, f.db, "SF1", domain.OrderTypeCourse, 42, u.ID, "9.99")

	for i := 0; i < 2; i++ {
		if err := grant(t, f, "SF1"); err != nil {
			t.Fatalf("grant %d: %v", i, err)
		}
	}
	if n, _ := f.store.Access.Count(u.ID, 42); n != 1 {
		t.Errorf("access rows = %d, want 1", n)
	}
}

func TestEntitlement_GrantFailures(t *testing.T) {
	f := newFixture(t, service.RenewOverwrite)
	u := testutil.CreateUser(t, f.db, "unlucky")
	testutil.CreatePendingOrder(t, f.db, "MISSING-PLAN", domain.OrderTypeMember, 999, u.ID, "1.00")
	testutil.CreatePendingOrder(t, f.db, "GIFT", domain.OrderType("gift"), 1, u.ID, "1.00")

	err := grant(t, f, "MISSING-PLAN")
	if !errors.Is(err, service.ErrEntitlement) {
		t.Errorf("missing plan: %v, want ErrEntitlement", err)
	}
	err = grant(t, f, "GIFT")
	if !errors.Is(err, service.ErrEntitlement) || !errors.Is(err, service.ErrUnknownOrderType) {
		t.Errorf("unknown type: %v", err)
	}
	if f.user(t, u.ID).IsVip {
		t.Error("failed grant left the user VIP")
	}
}

func TestEntitlement_SummaryAndAccess(t *testing.T) {
	f := newFixture(t, service.RenewOverwrite)
	ctx := context.Background()
	u := testutil.CreateUser(t, f.db, "reader")
	testutil.CreatePendingOrder(t, f.db, "SF1", domain.OrderTypeCourse, 42, u.ID, "9.99")
	if err := grant(t, f, "SF1"); err != nil {
		t.Fatal(err)
	}

	sum, err := f.entitlements.Summary(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sum.VIP || len(sum.ResourceIDs) != 1 || sum.ResourceIDs[0] != 42 {
		t.Errorf("summary = %+v", sum)
	}

	if ok, _ := f.entitlements.HasAccess(ctx, u.ID, 42); !ok {
		t.Error("no access to purchased resource")
	}
	if ok, _ := f.entitlements.HasAccess(ctx, u.ID, 7); ok {
		t.Error("access to resource never bought")
	}

	// An expired VIP is not VIP.
	plan := testutil.CreatePlan(t, f.db, "19.90", 30)
	if err := f.store.Users.SetVIP(u.ID, plan.ID, in(-1)); err != nil {
		t.Fatal(err)
	}
	if ok, _ := f.entitlements.HasAccess(ctx, u.ID, 7); ok {
		t.Error("expired VIP has access")
	}
	if sum, _ := f.entitlements.Summary(ctx, u.ID); sum.VIP {
		t.Error("summary reports expired VIP")
	}

	if err := f.store.Users.SetVIP(u.ID, plan.ID, nil); err != nil {
		t.Fatal(err)
	}
	if ok, _ := f.entitlements.HasAccess(ctx, u.ID, 7); !ok {
		t.Error("lifetime VIP denied")
	}
	if sum, _ := f.entitlements.Summary(ctx, u.ID); !sum.VIP || !sum.Lifetime {
		t.Errorf("summary = %+v, want lifetime VIP", sum)
	}

	if _, err := f.entitlements.Summary(ctx, 0); !errors.Is(err, service.ErrUnauthenticated) {
		t.Errorf("anonymous summary: %v", err)
	}
	if ok, err := f.entitlements.HasAccess(ctx, 9999, 42); ok || err != nil {
		t.Errorf("unknown user = %v, %v; want false, nil", ok, err)
	}
}
