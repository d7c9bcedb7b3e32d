package repository_test

import (
	"testing"

	"storefront/internal/repository"
	"storefront/internal/testutil"
)

func TestAccessRepository_GrantIsIdempotent(t *testing.T) {
	repo := repository.NewAccessRepository(testutil.NewDB(t))

	created, err := repo.Grant(1, 42, "SF1")
	if err != nil || !created {
		t.Fatalf("first Grant = %v, %v; want created", created, err)
	}
	created, err = repo.Grant(1, 42, "SF2")
	if err != nil {
		t.Fatalf("second Grant must not fail on duplicate: %v", err)
	}
	if created {
		t.Error("second Grant reported a new row")
	}
	if n, _ := repo.Count(1, 42); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}

	if ok, _ := repo.Has(1, 42); !ok {
		t.Error("Has = false after grant")
	}
	if ok, _ := repo.Has(2, 42); ok {
		t.Error("grant leaked to another user")
	}

	if _, err := repo.Grant(1, 7, "SF3"); err != nil {
		t.Fatal(err)
	}
	ids, err := repo.ResourceIDs(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != 7 || ids[1] != 42 {
		t.Errorf("ResourceIDs = %v, want [7 42]", ids)
	}
}
