package db

import (
	"errors"
	"testing"

	"github.com/sciproxy/sciproxy/domain"
)

const testLuaCode = `function resolve(doi)
    return "https://mirror.example/" .. doi .. ".pdf"
end`

func testResolver(t *testing.T, repo *Repository, name string) {
	t.Helper()

	err := repo.CreateResolver(name, "https://example.com/repo", "tester", testLuaCode, "test resolver")
	if err != nil {
		t.Fatalf("creating resolver: %v", err)
	}
}

func TestResolverRepo_CreateAndGet(t *testing.T) {
	t.Run("should return the created resolver by name", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		testResolver(t, repo, "mirror")

		got, err := repo.GetResolverByName("mirror")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if got.Name != "mirror" {
			t.Fatalf("\nwanted:\nmirror\ngot:\n%s", got.Name)
		}

		if !got.Enabled {
			t.Fatalf("\nwanted:\nenabled resolver\ngot:\ndisabled")
		}

		if got.LuaContent != testLuaCode {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", testLuaCode, got.LuaContent)
		}
	})

	t.Run("should reject duplicate resolver names", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		testResolver(t, repo, "mirror")

		err := repo.CreateResolver("mirror", "", "", testLuaCode, "")
		if err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
	})
}

func TestResolverRepo_GetResolvers(t *testing.T) {
	t.Run("should return all installed resolvers", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		testResolver(t, repo, "mirror")
		testResolver(t, repo, "preprint")

		got, err := repo.GetResolvers()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if len(got) != 2 {
			t.Fatalf("\nwanted:\n2\ngot:\n%d", len(got))
		}
	})
}

func TestResolverRepo_LuaCode(t *testing.T) {
	t.Run("should update and fetch the lua source", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		testResolver(t, repo, "mirror")

		updated := `function resolve(doi) return "" end`
		err := repo.UpdateResolverLuaCode("mirror", updated)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := repo.GetResolverLuaCode("mirror")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if got != updated {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", updated, got)
		}
	})

	t.Run("should return an error for an unknown resolver", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		err := repo.UpdateResolverLuaCode("unknown", "function resolve(doi) end")
		if err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
	})
}

func TestResolverRepo_EnableAndRemove(t *testing.T) {
	t.Run("should toggle a resolver off", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		testResolver(t, repo, "mirror")

		err := repo.SetResolverEnabled("mirror", false)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := repo.GetResolverByName("mirror")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if got.Enabled {
			t.Fatalf("\nwanted:\ndisabled resolver\ngot:\nenabled")
		}
	})

	t.Run("should remove a resolver", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		testResolver(t, repo, "mirror")

		err := repo.RemoveResolver("mirror")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		_, err = repo.GetResolverByName("mirror")
		if err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
	})

	t.Run("should report toggling an unknown resolver", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		err := repo.SetResolverEnabled("unknown", false)
		if !errors.Is(err, domain.ErrResolverNotFound) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", domain.ErrResolverNotFound, err)
		}
	})

	t.Run("should report removing an unknown resolver", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		err := repo.RemoveResolver("unknown")
		if !errors.Is(err, domain.ErrResolverNotFound) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", domain.ErrResolverNotFound, err)
		}
	})
}
