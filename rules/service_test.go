package rules

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Smart-Charging/scn-node/scpi"
	"github.com/Smart-Charging/scn-node/store"
)

const auth = "Token token-c"

func newService(t *testing.T) (*Service, *store.Memory, int64) {
	t.Helper()

	st := store.NewMemory()
	platform := &store.Platform{
		Status: scpi.StatusConnected,
		Auth:   store.Auth{TokenC: "token-c"},
	}
	require.NoError(t, st.CreatePlatform(context.Background(), platform))
	return New(st), st, platform.ID
}

func entry(id, country string, modules ...string) Party {
	return Party{ID: id, Country: country, Modules: modules}
}

func TestRulesEmptyByDefault(t *testing.T) {
	s, _, _ := newService(t)

	rules, err := s.Rules(context.Background(), auth)
	require.NoError(t, err)
	require.False(t, rules.Signatures)
	require.False(t, rules.Whitelist.Active)
	require.False(t, rules.Blacklist.Active)
	require.Empty(t, rules.Whitelist.List)
	require.Empty(t, rules.Blacklist.List)
}

func TestRulesRejectsUnknownToken(t *testing.T) {
	s, _, _ := newService(t)

	_, err := s.Rules(context.Background(), "Token wrong")
	require.Error(t, err)
	require.Equal(t, scpi.StatusClientInvalidParams, scpi.AsError(err).Status)
}

func TestToggleSignatures(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, s.ToggleSignatures(ctx, auth))
	rules, err := s.Rules(ctx, auth)
	require.NoError(t, err)
	require.True(t, rules.Signatures)

	require.NoError(t, s.ToggleSignatures(ctx, auth))
	rules, err = s.Rules(ctx, auth)
	require.NoError(t, err)
	require.False(t, rules.Signatures)
}

func TestUpdateWhitelist(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateWhitelist(ctx, auth, []Party{
		entry("MSP", "DE", "cdrs", "locations"),
	}))

	rules, err := s.Rules(ctx, auth)
	require.NoError(t, err)
	require.True(t, rules.Whitelist.Active)
	require.Len(t, rules.Whitelist.List, 1)
	require.Equal(t, []string{"cdrs", "locations"}, rules.Whitelist.List[0].Modules)

	// empty replacement deactivates the list
	require.NoError(t, s.UpdateWhitelist(ctx, auth, nil))
	rules, err = s.Rules(ctx, auth)
	require.NoError(t, err)
	require.False(t, rules.Whitelist.Active)
}

func TestUpdateRejectsEmptyModuleList(t *testing.T) {
	s, _, _ := newService(t)

	err := s.UpdateWhitelist(context.Background(), auth, []Party{entry("MSP", "DE")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Module list")
}

func TestListsNeverBothActive(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateWhitelist(ctx, auth, []Party{entry("MSP", "DE", "cdrs")}))

	err := s.UpdateBlacklist(ctx, auth, []Party{entry("CPO", "DE", "cdrs")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot be active at same time")

	err = s.AppendToBlacklist(ctx, auth, entry("CPO", "DE", "cdrs"))
	require.Error(t, err)

	err = s.BlockAll(ctx, auth)
	require.NoError(t, err) // block-all only conflicts with an active blacklist

	require.NoError(t, s.UpdateWhitelist(ctx, auth, nil))
	require.NoError(t, s.UpdateBlacklist(ctx, auth, []Party{entry("CPO", "DE", "cdrs")}))

	err = s.BlockAll(ctx, auth)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot be active at same time")
}

func TestAppendToWhitelist(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, s.AppendToWhitelist(ctx, auth, entry("MSP", "DE", "commands")))

	rules, err := s.Rules(ctx, auth)
	require.NoError(t, err)
	require.True(t, rules.Whitelist.Active)
	require.Len(t, rules.Whitelist.List, 1)

	// duplicates rejected, case-insensitively
	err = s.AppendToWhitelist(ctx, auth, entry("msp", "de", "cdrs"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "already on SCN Rules whitelist")
}

func TestDeleteFromWhitelist(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateWhitelist(ctx, auth, []Party{
		entry("MSP", "DE", "cdrs"),
		entry("CPO", "FR", "cdrs"),
	}))

	require.NoError(t, s.DeleteFromWhitelist(ctx, auth, scpi.BasicRole{ID: "MSP", Country: "DE"}))
	rules, err := s.Rules(ctx, auth)
	require.NoError(t, err)
	require.True(t, rules.Whitelist.Active)
	require.Len(t, rules.Whitelist.List, 1)

	// removing the last entry deactivates the list
	require.NoError(t, s.DeleteFromWhitelist(ctx, auth, scpi.BasicRole{ID: "CPO", Country: "FR"}))
	rules, err = s.Rules(ctx, auth)
	require.NoError(t, err)
	require.False(t, rules.Whitelist.Active)
}

func TestDeleteFromInactiveListRejected(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()

	err := s.DeleteFromWhitelist(ctx, auth, scpi.BasicRole{ID: "MSP", Country: "DE"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Cannot delete entry from SCN Rules whitelist")

	require.NoError(t, s.UpdateWhitelist(ctx, auth, []Party{entry("MSP", "DE", "cdrs")}))
	err = s.DeleteFromBlacklist(ctx, auth, scpi.BasicRole{ID: "MSP", Country: "DE"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Cannot delete entry from SCN Rules blacklist")
}

func TestBlockAll(t *testing.T) {
	s, _, _ := newService(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateWhitelist(ctx, auth, []Party{entry("MSP", "DE", "cdrs")}))
	require.NoError(t, s.BlockAll(ctx, auth))

	rules, err := s.Rules(ctx, auth)
	require.NoError(t, err)
	require.True(t, rules.Whitelist.Active)
	require.Empty(t, rules.Whitelist.List)
}

// Hammer the service with interleaved mutations and check the invariant
// that both lists are never active together survives.
func TestConcurrentMutationsKeepInvariant(t *testing.T) {
	s, st, platformID := newService(t)
	ctx := context.Background()

	ops := []func(i int) error{
		func(i int) error { return s.UpdateWhitelist(ctx, auth, []Party{entry("MSP", "DE", "cdrs")}) },
		func(i int) error { return s.UpdateWhitelist(ctx, auth, nil) },
		func(i int) error { return s.UpdateBlacklist(ctx, auth, []Party{entry("CPO", "FR", "tokens")}) },
		func(i int) error { return s.UpdateBlacklist(ctx, auth, nil) },
		func(i int) error { return s.BlockAll(ctx, auth) },
		func(i int) error { return s.ToggleSignatures(ctx, auth) },
		func(i int) error {
			return s.DeleteFromWhitelist(ctx, auth, scpi.BasicRole{ID: "MSP", Country: "DE"})
		},
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 50; i++ {
				// rule conflicts are expected; corruption is not
				_ = ops[rng.Intn(len(ops))](i)

				platform, err := st.PlatformByID(ctx, platformID)
				if err == nil && platform.Rules.Whitelist && platform.Rules.Blacklist {
					t.Error("whitelist and blacklist active at the same time")
					return
				}
			}
		}(int64(w))
	}
	wg.Wait()
}
