package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/linksync/internal/ir"
)

func pairing(group, role string) ir.Pairing {
	return ir.Pairing{
		GameID:     ir.GameID{Group: group},
		DiscordID:  ir.DiscordID(role),
		Direction:  ir.DirectionBidirectional,
		TieBreaker: ir.SideDiscord,
	}
}

func TestConfigureIndexesBothSides(t *testing.T) {
	r := New()
	errs := r.Configure([]ir.Pairing{
		pairing("vip", "role-1"),
		pairing("vip", "role-2"),
		pairing("mod", "role-1"),
	})
	require.Empty(t, errs)
	assert.Equal(t, 3, r.Len())

	byGame := r.ByGame(ir.GameID{Group: "vip"})
	require.Len(t, byGame, 2)
	assert.Equal(t, ir.DiscordID("role-1"), byGame[0].DiscordID)
	assert.Equal(t, ir.DiscordID("role-2"), byGame[1].DiscordID)

	byDiscord := r.ByDiscord("role-1")
	require.Len(t, byDiscord, 2)
	assert.Equal(t, "vip", byDiscord[0].GameID.Group)
	assert.Equal(t, "mod", byDiscord[1].GameID.Group)

	assert.Nil(t, r.ByGame(ir.GameID{Group: "nobody"}))
	assert.Nil(t, r.ByDiscord("role-9"))
}

func TestConfigureNormalizesIdentifiers(t *testing.T) {
	r := New()
	require.Empty(t, r.Configure([]ir.Pairing{{
		GameID:    ir.GameID{Group: " VIP ", Context: "Survival"},
		DiscordID: " role-1 ",
	}}))

	got := r.ByGame(ir.GameID{Group: "vip", Context: "survival"})
	require.Len(t, got, 1)
	assert.Equal(t, ir.DirectionBidirectional, got[0].Direction)
	assert.Equal(t, ir.SideDiscord, got[0].TieBreaker)

	_, ok := r.Get(ir.PairKey{Game: ir.GameID{Group: "vip", Context: "survival"}, Discord: "role-1"})
	assert.True(t, ok)
}

func TestConfigureRejectsDuplicatesFirstWins(t *testing.T) {
	first := pairing("vip", "role-1")
	first.Name = "first"
	second := pairing("VIP", "role-1")
	second.Name = "second"
	second.TieBreaker = ir.SideGame

	r := New()
	errs := r.Configure([]ir.Pairing{first, second})

	require.Len(t, errs, 1)
	assert.True(t, ir.IsFailureKind(errs[0], ir.FailureConfigurationRejected))
	assert.Contains(t, errs[0].Error(), "duplicate")

	got := r.ByGame(ir.GameID{Group: "vip"})
	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].Name)
	assert.Equal(t, ir.SideDiscord, got[0].TieBreaker)
	assert.Len(t, r.ByDiscord("role-1"), 1)
}

func TestConfigureRejectsInvalidButLoadsRest(t *testing.T) {
	bad := pairing("", "role-1")
	badDir := pairing("mod", "role-2")
	badDir.Direction = "sideways"

	r := New()
	errs := r.Configure([]ir.Pairing{bad, pairing("vip", "role-1"), badDir})

	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.True(t, ir.IsFailureKind(err, ir.FailureConfigurationRejected))
	}

	var verrs ValidationErrors
	require.True(t, errors.As(errs[0], &verrs))
	assert.Equal(t, ErrGroupEmpty, verrs[0].Code)

	require.True(t, errors.As(errs[1], &verrs))
	assert.Equal(t, ErrInvalidDirection, verrs[0].Code)

	assert.Equal(t, 1, r.Len())
}

func TestConfigureExternalValidator(t *testing.T) {
	r := New(WithValidator(func(p ir.Pairing) error {
		if p.DiscordID == "role-deleted" {
			return fmt.Errorf("role %s does not exist", p.DiscordID)
		}
		return nil
	}))

	errs := r.Configure([]ir.Pairing{pairing("vip", "role-deleted"), pairing("vip", "role-1")})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "does not exist")
	assert.Equal(t, 1, r.Len())
}

func TestConfigureReplacesWholesale(t *testing.T) {
	r := New()
	require.Empty(t, r.Configure([]ir.Pairing{pairing("vip", "role-1")}))
	require.Empty(t, r.Configure([]ir.Pairing{pairing("mod", "role-2")}))

	assert.Nil(t, r.ByGame(ir.GameID{Group: "vip"}))
	assert.Len(t, r.ByGame(ir.GameID{Group: "mod"}), 1)
	assert.Equal(t, 1, r.Len())

	require.Empty(t, r.Configure(nil))
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.All())
}

func TestCheckDoesNotTouchActiveSet(t *testing.T) {
	r := New()
	require.Empty(t, r.Configure([]ir.Pairing{pairing("vip", "role-1")}))

	accepted, errs := r.Check([]ir.Pairing{pairing("mod", "role-2"), pairing("mod", "role-2")})
	assert.Len(t, accepted, 1)
	assert.Len(t, errs, 1)

	assert.Len(t, r.ByGame(ir.GameID{Group: "vip"}), 1)
	assert.Nil(t, r.ByGame(ir.GameID{Group: "mod"}))
}

func TestLookupsReturnCopies(t *testing.T) {
	r := New()
	require.Empty(t, r.Configure([]ir.Pairing{pairing("vip", "role-1")}))

	got := r.ByGame(ir.GameID{Group: "vip"})
	got[0].Direction = ir.DirectionDiscordToGame

	all := r.All()
	all[0].Name = "mutated"

	p, ok := r.Get(ir.PairKey{Game: ir.GameID{Group: "vip"}, Discord: "role-1"})
	require.True(t, ok)
	assert.Equal(t, ir.DirectionBidirectional, p.Direction)
	assert.Equal(t, "", p.Name)
}

// Readers racing a reload see the old set or the new set, never a mix.
func TestConcurrentReloadAtomicity(t *testing.T) {
	setA := []ir.Pairing{pairing("vip", "role-1"), pairing("vip", "role-2")}
	setB := []ir.Pairing{pairing("vip", "role-3"), pairing("vip", "role-4"), pairing("vip", "role-5")}

	r := New()
	require.Empty(t, r.Configure(setA))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				got := r.ByGame(ir.GameID{Group: "vip"})
				switch len(got) {
				case 2:
					assert.Equal(t, ir.DiscordID("role-1"), got[0].DiscordID)
				case 3:
					assert.Equal(t, ir.DiscordID("role-3"), got[0].DiscordID)
				default:
					t.Errorf("partial index observed: %d pairings", len(got))
					return
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			r.Configure(setB)
		} else {
			r.Configure(setA)
		}
	}
	close(stop)
	wg.Wait()
}

func TestLookupsDoNotShareTimers(t *testing.T) {
	r := New()
	p := pairing("vip", "role-1")
	p.Timer = &ir.TimerSpec{CycleMinutes: 5, Enabled: true}
	require.Empty(t, r.Configure([]ir.Pairing{p}))

	r.ByGame(ir.GameID{Group: "vip"})[0].Timer.CycleMinutes = 1
	r.ByDiscord("role-1")[0].Timer.Enabled = false
	got, ok := r.Get(p.Key())
	require.True(t, ok)
	got.Timer.CycleMinutes = 2
	r.All()[0].Timer.CycleMinutes = 3

	// The caller's own spec is not aliased either.
	p.Timer.CycleMinutes = 4

	got, ok = r.Get(p.Key())
	require.True(t, ok)
	assert.Equal(t, &ir.TimerSpec{CycleMinutes: 5, Enabled: true}, got.Timer)
}
