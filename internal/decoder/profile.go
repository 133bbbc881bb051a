package decoder

import (
	"fmt"
	"sort"
	"strings"
)

const noSlot = -1

// Slot addresses a value stored in one field element, or split into low and
// high 128-bit halves.
type Slot struct {
	Low  int
	High int
}

// Single addresses a value held in one field element.
func Single(idx int) Slot {
	return Slot{Low: idx, High: noSlot}
}

// Pair addresses a u256 value serialized as (low, high).
func Pair(low, high int) Slot {
	return Slot{Low: low, High: high}
}

// Wide reports whether the value spans two field elements.
func (s Slot) Wide() bool {
	return s.High != noSlot
}

func (s Slot) max() int {
	if s.High > s.Low {
		return s.High
	}
	return s.Low
}

// Profile is a positional offset table for one BetPlace payload layout.
type Profile struct {
	Name            string
	Direction       int
	HasClaimed      int
	Amount          Slot
	ClaimableAmount Slot
	NoOdds          Slot
	YesOdds         Slot
	// User is the slot of the bettor address, or -1 when the payload has none.
	User int

	AmountDecimals int32
	OddsDecimals   int32
}

// MinLength is the shortest payload the profile can decode.
func (p Profile) MinLength() int {
	highest := p.Direction
	for _, idx := range []int{
		p.HasClaimed,
		p.User,
		p.Amount.max(),
		p.ClaimableAmount.max(),
		p.NoOdds.max(),
		p.YesOdds.max(),
	} {
		if idx > highest {
			highest = idx
		}
	}
	return highest + 1
}

// Validate checks the offsets and scaling of the profile.
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if p.Direction < 0 || p.HasClaimed < 0 {
		return fmt.Errorf("profile %s: boolean offsets must be >= 0", p.Name)
	}
	for _, s := range []Slot{p.Amount, p.ClaimableAmount, p.NoOdds, p.YesOdds} {
		if s.Low < 0 || (s.High < 0 && s.High != noSlot) {
			return fmt.Errorf("profile %s: invalid slot %+v", p.Name, s)
		}
	}
	if p.User < noSlot {
		return fmt.Errorf("profile %s: invalid user slot %d", p.Name, p.User)
	}
	if p.AmountDecimals < 0 || p.OddsDecimals < 0 {
		return fmt.Errorf("profile %s: decimals must be >= 0", p.Name)
	}
	return nil
}

// ProfileV1 is the legacy layout with single-felt amounts and u64 odds.
var ProfileV1 = Profile{
	Name:            "v1",
	Direction:       0,
	Amount:          Single(1),
	HasClaimed:      3,
	ClaimableAmount: Single(4),
	NoOdds:          Single(6),
	YesOdds:         Single(8),
	User:            noSlot,
	AmountDecimals:  18,
	OddsDecimals:    0,
}

// ProfileV2 carries u256 amounts and odds as (low, high) pairs.
var ProfileV2 = Profile{
	Name:            "v2",
	Direction:       0,
	HasClaimed:      1,
	Amount:          Pair(2, 3),
	ClaimableAmount: Pair(4, 5),
	NoOdds:          Pair(6, 7),
	YesOdds:         Pair(8, 9),
	User:            noSlot,
	AmountDecimals:  18,
	OddsDecimals:    0,
}

// ProfileV3 prefixes the V2 layout with the bettor address.
var ProfileV3 = Profile{
	Name:            "v3",
	User:            0,
	Direction:       1,
	HasClaimed:      2,
	Amount:          Pair(3, 4),
	ClaimableAmount: Pair(5, 6),
	NoOdds:          Pair(7, 8),
	YesOdds:         Pair(9, 10),
	AmountDecimals:  18,
	OddsDecimals:    18,
}

var profiles = map[string]Profile{
	ProfileV1.Name: ProfileV1,
	ProfileV2.Name: ProfileV2,
	ProfileV3.Name: ProfileV3,
}

// Lookup returns a built-in profile by name.
func Lookup(name string) (Profile, error) {
	p, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Profile{}, fmt.Errorf("unknown decoding profile %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return p, nil
}

// Names lists the built-in profile names.
func Names() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
