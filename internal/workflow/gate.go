package workflow

import (
	"math/bits"
	"time"
)

// Permissions is what an interface may offer for an idea at a given instant.
type Permissions struct {
	VotingAllowed     bool `json:"votingAllowed"`
	CommentingAllowed bool `json:"commentingAllowed"`
}

// VotingAllowed reports whether now - creation <= 2/3 of (decision - creation).
// Missing or inverted deadline data never blocks interaction.
func VotingAllowed(creation, decision, now time.Time) bool {
	return within(creation, decision, now, 2, 3)
}

// CommentingAllowed reports whether now - creation <= 1/3 of (decision - creation).
func CommentingAllowed(creation, decision, now time.Time) bool {
	return within(creation, decision, now, 1, 3)
}

// Evaluate computes both predicates at once. Every call site (cards, detail page,
// sidebar and the vote/comment write paths) goes through here.
func Evaluate(creation, decision, now time.Time) Permissions {
	return Permissions{
		VotingAllowed:     VotingAllowed(creation, decision, now),
		CommentingAllowed: CommentingAllowed(creation, decision, now),
	}
}

// within compares elapsed*den <= span*num on 128-bit nanosecond counts built from
// Unix seconds, so the cutoff is exact even when decision - creation overflows a
// time.Duration.
func within(creation, decision, now time.Time, num, den uint64) bool {
	if creation.IsZero() || decision.IsZero() {
		return true
	}
	sHi, sLo, ok := nanosBetween(creation, decision)
	if !ok {
		return true
	}
	eHi, eLo, ok := nanosBetween(creation, now)
	if !ok {
		return true
	}

	eHi, eLo = mul128(eHi, eLo, den)
	sHi, sLo = mul128(sHi, sLo, num)
	return eHi < sHi || (eHi == sHi && eLo <= sLo)
}

// nanosBetween returns to - from in nanoseconds as (hi, lo), or ok=false when to
// is not after from.
func nanosBetween(from, to time.Time) (hi, lo uint64, ok bool) {
	secs := to.Unix() - from.Unix()
	nsec := int64(to.Nanosecond()) - int64(from.Nanosecond())
	if nsec < 0 {
		secs--
		nsec += int64(time.Second)
	}
	if secs < 0 || (secs == 0 && nsec == 0) {
		return 0, 0, false
	}

	hi, lo = bits.Mul64(uint64(secs), uint64(time.Second))
	var carry uint64
	lo, carry = bits.Add64(lo, uint64(nsec), 0)
	return hi + carry, lo, true
}

// mul128 multiplies (hi, lo) by a small factor; callers keep the product below 2^128.
func mul128(hi, lo, k uint64) (uint64, uint64) {
	h, l := bits.Mul64(lo, k)
	return hi*k + h, l
}
