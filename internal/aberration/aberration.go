// Package aberration models generalized wavefront aberrations in a polar,
// rotationally-symmetric basis: parsing coefficient tables, merging explicit
// defocus/spherical overrides, and evaluating the aberration phase function
// over a reciprocal-space grid.
package aberration

import (
	"math"
	"sort"
)

// Aberration is one term of the wavefront aberration expansion. M is the
// azimuthal order, N the radial order. Mag carries basis-set units after
// Update; Angle is in degrees.
type Aberration struct {
	M, N       int
	Mag, Angle float64
}

// valid reports whether (m, n) is a member of the rotationally-symmetric
// basis: m <= n with m+n even.
func (a Aberration) valid() bool {
	return a.M <= a.N && (a.M+a.N)%2 == 0
}

// Update derives a new aberration set from base plus the explicit defocus
// (C1), third-order (C3), and fifth-order (C5) spherical aberration scalars,
// all in the same length unit as lambda. The base set is sorted by (m, n),
// deduplicated, and pruned of terms outside the basis. A non-zero override
// then replaces the magnitude of the matching (0, n) term with
// scalar*pi/(k*lambda), k = 1, 2, 3, or appends a zero-angle term if no such
// term exists. The input slice is never mutated.
func Update(base []Aberration, c1, c3, c5, lambda float64) []Aberration {
	ab := make([]Aberration, len(base))
	copy(ab, base)

	if len(ab) > 0 {
		sort.SliceStable(ab, func(i, j int) bool {
			if ab[i].M != ab[j].M {
				return ab[i].M < ab[j].M
			}
			return ab[i].N < ab[j].N
		})

		kept := ab[:0]
		for i, a := range ab {
			if i > 0 && a.M == ab[i-1].M && a.N == ab[i-1].N {
				continue
			}
			if !a.valid() {
				continue
			}
			kept = append(kept, a)
		}
		ab = kept
	}

	ab = override(ab, 2, c1, c1*math.Pi/lambda)
	ab = override(ab, 4, c3, c3*math.Pi/(2.0*lambda))
	ab = override(ab, 6, c5, c5*math.Pi/(3.0*lambda))
	return ab
}

// override replaces the magnitude of the (0, n) term when the scalar is
// active, appending a zero-angle term if absent. Only the magnitude of an
// existing term changes; its angle is untouched (meaningless for m=0).
func override(ab []Aberration, n int, scalar, mag float64) []Aberration {
	if math.Abs(scalar) == 0.0 {
		return ab
	}
	for i := range ab {
		if ab[i].M == 0 && ab[i].N == n {
			ab[i].Mag = mag
			return ab
		}
	}
	return append(ab, Aberration{M: 0, N: n, Mag: mag, Angle: 0.0})
}
