package liverange

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gasstools/gassc/internal/engine/gass/ir"
)

func TestNew_invalid(t *testing.T) {
	require.Panics(t, func() { New(4, 4) })
	require.Panics(t, func() { New(5, 4) })
	require.NotPanics(t, func() { New(4, 5) })
}

func TestRange_Contains(t *testing.T) {
	r := New(2, 6)
	for p := ir.Point(-2); p < 10; p++ {
		exp := 2 <= p && p < 6
		require.Equal(t, exp, r.Contains(p), p)
		require.Equal(t, exp, r.LiveAt(p), p)
		require.Equal(t, !exp, r.ExpireAt(p), p)
	}
	require.Equal(t, ir.Point(2), r.Start())
	require.Equal(t, ir.Point(6), r.End())
	require.Equal(t, "[2, 6)", r.String())
}

func TestRange_Overlaps(t *testing.T) {
	for _, tc := range []struct {
		name string
		a, b Range
		exp  bool
	}{
		{name: "disjoint", a: New(0, 2), b: New(4, 6), exp: false},
		{name: "touching", a: New(0, 4), b: New(4, 6), exp: false},
		{name: "one point", a: New(0, 5), b: New(4, 6), exp: true},
		{name: "nested", a: New(0, 10), b: New(4, 6), exp: true},
		{name: "same", a: New(2, 3), b: New(2, 3), exp: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.exp, tc.a.Overlaps(tc.b))
			require.Equal(t, tc.exp, tc.b.Overlaps(tc.a))
		})
	}
}

// TestRange_OverlapsExhaustive checks Overlaps against the pointwise definition.
func TestRange_OverlapsExhaustive(t *testing.T) {
	const n = 8
	for s1 := ir.Point(0); s1 < n; s1++ {
		for e1 := s1 + 1; e1 <= n; e1++ {
			for s2 := ir.Point(0); s2 < n; s2++ {
				for e2 := s2 + 1; e2 <= n; e2++ {
					a, b := New(s1, e1), New(s2, e2)
					var shared bool
					for p := ir.Point(0); p < n; p++ {
						shared = shared || (a.Contains(p) && b.Contains(p))
					}
					require.Equal(t, shared, a.Overlaps(b), "%s %s", a, b)
				}
			}
		}
	}
}
