// Package inversion is C10, the tie graph & inversion driver: it builds
// a sparse linear system from the project's Set crossings, hands it to
// an external least-squares solver, and writes the resulting per-snav
// offsets back into the project.
//
// Grounded on original_source/mbnavadjust_callbacks.c's tie-graph solve
// (each tie contributes rows scaled by its sigma, one reference snav per
// fixed file pinned to zero) restated as an explicit sparse-matrix build
// instead of the original's in-place Gauss-Seidel working arrays. The
// "external solver" of spec.md §4.10 is gonum.org/v1/gonum/mat's
// least-squares Solve, following the numerical-routine role gonum plays
// in the sibling velocity-report tool's stat package.
package inversion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/oceanfusion/mbnavfuse/internal/mberrors"
	"github.com/oceanfusion/mbnavfuse/internal/project"
)

// snavKey identifies one snav unknown by (file, section, index).
type snavKey struct {
	fileID, sectionID, snavIdx int
}

// Result reports the outcome of a successful solve.
type Result struct {
	NumUnknowns int
	NumRows     int
	Residual    float64 // RMS residual after solve
}

// divergenceThreshold is the RMS residual (metres) above which a solve
// is treated as diverged rather than merely imprecise.
const divergenceThreshold = 1e6

// Solve builds A*x = b from sess's Set crossings, solves it, and writes
// x back into each participating Section's Snav corrections. Fixed
// files' snavs are pinned at zero and excluded from the unknown vector.
// On success every tie is marked Current and sess.InversionStatus is set
// to Current; on ErrSolverDiverged the project is left untouched.
func Solve(sess *project.Session) (Result, error) {
	unknownIndex := map[snavKey]int{}
	var unknownKeys []snavKey

	fixedFile := func(fileID int) bool {
		f, ok := sess.File(fileID)
		return ok && f.Fixed
	}

	indexFor := func(k snavKey) (idx int, fixed bool) {
		if fixedFile(k.fileID) {
			return -1, true
		}
		if i, ok := unknownIndex[k]; ok {
			return i, false
		}
		i := len(unknownKeys)
		unknownIndex[k] = i
		unknownKeys = append(unknownKeys, k)
		return i, false
	}

	type row struct {
		coeffs map[int]float64
		rhs    float64
	}
	var rows []row

	for _, c := range sess.Crossings {
		if c.Status != project.CrossingSet {
			continue
		}
		for _, t := range c.Ties {
			ka := snavKey{c.FileA, c.SectionA, t.SnavA}
			kb := snavKey{c.FileB, c.SectionB, t.SnavB}
			ia, fixedA := indexFor(ka)
			ib, fixedB := indexFor(kb)
			if fixedA && fixedB {
				continue // both ends pinned: no information to solve for
			}

			sigmas := [3]float64{t.SigmaR1, t.SigmaR2, t.SigmaR3}
			offset := [3]float64{t.OffX, t.OffY, t.OffZ}
			for axis := 0; axis < 3; axis++ {
				sigma := sigmas[axis]
				if sigma <= 0 {
					sigma = 1
				}
				basisRow := t.Basis[axis*3 : axis*3+3]

				coeffs := map[int]float64{}
				var rhs float64
				for d := 0; d < 3; d++ {
					w := basisRow[d] / sigma
					if !fixedB {
						coeffs[ib*3+d] += w
					}
					if !fixedA {
						coeffs[ia*3+d] -= w
					}
					rhs += w * offset[d]
				}
				rows = append(rows, row{coeffs: coeffs, rhs: rhs})
			}
		}
	}

	numUnknowns := 3 * len(unknownKeys)
	if numUnknowns == 0 || len(rows) == 0 {
		return Result{NumUnknowns: numUnknowns, NumRows: len(rows)}, nil
	}

	A := mat.NewDense(len(rows), numUnknowns, nil)
	b := mat.NewVecDense(len(rows), nil)
	for r, rw := range rows {
		for col, v := range rw.coeffs {
			A.Set(r, col, v)
		}
		b.SetVec(r, rw.rhs)
	}

	var x mat.VecDense
	if err := x.SolveVec(A, b); err != nil {
		return Result{}, fmt.Errorf("%w: %v", mberrors.ErrSolverDiverged, err)
	}

	var residualVec mat.VecDense
	residualVec.MulVec(A, &x)
	residualVec.SubVec(&residualVec, b)
	rms := math.Sqrt(mat.Dot(&residualVec, &residualVec) / float64(residualVec.Len()))
	if math.IsNaN(rms) || rms > divergenceThreshold {
		return Result{}, fmt.Errorf("%w: rms residual %g", mberrors.ErrSolverDiverged, rms)
	}

	for i, k := range unknownKeys {
		sec, ok := sess.Section(k.fileID, k.sectionID)
		if !ok || k.snavIdx < 0 || k.snavIdx >= len(sec.Snav) {
			continue
		}
		sec.Snav[k.snavIdx].XCorrection = x.AtVec(3*i + 0)
		sec.Snav[k.snavIdx].YCorrection = x.AtVec(3*i + 1)
		sec.Snav[k.snavIdx].ZCorrection = x.AtVec(3*i + 2)
	}

	reinterpolateSections(sess, unknownKeys)
	sess.MarkSolved()

	return Result{NumUnknowns: numUnknowns, NumRows: len(rows), Residual: rms}, nil
}

// reinterpolateSections re-derives every snav's corrected position as
// the raw nav plus its solved correction; snavs between solved control
// points (those untouched by any tie) receive a linear blend of the
// nearest solved corrections along section time, per spec.md §4.10 step 3.
func reinterpolateSections(sess *project.Session, solved []snavKey) {
	touchedBySection := map[[2]int]map[int]bool{}
	for _, k := range solved {
		key := [2]int{k.fileID, k.sectionID}
		if touchedBySection[key] == nil {
			touchedBySection[key] = map[int]bool{}
		}
		touchedBySection[key][k.snavIdx] = true
	}

	for _, f := range sess.Files {
		for _, sec := range f.Sections {
			touched := touchedBySection[[2]int{f.ID, sec.ID}]
			if len(touched) == 0 {
				continue
			}
			blendUnsolvedSnavs(sec, touched)
		}
	}
}

func blendUnsolvedSnavs(sec *project.Section, touched map[int]bool) {
	n := len(sec.Snav)
	// find indices of solved snavs, in order
	var solvedIdx []int
	for i := 0; i < n; i++ {
		if touched[i] {
			solvedIdx = append(solvedIdx, i)
		}
	}
	if len(solvedIdx) == 0 {
		return
	}

	for i := 0; i < n; i++ {
		if touched[i] {
			continue
		}
		lo, hi := -1, -1
		for _, s := range solvedIdx {
			if s <= i {
				lo = s
			}
			if s >= i && hi == -1 {
				hi = s
			}
		}
		switch {
		case lo == -1:
			sec.Snav[i].XCorrection = sec.Snav[hi].XCorrection
			sec.Snav[i].YCorrection = sec.Snav[hi].YCorrection
			sec.Snav[i].ZCorrection = sec.Snav[hi].ZCorrection
		case hi == -1:
			sec.Snav[i].XCorrection = sec.Snav[lo].XCorrection
			sec.Snav[i].YCorrection = sec.Snav[lo].YCorrection
			sec.Snav[i].ZCorrection = sec.Snav[lo].ZCorrection
		case lo == hi:
			sec.Snav[i].XCorrection = sec.Snav[lo].XCorrection
			sec.Snav[i].YCorrection = sec.Snav[lo].YCorrection
			sec.Snav[i].ZCorrection = sec.Snav[lo].ZCorrection
		default:
			tLo := sec.Snav[lo].Time.UnixNano()
			tHi := sec.Snav[hi].Time.UnixNano()
			tt := sec.Snav[i].Time.UnixNano()
			frac := 0.0
			if tHi != tLo {
				frac = float64(tt-tLo) / float64(tHi-tLo)
			}
			sec.Snav[i].XCorrection = sec.Snav[lo].XCorrection + frac*(sec.Snav[hi].XCorrection-sec.Snav[lo].XCorrection)
			sec.Snav[i].YCorrection = sec.Snav[lo].YCorrection + frac*(sec.Snav[hi].YCorrection-sec.Snav[lo].YCorrection)
			sec.Snav[i].ZCorrection = sec.Snav[lo].ZCorrection + frac*(sec.Snav[hi].ZCorrection-sec.Snav[lo].ZCorrection)
		}
	}
}
