// Package msi implements the Msi package engine: detect via product-code
// presence, execute via an installer-runtime collaborator, and the
// progress-tick state machine that turns the installer's raw 4-tuple
// ticks into a single 0-100 overall percent.
package msi

// phaseWeights assigns each of the three phases an installer run passes
// through its share of the overall 0-100 scale: planning, execution,
// cleanup.
var phaseWeights = [3]int{15, 80, 5}

// firstPhaseFudge is added to the first phase's total to avoid the
// progress bar overshooting 100% while the installer is still planning
// (the total reported during planning routinely undercounts the actual
// work once execution starts).
const firstPhaseFudge = 50

// phase tracks one planning/execution/cleanup segment of the installer's
// progress stream.
type phase struct {
	total     int
	completed int
	forward   bool
	scripted  bool
	stepSize  int
	stepping  bool
}

// ProgressTranslator converts the installer's raw tick tuples into a
// monotone overall percent. One instance is used per Execute call.
type ProgressTranslator struct {
	phases []phase
}

// NewProgressTranslator returns a translator with no phases; the first
// tick is expected to be a master reset (f0=0) that pushes phase one.
func NewProgressTranslator() *ProgressTranslator {
	return &ProgressTranslator{}
}

// Tick feeds one raw [f0,f1,f2,f3] tuple and returns the updated overall
// percent in [0,100].
func (t *ProgressTranslator) Tick(f0, f1, f2, f3 int) int {
	switch f0 {
	case 0: // master reset: push a new phase
		total := f1
		if len(t.phases) == 0 {
			total += firstPhaseFudge
		}
		completed := 0
		if f2 != 0 {
			completed = f1
		}
		t.phases = append(t.phases, phase{
			total:     total,
			completed: completed,
			forward:   f2 == 0,
			scripted:  f3 == 1,
		})

	case 1: // action start: enable/disable step-based increments
		if len(t.phases) == 0 {
			break
		}
		cur := &t.phases[len(t.phases)-1]
		if f1 == 0 {
			cur.stepping = false
		} else {
			cur.stepping = true
			cur.stepSize = f1
		}

	case 2: // progress report
		if len(t.phases) == 0 {
			break
		}
		cur := &t.phases[len(t.phases)-1]
		delta := f1
		if cur.stepping {
			delta = cur.stepSize
		}
		if cur.forward {
			cur.completed += delta
		} else {
			cur.completed -= delta
		}
		cur.completed = clamp(cur.completed, 0, cur.total)

	case 3: // total extension
		if len(t.phases) == 0 {
			break
		}
		cur := &t.phases[len(t.phases)-1]
		cur.total += f1
	}

	return t.overallPercent()
}

// overallPercent sums each completed phase's full weight, the current
// phase's fractional weight, and zero for phases not yet reached.
func (t *ProgressTranslator) overallPercent() int {
	if len(t.phases) == 0 {
		return 0
	}

	lastIdx := len(t.phases) - 1
	total := 0.0
	for i, p := range t.phases {
		weight := weightFor(i, len(phaseWeights))
		if i < lastIdx {
			total += float64(weight)
			continue
		}
		if p.total <= 0 {
			continue
		}
		frac := float64(p.completed) / float64(p.total)
		if frac < 0 {
			frac = 0
		}
		if frac > 1 {
			frac = 1
		}
		total += frac * float64(weight)
	}

	return clamp(int(total), 0, 100)
}

// weightFor returns the weight for phase index i, reusing the last
// declared weight for any phase beyond the three named ones (a
// degenerate case the real installer never produces but which the state
// machine must still handle without panicking).
func weightFor(i, numWeights int) int {
	if i < numWeights {
		return phaseWeights[i]
	}
	return phaseWeights[numWeights-1]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
