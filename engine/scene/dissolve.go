package scene

import (
	"github.com/Carmen-Shannon/oxy-particles/common"
	"github.com/Carmen-Shannon/oxy-particles/config"
)

const (
	// alphaStep is the change of the threshold per [ or ] key press.
	alphaStep = 0.02
	// hideSpeedStep is the change of the hide speed per - or = key press.
	hideSpeedStep = 0.02
)

// dissolve is the host side state of the disintegration. The threshold rises at HideSpeed until the emitting band
// has passed every texel, after which nothing emits and the particles fade out.
type dissolve struct {
	tunables config.Tunables

	alpha  float32
	paused bool
}

func newDissolve(t config.Tunables) dissolve {
	return dissolve{tunables: t, alpha: t.AlphaReference}
}

// limit is the threshold at which the band is below every noise value in [0,1].
func (d *dissolve) limit() float32 {
	return 1 + d.tunables.DeltaAlphaEstimation
}

func (d *dissolve) advance(dt float32) {
	if d.paused || dt <= 0 {
		return
	}
	d.alpha = min(d.alpha+d.tunables.HideSpeed*dt, d.limit())
}

func (d *dissolve) nudgeAlpha(delta float32) {
	d.alpha = common.Clamp(d.alpha+delta, 0, d.limit())
}

func (d *dissolve) nudgeHideSpeed(delta float32) {
	d.tunables.HideSpeed = max(d.tunables.HideSpeed+delta, 0)
}

func (d *dissolve) reset() {
	d.alpha = d.tunables.AlphaReference
}

// setTunables replaces the tunables. The running threshold restarts only when the configured reference moved.
func (d *dissolve) setTunables(t config.Tunables) {
	if t.AlphaReference != d.tunables.AlphaReference {
		d.alpha = t.AlphaReference
	}
	d.tunables = t
	d.alpha = min(d.alpha, d.limit())
}

// modelAlpha is the opacity of the mesh in composition.
func (d *dissolve) modelAlpha() float32 {
	return common.Clamp(1-d.alpha, 0, 1)
}

// done reports whether the band has passed every texel.
func (d *dissolve) done() bool {
	return d.alpha >= d.limit()
}
