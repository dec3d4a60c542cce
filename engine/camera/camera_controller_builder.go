package camera

import "math"

// CameraControllerOption is a functional option for configuring a CameraController.
type CameraControllerOption func(*orbitController)

// WithPosition places the camera at a world-space position, deriving radius, azimuth and elevation relative to the
// target. Apply after WithTarget when both are used.
//
// Parameters:
//   - x, y, z: world-space camera position
//
// Returns:
//   - CameraControllerOption: functional option to set the position
func WithPosition(x, y, z float32) CameraControllerOption {
	return func(cc *orbitController) {
		dx := float64(x - cc.target[0])
		dy := float64(y - cc.target[1])
		dz := float64(z - cc.target[2])
		r := math.Sqrt(dx*dx + dy*dy + dz*dz)
		if r == 0 {
			return
		}
		cc.radius = float32(r)
		cc.azimuth = float32(math.Atan2(dx, dz))
		cc.elevation = float32(math.Asin(dy / r))
	}
}

// WithTarget sets the look-at/pivot point.
//
// Parameters:
//   - x, y, z: world-space target position
//
// Returns:
//   - CameraControllerOption: functional option to set the target position
func WithTarget(x, y, z float32) CameraControllerOption {
	return func(cc *orbitController) {
		cc.target = [3]float32{x, y, z}
	}
}

// WithRadiusBounds sets the zoom limits.
//
// Parameters:
//   - min: minimum distance from the target
//   - max: maximum distance from the target
//
// Returns:
//   - CameraControllerOption: functional option to set the radius bounds
func WithRadiusBounds(min, max float32) CameraControllerOption {
	return func(cc *orbitController) {
		cc.minRadius = min
		cc.maxRadius = max
	}
}

// WithOrbitSpeed sets the keyboard orbit speed in radians per step.
func WithOrbitSpeed(speed float32) CameraControllerOption {
	return func(cc *orbitController) {
		cc.orbitSpeed = speed
	}
}

// WithZoomSpeed sets the zoom speed multiplier.
func WithZoomSpeed(speed float32) CameraControllerOption {
	return func(cc *orbitController) {
		cc.zoomSpeed = speed
	}
}

// WithDragSpeed sets the radians turned per pixel of pointer drag.
func WithDragSpeed(speed float32) CameraControllerOption {
	return func(cc *orbitController) {
		cc.dragSpeed = speed
	}
}
