// Package tensor provides the dense, row-major tensor storage used to hand
// calibration data to conversion engines.
package tensor
