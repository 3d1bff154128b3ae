// Package rknn binds the Rockchip RKNN runtime (librknnrt / librknn_api)
// through cgo. The driver is compiled only with the rknn build tag and
// registers itself as "rknn"; without the tag the package is empty and
// importing it has no effect.
//
//	go build -tags rknn ./cmd/rkbackend
package rknn

// DriverName is the configuration name of the RKNN driver.
const DriverName = "rknn"
