//go:build !linux

package sampler

import "errors"

var errUnsupported = errors.New("memory sampling is only supported on linux")

func processRSS(_ int) (uint64, error) {
	return 0, errUnsupported
}

func descendants(root int) []int {
	return []int{root}
}

func availableMemory() (uint64, error) {
	return 0, errUnsupported
}
