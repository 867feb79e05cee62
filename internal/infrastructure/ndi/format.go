package ndi

import "ndilive/internal/core/domain"

// VideoDataSize returns the byte length of a video buffer with the given
// layout, covering every plane.
func VideoDataSize(fourcc domain.FourCC, stride, width, height int) int {
	if stride <= 0 || height <= 0 {
		return 0
	}
	switch fourcc {
	case domain.FourCCNV12, domain.FourCCI420:
		return stride*height + stride*height/2
	case domain.FourCCUYVA:
		return stride*height + width*height
	case domain.FourCCP216:
		return stride * height * 2
	default:
		return stride * height
	}
}
