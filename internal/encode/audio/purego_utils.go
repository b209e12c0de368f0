//go:build darwin || linux

package audio

import "unsafe"

// goStringFromPtr converts a C string pointer to a Go string, shared by the
// Opus and AAC purego backends, adapted from the teacher's purego_utils.go.
func goStringFromPtr(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	p := unsafe.Pointer(ptr)
	var length int
	for {
		if *(*byte)(unsafe.Pointer(uintptr(p) + uintptr(length))) == 0 {
			break
		}
		length++
		if length > 1024 {
			break
		}
	}
	if length == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), length))
}
