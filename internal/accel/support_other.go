//go:build !unix

package accel

func hostSupportsNeural() bool { return false }

func hostSupportsGPU() bool { return false }
