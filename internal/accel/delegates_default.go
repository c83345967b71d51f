//go:build !onnx

package accel

// Builds without the onnx tag have no hardware delegates; Init always fails
// and selection falls through to CPU.

type stubDelegate struct {
	kind      Kind
	supported func() bool
}

func (d stubDelegate) Kind() Kind      { return d.kind }
func (d stubDelegate) Supported() bool { return d.supported() }

func (d stubDelegate) Init(int) (Handle, error) {
	return nil, ErrUnavailable
}

func newNeuralDelegate() Delegate {
	return stubDelegate{kind: Neural, supported: hostSupportsNeural}
}

func newGPUDelegate() Delegate {
	return stubDelegate{kind: GPU, supported: hostSupportsGPU}
}
