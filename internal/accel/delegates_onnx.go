//go:build onnx

package accel

import (
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// EnvSharedLibrary overrides the onnxruntime shared library location.
const EnvSharedLibrary = "POCKETLM_ORT_LIBRARY"

var (
	envMu   sync.Mutex
	envRefs int
)

// acquireEnv initializes the process-wide onnxruntime environment on first
// use and reference-counts it so the last handle tears it down.
func acquireEnv() error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 && !ort.IsInitialized() {
		if lib := os.Getenv(EnvSharedLibrary); lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}
	envRefs++
	return nil
}

func releaseEnv() error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 {
		return nil
	}
	envRefs--
	if envRefs == 0 && ort.IsInitialized() {
		return ort.DestroyEnvironment()
	}
	return nil
}

type ortHandle struct {
	choice  Choice
	options *ort.SessionOptions
	once    sync.Once
	err     error
}

func (h *ortHandle) Choice() Choice { return h.choice }

func (h *ortHandle) Close() error {
	h.once.Do(func() {
		var errs []error
		if h.options != nil {
			errs = append(errs, h.options.Destroy())
			h.options = nil
		}
		errs = append(errs, releaseEnv())
		h.err = errors.Join(errs...)
	})
	return h.err
}

type ortDelegate struct {
	kind      Kind
	supported func() bool
	attach    func(*ort.SessionOptions) error
}

func (d ortDelegate) Kind() Kind      { return d.kind }
func (d ortDelegate) Supported() bool { return d.supported() }

func (d ortDelegate) Init(threads int) (Handle, error) {
	if err := acquireEnv(); err != nil {
		return nil, err
	}
	opts, err := ort.NewSessionOptions()
	if err != nil {
		_ = releaseEnv()
		return nil, fmt.Errorf("session options: %w", err)
	}
	cleanup := func(err error) (Handle, error) {
		_ = opts.Destroy()
		_ = releaseEnv()
		return nil, err
	}
	threads = max(threads, 1)
	if err := opts.SetIntraOpNumThreads(threads); err != nil {
		return cleanup(fmt.Errorf("set threads: %w", err))
	}
	if err := d.attach(opts); err != nil {
		return cleanup(fmt.Errorf("attach %s execution provider: %w", d.kind, err))
	}
	return &ortHandle{choice: Choice{Kind: d.kind, Threads: threads}, options: opts}, nil
}

func newNeuralDelegate() Delegate {
	return ortDelegate{
		kind:      Neural,
		supported: hostSupportsNeural,
		attach: func(opts *ort.SessionOptions) error {
			return opts.AppendExecutionProviderCoreML(0)
		},
	}
}

func newGPUDelegate() Delegate {
	return ortDelegate{
		kind:      GPU,
		supported: hostSupportsGPU,
		attach: func(opts *ort.SessionOptions) error {
			cuda, err := ort.NewCUDAProviderOptions()
			if err != nil {
				return err
			}
			defer func() { _ = cuda.Destroy() }()
			if err := cuda.Update(map[string]string{"device_id": "0"}); err != nil {
				return err
			}
			return opts.AppendExecutionProviderCUDA(cuda)
		},
	}
}
