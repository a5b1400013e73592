package compute

import "errors"

// Conversion errors. Each failure wraps exactly one of these together with
// the step that failed and the underlying cause.
var (
	ErrNotInitialized           = errors.New("dispatcher not initialized")
	ErrInvalidConfig            = errors.New("invalid terrain config")
	ErrImageLoadFailed          = errors.New("image load failed")
	ErrInvalidImageDimensions   = errors.New("invalid image dimensions")
	ErrDeviceContextUnavailable = errors.New("compute device unavailable")
	ErrKernelCompilationFailed  = errors.New("kernel compilation failed")
	ErrBufferAllocationFailed   = errors.New("buffer allocation failed")
	ErrKernelLaunchFailed       = errors.New("kernel launch failed")
	ErrReadbackFailed           = errors.New("readback failed")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrNotInitialized, "NotInitialized"},
	{ErrInvalidConfig, "InvalidConfig"},
	{ErrImageLoadFailed, "ImageLoadFailed"},
	{ErrInvalidImageDimensions, "InvalidImageDimensions"},
	{ErrDeviceContextUnavailable, "DeviceContextUnavailable"},
	{ErrKernelCompilationFailed, "KernelCompilationFailed"},
	{ErrBufferAllocationFailed, "BufferAllocationFailed"},
	{ErrKernelLaunchFailed, "KernelLaunchFailed"},
	{ErrReadbackFailed, "ReadbackFailed"},
}

// Kind returns the name of the conversion error kind wrapped by err,
// or "" when err is nil or not a conversion error.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}
