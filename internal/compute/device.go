package compute

// BufferUsage describes how the kernel accesses a buffer.
type BufferUsage int

const (
	// UsageUniform is a small read-only parameter block.
	UsageUniform BufferUsage = iota
	// UsageStorageRead is a read-only storage buffer.
	UsageStorageRead
	// UsageStorageReadWrite is a storage buffer the kernel writes.
	UsageStorageReadWrite
)

func (u BufferUsage) String() string {
	switch u {
	case UsageUniform:
		return "uniform"
	case UsageStorageRead:
		return "storage-read"
	case UsageStorageReadWrite:
		return "storage-read-write"
	default:
		return "unknown"
	}
}

// Device owns compute resources: compiled kernels, buffers and queues.
type Device interface {
	// Name identifies the device in logs.
	Name() string

	// MaxBufferSize is the largest buffer CreateBuffer accepts, in bytes.
	MaxBufferSize() int

	CreateQueue() (Queue, error)
	CreateKernel(source, entryPoint string) (Kernel, error)
	CreateBuffer(label string, size int, usage BufferUsage) (Buffer, error)

	DestroyKernel(k Kernel)
	DestroyBuffer(b Buffer)

	// Destroy releases the device. Resources created from it must be
	// destroyed first.
	Destroy()
}

// Queue submits work to a device.
type Queue interface {
	// WriteBuffer copies data into b at offset.
	WriteBuffer(b Buffer, offset int, data []byte) error

	// Dispatch launches groupsX*groupsY workgroups of k and returns
	// without waiting for them to complete.
	Dispatch(k Kernel, bindings Bindings, groupsX, groupsY int) error

	// Finish blocks until all dispatched work has completed and reports
	// the first error raised by it.
	Finish() error

	// ReadBuffer waits for outstanding work, then copies len(dst) bytes
	// from b at offset into dst.
	ReadBuffer(b Buffer, offset int, dst []byte) error

	Destroy()
}

// Kernel is a compiled compute entry point.
type Kernel interface {
	EntryPoint() string
}

// Buffer is a device memory allocation.
type Buffer interface {
	Label() string
	Size() int
}

// Bindings are the resources bound to the terrain kernel, in binding order.
type Bindings struct {
	Params Buffer // @binding(0) uniform block
	Pixels Buffer // @binding(1) packed RGBA pixels
	Voxels Buffer // @binding(2) fixed-stride voxel slots
}

// DeviceFactory opens a device. It is called once per Initialize.
type DeviceFactory func() (Device, error)
