package compute

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/Faultbox/brickterrain/internal/kernel"
	"github.com/Faultbox/brickterrain/pkg/heightfield"
)

// DefaultMaxBufferBytes is the host device allocation limit when none is set.
const DefaultMaxBufferBytes = int(min(4<<30, math.MaxInt))

var (
	errDeviceDestroyed = errors.New("device destroyed")
	errForeignResource = errors.New("resource belongs to another device")
)

// hostEntry binds the kernel resources and returns the work item function.
type hostEntry func(b Bindings) (func(x, y int), error)

var hostEntries = map[string]hostEntry{
	kernel.EntryPoint: terrainEntry,
}

// HostDevice executes compiled kernels on a pool of goroutines. Each
// workgroup of WorkgroupSize x WorkgroupSize work items is one unit of work.
type HostDevice struct {
	workers  int
	maxBytes int

	mu        sync.Mutex
	destroyed bool
}

// NewHostDevice creates a host device. workers <= 0 uses one worker per CPU and
// maxBufferBytes <= 0 uses DefaultMaxBufferBytes.
func NewHostDevice(workers, maxBufferBytes int) *HostDevice {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if maxBufferBytes <= 0 {
		maxBufferBytes = DefaultMaxBufferBytes
	}
	return &HostDevice{workers: workers, maxBytes: maxBufferBytes}
}

// HostFactory returns a DeviceFactory that opens a new HostDevice.
func HostFactory(workers, maxBufferBytes int) DeviceFactory {
	return func() (Device, error) {
		return NewHostDevice(workers, maxBufferBytes), nil
	}
}

func (d *HostDevice) Name() string {
	return fmt.Sprintf("host (%d workers)", d.workers)
}

func (d *HostDevice) MaxBufferSize() int {
	return d.maxBytes
}

func (d *HostDevice) alive() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		return errDeviceDestroyed
	}
	return nil
}

func (d *HostDevice) CreateQueue() (Queue, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	return &hostQueue{dev: d}, nil
}

// CreateKernel compiles source to SPIR-V and resolves entryPoint.
func (d *HostDevice) CreateKernel(source, entryPoint string) (Kernel, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	if !strings.Contains(source, "fn "+entryPoint+"(") {
		return nil, fmt.Errorf("entry point %q not found in source", entryPoint)
	}
	entry, ok := hostEntries[entryPoint]
	if !ok {
		return nil, fmt.Errorf("entry point %q has no host implementation", entryPoint)
	}

	spirv, err := kernel.Compile(source)
	if err != nil {
		return nil, err
	}
	return &hostKernel{dev: d, entryPoint: entryPoint, spirv: spirv, entry: entry}, nil
}

func (d *HostDevice) CreateBuffer(label string, size int, usage BufferUsage) (Buffer, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("buffer %q: invalid size %d", label, size)
	}
	if size > d.maxBytes {
		return nil, fmt.Errorf("buffer %q: %d bytes exceeds device limit of %d", label, size, d.maxBytes)
	}
	return &hostBuffer{
		dev:   d,
		label: label,
		usage: usage,
		size:  size,
		words: make([]uint32, (size+3)/4),
	}, nil
}

func (d *HostDevice) DestroyKernel(k Kernel) {
	if hk, ok := k.(*hostKernel); ok {
		hk.spirv = nil
	}
}

func (d *HostDevice) DestroyBuffer(b Buffer) {
	if hb, ok := b.(*hostBuffer); ok {
		hb.words = nil
	}
}

func (d *HostDevice) Destroy() {
	d.mu.Lock()
	d.destroyed = true
	d.mu.Unlock()
}

// run executes fn for every work item of a groupsX x groupsY dispatch.
func (d *HostDevice) run(fn func(x, y int), groupsX, groupsY int) error {
	total := int64(groupsX) * int64(groupsY)

	var (
		next     atomic.Int64
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	workers := int(min(int64(d.workers), total))
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errOnce.Do(func() {
						firstErr = fmt.Errorf("work item panicked: %v", r)
					})
				}
			}()
			for {
				group := next.Add(1) - 1
				if group >= total {
					return
				}
				gx := int(group%int64(groupsX)) * kernel.WorkgroupSize
				gy := int(group/int64(groupsX)) * kernel.WorkgroupSize
				for ly := 0; ly < kernel.WorkgroupSize; ly++ {
					for lx := 0; lx < kernel.WorkgroupSize; lx++ {
						fn(gx+lx, gy+ly)
					}
				}
			}
		}()
	}

	wg.Wait()
	return firstErr
}

type hostKernel struct {
	dev        *HostDevice
	entryPoint string
	spirv      []uint32
	entry      hostEntry
}

func (k *hostKernel) EntryPoint() string {
	return k.entryPoint
}

type hostBuffer struct {
	dev   *HostDevice
	label string
	usage BufferUsage
	size  int
	words []uint32
}

func (b *hostBuffer) Label() string { return b.label }
func (b *hostBuffer) Size() int     { return b.size }

// bytes returns the buffer contents as bytes in host byte order.
func (b *hostBuffer) bytes() []byte {
	if len(b.words) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(b.words))), b.size)
}

// floats returns the buffer contents as float32 values.
func (b *hostBuffer) floats() []float32 {
	if len(b.words) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(unsafe.SliceData(b.words))), b.size/4)
}

type hostQueue struct {
	dev *HostDevice

	pending sync.WaitGroup
	mu      sync.Mutex
	err     error
}

func (q *hostQueue) buffer(b Buffer) (*hostBuffer, error) {
	hb, ok := b.(*hostBuffer)
	if !ok || hb == nil || hb.dev != q.dev {
		return nil, errForeignResource
	}
	if hb.words == nil {
		return nil, fmt.Errorf("buffer %q already destroyed", hb.label)
	}
	return hb, nil
}

func (q *hostQueue) WriteBuffer(b Buffer, offset int, data []byte) error {
	hb, err := q.buffer(b)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(data) > hb.size {
		return fmt.Errorf("write of %d bytes at %d overflows buffer %q (%d bytes)", len(data), offset, hb.label, hb.size)
	}
	q.pending.Wait()
	copy(hb.bytes()[offset:], data)
	return nil
}

func (q *hostQueue) Dispatch(k Kernel, bindings Bindings, groupsX, groupsY int) error {
	if err := q.dev.alive(); err != nil {
		return err
	}
	hk, ok := k.(*hostKernel)
	if !ok || hk == nil || hk.dev != q.dev {
		return errForeignResource
	}
	if hk.spirv == nil {
		return fmt.Errorf("kernel %q already destroyed", hk.entryPoint)
	}
	if groupsX <= 0 || groupsY <= 0 {
		return fmt.Errorf("invalid dispatch size %dx%d", groupsX, groupsY)
	}
	for _, b := range []Buffer{bindings.Params, bindings.Pixels, bindings.Voxels} {
		if _, err := q.buffer(b); err != nil {
			return fmt.Errorf("binding: %w", err)
		}
	}

	fn, err := hk.entry(bindings)
	if err != nil {
		return err
	}

	q.pending.Add(1)
	go func() {
		defer q.pending.Done()
		if err := q.dev.run(fn, groupsX, groupsY); err != nil {
			q.mu.Lock()
			if q.err == nil {
				q.err = err
			}
			q.mu.Unlock()
		}
	}()
	return nil
}

// Finish waits for all dispatches and returns and clears the first error.
func (q *hostQueue) Finish() error {
	q.pending.Wait()
	q.mu.Lock()
	defer q.mu.Unlock()
	err := q.err
	q.err = nil
	return err
}

func (q *hostQueue) ReadBuffer(b Buffer, offset int, dst []byte) error {
	if err := q.Finish(); err != nil {
		return err
	}
	hb, err := q.buffer(b)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(dst) > hb.size {
		return fmt.Errorf("read of %d bytes at %d overflows buffer %q (%d bytes)", len(dst), offset, hb.label, hb.size)
	}
	copy(dst, hb.bytes()[offset:])
	return nil
}

func (q *hostQueue) Destroy() {
	q.pending.Wait()
}

// terrainEntry binds the uniform block, the pixels and the voxel slots of
// the terrain sampling kernel.
func terrainEntry(b Bindings) (func(x, y int), error) {
	params := b.Params.(*hostBuffer)
	pixels := b.Pixels.(*hostBuffer)
	voxels := b.Voxels.(*hostBuffer)

	p, err := kernel.ParseUniform(params.bytes()[:min(params.size, kernel.UniformSize)])
	if err != nil {
		return nil, err
	}

	pixelBytes := p.ImageWidth * p.ImageHeight * heightfield.BytesPerPixel
	if pixelBytes <= 0 || pixelBytes > pixels.size {
		return nil, fmt.Errorf("pixel buffer holds %d bytes, image %dx%d needs %d", pixels.size, p.ImageWidth, p.ImageHeight, pixelBytes)
	}
	hf, err := heightfield.New(p.ImageWidth, p.ImageHeight, pixels.bytes()[:pixelBytes])
	if err != nil {
		return nil, err
	}

	out := voxels.floats()
	if need := p.TerrainWidth * p.TerrainHeight * p.MaxHeight * 3; need <= 0 || need > len(out) {
		return nil, fmt.Errorf("voxel buffer holds %d floats, grid needs %d", len(out), need)
	}

	return func(x, y int) {
		kernel.Invoke(hf, p, out, x, y)
	}, nil
}
