// Package compute owns the compute device and runs the terrain sampling
// kernel over a heightfield: it validates the request, uploads the image,
// launches one work item per terrain cell and reads back the fixed-stride
// voxel buffer.
package compute

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"go.uber.org/zap"

	"github.com/Faultbox/brickterrain/internal/kernel"
	"github.com/Faultbox/brickterrain/internal/logger"
	"github.com/Faultbox/brickterrain/pkg/heightfield"
	"github.com/Faultbox/brickterrain/pkg/voxel"
)

// Info describes the heightmap read by ConvertFile.
type Info struct {
	Path    string
	Width   int
	Height  int
	MaxGray uint8
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDevice sets the factory used by Initialize to open the device.
func WithDevice(f DeviceFactory) Option {
	return func(d *Dispatcher) {
		d.factory = f
	}
}

// WithWorkers sets the host device worker count. 0 uses one per CPU.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		d.workers = n
	}
}

// WithMaxBufferBytes sets the host device allocation limit.
func WithMaxBufferBytes(n int) Option {
	return func(d *Dispatcher) {
		d.maxBufferBytes = n
	}
}

// Dispatcher owns a device, its queue and the compiled kernel between
// Initialize and Cleanup. Calls on one Dispatcher are serialized; separate
// Dispatchers may convert concurrently.
type Dispatcher struct {
	factory        DeviceFactory
	workers        int
	maxBufferBytes int
	metrics        *metrics

	mu     sync.Mutex
	device Device
	queue  Queue
	kernel Kernel
}

// New creates an uninitialized Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{}
	for _, opt := range opts {
		opt(d)
	}
	if d.factory == nil {
		d.factory = HostFactory(d.workers, d.maxBufferBytes)
	}

	m, err := newMetrics(meter())
	if err != nil {
		logger.Warn("Conversion metrics disabled", zap.Error(err))
		m = noopMetrics()
	}
	d.metrics = m

	return d
}

// Initialize opens the device and compiles the kernel. Calling it again on an
// initialized Dispatcher logs a warning and succeeds. On failure everything
// acquired so far is released and the Dispatcher stays uninitialized.
func (d *Dispatcher) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device != nil {
		logger.Warn("Compute dispatcher already initialized")
		return nil
	}

	dev, err := d.factory()
	if err != nil {
		return fmt.Errorf("%w: open device: %w", ErrDeviceContextUnavailable, err)
	}
	if dev == nil {
		return fmt.Errorf("%w: open device: no device returned", ErrDeviceContextUnavailable)
	}

	queue, err := dev.CreateQueue()
	if err != nil {
		dev.Destroy()
		return fmt.Errorf("%w: create queue: %w", ErrDeviceContextUnavailable, err)
	}

	k, err := dev.CreateKernel(kernel.Source(), kernel.EntryPoint)
	if err != nil {
		queue.Destroy()
		dev.Destroy()
		return fmt.Errorf("%w: %s: %w", ErrKernelCompilationFailed, kernel.EntryPoint, err)
	}

	d.device, d.queue, d.kernel = dev, queue, k

	logger.Info("Compute dispatcher initialized",
		zap.String("device", dev.Name()),
		zap.Int("max_buffer_bytes", dev.MaxBufferSize()),
	)
	return nil
}

// IsInitialized reports whether Initialize has succeeded and Cleanup has not
// been called since.
func (d *Dispatcher) IsInitialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.device != nil
}

// Cleanup releases the kernel, the queue and the device. It is safe to call
// more than once.
func (d *Dispatcher) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.device == nil {
		return
	}
	if d.kernel != nil {
		d.device.DestroyKernel(d.kernel)
	}
	if d.queue != nil {
		d.queue.Destroy()
	}
	d.device.Destroy()
	d.device, d.queue, d.kernel = nil, nil, nil

	logger.Debug("Compute dispatcher released")
}

// Close calls Cleanup.
func (d *Dispatcher) Close() error {
	d.Cleanup()
	return nil
}

// Convert runs the terrain kernel over hf and returns the fixed-stride
// column buffer: cfg.Cells() columns of cfg.MaxHeight slots each. An all-black
// heightfield yields an empty buffer and no error.
func (d *Dispatcher) Convert(hf *heightfield.HeightField, cfg voxel.GridConfig) (voxel.ColumnBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	buf, err := d.convert(hf, cfg)
	d.metrics.recordConversion(start, buf.Len(), err)
	return buf, err
}

// ConvertFile loads a PNG heightmap from path and converts it.
func (d *Dispatcher) ConvertFile(path string, cfg voxel.GridConfig) (voxel.ColumnBuffer, Info, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	info := Info{Path: path}

	hf, err := d.load(path, cfg)
	if err != nil {
		d.metrics.recordConversion(start, 0, err)
		return voxel.ColumnBuffer{}, info, err
	}
	info.Width, info.Height = hf.Width, hf.Height
	info.MaxGray = hf.MaxGray()

	buf, err := d.convert(hf, cfg)
	d.metrics.recordConversion(start, buf.Len(), err)
	return buf, info, err
}

// Generate converts hf and compacts the result into a flat position list.
func (d *Dispatcher) Generate(hf *heightfield.HeightField, cfg voxel.GridConfig) ([]voxel.Position, error) {
	buf, err := d.Convert(hf, cfg)
	if err != nil {
		return nil, err
	}
	positions := voxel.Compact(buf)
	d.metrics.recordGenerated(len(positions))
	logger.Info("Generated voxels", zap.Int("count", len(positions)))
	return positions, nil
}

func (d *Dispatcher) checkRequest(cfg voxel.GridConfig) error {
	if d.device == nil {
		return fmt.Errorf("%w: call Initialize first", ErrNotInitialized)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (d *Dispatcher) load(path string, cfg voxel.GridConfig) (*heightfield.HeightField, error) {
	if err := d.checkRequest(cfg); err != nil {
		return nil, err
	}
	hf, err := heightfield.Load(path)
	if errors.Is(err, heightfield.ErrInvalidDimensions) {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidImageDimensions, path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrImageLoadFailed, path, err)
	}
	return hf, nil
}

func checkImage(hf *heightfield.HeightField) error {
	if hf == nil || hf.Pix == nil {
		return fmt.Errorf("%w: no pixel data", ErrImageLoadFailed)
	}
	if hf.Width < 1 || hf.Height < 1 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidImageDimensions, hf.Width, hf.Height)
	}
	if len(hf.Pix)/heightfield.BytesPerPixel/hf.Width != hf.Height || len(hf.Pix)%(hf.Width*heightfield.BytesPerPixel) != 0 {
		return fmt.Errorf("%w: %d pixel bytes for %dx%d", ErrInvalidImageDimensions, len(hf.Pix), hf.Width, hf.Height)
	}
	return nil
}

// convert runs one conversion. Device buffers are released on every path.
func (d *Dispatcher) convert(hf *heightfield.HeightField, cfg voxel.GridConfig) (voxel.ColumnBuffer, error) {
	if err := d.checkRequest(cfg); err != nil {
		return voxel.ColumnBuffer{}, err
	}
	if err := checkImage(hf); err != nil {
		return voxel.ColumnBuffer{}, err
	}

	logger.Info("Max height", zap.Int("max_height", cfg.MaxHeight))

	if hf.MaxGray() == 0 {
		logger.Warn("Heightmap is entirely black, no voxels generated",
			zap.Int("width", hf.Width),
			zap.Int("height", hf.Height),
		)
		return voxel.ColumnBuffer{}, nil
	}

	p := kernel.NewParams(hf, cfg)
	slots := cfg.Slots()
	logger.Info(fmt.Sprintf("Allocating buffer for %d voxel slots", slots),
		zap.Int("bytes", cfg.BufferBytes()),
		zap.Int("terrain_width", cfg.TerrainWidth),
		zap.Int("terrain_height", cfg.TerrainHeight),
	)

	params, err := d.device.CreateBuffer("params", kernel.UniformSize, UsageUniform)
	if err != nil {
		return voxel.ColumnBuffer{}, fmt.Errorf("%w: params buffer: %w", ErrBufferAllocationFailed, err)
	}
	defer d.device.DestroyBuffer(params)

	pixels, err := d.device.CreateBuffer("pixels", len(hf.Pix), UsageStorageRead)
	if err != nil {
		return voxel.ColumnBuffer{}, fmt.Errorf("%w: pixel buffer: %w", ErrBufferAllocationFailed, err)
	}
	defer d.device.DestroyBuffer(pixels)

	voxels, err := d.device.CreateBuffer("voxels", cfg.BufferBytes(), UsageStorageReadWrite)
	if err != nil {
		return voxel.ColumnBuffer{}, fmt.Errorf("%w: voxel buffer (%d slots): %w", ErrBufferAllocationFailed, slots, err)
	}
	defer d.device.DestroyBuffer(voxels)

	if err := d.queue.WriteBuffer(params, 0, p.Uniform()); err != nil {
		return voxel.ColumnBuffer{}, fmt.Errorf("%w: upload params: %w", ErrBufferAllocationFailed, err)
	}
	if err := d.queue.WriteBuffer(pixels, 0, hf.Pix); err != nil {
		return voxel.ColumnBuffer{}, fmt.Errorf("%w: upload pixels: %w", ErrBufferAllocationFailed, err)
	}

	bindings := Bindings{Params: params, Pixels: pixels, Voxels: voxels}
	gx, gy := kernel.Workgroups(cfg.TerrainWidth), kernel.Workgroups(cfg.TerrainHeight)
	if err := d.queue.Dispatch(d.kernel, bindings, gx, gy); err != nil {
		return voxel.ColumnBuffer{}, fmt.Errorf("%w: dispatch %dx%d workgroups: %w", ErrKernelLaunchFailed, gx, gy, err)
	}
	if err := d.queue.Finish(); err != nil {
		return voxel.ColumnBuffer{}, fmt.Errorf("%w: %s: %w", ErrKernelLaunchFailed, kernel.EntryPoint, err)
	}

	out := voxel.ColumnBuffer{
		Columns: cfg.Cells(),
		Stride:  cfg.MaxHeight,
		Slots:   make([]voxel.Position, slots),
	}
	if err := d.queue.ReadBuffer(voxels, 0, positionBytes(out.Slots)); err != nil {
		return voxel.ColumnBuffer{}, fmt.Errorf("%w: voxel buffer: %w", ErrReadbackFailed, err)
	}

	logger.Debug("Conversion finished",
		zap.Int("columns", out.Columns),
		zap.Int("slots", out.Len()),
	)
	return out, nil
}

// positionBytes views positions as the tightly packed float32 triples the
// kernel writes.
func positionBytes(p []voxel.Position) []byte {
	if len(p) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(p))), len(p)*voxel.SlotBytes)
}
