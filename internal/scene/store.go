// Package scene persists generated terrain as instance sets: a named particle
// system holding one particle per voxel and the instancer that draws a brick
// at each particle.
package scene

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Faultbox/brickterrain/internal/logger"
	"github.com/Faultbox/brickterrain/pkg/voxel"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// BatchSize is the number of instance rows inserted per statement.
const BatchSize = 2000

var (
	ErrInstanceSetExists   = errors.New("instance set already exists")
	ErrInstanceSetNotFound = errors.New("instance set not found")
	ErrInvalidName         = errors.New("instance set name must not be empty")
	ErrUnknownDriver       = errors.New("unknown scene driver")
)

// Config selects the database backing a Store.
type Config struct {
	Driver string // sqlite (default) or postgres
	Path   string // sqlite database file; ":memory:" for a private in-memory db
	DSN    string // postgres connection string
}

// SetSpec describes an instance set to create.
type SetSpec struct {
	Name      string
	Heightmap string
	Params    Params
}

// Store is a gorm-backed scene.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured database and migrates the schema.
func Open(cfg Config) (*Store, error) {
	var dialector gorm.Dialector

	switch strings.ToLower(cfg.Driver) {
	case "", DriverSQLite:
		path := cfg.Path
		if path == "" {
			path = ":memory:"
		}
		dialector = sqlite.Open(path)
	case DriverPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres scene store requires a dsn")
		}
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        BatchSize,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open scene store: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	if db.Dialector.Name() == DriverSQLite {
		// every connection to ":memory:" is a separate database
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&InstanceSet{}, &Instance{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate scene store: %w", err)
	}

	logger.Debug("Scene store opened",
		zap.String("driver", db.Dialector.Name()),
	)
	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Create stores a new instance set with one instance per position, in order.
func (s *Store) Create(ctx context.Context, spec SetSpec, positions []voxel.Position) (*InstanceSet, error) {
	if spec.Name == "" {
		return nil, ErrInvalidName
	}

	params, err := json.Marshal(spec.Params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	set := &InstanceSet{
		Name:       spec.Name,
		Particles:  ParticlesName(spec.Name),
		Instancer:  InstancerName(spec.Name),
		Heightmap:  spec.Heightmap,
		Params:     datatypes.JSON(params),
		VoxelCount: len(positions),
	}
	if lo, hi, ok := voxel.Bounds(positions); ok {
		set.MinX, set.MinY, set.MinZ = lo.X(), lo.Y(), lo.Z()
		set.MaxX, set.MaxY, set.MaxZ = hi.X(), hi.Y(), hi.Z()
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&InstanceSet{}).Where("name = ?", spec.Name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", ErrInstanceSetExists, spec.Name)
		}

		if err := tx.Omit("Instances").Create(set).Error; err != nil {
			return err
		}

		if len(positions) == 0 {
			return nil
		}
		rows := make([]Instance, len(positions))
		for i, p := range positions {
			rows[i] = Instance{InstanceSetID: set.ID, Index: i, X: p.X(), Y: p.Y(), Z: p.Z()}
		}
		if err := tx.CreateInBatches(rows, BatchSize).Error; err != nil {
			return fmt.Errorf("insert %d instances: %w", len(rows), err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Instance set created",
		zap.String("name", set.Name),
		zap.String("particles", set.Particles),
		zap.String("instancer", set.Instancer),
		zap.Int("voxels", set.VoxelCount),
	)
	return set, nil
}

// Get returns the instance set called name, without its instances.
func (s *Store) Get(ctx context.Context, name string) (*InstanceSet, error) {
	var set InstanceSet
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&set).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrInstanceSetNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return &set, nil
}

// List returns every instance set ordered by name.
func (s *Store) List(ctx context.Context) ([]InstanceSet, error) {
	var sets []InstanceSet
	if err := s.db.WithContext(ctx).Order("name").Find(&sets).Error; err != nil {
		return nil, err
	}
	return sets, nil
}

// Positions returns the instance positions of a set in creation order.
func (s *Store) Positions(ctx context.Context, name string) ([]voxel.Position, error) {
	set, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	var rows []Instance
	err = s.db.WithContext(ctx).
		Where("instance_set_id = ?", set.ID).
		Order("idx").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	positions := make([]voxel.Position, len(rows))
	for i, r := range rows {
		positions[i] = r.Position()
	}
	return positions, nil
}

// Delete removes an instance set and its instances.
func (s *Store) Delete(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var set InstanceSet
		err := tx.Where("name = ?", name).First(&set).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrInstanceSetNotFound, name)
		}
		if err != nil {
			return err
		}

		if err := tx.Where("instance_set_id = ?", set.ID).Delete(&Instance{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&set).Error; err != nil {
			return err
		}

		logger.Info("Instance set deleted", zap.String("name", name))
		return nil
	})
}
