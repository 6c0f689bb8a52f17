// Package pipeline runs the merge, calibrate, SEFD and closure steps over
// archive files and reports their results to the optional catalog, event
// stream and passband cache.
package pipeline

import (
	"context"
	"log"

	"github.com/saviobatista/ytla-corr/internal/config"
	"github.com/saviobatista/ytla-corr/internal/db"
	"github.com/saviobatista/ytla-corr/internal/nats"
	"github.com/saviobatista/ytla-corr/internal/redis"
	"github.com/saviobatista/ytla-corr/internal/stats"
	"github.com/saviobatista/ytla-corr/internal/types"
	"github.com/saviobatista/ytla-corr/internal/vis"
)

// Catalog interface for testability
type Catalog interface {
	StoreCalibrationRun(ctx context.Context, run *types.CalibrationRun) error
	StoreSEFDRecords(ctx context.Context, records []types.SEFDRecord) error
	StorePipelineStats(ctx context.Context, s db.PipelineStats) error
	Close() error
}

// Publisher interface for testability
type Publisher interface {
	PublishCalibration(run *types.CalibrationRun) error
	PublishSEFD(rec *types.SEFDRecord) error
	Close()
}

// PassbandCache interface for testability
type PassbandCache interface {
	GetPassband(ctx context.Context, key string) (*vis.Passband, error)
	StorePassband(ctx context.Context, key string, pb *vis.Passband) error
	Close() error
}

// Services are the optional collaborators of a run. Nil fields are skipped.
type Services struct {
	Catalog Catalog
	Events  Publisher
	Cache   PassbandCache
}

// Connect opens the services configured in cfg. A service that cannot be
// reached is disabled with a warning; the archive products do not depend on
// any of them.
func Connect(ctx context.Context, cfg config.Config) *Services {
	s := &Services{}

	if cfg.DBConnStr != "" {
		client, err := db.New(cfg.DBConnStr)
		if err == nil {
			err = client.Ping(ctx)
			if err != nil {
				client.Close()
			}
		}
		if err != nil {
			log.Printf("Warning: catalog disabled: %v", err)
		} else {
			s.Catalog = client
		}
	}

	if cfg.NATSURL != "" {
		client, err := nats.New(cfg.NATSURL)
		if err != nil {
			log.Printf("Warning: events disabled: %v", err)
		} else {
			s.Events = client
		}
	}

	if cfg.RedisAddr != "" {
		client, err := redis.New(cfg.RedisAddr)
		if err != nil {
			log.Printf("Warning: passband cache disabled: %v", err)
		} else {
			s.Cache = client
		}
	}

	return s
}

// Close closes every connected service
func (s *Services) Close() {
	if s.Catalog != nil {
		if err := s.Catalog.Close(); err != nil {
			log.Printf("Warning: failed to close catalog: %v", err)
		}
	}
	if s.Events != nil {
		s.Events.Close()
	}
	if s.Cache != nil {
		if err := s.Cache.Close(); err != nil {
			log.Printf("Warning: failed to close passband cache: %v", err)
		}
	}
}

// RecordCalibration catalogs and announces a finished calibration
func (s *Services) RecordCalibration(ctx context.Context, run *types.CalibrationRun) {
	if s.Catalog != nil {
		if err := s.Catalog.StoreCalibrationRun(ctx, run); err != nil {
			log.Printf("Warning: %v", err)
		}
	}
	if s.Events != nil {
		if err := s.Events.PublishCalibration(run); err != nil {
			log.Printf("Warning: %v", err)
		}
	}
}

// RecordSEFD catalogs and announces solved patches
func (s *Services) RecordSEFD(ctx context.Context, records []types.SEFDRecord) {
	if s.Catalog != nil {
		if err := s.Catalog.StoreSEFDRecords(ctx, records); err != nil {
			log.Printf("Warning: %v", err)
		}
	}
	if s.Events != nil {
		for i := range records {
			if err := s.Events.PublishSEFD(&records[i]); err != nil {
				log.Printf("Warning: %v", err)
			}
		}
	}
}

// RecordStats logs the run counters and persists them when a catalog is set
func (s *Services) RecordStats(ctx context.Context, st *stats.Stats) {
	log.Println(st.String())
	if s.Catalog == nil {
		return
	}
	st.SetDB(s.Catalog)
	if err := st.Persist(ctx); err != nil {
		log.Printf("Warning: %v", err)
	}
}

// Passband returns the passband cached under key or derives and caches it
func (s *Services) Passband(ctx context.Context, key string, derive func() (*vis.Passband, error)) (*vis.Passband, error) {
	if s.Cache != nil {
		pb, err := s.Cache.GetPassband(ctx, key)
		if err != nil {
			log.Printf("Warning: %v", err)
		} else if pb != nil {
			log.Printf("using cached passband %s", key)
			return pb, nil
		}
	}

	pb, err := derive()
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		if err := s.Cache.StorePassband(ctx, key, pb); err != nil {
			log.Printf("Warning: %v", err)
		}
	}
	return pb, nil
}
