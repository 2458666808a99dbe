// Package badger persists confirmation jobs in an embedded Badger database
// so pending confirmations survive a restart. Badger locks its directory,
// so one process at a time may open a store; use the postgres job store to
// share jobs between processes.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v4"

	"solana-trade-engine/internal/domain"
	"solana-trade-engine/internal/storage"
)

const jobPrefix = "job/"

// JobStore implements storage.JobStore using Badger.
type JobStore struct {
	db *badgerdb.DB
}

// Options configures Open.
type Options struct {
	Path     string
	InMemory bool
}

// Open opens or creates the job database.
func Open(opts Options) (*JobStore, error) {
	if !opts.InMemory && strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("job store: path is required")
	}

	bopts := badgerdb.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.InMemory {
		bopts = bopts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	db, err := badgerdb.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	return &JobStore{db: db}, nil
}

// Compile-time interface check.
var _ storage.JobStore = (*JobStore)(nil)

// Close closes the database.
func (s *JobStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save creates or replaces a job by ID.
func (s *JobStore) Save(_ context.Context, job *domain.ConfirmationJob) error {
	if job == nil || job.ID == "" {
		return storage.ErrInvalidInput
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(jobPrefix+job.ID), data)
	})
}

// Delete removes a job.
func (s *JobStore) Delete(_ context.Context, id string) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(jobPrefix + id))
	})
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

// Get retrieves a job by ID.
func (s *JobStore) Get(_ context.Context, id string) (*domain.ConfirmationJob, error) {
	var job domain.ConfirmationJob
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(jobPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &job)
		})
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// List returns all stored jobs ordered by not_before ASC.
func (s *JobStore) List(_ context.Context) ([]*domain.ConfirmationJob, error) {
	var jobs []*domain.ConfirmationJob

	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(jobPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var job domain.ConfirmationJob
				if err := json.Unmarshal(val, &job); err != nil {
					return fmt.Errorf("unmarshal job %s: %w", it.Item().Key(), err)
				}
				jobs = append(jobs, &job)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].NotBefore.Before(jobs[j].NotBefore)
	})

	return jobs, nil
}
