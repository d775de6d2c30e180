/*
   Copyright The containerd Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

// Package journal keeps a history of checks and their findings in a bbolt
// database.
//
// Layout:
//
//	overlays/<overlay digest>/runs/<run id>/meta      run metadata (JSON)
//	overlays/<overlay digest>/runs/<run id>/findings/ sequence -> finding (JSON)
package journal

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
	bolt "go.etcd.io/bbolt"

	"github.com/spin-stack/fsck-overlay/internal/fsck"
)

var (
	bucketOverlays = []byte("overlays")
	bucketRuns     = []byte("runs")
	bucketFindings = []byte("findings")
	keyMeta        = []byte("meta")
)

// openTimeout bounds the wait for another process holding the database.
const openTimeout = 5 * time.Second

// RunMeta describes one check of an overlay.
type RunMeta struct {
	ID       string        `json:"id"`
	Overlay  digest.Digest `json:"overlay"`
	Layers   []string      `json:"layers"`
	Policy   string        `json:"policy"`
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished,omitempty"`
	ExitCode int           `json:"exit_code"`
	Result   fsck.Result   `json:"result"`
	Findings int           `json:"findings"`
	Error    string        `json:"error,omitempty"`
}

// Journal is an open findings database.
type Journal struct {
	db *bolt.DB
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Start records the beginning of a check of the overlay identified by
// overlay and returns the run to record findings in.
func (j *Journal) Start(ctx context.Context, overlay digest.Digest, layers []string, policy string) (*Run, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate run id: %w", err)
	}
	r := &Run{
		j: j,
		meta: RunMeta{
			ID:      id.String(),
			Overlay: overlay,
			Layers:  layers,
			Policy:  policy,
			Started: time.Now().UTC(),
		},
	}
	if err := j.db.Update(func(tx *bolt.Tx) error {
		bkt, err := createRunBucket(tx, overlay, r.meta.ID)
		if err != nil {
			return err
		}
		if _, err := bkt.CreateBucket(bucketFindings); err != nil {
			return err
		}
		return putJSON(bkt, keyMeta, r.meta)
	}); err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	log.G(ctx).WithFields(log.Fields{
		"run":     r.meta.ID,
		"overlay": overlay.String(),
	}).Debug("journal run started")
	return r, nil
}

// Runs lists the runs of an overlay, oldest first.
func (j *Journal) Runs(overlay digest.Digest) ([]RunMeta, error) {
	var runs []RunMeta
	err := j.db.View(func(tx *bolt.Tx) error {
		bkt := runsBucket(tx, overlay)
		if bkt == nil {
			return nil
		}
		// Run ids are time ordered, so key order is start order.
		return bkt.ForEachBucket(func(k []byte) error {
			var m RunMeta
			if err := getJSON(bkt.Bucket(k), keyMeta, &m); err != nil {
				return fmt.Errorf("run %s: %w", k, err)
			}
			runs = append(runs, m)
			return nil
		})
	})
	return runs, err
}

// Findings returns the findings of one run in the order they were made.
func (j *Journal) Findings(overlay digest.Digest, runID string) ([]fsck.Finding, error) {
	var findings []fsck.Finding
	err := j.db.View(func(tx *bolt.Tx) error {
		bkt := runsBucket(tx, overlay)
		if bkt != nil {
			bkt = bkt.Bucket([]byte(runID))
		}
		if bkt == nil {
			return fmt.Errorf("run %s of overlay %s: %w", runID, overlay, errdefs.ErrNotFound)
		}
		fb := bkt.Bucket(bucketFindings)
		if fb == nil {
			return nil
		}
		return fb.ForEach(func(k, v []byte) error {
			var f fsck.Finding
			if err := json.Unmarshal(v, &f); err != nil {
				return fmt.Errorf("finding %d: %w", binary.BigEndian.Uint64(k), err)
			}
			findings = append(findings, f)
			return nil
		})
	})
	return findings, err
}

// Run is one check being recorded. It implements fsck.Recorder.
type Run struct {
	j    *Journal
	meta RunMeta
}

// ID returns the run id.
func (r *Run) ID() string {
	return r.meta.ID
}

// Record appends a finding to the run.
func (r *Run) Record(ctx context.Context, f fsck.Finding) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	err = r.j.db.Update(func(tx *bolt.Tx) error {
		fb, err := r.findingsBucket(tx)
		if err != nil {
			return err
		}
		seq, err := fb.NextSequence()
		if err != nil {
			return err
		}
		return fb.Put(seqKey(seq), data)
	})
	if err != nil {
		return fmt.Errorf("failed to record finding for %s: %w", f.Path, err)
	}
	r.meta.Findings++
	return nil
}

// Finish stores the outcome of the run. runErr is the error that aborted
// the check, if any.
func (r *Run) Finish(ctx context.Context, rep fsck.Report, runErr error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.meta.Finished = time.Now().UTC()
	r.meta.Result = rep.Final
	r.meta.ExitCode = rep.Status.ExitCode()
	if runErr != nil {
		r.meta.Error = runErr.Error()
	}
	err := r.j.db.Update(func(tx *bolt.Tx) error {
		bkt := runsBucket(tx, r.meta.Overlay)
		if bkt != nil {
			bkt = bkt.Bucket([]byte(r.meta.ID))
		}
		if bkt == nil {
			return fmt.Errorf("run %s: %w", r.meta.ID, errdefs.ErrNotFound)
		}
		return putJSON(bkt, keyMeta, r.meta)
	})
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	log.G(ctx).WithFields(log.Fields{
		"run":      r.meta.ID,
		"findings": r.meta.Findings,
	}).Debug("journal run finished")
	return nil
}

func (r *Run) findingsBucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	bkt := runsBucket(tx, r.meta.Overlay)
	if bkt != nil {
		bkt = bkt.Bucket([]byte(r.meta.ID))
	}
	if bkt == nil {
		return nil, fmt.Errorf("run %s: %w", r.meta.ID, errdefs.ErrNotFound)
	}
	return bkt.CreateBucketIfNotExists(bucketFindings)
}

func createRunBucket(tx *bolt.Tx, overlay digest.Digest, id string) (*bolt.Bucket, error) {
	bkt, err := tx.CreateBucketIfNotExists(bucketOverlays)
	if err != nil {
		return nil, err
	}
	if bkt, err = bkt.CreateBucketIfNotExists([]byte(overlay.String())); err != nil {
		return nil, err
	}
	if bkt, err = bkt.CreateBucketIfNotExists(bucketRuns); err != nil {
		return nil, err
	}
	bkt, err = bkt.CreateBucket([]byte(id))
	if errors.Is(err, bolt.ErrBucketExists) {
		return nil, fmt.Errorf("run %s: %w", id, errdefs.ErrAlreadyExists)
	}
	return bkt, err
}

func runsBucket(tx *bolt.Tx, overlay digest.Digest) *bolt.Bucket {
	bkt := tx.Bucket(bucketOverlays)
	if bkt == nil {
		return nil
	}
	if bkt = bkt.Bucket([]byte(overlay.String())); bkt == nil {
		return nil
	}
	return bkt.Bucket(bucketRuns)
}

func putJSON(bkt *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return bkt.Put(key, data)
}

func getJSON(bkt *bolt.Bucket, key []byte, v any) error {
	data := bkt.Get(key)
	if data == nil {
		return fmt.Errorf("%s: %w", key, errdefs.ErrNotFound)
	}
	return json.Unmarshal(data, v)
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
