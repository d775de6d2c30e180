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

// Package cleanup runs work that has to finish after the command context
// is gone, like storing the outcome of an interrupted check.
package cleanup

import (
	"context"
	"errors"
	"time"
)

// cleanupTimeout bounds a cleanup so an unresponsive journal cannot hang
// the process on exit.
const cleanupTimeout = 10 * time.Second

// Do runs do with a context that keeps the values of ctx, such as its
// logger, but is not cancelled with it and expires after cleanupTimeout.
func Do(ctx context.Context, do func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	return do(ctx)
}

// All runs every function under Do, in order, and joins their errors.
func All(ctx context.Context, fns ...func(context.Context) error) error {
	var errs []error
	for _, fn := range fns {
		if err := Do(ctx, fn); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
