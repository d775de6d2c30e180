//go:build !linux

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

package layer

import (
	"fmt"

	"github.com/containerd/errdefs"
)

// OpenDir is only implemented on Linux.
func OpenDir(path string) (FS, error) {
	return nil, fmt.Errorf("open layer %s: %w", path, errdefs.ErrNotImplemented)
}

// Probe is only implemented on Linux.
func Probe(l *Layer) error {
	return fmt.Errorf("probe %s: %w", l, errdefs.ErrNotImplemented)
}
