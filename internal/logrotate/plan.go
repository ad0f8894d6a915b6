// Package logrotate plans and performs head-truncation of per-slug log
// files so the process supervisor never lets a noisy child's stdout/stderr
// fill the disk.
package logrotate

import (
	"fmt"
	"io"
	"os"
)

// Plan computes how many bytes to trim from the head of each file given its
// current size, a per-file cap, and a cap across all files combined. It is a
// pure function: the caller decides when to invoke it and is responsible
// for the physical trim (see Trim).
//
// Pass 1: any file over perFileCap is trimmed down to exactly perFileCap.
// Pass 2: if the post-trim total still exceeds globalCap, the remaining
// excess is distributed across files proportionally to what each file has
// left after pass 1.
func Plan(sizes []int64, perFileCap, globalCap int64) []int64 {
	trim := make([]int64, len(sizes))
	remaining := make([]int64, len(sizes))
	var total int64

	for i, size := range sizes {
		t := int64(0)
		if perFileCap > 0 && size > perFileCap {
			t = size - perFileCap
		}
		trim[i] = t
		remaining[i] = size - t
		total += remaining[i]
	}

	if globalCap <= 0 || total <= globalCap {
		return trim
	}

	excess := total - globalCap
	if total == 0 {
		return trim
	}
	var distributed int64
	for i := range sizes {
		share := int64(float64(excess) * float64(remaining[i]) / float64(total))
		if share > remaining[i] {
			share = remaining[i]
		}
		trim[i] += share
		remaining[i] -= share
		distributed += share
	}

	// Rounding from the proportional split can leave a few bytes of excess
	// uncollected; mop them up from whichever file still has the most left.
	leftover := excess - distributed
	for leftover > 0 {
		idx := -1
		var best int64 = -1
		for i, r := range remaining {
			if r > best {
				best = r
				idx = i
			}
		}
		if idx < 0 || remaining[idx] <= 0 {
			break
		}
		take := leftover
		if take > remaining[idx] {
			take = remaining[idx]
		}
		trim[idx] += take
		remaining[idx] -= take
		leftover -= take
	}

	return trim
}

// Trim rewrites path so its first n bytes are discarded, preserving the
// tail. It copies the surviving tail to a temp file in the same directory
// and renames over the original so readers never observe a torn file.
func Trim(path string, n int64) error {
	if n <= 0 {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("logrotate: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("logrotate: stat %s: %w", path, err)
	}
	if n >= info.Size() {
		n = info.Size()
	}
	if _, err := f.Seek(n, io.SeekStart); err != nil {
		return fmt.Errorf("logrotate: seek %s: %w", path, err)
	}

	tmp := path + ".trim"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("logrotate: create temp for %s: %w", path, err)
	}
	if _, err := io.Copy(out, f); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("logrotate: copy tail of %s: %w", path, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("logrotate: close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("logrotate: rename over %s: %w", path, err)
	}
	return nil
}
