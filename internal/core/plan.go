package core

import (
	"fmt"
	"os"
)

// Plan routes pre-processed files by size: large files take the chunked
// path, the rest are grouped into fixed-width whole-file batches. Order is
// preserved within each route.
type Plan struct {
	Chunked []Result
	Batches [][]Result
}

// BuildPlan stats every file and splits them at chunkThreshold. batchWidth
// is how many small files share one upload request.
func BuildPlan(files []Result, chunkThreshold int64, batchWidth int) (Plan, error) {
	if batchWidth <= 0 {
		batchWidth = 1
	}

	var plan Plan
	var small []Result

	for _, f := range files {
		info, err := os.Stat(f.Path)
		if err != nil {
			return Plan{}, fmt.Errorf("failed to stat %s: %w", f.Path, err)
		}
		if info.Size() > chunkThreshold {
			plan.Chunked = append(plan.Chunked, f)
		} else {
			small = append(small, f)
		}
	}

	for len(small) > 0 {
		n := batchWidth
		if n > len(small) {
			n = len(small)
		}
		plan.Batches = append(plan.Batches, small[:n])
		small = small[n:]
	}

	return plan, nil
}

// FileCount returns the total number of files the plan will upload.
func (p Plan) FileCount() int {
	n := len(p.Chunked)
	for _, b := range p.Batches {
		n += len(b)
	}
	return n
}
