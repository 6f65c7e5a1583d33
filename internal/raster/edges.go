package raster

// Edge-pattern detection flags contiguous all-zero stripes along raster
// edges. Plume rasters legitimately fade to zero, but a wide stripe of exact
// zeros hugging an edge usually means the source grid was truncated during
// extraction rather than that the plume ends there. The result is an
// advisory data-quality signal, never a hard validity check.

// EdgePatterns holds the per-edge contiguous zero counts and stripe flags.
type EdgePatterns struct {
	TopZeroStripe    bool `json:"top_zero_stripe"`
	BottomZeroStripe bool `json:"bottom_zero_stripe"`
	LeftZeroStripe   bool `json:"left_zero_stripe"`
	RightZeroStripe  bool `json:"right_zero_stripe"`
	TopZeroRows      int  `json:"top_zero_rows"`
	BottomZeroRows   int  `json:"bottom_zero_rows"`
	LeftZeroCols     int  `json:"left_zero_cols"`
	RightZeroCols    int  `json:"right_zero_cols"`
}

// DataExtent is the bounding box of strictly-positive cells. All fields are
// -1 when the raster contains no positive cell.
type DataExtent struct {
	MinRow int `json:"min_row"`
	MaxRow int `json:"max_row"`
	MinCol int `json:"min_col"`
	MaxCol int `json:"max_col"`
}

// ReachesEdges reports whether the positive-data extent touches each edge.
type ReachesEdges struct {
	Top    bool `json:"reaches_top"`
	Bottom bool `json:"reaches_bottom"`
	Left   bool `json:"reaches_left"`
	Right  bool `json:"reaches_right"`
}

// EdgePatternReport is the full result of an edge scan.
type EdgePatternReport struct {
	Rows           int          `json:"rows"`
	Cols           int          `json:"cols"`
	TotalPixels    int          `json:"total_pixels"`
	ZeroPixels     int          `json:"zero_pixels"`
	PositivePixels int          `json:"positive_pixels"`
	ZeroPercentage float64      `json:"zero_percentage"`
	Patterns       EdgePatterns `json:"edge_patterns"`
	Extent         DataExtent   `json:"data_extent"`
	Reaches        ReachesEdges `json:"reaches_edges"`
	Suspicious     bool         `json:"suspicious_patterns"`
}

// rowIsZero reports whether every cell in the row is <= threshold.
// NaN compares false, so a row containing NaN is not a zero row.
func rowIsZero(r *Raster, row int, threshold float64) bool {
	base := row * r.Cols
	for _, v := range r.Data[base : base+r.Cols] {
		if !(v <= threshold) {
			return false
		}
	}
	return true
}

// colIsZero reports whether every cell in the column is <= threshold.
func colIsZero(r *Raster, col int, threshold float64) bool {
	for row := 0; row < r.Rows; row++ {
		if !(r.Data[row*r.Cols+col] <= threshold) {
			return false
		}
	}
	return true
}

// DetectEdgePatterns scans the raster from each of its four edges inward,
// counting contiguous rows/columns whose every cell is <= zeroThreshold.
// The count stops at the first non-zero row/column; zero rows further in are
// not included. An edge is flagged as a stripe when its count strictly
// exceeds max(10, 1% of the smaller dimension).
func DetectEdgePatterns(r *Raster, zeroThreshold float64) EdgePatternReport {
	rep := EdgePatternReport{
		Rows:        r.Rows,
		Cols:        r.Cols,
		TotalPixels: r.Size(),
		Extent:      DataExtent{MinRow: -1, MaxRow: -1, MinCol: -1, MaxCol: -1},
	}

	for row := 0; row < r.Rows; row++ {
		if !rowIsZero(r, row, zeroThreshold) {
			break
		}
		rep.Patterns.TopZeroRows = row + 1
	}
	for row := r.Rows - 1; row >= 0; row-- {
		if !rowIsZero(r, row, zeroThreshold) {
			break
		}
		rep.Patterns.BottomZeroRows = r.Rows - row
	}
	for col := 0; col < r.Cols; col++ {
		if !colIsZero(r, col, zeroThreshold) {
			break
		}
		rep.Patterns.LeftZeroCols = col + 1
	}
	for col := r.Cols - 1; col >= 0; col-- {
		if !colIsZero(r, col, zeroThreshold) {
			break
		}
		rep.Patterns.RightZeroCols = r.Cols - col
	}

	minDim := r.Rows
	if r.Cols < minDim {
		minDim = r.Cols
	}
	stripeThreshold := 0.01 * float64(minDim)
	if stripeThreshold < 10 {
		stripeThreshold = 10
	}
	rep.Patterns.TopZeroStripe = float64(rep.Patterns.TopZeroRows) > stripeThreshold
	rep.Patterns.BottomZeroStripe = float64(rep.Patterns.BottomZeroRows) > stripeThreshold
	rep.Patterns.LeftZeroStripe = float64(rep.Patterns.LeftZeroCols) > stripeThreshold
	rep.Patterns.RightZeroStripe = float64(rep.Patterns.RightZeroCols) > stripeThreshold
	rep.Suspicious = rep.Patterns.TopZeroStripe || rep.Patterns.BottomZeroStripe ||
		rep.Patterns.LeftZeroStripe || rep.Patterns.RightZeroStripe

	for row := 0; row < r.Rows; row++ {
		for col := 0; col < r.Cols; col++ {
			v := r.Data[row*r.Cols+col]
			if v == 0 {
				rep.ZeroPixels++
			}
			if v > 0 {
				rep.PositivePixels++
				if rep.Extent.MinRow < 0 || row < rep.Extent.MinRow {
					rep.Extent.MinRow = row
				}
				if row > rep.Extent.MaxRow {
					rep.Extent.MaxRow = row
				}
				if rep.Extent.MinCol < 0 || col < rep.Extent.MinCol {
					rep.Extent.MinCol = col
				}
				if col > rep.Extent.MaxCol {
					rep.Extent.MaxCol = col
				}
			}
		}
	}
	rep.ZeroPercentage = float64(rep.ZeroPixels) / float64(rep.TotalPixels) * 100

	if rep.PositivePixels > 0 {
		rep.Reaches = ReachesEdges{
			Top:    rep.Extent.MinRow == 0,
			Bottom: rep.Extent.MaxRow == r.Rows-1,
			Left:   rep.Extent.MinCol == 0,
			Right:  rep.Extent.MaxCol == r.Cols-1,
		}
	}

	return rep
}
