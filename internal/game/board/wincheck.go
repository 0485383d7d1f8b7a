package board

// directions covers the four axes a winning run can follow. Leftward and
// upward runs are found from their other end, so these four suffice.
var directions = [4]Coord{
	{Row: 0, Col: 1},  // right
	{Row: 1, Col: 0},  // down
	{Row: 1, Col: 1},  // down-right
	{Row: 1, Col: -1}, // down-left
}

// WinResult reports the outcome of a win scan.
type WinResult struct {
	Winner *Color
	Line   []Coord
}

// DetectWin scans the board for runs of at least WinRun resolved same-color
// stones along the four axes. Both colors are evaluated over the same scan:
// when an observation completes a line for each color at once, the observer
// that triggered the collapse wins. The reported line is the first
// WinRun-cell window of the run, starting at the scan origin.
func DetectWin(b *Board, observer Color) WinResult {
	var lines [2][]Coord

	for row := 0; row < Size; row++ {
		for col := 0; col < Size; col++ {
			stone := b.At(row, col)
			if stone == nil || stone.Observed == nil {
				continue
			}
			color := *stone.Observed
			if lines[color] != nil {
				continue
			}
			for _, dir := range directions {
				run := runLength(b, row, col, dir, color)
				if run < WinRun {
					continue
				}
				line := make([]Coord, WinRun)
				for i := range line {
					line[i] = Coord{Row: row + dir.Row*i, Col: col + dir.Col*i}
				}
				lines[color] = line
				break
			}
		}
	}

	black, white := lines[Black], lines[White]
	switch {
	case black != nil && white != nil:
		winner := observer
		return WinResult{Winner: &winner, Line: lines[observer]}
	case black != nil:
		winner := Black
		return WinResult{Winner: &winner, Line: black}
	case white != nil:
		winner := White
		return WinResult{Winner: &winner, Line: white}
	default:
		return WinResult{}
	}
}

// runLength counts consecutive resolved stones of the color starting at the
// origin and extending along the direction.
func runLength(b *Board, row, col int, dir Coord, color Color) int {
	count := 0
	for {
		stone := b.At(row, col)
		if stone == nil || stone.Observed == nil || *stone.Observed != color {
			return count
		}
		count++
		row += dir.Row
		col += dir.Col
	}
}
