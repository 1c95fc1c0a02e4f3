package extract

import "strings"

// sheetCandidate is one scored sheet.
type sheetCandidate struct {
	Index int
	Score float64
}

// selectSheet scores every visible non-empty sheet by its best header-row
// candidate and returns the winner plus the runner-up margin. Hidden sheets
// never win.
func selectSheet(wb *Workbook) (best sheetCandidate, margin float64, ok bool) {
	var candidates []sheetCandidate
	for i, sheet := range wb.Sheets {
		if sheet.Hidden || len(sheet.Rows) == 0 {
			continue
		}
		_, score := detectHeaderRow(&wb.Sheets[i])
		candidates = append(candidates, sheetCandidate{Index: i, Score: score})
	}
	if len(candidates) == 0 {
		return sheetCandidate{}, 0, false
	}

	bestIdx, runnerUp := 0, -1.0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Score > candidates[bestIdx].Score {
			bestIdx = i
		}
	}
	for i, c := range candidates {
		if i != bestIdx && c.Score > runnerUp {
			runnerUp = c.Score
		}
	}

	margin = 1.0
	if runnerUp >= 0 {
		margin = candidates[bestIdx].Score - runnerUp
	}
	return candidates[bestIdx], margin, true
}

// detectHeaderRow finds the most header-like row in the sheet's first rows.
// The headerness score combines the non-empty ratio, the text-vs-number
// ratio, the length distribution and the absence of totals tokens in rows
// that carry numbers; single
// title cells spanning the sheet score poorly and get skipped.
func detectHeaderRow(sheet *Sheet) (rowIdx int, score float64) {
	const maxScan = 20

	bestIdx, bestScore := 0, -1.0
	limit := len(sheet.Rows)
	if limit > maxScan {
		limit = maxScan
	}

	for r := 0; r < limit; r++ {
		s := headerness(sheet.Rows[r])
		// Require something below the candidate row to extract from.
		if r == len(sheet.Rows)-1 {
			s *= 0.5
		}
		if s > bestScore {
			bestIdx, bestScore = r, s
		}
	}
	if bestScore < 0 {
		return 0, 0
	}
	return bestIdx, bestScore
}

// headerRunnerUpMargin returns the margin between the best and second-best
// header row scores for the ambiguity check.
func headerRunnerUpMargin(sheet *Sheet) float64 {
	const maxScan = 20

	limit := len(sheet.Rows)
	if limit > maxScan {
		limit = maxScan
	}
	best, second := -1.0, -1.0
	for r := 0; r < limit; r++ {
		s := headerness(sheet.Rows[r])
		if s > best {
			second = best
			best = s
		} else if s > second {
			second = s
		}
	}
	if second < 0 {
		return 1.0
	}
	return best - second
}

// headerness scores one row in [0,1].
func headerness(row []Cell) float64 {
	if len(row) == 0 {
		return 0
	}

	nonEmpty, textCells, totalLen := 0, 0, 0
	hasTotals := false
	for _, cell := range row {
		v := strings.TrimSpace(cell.RawValue)
		if v == "" {
			continue
		}
		nonEmpty++
		totalLen += len([]rune(v))
		if _, _, ok := ParseNumber(v, ""); !ok {
			textCells++
		}
		if isTotalsText(v) {
			hasTotals = true
		}
	}
	if nonEmpty < 2 {
		// A single title cell is not a header row.
		return 0
	}

	nonEmptyRatio := float64(nonEmpty) / float64(len(row))
	textRatio := float64(textCells) / float64(nonEmpty)

	// Headers are short labels: average length 2..30 runes scores best.
	avgLen := float64(totalLen) / float64(nonEmpty)
	lengthScore := 1.0
	if avgLen > 30 {
		lengthScore = 30 / avgLen
	} else if avgLen < 2 {
		lengthScore = avgLen / 2
	}

	score := 0.35*nonEmptyRatio + 0.40*textRatio + 0.25*lengthScore
	// A totals token only marks a totals row when the row also carries
	// numbers; a label row with a "Total" column header is still a header.
	if hasTotals && textCells < nonEmpty {
		score *= 0.3
	}
	return score
}

// PackInputs returns the header texts and full column value lists for the
// selected sheet and header row, the raw material for the committee's
// bounded evidence pack.
func PackInputs(wb *Workbook, sheetName string, headerRow int) (headers []string, columns [][]string) {
	var sheet *Sheet
	for i := range wb.Sheets {
		if wb.Sheets[i].Name == sheetName {
			sheet = &wb.Sheets[i]
			break
		}
	}
	if sheet == nil {
		return nil, nil
	}

	headers = columnHeaders(sheet, headerRow)
	columns = make([][]string, len(headers))
	for c := range headers {
		for r := headerRow + 1; r < len(sheet.Rows); r++ {
			if c < len(sheet.Rows[r]) {
				columns[c] = append(columns[c], strings.TrimSpace(sheet.Rows[r][c].RawValue))
			}
		}
	}
	return headers, columns
}

// columnHeaders returns the trimmed header text for every column of the
// chosen header row, padded to the sheet's widest row.
func columnHeaders(sheet *Sheet, headerRow int) []string {
	width := 0
	for _, row := range sheet.Rows {
		if len(row) > width {
			width = len(row)
		}
	}
	headers := make([]string, width)
	if headerRow < len(sheet.Rows) {
		for c, cell := range sheet.Rows[headerRow] {
			headers[c] = strings.TrimSpace(cell.RawValue)
		}
	}
	return headers
}

// sampleColumnValues returns up to max non-empty data values of a column
// below the header row.
func sampleColumnValues(sheet *Sheet, headerRow, col, max int) []string {
	var samples []string
	for r := headerRow + 1; r < len(sheet.Rows) && len(samples) < max; r++ {
		row := sheet.Rows[r]
		if col >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[col].RawValue)
		if v != "" {
			samples = append(samples, v)
		}
	}
	return samples
}

// detectLanguage produces the order's language hint from headers and first
// column samples using a majority-character heuristic.
func detectLanguage(headers []string, samples []string) string {
	latin, arabicScript, farsiMarkers := 0, 0, 0

	scan := func(s string) {
		for _, r := range s {
			switch {
			case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
				latin++
			case r >= 0x0600 && r <= 0x06FF:
				arabicScript++
				// Characters unique to Farsi within the Arabic block.
				if r == 'پ' || r == 'چ' || r == 'ژ' || r == 'گ' || r == 'ک' || r == 'ی' {
					farsiMarkers++
				}
			}
		}
	}
	for _, h := range headers {
		scan(h)
	}
	for _, s := range samples {
		scan(s)
	}

	total := latin + arabicScript
	switch {
	case total == 0:
		return "unknown"
	case latin > 0 && arabicScript > 0 &&
		float64(min(latin, arabicScript))/float64(total) > 0.2:
		return "mixed"
	case arabicScript > latin:
		if farsiMarkers > 0 {
			return "fa"
		}
		return "ar"
	default:
		return "en"
	}
}
