package keithley

import (
	"fmt"
	"strconv"
)

// CountFunc looks up a per-slot count, such as the number of matrix rows
type CountFunc func(slot int) (int, error)

// RowLabels returns "1" through n, unpadded
func RowLabels(n int) []string {
	out := make([]string, 0, max(n, 0))
	for i := 1; i <= n; i++ {
		out = append(out, strconv.Itoa(i))
	}
	return out
}

// ColumnLabels returns "01" through n.  Columns below 10 are zero padded to
// two digits; 100 and above print at their natural width, so the field is
// only fixed-width for cards of up to 99 columns.
func ColumnLabels(n int) []string {
	out := make([]string, 0, max(n, 0))
	for i := 1; i <= n; i++ {
		out = append(out, columnLabel(i))
	}
	return out
}

func columnLabel(col int) string {
	return fmt.Sprintf("%02d", col)
}

// ChannelName returns the identifier of one matrix crosspoint, slot ++ row ++ col
// with no delimiter.  The instrument splits it back up positionally.
func ChannelName(slot, row, col int) string {
	return strconv.Itoa(slot) + strconv.Itoa(row) + columnLabel(col)
}

// EnumerateChannels lists every matrix channel on the given cards.
// Slots keep their input order; within a slot, rows vary slowest, so
// 2 rows by 2 columns in slot 1 gives 1101, 1102, 1201, 1202.
// rows is called for every slot before cols is called for any; the first
// error is returned as-is along with no channels.
func EnumerateChannels(slots []SlotInfo, rows, cols CountFunc) ([]string, error) {
	nrows := make([]int, len(slots))
	for i, card := range slots {
		r, err := rows(card.Slot)
		if err != nil {
			return nil, err
		}
		nrows[i] = r
	}
	ncols := make([]int, len(slots))
	for i, card := range slots {
		c, err := cols(card.Slot)
		if err != nil {
			return nil, err
		}
		ncols[i] = c
	}
	var out []string
	for i, card := range slots {
		slot := strconv.Itoa(card.Slot)
		colLabels := ColumnLabels(ncols[i])
		for _, row := range RowLabels(nrows[i]) {
			for _, col := range colLabels {
				out = append(out, slot+row+col)
			}
		}
	}
	return out, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
