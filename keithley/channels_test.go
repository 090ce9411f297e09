package keithley

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func fixed(counts map[int]int) CountFunc {
	return func(slot int) (int, error) {
		return counts[slot], nil
	}
}

func TestEnumerateRowMajor(t *testing.T) {
	slots := []SlotInfo{{Slot: 1}}
	got, err := EnumerateChannels(slots, fixed(map[int]int{1: 2}), fixed(map[int]int{1: 2}))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"1101", "1102", "1201", "1202"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("channel mismatch (-want +got):\n%s", diff)
	}
}

func TestEnumerateCountAndDistinct(t *testing.T) {
	for _, dims := range [][2]int{{1, 1}, {4, 28}, {6, 16}, {8, 9}, {8, 10}} {
		r, c := dims[0], dims[1]
		got, err := EnumerateChannels([]SlotInfo{{Slot: 2}}, fixed(map[int]int{2: r}), fixed(map[int]int{2: c}))
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != r*c {
			t.Errorf("%dx%d: expected %d channels, got %d", r, c, r*c, len(got))
		}
		seen := map[string]bool{}
		for _, ch := range got {
			if seen[ch] {
				t.Errorf("%dx%d: duplicate channel %s", r, c, ch)
			}
			seen[ch] = true
		}
	}
}

func TestEnumeratePreservesSlotOrder(t *testing.T) {
	slots := []SlotInfo{{Slot: 4}, {Slot: 2}}
	rows := fixed(map[int]int{4: 1, 2: 1})
	cols := fixed(map[int]int{4: 2, 2: 1})
	got, err := EnumerateChannels(slots, rows, cols)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"4101", "4102", "2101"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("channel mismatch (-want +got):\n%s", diff)
	}
}

func TestColumnPadding(t *testing.T) {
	nine := ColumnLabels(9)
	if diff := cmp.Diff([]string{"01", "02", "03", "04", "05", "06", "07", "08", "09"}, nine); diff != "" {
		t.Errorf("cols=9 mismatch (-want +got):\n%s", diff)
	}
	ten := ColumnLabels(10)
	if ten[8] != "09" || ten[9] != "10" || len(ten) != 10 {
		t.Errorf("expected cols=10 to end 09, 10, got %v", ten)
	}
}

func TestColumnsAbove99KeepNaturalWidth(t *testing.T) {
	cols := ColumnLabels(100)
	if cols[99] != "100" {
		t.Errorf("expected column 100 to render as 100, got %s", cols[99])
	}
	if ChannelName(1, 1, 100) != "11100" {
		t.Errorf("expected 11100, got %s", ChannelName(1, 1, 100))
	}
}

func TestRowsAreNotPadded(t *testing.T) {
	rows := RowLabels(10)
	if rows[0] != "1" || rows[9] != "10" {
		t.Errorf("unexpected row labels %v", rows)
	}
	if ChannelName(3, 10, 5) != "31005" {
		t.Errorf("expected 31005, got %s", ChannelName(3, 10, 5))
	}
}

func TestEnumerateIsIdempotent(t *testing.T) {
	slots := []SlotInfo{{Slot: 1}, {Slot: 6}}
	rows := fixed(map[int]int{1: 6, 6: 4})
	cols := fixed(map[int]int{1: 16, 6: 28})
	a, err := EnumerateChannels(slots, rows, cols)
	if err != nil {
		t.Fatal(err)
	}
	b, err := EnumerateChannels(slots, rows, cols)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("second enumeration differs (-first +second):\n%s", diff)
	}
}

func TestEnumerateAsksAllRowsFirst(t *testing.T) {
	var asked []string
	counter := func(kind string) CountFunc {
		return func(slot int) (int, error) {
			asked = append(asked, fmt.Sprintf("%s%d", kind, slot))
			return 1, nil
		}
	}
	_, err := EnumerateChannels([]SlotInfo{{Slot: 1}, {Slot: 3}}, counter("rows"), counter("cols"))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"rows1", "rows3", "cols1", "cols3"}
	if diff := cmp.Diff(want, asked); diff != "" {
		t.Errorf("lookup order mismatch (-want +got):\n%s", diff)
	}
}

func TestEnumerateNoSlots(t *testing.T) {
	got, err := EnumerateChannels(nil, fixed(nil), fixed(nil))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected no channels, got %v", got)
	}
}

func TestEnumerateLookupErrorPropagates(t *testing.T) {
	boom := errors.New("i/o timeout")
	calls := 0
	cols := func(slot int) (int, error) {
		calls++
		if slot == 2 {
			return 0, boom
		}
		return 3, nil
	}
	got, err := EnumerateChannels([]SlotInfo{{Slot: 1}, {Slot: 2}, {Slot: 3}}, fixed(map[int]int{1: 1, 2: 1, 3: 1}), cols)
	if err != boom {
		t.Errorf("expected lookup error unchanged, got %v", err)
	}
	if got != nil {
		t.Errorf("expected no partial result, got %v", got)
	}
	if calls != 2 {
		t.Errorf("expected enumeration to stop at the failing slot, %d lookups made", calls)
	}
}

func ExampleEnumerateChannels() {
	cards := []SlotInfo{{Slot: 1, Model: "3730"}}
	rows := func(int) (int, error) { return 2, nil }
	cols := func(int) (int, error) { return 3, nil }
	chs, _ := EnumerateChannels(cards, rows, cols)
	fmt.Println(chs)
	// Output: [1101 1102 1103 1201 1202 1203]
}
