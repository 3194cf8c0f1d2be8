package business

import (
	"fmt"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func rec(name, address, uri string) Record {
	return Record{ID: NewRecordID(), Name: name, Address: address, MapsURI: uri}
}

func keys(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, IdentityKey(r))
	}
	return out
}

func keySet(records []Record) []string {
	k := keys(records)
	sort.Strings(k)
	return k
}

func TestIdentityKeyPrefersMapsURI(t *testing.T) {
	if got := IdentityKey(rec("A", "B", "https://maps/x")); got != "https://maps/x" {
		t.Fatalf("got %q", got)
	}
	if got := IdentityKey(rec("A", "B", "")); got != "A|B" {
		t.Fatalf("got %q", got)
	}
}

func TestMergeAppendsOnlyNewKeys(t *testing.T) {
	existing := []Record{rec("A", "1", ""), rec("B", "2", "https://maps/b")}
	incoming := []Record{
		rec("B-renamed", "2", "https://maps/b"),
		rec("C", "3", ""),
		rec("A", "1", ""),
		rec("D", "4", ""),
		rec("C", "3", ""),
	}
	merged, added := Merge(existing, incoming)
	if added != 2 {
		t.Fatalf("added = %d, want 2", added)
	}
	want := []string{"A|1", "https://maps/b", "C|3", "D|4"}
	if diff := cmp.Diff(want, keys(merged)); diff != "" {
		t.Fatalf("merged order mismatch (-want +got):\n%s", diff)
	}
	if merged[1].Name != "B" {
		t.Fatalf("existing entry must win, got %q", merged[1].Name)
	}
	if merged[0].ID != existing[0].ID {
		t.Fatal("existing records must be kept as-is")
	}
}

func TestMergeDoesNotAliasExisting(t *testing.T) {
	existing := make([]Record, 1, 8)
	existing[0] = rec("A", "1", "")
	merged, _ := Merge(existing, []Record{rec("B", "2", "")})
	merged[0].Name = "changed"
	if existing[0].Name != "A" {
		t.Fatal("merge result shares storage with existing")
	}
}

func TestMergeIdempotent(t *testing.T) {
	s := []Record{rec("A", "1", ""), rec("B", "2", "u-b"), rec("C", "3", "")}
	merged, added := Merge(s, s)
	if added != 0 {
		t.Fatalf("added = %d, want 0", added)
	}
	if diff := cmp.Diff(keySet(s), keySet(merged)); diff != "" {
		t.Fatalf("key set changed (-want +got):\n%s", diff)
	}
}

func TestMergeKeySetOrderIndependent(t *testing.T) {
	batch := func(prefix string, n int) []Record {
		out := make([]Record, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, rec(fmt.Sprintf("%s%d", prefix, i), "addr", ""))
		}
		return out
	}
	a, b, c := batch("a", 3), batch("b", 4), batch("c", 2)
	// overlapping keys inside the batches themselves
	b = append(b, a[0])
	c = append(c, b[1])

	ab, _ := Merge(a, b)
	left, _ := Merge(ab, c)
	bc, _ := Merge(b, c)
	right, _ := Merge(a, bc)
	if diff := cmp.Diff(keySet(left), keySet(right)); diff != "" {
		t.Fatalf("key sets differ (-left +right):\n%s", diff)
	}
	if len(left) != 9 {
		t.Fatalf("expected 9 unique records, got %d", len(left))
	}
}

func TestMergeEmptyInputs(t *testing.T) {
	merged, added := Merge(nil, nil)
	if len(merged) != 0 || added != 0 {
		t.Fatalf("unexpected merged=%v added=%d", merged, added)
	}
	merged, added = Merge(nil, []Record{rec("A", "1", "")})
	if len(merged) != 1 || added != 1 {
		t.Fatalf("unexpected merged=%v added=%d", merged, added)
	}
}
