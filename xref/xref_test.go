package xref

import (
	"bytes"
	"testing"
)

const sampleTail = `xref
0 3
0000000000 65535 f
0000000015 00000 n
0000000100 00000 n
trailer
<< /Size 3 /Root 1 0 R >>
startxref
`

func TestParseSection(t *testing.T) {
	data := []byte("%PDF-1.4\nx\n" + sampleTail + "11\n%%EOF\n")
	off := int64(bytes.Index(data, []byte("xref")))
	table, trailerOff, err := ParseSection(data, off)
	if err != nil {
		t.Fatalf("ParseSection: %v", err)
	}
	if got, gen, ok := table.Lookup(1); !ok || got != 15 || gen != 0 {
		t.Errorf("Lookup(1) = (%d, %d, %v), want (15, 0, true)", got, gen, ok)
	}
	if got, _, ok := table.Lookup(2); !ok || got != 100 {
		t.Errorf("Lookup(2) = (%d, _, %v), want (100, true)", got, ok)
	}
	if _, _, ok := table.Lookup(0); ok {
		t.Error("free entry 0 must not resolve to an offset")
	}
	if trailerOff <= off {
		t.Errorf("trailer offset %d not past section start %d", trailerOff, off)
	}
	if !bytes.HasPrefix(data[trailerOff:], []byte("<<")) {
		t.Errorf("trailer offset %d does not point at a dictionary", trailerOff)
	}
}

func TestStartxref(t *testing.T) {
	data := []byte("%PDF-1.4\nbody\nstartxref\n1234\n%%EOF\n")
	off, err := Startxref(data)
	if err != nil {
		t.Fatalf("Startxref: %v", err)
	}
	if off != 1234 {
		t.Errorf("Startxref = %d, want 1234", off)
	}
}

func TestStartxrefMissing(t *testing.T) {
	if _, err := Startxref([]byte("no trailer here")); err == nil {
		t.Fatal("expected error without startxref keyword")
	}
}

func TestMergeNewerWins(t *testing.T) {
	older := NewTable()
	older.Set(1, Entry{Offset: 10})
	older.Set(2, Entry{Offset: 20})
	newer := NewTable()
	newer.Set(2, Entry{Offset: 200})
	newer.Merge(older)
	if off, _, _ := newer.Lookup(1); off != 10 {
		t.Errorf("entry 1 = %d, want 10 (inherited)", off)
	}
	if off, _, _ := newer.Lookup(2); off != 200 {
		t.Errorf("entry 2 = %d, want 200 (newer wins)", off)
	}
}

func TestRepairFindsObjects(t *testing.T) {
	data := []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n12 0 obj\n(hello)\nendobj\n")
	table, err := Repair(data)
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	wantOne := int64(bytes.Index(data, []byte("1 0 obj")))
	if off, _, ok := table.Lookup(1); !ok || off != wantOne {
		t.Errorf("Lookup(1) = (%d, %v), want (%d, true)", off, ok, wantOne)
	}
	wantTwelve := int64(bytes.Index(data, []byte("12 0 obj")))
	if off, _, ok := table.Lookup(12); !ok || off != wantTwelve {
		t.Errorf("Lookup(12) = (%d, %v), want (%d, true)", off, ok, wantTwelve)
	}
}

func TestRepairLaterDefinitionWins(t *testing.T) {
	data := []byte("%PDF-1.4\n3 0 obj\n(old)\nendobj\n3 0 obj\n(new)\nendobj\n")
	table, err := Repair(data)
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	want := int64(bytes.LastIndex(data, []byte("3 0 obj")))
	if off, _, _ := table.Lookup(3); off != want {
		t.Errorf("Lookup(3) = %d, want %d (later definition)", off, want)
	}
}
