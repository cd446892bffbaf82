package raw

import (
	"errors"
	"testing"
)

func TestDocumentAddAllocatesSequentially(t *testing.T) {
	doc := NewDocument()
	a := doc.Add(Int(1))
	b := doc.Add(Int(2))
	if a.Num+1 != b.Num {
		t.Errorf("object numbers not sequential: %v then %v", a, b)
	}
	if got := doc.Resolve(Ref(a.Num, a.Gen)); got.(NumberObj).Int() != 1 {
		t.Errorf("Resolve(%v) = %v, want 1", a, got)
	}
}

func TestResolveFollowsChains(t *testing.T) {
	doc := NewDocument()
	target := doc.Add(Name("leaf"))
	mid := doc.Add(Ref(target.Num, target.Gen))
	got := doc.Resolve(Ref(mid.Num, mid.Gen))
	if n, ok := got.(NameObj); !ok || n.Val != "leaf" {
		t.Errorf("Resolve chain = %v, want /leaf", got)
	}
}

func TestResolveLoopStops(t *testing.T) {
	doc := NewDocument()
	a := doc.Allocate()
	b := doc.Allocate()
	doc.Put(a, Ref(b.Num, b.Gen))
	doc.Put(b, Ref(a.Num, a.Gen))
	got := doc.Resolve(Ref(a.Num, a.Gen))
	if _, ok := got.(NullObj); !ok {
		t.Errorf("resolving a reference cycle = %v, want null", got)
	}
}

func TestDictKeysSorted(t *testing.T) {
	d := Dict()
	d.Set("Zebra", Int(1))
	d.Set("Alpha", Int(2))
	d.Set("Mid", Int(3))
	keys := d.Keys()
	want := []string{"Alpha", "Mid", "Zebra"}
	for i, k := range want {
		if keys[i] != k {
			t.Fatalf("Keys() = %v, want %v", keys, want)
		}
	}
}

func TestCopierDeepCopiesSubtree(t *testing.T) {
	src := NewDocument()
	inner := src.Add(Str([]byte("shared")))
	d := Dict()
	d.Set("A", Ref(inner.Num, inner.Gen))
	d.Set("B", Ref(inner.Num, inner.Gen))
	top := src.Add(d)

	dst := NewDocument()
	c := NewCopier(src, dst)
	ref, err := c.CopyRef(top)
	if err != nil {
		t.Fatalf("CopyRef: %v", err)
	}
	copied, ok := dst.Resolve(Ref(ref.Num, ref.Gen)).(*DictObj)
	if !ok {
		t.Fatalf("copied object is not a dict")
	}
	aRef := copied.KV["A"].(RefObj)
	bRef := copied.KV["B"].(RefObj)
	if aRef.R != bRef.R {
		t.Errorf("shared target duplicated: %v vs %v", aRef.R, bRef.R)
	}
	if s, ok := dst.Resolve(aRef).(StringObj); !ok || string(s.Bytes) != "shared" {
		t.Errorf("copied leaf = %v, want (shared)", dst.Resolve(aRef))
	}
	// The source graph must be untouched.
	if _, ok := src.Objects[top]; !ok {
		t.Error("source object disappeared during copy")
	}
}

func TestCopierSurvivesCycles(t *testing.T) {
	src := NewDocument()
	a := src.Allocate()
	b := src.Allocate()
	da, db := Dict(), Dict()
	da.Set("Next", Ref(b.Num, b.Gen))
	db.Set("Prev", Ref(a.Num, a.Gen))
	src.Put(a, da)
	src.Put(b, db)

	dst := NewDocument()
	ref, err := NewCopier(src, dst).CopyRef(a)
	if err != nil {
		t.Fatalf("CopyRef on cyclic graph: %v", err)
	}
	ca := dst.Resolve(Ref(ref.Num, ref.Gen)).(*DictObj)
	next := ca.KV["Next"].(RefObj)
	cb, ok := dst.Resolve(next).(*DictObj)
	if !ok {
		t.Fatalf("cycle partner not copied")
	}
	prev := cb.KV["Prev"].(RefObj)
	if prev.R != ref {
		t.Errorf("cycle not preserved: Prev = %v, want %v", prev.R, ref)
	}
}

func TestCopierDanglingRefBecomesNull(t *testing.T) {
	src := NewDocument()
	d := Dict()
	d.Set("Gone", Ref(999, 0))
	top := src.Add(d)

	dst := NewDocument()
	ref, err := NewCopier(src, dst).CopyRef(top)
	if err != nil {
		t.Fatalf("CopyRef: %v", err)
	}
	copied := dst.Resolve(Ref(ref.Num, ref.Gen)).(*DictObj)
	if _, ok := dst.Resolve(copied.KV["Gone"]).(NullObj); !ok {
		t.Errorf("dangling ref resolves to %v, want null", dst.Resolve(copied.KV["Gone"]))
	}
}

func TestErrResolveLoopSentinel(t *testing.T) {
	if !errors.Is(ErrResolveLoop, ErrResolveLoop) {
		t.Fatal("sentinel identity")
	}
}
