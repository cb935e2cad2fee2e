package mux

import "testing"

func TestReferenceResolverExactLookup(t *testing.T) {
	r := NewReferenceResolver(nil)
	bg := &BlockGroup{SourceID: "v"}
	r.IndexPacket("v", 1000, bg)
	if got := r.Lookup("v", 1000); got != bg {
		t.Fatalf("exact lookup failed, got %v", got)
	}
}

func TestReferenceResolverFuzzyLookup(t *testing.T) {
	r := NewReferenceResolver(nil)
	bg := &BlockGroup{SourceID: "v"}
	r.IndexPacket("v", 1000, bg)
	if got := r.Lookup("v", 999); got != bg {
		t.Fatalf("fuzzy -1 lookup failed, got %v", got)
	}
	if got := r.Lookup("v", 1001); got != bg {
		t.Fatalf("fuzzy +1 lookup failed, got %v", got)
	}
	if got := r.Lookup("v", 1002); got != nil {
		t.Fatalf("lookup beyond the +-1 fuzz window must miss, got %v", got)
	}
}

func TestReferenceResolverAllRefsResolved(t *testing.T) {
	r := NewReferenceResolver(nil)
	c := newCluster(0, 0)
	key := &BlockGroup{SourceID: "v", cluster: c}
	c.Groups = append(c.Groups, key)
	if !r.AllRefsResolved(c) {
		t.Fatal("a cluster with only keyframe groups must be fully resolved")
	}
	dependent := &BlockGroup{SourceID: "v", cluster: c, BRefBlock: key}
	c.Groups = append(c.Groups, dependent)
	if !r.AllRefsResolved(c) {
		t.Fatal("a resolved BRefBlock pointer means the reference is located")
	}
}

func TestFreeClustersDropsFullyRenderedUnreferencedClusters(t *testing.T) {
	r := NewReferenceResolver(nil)
	c := newCluster(0, 0)
	c.rendered = true
	g := &BlockGroup{SourceID: "v", cluster: c, AbsoluteTimecode: 0, Laces: []Lace{{Payload: []byte{1, 2, 3}}}}
	c.Groups = append(c.Groups, g)
	r.RegisterCluster(c)
	r.FreeReference(1000, "v")

	freed := r.FreeClusters()
	if len(freed) != 1 || freed[0] != c {
		t.Fatalf("expected cluster to be freed, got %v", freed)
	}
	if g.Laces[0].Payload != nil {
		t.Fatal("freed BlockGroup's lace payloads must be released")
	}
	if len(r.AllRegisteredClusters()) != 0 {
		t.Fatal("freed cluster must be removed from the resolver's bookkeeping")
	}
}

func TestFreeClustersKeepsStillReferencedClusters(t *testing.T) {
	r := NewReferenceResolver(nil)
	keyCluster := newCluster(0, 0)
	keyCluster.rendered = true
	key := &BlockGroup{SourceID: "v", cluster: keyCluster, AbsoluteTimecode: 0}
	keyCluster.Groups = append(keyCluster.Groups, key)
	r.RegisterCluster(keyCluster)

	depCluster := newCluster(1, 0)
	depCluster.rendered = true
	dep := &BlockGroup{SourceID: "v", cluster: depCluster, AbsoluteTimecode: 1, BRefBlock: key}
	depCluster.Groups = append(depCluster.Groups, dep)
	r.RegisterCluster(depCluster)

	// freed-mark at 0 leaves dep (at timecode 1) un-superseded, so it
	// still counts as a live inbound reference to keyCluster.
	r.FreeReference(0, "v")
	freed := r.FreeClusters()

	for _, c := range freed {
		if c == keyCluster {
			t.Fatal("a cluster still referenced by a live dependent must not be freed")
		}
	}
}
