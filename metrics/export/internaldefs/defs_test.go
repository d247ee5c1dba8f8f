package internaldefs

import (
	"reflect"
	"testing"
)

func TestBoundsFollowClientLatencyBuckets(t *testing.T) {
	wantLabels := []string{"0.025", "0.05", "0.1", "0.25", "0.5", "1", "2.5", "+Inf"}
	if !reflect.DeepEqual(HistogramBounds, wantLabels) {
		t.Fatalf("labels = %v, want %v", HistogramBounds, wantLabels)
	}
	wantSuffix := []string{"0_025", "0_05", "0_1", "0_25", "0_5", "1", "2_5", "inf"}
	if !reflect.DeepEqual(HistogramBoundSuffix, wantSuffix) {
		t.Fatalf("suffixes = %v, want %v", HistogramBoundSuffix, wantSuffix)
	}
	if BucketCount != len(wantLabels) {
		t.Fatalf("bucket count = %d, want %d", BucketCount, len(wantLabels))
	}
}

func TestCumulativeBucketsPadsAndTruncates(t *testing.T) {
	got := CumulativeBuckets([]uint64{1, 2})
	if len(got) != BucketCount || got[0] != 1 || got[BucketCount-1] != 3 {
		t.Fatalf("short input = %v", got)
	}

	long := make([]uint64, BucketCount+3)
	for i := range long {
		long[i] = 1
	}
	got = CumulativeBuckets(long)
	if got[BucketCount-1] != uint64(BucketCount) {
		t.Fatalf("long input = %v", got)
	}
}

type navigating struct{}

func (navigating) NavigationsSuperseded() uint64 { return 2 }

func TestSupersededNeedsNavigationSource(t *testing.T) {
	if _, ok := Superseded(struct{}{}); ok {
		t.Fatal("plain source reported navigations")
	}
	if n, ok := Superseded(navigating{}); !ok || n != 2 {
		t.Fatalf("Superseded = %d, %v", n, ok)
	}
}
