package aws

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCrossRegions_SkipsSelfRegion(t *testing.T) {
	got := crossRegions([]string{"eu-west-1", "eu-central-1", "us-east-1"}, "eu-central-1")
	want := []string{"eu-west-1", "us-east-1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("crossRegions mismatch (-want +got):\n%s", diff)
	}
}

func TestCrossRegions_NoRegionsConfigured(t *testing.T) {
	got := crossRegions(nil, "eu-west-1")
	if len(got) != 0 {
		t.Fatalf("expected no cross-region work with no regions configured, got %v", got)
	}
}

func TestCrossRegions_SingleRegionIsSelf(t *testing.T) {
	got := crossRegions([]string{"eu-west-1"}, "eu-west-1")
	if len(got) != 0 {
		t.Fatalf("expected a single, self-matching region to produce no cross-region work, got %v", got)
	}
}
