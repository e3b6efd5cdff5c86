package casestudy

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPartitionsFor(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		want     []Partition
	}{
		{name: "aws", provider: "aws", want: []Partition{PartitionAWS}},
		{name: "gcp", provider: "gcp", want: []Partition{PartitionGCP}},
		{name: "aws uppercase", provider: "AWS", want: []Partition{PartitionAWS}},
		{name: "gcp mixed case", provider: "Gcp", want: []Partition{PartitionGCP}},
		{name: "others searches all partitions", provider: "others", want: []Partition{PartitionAWS, PartitionGCP}},
		{name: "unknown provider searches all partitions", provider: "azure", want: []Partition{PartitionAWS, PartitionGCP}},
		{name: "empty provider searches all partitions", provider: "", want: []Partition{PartitionAWS, PartitionGCP}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PartitionsFor(tt.provider)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("PartitionsFor(%q) mismatch (-want +got):\n%s", tt.provider, diff)
			}
		})
	}
}
