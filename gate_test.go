package sqsconsumer

import "testing"

func TestSizeNextReceive(t *testing.T) {
	tests := []struct {
		name      string
		batchSize int
		numActive int
		expected  int
	}{
		{"capped at protocol max", 15, 0, 10},
		{"remaining capacity", 15, 10, 5},
		{"full capacity requests one", 15, 15, 1},
		{"over capacity requests one", 15, 20, 1},
		{"default batch size", 1, 0, 1},
		{"exactly ten", 10, 0, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sizeNextReceive(tt.batchSize, tt.numActive); got != tt.expected {
				t.Errorf("sizeNextReceive(%d, %d) = %d, expected %d", tt.batchSize, tt.numActive, got, tt.expected)
			}
		})
	}
}

func TestMayPollNow(t *testing.T) {
	tests := []struct {
		name        string
		active      bool
		outstanding bool
		numActive   int
		batchSize   int
		expected    bool
	}{
		{"idle and active", true, false, 0, 1, true},
		{"inactive", false, false, 0, 1, false},
		{"receive outstanding", true, true, 0, 5, false},
		{"at capacity", true, false, 5, 5, false},
		{"below capacity", true, false, 4, 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mayPollNow(tt.active, tt.outstanding, tt.numActive, tt.batchSize)
			if got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}
