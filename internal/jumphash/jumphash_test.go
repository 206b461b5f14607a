package jumphash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	t.Run("no buckets", func(t *testing.T) {
		require.Equal(t, 0, Hash(42, 0))
		require.Equal(t, 0, Hash(42, -3))
	})

	t.Run("single bucket", func(t *testing.T) {
		for key := range uint64(100) {
			require.Equal(t, 0, Hash(key, 1))
		}
	})

	t.Run("bounds", func(t *testing.T) {
		for key := range uint64(1000) {
			b := Hash(key*7919, 13)
			require.True(t, b >= 0 && b < 13, "key %d out of range: %d", key, b)
		}
	})

	t.Run("minimal movement", func(t *testing.T) {
		// Keys either stay in place or move to the new bucket.
		for key := range uint64(1000) {
			before := Hash(key*104729, 10)
			after := Hash(key*104729, 11)
			if before != after {
				require.Equal(t, 10, after)
			}
		}
	})
}

func BenchmarkHash(b *testing.B) {
	for b.Loop() {
		Hash(0xdeadbeef, 10)
	}
}
