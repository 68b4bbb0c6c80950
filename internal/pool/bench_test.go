package pool

import (
	"fmt"
	"sync"
	"testing"
)

func BenchmarkPool_Spawn(b *testing.B) {
	for _, kind := range []string{"shared", "naive"} {
		for _, workers := range []int{1, 4, 16} {
			b.Run(fmt.Sprintf("%s/%d", kind, workers), func(b *testing.B) {
				p, err := New(kind, workers, nil)
				if err != nil {
					b.Fatalf("New() error = %v", err)
				}
				defer p.Close()

				var wg sync.WaitGroup
				wg.Add(b.N)
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					p.Spawn(func() {
						sum := 0
						for j := 0; j < 1000; j++ {
							sum += j
						}
						_ = sum
						wg.Done()
					})
				}
				wg.Wait()
			})
		}
	}
}
