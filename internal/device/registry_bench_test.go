package device

import (
	"fmt"
	"testing"
)

// setupBenchRegistry creates a registry pre-populated with n devices.
func setupBenchRegistry(b *testing.B, n int) *Registry {
	b.Helper()
	reg := NewRegistry()
	for i := 0; i < n; i++ {
		reg.Add(testDevice(uint32(i), fmt.Sprintf("Device %d", i))) //nolint:gosec // benchmark sizes are small
	}
	return reg
}

func BenchmarkRegistryLookup(b *testing.B) {
	reg := setupBenchRegistry(b, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.Lookup(50) //nolint:errcheck // benchmark
	}
}

func BenchmarkRegistryLookup_Parallel(b *testing.B) {
	reg := setupBenchRegistry(b, 100)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			reg.Lookup(50) //nolint:errcheck // benchmark
		}
	})
}

func BenchmarkRegistrySetActuatorIntensity(b *testing.B) {
	reg := setupBenchRegistry(b, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.SetActuatorIntensity(50, 0, 0.5) //nolint:errcheck // benchmark
	}
}

func BenchmarkRegistryList(b *testing.B) {
	reg := setupBenchRegistry(b, 200)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		reg.List()
	}
}
