package config

import (
	"os"
	"testing"
)

func BenchmarkReadEnvironment(b *testing.B) {
	_ = os.Setenv("DEVICE", "/dev/ttyACM0")
	_ = os.Setenv("PORT", "8000")
	_ = os.Setenv("CHANNELS", "5")
	defer func() {
		_ = os.Unsetenv("DEVICE")
		_ = os.Unsetenv("PORT")
		_ = os.Unsetenv("CHANNELS")
	}()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cfg := defaultConfig()
		readEnvironment(cfg)
	}
}
