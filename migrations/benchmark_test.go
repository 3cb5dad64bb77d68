package main

import (
	"fmt"
	"testing"
	"testing/fstest"
)

func Benchmark_LoadManifestEmbedded(b *testing.B) {
	if !testing.Short() {
		b.Skip("skipping benchmark in non-short mode")
	}

	b.ResetTimer()

	for range b.N {
		if _, err := loadManifest(embeddedSQL); err != nil {
			b.Fatalf("benchmark failed: %v", err)
		}
	}
}

// Benchmark_LoadManifestLarge checksums a synthetic hundred-version script
// set, roughly where the schema might land after years of releases.
func Benchmark_LoadManifestLarge(b *testing.B) {
	if !testing.Short() {
		b.Skip("skipping benchmark in non-short mode")
	}

	fsys := make(fstest.MapFS, 200)

	for v := 1; v <= 100; v++ {
		fsys[fmt.Sprintf("%03d_step_%03d.up.sql", v, v)] =
			script(fmt.Sprintf("CREATE TABLE step_%03d (id TEXT PRIMARY KEY);", v))
		fsys[fmt.Sprintf("%03d_step_%03d.down.sql", v, v)] =
			script(fmt.Sprintf("DROP TABLE step_%03d;", v))
	}

	b.ResetTimer()

	for range b.N {
		if _, err := loadManifest(fsys); err != nil {
			b.Fatalf("benchmark failed: %v", err)
		}
	}
}

func Benchmark_ManifestFingerprint(b *testing.B) {
	if !testing.Short() {
		b.Skip("skipping benchmark in non-short mode")
	}

	man, err := loadManifest(embeddedSQL)
	if err != nil {
		b.Fatalf("benchmark setup failed: %v", err)
	}

	b.ResetTimer()

	for range b.N {
		_ = man.Fingerprint()
	}
}
