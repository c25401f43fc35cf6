package tagscache

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime/debug"

	"golang.org/x/crypto/blake2b"
)

// buildRevision fingerprints the running binary's module version and VCS
// revision with blake2b, so a rebuild from different source invalidates
// any on-disk cache even when CacheFormatVersion/DBMajor/DBMinor haven't
// changed by hand.
func buildRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	seed := info.Main.Version
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			seed += "+" + s.Value
			break
		}
	}
	sum := blake2b.Sum256([]byte(seed))
	return fmt.Sprintf("%x", sum[:8])
}

func versionMatches(path string, want versionInfo) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var got versionInfo
	if err := json.Unmarshal(data, &got); err != nil {
		return false
	}
	return got == want
}

func writeVersion(path string, v versionInfo) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
