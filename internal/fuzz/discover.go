package fuzz

import (
	"bytes"
	"cifuzz/internal/types"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// fuzzEntryPoint is the symbol every libFuzzer-style target exports.
const fuzzEntryPoint = "LLVMFuzzerTestOneInput"

// DiscoverTargets scans the build output directory for fuzz target binaries:
// regular executable files that reference the fuzzer entry point. Results
// follow directory order, so repeated scans of the same build agree on the
// execution order.
func DiscoverTargets(outDir string, logger *zap.Logger) ([]*types.FuzzTarget, error) {
	files, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read build output directory: %w", err)
	}

	var targets []*types.FuzzTarget
	for _, file := range files {
		info, err := file.Info()
		if err != nil {
			logger.Error("failed to get file info", zap.String("file", file.Name()), zap.Error(err))
			continue
		}
		if !info.Mode().IsRegular() || info.Mode()&0111 == 0 {
			continue
		}

		binaryPath := filepath.Join(outDir, file.Name())
		data, err := os.ReadFile(binaryPath)
		if err != nil {
			logger.Error("failed to read candidate binary", zap.String("file", binaryPath), zap.Error(err))
			continue
		}
		if !bytes.Contains(data, []byte(fuzzEntryPoint)) {
			continue
		}

		targets = append(targets, &types.FuzzTarget{
			Name:       file.Name(),
			BinaryPath: binaryPath,
		})
		logger.Debug("discovered fuzz target", zap.String("target", file.Name()))
	}

	return targets, nil
}
