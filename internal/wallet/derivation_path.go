package wallet

import (
	"fmt"
	"strconv"
	"strings"
)

// hardenedOffset is added to a path component marked with a trailing "'".
const hardenedOffset = uint32(0x80000000)

// parseDerivationPath turns "m/44'/60'/0'/0/0" into the five uint32
// indices hdkeychain.Derive expects, hardened components already offset.
func parseDerivationPath(path string) ([]uint32, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(path, "m/"), "M/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || (len(parts) == 1 && parts[0] == "") {
		return nil, fmt.Errorf("wallet: empty derivation path")
	}

	segments := make([]uint32, 0, len(parts))
	for _, part := range parts {
		hardened := strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h") || strings.HasSuffix(part, "H")
		numeric := strings.TrimRight(part, "'hH")
		value, err := strconv.ParseUint(numeric, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("wallet: invalid path component %q: %w", part, err)
		}
		index := uint32(value)
		if hardened {
			index += hardenedOffset
		}
		segments = append(segments, index)
	}
	return segments, nil
}
