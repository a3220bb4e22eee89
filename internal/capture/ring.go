package capture

import "fmt"

const (
	tpacketAlignment = 16
	tpacketHdrLen    = 52
	maxBlockSize     = 4 << 20
)

// recomputeSize derives TPACKET_V3 ring geometry from a memory budget.
// frameSize is TPACKET_ALIGNMENT aligned and holds one header plus snapLen
// bytes; blockSize is a multiple of both the page size and frameSize where
// that fits in maxBlockSize; numBlocks fills the budget, at least one.
func recomputeSize(bufferSizeMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	switch {
	case bufferSizeMB <= 0:
		return 0, 0, 0, fmt.Errorf("buffer size must be positive, got %d MB", bufferSizeMB)
	case snapLen <= 0:
		return 0, 0, 0, fmt.Errorf("snap length must be positive, got %d", snapLen)
	case pageSize <= 0 || pageSize%tpacketAlignment != 0:
		return 0, 0, 0, fmt.Errorf("page size must be a positive multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	frameSize = alignUp(tpacketHdrLen+snapLen, tpacketAlignment)
	if frameSize > maxBlockSize {
		return 0, 0, 0, fmt.Errorf("snap length %d does not fit in a %d byte block", snapLen, maxBlockSize)
	}

	blockSize = lcm(pageSize, frameSize)
	if blockSize > maxBlockSize {
		// Largest page-aligned block that still holds whole frames.
		blockSize = alignUp((maxBlockSize/frameSize)*frameSize, pageSize)
	}

	numBlocks = (bufferSizeMB << 20) / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	return frameSize, blockSize, numBlocks, nil
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}
