package satlink

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
)

// Format bytes the traditional way, 16 per line with offset and printable characters.

func hex_dump(p []byte) string {
	var sb strings.Builder
	var offset = 0

	for len(p) > 0 {
		var n = min(len(p), 16)

		fmt.Fprintf(&sb, "  %03x: ", offset)

		for i := 0; i < n; i++ {
			fmt.Fprintf(&sb, " %02x", p[i])
		}

		for i := n; i < 16; i++ {
			sb.WriteString("   ")
		}

		sb.WriteString("  ")

		for i := 0; i < n; i++ {
			if p[i] >= 0x20 && p[i] <= 0x7E {
				sb.WriteByte(p[i])
			} else {
				sb.WriteByte('.')
			}
		}

		sb.WriteByte('\n')

		p = p[n:]
		offset += n
	}

	return sb.String()
}

// Only pay for the formatting when someone will see it.

func debugDump(logger *log.Logger, msg string, p []byte) {
	if logger.GetLevel() > log.DebugLevel {
		return
	}
	logger.Debug(msg, "len", len(p))
	logger.Print("\n" + hex_dump(p))
}
