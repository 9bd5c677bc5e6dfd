package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble renders a chunk as a human-readable instruction listing, one
// line per instruction, for debug logging. It never touches disk and is
// not a persisted format — spec-wise this system has none.
func (c *Chunk) Disassemble(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	for i, instr := range c.Code {
		pos := c.Positions[i]
		fmt.Fprintf(&b, "%4d [%d:%d] %-14s", i, pos.Line, pos.Column, instr.Op)
		if instr.Operand != nil {
			switch v := instr.Operand.(type) {
			case *Function:
				fmt.Fprintf(&b, " %s", v)
			default:
				fmt.Fprintf(&b, " %v", v)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
