package main

// Lower translates the raw tree into the folded tree. Directional commands
// become signed deltas so that opposite directions can cancel arithmetically;
// nothing else changes.
func Lower(program []Command) []Folded {
	folded := make([]Folded, len(program))
	for i, c := range program {
		folded[i] = lowerCommand(c)
	}
	return folded
}

func lowerCommand(c Command) Folded {
	switch c := c.(type) {
	case AddCmd:
		return AddOp{Delta: int64(c.Count)}
	case SubCmd:
		return AddOp{Delta: -int64(c.Count)}
	case LeftCmd:
		return MoveOp{Delta: -int64(c.Count)}
	case RightCmd:
		return MoveOp{Delta: int64(c.Count)}
	case LoopCmd:
		return LoopOp{Body: Lower(c.Body)}
	case ReadCmd:
		return ReadOp{}
	case PrintCmd:
		return PrintOp{}
	default:
		panic("lower: unknown command " + c.String())
	}
}
