package model

import (
	"fmt"
	"strconv"
	"strings"
)

// gameMoves 单局平均步数，用于估算对局时长
const gameMoves = 68

// TimeControl 时间控制
//
// 支持格式："base"、"base+inc"、"moves/base+inc"，时间单位为秒。
type TimeControl struct {
	Moves     int
	Base      float64
	Increment float64
}

// ParseTimeControl 解析时间控制字符串
func ParseTimeControl(tc string) (TimeControl, error) {
	var out TimeControl
	s := strings.TrimSpace(tc)
	if s == "" {
		return out, fmt.Errorf("empty time control")
	}

	if moves, rest, ok := strings.Cut(s, "/"); ok {
		n, err := strconv.Atoi(moves)
		if err != nil || n <= 0 {
			return out, fmt.Errorf("invalid moves in %q", tc)
		}
		out.Moves = n
		s = rest
	}

	base, inc, hasInc := strings.Cut(s, "+")
	b, err := strconv.ParseFloat(base, 64)
	if err != nil || b < 0 {
		return out, fmt.Errorf("invalid base time in %q", tc)
	}
	out.Base = b
	if hasInc {
		i, err := strconv.ParseFloat(inc, 64)
		if err != nil || i < 0 {
			return out, fmt.Errorf("invalid increment in %q", tc)
		}
		out.Increment = i
	}
	if out.Base == 0 && out.Increment == 0 {
		return out, fmt.Errorf("time control %q has no time", tc)
	}
	return out, nil
}

// EstimatedGameSeconds 估算单个引擎一局的思考时间
func (tc TimeControl) EstimatedGameSeconds() float64 {
	base := tc.Base
	if tc.Moves > 0 {
		base *= float64(gameMoves) / float64(tc.Moves)
	}
	return base + float64(gameMoves)*tc.Increment
}
