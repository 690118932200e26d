package grid

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"databinding/core/database"
	"databinding/core/utils"
)

var (
	firstNames = []string{"Ada", "Bo", "Cleo", "Dana", "Eli", "Finn", "Gus", "Hana", "Ivo", "Juno"}
	cities     = []string{"Lisbon", "Oslo", "Porto", "Quito", "Riga", "Turin"}
)

// GenerateRows returns n deterministic demo rows with the columns id, name,
// city and age.
func GenerateRows(n int) []database.Row {
	rng := rand.New(rand.NewPCG(42, uint64(n)))
	rows := make([]database.Row, n)
	for i := range rows {
		rows[i] = database.Row{
			"id":   int64(i + 1),
			"name": fmt.Sprintf("%s %03d", firstNames[rng.IntN(len(firstNames))], i+1),
			"city": cities[rng.IntN(len(cities))],
			"age":  int64(18 + rng.IntN(60)),
		}
	}
	return rows
}

// validOp reports whether op is understood by match.
func validOp(op string) bool {
	switch strings.ToLower(op) {
	case "", "=", "!=", "<", "<=", ">", ">=", "like", "prefix":
		return true
	default:
		return false
	}
}

// match applies a Where operator to a loosely typed value. like matches
// case-insensitively, with % as the only wildcard.
func match(value any, op string, want any) bool {
	switch strings.ToLower(op) {
	case "", "=":
		return utils.Compare(value, want) == 0
	case "!=":
		return utils.Compare(value, want) != 0
	case "<":
		return utils.Compare(value, want) < 0
	case "<=":
		return utils.Compare(value, want) <= 0
	case ">":
		return utils.Compare(value, want) > 0
	case ">=":
		return utils.Compare(value, want) >= 0
	case "prefix":
		return strings.HasPrefix(utils.ToString(value), utils.ToString(want))
	case "like":
		return like(strings.ToLower(utils.ToString(value)), strings.ToLower(utils.ToString(want)))
	default:
		return false
	}
}

func like(s, pattern string) bool {
	parts := strings.Split(pattern, "%")
	if len(parts) == 1 {
		return s == pattern
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	last := parts[len(parts)-1]
	for _, p := range parts[1 : len(parts)-1] {
		i := strings.Index(s, p)
		if i < 0 {
			return false
		}
		s = s[i+len(p):]
	}
	return strings.HasSuffix(s, last)
}
