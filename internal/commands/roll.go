package commands

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/latoulicious/Hibiki/pkg/logging"
)

const (
	maxDice  = 100
	minSides = 2
	maxSides = 1000
)

var (
	ErrInvalidDice = errors.New("invalid dice notation")

	diceRe = regexp.MustCompile(`^(\d*)d(\d+)([+-]\d+)?$`)
)

// Dice is a parsed NdS+M expression
type Dice struct {
	Count    int
	Sides    int
	Modifier int
}

// ParseDice parses notation like "1d20", "2d6+5", "d20" or "1d100-10".
// It allows 1 to 100 dice with 2 to 1000 sides.
func ParseDice(notation string) (Dice, error) {
	m := diceRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(notation)))
	if m == nil {
		return Dice{}, ErrInvalidDice
	}

	d := Dice{Count: 1}
	var err error
	if m[1] != "" {
		if d.Count, err = strconv.Atoi(m[1]); err != nil {
			return Dice{}, ErrInvalidDice
		}
	}
	if d.Sides, err = strconv.Atoi(m[2]); err != nil {
		return Dice{}, ErrInvalidDice
	}
	if m[3] != "" {
		if d.Modifier, err = strconv.Atoi(m[3]); err != nil {
			return Dice{}, ErrInvalidDice
		}
	}

	if d.Count < 1 || d.Count > maxDice {
		return Dice{}, ErrInvalidDice
	}
	if d.Sides < minSides || d.Sides > maxSides {
		return Dice{}, ErrInvalidDice
	}
	return d, nil
}

// Roll rolls the dice with intn, which must return a value in [0, n)
func (d Dice) Roll(intn func(n int) int) []int {
	rolls := make([]int, d.Count)
	for i := range rolls {
		rolls[i] = intn(d.Sides) + 1
	}
	return rolls
}

// FormatRoll renders a roll result as a chat message
func FormatRoll(user, notation string, d Dice, rolls []int) string {
	sum := 0
	for _, r := range rolls {
		sum += r
	}
	total := sum + d.Modifier

	if d.Count == 1 && d.Modifier == 0 {
		return fmt.Sprintf("**%s** rolled **%s**: **%d**", user, notation, total)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s** rolled **%s**\n", user, notation)
	if d.Count > 1 {
		parts := make([]string, len(rolls))
		for i, r := range rolls {
			parts[i] = strconv.Itoa(r)
		}
		fmt.Fprintf(&b, "Rolls: [%s] = %d", strings.Join(parts, ", "), sum)
	} else {
		fmt.Fprintf(&b, "Roll: %d", rolls[0])
	}

	if d.Modifier != 0 {
		fmt.Fprintf(&b, " (%+d) = **%d**", d.Modifier, total)
	} else {
		fmt.Fprintf(&b, " = **%d**", total)
	}
	return b.String()
}

// Roll handles /roll
func (h *Handler) Roll(req Request, notation string) Reply {
	d, err := ParseDice(notation)
	if err != nil {
		return Reply{
			Content:   "Invalid dice notation! Use format like `1d20`, `2d6+5`, or `1d100-10`",
			Ephemeral: true,
		}
	}

	rolls := d.Roll(h.intn)
	h.logger.Info("Roll command executed",
		logging.String("user_id", req.UserID),
		logging.String("notation", notation),
		logging.Any("rolls", rolls),
		logging.Int("modifier", d.Modifier),
	)

	name := req.UserName
	if name == "" {
		name = "Someone"
	}
	return Reply{Content: FormatRoll(name, notation, d, rolls)}
}
