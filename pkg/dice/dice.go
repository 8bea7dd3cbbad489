// Package dice parses and evaluates standard dice notation
// (e.g. "d20", "2d6+3", "1d4-1", "2d6+1d4+2").
package dice

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// InvalidExpressionError indicates a malformed dice expression.
type InvalidExpressionError struct {
	Token string
}

func (e *InvalidExpressionError) Error() string {
	return fmt.Sprintf("invalid dice expression: bad token %q", e.Token)
}

// InvalidRangeError indicates a structurally valid expression with an
// unusable die count or size.
type InvalidRangeError struct {
	Count int
	Sides int
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid dice range: %dd%d (count and sides must be >= 1)", e.Count, e.Sides)
}

// Source supplies random integers. *rand.Rand satisfies it; tests
// inject a scripted source for deterministic rolls.
type Source interface {
	Intn(n int) int
}

// Roller evaluates dice expressions against a random source.
type Roller struct {
	src Source
}

// NewRoller creates a roller. A nil source gets a time-seeded PRNG;
// reproducibility across runs is not a goal.
func NewRoller(src Source) *Roller {
	if src == nil {
		src = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Roller{src: src}
}

// Result holds the outcome of evaluating one dice expression.
type Result struct {
	Expression string `json:"expression"`
	Total      int    `json:"total"`
	Rolls      []int  `json:"rolls"`    // die values in roll order, negated dice recorded negative
	Modifier   int    `json:"modifier"` // net flat modifier applied
}

// String renders the result in the format the game master reports rolls:
// "Rolling 2d6+3. Rolls: [4 5] = 9 + 3 = 12. Total: 12"
func (r *Result) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Rolling %s. Rolls: %v", r.Expression, r.Rolls)
	sum := r.Total - r.Modifier
	fmt.Fprintf(&sb, " = %d", sum)
	if r.Modifier > 0 {
		fmt.Fprintf(&sb, " + %d = %d", r.Modifier, r.Total)
	} else if r.Modifier < 0 {
		fmt.Fprintf(&sb, " - %d = %d", -r.Modifier, r.Total)
	}
	fmt.Fprintf(&sb, ". Total: %d", r.Total)
	if r.isNaturalD20() {
		switch r.Rolls[0] {
		case 20:
			sb.WriteString(" Critical Success!")
		case 1:
			sb.WriteString(" Critical Failure!")
		}
	}
	return sb.String()
}

// isNaturalD20 reports whether the expression was a single unmodified d20,
// the only case where critical annotations apply.
func (r *Result) isNaturalD20() bool {
	norm := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(r.Expression)), "1")
	return norm == "d20" && len(r.Rolls) == 1
}

// term is one parsed component of an expression: a dice group or a
// flat modifier, with its sign recorded.
type term struct {
	count int
	sides int
	flat  int
	isDie bool
	neg   bool
}

// Roll parses and evaluates a dice expression. Terms are evaluated
// left to right; each die is an independent uniform draw in [1, sides].
func (ro *Roller) Roll(expr string) (*Result, error) {
	terms, err := parse(expr)
	if err != nil {
		return nil, err
	}

	result := &Result{Expression: strings.TrimSpace(expr)}
	for _, t := range terms {
		if !t.isDie {
			mod := t.flat
			if t.neg {
				mod = -mod
			}
			result.Modifier += mod
			result.Total += mod
			continue
		}
		for i := 0; i < t.count; i++ {
			v := ro.src.Intn(t.sides) + 1
			if t.neg {
				result.Rolls = append(result.Rolls, -v)
				result.Total -= v
			} else {
				result.Rolls = append(result.Rolls, v)
				result.Total += v
			}
		}
	}
	return result, nil
}

// parse splits an expression on +/- operators and validates each term.
func parse(expr string) ([]term, error) {
	s := strings.ReplaceAll(strings.TrimSpace(strings.ToLower(expr)), " ", "")
	if s == "" {
		return nil, &InvalidExpressionError{Token: expr}
	}

	var terms []term
	neg := false
	start := 0
	for i := 0; i <= len(s); i++ {
		if i < len(s) && s[i] != '+' && s[i] != '-' {
			continue
		}
		tok := s[start:i]
		if tok == "" {
			// Leading operator, doubled operator, or trailing operator.
			return nil, &InvalidExpressionError{Token: s[start:]}
		}
		t, err := parseTerm(tok, neg)
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
		if i < len(s) {
			neg = s[i] == '-'
		}
		start = i + 1
	}
	return terms, nil
}

func parseTerm(tok string, neg bool) (term, error) {
	if !strings.Contains(tok, "d") {
		n, err := strconv.Atoi(tok)
		if err != nil {
			return term{}, &InvalidExpressionError{Token: tok}
		}
		return term{flat: n, neg: neg}, nil
	}

	parts := strings.SplitN(tok, "d", 2)
	count := 1
	if parts[0] != "" {
		c, err := strconv.Atoi(parts[0])
		if err != nil {
			return term{}, &InvalidExpressionError{Token: tok}
		}
		count = c
	}
	sides, err := strconv.Atoi(parts[1])
	if err != nil {
		return term{}, &InvalidExpressionError{Token: tok}
	}
	if count < 1 || sides < 1 {
		return term{}, &InvalidRangeError{Count: count, Sides: sides}
	}
	return term{count: count, sides: sides, isDie: true, neg: neg}, nil
}
