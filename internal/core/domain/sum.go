package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultDelimiter = ","
	// MaxAddend is the largest value that still counts towards a sum.
	MaxAddend = 1000

	customDelimiterMarker = "//"
)

var (
	ErrNegativeNumbers = errors.New("negative numbers not allowed")
	ErrMalformedInput  = errors.New("malformed input")
)

// NegativeNumbersError lists every negative number found in an input, in the
// order they appeared. Numbers is never empty.
type NegativeNumbersError struct {
	Numbers []int
}

func (e *NegativeNumbersError) Error() string {
	parts := make([]string, 0, len(e.Numbers))
	for _, n := range e.Numbers {
		parts = append(parts, strconv.Itoa(n))
	}
	return "negative numbers not allowed: " + strings.Join(parts, ", ")
}

func (e *NegativeNumbersError) Is(target error) bool {
	return target == ErrNegativeNumbers
}

// MalformedTokenError is returned by AddStrict for the first token that is not
// a base-10 integer.
type MalformedTokenError struct {
	Index int
	Token string
}

func (e *MalformedTokenError) Error() string {
	return fmt.Sprintf("malformed input: token %d %q is not an integer", e.Index, e.Token)
}

func (e *MalformedTokenError) Is(target error) bool {
	return target == ErrMalformedInput
}

// Add sums the integers in input. A token that does not parse makes the whole
// result 0. Negative numbers are rejected with *NegativeNumbersError and
// numbers above MaxAddend are skipped.
func Add(input string) (int, error) {
	sum, err := evaluate(input)
	if errors.Is(err, ErrMalformedInput) {
		return 0, nil
	}
	return sum, err
}

// AddStrict behaves like Add but reports unparseable tokens as
// *MalformedTokenError instead of returning 0.
func AddStrict(input string) (int, error) {
	return evaluate(input)
}

// SplitDelimiter separates an optional "//<delim>\n" header from the body.
// Without a header the delimiter is DefaultDelimiter and body is input.
func SplitDelimiter(input string) (delimiter, body string) {
	if !strings.HasPrefix(input, customDelimiterMarker) {
		return DefaultDelimiter, input
	}
	rest := input[len(customDelimiterMarker):]
	end := strings.IndexByte(rest, '\n')
	if end < 0 {
		return rest, ""
	}
	return rest[:end], rest[end+1:]
}

// Tokenize rewrites the delimiter to a comma and splits on commas and line
// breaks. Empty tokens are kept.
func Tokenize(delimiter, body string) []string {
	normalized := strings.ReplaceAll(body, delimiter, ",")
	normalized = strings.ReplaceAll(normalized, "\n", ",")
	return strings.Split(normalized, ",")
}

func evaluate(input string) (int, error) {
	if input == "" {
		return 0, nil
	}

	tokens := Tokenize(SplitDelimiter(input))

	numbers := make([]int, 0, len(tokens))
	for i, tok := range tokens {
		n, err := strconv.ParseInt(strings.TrimSpace(tok), 10, 32)
		if err != nil {
			return 0, &MalformedTokenError{Index: i, Token: tok}
		}
		numbers = append(numbers, int(n))
	}

	var negatives []int
	for _, n := range numbers {
		if n < 0 {
			negatives = append(negatives, n)
		}
	}
	if len(negatives) > 0 {
		return 0, &NegativeNumbersError{Numbers: negatives}
	}

	sum := 0
	for _, n := range numbers {
		if n <= MaxAddend {
			sum += n
		}
	}
	return sum, nil
}
